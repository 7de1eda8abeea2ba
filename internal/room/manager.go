package room

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jason-s-yu/drillroom/internal/models"
	"github.com/jason-s-yu/drillroom/internal/store"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"
)

// CodeAlphabet leaves out characters that are easy to misread aloud.
const (
	CodeAlphabet   = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"
	CodeLength     = 6
	maxCodeRetries = 8
)

// Manager owns exactly one Room per code for the life of the process.
// Rooms are loaded lazily from the store; concurrent first requests share one load.
type Manager struct {
	mu    sync.Mutex
	rooms map[string]*Room
	loads singleflight.Group
	deps  *Deps
}

// NewManager returns a manager with deps, filling in default intervals and clock.
func NewManager(deps Deps) *Manager {
	return &Manager{
		rooms: make(map[string]*Room),
		deps:  deps.withDefaults(),
	}
}

// Room returns the actor for an initialized room, loading persisted state on first use.
// Unknown codes return ErrNotInitialized and leave nothing cached.
func (m *Manager) Room(ctx context.Context, code string) (*Room, error) {
	if code == "" {
		return nil, ErrNotInitialized
	}
	r, err := m.lookup(ctx, code)
	if err != nil {
		return nil, err
	}
	if r == nil {
		return nil, ErrNotInitialized
	}
	return r, nil
}

// Init initializes the room at code. An actor that ends up without state is released
// again so probing codes does not grow the registry.
func (m *Manager) Init(ctx context.Context, code, gmName string, mode models.Mode, seed string) (InitResult, error) {
	if code == "" {
		return InitResult{}, fmt.Errorf("%w: room code is required", ErrInvalidAction)
	}
	for {
		r, err := m.actor(ctx, code)
		if err != nil {
			return InitResult{}, err
		}
		res, err := r.initialize(ctx, gmName, mode, seed)
		if errors.Is(err, errRetired) {
			continue
		}
		if err != nil {
			m.release(r)
		}
		return res, err
	}
}

func (m *Manager) cached(code string) *Room {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.rooms[code]
}

// lookup returns the cached actor for code or loads it from the store. A code with
// no stored state yields a nil Room. Concurrent first lookups share one load.
func (m *Manager) lookup(ctx context.Context, code string) (*Room, error) {
	if r := m.cached(code); r != nil {
		return r, nil
	}
	v, err, _ := m.loads.Do(code, func() (any, error) {
		if r := m.cached(code); r != nil {
			return r, nil
		}

		// The load outlives any single caller, so it is detached from ctx cancellation.
		state, err := m.deps.Store.Load(context.WithoutCancel(ctx), code)
		if errors.Is(err, store.ErrNotFound) {
			return (*Room)(nil), nil
		}
		if err != nil {
			return nil, fmt.Errorf("load room %s: %w", code, err)
		}
		r, err := newRoom(code, state, m.deps)
		if err != nil {
			return nil, err
		}
		r.onPoison = m.evict

		m.mu.Lock()
		if cur, ok := m.rooms[code]; ok {
			m.mu.Unlock()
			return cur, nil
		}
		m.rooms[code] = r
		m.mu.Unlock()

		m.deps.Logger.WithFields(logrus.Fields{"room": code, "status": state.Status}).Debug("room loaded")
		m.rearm(state)
		return r, nil
	})
	if err != nil {
		return nil, err
	}
	r, _ := v.(*Room)
	return r, nil
}

// actor returns the room for code, registering an empty actor when nothing is stored.
func (m *Manager) actor(ctx context.Context, code string) (*Room, error) {
	r, err := m.lookup(ctx, code)
	if err != nil || r != nil {
		return r, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if cur, ok := m.rooms[code]; ok {
		return cur, nil
	}
	r, err = newRoom(code, nil, m.deps)
	if err != nil {
		return nil, err
	}
	r.onPoison = m.evict
	m.rooms[code] = r
	return r, nil
}

// release retires r if it never got state. Callers still holding it are told to look
// the code up again.
func (m *Manager) release(r *Room) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state != nil || r.retired {
		return
	}
	r.retired = true
	m.evict(r)
}

// rearm schedules the next tick of a running room that was just loaded. A tick that
// fell due while the room was not loaded fires at once.
func (m *Manager) rearm(state *models.RoomState) {
	if state.Status != models.StatusRunning {
		return
	}
	at := m.deps.Clock()
	if state.NextTickAtEpochMs != nil {
		if due := time.UnixMilli(*state.NextTickAtEpochMs); due.After(at) {
			at = due
		}
	}
	m.deps.Scheduler.Schedule(state.RoomCode, at)
}

// Tick is the scheduler callback.
func (m *Manager) Tick(code string, _ time.Time) {
	r, err := m.Room(context.Background(), code)
	switch {
	case errors.Is(err, ErrNotInitialized):
		m.deps.Logger.WithField("room", code).Debug("tick for unknown room ignored")
		return
	case err != nil:
		m.deps.Logger.WithError(err).WithField("room", code).Error("failed to load room for tick")
		return
	}
	r.tick()
}

// Resume re-arms the scheduler for every running room recorded in the store.
// Overdue wakeups fire immediately.
func (m *Manager) Resume(ctx context.Context) (int, error) {
	wakes, err := m.deps.Store.PendingWakeups(ctx)
	if err != nil {
		return 0, fmt.Errorf("resume ticks: %w", err)
	}
	for _, w := range wakes {
		m.deps.Scheduler.Schedule(w.Code, w.At)
	}
	return len(wakes), nil
}

// Loaded reports how many rooms are held in memory.
func (m *Manager) Loaded() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.rooms)
}

// evict forgets a poisoned room so the next access reloads it from storage.
func (m *Manager) evict(r *Room) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if cur, ok := m.rooms[r.code]; ok && cur == r {
		delete(m.rooms, r.code)
	}
}

// NewCode returns a random room code drawn from CodeAlphabet.
func NewCode() (string, error) {
	buf := make([]byte, CodeLength)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate room code: %w", err)
	}
	for i, b := range buf {
		buf[i] = CodeAlphabet[int(b)%len(CodeAlphabet)]
	}
	return string(buf), nil
}
