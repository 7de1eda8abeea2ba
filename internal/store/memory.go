package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/jason-s-yu/drillroom/internal/models"
)

// Memory keeps serialized room blobs in process memory.
// Blobs are stored encoded so callers never share state with the store.
type Memory struct {
	mu    sync.Mutex
	rooms map[string][]byte
	wake  map[string]int64
}

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		rooms: make(map[string][]byte),
		wake:  make(map[string]int64),
	}
}

func (m *Memory) Load(ctx context.Context, code string) (*models.RoomState, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	data, ok := m.rooms[code]
	m.mu.Unlock()
	if !ok {
		return nil, ErrNotFound
	}
	return decode(code, data)
}

func (m *Memory) Save(ctx context.Context, state *models.RoomState) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := encode(state)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rooms[state.RoomCode] = data
	if at, ok := wakeAt(state); ok {
		m.wake[state.RoomCode] = at
	} else {
		delete(m.wake, state.RoomCode)
	}
	return nil
}

func (m *Memory) PendingWakeups(ctx context.Context) ([]Wakeup, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Wakeup, 0, len(m.wake))
	for code, at := range m.wake {
		out = append(out, Wakeup{Code: code, At: time.UnixMilli(at)})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].At.Before(out[j].At) })
	return out, nil
}

func (m *Memory) Close() error { return nil }
