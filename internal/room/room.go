// Package room hosts the per-room actor: the single writer of a room's state.
package room

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jason-s-yu/drillroom/internal/auth"
	"github.com/jason-s-yu/drillroom/internal/engine"
	"github.com/jason-s-yu/drillroom/internal/models"
	"github.com/jason-s-yu/drillroom/internal/reducer"
	"github.com/jason-s-yu/drillroom/internal/rng"
	"github.com/jason-s-yu/drillroom/internal/store"
	"github.com/sirupsen/logrus"
)

const (
	DefaultTickInterval      = 30 * time.Second
	DefaultKeepaliveInterval = 15 * time.Second

	// staleTickSlack tolerates timers firing marginally before the recorded wake time.
	staleTickSlack = time.Second
	tickTimeout    = 5 * time.Second
	journalTimeout = 2 * time.Second
	saveTimeout    = 5 * time.Second
)

// Scheduler arranges for a room to be ticked at a wall-clock time.
type Scheduler interface {
	Schedule(code string, at time.Time)
	Cancel(code string)
}

// Journal receives timeline entries as they are committed.
type Journal interface {
	PublishTimeline(ctx context.Context, state *models.RoomState, entries []models.TimelineEntry) error
}

// Deps are the collaborators shared by every room of a Manager.
type Deps struct {
	Store     store.Store
	Scheduler Scheduler
	Journal   Journal // optional
	Logger    *logrus.Logger
	Clock     func() time.Time

	TickInterval      time.Duration
	KeepaliveInterval time.Duration
}

func (d *Deps) withDefaults() *Deps {
	c := *d
	if c.Clock == nil {
		c.Clock = time.Now
	}
	if c.TickInterval <= 0 {
		c.TickInterval = DefaultTickInterval
	}
	if c.KeepaliveInterval <= 0 {
		c.KeepaliveInterval = DefaultKeepaliveInterval
	}
	if c.Logger == nil {
		c.Logger = logrus.StandardLogger()
	}
	return &c
}

// Room serializes every operation on one room code behind its mutex.
// state is nil until Init succeeds.
type Room struct {
	mu     sync.Mutex
	code   string
	deps   *Deps
	log    *logrus.Entry
	state  *models.RoomState
	engine engine.Engine
	hub    *hub

	unavailable bool
	retired     bool // released by the Manager before it was ever initialized
	onPoison    func(*Room)
}

func newRoom(code string, state *models.RoomState, deps *Deps) (*Room, error) {
	r := &Room{
		code:  code,
		deps:  deps,
		log:   deps.Logger.WithField("room", code),
		state: state,
		hub:   newHub(),
	}
	if state != nil {
		e, err := engine.For(state.Mode)
		if err != nil {
			return nil, fmt.Errorf("room %s: %w", code, err)
		}
		r.engine = e
	}
	return r, nil
}

// Code returns the room code.
func (r *Room) Code() string { return r.code }

// InitResult is returned once to the room creator.
type InitResult struct {
	Snapshot   models.Snapshot `json:"snapshot"`
	GMPlayerID string          `json:"gmPlayerId"`
	GMSecret   string          `json:"gmSecret"`
}

// JoinResult carries the new player's id.
type JoinResult struct {
	PlayerID string          `json:"playerId"`
	Snapshot models.Snapshot `json:"snapshot"`
}

// initialize creates the room with its GM. seed may be empty, in which case one is derived
// from the room code and creation time. Only the Manager calls it.
func (r *Room) initialize(ctx context.Context, gmName string, mode models.Mode, seed string) (InitResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.retired {
		return InitResult{}, errRetired
	}
	if r.unavailable {
		return InitResult{}, ErrRoomUnavailable
	}
	if r.state != nil {
		return InitResult{}, ErrAlreadyInitialized
	}
	gmName = strings.TrimSpace(gmName)
	if gmName == "" {
		return InitResult{}, fmt.Errorf("%w: gm name is required", ErrInvalidAction)
	}
	e, err := engine.For(mode)
	if err != nil {
		return InitResult{}, fmt.Errorf("%w: %q", ErrInvalidMode, mode)
	}

	token, encoded, err := auth.NewGMSecret()
	if err != nil {
		return InitResult{}, err
	}

	now := r.deps.Clock()
	if seed == "" {
		seed = fmt.Sprintf("%s:%d", r.code, now.UnixMilli())
	}
	gm := models.Player{
		ID:           uuid.NewString(),
		Name:         gmName,
		Role:         engine.GameMasterRole(e),
		IsGameMaster: true,
	}
	next := &models.RoomState{
		RoomCode:         r.code,
		Mode:             mode,
		Status:           models.StatusLobby,
		Seed:             seed,
		CreatedAtEpochMs: now.UnixMilli(),
		Players:          []models.Player{gm},
		Objectives:       e.InitObjectives(),
		Timeline:         []models.TimelineEntry{},
		PublicSummary:    e.InitSummary(),
		GMSecret:         encoded,
		Scenario:         e.InitScenario(rng.New(seed)),
	}
	reducer.AppendTimeline(next, now, models.TimelineEntry{
		Kind:    models.TimelineSystem,
		Message: fmt.Sprintf("Room created by %s for %s.", gmName, mode),
	})

	r.engine = e
	if err := r.commit(ctx, next); err != nil {
		r.engine = nil
		return InitResult{}, err
	}
	r.log.WithField("mode", mode).Info("room created")
	return InitResult{Snapshot: r.snapshotFor(gm.ID), GMPlayerID: gm.ID, GMSecret: token}, nil
}

// Join adds a player while the room is in the lobby. A preferred role outside the
// mode's role set, or the GM role, falls back to the mode's default role.
func (r *Room) Join(ctx context.Context, name, preferredRole string) (JoinResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.ready(); err != nil {
		return JoinResult{}, err
	}
	if r.state.Status != models.StatusLobby {
		return JoinResult{}, ErrGameAlreadyStarted
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return JoinResult{}, fmt.Errorf("%w: name is required", ErrInvalidAction)
	}

	role := engine.DefaultRole(r.engine)
	if preferredRole != "" && preferredRole != engine.GameMasterRole(r.engine) && engine.AllowsRole(r.engine, preferredRole) {
		role = preferredRole
	}
	now := r.deps.Clock()
	p := models.Player{ID: uuid.NewString(), Name: name, Role: role}

	next := r.state.Clone()
	next.Players = append(next.Players, p)
	reducer.AppendTimeline(next, now, models.TimelineEntry{
		Kind:       models.TimelineSystem,
		Message:    fmt.Sprintf("%s joined as %s.", name, role),
		ByPlayerID: p.ID,
	})
	if err := r.commit(ctx, next); err != nil {
		return JoinResult{}, err
	}
	r.log.WithFields(logrus.Fields{"player": p.ID, "role": role}).Info("player joined")
	return JoinResult{PlayerID: p.ID, Snapshot: r.snapshotFor(p.ID)}, nil
}

// Start moves the room from the lobby to running and schedules the first tick.
func (r *Room) Start(ctx context.Context, gmSecret string) (models.Snapshot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.ready(); err != nil {
		return models.Snapshot{}, err
	}
	if err := r.authorize(gmSecret); err != nil {
		return models.Snapshot{}, err
	}
	if r.state.Status != models.StatusLobby {
		return models.Snapshot{}, ErrAlreadyRunning
	}

	now := r.deps.Clock()
	wake := now.Add(r.deps.TickInterval)
	next := r.state.Clone()
	reducer.Transition(next, models.StatusRunning, now)
	next.StartedAtEpochMs = models.Int64Ptr(now.UnixMilli())
	next.NextTickAtEpochMs = models.Int64Ptr(wake.UnixMilli())
	reducer.AppendTimeline(next, now, models.TimelineEntry{
		Kind:    models.TimelineSystem,
		Message: fmt.Sprintf("Drill started with %d participants.", len(next.Players)),
	})
	if err := r.commit(ctx, next); err != nil {
		return models.Snapshot{}, err
	}
	r.deps.Scheduler.Schedule(r.code, wake)
	r.log.Info("room started")
	return r.snapshotFor(r.gmID()), nil
}

// SubmitAction runs a player action through the engine and reducer.
// Invalid game moves are penalties in the returned snapshot, not errors.
func (r *Room) SubmitAction(ctx context.Context, playerID, actionType string, payload map[string]any) (models.Snapshot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.ready(); err != nil {
		return models.Snapshot{}, err
	}
	if r.state.Status != models.StatusRunning {
		return models.Snapshot{}, ErrNotRunning
	}
	if r.state.PlayerByID(playerID) == nil {
		return models.Snapshot{}, ErrInvalidPlayer
	}
	actionType = strings.TrimSpace(actionType)
	if actionType == "" {
		return models.Snapshot{}, fmt.Errorf("%w: action type is required", ErrInvalidAction)
	}

	now := r.deps.Clock()
	prev := r.state.Status
	m := r.engine.OnAction(r.state, engine.Action{PlayerID: playerID, Type: actionType, Payload: payload}, now)
	next := reducer.Apply(r.state, m, now)
	reducer.Finalize(prev, next, now)
	if next.Status.Terminal() {
		next.NextTickAtEpochMs = nil
	}
	if err := r.commit(ctx, next); err != nil {
		return models.Snapshot{}, err
	}
	r.log.WithFields(logrus.Fields{
		"player":   playerID,
		"action":   actionType,
		"pressure": next.Pressure,
		"score":    next.Score,
	}).Debug("action applied")
	r.afterTransition(prev)
	return r.snapshotFor(playerID), nil
}

// AssignRole lets the GM move a player to another role of the mode before the room ends.
func (r *Room) AssignRole(ctx context.Context, gmSecret, playerID, role string) (models.Snapshot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.ready(); err != nil {
		return models.Snapshot{}, err
	}
	if err := r.authorize(gmSecret); err != nil {
		return models.Snapshot{}, err
	}
	if r.state.Status.Terminal() {
		return models.Snapshot{}, ErrRoomFinished
	}
	if r.state.PlayerByID(playerID) == nil {
		return models.Snapshot{}, ErrInvalidPlayer
	}
	if !engine.AllowsRole(r.engine, role) {
		return models.Snapshot{}, fmt.Errorf("%w: role %q is not part of %s", ErrInvalidAction, role, r.state.Mode)
	}

	now := r.deps.Clock()
	next := r.state.Clone()
	p := next.PlayerByID(playerID)
	p.Role = role
	reducer.AppendTimeline(next, now, models.TimelineEntry{
		Kind:    models.TimelineSystem,
		Message: fmt.Sprintf("%s is now %s.", p.Name, role),
	})
	if err := r.commit(ctx, next); err != nil {
		return models.Snapshot{}, err
	}
	r.log.WithFields(logrus.Fields{"player": playerID, "role": role}).Info("role assigned")
	return r.snapshotFor(r.gmID()), nil
}

// QueryState returns the redacted snapshot, with the role view of playerID when given.
func (r *Room) QueryState(playerID string) (models.Snapshot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.ready(); err != nil {
		return models.Snapshot{}, err
	}
	if playerID != "" && r.state.PlayerByID(playerID) == nil {
		return models.Snapshot{}, ErrInvalidPlayer
	}
	return r.snapshotFor(playerID), nil
}

// OnScheduledTick advances the simulation. It is a no-op unless the room is running,
// and reschedules itself only while the room stays running.
func (r *Room) OnScheduledTick(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.unavailable {
		return ErrRoomUnavailable
	}
	if r.state == nil || r.state.Status != models.StatusRunning {
		return nil
	}

	now := r.deps.Clock()
	if due := r.state.NextTickAtEpochMs; due != nil && now.Add(staleTickSlack).UnixMilli() < *due {
		r.log.WithField("due", *due).Debug("early tick ignored")
		return nil
	}

	prev := r.state.Status
	m := r.engine.OnTick(r.state, now)
	next := reducer.Apply(r.state, m, now)
	reducer.Finalize(prev, next, now)

	var wake time.Time
	if next.Status == models.StatusRunning {
		wake = now.Add(r.deps.TickInterval)
		next.NextTickAtEpochMs = models.Int64Ptr(wake.UnixMilli())
	} else {
		next.NextTickAtEpochMs = nil
	}
	if err := r.commit(ctx, next); err != nil {
		return err
	}
	r.log.WithFields(logrus.Fields{"pressure": next.Pressure, "status": next.Status}).Debug("tick applied")
	if !wake.IsZero() {
		r.deps.Scheduler.Schedule(r.code, wake)
	}
	r.afterTransition(prev)
	return nil
}

// ready rejects operations on a poisoned or uninitialized room. Assumes lock is held.
func (r *Room) ready() error {
	if r.unavailable {
		return ErrRoomUnavailable
	}
	if r.state == nil {
		return ErrNotInitialized
	}
	return nil
}

func (r *Room) authorize(gmSecret string) error {
	ok, err := auth.VerifySecret(gmSecret, r.state.GMSecret)
	if err != nil {
		r.log.WithError(err).Error("stored gm secret is unreadable")
		return ErrUnauthorized
	}
	if !ok {
		return ErrUnauthorized
	}
	return nil
}

func (r *Room) gmID() string {
	for _, p := range r.state.Players {
		if p.IsGameMaster {
			return p.ID
		}
	}
	return ""
}

func (r *Room) snapshotFor(playerID string) models.Snapshot {
	snap := r.state.Redacted()
	role := ""
	if p := r.state.PlayerByID(playerID); p != nil {
		role = p.Role
	}
	snap.View = engine.View(r.engine, r.state, role)
	return snap
}

// afterTransition cancels the tick and logs once a room reaches a terminal status.
func (r *Room) afterTransition(prev models.Status) {
	if prev.Terminal() || !r.state.Status.Terminal() {
		return
	}
	r.deps.Scheduler.Cancel(r.code)
	r.log.WithFields(logrus.Fields{"status": r.state.Status, "score": r.state.Score}).Info("room finished")
}

// commit persists next, then makes it current, journals new timeline entries and
// broadcasts. A failed write leaves the previous state in place and poisons the room.
// Assumes lock is held.
func (r *Room) commit(ctx context.Context, next *models.RoomState) error {
	// A caller hanging up must not poison the room.
	saveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), saveTimeout)
	defer cancel()
	if err := r.deps.Store.Save(saveCtx, next); err != nil {
		r.poison(err)
		return fmt.Errorf("%w: %w", ErrRoomUnavailable, err)
	}

	seen := 0
	if r.state != nil {
		seen = len(r.state.Timeline)
	}
	r.state = next
	r.journal(next.Timeline[seen:])
	r.broadcast()
	return nil
}

func (r *Room) journal(entries []models.TimelineEntry) {
	if r.deps.Journal == nil || len(entries) == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), journalTimeout)
	defer cancel()
	if err := r.deps.Journal.PublishTimeline(ctx, r.state, entries); err != nil {
		r.log.WithError(err).Warn("timeline journal publish failed")
	}
}

func (r *Room) poison(err error) {
	r.unavailable = true
	r.log.WithError(err).Error("failed to persist room state, room is now unavailable")
	r.deps.Scheduler.Cancel(r.code)
	r.dropAll()
	if r.onPoison != nil {
		r.onPoison(r)
	}
}

// tick runs a scheduled tick with its own deadline.
func (r *Room) tick() {
	ctx, cancel := context.WithTimeout(context.Background(), tickTimeout)
	defer cancel()
	if err := r.OnScheduledTick(ctx); err != nil && !errors.Is(err, ErrRoomUnavailable) {
		r.log.WithError(err).Error("scheduled tick failed")
	}
}
