package room

import (
	"context"
	"fmt"
	"time"

	"github.com/jason-s-yu/drillroom/internal/models"
)

// EventType names a message pushed to subscribers.
type EventType string

const (
	EventSnapshot  EventType = "snapshot"
	EventKeepalive EventType = "keepalive"
)

// Event is one push. Keepalives carry no state.
type Event struct {
	Type     EventType        `json:"type"`
	Snapshot *models.Snapshot `json:"snapshot,omitempty"`
}

// Sink is a subscriber's push channel. Close must be safe to call more than once.
type Sink interface {
	Send(ctx context.Context, ev Event) error
	Close()
}

const sendTimeout = 3 * time.Second

type subscriber struct {
	clientID  string
	playerID  string
	sink      Sink
	keepalive *time.Timer
	token     uint64
}

// hub maps client ids to their push channel. It is owned by a Room and only touched
// with the room lock held.
type hub struct {
	subs map[string]*subscriber
	next uint64
}

func newHub() *hub {
	return &hub{subs: make(map[string]*subscriber)}
}

func (h *hub) add(clientID, playerID string, sink Sink) *subscriber {
	h.next++
	sub := &subscriber{clientID: clientID, playerID: playerID, sink: sink, token: h.next}
	h.subs[clientID] = sub
	return sub
}

func (h *hub) list() []*subscriber {
	out := make([]*subscriber, 0, len(h.subs))
	for _, s := range h.subs {
		out = append(out, s)
	}
	return out
}

// Subscribers returns how many clients are registered.
func (r *Room) Subscribers() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.hub.subs)
}

// Subscribe registers sink under clientID and immediately pushes the current snapshot.
// playerID selects the role view; empty subscribes as an anonymous viewer.
// Subscribing again with the same clientID replaces the earlier registration.
func (r *Room) Subscribe(clientID, playerID string, sink Sink) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.ready(); err != nil {
		return err
	}
	if clientID == "" {
		return ErrInvalidAction
	}
	if playerID != "" && r.state.PlayerByID(playerID) == nil {
		return ErrInvalidPlayer
	}
	if old, ok := r.hub.subs[clientID]; ok {
		r.drop(old)
	}

	sub := r.hub.add(clientID, playerID, sink)
	snap := r.snapshotFor(playerID)
	if err := r.push(sub, Event{Type: EventSnapshot, Snapshot: &snap}); err != nil {
		return fmt.Errorf("initial snapshot: %w", err)
	}
	r.armKeepalive(sub)
	r.log.WithField("client", clientID).Debug("subscriber registered")
	return nil
}

// Unsubscribe removes clientID. Unknown ids are ignored.
func (r *Room) Unsubscribe(clientID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if sub, ok := r.hub.subs[clientID]; ok {
		r.drop(sub)
		r.log.WithField("client", clientID).Debug("subscriber removed")
	}
}

// broadcast pushes a fresh snapshot, projected per subscriber, to every client.
// Assumes lock is held.
func (r *Room) broadcast() {
	for _, sub := range r.hub.list() {
		snap := r.snapshotFor(sub.playerID)
		r.push(sub, Event{Type: EventSnapshot, Snapshot: &snap})
	}
}

// push delivers one event and drops the subscriber if delivery fails.
// Assumes lock is held.
func (r *Room) push(sub *subscriber, ev Event) error {
	ctx, cancel := context.WithTimeout(context.Background(), sendTimeout)
	defer cancel()
	if err := sub.sink.Send(ctx, ev); err != nil {
		r.log.WithError(err).WithField("client", sub.clientID).Warn("push failed, dropping subscriber")
		r.drop(sub)
		return err
	}
	return nil
}

func (r *Room) drop(sub *subscriber) {
	if sub.keepalive != nil {
		sub.keepalive.Stop()
	}
	if cur, ok := r.hub.subs[sub.clientID]; ok && cur == sub {
		delete(r.hub.subs, sub.clientID)
	}
	sub.sink.Close()
}

func (r *Room) dropAll() {
	for _, sub := range r.hub.list() {
		r.drop(sub)
	}
}

func (r *Room) armKeepalive(sub *subscriber) {
	token := sub.token
	sub.keepalive = time.AfterFunc(r.deps.KeepaliveInterval, func() {
		r.keepalive(sub.clientID, token)
	})
}

// keepalive runs on the timer goroutine, so it takes the room lock and checks
// the registration is still the one that armed it.
func (r *Room) keepalive(clientID string, token uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	sub, ok := r.hub.subs[clientID]
	if !ok || sub.token != token {
		return
	}
	if r.push(sub, Event{Type: EventKeepalive}) == nil {
		r.armKeepalive(sub)
	}
}
