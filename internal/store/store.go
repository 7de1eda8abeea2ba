// Package store persists one RoomState blob per room code.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jason-s-yu/drillroom/internal/models"
)

// ErrNotFound is returned by Load when no blob exists for a room code.
var ErrNotFound = errors.New("room not found")

// Store is a durable key-value store of room state keyed by room code.
// Save must be read-after-write consistent for a single key.
type Store interface {
	Load(ctx context.Context, code string) (*models.RoomState, error)
	Save(ctx context.Context, state *models.RoomState) error
	// PendingWakeups lists every room that has a tick scheduled.
	PendingWakeups(ctx context.Context) ([]Wakeup, error)
	Close() error
}

// Wakeup is a scheduled tick recorded alongside a room's state.
type Wakeup struct {
	Code string
	At   time.Time
}

// wakeAt returns when the room wants its next tick, if it is running and has one scheduled.
func wakeAt(state *models.RoomState) (int64, bool) {
	if state.Status != models.StatusRunning || state.NextTickAtEpochMs == nil {
		return 0, false
	}
	return *state.NextTickAtEpochMs, true
}

func encode(state *models.RoomState) ([]byte, error) {
	if state == nil || state.RoomCode == "" {
		return nil, errors.New("room state has no code")
	}
	data, err := json.Marshal(state)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal room %s: %w", state.RoomCode, err)
	}
	return data, nil
}

func decode(code string, data []byte) (*models.RoomState, error) {
	var state models.RoomState
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("failed to unmarshal room %s: %w", code, err)
	}
	return &state, nil
}
