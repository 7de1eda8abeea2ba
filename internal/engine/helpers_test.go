package engine_test

import (
	"testing"
	"time"

	"github.com/jason-s-yu/drillroom/internal/engine"
	"github.com/jason-s-yu/drillroom/internal/models"
	"github.com/jason-s-yu/drillroom/internal/reducer"
	"github.com/jason-s-yu/drillroom/internal/rng"
	"github.com/stretchr/testify/require"
)

var testNow = time.UnixMilli(1_700_000_000_000)

// newRunningRoom builds a running room for mode with a GM and one player per extra role.
func newRunningRoom(t *testing.T, mode models.Mode, seed string) (*models.RoomState, engine.Engine) {
	t.Helper()
	e, err := engine.For(mode)
	require.NoError(t, err)

	started := testNow.UnixMilli()
	state := &models.RoomState{
		RoomCode:         "TEST01",
		Mode:             mode,
		Status:           models.StatusRunning,
		Seed:             seed,
		CreatedAtEpochMs: started,
		StartedAtEpochMs: &started,
		Objectives:       e.InitObjectives(),
		PublicSummary:    e.InitSummary(),
		Scenario:         e.InitScenario(rng.New(seed)),
	}
	for i, role := range e.Roles() {
		state.Players = append(state.Players, models.Player{
			ID:           "p" + string(rune('1'+i)),
			Name:         role,
			Role:         role,
			IsGameMaster: i == 0,
		})
	}
	return state, e
}

// act runs one action through the engine and reducer the way the room does.
func act(state *models.RoomState, e engine.Engine, playerID, actionType string, payload map[string]any) (*models.RoomState, engine.ModeMutation) {
	m := e.OnAction(state, engine.Action{PlayerID: playerID, Type: actionType, Payload: payload}, testNow)
	next := reducer.Apply(state, m, testNow)
	reducer.Finalize(state.Status, next, testNow)
	return next, m
}
