// Package engine holds the per-mode scenario rules. Engines are stateless: they read
// an immutable room snapshot and describe the effect of an action or tick as a ModeMutation.
package engine

import (
	"fmt"
	"strings"
	"time"

	"github.com/jason-s-yu/drillroom/internal/models"
	"github.com/jason-s-yu/drillroom/internal/rng"
)

// Action is a player-submitted move.
type Action struct {
	PlayerID string         `json:"playerId"`
	Type     string         `json:"actionType"`
	Payload  map[string]any `json:"payload,omitempty"`
}

// ModeMutation describes the effect an engine wants applied to room state.
// Zero values mean "no change" for every field.
type ModeMutation struct {
	PressureDelta            int
	ScoreDelta               int
	Summary                  string
	TimelineAdds             []models.TimelineEntry
	MarkObjectiveIDsComplete []string
	Status                   models.Status
	Scenario                 *models.ScenarioState
}

// Engine is the contract every mode implements.
type Engine interface {
	Mode() models.Mode
	// Roles lists the allowed roles; the first one is assigned to the GM and the
	// second one is the default for players joining without a preference.
	Roles() []string
	InitObjectives() []models.Objective
	InitSummary() string
	// InitScenario returns nil for modes without a simulated sub-world.
	InitScenario(r *rng.RNG) *models.ScenarioState
	OnAction(state *models.RoomState, action Action, now time.Time) ModeMutation
	OnTick(state *models.RoomState, now time.Time) ModeMutation
}

// ViewProjector is implemented by modes whose scenario is filtered per role.
type ViewProjector interface {
	ScenarioView(state *models.RoomState, role string) any
}

// NoAccessMessage is shown to roles without a direct feed into the scenario.
const NoAccessMessage = "No direct access. Coordinate with your team for readings."

// NoAccessView is the generic projection for unprivileged roles.
type NoAccessView struct {
	Role    string `json:"role"`
	Message string `json:"message"`
}

var registry = map[models.Mode]Engine{
	models.ModeSevEscalation:   newSevEscalation(),
	models.ModeCommsCrisis:     newCommsCrisis(),
	models.ModeBombDefusal:     bombDefusal{},
	models.ModeBushfireCommand: bushfireCommand{},
}

// For returns the engine registered for mode.
func For(mode models.Mode) (Engine, error) {
	e, ok := registry[mode]
	if !ok {
		return nil, fmt.Errorf("no engine registered for mode %q", mode)
	}
	return e, nil
}

// AllowsRole reports whether role belongs to the engine's role set.
func AllowsRole(e Engine, role string) bool {
	for _, r := range e.Roles() {
		if r == role {
			return true
		}
	}
	return false
}

// GameMasterRole is the role given to the room creator.
func GameMasterRole(e Engine) string {
	return e.Roles()[0]
}

// DefaultRole is the role given to joining players without a valid preference.
func DefaultRole(e Engine) string {
	roles := e.Roles()
	if len(roles) > 1 {
		return roles[1]
	}
	return roles[0]
}

// View projects the scenario for a role. Modes without a projector return nil.
func View(e Engine, state *models.RoomState, role string) any {
	p, ok := e.(ViewProjector)
	if !ok || state.Scenario == nil {
		return nil
	}
	return p.ScenarioView(state, role)
}

func entry(kind models.TimelineKind, now time.Time, by, format string, args ...any) models.TimelineEntry {
	return models.TimelineEntry{
		Kind:       kind,
		Message:    fmt.Sprintf(format, args...),
		AtEpochMs:  now.UnixMilli(),
		ByPlayerID: by,
	}
}

func playerName(state *models.RoomState, id string) string {
	if p := state.PlayerByID(id); p != nil && p.Name != "" {
		return p.Name
	}
	return "Someone"
}

func payloadString(payload map[string]any, key string) (string, bool) {
	if payload == nil {
		return "", false
	}
	v, ok := payload[key].(string)
	v = strings.TrimSpace(v)
	return v, ok && v != ""
}

// penalty is the shared shape of an invalid in-game move: it costs, it never errors.
func penalty(pressure, score int, inject models.TimelineEntry) ModeMutation {
	return ModeMutation{
		PressureDelta: pressure,
		ScoreDelta:    -score,
		TimelineAdds:  []models.TimelineEntry{inject},
	}
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
