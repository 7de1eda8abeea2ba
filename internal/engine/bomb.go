package engine

import (
	"fmt"
	"time"

	"github.com/jason-s-yu/drillroom/internal/models"
	"github.com/jason-s-yu/drillroom/internal/rng"
)

// Bomb defusal tuning.
const (
	BombWireCount         = 5
	BombCriticalWires     = 2
	BombKeypadShown       = 6
	BombSequenceLength    = 3
	BombMaxStrikes        = 3
	BombTimerSec          = 300
	BombTickStepSec       = 30
	BombTickPressure      = 3
	BombCriticalCutScore  = 15
	BombCriticalCutRelief = 5
	BombWrongCutPressure  = 20
	BombWrongCutScore     = 15
	BombSymbolScore       = 5
	BombWrongSymbolPress  = 15
	BombWrongSymbolScore  = 10
	BombStabilizeTimerSec = 20
	BombStabilizeRelief   = 10
	BombInvalidPressure   = 5
	BombInvalidScore      = 5
)

const (
	ActionCutWire     = "cut_wire"
	ActionPressSymbol = "press_symbol"
	ActionStabilize   = "stabilize"
)

const (
	RoleBombCoordinator = "coordinator"
	RoleBombSpecialist  = "specialist"
	RoleBombAnalyst     = "analyst"
)

var (
	wireColors  = []string{"red", "blue", "yellow", "green", "white", "black"}
	keypadGlyph = []string{"omega", "psi", "star", "sun", "trident", "spiral", "comet", "key"}
)

type bombDefusal struct{}

func (bombDefusal) Mode() models.Mode { return models.ModeBombDefusal }

func (bombDefusal) Roles() []string {
	return []string{RoleBombCoordinator, RoleBombSpecialist, RoleBombAnalyst}
}

func (bombDefusal) InitSummary() string {
	return "A device has been found in the transit hub. The specialist is on site; the analyst has the manual."
}

func (bombDefusal) InitObjectives() []models.Objective {
	return []models.Objective{
		{ID: "bomb-wires", Description: "Cut every critical wire", RequiredAction: ActionCutWire},
		{ID: "bomb-keypad", Description: "Enter the keypad sequence in order", RequiredAction: ActionPressSymbol},
	}
}

func (bombDefusal) InitScenario(r *rng.RNG) *models.ScenarioState {
	colors := r.Perm(len(wireColors))
	critical := map[int]bool{}
	for _, i := range r.Perm(BombWireCount)[:BombCriticalWires] {
		critical[i] = true
	}
	wires := make([]models.Wire, BombWireCount)
	for i := range wires {
		wires[i] = models.Wire{
			ID:       fmt.Sprintf("w%d", i+1),
			Color:    wireColors[colors[i]],
			Critical: critical[i],
		}
	}

	glyphs := r.Perm(len(keypadGlyph))
	shown := make([]string, BombKeypadShown)
	for i := range shown {
		shown[i] = keypadGlyph[glyphs[i]]
	}
	order := r.Perm(BombKeypadShown)
	target := make([]string, BombSequenceLength)
	for i := range target {
		target[i] = shown[order[i]]
	}

	return models.NewBombScenario(&models.BombScenario{
		Wires:      wires,
		Keypad:     models.Keypad{Symbols: shown, Target: target, Entered: []string{}},
		MaxStrikes: BombMaxStrikes,
		TimerSec:   BombTimerSec,
	})
}

func (e bombDefusal) OnAction(state *models.RoomState, action Action, now time.Time) ModeMutation {
	bomb := state.Scenario.AsBomb().Clone()
	who := playerName(state, action.PlayerID)

	switch action.Type {
	case ActionCutWire:
		return e.cutWire(state, bomb, action, who, now)
	case ActionPressSymbol:
		return e.pressSymbol(state, bomb, action, who, now)
	case ActionStabilize:
		bomb.TimerSec = min(BombTimerSec, bomb.TimerSec+BombStabilizeTimerSec)
		return ModeMutation{
			PressureDelta: -BombStabilizeRelief,
			Scenario:      models.NewBombScenario(bomb),
			TimelineAdds: []models.TimelineEntry{
				entry(models.TimelineStatus, now, action.PlayerID, "%s stabilized the device (%ds on the timer)", who, bomb.TimerSec),
			},
		}
	default:
		return penalty(BombInvalidPressure, BombInvalidScore,
			entry(models.TimelineInject, now, action.PlayerID, "%s tried an unknown procedure %q", who, action.Type))
	}
}

func (bombDefusal) cutWire(state *models.RoomState, bomb *models.BombScenario, action Action, who string, now time.Time) ModeMutation {
	id, ok := payloadString(action.Payload, "wireId")
	if !ok {
		return penalty(BombInvalidPressure, BombInvalidScore,
			entry(models.TimelineInject, now, action.PlayerID, "%s reached for a wire without saying which one", who))
	}
	w := bomb.WireByID(id)
	if w == nil {
		return penalty(BombInvalidPressure, BombInvalidScore,
			entry(models.TimelineInject, now, action.PlayerID, "%s reached for wire %q, which does not exist", who, id))
	}
	if w.Cut {
		return penalty(BombInvalidPressure, BombInvalidScore,
			entry(models.TimelineInject, now, action.PlayerID, "%s reached for the %s wire, which is already cut", who, w.Color))
	}

	w.Cut = true
	if !w.Critical {
		return strike(bomb, BombWrongCutPressure, BombWrongCutScore,
			entry(models.TimelineInject, now, action.PlayerID, "%s cut the %s wire. Wrong wire! Strike %d of %d", who, w.Color, bomb.Strikes+1, bomb.MaxStrikes), now)
	}

	m := ModeMutation{
		PressureDelta: -BombCriticalCutRelief,
		ScoreDelta:    BombCriticalCutScore,
		TimelineAdds: []models.TimelineEntry{
			entry(models.TimelineStatus, now, action.PlayerID, "%s cut the %s wire. The hum drops a tone.", who, w.Color),
		},
	}
	if bomb.CriticalWiresCut() {
		m.MarkObjectiveIDsComplete = objectiveIDs(state, ActionCutWire)
		m.Summary = "All critical wires are cut."
	}
	resolveIfDefused(&m, bomb, now)
	return m
}

func (bombDefusal) pressSymbol(state *models.RoomState, bomb *models.BombScenario, action Action, who string, now time.Time) ModeMutation {
	sym, ok := payloadString(action.Payload, "symbol")
	if !ok || !contains(bomb.Keypad.Symbols, sym) {
		return penalty(BombInvalidPressure, BombInvalidScore,
			entry(models.TimelineInject, now, action.PlayerID, "%s pressed %q, which is not on the keypad", who, sym))
	}
	if bomb.Keypad.Solved() {
		return penalty(BombInvalidPressure, BombInvalidScore,
			entry(models.TimelineInject, now, action.PlayerID, "%s pressed %s on a keypad that is already solved", who, sym))
	}

	expected := bomb.Keypad.Target[len(bomb.Keypad.Entered)]
	if sym != expected {
		bomb.Keypad.Entered = []string{}
		return strike(bomb, BombWrongSymbolPress, BombWrongSymbolScore,
			entry(models.TimelineInject, now, action.PlayerID, "%s pressed %s out of order. The keypad resets. Strike %d of %d", who, sym, bomb.Strikes+1, bomb.MaxStrikes), now)
	}

	bomb.Keypad.Entered = append(bomb.Keypad.Entered, sym)
	m := ModeMutation{
		ScoreDelta: BombSymbolScore,
		TimelineAdds: []models.TimelineEntry{
			entry(models.TimelineStatus, now, action.PlayerID, "%s pressed %s (%d/%d)", who, sym, len(bomb.Keypad.Entered), len(bomb.Keypad.Target)),
		},
	}
	if bomb.Keypad.Solved() {
		m.MarkObjectiveIDsComplete = objectiveIDs(state, ActionPressSymbol)
		m.Summary = "Keypad accepted the sequence."
	}
	resolveIfDefused(&m, bomb, now)
	return m
}

// strike records a strike on bomb and fails the room once the limit is reached.
func strike(bomb *models.BombScenario, pressure, score int, inject models.TimelineEntry, now time.Time) ModeMutation {
	bomb.Strikes++
	m := penalty(pressure, score, inject)
	if bomb.Strikes >= bomb.MaxStrikes {
		m.Status = models.StatusFailed
		m.Summary = "Too many strikes. The device detonated."
		m.TimelineAdds = append(m.TimelineAdds, entry(models.TimelineInject, now, "", "Strike limit reached. The device detonated."))
	}
	m.Scenario = models.NewBombScenario(bomb)
	return m
}

func resolveIfDefused(m *ModeMutation, bomb *models.BombScenario, now time.Time) {
	if bomb.CriticalWiresCut() && bomb.Keypad.Solved() {
		m.Status = models.StatusResolved
		m.Summary = "Device defused. The hub is safe."
		m.TimelineAdds = append(m.TimelineAdds, entry(models.TimelineStatus, now, "", "The device is defused."))
	}
	m.Scenario = models.NewBombScenario(bomb)
}

func (bombDefusal) OnTick(state *models.RoomState, now time.Time) ModeMutation {
	bomb := state.Scenario.AsBomb().Clone()
	bomb.TimerSec = max(0, bomb.TimerSec-BombTickStepSec)
	m := ModeMutation{
		PressureDelta: BombTickPressure,
		Summary:       fmt.Sprintf("%ds left on the device. Strikes %d of %d.", bomb.TimerSec, bomb.Strikes, bomb.MaxStrikes),
		Scenario:      models.NewBombScenario(bomb),
	}
	switch {
	case bomb.TimerSec == 0:
		m.Status = models.StatusFailed
		m.Summary = "The timer ran out. The device detonated."
		m.TimelineAdds = []models.TimelineEntry{entry(models.TimelineInject, now, "", "The timer reached zero. The device detonated.")}
	case bomb.TimerSec <= 60:
		m.TimelineAdds = []models.TimelineEntry{entry(models.TimelineInject, now, "", "Under a minute left on the device.")}
	}
	return m
}

func objectiveIDs(state *models.RoomState, action string) []string {
	var ids []string
	for _, o := range state.Objectives {
		if o.RequiredAction == action && !o.Completed {
			ids = append(ids, o.ID)
		}
	}
	return ids
}

func contains(items []string, v string) bool {
	for _, it := range items {
		if it == v {
			return true
		}
	}
	return false
}
