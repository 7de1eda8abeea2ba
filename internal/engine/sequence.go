package engine

import (
	"time"

	"github.com/jason-s-yu/drillroom/internal/models"
	"github.com/jason-s-yu/drillroom/internal/rng"
)

// Sequence-gated scoring.
const (
	SequenceStepScore       = 10
	SequenceStepRelief      = 4
	SequenceMisstepPressure = 8
	SequenceMisstepScore    = 5
	SequenceTickPressure    = 3
)

type step struct {
	id          string
	action      string
	description string
	summary     string
}

// sequenceEngine drives modes whose objectives must be completed strictly in order.
type sequenceEngine struct {
	mode        models.Mode
	roles       []string
	openingLine string
	steps       []step
	ceiling     time.Duration
	injects     []string
	timeoutLine string
}

func (e *sequenceEngine) Mode() models.Mode { return e.mode }
func (e *sequenceEngine) Roles() []string   { return e.roles }
func (e *sequenceEngine) InitSummary() string {
	return e.openingLine
}

func (e *sequenceEngine) InitScenario(*rng.RNG) *models.ScenarioState { return nil }

func (e *sequenceEngine) InitObjectives() []models.Objective {
	out := make([]models.Objective, 0, len(e.steps))
	for _, s := range e.steps {
		out = append(out, models.Objective{
			ID:             s.id,
			Description:    s.description,
			RequiredAction: s.action,
		})
	}
	return out
}

func (e *sequenceEngine) stepFor(id string) step {
	for _, s := range e.steps {
		if s.id == id {
			return s
		}
	}
	return step{}
}

func (e *sequenceEngine) OnAction(state *models.RoomState, action Action, now time.Time) ModeMutation {
	next := state.NextObjective()
	who := playerName(state, action.PlayerID)
	if next == nil {
		return ModeMutation{
			TimelineAdds: []models.TimelineEntry{
				entry(models.TimelineSystem, now, action.PlayerID, "%s acted after every objective was complete", who),
			},
		}
	}

	if action.Type != next.RequiredAction {
		return penalty(SequenceMisstepPressure, SequenceMisstepScore,
			entry(models.TimelineInject, now, action.PlayerID,
				"Out-of-sequence: %s attempted %q while %q is still outstanding", who, action.Type, next.Description))
	}

	s := e.stepFor(next.ID)
	m := ModeMutation{
		PressureDelta:            -SequenceStepRelief,
		ScoreDelta:               SequenceStepScore,
		Summary:                  s.summary,
		MarkObjectiveIDsComplete: []string{next.ID},
		TimelineAdds: []models.TimelineEntry{
			entry(models.TimelineStatus, now, action.PlayerID, "%s completed: %s", who, next.Description),
		},
	}
	if isLastObjective(state, next.ID) {
		m.Status = models.StatusResolved
	}
	return m
}

func (e *sequenceEngine) OnTick(state *models.RoomState, now time.Time) ModeMutation {
	elapsed := time.Duration(state.ElapsedMs(now.UnixMilli())) * time.Millisecond
	if elapsed > e.ceiling {
		return ModeMutation{
			Status:  models.StatusFailed,
			Summary: e.timeoutLine,
			TimelineAdds: []models.TimelineEntry{
				entry(models.TimelineInject, now, "", "%s", e.timeoutLine),
			},
		}
	}
	m := ModeMutation{PressureDelta: SequenceTickPressure}
	if len(e.injects) > 0 {
		line := e.injects[int(elapsed/time.Minute)%len(e.injects)]
		m.TimelineAdds = []models.TimelineEntry{entry(models.TimelineInject, now, "", "%s", line)}
	}
	return m
}

func isLastObjective(state *models.RoomState, id string) bool {
	for _, o := range state.Objectives {
		if o.ID != id && !o.Completed {
			return false
		}
	}
	return true
}
