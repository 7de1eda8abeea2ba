// Package reducer merges engine output into room state under the room invariants:
// pressure stays within [0,100], score never goes negative, objectives only complete,
// the timeline only grows and status only moves forward.
package reducer

import (
	"fmt"
	"time"

	"github.com/jason-s-yu/drillroom/internal/engine"
	"github.com/jason-s-yu/drillroom/internal/models"
)

const (
	MinPressure = 0
	MaxPressure = 100
)

// Messages synthesized by Finalize.
const (
	PressureFailureMessage = "Pressure hit the limit. The team lost control of the situation."
	ResolvedMessage        = "Scenario resolved successfully."
)

// Apply returns a copy of state with m applied. state itself is left untouched.
func Apply(state *models.RoomState, m engine.ModeMutation, now time.Time) *models.RoomState {
	next := state.Clone()

	next.Pressure = clamp(next.Pressure+m.PressureDelta, MinPressure, MaxPressure)
	next.Score = max(0, next.Score+m.ScoreDelta)
	if m.Summary != "" {
		next.PublicSummary = m.Summary
	}
	for _, id := range m.MarkObjectiveIDsComplete {
		for i := range next.Objectives {
			if next.Objectives[i].ID == id {
				next.Objectives[i].Completed = true
			}
		}
	}
	if m.Scenario != nil {
		next.Scenario = m.Scenario.Clone()
	}
	AppendTimeline(next, now, m.TimelineAdds...)
	if m.Status != "" {
		Transition(next, m.Status, now)
	}
	return next
}

// Transition moves state to status when that keeps the lifecycle monotonic and stamps
// the end time on terminal statuses. It reports whether the status changed.
func Transition(state *models.RoomState, status models.Status, now time.Time) bool {
	if !state.Status.CanAdvanceTo(status) {
		return false
	}
	state.Status = status
	if status.Terminal() && state.EndedAtEpochMs == nil {
		state.EndedAtEpochMs = models.Int64Ptr(now.UnixMilli())
	}
	return true
}

// AppendTimeline appends entries in order, assigning ids and keeping timestamps monotonic.
func AppendTimeline(state *models.RoomState, now time.Time, entries ...models.TimelineEntry) {
	for _, e := range entries {
		if e.AtEpochMs == 0 {
			e.AtEpochMs = now.UnixMilli()
		}
		if n := len(state.Timeline); n > 0 && e.AtEpochMs < state.Timeline[n-1].AtEpochMs {
			e.AtEpochMs = state.Timeline[n-1].AtEpochMs
		}
		e.ID = fmt.Sprintf("evt-%04d", len(state.Timeline)+1)
		state.Timeline = append(state.Timeline, e)
	}
}

// Finalize enforces the invariants that no single mutation can express. It runs after
// every action and tick on the state returned by Apply, which it modifies in place.
// prev is the status before the operation began.
func Finalize(prev models.Status, state *models.RoomState, now time.Time) {
	if state.Status == models.StatusRunning && state.Pressure >= MaxPressure {
		Transition(state, models.StatusFailed, now)
		state.PublicSummary = PressureFailureMessage
		AppendTimeline(state, now, models.TimelineEntry{
			Kind:      models.TimelineInject,
			Message:   PressureFailureMessage,
			AtEpochMs: now.UnixMilli(),
		})
	}
	if prev != models.StatusResolved && state.Status == models.StatusResolved {
		AppendTimeline(state, now, models.TimelineEntry{
			Kind:      models.TimelineSystem,
			Message:   ResolvedMessage,
			AtEpochMs: now.UnixMilli(),
		})
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
