// internal/models/room.go
package models

// Status is the lifecycle position of a room. It only ever moves forward.
type Status string

const (
	StatusLobby    Status = "lobby"
	StatusRunning  Status = "running"
	StatusResolved Status = "resolved"
	StatusFailed   Status = "failed"
)

// Terminal reports whether no further transition is possible.
func (s Status) Terminal() bool {
	return s == StatusResolved || s == StatusFailed
}

func (s Status) rank() int {
	switch s {
	case StatusLobby:
		return 0
	case StatusRunning:
		return 1
	case StatusResolved, StatusFailed:
		return 2
	}
	return -1
}

// CanAdvanceTo reports whether moving from s to next keeps the lifecycle monotonic.
func (s Status) CanAdvanceTo(next Status) bool {
	if s.Terminal() || next.rank() < 0 {
		return false
	}
	return next.rank() > s.rank()
}

// Mode identifies the scenario variant played in a room.
type Mode string

const (
	ModeSevEscalation   Mode = "sev_escalation"
	ModeCommsCrisis     Mode = "comms_crisis"
	ModeBombDefusal     Mode = "bomb_defusal"
	ModeBushfireCommand Mode = "bushfire_command"
)

// Modes lists every supported mode in a stable order.
var Modes = []Mode{ModeSevEscalation, ModeCommsCrisis, ModeBombDefusal, ModeBushfireCommand}

// Valid reports whether m is one of the supported modes.
func (m Mode) Valid() bool {
	for _, known := range Modes {
		if m == known {
			return true
		}
	}
	return false
}

// TimelineKind classifies a timeline entry.
type TimelineKind string

const (
	TimelineInject TimelineKind = "inject"
	TimelineStatus TimelineKind = "status"
	TimelineSystem TimelineKind = "system"
)

// TimelineEntry is one line of the append-only room log.
type TimelineEntry struct {
	ID         string       `json:"id"`
	Kind       TimelineKind `json:"kind"`
	Message    string       `json:"message"`
	AtEpochMs  int64        `json:"atEpochMs"`
	ByPlayerID string       `json:"byPlayerId,omitempty"`
}

// Objective is a checklist item completed by one specific action type.
type Objective struct {
	ID             string `json:"id"`
	Description    string `json:"description"`
	RequiredAction string `json:"requiredAction"`
	Completed      bool   `json:"completed"`
}

// RedactedSecret replaces the GM secret in every outward-facing snapshot.
const RedactedSecret = "********"

// RoomState is the authoritative state of one room. Only the owning room actor mutates it.
type RoomState struct {
	RoomCode string `json:"roomCode"`
	Mode     Mode   `json:"mode"`
	Status   Status `json:"status"`
	Seed     string `json:"seed"`

	CreatedAtEpochMs  int64  `json:"createdAtEpochMs"`
	StartedAtEpochMs  *int64 `json:"startedAtEpochMs,omitempty"`
	EndedAtEpochMs    *int64 `json:"endedAtEpochMs,omitempty"`
	NextTickAtEpochMs *int64 `json:"nextTickAtEpochMs,omitempty"`

	Pressure int `json:"pressure"`
	Score    int `json:"score"`

	Players    []Player        `json:"players"`
	Objectives []Objective     `json:"objectives"`
	Timeline   []TimelineEntry `json:"timeline"`

	PublicSummary string `json:"publicSummary"`

	// GMSecret holds the argon2id encoding of the GM capability, never the raw token.
	GMSecret string `json:"gmSecret"`

	Scenario *ScenarioState `json:"scenario,omitempty"`
}

// Clone returns a deep copy of the state.
func (s *RoomState) Clone() *RoomState {
	if s == nil {
		return nil
	}
	c := *s
	c.StartedAtEpochMs = cloneInt64(s.StartedAtEpochMs)
	c.EndedAtEpochMs = cloneInt64(s.EndedAtEpochMs)
	c.NextTickAtEpochMs = cloneInt64(s.NextTickAtEpochMs)
	c.Players = cloneSlice(s.Players)
	c.Objectives = cloneSlice(s.Objectives)
	c.Timeline = cloneSlice(s.Timeline)
	c.Scenario = s.Scenario.Clone()
	return &c
}

// PlayerByID returns the player with the given id, or nil.
func (s *RoomState) PlayerByID(id string) *Player {
	for i := range s.Players {
		if s.Players[i].ID == id {
			return &s.Players[i]
		}
	}
	return nil
}

// NextObjective returns the first incomplete objective, or nil when all are done.
func (s *RoomState) NextObjective() *Objective {
	for i := range s.Objectives {
		if !s.Objectives[i].Completed {
			return &s.Objectives[i]
		}
	}
	return nil
}

// ObjectiveFor returns the first objective bound to the given action type, or nil.
func (s *RoomState) ObjectiveFor(actionType string) *Objective {
	for i := range s.Objectives {
		if s.Objectives[i].RequiredAction == actionType {
			return &s.Objectives[i]
		}
	}
	return nil
}

// ElapsedMs is the running time of the room at now, or 0 before start.
func (s *RoomState) ElapsedMs(nowMs int64) int64 {
	if s.StartedAtEpochMs == nil {
		return 0
	}
	return nowMs - *s.StartedAtEpochMs
}

// Snapshot is the outward-facing view of a room.
type Snapshot struct {
	RoomState
	View any `json:"view,omitempty"`
}

// Redacted returns a deep copy safe to publish: the GM secret is masked.
func (s *RoomState) Redacted() Snapshot {
	c := s.Clone()
	c.GMSecret = RedactedSecret
	return Snapshot{RoomState: *c}
}

func cloneInt64(v *int64) *int64 {
	if v == nil {
		return nil
	}
	n := *v
	return &n
}

// Int64Ptr is a small helper for the optional epoch fields.
func Int64Ptr(v int64) *int64 {
	return &v
}

func cloneSlice[T any](s []T) []T {
	if s == nil {
		return nil
	}
	return append(make([]T, 0, len(s)), s...)
}
