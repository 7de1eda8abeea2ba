// internal/models/scenario.go
package models

import "fmt"

// ScenarioKind is the discriminant of ScenarioState.
type ScenarioKind string

const (
	ScenarioBomb     ScenarioKind = "bomb"
	ScenarioBushfire ScenarioKind = "bushfire"
)

// ScenarioState is the mode-specific nested world of a room. Exactly one variant
// pointer is set and it always matches Kind; check Kind before reaching for a variant.
type ScenarioState struct {
	Kind     ScenarioKind      `json:"kind"`
	Bomb     *BombScenario     `json:"bomb,omitempty"`
	Bushfire *BushfireScenario `json:"bushfire,omitempty"`
}

// NewBombScenario wraps b in a tagged scenario.
func NewBombScenario(b *BombScenario) *ScenarioState {
	return &ScenarioState{Kind: ScenarioBomb, Bomb: b}
}

// NewBushfireScenario wraps b in a tagged scenario.
func NewBushfireScenario(b *BushfireScenario) *ScenarioState {
	return &ScenarioState{Kind: ScenarioBushfire, Bushfire: b}
}

// AsBomb returns the bomb variant. Calling it on any other variant is a programming error.
func (s *ScenarioState) AsBomb() *BombScenario {
	if s == nil || s.Kind != ScenarioBomb || s.Bomb == nil {
		panic(fmt.Sprintf("scenario: bomb variant requested from %q", s.kind()))
	}
	return s.Bomb
}

// AsBushfire returns the bushfire variant. Calling it on any other variant is a programming error.
func (s *ScenarioState) AsBushfire() *BushfireScenario {
	if s == nil || s.Kind != ScenarioBushfire || s.Bushfire == nil {
		panic(fmt.Sprintf("scenario: bushfire variant requested from %q", s.kind()))
	}
	return s.Bushfire
}

func (s *ScenarioState) kind() ScenarioKind {
	if s == nil {
		return ""
	}
	return s.Kind
}

// Clone deep-copies the scenario.
func (s *ScenarioState) Clone() *ScenarioState {
	if s == nil {
		return nil
	}
	c := &ScenarioState{Kind: s.Kind}
	switch s.Kind {
	case ScenarioBomb:
		c.Bomb = s.Bomb.Clone()
	case ScenarioBushfire:
		c.Bushfire = s.Bushfire.Clone()
	}
	return c
}

// Wire is one wire on the simulated device.
type Wire struct {
	ID       string `json:"id"`
	Color    string `json:"color"`
	Cut      bool   `json:"cut"`
	Critical bool   `json:"critical"`
}

// Keypad is the symbol module: Target must be entered in order.
type Keypad struct {
	Symbols []string `json:"symbols"`
	Target  []string `json:"target"`
	Entered []string `json:"entered"`
}

// Solved reports whether the full target sequence has been entered.
func (k Keypad) Solved() bool {
	return len(k.Target) > 0 && len(k.Entered) == len(k.Target)
}

// BombScenario is the nested state of the bomb defusal mode.
type BombScenario struct {
	Wires      []Wire `json:"wires"`
	Keypad     Keypad `json:"keypad"`
	Strikes    int    `json:"strikes"`
	MaxStrikes int    `json:"maxStrikes"`
	TimerSec   int    `json:"timerSec"`
}

// Clone deep-copies the bomb scenario.
func (b *BombScenario) Clone() *BombScenario {
	if b == nil {
		return nil
	}
	c := *b
	c.Wires = cloneSlice(b.Wires)
	c.Keypad = Keypad{
		Symbols: cloneSlice(b.Keypad.Symbols),
		Target:  cloneSlice(b.Keypad.Target),
		Entered: cloneSlice(b.Keypad.Entered),
	}
	return &c
}

// WireByID returns the wire with the given id, or nil.
func (b *BombScenario) WireByID(id string) *Wire {
	for i := range b.Wires {
		if b.Wires[i].ID == id {
			return &b.Wires[i]
		}
	}
	return nil
}

// CriticalWiresCut reports whether every critical wire has been cut.
func (b *BombScenario) CriticalWiresCut() bool {
	found := false
	for _, w := range b.Wires {
		if w.Critical {
			found = true
			if !w.Cut {
				return false
			}
		}
	}
	return found
}

// Wind drives the direction and rate of fire spread.
type Wind struct {
	Direction string `json:"direction"`
	Strength  int    `json:"strength"`
}

// FireCell is one named area of the bushfire map.
type FireCell struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Row        int    `json:"row"`
	Col        int    `json:"col"`
	Fire       int    `json:"fire"`
	Fuel       int    `json:"fuel"`
	Population int    `json:"population"`
	Crew       bool   `json:"crew"`
	Police     bool   `json:"police"`
	Firebreak  bool   `json:"firebreak"`
}

// BushfireScenario is the nested state of the bushfire command mode.
type BushfireScenario struct {
	Rows        int        `json:"rows"`
	Cols        int        `json:"cols"`
	Cells       []FireCell `json:"cells"`
	Wind        Wind       `json:"wind"`
	Containment int        `json:"containment"`
	Anxiety     int        `json:"anxiety"`
	Trust       int        `json:"trust"`
	TimerSec    int        `json:"timerSec"`
}

// Clone deep-copies the bushfire scenario.
func (b *BushfireScenario) Clone() *BushfireScenario {
	if b == nil {
		return nil
	}
	c := *b
	c.Cells = cloneSlice(b.Cells)
	return &c
}

// CellByID returns the cell with the given id, or nil.
func (b *BushfireScenario) CellByID(id string) *FireCell {
	for i := range b.Cells {
		if b.Cells[i].ID == id {
			return &b.Cells[i]
		}
	}
	return nil
}

// CellAt returns the cell at row/col, or nil when outside the grid.
func (b *BushfireScenario) CellAt(row, col int) *FireCell {
	if row < 0 || col < 0 || row >= b.Rows || col >= b.Cols {
		return nil
	}
	for i := range b.Cells {
		if b.Cells[i].Row == row && b.Cells[i].Col == col {
			return &b.Cells[i]
		}
	}
	return nil
}
