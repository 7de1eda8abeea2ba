package engine

import (
	"fmt"

	"github.com/jason-s-yu/drillroom/internal/models"
)

// DeviceReadout is what the bomb specialist sees on site.
type DeviceReadout struct {
	Wires      []WireReadout `json:"wires"`
	Keypad     []string      `json:"keypad"`
	Entered    int           `json:"entered"`
	Strikes    int           `json:"strikes"`
	MaxStrikes int           `json:"maxStrikes"`
	TimerSec   int           `json:"timerSec"`
}

// WireReadout hides which wires are critical.
type WireReadout struct {
	ID    string `json:"id"`
	Color string `json:"color"`
	Cut   bool   `json:"cut"`
}

// ManualView is the analyst's copy of the defusal manual for this device.
type ManualView struct {
	Clues   []string `json:"clues"`
	Strikes int      `json:"strikes"`
}

// CoordinatorView only shows the clock and strike count.
type CoordinatorView struct {
	Message    string `json:"message"`
	Strikes    int    `json:"strikes"`
	MaxStrikes int    `json:"maxStrikes"`
	TimerSec   int    `json:"timerSec"`
}

func (bombDefusal) ScenarioView(state *models.RoomState, role string) any {
	bomb := state.Scenario.AsBomb()
	switch role {
	case RoleBombSpecialist:
		v := DeviceReadout{
			Keypad:     append([]string(nil), bomb.Keypad.Symbols...),
			Entered:    len(bomb.Keypad.Entered),
			Strikes:    bomb.Strikes,
			MaxStrikes: bomb.MaxStrikes,
			TimerSec:   bomb.TimerSec,
		}
		for _, w := range bomb.Wires {
			v.Wires = append(v.Wires, WireReadout{ID: w.ID, Color: w.Color, Cut: w.Cut})
		}
		return v
	case RoleBombAnalyst:
		v := ManualView{Strikes: bomb.Strikes}
		for _, w := range bomb.Wires {
			if w.Critical {
				v.Clues = append(v.Clues, fmt.Sprintf("The %s wire carries the trigger. Cut it.", w.Color))
			}
		}
		for i, sym := range bomb.Keypad.Target {
			v.Clues = append(v.Clues, fmt.Sprintf("Keypad position %d: %s.", i+1, sym))
		}
		return v
	case RoleBombCoordinator:
		return CoordinatorView{
			Message:    NoAccessMessage,
			Strikes:    bomb.Strikes,
			MaxStrikes: bomb.MaxStrikes,
			TimerSec:   bomb.TimerSec,
		}
	}
	return NoAccessView{Role: role, Message: NoAccessMessage}
}

// FireGridView is the operations picture of the fire ground.
type FireGridView struct {
	Wind        models.Wind       `json:"wind"`
	Containment int               `json:"containment"`
	TimerSec    int               `json:"timerSec"`
	Cells       []models.FireCell `json:"cells"`
}

// CommunityView is the public information officer's picture.
type CommunityView struct {
	Anxiety     int              `json:"anxiety"`
	Trust       int              `json:"trust"`
	Communities []CommunityEntry `json:"communities"`
}

// CommunityEntry describes one populated cell.
type CommunityEntry struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Population int    `json:"population"`
	Threatened bool   `json:"threatened"`
	Roadblock  bool   `json:"roadblock"`
}

// ControllerView is the incident controller's full picture.
type ControllerView struct {
	FireGridView
	Anxiety int `json:"anxiety"`
	Trust   int `json:"trust"`
}

func (bushfireCommand) ScenarioView(state *models.RoomState, role string) any {
	b := state.Scenario.AsBushfire()
	grid := FireGridView{
		Wind:        b.Wind,
		Containment: b.Containment,
		TimerSec:    b.TimerSec,
		Cells:       append([]models.FireCell(nil), b.Cells...),
	}
	switch role {
	case RoleIncidentController:
		return ControllerView{FireGridView: grid, Anxiety: b.Anxiety, Trust: b.Trust}
	case RoleOperations:
		return grid
	case RolePublicInformation, RolePoliceLiaison:
		v := CommunityView{Anxiety: b.Anxiety, Trust: b.Trust}
		for _, c := range b.Cells {
			if c.Population == 0 {
				continue
			}
			v.Communities = append(v.Communities, CommunityEntry{
				ID:         c.ID,
				Name:       c.Name,
				Population: c.Population,
				Threatened: c.Fire > 0 || adjacentFire(b, c),
				Roadblock:  c.Police,
			})
		}
		return v
	}
	return NoAccessView{Role: role, Message: NoAccessMessage}
}

func adjacentFire(b *models.BushfireScenario, c models.FireCell) bool {
	for _, d := range neighbours {
		if n := b.CellAt(c.Row+d[0], c.Col+d[1]); n != nil && n.Fire >= IgnitionThreshold {
			return true
		}
	}
	return false
}
