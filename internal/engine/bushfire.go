package engine

import (
	"fmt"
	"time"

	"github.com/jason-s-yu/drillroom/internal/models"
	"github.com/jason-s-yu/drillroom/internal/rng"
)

// Bushfire simulation tuning.
const (
	BushfireRows             = 3
	BushfireCols             = 4
	BushfireTimerSec         = 900
	BushfireTickStepSec      = 30
	IgnitionThreshold        = 30
	SevereFireLevel          = 60
	GrowthPerWind            = 3
	FuelGrowthDivisor        = 25
	FuelBurnDivisor          = 10
	BurnoutDecay             = 15
	CrewSuppression          = 10
	FirebreakSuppression     = 4
	SpreadDivisor            = 30
	FirebreakSpreadDivisor   = 3
	ContainmentPerBurning    = 8
	ContainmentPerSevere     = 6
	ContainmentTarget        = 90
	ContainmentFloor         = 15
	AnxietyResolveMax        = 35
	AnxietyCeiling           = 100
	AnxietyPerThreatenedTown = 4
	AnxietySevereTownBonus   = 2
	BushfireInitialAnxiety   = 20
	BushfireInitialTrust     = 50
	BushfireTickPressure     = 2
	CrewKnockdown            = 20
	WaterKnockdown           = 30
	FirebreakFuelCut         = 25
	RoadblockAnxietyRelief   = 5
	AdvisoryAnxietyRelief    = 10
	AdvisoryTrustGain        = 10
	BushfireInvalidPressure  = 5
	BushfireInvalidScore     = 3
	BushfireCrewScore        = 5
	BushfireWaterScore       = 5
	BushfireFirebreakScore   = 3
	BushfireRoadblockScore   = 3
	BushfireAdvisoryScore    = 4
	BushfireActionRelief     = 2
	bushfireInitialFireMin   = 25
	bushfireInitialFireMax   = 40
	bushfireInitialIgnitions = 2
	bushfireMinWindStrength  = 2
	bushfireMaxWindStrength  = 4
)

const (
	ActionDeployCrew     = "deploy_crew"
	ActionDropWater      = "drop_water"
	ActionBuildFirebreak = "build_firebreak"
	ActionSetRoadblock   = "set_roadblock"
	ActionIssueAdvisory  = "issue_advisory"
)

const (
	RoleIncidentController = "incident_controller"
	RoleOperations         = "operations"
	RolePublicInformation  = "public_information"
	RolePoliceLiaison      = "police_liaison"
)

// Wind directions name where the wind blows towards.
const (
	WindNorth = "N"
	WindEast  = "E"
	WindSouth = "S"
	WindWest  = "W"
)

type cellSeed struct {
	id, name  string
	fuel, pop int
	ignitable bool
}

var bushfireMap = [BushfireRows][BushfireCols]cellSeed{
	{
		{"ridgeline", "Ridgeline", 70, 0, true},
		{"pine_forest", "Pine Forest", 90, 0, true},
		{"catchment", "Water Catchment", 65, 0, false},
		{"north_farms", "North Farms", 60, 150, false},
	},
	{
		{"gully", "Gully", 75, 0, true},
		{"township", "Township", 40, 4000, false},
		{"junction", "Highway Junction", 30, 50, false},
		{"vineyards", "Vineyards", 50, 300, false},
	},
	{
		{"scrubland", "Scrubland", 80, 0, true},
		{"school", "School Precinct", 35, 1200, false},
		{"caravan_park", "Caravan Park", 45, 600, false},
		{"coast", "Coastal Reserve", 55, 80, false},
	},
}

var windDirections = []string{WindNorth, WindEast, WindSouth, WindWest}

var neighbours = [4][2]int{{-1, 0}, {1, 0}, {0, -1}, {0, 1}}

type bushfireCommand struct{}

func (bushfireCommand) Mode() models.Mode { return models.ModeBushfireCommand }

func (bushfireCommand) Roles() []string {
	return []string{RoleIncidentController, RoleOperations, RolePublicInformation, RolePoliceLiaison}
}

func (bushfireCommand) InitSummary() string {
	return "Fires are burning in the western ranges and the wind is picking up. The township is on alert."
}

func (bushfireCommand) InitObjectives() []models.Objective {
	return []models.Objective{
		{ID: "fire-crews", Description: "Deploy ground crews to the fire front", RequiredAction: ActionDeployCrew},
		{ID: "fire-water", Description: "Conduct an aerial water drop", RequiredAction: ActionDropWater},
		{ID: "fire-break", Description: "Cut a containment firebreak", RequiredAction: ActionBuildFirebreak},
		{ID: "fire-roads", Description: "Close roads around threatened communities", RequiredAction: ActionSetRoadblock},
		{ID: "fire-advice", Description: "Issue a public emergency advisory", RequiredAction: ActionIssueAdvisory},
	}
}

func (bushfireCommand) InitScenario(r *rng.RNG) *models.ScenarioState {
	b := &models.BushfireScenario{
		Rows:     BushfireRows,
		Cols:     BushfireCols,
		Wind:     models.Wind{Direction: rng.Pick(r, windDirections), Strength: r.Range(bushfireMinWindStrength, bushfireMaxWindStrength)},
		Anxiety:  BushfireInitialAnxiety,
		Trust:    BushfireInitialTrust,
		TimerSec: BushfireTimerSec,
	}
	var ignitable []int
	for row := 0; row < BushfireRows; row++ {
		for col := 0; col < BushfireCols; col++ {
			seed := bushfireMap[row][col]
			if seed.ignitable {
				ignitable = append(ignitable, len(b.Cells))
			}
			b.Cells = append(b.Cells, models.FireCell{
				ID:         seed.id,
				Name:       seed.name,
				Row:        row,
				Col:        col,
				Fuel:       seed.fuel,
				Population: seed.pop,
			})
		}
	}
	for _, i := range r.Perm(len(ignitable))[:bushfireInitialIgnitions] {
		b.Cells[ignitable[i]].Fire = r.Range(bushfireInitialFireMin, bushfireInitialFireMax)
	}
	b.Containment = Containment(b)
	return models.NewBushfireScenario(b)
}

// Containment scores how much of the map is under control.
func Containment(b *models.BushfireScenario) int {
	burning, severe := 0, 0
	for _, c := range b.Cells {
		if c.Fire > 0 {
			burning++
		}
		if c.Fire >= SevereFireLevel {
			severe++
		}
	}
	return max(0, 100-ContainmentPerBurning*burning-ContainmentPerSevere*severe)
}

// SpreadFire advances the fire simulation by one step and returns the next map.
// The input is never modified.
func SpreadFire(cur *models.BushfireScenario) *models.BushfireScenario {
	next := cur.Clone()
	spread := make([]int, len(cur.Cells))
	wind := cur.Wind

	for i, c := range cur.Cells {
		if c.Fire <= 0 {
			continue
		}
		if c.Fuel <= 0 {
			next.Cells[i].Fire = max(0, c.Fire-BurnoutDecay)
			continue
		}
		growth := wind.Strength*GrowthPerWind + c.Fuel/FuelGrowthDivisor
		if c.Crew {
			growth -= CrewSuppression
		}
		if c.Firebreak {
			growth -= FirebreakSuppression
		}
		next.Cells[i].Fire = clamp(c.Fire+growth, 0, 100)
		next.Cells[i].Fuel = max(0, c.Fuel-max(1, c.Fire/FuelBurnDivisor))

		if c.Fire < IgnitionThreshold {
			continue
		}
		for _, d := range neighbours {
			n := cur.CellAt(c.Row+d[0], c.Col+d[1])
			if n == nil || n.Fuel <= 0 {
				continue
			}
			amount := c.Fire * wind.Strength / SpreadDivisor
			if downwind(wind.Direction, d[0], d[1]) {
				amount *= 2
			}
			if n.Firebreak {
				amount /= FirebreakSpreadDivisor
			}
			spread[indexOf(cur, n.ID)] += amount
		}
	}

	for i := range next.Cells {
		next.Cells[i].Fire = clamp(next.Cells[i].Fire+spread[i], 0, 100)
	}
	next.Containment = Containment(next)
	return next
}

func downwind(direction string, dRow, dCol int) bool {
	switch direction {
	case WindNorth:
		return dRow == -1
	case WindSouth:
		return dRow == 1
	case WindEast:
		return dCol == 1
	case WindWest:
		return dCol == -1
	}
	return false
}

func indexOf(b *models.BushfireScenario, id string) int {
	for i := range b.Cells {
		if b.Cells[i].ID == id {
			return i
		}
	}
	return -1
}

func (e bushfireCommand) OnTick(state *models.RoomState, now time.Time) ModeMutation {
	cur := state.Scenario.AsBushfire()
	next := SpreadFire(cur)
	next.TimerSec = max(0, cur.TimerSec-BushfireTickStepSec)

	severe := 0
	var adds []models.TimelineEntry
	for i, c := range next.Cells {
		if c.Fire >= SevereFireLevel {
			severe++
		}
		if cur.Cells[i].Fire == 0 && c.Fire > 0 {
			adds = append(adds, entry(models.TimelineInject, now, "", "Spot fire reported at %s.", c.Name))
		}
		if c.Population > 0 && c.Fire > 0 && !c.Police {
			next.Anxiety += AnxietyPerThreatenedTown
			if c.Fire >= SevereFireLevel {
				next.Anxiety += AnxietySevereTownBonus
			}
		}
	}
	next.Anxiety = clamp(next.Anxiety, 0, AnxietyCeiling)

	m := ModeMutation{
		PressureDelta: BushfireTickPressure + severe,
		TimelineAdds:  adds,
	}
	e.evaluate(&m, next, now, true)
	return m
}

func (e bushfireCommand) OnAction(state *models.RoomState, action Action, now time.Time) ModeMutation {
	b := state.Scenario.AsBushfire().Clone()
	who := playerName(state, action.PlayerID)

	var m ModeMutation
	if action.Type == ActionIssueAdvisory {
		b.Anxiety = max(0, b.Anxiety-AdvisoryAnxietyRelief)
		b.Trust = min(100, b.Trust+AdvisoryTrustGain)
		m = ModeMutation{
			ScoreDelta:   BushfireAdvisoryScore,
			TimelineAdds: []models.TimelineEntry{entry(models.TimelineStatus, now, action.PlayerID, "%s issued a public emergency advisory", who)},
		}
	} else {
		if !isCellAction(action.Type) {
			return penalty(BushfireInvalidPressure, BushfireInvalidScore,
				entry(models.TimelineInject, now, action.PlayerID, "%s issued an unknown order %q", who, action.Type))
		}
		id, _ := payloadString(action.Payload, "cellId")
		c := b.CellByID(id)
		if c == nil {
			return penalty(BushfireInvalidPressure, BushfireInvalidScore,
				entry(models.TimelineInject, now, action.PlayerID, "%s sent resources to %q, which is not on the map", who, id))
		}
		var ok bool
		m, ok = applyCellOrder(b, c, action, who, now)
		if !ok {
			return m
		}
	}

	m.PressureDelta -= BushfireActionRelief
	m.MarkObjectiveIDsComplete = objectiveIDs(state, action.Type)
	b.Containment = Containment(b)
	e.evaluate(&m, b, now, false)
	return m
}

func isCellAction(t string) bool {
	switch t {
	case ActionDeployCrew, ActionDropWater, ActionBuildFirebreak, ActionSetRoadblock:
		return true
	}
	return false
}

func applyCellOrder(b *models.BushfireScenario, c *models.FireCell, action Action, who string, now time.Time) (ModeMutation, bool) {
	status := func(score int, format string, args ...any) (ModeMutation, bool) {
		return ModeMutation{
			ScoreDelta:   score,
			TimelineAdds: []models.TimelineEntry{entry(models.TimelineStatus, now, action.PlayerID, format, args...)},
		}, true
	}
	switch action.Type {
	case ActionDeployCrew:
		c.Crew = true
		c.Fire = max(0, c.Fire-CrewKnockdown)
		return status(BushfireCrewScore, "%s deployed a ground crew to %s", who, c.Name)
	case ActionDropWater:
		c.Fire = max(0, c.Fire-WaterKnockdown)
		return status(BushfireWaterScore, "%s called a water drop on %s", who, c.Name)
	case ActionBuildFirebreak:
		if c.Firebreak {
			return penalty(BushfireInvalidPressure, BushfireInvalidScore,
				entry(models.TimelineInject, now, action.PlayerID, "%s ordered a second firebreak at %s; crews were wasted", who, c.Name)), false
		}
		c.Firebreak = true
		c.Fuel = max(0, c.Fuel-FirebreakFuelCut)
		return status(BushfireFirebreakScore, "%s cut a firebreak at %s", who, c.Name)
	case ActionSetRoadblock:
		c.Police = true
		if c.Population > 0 {
			b.Anxiety = max(0, b.Anxiety-RoadblockAnxietyRelief)
		}
		return status(BushfireRoadblockScore, "%s set roadblocks around %s", who, c.Name)
	}
	return ModeMutation{}, false
}

// evaluate applies the win and loss conditions to m for the post-step map b.
func (bushfireCommand) evaluate(m *ModeMutation, b *models.BushfireScenario, now time.Time, ticked bool) {
	m.Scenario = models.NewBushfireScenario(b)
	m.Summary = fmt.Sprintf("Containment %d%%, anxiety %d, wind %s at %d.", b.Containment, b.Anxiety, b.Wind.Direction, b.Wind.Strength)

	fail := func(line string) {
		m.Status = models.StatusFailed
		m.Summary = line
		m.TimelineAdds = append(m.TimelineAdds, entry(models.TimelineInject, now, "", "%s", line))
	}
	switch {
	case ticked && b.TimerSec == 0:
		fail("The operational period ended with the fire still uncontained.")
	case b.Anxiety >= AnxietyCeiling:
		fail("Public panic has overwhelmed the evacuation routes.")
	case b.Containment <= ContainmentFloor:
		fail("The fire has broken every containment line.")
	case b.Containment >= ContainmentTarget && b.Anxiety < AnxietyResolveMax:
		m.Status = models.StatusResolved
		m.Summary = "The fire is contained and the community is calm."
		m.TimelineAdds = append(m.TimelineAdds, entry(models.TimelineStatus, now, "", "Containment target reached."))
	}
}
