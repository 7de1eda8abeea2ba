package room

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/jason-s-yu/drillroom/internal/auth"
	"github.com/jason-s-yu/drillroom/internal/engine"
	"github.com/jason-s-yu/drillroom/internal/models"
	"github.com/jason-s-yu/drillroom/internal/reducer"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var ctx = context.Background()

func TestInitCreatesLobby(t *testing.T) {
	f := newFixture(t)
	r, res := f.create(t, models.ModeBombDefusal)

	snap := res.Snapshot
	assert.Equal(t, models.StatusLobby, snap.Status)
	assert.Equal(t, models.RedactedSecret, snap.GMSecret)
	assert.Equal(t, "fixed-seed", snap.Seed)
	require.Len(t, snap.Players, 1)
	assert.Equal(t, res.GMPlayerID, snap.Players[0].ID)
	assert.True(t, snap.Players[0].IsGameMaster)
	assert.Equal(t, engine.RoleBombCoordinator, snap.Players[0].Role)
	require.Len(t, snap.Timeline, 1)
	assert.Equal(t, models.TimelineSystem, snap.Timeline[0].Kind)
	assert.Len(t, snap.Objectives, 2)
	assert.NotNil(t, snap.Scenario)

	stored, err := f.store.Memory.Load(ctx, r.Code())
	require.NoError(t, err)
	assert.NotEqual(t, res.GMSecret, stored.GMSecret, "only the hash is persisted")
	ok, err := auth.VerifySecret(res.GMSecret, stored.GMSecret)
	require.NoError(t, err)
	assert.True(t, ok)

	saves, _ := f.store.counts()
	_, err = f.mgr.Init(ctx, r.Code(), "Other", models.ModeSevEscalation, "")
	assert.ErrorIs(t, err, ErrAlreadyInitialized)
	after, _ := f.store.counts()
	assert.Equal(t, saves, after, "rejections never persist")
}

func TestInitRejectsBadInput(t *testing.T) {
	f := newFixture(t)

	_, err := f.mgr.Init(ctx, "EMPTY1", "Gail", "poker", "")
	assert.ErrorIs(t, err, ErrInvalidMode)
	_, err = f.mgr.Init(ctx, "EMPTY1", "   ", models.ModeCommsCrisis, "")
	assert.ErrorIs(t, err, ErrInvalidAction)
	assert.Zero(t, f.mgr.Loaded(), "failed inits leave nothing cached")

	_, err = f.mgr.Room(ctx, "EMPTY1")
	assert.ErrorIs(t, err, ErrNotInitialized)
	saves, _ := f.store.counts()
	assert.Zero(t, saves)
}

func TestUninitializedActorRejectsOperations(t *testing.T) {
	f := newFixture(t)
	r, err := f.mgr.actor(ctx, "EMPTY2")
	require.NoError(t, err)

	_, err = r.QueryState("")
	assert.ErrorIs(t, err, ErrNotInitialized)
	_, err = r.Join(ctx, "Pat", "")
	assert.ErrorIs(t, err, ErrNotInitialized)
	_, err = r.Start(ctx, "secret")
	assert.ErrorIs(t, err, ErrNotInitialized)
	_, err = r.SubmitAction(ctx, "p", "x", nil)
	assert.ErrorIs(t, err, ErrNotInitialized)
	assert.ErrorIs(t, r.Subscribe("c1", "", &mockSink{}), ErrNotInitialized)
}

func TestUnknownCodesAreNotCached(t *testing.T) {
	f := newFixture(t)
	for _, code := range []string{"AAAAAA", "BBBBBB", "CCCCCC"} {
		_, err := f.mgr.Room(ctx, code)
		assert.ErrorIs(t, err, ErrNotInitialized)
	}
	assert.Zero(t, f.mgr.Loaded())
}

func TestReleasedActorIsReplacedOnInit(t *testing.T) {
	f := newFixture(t)
	stale, err := f.mgr.actor(ctx, "RETIRE")
	require.NoError(t, err)
	f.mgr.release(stale)

	_, err = stale.initialize(ctx, "Gail", models.ModeSevEscalation, "")
	assert.ErrorIs(t, err, errRetired)

	res, err := f.mgr.Init(ctx, "RETIRE", "Gail", models.ModeSevEscalation, "")
	require.NoError(t, err)
	r, err := f.mgr.Room(ctx, "RETIRE")
	require.NoError(t, err)
	assert.NotSame(t, stale, r)
	assert.Equal(t, res.Snapshot.RoomCode, r.Code())
}

func TestDefaultSeedIsRecorded(t *testing.T) {
	f := newFixture(t)
	res, err := f.mgr.Init(ctx, "SEED01", "Gail", models.ModeBushfireCommand, "")
	require.NoError(t, err)
	assert.Equal(t, "SEED01:1700000000000", res.Snapshot.Seed)
}

func TestJoinRoles(t *testing.T) {
	f := newFixture(t)
	r, _ := f.create(t, models.ModeBushfireCommand)

	cases := []struct {
		preferred string
		want      string
	}{
		{"", engine.RoleOperations},
		{engine.RolePoliceLiaison, engine.RolePoliceLiaison},
		{engine.RoleIncidentController, engine.RoleOperations},
		{"astronaut", engine.RoleOperations},
	}
	for _, tc := range cases {
		res, err := r.Join(ctx, "Pat", tc.preferred)
		require.NoError(t, err)
		p := res.Snapshot.PlayerByID(res.PlayerID)
		require.NotNil(t, p)
		assert.Equal(t, tc.want, p.Role, tc.preferred)
		assert.False(t, p.IsGameMaster)
	}

	_, err := r.Join(ctx, "", "")
	assert.ErrorIs(t, err, ErrInvalidAction)
}

func TestJoinAfterStartIsRejected(t *testing.T) {
	f := newFixture(t)
	r, _, _ := f.running(t, models.ModeSevEscalation, "")

	before, err := r.QueryState("")
	require.NoError(t, err)
	_, err = r.Join(ctx, "Late", "")
	assert.ErrorIs(t, err, ErrGameAlreadyStarted)
	after, err := r.QueryState("")
	require.NoError(t, err)
	assert.Equal(t, before.Players, after.Players)
}

func TestStartRequiresSecret(t *testing.T) {
	f := newFixture(t)
	r, res := f.create(t, models.ModeCommsCrisis)

	_, err := r.Start(ctx, "not-the-secret")
	assert.ErrorIs(t, err, ErrUnauthorized)
	_, err = r.Start(ctx, "")
	assert.ErrorIs(t, err, ErrUnauthorized)
	snap, err := r.QueryState("")
	require.NoError(t, err)
	assert.Equal(t, models.StatusLobby, snap.Status)
	_, scheduled := f.sched.at(r.Code())
	assert.False(t, scheduled)

	snap, err = r.Start(ctx, res.GMSecret)
	require.NoError(t, err)
	assert.Equal(t, models.StatusRunning, snap.Status)
	require.NotNil(t, snap.StartedAtEpochMs)
	assert.Equal(t, f.clock.Now().UnixMilli(), *snap.StartedAtEpochMs)

	at, scheduled := f.sched.at(r.Code())
	require.True(t, scheduled)
	assert.Equal(t, f.clock.Now().Add(DefaultTickInterval), at)
	require.NotNil(t, snap.NextTickAtEpochMs)
	assert.Equal(t, at.UnixMilli(), *snap.NextTickAtEpochMs)

	_, err = r.Start(ctx, res.GMSecret)
	assert.ErrorIs(t, err, ErrAlreadyRunning)
}

func TestSubmitActionValidation(t *testing.T) {
	f := newFixture(t)
	r, res := f.create(t, models.ModeSevEscalation)
	_, err := r.SubmitAction(ctx, res.GMPlayerID, "acknowledge_incident", nil)
	assert.ErrorIs(t, err, ErrNotRunning)

	_, err = r.Start(ctx, res.GMSecret)
	require.NoError(t, err)
	_, err = r.SubmitAction(ctx, "ghost", "acknowledge_incident", nil)
	assert.ErrorIs(t, err, ErrInvalidPlayer)
	_, err = r.SubmitAction(ctx, res.GMPlayerID, " ", nil)
	assert.ErrorIs(t, err, ErrInvalidAction)
}

func TestSequenceModeOutOfOrderThenCorrect(t *testing.T) {
	f := newFixture(t)
	r, _, pid := f.running(t, models.ModeSevEscalation, "sre")

	snap, err := r.SubmitAction(ctx, pid, "stabilize_service", nil)
	require.NoError(t, err, "penalties are not errors")
	assert.Equal(t, engine.SequenceMisstepPressure, snap.Pressure)
	assert.Zero(t, snap.Score)
	assert.False(t, snap.Objectives[0].Completed)
	last := snap.Timeline[len(snap.Timeline)-1]
	assert.Equal(t, models.TimelineInject, last.Kind)
	assert.Equal(t, pid, last.ByPlayerID)

	snap, err = r.SubmitAction(ctx, pid, "acknowledge_incident", nil)
	require.NoError(t, err)
	assert.Equal(t, engine.SequenceStepScore, snap.Score)
	assert.True(t, snap.Objectives[0].Completed)
	assert.Equal(t, engine.SequenceMisstepPressure-engine.SequenceStepRelief, snap.Pressure)
}

func TestPressureLimitFailsRoom(t *testing.T) {
	f := newFixture(t)
	r, _, pid := f.running(t, models.ModeCommsCrisis, "")

	var snap models.Snapshot
	var err error
	for i := 0; i < 20 && snap.Status != models.StatusFailed; i++ {
		snap, err = r.SubmitAction(ctx, pid, "publish_statement", nil)
		require.NoError(t, err)
	}
	assert.Equal(t, models.StatusFailed, snap.Status)
	assert.Equal(t, reducer.MaxPressure, snap.Pressure)
	require.NotNil(t, snap.EndedAtEpochMs)
	assert.Nil(t, snap.NextTickAtEpochMs)
	assert.Equal(t, reducer.PressureFailureMessage, snap.Timeline[len(snap.Timeline)-1].Message)

	_, scheduled := f.sched.at(r.Code())
	assert.False(t, scheduled, "terminal rooms cancel their tick")
	_, err = r.SubmitAction(ctx, pid, "acknowledge_incident", nil)
	assert.ErrorIs(t, err, ErrNotRunning)
}

func TestResolvedRoomGetsSystemEntry(t *testing.T) {
	f := newFixture(t)
	r, _, pid := f.running(t, models.ModeCommsCrisis, "")

	var snap models.Snapshot
	for _, step := range []string{"acknowledge_incident", "draft_holding_statement", "legal_review", "brief_executives", "publish_statement", "monitor_sentiment"} {
		var err error
		snap, err = r.SubmitAction(ctx, pid, step, nil)
		require.NoError(t, err)
	}
	assert.Equal(t, models.StatusResolved, snap.Status)
	assert.Equal(t, reducer.ResolvedMessage, snap.Timeline[len(snap.Timeline)-1].Message)
	assert.Equal(t, models.TimelineSystem, snap.Timeline[len(snap.Timeline)-1].Kind)
}

func TestScheduledTickAdvancesAndReschedules(t *testing.T) {
	f := newFixture(t)
	r, _, _ := f.running(t, models.ModeBombDefusal, "")

	before, err := r.QueryState("")
	require.NoError(t, err)

	// not yet due
	require.NoError(t, r.OnScheduledTick(ctx))
	same, err := r.QueryState("")
	require.NoError(t, err)
	assert.Equal(t, before.Timeline, same.Timeline)
	assert.Equal(t, before.Scenario, same.Scenario)

	f.clock.Advance(DefaultTickInterval)
	require.NoError(t, r.OnScheduledTick(ctx))
	snap, err := r.QueryState("")
	require.NoError(t, err)
	assert.Equal(t, engine.BombTimerSec-engine.BombTickStepSec, snap.Scenario.AsBomb().TimerSec)
	assert.Equal(t, engine.BombTickPressure, snap.Pressure)
	at, ok := f.sched.at(r.Code())
	require.True(t, ok)
	assert.Equal(t, f.clock.Now().Add(DefaultTickInterval), at)
	assert.Equal(t, at.UnixMilli(), *snap.NextTickAtEpochMs)
}

func TestTicksRunOutTheClock(t *testing.T) {
	f := newFixture(t)
	r, _, _ := f.running(t, models.ModeBombDefusal, "")

	for i := 0; i < engine.BombTimerSec/engine.BombTickStepSec; i++ {
		f.clock.Advance(DefaultTickInterval)
		require.NoError(t, r.OnScheduledTick(ctx))
	}
	snap, err := r.QueryState("")
	require.NoError(t, err)
	assert.Equal(t, models.StatusFailed, snap.Status)
	assert.Nil(t, snap.NextTickAtEpochMs)
	_, ok := f.sched.at(r.Code())
	assert.False(t, ok)

	// further ticks are no-ops
	f.clock.Advance(DefaultTickInterval)
	require.NoError(t, r.OnScheduledTick(ctx))
	again, err := r.QueryState("")
	require.NoError(t, err)
	assert.Equal(t, snap.Timeline, again.Timeline)
}

func TestTickInLobbyIsNoop(t *testing.T) {
	f := newFixture(t)
	r, _ := f.create(t, models.ModeBushfireCommand)
	saves, _ := f.store.counts()
	require.NoError(t, r.OnScheduledTick(ctx))
	after, _ := f.store.counts()
	assert.Equal(t, saves, after)
}

func TestAssignRole(t *testing.T) {
	f := newFixture(t)
	r, res, pid := f.running(t, models.ModeBombDefusal, engine.RoleBombSpecialist)

	_, err := r.AssignRole(ctx, "wrong", pid, engine.RoleBombAnalyst)
	assert.ErrorIs(t, err, ErrUnauthorized)
	_, err = r.AssignRole(ctx, res.GMSecret, "ghost", engine.RoleBombAnalyst)
	assert.ErrorIs(t, err, ErrInvalidPlayer)
	_, err = r.AssignRole(ctx, res.GMSecret, pid, "chef")
	assert.ErrorIs(t, err, ErrInvalidAction)

	_, err = r.AssignRole(ctx, res.GMSecret, pid, engine.RoleBombAnalyst)
	require.NoError(t, err)
	snap, err := r.QueryState(pid)
	require.NoError(t, err)
	assert.Equal(t, engine.RoleBombAnalyst, snap.PlayerByID(pid).Role)
	_, ok := snap.View.(engine.ManualView)
	assert.True(t, ok)
}

func TestAssignRoleRejectedWhenFinished(t *testing.T) {
	f := newFixture(t)
	r, res, pid := f.running(t, models.ModeBombDefusal, "")
	bomb, err := r.QueryState("")
	require.NoError(t, err)
	for _, w := range bomb.Scenario.AsBomb().Wires {
		if !w.Critical {
			_, err := r.SubmitAction(ctx, pid, engine.ActionCutWire, map[string]any{"wireId": w.ID})
			require.NoError(t, err)
		}
	}
	snap, err := r.QueryState("")
	require.NoError(t, err)
	require.Equal(t, models.StatusFailed, snap.Status)

	_, err = r.AssignRole(ctx, res.GMSecret, pid, engine.RoleBombAnalyst)
	assert.ErrorIs(t, err, ErrRoomFinished)
}

func TestQueryStateProjectsRoleView(t *testing.T) {
	f := newFixture(t)
	r, res, pid := f.running(t, models.ModeBombDefusal, engine.RoleBombSpecialist)

	snap, err := r.QueryState(pid)
	require.NoError(t, err)
	_, ok := snap.View.(engine.DeviceReadout)
	assert.True(t, ok)

	snap, err = r.QueryState(res.GMPlayerID)
	require.NoError(t, err)
	_, ok = snap.View.(engine.CoordinatorView)
	assert.True(t, ok)

	snap, err = r.QueryState("")
	require.NoError(t, err)
	_, ok = snap.View.(engine.NoAccessView)
	assert.True(t, ok)
	assert.Equal(t, models.RedactedSecret, snap.GMSecret)

	_, err = r.QueryState("ghost")
	assert.ErrorIs(t, err, ErrInvalidPlayer)
}

func TestTimelineIsJournaled(t *testing.T) {
	f := newFixture(t)
	r, _ := f.create(t, models.ModeSevEscalation)
	_, err := r.Join(ctx, "Pat", "")
	require.NoError(t, err)

	f.journal.mu.Lock()
	defer f.journal.mu.Unlock()
	assert.Equal(t, []string{"evt-0001", "evt-0002"}, f.journal.ids)
}

func TestPersistenceFailurePoisonsRoom(t *testing.T) {
	f := newFixture(t)
	r, _ := f.create(t, models.ModeSevEscalation)
	sink := &mockSink{}
	require.NoError(t, r.Subscribe("watcher", "", sink))

	f.store.setFail(true)
	_, err := r.Join(ctx, "Pat", "")
	assert.ErrorIs(t, err, ErrRoomUnavailable)
	assert.True(t, sink.isClosed(), "subscribers are dropped")

	_, err = r.QueryState("")
	assert.ErrorIs(t, err, ErrRoomUnavailable)
	assert.Equal(t, 0, f.mgr.Loaded(), "poisoned rooms are evicted")

	f.store.setFail(false)
	fresh, err := f.mgr.Room(ctx, r.Code())
	require.NoError(t, err)
	assert.NotSame(t, r, fresh)
	snap, err := fresh.QueryState("")
	require.NoError(t, err)
	assert.Len(t, snap.Players, 1, "the failed join never happened")
}

func TestStartRollsBackWhenSaveFails(t *testing.T) {
	f := newFixture(t)
	r, res := f.create(t, models.ModeSevEscalation)
	f.store.setFail(true)

	_, err := r.Start(ctx, res.GMSecret)
	assert.ErrorIs(t, err, ErrRoomUnavailable)
	_, scheduled := f.sched.at(r.Code())
	assert.False(t, scheduled)

	f.store.setFail(false)
	fresh, err := f.mgr.Room(ctx, r.Code())
	require.NoError(t, err)
	snap, err := fresh.QueryState("")
	require.NoError(t, err)
	assert.Equal(t, models.StatusLobby, snap.Status)
	_, err = fresh.Start(ctx, res.GMSecret)
	require.NoError(t, err)
}

func TestClockSkewKeepsTimelineOrdered(t *testing.T) {
	f := newFixture(t)
	r, _, pid := f.running(t, models.ModeSevEscalation, "")
	f.clock.Advance(-time.Minute)
	snap, err := r.SubmitAction(ctx, pid, "acknowledge_incident", nil)
	require.NoError(t, err)
	for i := 1; i < len(snap.Timeline); i++ {
		assert.GreaterOrEqual(t, snap.Timeline[i].AtEpochMs, snap.Timeline[i-1].AtEpochMs)
	}
}

func TestReloadAfterFailedSaveRearmsTick(t *testing.T) {
	f := newFixture(t)
	r, _, pid := f.running(t, models.ModeSevEscalation, "")
	code := r.Code()
	due, ok := f.sched.at(code)
	require.True(t, ok)

	f.store.setFail(true)
	_, err := r.SubmitAction(ctx, pid, "acknowledge_incident", nil)
	require.ErrorIs(t, err, ErrRoomUnavailable)
	_, scheduled := f.sched.at(code)
	require.False(t, scheduled, "poisoning cancels the tick")

	f.store.setFail(false)
	fresh, err := f.mgr.Room(ctx, code)
	require.NoError(t, err)
	snap, err := fresh.QueryState("")
	require.NoError(t, err)
	require.Equal(t, models.StatusRunning, snap.Status)

	at, ok := f.sched.at(code)
	require.True(t, ok, "a reloaded running room keeps ticking")
	assert.Equal(t, due.UnixMilli(), at.UnixMilli())
}

func TestReloadAfterFailedTickFiresOverdueTick(t *testing.T) {
	f := newFixture(t)
	r, _, _ := f.running(t, models.ModeSevEscalation, "")
	code := r.Code()

	f.clock.Advance(DefaultTickInterval)
	f.store.setFail(true)
	require.ErrorIs(t, r.OnScheduledTick(ctx), ErrRoomUnavailable)

	f.clock.Advance(time.Minute)
	f.store.setFail(false)
	fresh, err := f.mgr.Room(ctx, code)
	require.NoError(t, err)

	at, ok := f.sched.at(code)
	require.True(t, ok)
	assert.Equal(t, f.clock.Now().UnixMilli(), at.UnixMilli(), "an overdue tick fires at once")

	require.NoError(t, fresh.OnScheduledTick(ctx))
	snap, err := fresh.QueryState("")
	require.NoError(t, err)
	assert.Equal(t, f.clock.Now().Add(DefaultTickInterval).UnixMilli(), *snap.NextTickAtEpochMs)
	at, ok = f.sched.at(code)
	require.True(t, ok)
	assert.Equal(t, *snap.NextTickAtEpochMs, at.UnixMilli())
}

func TestConcurrentOperationsAreSerialized(t *testing.T) {
	f := newFixture(t)
	r, _, pid := f.running(t, models.ModeSevEscalation, "")
	before, err := r.QueryState("")
	require.NoError(t, err)
	f.clock.Advance(DefaultTickInterval)

	const actions, ticks, subscribers = 8, 4, 6
	sinks := make([]*mockSink, subscribers)
	var wg sync.WaitGroup
	for i := 0; i < actions; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := r.SubmitAction(ctx, pid, "noise", nil)
			assert.NoError(t, err)
		}()
	}
	for i := 0; i < ticks; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, r.OnScheduledTick(ctx))
		}()
	}
	for i := 0; i < subscribers; i++ {
		sinks[i] = &mockSink{}
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			assert.NoError(t, r.Subscribe(fmt.Sprintf("client-%d", i), "", sinks[i]))
		}(i)
	}
	wg.Wait()

	snap, err := r.QueryState("")
	require.NoError(t, err)
	// Every misstep logs one inject; only the first tick is due, the rest arrive early.
	require.Len(t, snap.Timeline, len(before.Timeline)+actions+1)
	for i, e := range snap.Timeline {
		assert.Equal(t, fmt.Sprintf("evt-%04d", i+1), e.ID)
	}
	assert.Equal(t, actions*engine.SequenceMisstepPressure+engine.SequenceTickPressure, snap.Pressure)

	f.journal.mu.Lock()
	journaled := append([]string(nil), f.journal.ids...)
	f.journal.mu.Unlock()
	ids := make([]string, len(snap.Timeline))
	for i, e := range snap.Timeline {
		ids[i] = e.ID
	}
	assert.Equal(t, ids, journaled, "commits are journaled in order")

	for _, s := range sinks {
		got := s.snapshots()
		require.NotEmpty(t, got)
		for i := 1; i < len(got); i++ {
			assert.Greater(t, len(got[i].Timeline), len(got[i-1].Timeline), "each push is a later state")
		}
		assert.Equal(t, snap.Timeline, got[len(got)-1].Timeline)
	}
}
