package room

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/jason-s-yu/drillroom/internal/models"
	"github.com/jason-s-yu/drillroom/internal/store"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
)

var errDiskFull = errors.New("disk full")

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type fakeScheduler struct {
	mu        sync.Mutex
	scheduled map[string]time.Time
	cancelled []string
}

func newFakeScheduler() *fakeScheduler {
	return &fakeScheduler{scheduled: make(map[string]time.Time)}
}

func (s *fakeScheduler) Schedule(code string, at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.scheduled[code] = at
}

func (s *fakeScheduler) Cancel(code string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.scheduled, code)
	s.cancelled = append(s.cancelled, code)
}

func (s *fakeScheduler) at(code string) (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.scheduled[code]
	return t, ok
}

// countingStore wraps the memory store with counters and an injectable save failure.
type countingStore struct {
	*store.Memory
	mu        sync.Mutex
	saves     int
	loads     int
	failSaves bool
	loadDelay time.Duration
}

func newCountingStore() *countingStore {
	return &countingStore{Memory: store.NewMemory()}
}

func (s *countingStore) Save(ctx context.Context, state *models.RoomState) error {
	s.mu.Lock()
	s.saves++
	fail := s.failSaves
	s.mu.Unlock()
	if fail {
		return errDiskFull
	}
	return s.Memory.Save(ctx, state)
}

func (s *countingStore) Load(ctx context.Context, code string) (*models.RoomState, error) {
	s.mu.Lock()
	s.loads++
	delay := s.loadDelay
	s.mu.Unlock()
	time.Sleep(delay)
	return s.Memory.Load(ctx, code)
}

func (s *countingStore) setFail(v bool) {
	s.mu.Lock()
	s.failSaves = v
	s.mu.Unlock()
}

func (s *countingStore) counts() (saves, loads int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saves, s.loads
}

// mockSink collects pushed events like a connected client would.
type mockSink struct {
	mu     sync.Mutex
	events []Event
	fail   bool
	closed bool
}

func (s *mockSink) Send(_ context.Context, ev Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail || s.closed {
		return errors.New("connection reset")
	}
	s.events = append(s.events, ev)
	return nil
}

func (s *mockSink) Close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
}

func (s *mockSink) setFail() {
	s.mu.Lock()
	s.fail = true
	s.mu.Unlock()
}

func (s *mockSink) snapshots() []models.Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Snapshot
	for _, ev := range s.events {
		if ev.Type == EventSnapshot {
			out = append(out, *ev.Snapshot)
		}
	}
	return out
}

func (s *mockSink) count(t EventType) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, ev := range s.events {
		if ev.Type == t {
			n++
		}
	}
	return n
}

func (s *mockSink) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

type fakeJournal struct {
	mu  sync.Mutex
	ids []string
}

func (j *fakeJournal) PublishTimeline(_ context.Context, _ *models.RoomState, entries []models.TimelineEntry) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	for _, e := range entries {
		j.ids = append(j.ids, e.ID)
	}
	return nil
}

type fixture struct {
	mgr     *Manager
	store   *countingStore
	sched   *fakeScheduler
	clock   *testClock
	journal *fakeJournal
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	f := &fixture{
		store:   newCountingStore(),
		sched:   newFakeScheduler(),
		clock:   &testClock{now: time.UnixMilli(1_700_000_000_000)},
		journal: &fakeJournal{},
	}
	f.mgr = NewManager(Deps{
		Store:             f.store,
		Scheduler:         f.sched,
		Journal:           f.journal,
		Logger:            logger,
		Clock:             f.clock.Now,
		KeepaliveInterval: time.Hour,
	})
	return f
}

// create opens a room in mode with a GM and returns it with the GM's secret.
func (f *fixture) create(t *testing.T, mode models.Mode) (*Room, InitResult) {
	t.Helper()
	res, err := f.mgr.Create(context.Background(), "Gail", mode, "fixed-seed")
	require.NoError(t, err)
	r, err := f.mgr.Room(context.Background(), res.Snapshot.RoomCode)
	require.NoError(t, err)
	return r, res
}

// running opens a room, adds one player with role and starts it.
func (f *fixture) running(t *testing.T, mode models.Mode, role string) (*Room, InitResult, string) {
	t.Helper()
	r, res := f.create(t, mode)
	joined, err := r.Join(context.Background(), "Pat", role)
	require.NoError(t, err)
	_, err = r.Start(context.Background(), res.GMSecret)
	require.NoError(t, err)
	return r, res, joined.PlayerID
}
