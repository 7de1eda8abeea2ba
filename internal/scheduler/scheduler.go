// Package scheduler invokes a room again at a wall-clock time, with or without open connections.
package scheduler

import (
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// FireFunc is called on its own goroutine when a room's wakeup is due.
type FireFunc func(code string, at time.Time)

type wakeup struct {
	timer *time.Timer
	at    time.Time
	gen   uint64
}

// Timers keeps at most one pending wakeup per room code.
type Timers struct {
	mu      sync.Mutex
	fire    FireFunc
	logger  *logrus.Logger
	pending map[string]*wakeup
	gen     uint64
	stopped bool
}

// New returns a scheduler that calls fire for each due wakeup.
func New(fire FireFunc, logger *logrus.Logger) *Timers {
	return &Timers{
		fire:    fire,
		logger:  logger,
		pending: make(map[string]*wakeup),
	}
}

// Schedule replaces any pending wakeup for code with one at at.
// Times in the past fire immediately.
func (t *Timers) Schedule(code string, at time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.stopped {
		return
	}
	if w, ok := t.pending[code]; ok {
		w.timer.Stop()
	}
	t.gen++
	gen := t.gen
	w := &wakeup{at: at, gen: gen}
	w.timer = time.AfterFunc(max(0, time.Until(at)), func() { t.run(code, gen) })
	t.pending[code] = w
	t.logger.WithFields(logrus.Fields{"room": code, "at": at.UTC().Format(time.RFC3339)}).Debug("tick scheduled")
}

// run fires a wakeup unless it was replaced or cancelled after its timer started.
func (t *Timers) run(code string, gen uint64) {
	t.mu.Lock()
	w, ok := t.pending[code]
	if !ok || w.gen != gen || t.stopped {
		t.mu.Unlock()
		t.logger.WithField("room", code).Debug("stale wakeup ignored")
		return
	}
	delete(t.pending, code)
	t.mu.Unlock()

	t.fire(code, w.at)
}

// Cancel drops the pending wakeup for code, if any.
func (t *Timers) Cancel(code string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if w, ok := t.pending[code]; ok {
		w.timer.Stop()
		delete(t.pending, code)
	}
}

// pendingAt returns the scheduled time for code.
func (t *Timers) pendingAt(code string) (time.Time, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	w, ok := t.pending[code]
	if !ok {
		return time.Time{}, false
	}
	return w.at, true
}

// Stop cancels every pending wakeup and ignores later Schedule calls.
func (t *Timers) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stopped = true
	for code, w := range t.pending {
		w.timer.Stop()
		delete(t.pending, code)
	}
}
