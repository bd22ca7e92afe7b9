package editor

import (
	"context"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/makemykankotri/kankotri/pkg/observability"
)

// SaveFunc persists the editor state
type SaveFunc func(ctx context.Context) error

// AutoSaver debounces saves: each Trigger re-arms the timer and the save runs
// once the editor has been idle for the delay. Saves are not coordinated with
// manual saves; the last write wins.
type AutoSaver struct {
	clock  clockwork.Clock
	delay  time.Duration
	save   SaveFunc
	logger observability.Logger

	mu      sync.Mutex
	timer   clockwork.Timer
	armed   uint64
	stopped bool
}

// NewAutoSaver creates an idle AutoSaver
func NewAutoSaver(clock clockwork.Clock, delay time.Duration, save SaveFunc, logger observability.Logger) *AutoSaver {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if logger == nil {
		logger = observability.NewNoopLogger()
	}
	return &AutoSaver{
		clock:  clock,
		delay:  delay,
		save:   save,
		logger: logger,
	}
}

// Trigger (re)arms the debounce timer
func (a *AutoSaver) Trigger() {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.stopped {
		return
	}
	if a.timer != nil {
		a.timer.Stop()
	}
	a.armed++
	gen := a.armed
	a.timer = a.clock.AfterFunc(a.delay, func() { a.fire(gen) })
}

// Pending reports whether a save is scheduled
func (a *AutoSaver) Pending() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.timer != nil
}

// fire runs the save for the timer armed as gen. A timer superseded by a
// later Trigger does nothing; the newer timer owns the save.
func (a *AutoSaver) fire(gen uint64) {
	a.mu.Lock()
	if a.stopped || gen != a.armed {
		a.mu.Unlock()
		return
	}
	a.timer = nil
	a.mu.Unlock()

	if err := a.save(context.Background()); err != nil {
		a.logger.Error("Auto-save failed", map[string]interface{}{"error": err.Error()})
	}
}

// Stop cancels any pending save and disables further triggers
func (a *AutoSaver) Stop() {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.stopped = true
	if a.timer != nil {
		a.timer.Stop()
		a.timer = nil
	}
}
