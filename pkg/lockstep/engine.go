package lockstep

import (
	"fmt"
	"io"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/amirkhaki/lockstep/pkg/goid"
)

// DefaultTimeout bounds how long a WaitAt call parks before giving up and
// poisoning the engine.
const DefaultTimeout = 10 * time.Second

// Option configures an Engine.
type Option func(*Engine)

// WithTimeout sets the per-wait bound. A scheduled occurrence that is not
// released within d causes the waiter to return TimedOut and poisons the
// engine.
func WithTimeout(d time.Duration) Option {
	return func(e *Engine) { e.timeout = d }
}

// WithLogger attaches a structured logger for engine events. The engine is
// silent without one; a nil logger keeps it silent.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.log = l
		}
	}
}

// waiter is one parked goroutine. done is buffered so the engine can release
// a waiter without blocking, and so a late release is not lost when the
// waiter's timeout fires concurrently.
type waiter struct {
	occ  Occurrence
	goID uint64
	done chan Outcome
}

// Engine is the ordering core: it tracks which schedule entry is next, parks
// goroutines that arrive out of turn, and releases them strictly in schedule
// order. An Engine is an explicit handle; independent scenarios should own
// independent engines. The package-level functions forward to a shared
// default instance.
//
// All state is guarded by mu. The lock is never held across a park: a waiter
// registers under the lock and then blocks on its own channel.
type Engine struct {
	mu       sync.Mutex
	schedule Schedule
	index    map[Occurrence]int
	cursor   int
	counts   map[string]uint64
	waiting  map[Occurrence]*waiter
	history  []Occurrence
	poisoned bool
	report   *PoisonReport
	runID    uuid.UUID
	timeout  time.Duration
	log      *slog.Logger
}

// NewEngine returns an unarmed engine. Until a schedule is armed every
// occurrence passes through.
func NewEngine(opts ...Option) *Engine {
	e := &Engine{
		counts:  make(map[string]uint64),
		waiting: make(map[Occurrence]*waiter),
		timeout: DefaultTimeout,
		log:     slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Arm validates and installs a schedule, resetting counters, cursor, history
// and the poison flag. Any goroutine still parked from a previous scenario is
// released with Poisoned. Arm must not race with WaitAt calls for the new
// scenario; it is the setup barrier.
func (e *Engine) Arm(s Schedule) error {
	idx, err := s.index()
	if err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.resetLocked()
	e.schedule = append(Schedule(nil), s...)
	e.index = idx
	e.runID = uuid.New()
	e.log.Debug("engine armed", "run_id", e.runID, "steps", len(s))
	return nil
}

// BeginScenario arms the engine for a fresh scenario. It is Arm under the
// scenario lifecycle contract: the caller guarantees no WaitAt is in flight.
func (e *Engine) BeginScenario(s Schedule) error {
	return e.Arm(s)
}

// EndScenario reports whether every scheduled occurrence was reached. A
// schedule tail that no goroutine ever arrived at shows up here as
// FullySatisfied=false with the unreached entries in Pending; nothing was
// blocked, so no timeout fired.
func (e *Engine) EndScenario() CompletionReport {
	e.mu.Lock()
	defer e.mu.Unlock()
	return CompletionReport{
		RunID:          e.runID,
		FullySatisfied: e.cursor == len(e.schedule) && !e.poisoned,
		Pending:        append([]Occurrence(nil), e.schedule[e.cursor:]...),
		Proceeded:      append([]Occurrence(nil), e.history...),
		Poisoned:       e.poisoned,
	}
}

// Reset clears the engine back to unarmed. Parked goroutines are released
// with Poisoned so nothing is left hanging from a torn-down scenario.
func (e *Engine) Reset() {
	e.mu.Lock()
	e.resetLocked()
	e.mu.Unlock()
}

func (e *Engine) resetLocked() {
	for occ, w := range e.waiting {
		delete(e.waiting, occ)
		w.done <- Poisoned
	}
	e.schedule = nil
	e.index = nil
	e.cursor = 0
	e.counts = make(map[string]uint64)
	e.history = nil
	e.poisoned = false
	e.report = nil
}

// WaitAt marks one arrival at the named breakpoint and returns once the
// arrival's place in the schedule allows it. Arrivals not covered by the
// remaining schedule return Skipped immediately; the occurrence that matches
// the cursor returns Proceeded and wakes any parked successor; everything
// else parks until its turn, the timeout, or poisoning.
func (e *Engine) WaitAt(name string) Outcome {
	e.mu.Lock()
	occ := Occurrence{Name: name, Ordinal: e.nextOrdinalLocked(name)}
	if e.poisoned {
		e.mu.Unlock()
		return Poisoned
	}
	pos, scheduled := e.index[occ]
	if !scheduled {
		e.mu.Unlock()
		return Skipped
	}
	if pos < e.cursor {
		e.mu.Unlock()
		// Ordinals are unique per arrival, so a consumed entry can never be
		// observed again. This is an engine bug, not a user error.
		panic(fmt.Sprintf("lockstep: occurrence %s observed after being consumed", occ))
	}
	if pos == e.cursor {
		e.releaseLocked(occ)
		e.mu.Unlock()
		return Proceeded
	}

	w := &waiter{occ: occ, goID: goid.Get(), done: make(chan Outcome, 1)}
	e.waiting[occ] = w
	timeout := e.timeout
	e.log.Debug("breakpoint parked", "run_id", e.runID, "occurrence", occ.String(), "goid", w.goID)
	e.mu.Unlock()

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case out := <-w.done:
		return out
	case <-timer.C:
		e.mu.Lock()
		if _, parked := e.waiting[occ]; !parked {
			// Released while the timer was firing; the outcome is already in
			// the buffered channel.
			e.mu.Unlock()
			return <-w.done
		}
		delete(e.waiting, occ)
		reason := fmt.Sprintf("timed out after %v waiting for %s", timeout, occ)
		e.poisonLocked(reason, &occ)
		e.mu.Unlock()
		return TimedOut
	}
}

// Poison invalidates the current scenario: every parked goroutine is woken
// with Poisoned and every later WaitAt fails fast until the engine is armed
// again. Meant for the test harness to call when a participant has failed in
// a way the engine cannot see, such as a panic.
func (e *Engine) Poison(reason string) {
	e.mu.Lock()
	e.poisonLocked(reason, nil)
	e.mu.Unlock()
}

// PoisonState returns the report captured when the scenario was poisoned, or
// nil if it was not.
func (e *Engine) PoisonState() *PoisonReport {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.report
}

// Parked returns a snapshot of the waiting room: every goroutine currently
// blocked in WaitAt, in schedule order.
func (e *Engine) Parked() []Waiter {
	e.mu.Lock()
	defer e.mu.Unlock()
	ws := make([]Waiter, 0, len(e.waiting))
	for occ, w := range e.waiting {
		ws = append(ws, Waiter{Occurrence: occ, GoID: w.goID})
	}
	sort.Slice(ws, func(i, j int) bool {
		return e.index[ws[i].Occurrence] < e.index[ws[j].Occurrence]
	})
	return ws
}

// History returns the occurrences the engine has released, in release order.
// This is the authoritative global order of Proceeded outcomes for the
// current scenario.
func (e *Engine) History() []Occurrence {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]Occurrence(nil), e.history...)
}

// nextOrdinalLocked assigns the arrival its 1-based per-name ordinal.
// Ordinals only increment; a test run cannot realistically exhaust uint64.
func (e *Engine) nextOrdinalLocked(name string) uint64 {
	e.counts[name]++
	return e.counts[name]
}

// releaseLocked records occ as released, advances the cursor, and cascades:
// as long as the entry now at the cursor has a parked waiter, that waiter is
// woken and the cursor advances again. Iterative so schedule length never
// grows the stack, and strictly in schedule order.
func (e *Engine) releaseLocked(occ Occurrence) {
	e.history = append(e.history, occ)
	e.cursor++
	e.log.Debug("breakpoint proceeded", "run_id", e.runID, "occurrence", occ.String())
	for e.cursor < len(e.schedule) {
		next := e.schedule[e.cursor]
		w, ok := e.waiting[next]
		if !ok {
			break
		}
		delete(e.waiting, next)
		e.history = append(e.history, next)
		e.cursor++
		e.log.Debug("breakpoint woken", "run_id", e.runID, "occurrence", next.String(), "goid", w.goID)
		w.done <- Proceeded
	}
}

// poisonLocked marks the scenario invalid, captures the report, and wakes all
// parked waiters with Poisoned. First poisoning wins; later calls are no-ops.
func (e *Engine) poisonLocked(reason string, trigger *Occurrence) {
	if e.poisoned {
		return
	}
	e.poisoned = true
	rpt := &PoisonReport{
		RunID:   e.runID,
		Reason:  reason,
		Trigger: trigger,
		Pending: append([]Occurrence(nil), e.schedule[e.cursor:]...),
	}
	for occ, w := range e.waiting {
		rpt.Parked = append(rpt.Parked, Waiter{Occurrence: occ, GoID: w.goID})
		delete(e.waiting, occ)
		w.done <- Poisoned
	}
	sort.Slice(rpt.Parked, func(i, j int) bool {
		a, b := rpt.Parked[i].Occurrence, rpt.Parked[j].Occurrence
		if a.Name != b.Name {
			return a.Name < b.Name
		}
		return a.Ordinal < b.Ordinal
	})
	e.report = rpt
	e.log.Warn("engine poisoned", "run_id", e.runID, "reason", reason, "parked", len(rpt.Parked))
}
