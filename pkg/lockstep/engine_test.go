package lockstep_test

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/amirkhaki/lockstep/pkg/lockstep"
)

func occ(name string, ordinal uint64) lockstep.Occurrence {
	return lockstep.Occurrence{Name: name, Ordinal: ordinal}
}

func TestArmRejectsDuplicate(t *testing.T) {
	e := lockstep.NewEngine()

	err := e.Arm(lockstep.Schedule{occ("A", 1), occ("B", 1), occ("A", 1)})
	var invalid *lockstep.InvalidScheduleError
	require.ErrorAs(t, err, &invalid)
	assert.Equal(t, occ("A", 1), invalid.Entry)

	require.NoError(t, e.Arm(lockstep.Schedule{occ("A", 1), occ("A", 2), occ("B", 1)}))
}

func TestArmRejectsZeroOrdinal(t *testing.T) {
	e := lockstep.NewEngine()

	err := e.Arm(lockstep.Schedule{occ("A", 0)})
	var invalid *lockstep.InvalidScheduleError
	require.ErrorAs(t, err, &invalid)
}

func TestUnarmedEnginePassesThrough(t *testing.T) {
	e := lockstep.NewEngine()

	for i := 0; i < 3; i++ {
		require.Equal(t, lockstep.Skipped, e.WaitAt("A"))
	}
}

func TestPassThroughNeverBlocks(t *testing.T) {
	e := lockstep.NewEngine(lockstep.WithTimeout(time.Second))
	require.NoError(t, e.BeginScenario(lockstep.Schedule{occ("A", 1)}))

	// B is not scheduled at all.
	require.Equal(t, lockstep.Skipped, e.WaitAt("B"))
	require.Equal(t, lockstep.Skipped, e.WaitAt("B"))

	require.Equal(t, lockstep.Proceeded, e.WaitAt("A"))

	// A:2 arrives after the schedule is fully consumed.
	require.Equal(t, lockstep.Skipped, e.WaitAt("A"))

	report := e.EndScenario()
	assert.True(t, report.FullySatisfied)
	assert.Empty(t, report.Pending)
	assert.Equal(t, []lockstep.Occurrence{occ("A", 1)}, report.Proceeded)
}

// Two goroutines looping over their own breakpoints must be released in
// schedule order A,B,A,B no matter how they are scheduled by the Go runtime.
func TestDeterministicInterleaving(t *testing.T) {
	schedule := lockstep.Schedule{occ("A", 1), occ("B", 1), occ("A", 2), occ("B", 2)}

	for rep := 0; rep < 20; rep++ {
		e := lockstep.NewEngine(lockstep.WithTimeout(5 * time.Second))
		require.NoError(t, e.BeginScenario(schedule))

		var wg sync.WaitGroup
		outcomes := make([]lockstep.Outcome, 4)
		wg.Add(2)
		go func() {
			defer wg.Done()
			outcomes[0] = e.WaitAt("A")
			outcomes[1] = e.WaitAt("A")
		}()
		go func() {
			defer wg.Done()
			outcomes[2] = e.WaitAt("B")
			outcomes[3] = e.WaitAt("B")
		}()
		wg.Wait()

		for i, out := range outcomes {
			require.Equal(t, lockstep.Proceeded, out, "call %d", i)
		}
		require.Equal(t, []lockstep.Occurrence(schedule), e.History())

		report := e.EndScenario()
		require.True(t, report.FullySatisfied)
		require.Empty(t, report.Pending)
	}
}

// Three goroutines race, two of them at the same breakpoint name. Ordinals
// are assigned by arrival, so whichever reaches A first is A:1; the release
// order must still match the schedule exactly.
func TestThreeWayRace(t *testing.T) {
	schedule := lockstep.Schedule{occ("A", 1), occ("B", 1), occ("A", 2)}

	for rep := 0; rep < 20; rep++ {
		e := lockstep.NewEngine(lockstep.WithTimeout(5 * time.Second))
		require.NoError(t, e.BeginScenario(schedule))

		got := make(chan lockstep.Outcome, 3)
		for _, name := range []string{"A", "A", "B"} {
			name := name
			go func() { got <- e.WaitAt(name) }()
		}
		for i := 0; i < 3; i++ {
			require.Equal(t, lockstep.Proceeded, <-got)
		}

		require.Equal(t, []lockstep.Occurrence(schedule), e.History())
	}
}

func TestCascadingWake(t *testing.T) {
	e := lockstep.NewEngine(lockstep.WithTimeout(5 * time.Second))
	require.NoError(t, e.BeginScenario(lockstep.Schedule{occ("A", 1), occ("B", 1), occ("C", 1)}))

	got := make(chan lockstep.Outcome, 2)
	go func() { got <- e.WaitAt("B") }()
	go func() { got <- e.WaitAt("C") }()

	require.Eventually(t, func() bool {
		return len(e.Parked()) == 2
	}, 2*time.Second, 5*time.Millisecond)

	// Releasing A advances the cursor through both parked waiters.
	require.Equal(t, lockstep.Proceeded, e.WaitAt("A"))
	require.Equal(t, lockstep.Proceeded, <-got)
	require.Equal(t, lockstep.Proceeded, <-got)

	require.Equal(t,
		[]lockstep.Occurrence{occ("A", 1), occ("B", 1), occ("C", 1)},
		e.History())
	assert.Empty(t, e.Parked())
}

func TestTimeoutPoisonsEngine(t *testing.T) {
	e := lockstep.NewEngine(lockstep.WithTimeout(75 * time.Millisecond))
	require.NoError(t, e.BeginScenario(lockstep.Schedule{occ("B", 1), occ("A", 1)}))

	// A:1 is scheduled after B:1, and nothing ever reaches B.
	start := time.Now()
	require.Equal(t, lockstep.TimedOut, e.WaitAt("A"))
	require.GreaterOrEqual(t, time.Since(start), 75*time.Millisecond)

	// Everyone after the timeout fails fast, scheduled or not.
	require.Equal(t, lockstep.Poisoned, e.WaitAt("B"))
	require.Equal(t, lockstep.Poisoned, e.WaitAt("unrelated"))

	state := e.PoisonState()
	require.NotNil(t, state)
	assert.Contains(t, state.Reason, "timed out")
	require.NotNil(t, state.Trigger)
	assert.Equal(t, occ("A", 1), *state.Trigger)
	assert.Equal(t, []lockstep.Occurrence{occ("B", 1), occ("A", 1)}, state.Pending)
	assert.Empty(t, state.Parked)

	report := e.EndScenario()
	assert.False(t, report.FullySatisfied)
	assert.True(t, report.Poisoned)
}

// A schedule tail nobody reaches, with nobody blocked, is a soft finding at
// teardown rather than a timeout.
func TestUnreachedTailReportedAtTeardown(t *testing.T) {
	e := lockstep.NewEngine(lockstep.WithTimeout(time.Second))
	require.NoError(t, e.BeginScenario(lockstep.Schedule{occ("A", 1), occ("B", 1)}))

	require.Equal(t, lockstep.Proceeded, e.WaitAt("A"))

	report := e.EndScenario()
	assert.False(t, report.FullySatisfied)
	assert.False(t, report.Poisoned)
	assert.Equal(t, []lockstep.Occurrence{occ("B", 1)}, report.Pending)
	assert.Equal(t, []lockstep.Occurrence{occ("A", 1)}, report.Proceeded)
}

func TestPoisonWakesParkedWaiters(t *testing.T) {
	// Timeout far larger than the test so a prompt wake can only come from
	// poisoning.
	e := lockstep.NewEngine(lockstep.WithTimeout(30 * time.Second))
	require.NoError(t, e.BeginScenario(lockstep.Schedule{occ("A", 1), occ("B", 1), occ("C", 1)}))

	got := make(chan lockstep.Outcome, 2)
	go func() { got <- e.WaitAt("B") }()
	go func() { got <- e.WaitAt("C") }()

	require.Eventually(t, func() bool {
		return len(e.Parked()) == 2
	}, 2*time.Second, 5*time.Millisecond)

	e.Poison("worker crashed")

	for i := 0; i < 2; i++ {
		select {
		case out := <-got:
			require.Equal(t, lockstep.Poisoned, out)
		case <-time.After(2 * time.Second):
			t.Fatal("parked waiter was not woken by poisoning")
		}
	}

	state := e.PoisonState()
	require.NotNil(t, state)
	assert.Equal(t, "worker crashed", state.Reason)
	assert.Nil(t, state.Trigger)
	require.Len(t, state.Parked, 2)
	assert.Equal(t, occ("B", 1), state.Parked[0].Occurrence)
	assert.Equal(t, occ("C", 1), state.Parked[1].Occurrence)
	assert.NotZero(t, state.Parked[0].GoID)
	assert.NotZero(t, state.Parked[1].GoID)
}

func TestResetReleasesStaleWaiters(t *testing.T) {
	e := lockstep.NewEngine(lockstep.WithTimeout(30 * time.Second))
	require.NoError(t, e.BeginScenario(lockstep.Schedule{occ("A", 1), occ("B", 1)}))

	got := make(chan lockstep.Outcome, 1)
	go func() { got <- e.WaitAt("B") }()
	require.Eventually(t, func() bool {
		return len(e.Parked()) == 1
	}, 2*time.Second, 5*time.Millisecond)

	e.Reset()
	require.Equal(t, lockstep.Poisoned, <-got)

	// Back to unarmed: everything passes through.
	require.Equal(t, lockstep.Skipped, e.WaitAt("A"))
}

func TestScenarioIsolation(t *testing.T) {
	e := lockstep.NewEngine(lockstep.WithTimeout(time.Second))

	require.NoError(t, e.BeginScenario(lockstep.Schedule{occ("A", 1)}))
	require.Equal(t, lockstep.Proceeded, e.WaitAt("A"))
	first := e.EndScenario()
	require.True(t, first.FullySatisfied)

	// Counters restart at 1: the same breakpoint is A:1 again.
	require.NoError(t, e.BeginScenario(lockstep.Schedule{occ("A", 1)}))
	require.Equal(t, lockstep.Proceeded, e.WaitAt("A"))
	second := e.EndScenario()
	require.True(t, second.FullySatisfied)

	assert.NotEqual(t, first.RunID, second.RunID)
}

func TestPoisonBeatsWouldBeProceeder(t *testing.T) {
	e := lockstep.NewEngine(lockstep.WithTimeout(time.Second))
	require.NoError(t, e.BeginScenario(lockstep.Schedule{occ("A", 1), occ("B", 1)}))

	e.Poison("out-of-band failure")

	// A:1 would have proceeded; poisoning wins.
	require.Equal(t, lockstep.Poisoned, e.WaitAt("A"))
}

func TestDefaultEngine(t *testing.T) {
	e := lockstep.NewEngine(lockstep.WithTimeout(time.Second))
	lockstep.SetDefault(e)
	defer lockstep.SetDefault(nil)

	require.NoError(t, lockstep.BeginScenario(lockstep.Schedule{occ("A", 1), occ("B", 1)}))
	require.Equal(t, lockstep.Proceeded, lockstep.WaitAt("A"))

	lockstep.Poison("harness abort")
	require.Equal(t, lockstep.Poisoned, lockstep.WaitAt("B"))

	report := lockstep.EndScenario()
	assert.False(t, report.FullySatisfied)
	assert.True(t, report.Poisoned)
}

func TestWithNilLoggerStaysSilent(t *testing.T) {
	e := lockstep.NewEngine(lockstep.WithLogger(nil), lockstep.WithTimeout(time.Second))

	require.NoError(t, e.Arm(lockstep.Schedule{occ("A", 1)}))
	require.Equal(t, lockstep.Proceeded, e.WaitAt("A"))
	assert.True(t, e.EndScenario().FullySatisfied)
}

func TestOutcomeString(t *testing.T) {
	assert.Equal(t, "proceeded", lockstep.Proceeded.String())
	assert.Equal(t, "skipped", lockstep.Skipped.String())
	assert.Equal(t, "poisoned", lockstep.Poisoned.String())
	assert.Equal(t, "timed-out", lockstep.TimedOut.String())
	assert.Equal(t, "unknown", lockstep.Outcome(0).String())
}

func TestInvalidScheduleErrorMessage(t *testing.T) {
	err := lockstep.Schedule{occ("A", 1), occ("A", 1)}.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate")
	assert.Contains(t, err.Error(), "A:1")
}
