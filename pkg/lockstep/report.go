package lockstep

import (
	"github.com/google/uuid"
)

// Waiter describes a goroutine that was parked in the engine when it was
// poisoned.
type Waiter struct {
	Occurrence Occurrence `json:"occurrence"`
	GoID       uint64     `json:"goid"`
}

// PoisonReport is the structured failure data produced when a scenario is
// invalidated. Rendering it is the caller's concern.
type PoisonReport struct {
	// RunID identifies the scenario this report belongs to.
	RunID uuid.UUID `json:"run_id"`
	// Reason is the human-readable cause passed to Poison or synthesized by
	// the timeout detector.
	Reason string `json:"reason"`
	// Trigger is the occurrence whose wait triggered poisoning, if poisoning
	// came from a timeout. Nil for explicit Poison calls.
	Trigger *Occurrence `json:"trigger,omitempty"`
	// Pending lists the schedule entries that were still unsatisfied.
	Pending []Occurrence `json:"pending,omitempty"`
	// Parked lists the goroutines that were blocked at the moment of
	// poisoning, in schedule order.
	Parked []Waiter `json:"parked,omitempty"`
}

// CompletionReport is returned by EndScenario. It distinguishes a schedule
// whose tail was simply never reached (FullySatisfied false, nobody blocked)
// from the active-failure cases, which surface through Outcome values and the
// PoisonReport instead.
type CompletionReport struct {
	RunID          uuid.UUID    `json:"run_id"`
	FullySatisfied bool         `json:"fully_satisfied"`
	// Pending lists the schedule entries no goroutine ever reached.
	Pending []Occurrence `json:"pending,omitempty"`
	// Proceeded is the order in which the engine released scheduled
	// occurrences.
	Proceeded []Occurrence `json:"proceeded,omitempty"`
	// Poisoned reports whether the scenario was invalidated before teardown.
	Poisoned bool `json:"poisoned"`
}
