// Package lockstep provides deterministic interleaving control for concurrent
// code under test. Breakpoints are named call sites; a Schedule pins a global
// order across breakpoint occurrences, and the engine blocks goroutines that
// arrive out of turn until the declared order is satisfied.
package lockstep

import (
	"fmt"
)

// Occurrence identifies one concrete arrival at a breakpoint: the breakpoint
// name plus the 1-based count of arrivals at that name since the engine was
// last armed. Ordinals are assigned atomically per arrival, so two arrivals
// never share an identity.
type Occurrence struct {
	Name    string `json:"name"`
	Ordinal uint64 `json:"ordinal"`
}

func (o Occurrence) String() string {
	return fmt.Sprintf("%s:%d", o.Name, o.Ordinal)
}

// Schedule is the ordered plan of occurrences the user wants enforced. It may
// cover only a subset of the occurrences that actually happen at runtime;
// unlisted occurrences pass through unconstrained.
//
// A Schedule is read-only once armed.
type Schedule []Occurrence

// InvalidScheduleError reports a malformed schedule entry found by Validate
// or Arm.
type InvalidScheduleError struct {
	Entry  Occurrence
	Reason string
}

func (e *InvalidScheduleError) Error() string {
	return fmt.Sprintf("invalid schedule: %s entry %s", e.Reason, e.Entry)
}

// Validate checks that every entry has a 1-based ordinal and that no entry
// appears twice.
func (s Schedule) Validate() error {
	_, err := s.index()
	return err
}

// index maps each occurrence to its schedule position, rejecting duplicates
// and zero ordinals.
func (s Schedule) index() (map[Occurrence]int, error) {
	idx := make(map[Occurrence]int, len(s))
	for i, occ := range s {
		if occ.Name == "" {
			return nil, &InvalidScheduleError{Entry: occ, Reason: "unnamed"}
		}
		if occ.Ordinal == 0 {
			return nil, &InvalidScheduleError{Entry: occ, Reason: "zero-ordinal"}
		}
		if _, ok := idx[occ]; ok {
			return nil, &InvalidScheduleError{Entry: occ, Reason: "duplicate"}
		}
		idx[occ] = i
	}
	return idx, nil
}
