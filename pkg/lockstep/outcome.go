package lockstep

// Outcome is the result of a WaitAt call.
type Outcome uint8

const (
	// Proceeded: the occurrence was the next schedule entry and the caller
	// was released in turn.
	Proceeded Outcome = iota + 1
	// Skipped: the occurrence is not in the remaining schedule; the caller
	// was never blocked.
	Skipped
	// Poisoned: the scenario was already invalidated by a timeout, a reset,
	// or an explicit Poison call.
	Poisoned
	// TimedOut: the caller parked and its turn never came within the
	// configured bound. The engine is poisoned as a side effect.
	TimedOut
)

func (o Outcome) String() string {
	switch o {
	case Proceeded:
		return "proceeded"
	case Skipped:
		return "skipped"
	case Poisoned:
		return "poisoned"
	case TimedOut:
		return "timed-out"
	default:
		return "unknown"
	}
}
