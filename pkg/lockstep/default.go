package lockstep

import "sync"

// Shared default engine. Library users that sprinkle lockstep.WaitAt calls
// through code under test go through this instance; isolated test contexts
// can construct their own Engine and either pass it around or install it with
// SetDefault.
var (
	def   *Engine
	defMu sync.Mutex
)

// Default returns the process-wide engine, creating an unarmed one on first
// use.
func Default() *Engine {
	defMu.Lock()
	defer defMu.Unlock()
	if def == nil {
		def = NewEngine()
	}
	return def
}

// SetDefault replaces the process-wide engine. Must not race with WaitAt
// calls.
func SetDefault(e *Engine) {
	defMu.Lock()
	def = e
	defMu.Unlock()
}

// WaitAt calls WaitAt on the default engine.
func WaitAt(name string) Outcome {
	return Default().WaitAt(name)
}

// BeginScenario arms the default engine.
func BeginScenario(s Schedule) error {
	return Default().BeginScenario(s)
}

// EndScenario reports completion of the default engine's scenario.
func EndScenario() CompletionReport {
	return Default().EndScenario()
}

// Poison poisons the default engine.
func Poison(reason string) {
	Default().Poison(reason)
}
