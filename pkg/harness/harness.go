// Package harness runs scenario participants and keeps a failed participant
// from hanging its peers: a goroutine that panics or returns an error while
// others are parked in the engine would leave them waiting for occurrences
// that can never arrive, so the harness poisons the engine on its way out.
package harness

import (
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/amirkhaki/lockstep/pkg/lockstep"
)

// Group runs the participant goroutines of one scenario.
type Group struct {
	eng *lockstep.Engine
	eg  errgroup.Group
}

// NewGroup returns a group whose participants synchronize through eng.
func NewGroup(eng *lockstep.Engine) *Group {
	return &Group{eng: eng}
}

// Go starts participant fn. If fn panics or returns an error the engine is
// poisoned so parked peers fail fast instead of waiting out the timeout, and
// the failure becomes the group error.
func (g *Group) Go(name string, fn func() error) {
	g.eg.Go(func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("participant %s panicked: %v", name, r)
				g.eng.Poison(err.Error())
			}
		}()
		if ferr := fn(); ferr != nil {
			err = fmt.Errorf("participant %s failed: %w", name, ferr)
			g.eng.Poison(err.Error())
		}
		return err
	})
}

// Wait blocks until every participant has returned and reports the first
// failure.
func (g *Group) Wait() error {
	return g.eg.Wait()
}
