package fsm

import (
	"context"
	"errors"

	loopfsm "github.com/looplab/fsm"

	"github.com/Krutik090/phishing-backend/internal/domain"
)

// Compile-time check: Validator implements domain.TransitionValidator.
var _ domain.TransitionValidator = (*Validator)(nil)

// eventTable is domain.Transitions in looplab/fsm's EventDesc shape. The
// lifecycle allows one event to leave several states for the same
// destination (cancel works from trial, active and suspended), which maps
// to a single EventDesc listing all those sources.
var eventTable = buildEventTable()

func buildEventTable() []loopfsm.EventDesc {
	var descs []loopfsm.EventDesc

	for _, t := range domain.Transitions {
		merged := false
		for i := range descs {
			if descs[i].Name == string(t.Event) && descs[i].Dst == string(t.Dst) {
				descs[i].Src = append(descs[i].Src, string(t.Src))
				merged = true
				break
			}
		}
		if !merged {
			descs = append(descs, loopfsm.EventDesc{
				Name: string(t.Event),
				Src:  []string{string(t.Src)},
				Dst:  string(t.Dst),
			})
		}
	}
	return descs
}

// Validator checks lifecycle transitions with looplab/fsm. The library
// tracks current state inside the machine, so each Apply seeds a throwaway
// machine with the tenant's stored status instead of sharing one.
type Validator struct{}

// New creates a new FSM-backed transition validator.
func New() *Validator {
	return &Validator{}
}

// Apply fires event against the tenant's current status and returns the
// resulting status, or a domain.TransitionError when the lifecycle has no
// such edge.
func (v *Validator) Apply(ctx context.Context, current domain.Status, event domain.Event) (domain.Status, error) {
	machine := loopfsm.NewFSM(string(current), eventTable, nil)

	if err := machine.Event(ctx, string(event)); err != nil {
		var invalidEvent loopfsm.InvalidEventError
		var noTransition loopfsm.NoTransitionError
		if errors.As(err, &invalidEvent) || errors.As(err, &noTransition) {
			return "", &domain.TransitionError{
				Event:   event,
				Current: current,
			}
		}
		return "", err
	}

	return domain.Status(machine.Current()), nil
}
