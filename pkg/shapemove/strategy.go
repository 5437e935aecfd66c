package shapemove

import (
	"fmt"
	"math"

	"github.com/cbeckmann/shapemc/pkg/hpmc"
	"github.com/cbeckmann/shapemc/pkg/shapemove/native"
	"github.com/cbeckmann/shapemc/pkg/sim"
)

// Strategy is a shape move policy. It validates its configuration against a
// system and integrator at attach time and produces the native move handle
// the sweep driver calls.
//
// Strategies are driven from a single goroutine and are not internally
// synchronized.
type Strategy interface {
	// Kind returns the policy identity.
	Kind() MoveKind

	// Compat returns the shape families the policy can drive.
	Compat() CompatibilitySet

	// State returns the current binding state.
	State() BindingState

	// MoveProbability returns the policy's probability knob. Its meaning
	// is policy-specific; see the concrete types.
	MoveProbability() float64

	// Attach validates the configuration against the system and integrator
	// and, on success, transitions to Attached and returns the native move
	// handle. Validation is fail-fast: the first problem is returned and
	// the strategy stays in its prior state.
	Attach(sys *sim.SystemDefinition, ig hpmc.Integrator) (native.Move, error)

	// Detach releases the native move. Detaching an already detached
	// strategy is a no-op; a strategy that was never attached returns
	// NotReadyError. A detached strategy may attach again.
	Detach() error

	// Native returns the current native move handle, or nil when the
	// strategy is not attached.
	Native() native.Move
}

// base carries the lifecycle plumbing shared by all strategies.
type base struct {
	kind   MoveKind
	prob   float64
	state  BindingState
	move   native.Move
	igKind hpmc.Kind
}

func (b *base) Kind() MoveKind {
	return b.kind
}

func (b *base) Compat() CompatibilitySet {
	return Compat(b.kind)
}

func (b *base) State() BindingState {
	return b.state
}

func (b *base) MoveProbability() float64 {
	return b.prob
}

func (b *base) Native() native.Move {
	return b.move
}

// Detach releases the native move handle. Detaching an already detached move
// is a no-op.
func (b *base) Detach() error {
	if b.state == Detached {
		return nil
	}
	if !b.state.canDetach() {
		return &NotReadyError{Op: "detach", Reason: fmt.Sprintf("move is %s", b.state)}
	}
	b.move = nil
	b.state = Detached
	return nil
}

// checkAttachable guards the attach transition and the handles involved.
func (b *base) checkAttachable(sys *sim.SystemDefinition, ig hpmc.Integrator) error {
	if !b.state.canAttach() {
		return &NotReadyError{Op: "attach", Reason: "move is already attached"}
	}
	if sys == nil {
		return &ConfigurationError{Field: "system", Reason: "cannot be nil"}
	}
	if ig == nil {
		return &ConfigurationError{Field: "integrator", Reason: "cannot be nil"}
	}
	if !ig.Attached() {
		return &ConfigurationError{Field: "integrator", Reason: "is not attached to a system"}
	}
	return nil
}

// complete commits the attach transition.
func (b *base) complete(mv native.Move, igKind hpmc.Kind) {
	b.move = mv
	b.igKind = igKind
	b.state = Attached
}

// validateProbability checks the [0, 1] range shared by all constructors.
func validateProbability(p float64) error {
	if math.IsNaN(p) || p < 0 || p > 1 {
		return &ValidationError{Field: "move_probability", Reason: fmt.Sprintf("must be in [0, 1], got %g", p)}
	}
	return nil
}
