package shapemove

import (
	"log/slog"

	"github.com/cbeckmann/shapemc/pkg/hpmc"
	"github.com/cbeckmann/shapemc/pkg/shapemove/native"
	"github.com/cbeckmann/shapemc/pkg/sim"
)

// Constant pins every particle type to a single target shape. Proposals
// always return the target, so the integrator converges to it on the first
// accepted move of each type. The move probability is fixed at 1.
type Constant struct {
	base
	target hpmc.ShapeParams
}

// NewConstant creates a fixed-target move. The target is validated against
// the integrator's shape family when the move attaches.
func NewConstant(target hpmc.ShapeParams) *Constant {
	return &Constant{
		base:   base{kind: MoveConstant, prob: 1},
		target: target.Clone(),
	}
}

// Target returns the configured target shape.
func (m *Constant) Target() hpmc.ShapeParams {
	return m.target.Clone()
}

// Attach validates the target against the integrator's shape family and
// builds the native move.
func (m *Constant) Attach(sys *sim.SystemDefinition, ig hpmc.Integrator) (native.Move, error) {
	if err := m.checkAttachable(sys, ig); err != nil {
		return nil, err
	}
	mv, err := buildNative(m, sys, ig)
	if err != nil {
		return nil, err
	}
	m.complete(mv, ig.Kind())
	slog.Debug("Shape move attached", "move", m.kind, "integrator", ig.Name())
	return mv, nil
}

func init() {
	f := func(s Strategy, sys *sim.SystemDefinition, ig hpmc.Integrator) (native.Move, error) {
		c := s.(*Constant)
		if err := c.target.Validate(ig.Kind()); err != nil {
			return nil, &ValidationError{Field: "shape_params", Reason: err.Error()}
		}
		return native.NewConstantMove(c.target), nil
	}
	for _, k := range hpmc.Kinds() {
		registerFactory(MoveConstant, k, f)
	}
}
