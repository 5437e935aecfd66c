package shapemove

import (
	"fmt"
	"log/slog"

	"github.com/cbeckmann/shapemc/pkg/hpmc"
	"github.com/cbeckmann/shapemc/pkg/shapemove/native"
	"github.com/cbeckmann/shapemc/pkg/sim"
	"github.com/cbeckmann/shapemc/pkg/typeparam"
	"github.com/cbeckmann/shapemc/pkg/variant"
)

// Elastic proposes volume-preserving deformations scored by a
// stiffness-weighted energy against per-type reference shapes. The move
// probability is the fraction of proposals that are axis scalings; the rest
// are shears.
//
// Reference shapes may be assigned before or after attach. For ellipsoid
// integrators every reference must be isotropic (a == b == c).
type Elastic struct {
	base
	stiffness variant.Variant
	refs      *typeparam.Map[hpmc.ShapeParams]
	energy    native.EnergyFunc

	// StepSize is the magnitude of scale and shear perturbations.
	StepSize float64
}

// NewElastic creates an elastic move with the given stiffness schedule.
func NewElastic(stiffness variant.Variant, moveProbability float64) (*Elastic, error) {
	if stiffness == nil {
		return nil, &ConfigurationError{Field: "stiffness", Reason: "cannot be nil"}
	}
	if err := validateProbability(moveProbability); err != nil {
		return nil, err
	}
	return &Elastic{
		base:      base{kind: MoveElastic, prob: moveProbability},
		stiffness: stiffness,
		refs:      typeparam.New[hpmc.ShapeParams](),
		StepSize:  0.05,
	}, nil
}

// Stiffness returns the stiffness schedule.
func (m *Elastic) Stiffness() variant.Variant {
	return m.stiffness
}

// SetReference assigns the reference shape for a particle type. While
// attached, the reference must be valid for the integrator's shape family,
// and isotropic when that family is Ellipsoid.
func (m *Elastic) SetReference(typeName string, p hpmc.ShapeParams) error {
	if typeName == "" {
		return &ValidationError{Field: "reference_shape", Reason: "type name cannot be empty"}
	}
	if m.state == Attached {
		if err := m.validateReference(typeName, p, m.igKind); err != nil {
			return err
		}
	}
	m.refs.Set(typeName, p.Clone())
	return nil
}

// Reference returns the reference shape for a particle type.
func (m *Elastic) Reference(typeName string) (hpmc.ShapeParams, bool) {
	p, ok := m.refs.Get(typeName)
	if !ok {
		return hpmc.ShapeParams{}, false
	}
	return p.Clone(), true
}

// SetEnergyFunc overrides the deformation energy measure. Passing nil
// restores the default squared-displacement energy.
func (m *Elastic) SetEnergyFunc(fn native.EnergyFunc) {
	m.energy = fn
}

// Attach verifies reference coverage and validity for the integrator's
// shape family, then builds the native move.
func (m *Elastic) Attach(sys *sim.SystemDefinition, ig hpmc.Integrator) (native.Move, error) {
	if err := m.checkAttachable(sys, ig); err != nil {
		return nil, err
	}
	if err := m.precheck(sys, ig); err != nil {
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

// precheck runs before the capability check: every system type needs a
// reference, and on ellipsoid integrators both the references and the
// committed integrator shapes must be isotropic regardless of whether the
// pairing is ultimately supported.
func (m *Elastic) precheck(sys *sim.SystemDefinition, ig hpmc.Integrator) error {
	for _, typeName := range sys.ParticleTypes() {
		ref, ok := m.refs.Get(typeName)
		if !ok {
			return &ConfigurationError{Field: "reference_shape", Reason: fmt.Sprintf("missing for particle type %q", typeName)}
		}
		if err := m.validateReference(typeName, ref, ig.Kind()); err != nil {
			return err
		}
		if ig.Kind() == hpmc.KindEllipsoid {
			if p, ok := ig.Shape(typeName); ok && !p.Isotropic() {
				return &ValidationError{
					Field:  "integrator_shape",
					Reason: fmt.Sprintf("type %q must have a == b == c for ellipsoid integrators", typeName),
				}
			}
		}
	}
	if m.StepSize <= 0 {
		return &ValidationError{Field: "step_size", Reason: fmt.Sprintf("must be positive, got %g", m.StepSize)}
	}
	return nil
}

func (m *Elastic) validateReference(typeName string, ref hpmc.ShapeParams, kind hpmc.Kind) error {
	switch kind {
	case hpmc.KindEllipsoid:
		if !ref.Isotropic() {
			return &ValidationError{
				Field:  "reference_shape",
				Reason: fmt.Sprintf("type %q must have a == b == c for ellipsoid integrators", typeName),
			}
		}
		if err := ref.Validate(hpmc.KindEllipsoid); err != nil {
			return &ValidationError{Field: "reference_shape", Reason: err.Error()}
		}
	case hpmc.KindConvexPolyhedron:
		if err := ref.Validate(hpmc.KindConvexPolyhedron); err != nil {
			return &ValidationError{Field: "reference_shape", Reason: err.Error()}
		}
	}
	return nil
}

func init() {
	f := func(s Strategy, sys *sim.SystemDefinition, ig hpmc.Integrator) (native.Move, error) {
		e := s.(*Elastic)
		return native.NewElasticMove(ig.Kind(), e.stiffness, e.refs, e.prob, e.StepSize, e.energy), nil
	}
	registerFactory(MoveElastic, hpmc.KindConvexPolyhedron, f)
	registerFactory(MoveElastic, hpmc.KindEllipsoid, f)
}
