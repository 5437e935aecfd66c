package hpmc

import (
	"fmt"

	"github.com/cbeckmann/shapemc/pkg/sim"
	"github.com/cbeckmann/shapemc/pkg/typeparam"
)

// Integrator is the contract of a hard-particle Monte Carlo integrator as
// seen by shape-change operations: it knows its shape family and owns the
// committed shape of every particle type.
type Integrator interface {
	sim.Integrator

	// Kind returns the shape family this integrator simulates.
	Kind() Kind

	// Shape returns the committed shape parameters for a particle type.
	Shape(typeName string) (ShapeParams, bool)

	// SetShape replaces the shape parameters for a particle type.
	// The replacement is complete: no partially updated shape is observable.
	SetShape(typeName string, p ShapeParams) error
}

// MonteCarlo is an in-process hard-particle integrator handle. It validates
// and stores the per-type shapes that shape moves read and commit to; the
// trial-move kernels proper are outside this layer.
type MonteCarlo struct {
	kind   Kind
	shapes *typeparam.Map[ShapeParams]
	sys    *sim.SystemDefinition
}

// NewMonteCarlo creates an unattached integrator for the given shape family.
func NewMonteCarlo(kind Kind) *MonteCarlo {
	return &MonteCarlo{
		kind:   kind,
		shapes: typeparam.New[ShapeParams](),
	}
}

// Name identifies the integrator, including its shape family.
func (m *MonteCarlo) Name() string {
	return "hpmc." + string(m.kind)
}

// Kind returns the integrator's shape family.
func (m *MonteCarlo) Kind() Kind {
	return m.kind
}

// Attached reports whether the integrator is bound to a system.
func (m *MonteCarlo) Attached() bool {
	return m.sys != nil
}

// Attach binds the integrator to a system. Every particle type declared by
// the system must have a shape assigned first.
func (m *MonteCarlo) Attach(sys *sim.SystemDefinition) error {
	if sys == nil {
		return fmt.Errorf("system definition cannot be nil")
	}
	if m.sys != nil {
		return fmt.Errorf("integrator %s already attached", m.Name())
	}
	for _, typeName := range sys.ParticleTypes() {
		if !m.shapes.Has(typeName) {
			return fmt.Errorf("no shape assigned for particle type %q", typeName)
		}
	}
	m.sys = sys
	return nil
}

// Detach unbinds the integrator from its system. Shapes are kept.
func (m *MonteCarlo) Detach() {
	m.sys = nil
}

// System returns the bound system, or nil when unattached.
func (m *MonteCarlo) System() *sim.SystemDefinition {
	return m.sys
}

// ParticleTypes returns the types with an assigned shape, sorted.
func (m *MonteCarlo) ParticleTypes() []string {
	return m.shapes.Types()
}

// Shape returns the committed shape parameters for a particle type.
func (m *MonteCarlo) Shape(typeName string) (ShapeParams, bool) {
	p, ok := m.shapes.Get(typeName)
	if !ok {
		return ShapeParams{}, false
	}
	return p.Clone(), true
}

// SetShape validates and stores the shape parameters for a particle type.
// When attached, the type must be one the system declares.
func (m *MonteCarlo) SetShape(typeName string, p ShapeParams) error {
	if typeName == "" {
		return fmt.Errorf("particle type name cannot be empty")
	}
	if m.sys != nil && !m.sys.HasType(typeName) {
		return fmt.Errorf("system does not declare particle type %q", typeName)
	}
	if err := p.Validate(m.kind); err != nil {
		return fmt.Errorf("invalid shape for type %q: %w", typeName, err)
	}
	m.shapes.Set(typeName, p.Clone())
	return nil
}

// Shapes returns a snapshot of all committed shapes keyed by type name.
func (m *MonteCarlo) Shapes() map[string]ShapeParams {
	out := make(map[string]ShapeParams, m.shapes.Len())
	for name, p := range m.shapes.Snapshot() {
		out[name] = p.Clone()
	}
	return out
}
