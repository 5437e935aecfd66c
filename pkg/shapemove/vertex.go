package shapemove

import (
	"fmt"
	"log/slog"
	"math"

	"github.com/cbeckmann/shapemc/pkg/hpmc"
	"github.com/cbeckmann/shapemc/pkg/shapemove/native"
	"github.com/cbeckmann/shapemc/pkg/sim"
	"github.com/cbeckmann/shapemc/pkg/typeparam"
)

// Vertex perturbs shape vertices while holding each type's convex hull
// volume at a fixed target. The move probability is the fraction of vertices
// perturbed per proposal, with a minimum of one.
type Vertex struct {
	base
	volumes *typeparam.Map[float64]
	handle  *native.VertexMove

	// StepSize is the initial magnitude of vertex displacements. The native
	// move rescales it per type as moves are accepted.
	StepSize float64
}

// NewVertex creates a vertex move.
func NewVertex(moveProbability float64) (*Vertex, error) {
	if err := validateProbability(moveProbability); err != nil {
		return nil, err
	}
	return &Vertex{
		base:     base{kind: MoveVertex, prob: moveProbability},
		volumes:  typeparam.New[float64](),
		StepSize: 0.1,
	}, nil
}

// SetVolume sets the target hull volume for a particle type. While attached,
// the update reaches the native move immediately.
func (m *Vertex) SetVolume(typeName string, volume float64) error {
	if typeName == "" {
		return &ValidationError{Field: "volume", Reason: "type name cannot be empty"}
	}
	if math.IsNaN(volume) || volume <= 0 {
		return &ValidationError{Field: "volume", Reason: fmt.Sprintf("must be positive, got %g", volume)}
	}
	m.volumes.Set(typeName, volume)
	if m.state == Attached {
		m.handle.SetVolume(typeName, volume)
	}
	return nil
}

// Volume returns the target hull volume for a particle type.
func (m *Vertex) Volume(typeName string) (float64, bool) {
	return m.volumes.Get(typeName)
}

// Attach verifies volume coverage for the system's types, then builds the
// native move.
func (m *Vertex) Attach(sys *sim.SystemDefinition, ig hpmc.Integrator) (native.Move, error) {
	if err := m.checkAttachable(sys, ig); err != nil {
		return nil, err
	}
	if err := m.precheck(sys); err != nil {
		return nil, err
	}
	mv, err := buildNative(m, sys, ig)
	if err != nil {
		return nil, err
	}
	m.handle = mv.(*native.VertexMove)
	m.complete(mv, ig.Kind())
	slog.Debug("Shape move attached", "move", m.kind, "integrator", ig.Name())
	return mv, nil
}

// Detach releases the native move handle.
func (m *Vertex) Detach() error {
	if err := m.base.Detach(); err != nil {
		return err
	}
	m.handle = nil
	return nil
}

// precheck runs before the capability check: every system type needs a
// target volume.
func (m *Vertex) precheck(sys *sim.SystemDefinition) error {
	for _, typeName := range sys.ParticleTypes() {
		if !m.volumes.Has(typeName) {
			return &ConfigurationError{Field: "volume", Reason: fmt.Sprintf("missing for particle type %q", typeName)}
		}
	}
	if m.StepSize <= 0 {
		return &ValidationError{Field: "step_size", Reason: fmt.Sprintf("must be positive, got %g", m.StepSize)}
	}
	return nil
}

func init() {
	f := func(s Strategy, sys *sim.SystemDefinition, ig hpmc.Integrator) (native.Move, error) {
		v := s.(*Vertex)
		return native.NewVertexMove(v.volumes.Snapshot(), v.prob, v.StepSize), nil
	}
	registerFactory(MoveVertex, hpmc.KindConvexPolyhedron, f)
	registerFactory(MoveVertex, hpmc.KindConvexSpheropolyhedron, f)
}
