package shapemove

import (
	"fmt"
	"log/slog"

	"github.com/cbeckmann/shapemc/pkg/hpmc"
	"github.com/cbeckmann/shapemc/pkg/shapemove/native"
	"github.com/cbeckmann/shapemc/pkg/sim"
	"github.com/cbeckmann/shapemc/pkg/typeparam"
)

// ShapeCallback maps a tunable parameter vector to shape parameters. The
// output contract is documented on native.ShapeCallback: returned shapes are
// committed without geometric validation.
type ShapeCallback = native.ShapeCallback

// ShapeCallbackFunc adapts a plain function to the ShapeCallback interface.
type ShapeCallbackFunc = native.ShapeCallbackFunc

// Callback drives shapes through a user-supplied parameter-to-shape mapping.
// The move probability is the fraction of each type's parameters perturbed
// per proposal, with a minimum of one.
type Callback struct {
	base
	cb     ShapeCallback
	params *typeparam.Map[[]float64]
	handle *native.CallbackMove

	// StepSize is the magnitude of parameter perturbations.
	StepSize float64
}

// NewCallback creates a callback-driven move.
func NewCallback(cb ShapeCallback, moveProbability float64) (*Callback, error) {
	if cb == nil {
		return nil, &ConfigurationError{Field: "callback", Reason: "cannot be nil"}
	}
	if err := validateProbability(moveProbability); err != nil {
		return nil, err
	}
	return &Callback{
		base:     base{kind: MoveCallback, prob: moveProbability},
		cb:       cb,
		params:   typeparam.New[[]float64](),
		StepSize: 0.1,
	}, nil
}

// SetParams assigns the tunable parameter vector for a particle type. While
// attached, the update reaches the native move immediately.
func (m *Callback) SetParams(typeName string, params []float64) error {
	if typeName == "" {
		return &ValidationError{Field: "params", Reason: "type name cannot be empty"}
	}
	if len(params) == 0 {
		return &ValidationError{Field: "params", Reason: fmt.Sprintf("vector for type %q cannot be empty", typeName)}
	}
	own := append([]float64{}, params...)
	m.params.Set(typeName, own)
	if m.state == Attached {
		m.handle.SetParams(typeName, own)
	}
	return nil
}

// Params returns the current parameter vector for a particle type: the
// committed vector while attached, the configured one otherwise.
func (m *Callback) Params(typeName string) ([]float64, bool) {
	if m.state == Attached {
		v, ok := m.handle.TypeParams()[typeName]
		return v, ok
	}
	v, ok := m.params.Get(typeName)
	if !ok {
		return nil, false
	}
	return append([]float64{}, v...), true
}

// TypeParams returns the committed per-type parameter vectors. The move must
// be attached and have generated at least one proposal; earlier calls return
// a NotReadyError.
func (m *Callback) TypeParams() (map[string][]float64, error) {
	if m.state != Attached {
		return nil, &NotReadyError{Op: "type_params", Reason: "move is not attached"}
	}
	if !m.handle.Ran() {
		return nil, &NotReadyError{Op: "type_params", Reason: "move has not generated a proposal yet"}
	}
	return m.handle.TypeParams(), nil
}

// Attach verifies parameter coverage for the system's types, then builds
// the native move.
func (m *Callback) Attach(sys *sim.SystemDefinition, ig hpmc.Integrator) (native.Move, error) {
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
	m.handle = mv.(*native.CallbackMove)
	m.complete(mv, ig.Kind())
	slog.Debug("Shape move attached", "move", m.kind, "integrator", ig.Name())
	return mv, nil
}

// Detach releases the native move handle.
func (m *Callback) Detach() error {
	if err := m.base.Detach(); err != nil {
		return err
	}
	m.handle = nil
	return nil
}

// precheck runs before the capability check: every system type needs a
// parameter vector.
func (m *Callback) precheck(sys *sim.SystemDefinition) error {
	for _, typeName := range sys.ParticleTypes() {
		if !m.params.Has(typeName) {
			return &ConfigurationError{Field: "params", Reason: fmt.Sprintf("missing for particle type %q", typeName)}
		}
	}
	if m.StepSize <= 0 {
		return &ValidationError{Field: "step_size", Reason: fmt.Sprintf("must be positive, got %g", m.StepSize)}
	}
	return nil
}

func init() {
	f := func(s Strategy, sys *sim.SystemDefinition, ig hpmc.Integrator) (native.Move, error) {
		c := s.(*Callback)
		// The native move carries exactly the system's particle types;
		// vectors configured for undeclared types stay on the strategy.
		params := make(map[string][]float64, sys.NumTypes())
		for _, typeName := range sys.ParticleTypes() {
			if v, ok := c.params.Get(typeName); ok {
				params[typeName] = v
			}
		}
		return native.NewCallbackMove(c.cb, params, c.prob, c.StepSize), nil
	}
	registerFactory(MoveCallback, hpmc.KindConvexPolyhedron, f)
	registerFactory(MoveCallback, hpmc.KindConvexSpheropolyhedron, f)
	registerFactory(MoveCallback, hpmc.KindEllipsoid, f)
}
