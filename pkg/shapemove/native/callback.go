package native

import (
	"fmt"
	"math"
	"math/rand"

	"github.com/cbeckmann/shapemc/pkg/hpmc"
)

// CallbackMove perturbs per-type tunable parameter vectors and maps them to
// shapes through a user-supplied callback. The callback's output is committed
// without geometric validation.
//
// Trial vectors are held pending until the driver reports acceptance, so the
// committed vectors always describe the integrator's committed shapes.
type CallbackMove struct {
	cb      ShapeCallback
	params  map[string][]float64
	pending map[string][]float64
	frac    float64
	steps   stepmap
	ran     bool
}

// NewCallbackMove creates a callback move over the given per-type parameter
// vectors. frac is the fraction of each vector perturbed per proposal, with
// a minimum of one element.
func NewCallbackMove(cb ShapeCallback, params map[string][]float64, frac, stepSize float64) *CallbackMove {
	own := make(map[string][]float64, len(params))
	for k, v := range params {
		own[k] = append([]float64{}, v...)
	}
	return &CallbackMove{
		cb:      cb,
		params:  own,
		pending: make(map[string][]float64),
		frac:    frac,
		steps:   newStepmap(stepSize),
	}
}

// Propose perturbs a fraction of the type's parameters and maps the trial
// vector through the callback.
func (m *CallbackMove) Propose(rng *rand.Rand, typeName string, current hpmc.ShapeParams, step uint64) (hpmc.ShapeParams, error) {
	vec, ok := m.params[typeName]
	if !ok {
		return hpmc.ShapeParams{}, fmt.Errorf("no tunable parameters for type %q", typeName)
	}

	trial := append([]float64{}, vec...)
	n := len(trial)
	k := int(math.Round(m.frac * float64(n)))
	if k < 1 {
		k = 1
	}
	size := m.steps.get(typeName)
	for _, i := range rng.Perm(n)[:k] {
		trial[i] += (rng.Float64()*2 - 1) * size
	}

	shape, err := m.cb.Shape(typeName, trial)
	if err != nil {
		return hpmc.ShapeParams{}, fmt.Errorf("shape callback failed for type %q: %w", typeName, err)
	}

	m.pending[typeName] = trial
	m.ran = true
	return shape, nil
}

// Energy is always zero; callback moves carry no energetic preference.
func (m *CallbackMove) Energy(typeName string, p hpmc.ShapeParams, step uint64) float64 {
	return 0
}

// Accepted commits the type's pending trial vector.
func (m *CallbackMove) Accepted(typeName string) {
	if trial, ok := m.pending[typeName]; ok {
		m.params[typeName] = trial
		delete(m.pending, typeName)
	}
}

// Rejected discards the type's pending trial vector.
func (m *CallbackMove) Rejected(typeName string) {
	delete(m.pending, typeName)
}

// Ran reports whether the move has generated at least one proposal.
func (m *CallbackMove) Ran() bool {
	return m.ran
}

// TypeParams returns a copy of the committed per-type parameter vectors.
func (m *CallbackMove) TypeParams() map[string][]float64 {
	out := make(map[string][]float64, len(m.params))
	for k, v := range m.params {
		out[k] = append([]float64{}, v...)
	}
	return out
}

// SetParams replaces the committed parameter vector for one type.
func (m *CallbackMove) SetParams(typeName string, params []float64) {
	m.params[typeName] = append([]float64{}, params...)
	delete(m.pending, typeName)
}

// StepSizes returns the per-type perturbation step sizes.
func (m *CallbackMove) StepSizes() map[string]float64 {
	return m.steps.snapshot()
}

// SetStepSize overrides the perturbation step size for one type.
func (m *CallbackMove) SetStepSize(typeName string, size float64) {
	m.steps.set(typeName, size)
}
