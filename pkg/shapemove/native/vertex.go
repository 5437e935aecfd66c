package native

import (
	"fmt"
	"math"
	"math/rand"

	"github.com/cbeckmann/shapemc/pkg/geometry"
	"github.com/cbeckmann/shapemc/pkg/hpmc"
)

// VertexMove perturbs shape vertices while holding the convex hull volume at
// a per-type target. After perturbation the vertices are recentered on the
// hull's center of mass and rescaled so the hull volume matches the target.
//
// On acceptance the type's step size is multiplied by the same cube-root
// volume ratio that rescaled the vertices, keeping proposal magnitudes
// proportional to the shape and the move reversible.
type VertexMove struct {
	volumes map[string]float64
	frac    float64
	steps   stepmap
	pending map[string]float64
}

// NewVertexMove creates a vertex move over per-type target volumes. frac is
// the fraction of vertices perturbed per proposal, with a minimum of one.
func NewVertexMove(volumes map[string]float64, frac, stepSize float64) *VertexMove {
	own := make(map[string]float64, len(volumes))
	for k, v := range volumes {
		own[k] = v
	}
	return &VertexMove{
		volumes: own,
		frac:    frac,
		steps:   newStepmap(stepSize),
		pending: make(map[string]float64),
	}
}

// Propose perturbs a fraction of the vertices and rescales the result to the
// type's target volume. Proposals whose hull degenerates return an error and
// should be counted as rejected.
func (m *VertexMove) Propose(rng *rand.Rand, typeName string, current hpmc.ShapeParams, step uint64) (hpmc.ShapeParams, error) {
	target, ok := m.volumes[typeName]
	if !ok {
		return hpmc.ShapeParams{}, fmt.Errorf("no target volume for type %q", typeName)
	}

	out := current.Clone()
	n := len(out.Vertices)
	if n == 0 {
		return hpmc.ShapeParams{}, fmt.Errorf("type %q has no vertices to move", typeName)
	}

	k := int(math.Round(m.frac * float64(n)))
	if k < 1 {
		k = 1
	}
	size := m.steps.get(typeName)
	for _, i := range rng.Perm(n)[:k] {
		for c := 0; c < 3; c++ {
			out.Vertices[i][c] += (rng.Float64()*2 - 1) * size
		}
	}

	volume, com, err := geometry.MassProperties(geometry.FromArrays(out.Vertices))
	if err != nil {
		return hpmc.ShapeParams{}, fmt.Errorf("perturbed hull for type %q: %w", typeName, err)
	}

	scale := math.Cbrt(target / volume)
	for i := range out.Vertices {
		out.Vertices[i][0] = (out.Vertices[i][0] - com.X) * scale
		out.Vertices[i][1] = (out.Vertices[i][1] - com.Y) * scale
		out.Vertices[i][2] = (out.Vertices[i][2] - com.Z) * scale
	}

	m.pending[typeName] = scale
	return out, nil
}

// Energy is always zero; vertex moves carry no energetic preference.
func (m *VertexMove) Energy(typeName string, p hpmc.ShapeParams, step uint64) float64 {
	return 0
}

// Accepted rescales the type's step size by the volume ratio of the
// committed proposal.
func (m *VertexMove) Accepted(typeName string) {
	if scale, ok := m.pending[typeName]; ok {
		m.steps.scale(typeName, scale)
		delete(m.pending, typeName)
	}
}

// Rejected discards the pending rescale factor.
func (m *VertexMove) Rejected(typeName string) {
	delete(m.pending, typeName)
}

// Volume returns the target volume for one type.
func (m *VertexMove) Volume(typeName string) (float64, bool) {
	v, ok := m.volumes[typeName]
	return v, ok
}

// SetVolume replaces the target volume for one type.
func (m *VertexMove) SetVolume(typeName string, volume float64) {
	m.volumes[typeName] = volume
}

// StepSizes returns the per-type proposal step sizes.
func (m *VertexMove) StepSizes() map[string]float64 {
	return m.steps.snapshot()
}

// SetStepSize overrides the proposal step size for one type.
func (m *VertexMove) SetStepSize(typeName string, size float64) {
	m.steps.set(typeName, size)
}
