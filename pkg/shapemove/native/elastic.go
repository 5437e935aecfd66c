package native

import (
	"fmt"
	"math"
	"math/rand"

	"github.com/cbeckmann/shapemc/pkg/hpmc"
	"github.com/cbeckmann/shapemc/pkg/typeparam"
	"github.com/cbeckmann/shapemc/pkg/variant"
)

// EnergyFunc measures the deformation energy of a trial shape against its
// reference, before the stiffness factor is applied.
type EnergyFunc func(trial, reference hpmc.ShapeParams) float64

// SquaredDisplacementEnergy is the default deformation energy: the summed
// squared displacement of each vertex from its reference position, or the
// summed squared semi-axis differences for ellipsoids. Shapes with mismatched
// vertex counts are incomparable and get infinite energy.
func SquaredDisplacementEnergy(trial, reference hpmc.ShapeParams) float64 {
	if len(reference.Vertices) == 0 {
		da := trial.A - reference.A
		db := trial.B - reference.B
		dc := trial.C - reference.C
		return da*da + db*db + dc*dc
	}
	if len(trial.Vertices) != len(reference.Vertices) {
		return math.Inf(1)
	}
	var sum float64
	for i, v := range trial.Vertices {
		r := reference.Vertices[i]
		dx, dy, dz := v[0]-r[0], v[1]-r[1], v[2]-r[2]
		sum += dx*dx + dy*dy + dz*dz
	}
	return sum
}

// ElasticMove proposes volume-preserving deformations and scores them with a
// stiffness-weighted deformation energy against per-type reference shapes.
//
// For convex polyhedra a proposal is either an axis scaling with unit
// determinant (probability scaleProb) or a shear (otherwise). Ellipsoid
// proposals are always volume-preserving axis scalings of the semi-axes.
//
// The reference map is shared with the owning strategy, so reference updates
// made after attach are visible without copying.
type ElasticMove struct {
	kind      hpmc.Kind
	stiffness variant.Variant
	refs      *typeparam.Map[hpmc.ShapeParams]
	scaleProb float64
	steps     stepmap
	energy    EnergyFunc
}

// NewElasticMove creates an elastic move for the given shape family.
func NewElasticMove(kind hpmc.Kind, stiffness variant.Variant, refs *typeparam.Map[hpmc.ShapeParams], scaleProb, stepSize float64, energy EnergyFunc) *ElasticMove {
	if energy == nil {
		energy = SquaredDisplacementEnergy
	}
	return &ElasticMove{
		kind:      kind,
		stiffness: stiffness,
		refs:      refs,
		scaleProb: scaleProb,
		steps:     newStepmap(stepSize),
		energy:    energy,
	}
}

// Propose generates a volume-preserving deformation of the current shape.
func (m *ElasticMove) Propose(rng *rand.Rand, typeName string, current hpmc.ShapeParams, step uint64) (hpmc.ShapeParams, error) {
	size := m.steps.get(typeName)
	u := (rng.Float64()*2 - 1) * size

	if m.kind == hpmc.KindEllipsoid {
		return scaleEllipsoid(rng, current, u)
	}
	if rng.Float64() < m.scaleProb {
		return scaleVertices(rng, current, u)
	}
	return shearVertices(rng, current, u), nil
}

// Energy returns stiffness(step) times the deformation energy against the
// type's reference shape. Types with no reference contribute nothing.
func (m *ElasticMove) Energy(typeName string, p hpmc.ShapeParams, step uint64) float64 {
	ref, ok := m.refs.Get(typeName)
	if !ok {
		return 0
	}
	return m.stiffness.Value(step) * m.energy(p, ref)
}

// Accepted is a no-op; elastic step sizes are not self-adjusting.
func (m *ElasticMove) Accepted(typeName string) {}

// Rejected is a no-op.
func (m *ElasticMove) Rejected(typeName string) {}

// StepSizes returns the per-type proposal step sizes.
func (m *ElasticMove) StepSizes() map[string]float64 {
	return m.steps.snapshot()
}

// SetStepSize overrides the proposal step size for one type.
func (m *ElasticMove) SetStepSize(typeName string, size float64) {
	m.steps.set(typeName, size)
}

// scaleVertices applies a unit-determinant axis scaling: one random axis is
// stretched by 1+u and the other two shrunk to compensate.
func scaleVertices(rng *rand.Rand, current hpmc.ShapeParams, u float64) (hpmc.ShapeParams, error) {
	s := 1 + u
	if s < 1e-6 {
		return hpmc.ShapeParams{}, fmt.Errorf("degenerate scale factor %g", s)
	}
	inv := 1 / math.Sqrt(s)
	axis := rng.Intn(3)

	out := current.Clone()
	for i := range out.Vertices {
		for c := 0; c < 3; c++ {
			if c == axis {
				out.Vertices[i][c] *= s
			} else {
				out.Vertices[i][c] *= inv
			}
		}
	}
	return out, nil
}

// shearVertices applies a unit-determinant shear along a random axis pair.
func shearVertices(rng *rand.Rand, current hpmc.ShapeParams, u float64) hpmc.ShapeParams {
	i := rng.Intn(3)
	j := rng.Intn(2)
	if j >= i {
		j++
	}

	out := current.Clone()
	for k := range out.Vertices {
		out.Vertices[k][i] += u * out.Vertices[k][j]
	}
	return out
}

// scaleEllipsoid stretches one random semi-axis by 1+u and shrinks the other
// two to keep the volume fixed.
func scaleEllipsoid(rng *rand.Rand, current hpmc.ShapeParams, u float64) (hpmc.ShapeParams, error) {
	s := 1 + u
	if s < 1e-6 {
		return hpmc.ShapeParams{}, fmt.Errorf("degenerate scale factor %g", s)
	}
	inv := 1 / math.Sqrt(s)

	out := current.Clone()
	axes := [3]*float64{&out.A, &out.B, &out.C}
	pick := rng.Intn(3)
	for c, ax := range axes {
		if c == pick {
			*ax *= s
		} else {
			*ax *= inv
		}
	}
	return out, nil
}
