package native

import (
	"math/rand"

	"github.com/cbeckmann/shapemc/pkg/hpmc"
)

// Move is the handle a shape move strategy produces when it attaches to an
// integrator. The sweep driver calls it from a single goroutine; Move
// implementations are not internally synchronized.
type Move interface {
	// Propose generates a trial shape for the given particle type from its
	// current committed shape. The current shape is never mutated.
	Propose(rng *rand.Rand, typeName string, current hpmc.ShapeParams, step uint64) (hpmc.ShapeParams, error)

	// Energy returns the shape's energetic contribution to the acceptance
	// weight at the given step. Moves with no preference return zero.
	Energy(typeName string, p hpmc.ShapeParams, step uint64) float64

	// Accepted tells the move its latest proposal for the type was committed.
	Accepted(typeName string)

	// Rejected tells the move its latest proposal for the type was discarded.
	Rejected(typeName string)
}

// StepSized is implemented by moves that keep per-type proposal step sizes.
// The sweep driver snapshots these into checkpoints.
type StepSized interface {
	StepSizes() map[string]float64
}

// Tunable is implemented by moves driven by a tunable parameter vector.
type Tunable interface {
	TypeParams() map[string][]float64
}

// ShapeCallback maps a tunable parameter vector to shape parameters.
//
// The returned shape is committed as-is: the caller performs no geometric
// validation on it. Callbacks are responsible for producing shapes the
// integrator's family can represent.
type ShapeCallback interface {
	Shape(typeName string, params []float64) (hpmc.ShapeParams, error)
}

// ShapeCallbackFunc adapts a plain function to the ShapeCallback interface.
type ShapeCallbackFunc func(typeName string, params []float64) (hpmc.ShapeParams, error)

// Shape calls f.
func (f ShapeCallbackFunc) Shape(typeName string, params []float64) (hpmc.ShapeParams, error) {
	return f(typeName, params)
}
