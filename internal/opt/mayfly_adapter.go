package opt

import (
	"fmt"
	"math"
	"math/rand"

	"github.com/cwbudde/mayfly"
)

// minPopSize is the smallest swarm mayfly v0.1.0 accepts.
const minPopSize = 20

// MayflyAdapter runs the mayfly swarm optimizer behind the Optimizer
// interface.
type MayflyAdapter struct {
	maxIters int
	popSize  int
	seed     int64
}

var _ Optimizer = (*MayflyAdapter)(nil)

// NewMayfly creates a mayfly optimizer with the given iteration budget,
// population size and seed. Populations below the library minimum are
// raised to it.
func NewMayfly(maxIters, popSize int, seed int64) *MayflyAdapter {
	if popSize < minPopSize {
		popSize = minPopSize
	}
	return &MayflyAdapter{
		maxIters: maxIters,
		popSize:  popSize,
		seed:     seed,
	}
}

// Run minimizes eval inside the bounding box. The library takes scalar
// bounds, so the box is widened to its envelope and the best position is
// clamped back into the per-dimension bounds afterwards.
func (m *MayflyAdapter) Run(eval func([]float64) float64, lower, upper []float64, dim int) ([]float64, float64, error) {
	if dim <= 0 {
		return nil, 0, fmt.Errorf("dimension must be positive, got %d", dim)
	}
	if len(lower) != dim || len(upper) != dim {
		return nil, 0, fmt.Errorf("bounds length mismatch: lower %d, upper %d, dim %d", len(lower), len(upper), dim)
	}
	for i := range lower {
		if lower[i] > upper[i] {
			return nil, 0, fmt.Errorf("lower bound exceeds upper bound in dimension %d", i)
		}
	}

	config := mayfly.NewDefaultConfig()
	config.ObjectiveFunc = eval
	config.ProblemSize = dim
	config.MaxIterations = m.maxIters
	config.NPop = m.popSize
	config.LowerBound = lower[0]
	config.UpperBound = upper[0]
	for i := 1; i < dim; i++ {
		config.LowerBound = math.Min(config.LowerBound, lower[i])
		config.UpperBound = math.Max(config.UpperBound, upper[i])
	}
	config.Rand = rand.New(rand.NewSource(m.seed))

	result, err := mayfly.Optimize(config)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to run mayfly optimization: %w", err)
	}

	best := append([]float64{}, result.GlobalBest.Position...)
	clamped := false
	for i := range best {
		if best[i] < lower[i] {
			best[i] = lower[i]
			clamped = true
		} else if best[i] > upper[i] {
			best[i] = upper[i]
			clamped = true
		}
	}
	cost := result.GlobalBest.Cost
	if clamped {
		cost = eval(best)
	}
	return best, cost, nil
}
