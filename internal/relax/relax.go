// Package relax minimizes the elastic deformation energy of a parameterized
// shape against its reference over the tunable parameter vector.
package relax

import (
	"context"
	"fmt"
	"log/slog"
	"math"

	"github.com/cbeckmann/shapemc/internal/opt"
	"github.com/cbeckmann/shapemc/pkg/hpmc"
	"github.com/cbeckmann/shapemc/pkg/shapemove/native"
	"github.com/cbeckmann/shapemc/pkg/variant"
)

// Config describes one relaxation problem: a callback mapping the tunable
// vector to a shape, the reference it is pulled towards, and the box the
// optimizer searches.
type Config struct {
	// TypeName is the particle type being relaxed.
	TypeName string

	// Callback maps a tunable parameter vector to shape parameters.
	Callback native.ShapeCallback

	// Reference is the undeformed shape the energy is measured against.
	Reference hpmc.ShapeParams

	// Stiffness weighs the deformation energy. Defaults to a constant 1.
	Stiffness variant.Variant

	// Energy measures raw deformation. Defaults to
	// native.SquaredDisplacementEnergy.
	Energy native.EnergyFunc

	// Lower and Upper bound the parameter box, one entry per dimension.
	Lower []float64
	Upper []float64

	// Initial is the starting vector for the reported initial energy.
	// Defaults to the box midpoint.
	Initial []float64

	// Step is the timestep at which the stiffness is evaluated.
	Step uint64

	// MaxRounds caps the optimizer restarts. Defaults to 5.
	MaxRounds int

	// Convergence controls early stopping across rounds. Defaults to
	// DefaultConvergenceConfig.
	Convergence *ConvergenceConfig

	// NewOptimizer builds the optimizer for a round. Defaults to a mayfly
	// swarm reseeded every round from Seed.
	NewOptimizer func(round int) opt.Optimizer

	// Iterations and PopSize budget the default optimizer per round.
	Iterations int
	PopSize    int
	Seed       int64
}

// Result holds the outcome of a relaxation run.
type Result struct {
	TypeName      string
	BestParams    []float64
	BestShape     hpmc.ShapeParams
	BestEnergy    float64
	InitialEnergy float64
	Rounds        int
	Converged     bool
}

// Relax minimizes the stiffness-weighted deformation energy of the
// callback's shape against the reference. Rounds restart the optimizer with
// fresh seeds until the energy stops improving or MaxRounds is reached.
func Relax(ctx context.Context, cfg Config) (*Result, error) {
	if cfg.TypeName == "" {
		return nil, fmt.Errorf("particle type name cannot be empty")
	}
	if cfg.Callback == nil {
		return nil, fmt.Errorf("shape callback cannot be nil")
	}
	dim := len(cfg.Lower)
	if dim == 0 || len(cfg.Upper) != dim {
		return nil, fmt.Errorf("bounds length mismatch: lower %d, upper %d", len(cfg.Lower), len(cfg.Upper))
	}
	if cfg.Initial != nil && len(cfg.Initial) != dim {
		return nil, fmt.Errorf("initial vector has %d entries, want %d", len(cfg.Initial), dim)
	}

	stiffness := cfg.Stiffness
	if stiffness == nil {
		stiffness = variant.NewConstant(1.0)
	}
	k := stiffness.Value(cfg.Step)
	if math.IsNaN(k) || k <= 0 {
		return nil, fmt.Errorf("stiffness must be positive at step %d, got %v", cfg.Step, k)
	}
	energy := cfg.Energy
	if energy == nil {
		energy = native.SquaredDisplacementEnergy
	}

	eval := func(params []float64) float64 {
		shape, err := cfg.Callback.Shape(cfg.TypeName, params)
		if err != nil {
			return math.Inf(1)
		}
		return k * energy(shape, cfg.Reference)
	}

	initial := cfg.Initial
	if initial == nil {
		initial = make([]float64, dim)
		for i := range initial {
			initial[i] = (cfg.Lower[i] + cfg.Upper[i]) / 2
		}
	}
	initialEnergy := eval(initial)

	maxRounds := cfg.MaxRounds
	if maxRounds <= 0 {
		maxRounds = 5
	}
	newOptimizer := cfg.NewOptimizer
	if newOptimizer == nil {
		iters := cfg.Iterations
		if iters <= 0 {
			iters = 100
		}
		newOptimizer = func(round int) opt.Optimizer {
			return opt.NewMayfly(iters, cfg.PopSize, cfg.Seed+int64(round))
		}
	}
	convergence := DefaultConvergenceConfig()
	if cfg.Convergence != nil {
		convergence = *cfg.Convergence
	}
	tracker := NewConvergenceTracker(convergence)

	slog.Info("relaxation started",
		"type", cfg.TypeName,
		"dimensions", dim,
		"initial_energy", initialEnergy,
	)

	best := math.Inf(1)
	var bestParams []float64
	rounds := 0
	converged := false
	for round := 0; round < maxRounds; round++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		params, cost, err := newOptimizer(round).Run(eval, cfg.Lower, cfg.Upper, dim)
		if err != nil {
			return nil, fmt.Errorf("failed to relax type %q: %w", cfg.TypeName, err)
		}
		rounds++
		if cost < best {
			best = cost
			bestParams = params
		}
		slog.Info("relaxation round complete",
			"type", cfg.TypeName,
			"round", round+1,
			"cost", cost,
			"best", best,
		)
		if tracker.Update(cost) {
			converged = true
			break
		}
	}

	if math.IsInf(best, 1) || bestParams == nil {
		return nil, fmt.Errorf("relaxation of type %q found no representable shape", cfg.TypeName)
	}
	bestShape, err := cfg.Callback.Shape(cfg.TypeName, bestParams)
	if err != nil {
		return nil, fmt.Errorf("failed to rebuild relaxed shape for type %q: %w", cfg.TypeName, err)
	}

	slog.Info("relaxation finished",
		"type", cfg.TypeName,
		"rounds", rounds,
		"converged", converged,
		"best_energy", best,
	)

	return &Result{
		TypeName:      cfg.TypeName,
		BestParams:    bestParams,
		BestShape:     bestShape,
		BestEnergy:    best,
		InitialEnergy: initialEnergy,
		Rounds:        rounds,
		Converged:     converged,
	}, nil
}
