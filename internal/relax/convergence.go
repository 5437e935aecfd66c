package relax

import (
	"log/slog"
	"math"
)

// ConvergenceConfig controls early stopping of a relaxation run.
type ConvergenceConfig struct {
	// Enabled turns convergence detection on.
	Enabled bool

	// Patience is the number of rounds without significant improvement
	// tolerated before stopping.
	Patience int

	// Threshold is the minimum relative improvement, (old-new)/old, that
	// counts as progress.
	Threshold float64
}

// DefaultConvergenceConfig stops after 3 stale rounds at 0.1% improvement.
func DefaultConvergenceConfig() ConvergenceConfig {
	return ConvergenceConfig{
		Enabled:   true,
		Patience:  3,
		Threshold: 0.001,
	}
}

// DisabledConvergenceConfig never stops early.
func DisabledConvergenceConfig() ConvergenceConfig {
	return ConvergenceConfig{Enabled: false}
}

// ConvergenceTracker watches a cost series and reports when the relative
// improvement has stayed below the threshold for Patience rounds.
type ConvergenceTracker struct {
	config          ConvergenceConfig
	history         []float64
	bestCost        float64
	lastSignificant float64
	staleCount      int
}

// NewConvergenceTracker creates a tracker with the given config.
func NewConvergenceTracker(config ConvergenceConfig) *ConvergenceTracker {
	return &ConvergenceTracker{
		config:          config,
		bestCost:        math.Inf(1),
		lastSignificant: math.Inf(1),
	}
}

// Update records one round's cost and reports whether the run has converged.
func (c *ConvergenceTracker) Update(cost float64) bool {
	if !c.config.Enabled {
		return false
	}

	c.history = append(c.history, cost)
	if cost < c.bestCost {
		c.bestCost = cost
	}
	if len(c.history) == 1 {
		c.lastSignificant = cost
		return false
	}

	improvement := (c.lastSignificant - cost) / c.lastSignificant
	if improvement >= c.config.Threshold {
		c.lastSignificant = cost
		c.staleCount = 0
		slog.Debug("energy improvement",
			"cost", cost,
			"relative_improvement", improvement,
		)
		return false
	}

	c.staleCount++
	slog.Debug("no significant energy improvement",
		"cost", cost,
		"last_significant", c.lastSignificant,
		"stale_count", c.staleCount,
		"patience", c.config.Patience,
	)
	if c.staleCount >= c.config.Patience {
		slog.Info("relaxation converged",
			"stale_count", c.staleCount,
			"best_cost", c.bestCost,
		)
		return true
	}
	return false
}

// BestCost returns the lowest cost seen so far.
func (c *ConvergenceTracker) BestCost() float64 {
	return c.bestCost
}

// History returns a copy of the recorded cost series.
func (c *ConvergenceTracker) History() []float64 {
	return append([]float64{}, c.history...)
}

// StaleCount returns the number of rounds since the last significant
// improvement.
func (c *ConvergenceTracker) StaleCount() int {
	return c.staleCount
}

// Reset clears the tracker for reuse.
func (c *ConvergenceTracker) Reset() {
	c.history = nil
	c.bestCost = math.Inf(1)
	c.lastSignificant = math.Inf(1)
	c.staleCount = 0
}
