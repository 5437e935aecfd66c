// Package opt provides derivative-free minimizers for shape parameter
// vectors.
package opt

// Optimizer is a derivative-free minimizer over a box-bounded parameter
// space.
type Optimizer interface {
	// Run minimizes eval over the box [lower, upper] in dim dimensions and
	// returns the best parameter vector found and its cost.
	Run(eval func([]float64) float64, lower, upper []float64, dim int) ([]float64, float64, error)
}
