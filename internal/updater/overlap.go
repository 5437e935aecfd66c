package updater

import "github.com/cbeckmann/shapemc/pkg/hpmc"

// OverlapChecker vetoes trial shapes that would overlap particles in the
// current configuration. A checker sees only the trial shape; positional
// data stays inside the implementation.
type OverlapChecker interface {
	// Overlaps reports whether committing the trial shape for the given
	// particle type would produce hard overlaps.
	Overlaps(typeName string, trial hpmc.ShapeParams) (bool, error)
}

// OverlapCheckerFunc adapts a plain function to the OverlapChecker interface.
type OverlapCheckerFunc func(typeName string, trial hpmc.ShapeParams) (bool, error)

// Overlaps calls f.
func (f OverlapCheckerFunc) Overlaps(typeName string, trial hpmc.ShapeParams) (bool, error) {
	return f(typeName, trial)
}

type noOverlaps struct{}

func (noOverlaps) Overlaps(string, hpmc.ShapeParams) (bool, error) {
	return false, nil
}

// NoOverlaps returns a checker that never vetoes, for dilute systems and
// tests where hard overlaps cannot occur.
func NoOverlaps() OverlapChecker {
	return noOverlaps{}
}
