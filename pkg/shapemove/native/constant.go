package native

import (
	"math/rand"

	"github.com/cbeckmann/shapemc/pkg/hpmc"
)

// ConstantMove proposes the same target shape for every particle type on
// every step. Acceptance feedback is ignored.
type ConstantMove struct {
	target hpmc.ShapeParams
}

// NewConstantMove creates a move that always proposes target.
func NewConstantMove(target hpmc.ShapeParams) *ConstantMove {
	return &ConstantMove{target: target.Clone()}
}

// Propose returns the target shape regardless of the current one.
func (m *ConstantMove) Propose(rng *rand.Rand, typeName string, current hpmc.ShapeParams, step uint64) (hpmc.ShapeParams, error) {
	return m.target.Clone(), nil
}

// Energy is always zero for a constant move.
func (m *ConstantMove) Energy(typeName string, p hpmc.ShapeParams, step uint64) float64 {
	return 0
}

// Accepted is a no-op.
func (m *ConstantMove) Accepted(typeName string) {}

// Rejected is a no-op.
func (m *ConstantMove) Rejected(typeName string) {}

// Target returns the configured target shape.
func (m *ConstantMove) Target() hpmc.ShapeParams {
	return m.target.Clone()
}
