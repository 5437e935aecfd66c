package shapemove

import (
	"github.com/cbeckmann/shapemc/pkg/hpmc"
	"github.com/cbeckmann/shapemc/pkg/shapemove/native"
	"github.com/cbeckmann/shapemc/pkg/sim"
)

// MoveKind identifies a shape move policy.
type MoveKind string

const (
	MoveConstant MoveKind = "Constant"
	MoveElastic  MoveKind = "Elastic"
	MoveCallback MoveKind = "Callback"
	MoveVertex   MoveKind = "Vertex"
)

// CompatibilitySet is the set of shape families a move kind can drive.
type CompatibilitySet map[hpmc.Kind]bool

// Contains reports whether the set includes the given shape family.
func (c CompatibilitySet) Contains(k hpmc.Kind) bool {
	return c[k]
}

// Kinds returns the member families in a fixed order, for error messages
// and coverage checks.
func (c CompatibilitySet) Kinds() []hpmc.Kind {
	var out []hpmc.Kind
	for _, k := range hpmc.Kinds() {
		if c[k] {
			out = append(out, k)
		}
	}
	return out
}

// compatibility declares which shape families each move kind accepts.
// Vertex moves need a vertex list to perturb, so spheres and ellipsoids are
// out; elastic moves need a reference to deform against, which rules out
// spheres and swept shapes.
var compatibility = map[MoveKind]CompatibilitySet{
	MoveConstant: {
		hpmc.KindSphere:                 true,
		hpmc.KindConvexPolyhedron:       true,
		hpmc.KindConvexSpheropolyhedron: true,
		hpmc.KindEllipsoid:              true,
	},
	MoveElastic: {
		hpmc.KindConvexPolyhedron: true,
		hpmc.KindEllipsoid:        true,
	},
	MoveCallback: {
		hpmc.KindConvexPolyhedron:       true,
		hpmc.KindConvexSpheropolyhedron: true,
		hpmc.KindEllipsoid:              true,
	},
	MoveVertex: {
		hpmc.KindConvexPolyhedron:       true,
		hpmc.KindConvexSpheropolyhedron: true,
	},
}

// Compat returns a copy of the capability set for a move kind.
func Compat(kind MoveKind) CompatibilitySet {
	out := make(CompatibilitySet, len(compatibility[kind]))
	for k, v := range compatibility[kind] {
		out[k] = v
	}
	return out
}

// Factory builds the native move for a strategy attaching to an integrator.
// A factory is only ever invoked with a strategy of the kind it was
// registered under.
type Factory func(s Strategy, sys *sim.SystemDefinition, ig hpmc.Integrator) (native.Move, error)

type factoryKey struct {
	move  MoveKind
	shape hpmc.Kind
}

// factories maps (move kind, shape family) pairs to native move
// constructors. Strategies register their pairs in init; the table must
// cover exactly the pairs compatibility declares.
var factories = map[factoryKey]Factory{}

func registerFactory(move MoveKind, shape hpmc.Kind, f Factory) {
	factories[factoryKey{move: move, shape: shape}] = f
}

// buildNative checks the pairing against the capability set, resolves its
// factory and runs it.
func buildNative(s Strategy, sys *sim.SystemDefinition, ig hpmc.Integrator) (native.Move, error) {
	compat := Compat(s.Kind())
	if !compat.Contains(ig.Kind()) {
		return nil, &CompatibilityError{Move: s.Kind(), Integrator: ig.Kind(), Supported: compat.Kinds()}
	}
	f, ok := factories[factoryKey{move: s.Kind(), shape: ig.Kind()}]
	if !ok {
		// A capability without a factory is a wiring gap; surface it the
		// same way as an unsupported pairing.
		return nil, &CompatibilityError{Move: s.Kind(), Integrator: ig.Kind(), Supported: compat.Kinds()}
	}
	return f(s, sys, ig)
}
