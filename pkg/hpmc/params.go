package hpmc

import (
	"fmt"
	"math"
)

// Kind identifies a hard-particle shape family.
type Kind string

const (
	KindSphere                 Kind = "Sphere"
	KindConvexPolyhedron       Kind = "ConvexPolyhedron"
	KindConvexSpheropolyhedron Kind = "ConvexSpheropolyhedron"
	KindEllipsoid              Kind = "Ellipsoid"
)

// Kinds returns all shape families in a fixed order.
func Kinds() []Kind {
	return []Kind{KindSphere, KindConvexPolyhedron, KindConvexSpheropolyhedron, KindEllipsoid}
}

// ShapeParams is the geometric descriptor of one particle type's shape.
// Which fields are meaningful depends on the Kind the params are used with:
//
//	Sphere:                 Radius
//	ConvexPolyhedron:       Vertices
//	ConvexSpheropolyhedron: Vertices, SweepRadius
//	Ellipsoid:              A, B, C (semi-axes)
//
// Vertices are body-frame coordinates. The struct serializes to JSON as part
// of checkpoints, so fields carry wire tags.
type ShapeParams struct {
	Vertices    [][3]float64 `json:"vertices,omitempty"`
	SweepRadius float64      `json:"sweepRadius,omitempty"`
	Radius      float64      `json:"radius,omitempty"`
	A           float64      `json:"a,omitempty"`
	B           float64      `json:"b,omitempty"`
	C           float64      `json:"c,omitempty"`

	// IgnoreStatistics excludes the type from acceptance counters.
	IgnoreStatistics bool `json:"ignoreStatistics,omitempty"`
}

// Validate checks that the params are well formed for the given shape family.
func (p ShapeParams) Validate(kind Kind) error {
	switch kind {
	case KindSphere:
		if p.Radius <= 0 {
			return fmt.Errorf("sphere radius must be positive, got %g", p.Radius)
		}
	case KindConvexPolyhedron:
		if len(p.Vertices) == 0 {
			return fmt.Errorf("convex polyhedron requires at least one vertex")
		}
		if p.SweepRadius != 0 {
			return fmt.Errorf("convex polyhedron does not take a sweep radius")
		}
		if err := validateVertices(p.Vertices); err != nil {
			return err
		}
	case KindConvexSpheropolyhedron:
		if len(p.Vertices) == 0 {
			return fmt.Errorf("convex spheropolyhedron requires at least one vertex")
		}
		if p.SweepRadius < 0 {
			return fmt.Errorf("sweep radius must be non-negative, got %g", p.SweepRadius)
		}
		if err := validateVertices(p.Vertices); err != nil {
			return err
		}
	case KindEllipsoid:
		if p.A <= 0 || p.B <= 0 || p.C <= 0 {
			return fmt.Errorf("ellipsoid semi-axes must be positive, got (%g, %g, %g)", p.A, p.B, p.C)
		}
	default:
		return fmt.Errorf("unknown shape kind %q", kind)
	}
	return nil
}

// Isotropic reports whether an ellipsoid descriptor is a sphere (a == b == c).
func (p ShapeParams) Isotropic() bool {
	return p.A == p.B && p.B == p.C
}

// Clone returns a deep copy so callers can mutate vertices independently.
func (p ShapeParams) Clone() ShapeParams {
	out := p
	if p.Vertices != nil {
		out.Vertices = make([][3]float64, len(p.Vertices))
		copy(out.Vertices, p.Vertices)
	}
	return out
}

func validateVertices(verts [][3]float64) error {
	for i, v := range verts {
		for _, c := range v {
			if math.IsNaN(c) || math.IsInf(c, 0) {
				return fmt.Errorf("vertex %d has non-finite coordinate", i)
			}
		}
	}
	return nil
}
