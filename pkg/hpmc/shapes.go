package hpmc

import (
	"fmt"
	"math"
)

// archimedeanTruncation cuts cube corners so every edge of the result has
// equal length (the Archimedean truncated cube).
const archimedeanTruncation = 2 - math.Sqrt2

// Cube returns convex polyhedron params for an axis-aligned cube with the
// given edge length, centered at the origin.
func Cube(edge float64) ShapeParams {
	h := edge / 2
	return ShapeParams{
		Vertices: [][3]float64{
			{-h, -h, -h}, {-h, -h, h}, {-h, h, -h}, {-h, h, h},
			{h, -h, -h}, {h, -h, h}, {h, h, -h}, {h, h, h},
		},
	}
}

// Octahedron returns convex polyhedron params for a regular octahedron with
// vertices at the given circumradius along each axis.
func Octahedron(circumradius float64) ShapeParams {
	r := circumradius
	return ShapeParams{
		Vertices: [][3]float64{
			{r, 0, 0}, {-r, 0, 0},
			{0, r, 0}, {0, -r, 0},
			{0, 0, r}, {0, 0, -r},
		},
	}
}

// Tetrahedron returns convex polyhedron params for a regular tetrahedron
// with the given edge length, centered at the origin.
func Tetrahedron(edge float64) ShapeParams {
	s := edge / (2 * math.Sqrt2)
	return ShapeParams{
		Vertices: [][3]float64{
			{s, s, s}, {s, -s, -s}, {-s, s, -s}, {-s, -s, s},
		},
	}
}

// TruncatedCube returns convex polyhedron params for a cube of the given
// edge length with each corner cut by the truncation fraction t in (0, 1].
// Each corner vertex is replaced by three vertices moved a fraction t along
// its edges; t = 1 meets the edge midpoints (a cuboctahedron). The family
// interpolates between a cube and an octahedron-like shape, which makes it a
// useful start for vertex-move evolution runs.
func TruncatedCube(edge, t float64) ShapeParams {
	h := edge / 2
	cut := t * h
	verts := make([][3]float64, 0, 24)
	for _, sx := range []float64{-1, 1} {
		for _, sy := range []float64{-1, 1} {
			for _, sz := range []float64{-1, 1} {
				verts = append(verts,
					[3]float64{sx * (h - cut), sy * h, sz * h},
					[3]float64{sx * h, sy * (h - cut), sz * h},
					[3]float64{sx * h, sy * h, sz * (h - cut)},
				)
			}
		}
	}
	return ShapeParams{Vertices: verts}
}

// Sphere returns sphere params with the given radius.
func Sphere(radius float64) ShapeParams {
	return ShapeParams{Radius: radius}
}

// Ellipsoid returns ellipsoid params with the given semi-axes.
func Ellipsoid(a, b, c float64) ShapeParams {
	return ShapeParams{A: a, B: b, C: c}
}

// Preset resolves a named demo shape at the given scale. The scale is the
// edge length for cube and tetrahedron and the circumradius for octahedron.
func Preset(name string, scale float64) (Kind, ShapeParams, error) {
	if scale <= 0 {
		return "", ShapeParams{}, fmt.Errorf("preset scale must be positive, got %g", scale)
	}
	switch name {
	case "cube":
		return KindConvexPolyhedron, Cube(scale), nil
	case "octahedron":
		return KindConvexPolyhedron, Octahedron(scale), nil
	case "tetrahedron":
		return KindConvexPolyhedron, Tetrahedron(scale), nil
	case "truncated-cube":
		return KindConvexPolyhedron, TruncatedCube(scale, archimedeanTruncation), nil
	case "sphere":
		return KindSphere, Sphere(scale), nil
	default:
		return "", ShapeParams{}, fmt.Errorf("unknown shape preset %q", name)
	}
}
