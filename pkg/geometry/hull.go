package geometry

import (
	"fmt"
	"math"

	"github.com/golang/geo/r3"
	quickhull "github.com/markus-wa/quickhull-go/v2"
)

// degenerateVolume is the volume below which a hull is treated as flat.
const degenerateVolume = 1e-12

// FromArrays converts body-frame vertex triples to r3 vectors.
func FromArrays(verts [][3]float64) []r3.Vector {
	points := make([]r3.Vector, len(verts))
	for i, v := range verts {
		points[i] = r3.Vector{X: v[0], Y: v[1], Z: v[2]}
	}
	return points
}

// ToArrays converts r3 vectors back to vertex triples.
func ToArrays(points []r3.Vector) [][3]float64 {
	verts := make([][3]float64, len(points))
	for i, p := range points {
		verts[i] = [3]float64{p.X, p.Y, p.Z}
	}
	return verts
}

// ConvexHull returns the hull of the given point cloud as a vertex list and
// a flat triangle index list (three indices per face).
func ConvexHull(points []r3.Vector) ([]r3.Vector, []int) {
	hull := new(quickhull.QuickHull).ConvexHull(points, true, false, 0)
	return hull.Vertices, hull.Indices
}

// MassProperties returns the volume and center of mass of the solid bounded
// by the convex hull of points. The hull is triangulated and each face
// contributes a signed tetrahedron against the origin.
//
// Returns an error when the points span fewer than three dimensions.
func MassProperties(points []r3.Vector) (float64, r3.Vector, error) {
	if len(points) < 4 {
		return 0, r3.Vector{}, fmt.Errorf("need at least 4 points for a solid hull, got %d", len(points))
	}

	verts, indices := ConvexHull(points)

	var signed float64
	var weighted r3.Vector
	for i := 0; i+2 < len(indices); i += 3 {
		a := verts[indices[i]]
		b := verts[indices[i+1]]
		c := verts[indices[i+2]]

		det := a.Dot(b.Cross(c)) / 6
		centroid := a.Add(b).Add(c).Mul(1.0 / 4.0) // tetrahedron centroid with the origin
		signed += det
		weighted = weighted.Add(centroid.Mul(det))
	}

	volume := math.Abs(signed)
	if volume < degenerateVolume {
		return 0, r3.Vector{}, fmt.Errorf("hull is degenerate (volume %g)", volume)
	}
	// Dividing by the signed sum keeps the center of mass correct for either
	// face orientation.
	return volume, weighted.Mul(1.0 / signed), nil
}

// HullVolume returns the volume of the convex hull of points.
func HullVolume(points []r3.Vector) (float64, error) {
	volume, _, err := MassProperties(points)
	return volume, err
}

// EllipsoidVolume returns the volume of an ellipsoid with semi-axes a, b, c.
func EllipsoidVolume(a, b, c float64) float64 {
	return 4.0 / 3.0 * math.Pi * a * b * c
}

// SphereVolume returns the volume of a sphere with the given radius.
func SphereVolume(radius float64) float64 {
	return EllipsoidVolume(radius, radius, radius)
}
