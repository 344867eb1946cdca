// Package geometry holds the planar joint-angle math shared by the exercise
// detectors.
package geometry

import "math"

// Point is a 2-D position in normalised image coordinates.
type Point struct {
	X, Y float64
}

// Angle returns the angle at vertex b formed by the segments b→a and b→c,
// in degrees within [0, 180].
//
// Coincident points yield whatever atan2 produces (0 for exact overlap);
// NaN or Inf inputs propagate. Use Valid before feeding the result to a
// threshold comparison.
func Angle(a, b, c Point) float64 {
	rad := math.Atan2(c.Y-b.Y, c.X-b.X) - math.Atan2(a.Y-b.Y, a.X-b.X)
	deg := math.Abs(rad * 180 / math.Pi)
	if deg > 180 {
		deg = 360 - deg
	}
	return deg
}

// Valid reports whether v is a usable measurement.
func Valid(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// Midpoint returns the point halfway between a and b.
func Midpoint(a, b Point) Point {
	return Point{X: (a.X + b.X) / 2, Y: (a.Y + b.Y) / 2}
}
