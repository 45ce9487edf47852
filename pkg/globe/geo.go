// Package globe implements the interaction and animation state for the dot
// globe: rotation tracking, the glitch effect, connection arcs, visitor
// markers and the render loop adapter that feeds a renderer instance.
package globe

import "math"

const (
	// BackFaceTolerance is the normalized depth below which a projected
	// point is treated as behind the globe. Slightly negative so arcs
	// near the limb fade instead of popping as the globe rotates.
	// Visibility inequality: Z >= BackFaceTolerance.
	BackFaceTolerance = -0.2

	// ProjectionRadius converts a globe scale of 1.0 into screen pixels.
	ProjectionRadius = 280.0

	// cameraDistance, in globe radii, drives the perspective correction
	// applied to projected points so they stay anchored to the sphere
	// surface as the scale changes.
	cameraDistance = 2.4
)

// Point is a 2D screen coordinate.
type Point struct {
	X, Y float64
}

// ProjectedPoint is the result of projecting a geographic coordinate through
// the current rotation onto the screen. Z is the normalized depth toward the
// viewer; Visible reports the back-face test.
type ProjectedPoint struct {
	X, Y, Z float64
	Visible bool
}

// ClampLatitude limits a latitude to [-85, 85]. Values nearer the poles
// render badly on the dot lattice, so out-of-range device input is clamped
// rather than rejected.
func ClampLatitude(lat float64) float64 {
	if lat > 85 {
		return 85
	}
	if lat < -85 {
		return -85
	}
	return lat
}

// NormalizeLongitude wraps a longitude into (-180, 180], congruent to the
// input mod 360.
func NormalizeLongitude(lng float64) float64 {
	g := math.Mod(lng, 360)
	if g > 180 {
		g -= 360
	} else if g <= -180 {
		g += 360
	}
	return g
}

// Project maps a geographic coordinate onto the screen for the given rotation
// angles and globe scale. cx and cy are the viewport center in pixels. The
// function is pure and allocation free; it runs once per arc endpoint per
// frame.
func Project(lat, lng, phi, theta, scale, cx, cy float64) ProjectedPoint {
	latR := lat * math.Pi / 180
	lngR := lng * math.Pi / 180

	// Position on the unit sphere, phi spinning the longitudes.
	x0 := math.Cos(latR) * math.Sin(lngR+phi)
	y0 := math.Sin(latR)
	z0 := math.Cos(latR) * math.Cos(lngR+phi)

	// Tilt about the horizontal axis.
	sinT, cosT := math.Sincos(theta)
	y := y0*cosT - z0*sinT
	z := y0*sinT + z0*cosT

	f := cameraDistance / (cameraDistance - z)
	r := scale * ProjectionRadius
	return ProjectedPoint{
		X:       cx + x0*r*f,
		Y:       cy - y*r*f,
		Z:       z,
		Visible: z >= BackFaceTolerance,
	}
}

// QuadraticBezier evaluates a quadratic bezier at t in [0, 1].
func QuadraticBezier(t float64, p0, p1, p2 Point) Point {
	u := 1 - t
	return Point{
		X: u*u*p0.X + 2*u*t*p1.X + t*t*p2.X,
		Y: u*u*p0.Y + 2*u*t*p1.Y + t*t*p2.Y,
	}
}

// CubicBezier evaluates a cubic bezier at t in [0, 1].
func CubicBezier(t float64, p0, p1, p2, p3 Point) Point {
	u := 1 - t
	return Point{
		X: u*u*u*p0.X + 3*u*u*t*p1.X + 3*u*t*t*p2.X + t*t*t*p3.X,
		Y: u*u*u*p0.Y + 3*u*u*t*p1.Y + 3*u*t*t*p2.Y + t*t*t*p3.Y,
	}
}
