package globe

import (
	"math"
	"testing"
)

func TestClampLatitude(t *testing.T) {
	tests := []struct {
		in, want float64
	}{
		{0, 0},
		{85, 85},
		{-85, -85},
		{85.0001, 85},
		{-90, -85},
		{999, 85},
		{-999, -85},
	}
	for _, tt := range tests {
		if got := ClampLatitude(tt.in); got != tt.want {
			t.Errorf("ClampLatitude(%v) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestNormalizeLongitude(t *testing.T) {
	tests := []struct {
		in, want float64
	}{
		{0, 0},
		{180, 180},
		{-180, 180},
		{181, -179},
		{360, 0},
		{540, 180},
		{-540, 180},
		{720.5, 0.5},
		{-170, -170},
	}
	for _, tt := range tests {
		got := NormalizeLongitude(tt.in)
		if math.Abs(got-tt.want) > 1e-9 {
			t.Errorf("NormalizeLongitude(%v) = %v, want %v", tt.in, got, tt.want)
		}
		if got <= -180 || got > 180 {
			t.Errorf("NormalizeLongitude(%v) = %v, outside (-180, 180]", tt.in, got)
		}
		// Congruent mod 360.
		if d := math.Mod(got-tt.in, 360); math.Abs(d) > 1e-9 && math.Abs(math.Abs(d)-360) > 1e-9 {
			t.Errorf("NormalizeLongitude(%v) = %v, not congruent mod 360", tt.in, got)
		}
	}
}

func TestProjectPure(t *testing.T) {
	a := Project(48.85, 2.35, 0.7, -0.2, 1.1, 960, 540)
	b := Project(48.85, 2.35, 0.7, -0.2, 1.1, 960, 540)
	if a != b {
		t.Errorf("Project is not pure: %+v != %+v", a, b)
	}
}

func TestProjectVisibility(t *testing.T) {
	// With lat=0, phi=0, theta=0 the depth is cos(lng), so the back-face
	// threshold z >= -0.2 sits at lng = acos(-0.2) ~ 101.54 degrees.
	tests := []struct {
		lng     float64
		visible bool
	}{
		{0, true},
		{90, true},
		{101, true},
		{102, false},
		{180, false},
		{-101, true},
		{-102, false},
	}
	for _, tt := range tests {
		p := Project(0, tt.lng, 0, 0, 1, 960, 540)
		if p.Visible != tt.visible {
			t.Errorf("Project(lng=%v).Visible = %v (z=%v), want %v", tt.lng, p.Visible, p.Z, tt.visible)
		}
	}
}

func TestProjectCenterAnchor(t *testing.T) {
	// The sub-viewer point (lat 0, lng 0, no rotation) projects to the
	// viewport center at any scale.
	for _, scale := range []float64{0.5, 1, 2} {
		p := Project(0, 0, 0, 0, scale, 400, 300)
		if math.Abs(p.X-400) > 1e-9 || math.Abs(p.Y-300) > 1e-9 {
			t.Errorf("scale %v: center point projected to (%v, %v)", scale, p.X, p.Y)
		}
		if !p.Visible || math.Abs(p.Z-1) > 1e-9 {
			t.Errorf("scale %v: center point z = %v, visible %v", scale, p.Z, p.Visible)
		}
	}
}

func TestQuadraticBezier(t *testing.T) {
	p0, p1, p2 := Point{0, 0}, Point{50, -100}, Point{100, 0}
	if got := QuadraticBezier(0, p0, p1, p2); got != p0 {
		t.Errorf("t=0: got %+v, want %+v", got, p0)
	}
	if got := QuadraticBezier(1, p0, p1, p2); got != p2 {
		t.Errorf("t=1: got %+v, want %+v", got, p2)
	}
	mid := QuadraticBezier(0.5, p0, p1, p2)
	if math.Abs(mid.X-50) > 1e-9 || math.Abs(mid.Y-(-50)) > 1e-9 {
		t.Errorf("t=0.5: got %+v, want (50, -50)", mid)
	}
}

func TestCubicBezier(t *testing.T) {
	p0, p1, p2, p3 := Point{0, 0}, Point{0, 100}, Point{100, 100}, Point{100, 0}
	if got := CubicBezier(0, p0, p1, p2, p3); got != p0 {
		t.Errorf("t=0: got %+v, want %+v", got, p0)
	}
	if got := CubicBezier(1, p0, p1, p2, p3); got != p3 {
		t.Errorf("t=1: got %+v, want %+v", got, p3)
	}
	mid := CubicBezier(0.5, p0, p1, p2, p3)
	if math.Abs(mid.X-50) > 1e-9 || math.Abs(mid.Y-75) > 1e-9 {
		t.Errorf("t=0.5: got %+v, want (50, 75)", mid)
	}
}
