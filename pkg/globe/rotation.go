package globe

import "math"

const (
	// sensitivityNorm is the divisor applied to MouseSensitivity, so a
	// sensitivity of 40 maps one pixel of drag to dragScale radians.
	sensitivityNorm = 40.0

	// dragScale converts a normalized pixel delta into radians.
	dragScale = 0.005

	// frameConstant scales RotationSpeed into radians per Step call. Step
	// is driven by a fixed-step loop (the viewer pins the tick rate, the
	// exported bundle uses a fixed interval), so rotation speed is
	// tick-rate based, matching the behavior of previously exported
	// packages.
	frameConstant = 0.0005

	thetaLimit = math.Pi / 2
)

// RotationTracker owns the globe's rotation angles. Phi spins the globe
// horizontally and is unbounded; theta tilts it vertically and is clamped to
// [-pi/2, pi/2]. Angles are updated from auto-rotation while idle and from
// pointer drags while dragging; the two inputs are mutually exclusive.
//
// The tracker is not goroutine safe: pointer events and Step must arrive from
// the same loop, which is how both the viewer and the render callback drive
// it.
type RotationTracker struct {
	phi, theta float64

	dragging     bool
	lastX, lastY float64

	rotationSpeed float64
	sensitivity   float64
	autoRotate    bool
	twoAxis       bool
}

// NewRotationTracker builds a tracker parameterized by the given settings.
func NewRotationTracker(s Settings) *RotationTracker {
	t := &RotationTracker{}
	t.Configure(s)
	return t
}

// Configure updates the interaction parameters without touching the current
// angles, so settings changes (and the renderer restarts they trigger) never
// make the globe jump.
func (t *RotationTracker) Configure(s Settings) {
	t.rotationSpeed = s.RotationSpeed
	t.sensitivity = s.MouseSensitivity
	t.autoRotate = s.AutoRotate
	t.twoAxis = s.TwoAxisRotation
}

// Phi returns the horizontal rotation angle in radians.
func (t *RotationTracker) Phi() float64 { return t.phi }

// Theta returns the vertical rotation angle in radians.
func (t *RotationTracker) Theta() float64 { return t.theta }

// Dragging reports whether a pointer drag is in progress.
func (t *RotationTracker) Dragging() bool { return t.dragging }

// PointerDown begins a drag session at the given pointer position.
func (t *RotationTracker) PointerDown(x, y float64) {
	t.dragging = true
	t.lastX, t.lastY = x, y
}

// PointerMove accumulates the delta from the last pointer position into the
// rotation angles. Outside a drag session it is a no-op.
func (t *RotationTracker) PointerMove(x, y float64) {
	if !t.dragging {
		return
	}
	dx := x - t.lastX
	dy := y - t.lastY
	t.lastX, t.lastY = x, y

	k := t.sensitivity / sensitivityNorm * dragScale
	t.phi += dx * k
	if t.twoAxis {
		t.theta = clampTheta(t.theta + dy*k)
	}
}

// PointerUp ends the drag session. Also used for pointer-leave and touch-end.
func (t *RotationTracker) PointerUp() {
	t.dragging = false
}

// Step advances auto-rotation by one fixed-step tick. Suppressed entirely
// while dragging so pointer input and auto-rotation never add up.
func (t *RotationTracker) Step() {
	if t.dragging || !t.autoRotate {
		return
	}
	t.phi += t.rotationSpeed * frameConstant
}

func clampTheta(v float64) float64 {
	if v > thetaLimit {
		return thetaLimit
	}
	if v < -thetaLimit {
		return -thetaLimit
	}
	return v
}
