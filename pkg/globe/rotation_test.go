package globe

import (
	"math"
	"testing"
)

func TestAutoRotateFixedStep(t *testing.T) {
	s := DefaultHome()
	s.RotationSpeed = 3
	s.AutoRotate = true
	tr := NewRotationTracker(s)

	const frames = 120
	for i := 0; i < frames; i++ {
		tr.Step()
	}
	want := frames * 3 * frameConstant
	if math.Abs(tr.Phi()-want) > 1e-12 {
		t.Errorf("phi = %v, want %v", tr.Phi(), want)
	}
	if tr.Theta() != 0 {
		t.Errorf("theta moved to %v without input", tr.Theta())
	}
}

func TestAutoRotateSuppressedWhileDragging(t *testing.T) {
	s := DefaultHome()
	s.AutoRotate = true
	tr := NewRotationTracker(s)

	tr.PointerDown(100, 100)
	before := tr.Phi()
	for i := 0; i < 50; i++ {
		tr.Step()
	}
	if tr.Phi() != before {
		t.Errorf("phi advanced by auto-rotation during drag: %v -> %v", before, tr.Phi())
	}
	tr.PointerUp()
	tr.Step()
	if tr.Phi() == before {
		t.Error("phi did not resume auto-rotation after drag ended")
	}
}

func TestDragDeterministic(t *testing.T) {
	// A 50px horizontal drag at sensitivity 40 moves phi by
	// 50 * (40/40) * dragScale = 0.25 rad; repeating it doubles the total.
	s := DefaultHome()
	s.AutoRotate = false
	s.MouseSensitivity = 40
	tr := NewRotationTracker(s)

	tr.PointerDown(100, 0)
	tr.PointerMove(150, 0)
	tr.PointerUp()
	if math.Abs(tr.Phi()-0.25) > 1e-12 {
		t.Errorf("phi after one drag = %v, want 0.25", tr.Phi())
	}

	tr.PointerDown(100, 0)
	tr.PointerMove(150, 0)
	tr.PointerUp()
	if math.Abs(tr.Phi()-0.5) > 1e-12 {
		t.Errorf("phi after two drags = %v, want 0.5", tr.Phi())
	}
}

func TestDragBatchingInvariance(t *testing.T) {
	s := DefaultHome()
	s.AutoRotate = false
	s.MouseSensitivity = 60

	single := NewRotationTracker(s)
	single.PointerDown(0, 0)
	single.PointerMove(50, 0)

	chunked := NewRotationTracker(s)
	chunked.PointerDown(0, 0)
	for x := 10.0; x <= 50; x += 10 {
		chunked.PointerMove(x, 0)
	}

	if math.Abs(single.Phi()-chunked.Phi()) > 1e-9 {
		t.Errorf("batching changed the result: single=%v chunked=%v", single.Phi(), chunked.Phi())
	}
}

func TestTwoAxisThetaClamp(t *testing.T) {
	s := DefaultHome()
	s.AutoRotate = false
	s.TwoAxisRotation = true
	s.MouseSensitivity = 200
	tr := NewRotationTracker(s)

	tr.PointerDown(0, 0)
	tr.PointerMove(0, 10000)
	if tr.Theta() != thetaLimit {
		t.Errorf("theta = %v, want clamp at %v", tr.Theta(), thetaLimit)
	}
	tr.PointerMove(0, -20000)
	if tr.Theta() != -thetaLimit {
		t.Errorf("theta = %v, want clamp at %v", tr.Theta(), -thetaLimit)
	}
}

func TestSingleAxisIgnoresVerticalDrag(t *testing.T) {
	s := DefaultHome()
	s.AutoRotate = false
	s.TwoAxisRotation = false
	tr := NewRotationTracker(s)

	tr.PointerDown(0, 0)
	tr.PointerMove(0, 500)
	if tr.Theta() != 0 {
		t.Errorf("theta = %v, want 0 in single-axis mode", tr.Theta())
	}
}

func TestConfigurePreservesAngles(t *testing.T) {
	s := DefaultHome()
	s.AutoRotate = true
	tr := NewRotationTracker(s)
	for i := 0; i < 10; i++ {
		tr.Step()
	}
	phi := tr.Phi()

	s.RotationSpeed = 9
	tr.Configure(s)
	if tr.Phi() != phi {
		t.Errorf("Configure reset phi: %v -> %v", phi, tr.Phi())
	}
}

func TestMoveWithoutDragIsNoop(t *testing.T) {
	tr := NewRotationTracker(DefaultHome())
	tr.PointerMove(500, 500)
	if tr.Phi() != 0 || tr.Theta() != 0 {
		t.Errorf("pointer move outside drag changed angles: phi=%v theta=%v", tr.Phi(), tr.Theta())
	}
}
