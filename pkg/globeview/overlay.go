package globeview

import (
	"sync"

	"github.com/hajimehoshi/ebiten/v2"
	"github.com/hajimehoshi/ebiten/v2/vector"

	"github.com/sudorandom/dot-globe/pkg/globe"
)

type overlaySegment struct {
	a, b  globe.Point
	col   globe.RGB
	alpha float64
	width float64
}

type overlayCircle struct {
	c      globe.Point
	radius float64
	col    globe.RGB
	alpha  float64
}

// VectorOverlay records the arc primitives emitted during the frame callback
// and replays them onto the screen during Draw. The animator runs on the
// game loop but the recording is mutex guarded anyway so headless callers
// can drive it from tests.
type VectorOverlay struct {
	mu       sync.Mutex
	segments []overlaySegment
	circles  []overlayCircle
}

func NewVectorOverlay() *VectorOverlay {
	return &VectorOverlay{}
}

func (o *VectorOverlay) Clear() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.segments = o.segments[:0]
	o.circles = o.circles[:0]
}

func (o *VectorOverlay) StrokeSegment(a, b globe.Point, col globe.RGB, alpha, width float64) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.segments = append(o.segments, overlaySegment{a: a, b: b, col: col, alpha: alpha, width: width})
}

func (o *VectorOverlay) FillCircle(c globe.Point, radius float64, col globe.RGB, alpha float64) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.circles = append(o.circles, overlayCircle{c: c, radius: radius, col: col, alpha: alpha})
}

// Render draws the recorded primitives in recording order, segments first so
// arc heads sit on top of their trails.
func (o *VectorOverlay) Render(dst *ebiten.Image) {
	o.mu.Lock()
	defer o.mu.Unlock()
	for _, s := range o.segments {
		vector.StrokeLine(dst,
			float32(s.a.X), float32(s.a.Y),
			float32(s.b.X), float32(s.b.Y),
			float32(s.width), premultRGBA(s.col, s.alpha), true)
	}
	for _, c := range o.circles {
		vector.DrawFilledCircle(dst,
			float32(c.c.X), float32(c.c.Y),
			float32(c.radius), premultRGBA(c.col, c.alpha), true)
	}
}

// Len reports the recorded primitive count. Test hook.
func (o *VectorOverlay) Len() (segments, circles int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.segments), len(o.circles)
}
