package globe

import (
	"math"
	"math/rand"
	"sort"
)

const (
	// arcCeiling is the hard upper bound on concurrently animated arcs.
	arcCeiling = 8

	// arcSpawnChance is the per-tick probability of adding one arc while
	// below the ceiling.
	arcSpawnChance = 0.008

	// headquartersBias is the fraction of arcs that originate at the
	// configured headquarters coordinate.
	headquartersBias = 0.75

	// arcColorJitter is the maximum per-channel deviation from the base
	// arc color.
	arcColorJitter = 0.15

	// Progress steps per tick, by journey stage: fast travel, then a
	// slowdown, then a crawl for the final fade.
	arcStepFast   = 0.004
	arcStepSlow   = 0.002
	arcStepCrawl  = 0.001
	arcSlowAt     = 0.7
	arcCrawlAt    = 0.85

	arcLiftMin = 30.0
	arcLiftMax = 120.0

	arcSegments   = 24
	arcTailAlpha  = 0.05
	arcHeadAlpha  = 0.9
	arcLineWidth  = 2.0
	arcHeadRadius = 2.5
)

// Arc is one animated connection between two coordinates. Progress runs from
// 0 (at the start point) to 1 (fully drawn); a finished arc is recycled in
// place rather than removed.
type Arc struct {
	StartLat, StartLng float64
	EndLat, EndLng     float64
	Color              RGB
	Progress           float64
}

// ViewState is the per-frame projection context shared by the overlay draw
// and the renderer, so arcs are projected with the same angles the globe was
// drawn with.
type ViewState struct {
	Phi, Theta float64
	Scale      float64
	CX, CY     float64
}

// ArcOverlay is the 2D surface arcs are drawn onto. It is cleared and fully
// redrawn every frame.
type ArcOverlay interface {
	Clear()
	StrokeSegment(a, b Point, col RGB, alpha, width float64)
	FillCircle(c Point, radius float64, col RGB, alpha float64)
}

// ArcAnimator maintains the bounded arc collection and renders it as curved,
// fading tracers on an overlay.
type ArcAnimator struct {
	arcs []Arc
	rng  *rand.Rand

	baseColor RGB
	speed     float64
	altitude  float64
	hqLat     float64
	hqLng     float64

	// scratch buffer reused across frames for depth sorting
	drawBuf []projectedArc
}

type projectedArc struct {
	arc        *Arc
	start, end ProjectedPoint
}

// NewArcAnimator seeds the collection with ArcDensity arcs.
func NewArcAnimator(s Settings, rng *rand.Rand) *ArcAnimator {
	a := &ArcAnimator{rng: rng}
	a.Configure(s)
	return a
}

// Configure resets the animator's parameters and reseeds the collection to
// the configured density.
func (a *ArcAnimator) Configure(s Settings) {
	a.baseColor = s.ArcColor
	a.speed = s.ArcAnimationSpeed
	a.altitude = s.ArcAltitude
	a.hqLat = s.HeadquartersLat
	a.hqLng = s.HeadquartersLng

	n := s.ArcDensity
	if n > arcCeiling {
		n = arcCeiling
	}
	a.arcs = make([]Arc, 0, arcCeiling)
	for i := 0; i < n; i++ {
		a.arcs = append(a.arcs, a.newArc())
	}
}

// Len returns the current arc count.
func (a *ArcAnimator) Len() int { return len(a.arcs) }

// Arcs exposes the collection for rendering and tests.
func (a *ArcAnimator) Arcs() []Arc { return a.arcs }

// Tick advances every arc by one animation step. Arcs that finished on a
// previous tick are regenerated in place with progress reset to zero, keeping
// the collection size stable. With a small probability a new arc is appended
// while below the ceiling.
func (a *ArcAnimator) Tick() {
	for i := range a.arcs {
		if a.arcs[i].Progress >= 1 {
			a.arcs[i] = a.newArc()
			continue
		}
		a.arcs[i].Progress += a.step(a.arcs[i].Progress)
	}
	if len(a.arcs) < arcCeiling && a.rng.Float64() < arcSpawnChance {
		a.arcs = append(a.arcs, a.newArc())
	}
}

func (a *ArcAnimator) step(p float64) float64 {
	switch {
	case p < arcSlowAt:
		return arcStepFast * a.speed
	case p < arcCrawlAt:
		return arcStepSlow * a.speed
	default:
		return arcStepCrawl * a.speed
	}
}

func (a *ArcAnimator) newArc() Arc {
	var sLat, sLng float64
	if a.rng.Float64() < headquartersBias {
		sLat, sLng = a.hqLat, a.hqLng
	} else {
		sLat, sLng = RandomPopulatedCoord(a.rng)
	}
	eLat, eLng := RandomPopulatedCoord(a.rng)
	return Arc{
		StartLat: ClampLatitude(sLat),
		StartLng: NormalizeLongitude(sLng),
		EndLat:   ClampLatitude(eLat),
		EndLng:   NormalizeLongitude(eLng),
		Color:    a.jitterColor(),
		Progress: 0,
	}
}

func (a *ArcAnimator) jitterColor() RGB {
	j := func(v float64) float64 {
		return clamp01(v + (a.rng.Float64()*2-1)*arcColorJitter)
	}
	return RGB{R: j(a.baseColor.R), G: j(a.baseColor.G), B: j(a.baseColor.B)}
}

// Draw clears the overlay and redraws every visible arc for the given view.
// Arcs whose endpoints both face the viewer are depth sorted (farther first)
// so nearer tracers occlude farther ones.
func (a *ArcAnimator) Draw(ov ArcOverlay, view ViewState) {
	ov.Clear()

	a.drawBuf = a.drawBuf[:0]
	for i := range a.arcs {
		arc := &a.arcs[i]
		start := Project(arc.StartLat, arc.StartLng, view.Phi, view.Theta, view.Scale, view.CX, view.CY)
		end := Project(arc.EndLat, arc.EndLng, view.Phi, view.Theta, view.Scale, view.CX, view.CY)
		if !start.Visible || !end.Visible {
			continue
		}
		a.drawBuf = append(a.drawBuf, projectedArc{arc: arc, start: start, end: end})
	}

	// Painter's algorithm keyed on summed endpoint depth.
	sort.Slice(a.drawBuf, func(i, j int) bool {
		return a.drawBuf[i].start.Z+a.drawBuf[i].end.Z < a.drawBuf[j].start.Z+a.drawBuf[j].end.Z
	})

	for _, pa := range a.drawBuf {
		a.drawArc(ov, pa, view.Scale)
	}
}

func (a *ArcAnimator) drawArc(ov ArcOverlay, pa projectedArc, scale float64) {
	arc := pa.arc
	if arc.Progress <= 0 {
		return
	}
	p0 := Point{X: pa.start.X, Y: pa.start.Y}
	p2 := Point{X: pa.end.X, Y: pa.end.Y}

	dist := math.Hypot(p2.X-p0.X, p2.Y-p0.Y)
	lift := (dist*0.3 + scale*40) * (a.altitude / 0.35)
	if lift < arcLiftMin {
		lift = arcLiftMin
	} else if lift > arcLiftMax {
		lift = arcLiftMax
	}
	ctrl := Point{X: (p0.X + p2.X) / 2, Y: (p0.Y+p2.Y)/2 - lift}

	progress := arc.Progress
	if progress > 1 {
		progress = 1
	}
	n := int(float64(arcSegments)*progress) + 1
	prev := p0
	for i := 1; i <= n; i++ {
		t := progress * float64(i) / float64(n)
		pt := QuadraticBezier(t, p0, ctrl, p2)
		// Brighten toward the head, fade at the tail.
		alpha := arcTailAlpha + (arcHeadAlpha-arcTailAlpha)*float64(i)/float64(n)
		ov.StrokeSegment(prev, pt, arc.Color, alpha, arcLineWidth)
		prev = pt
	}
	ov.FillCircle(prev, arcHeadRadius, arc.Color, arcHeadAlpha)
}
