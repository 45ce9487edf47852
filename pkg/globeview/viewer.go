// Package globeview renders the dot globe with ebiten: a depth-shaded land
// dot lattice, a tinted halo, pulsing visitor markers, the arc overlay and
// the glitch screen artifacts. It implements the renderer contract the
// adapter drives, so settings changes arrive as fresh instances rather than
// in-place mutation.
package globeview

import (
	"errors"
	"image/color"
	"sync"

	"github.com/hajimehoshi/ebiten/v2"
	"github.com/hajimehoshi/ebiten/v2/inpututil"
	"github.com/hajimehoshi/ebiten/v2/vector"
	"github.com/rs/zerolog"

	"github.com/sudorandom/dot-globe/pkg/globe"
)

const (
	glowTextureSize  = 256
	pulseTextureSize = 128

	// Marker pulses loop on this many frames.
	pulsePeriod = 150

	scanlineStep  = 4
	scanlineAlpha = 90
)

// backgroundColor is the near-black page backdrop the globe floats over.
var backgroundColor = color.RGBA{R: 5, G: 7, B: 16, A: 255}

// PointerSink receives pointer events from the game loop. The rotation
// tracker satisfies it.
type PointerSink interface {
	PointerDown(x, y float64)
	PointerMove(x, y float64)
	PointerUp()
}

// instance is one renderer configuration, alive from Start until its
// disposer runs. The viewer draws whatever instance is current and goes dark
// between instances.
type instance struct {
	cfg   globe.Config
	frame uint64
}

// Viewer is the long-lived ebiten game hosting renderer instances. ebiten
// runs one game per process, so instead of tearing down the window the
// viewer swaps the active instance in place.
type Viewer struct {
	mu   sync.Mutex
	inst *instance

	phi, theta float64

	dots      []Dot
	overlay   *VectorOverlay
	artifacts *Artifacts
	sink      PointerSink

	// OnResize is invoked from Layout when the outside size changes. Set
	// it before RunGame; typically the adapter's Resize.
	OnResize func(width, height int)

	glowTex  *ebiten.Image
	pulseTex *ebiten.Image
	scene    *ebiten.Image

	width, height int
	dragging      bool

	log zerolog.Logger
}

// NewViewer builds the game around a precomputed dot lattice. overlay and
// artifacts may be shared with the arc animator and glitch timer; either may
// be nil.
func NewViewer(dots []Dot, overlay *VectorOverlay, artifacts *Artifacts, log zerolog.Logger) *Viewer {
	return &Viewer{
		dots:      dots,
		overlay:   overlay,
		artifacts: artifacts,
		glowTex:   newGlowTexture(glowTextureSize),
		pulseTex:  newPulseTexture(pulseTextureSize),
		log:       log,
	}
}

// SetPointerSink routes mouse drag events to the sink.
func (v *Viewer) SetPointerSink(s PointerSink) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.sink = s
}

// Start installs a new instance, replacing any current one. The returned
// disposer detaches the instance; a stale disposer (one whose instance was
// already replaced) is a no-op.
func (v *Viewer) Start(cfg globe.Config) (globe.Disposer, error) {
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return nil, errors.New("globeview: non-positive viewport")
	}
	if cfg.OnFrame == nil {
		return nil, errors.New("globeview: nil frame callback")
	}
	inst := &instance{cfg: cfg}

	v.mu.Lock()
	v.inst = inst
	v.mu.Unlock()

	v.log.Debug().
		Int("width", cfg.Width).
		Int("height", cfg.Height).
		Int("markers", len(cfg.Markers)).
		Msg("Renderer instance started")

	return func() {
		v.mu.Lock()
		if v.inst == inst {
			v.inst = nil
		}
		v.mu.Unlock()
	}, nil
}

// Update advances one tick: pointer input first, then the frame callback,
// which steps rotation and redraws the arc overlay.
func (v *Viewer) Update() error {
	v.mu.Lock()
	inst := v.inst
	sink := v.sink
	v.mu.Unlock()

	if sink != nil {
		v.handlePointer(sink)
	}
	if inst == nil {
		return nil
	}

	var fs globe.FrameState
	inst.cfg.OnFrame(&fs)
	inst.frame++

	v.mu.Lock()
	v.phi, v.theta = fs.Phi, fs.Theta
	v.mu.Unlock()
	return nil
}

func (v *Viewer) handlePointer(sink PointerSink) {
	x, y := ebiten.CursorPosition()
	switch {
	case inpututil.IsMouseButtonJustPressed(ebiten.MouseButtonLeft):
		v.dragging = true
		sink.PointerDown(float64(x), float64(y))
	case inpututil.IsMouseButtonJustReleased(ebiten.MouseButtonLeft):
		if v.dragging {
			v.dragging = false
			sink.PointerUp()
		}
	case v.dragging && ebiten.IsMouseButtonPressed(ebiten.MouseButtonLeft):
		sink.PointerMove(float64(x), float64(y))
	}
}

// Draw renders the current instance. The scene is composed offscreen so
// glitch jitter can displace the whole frame in one blit.
func (v *Viewer) Draw(screen *ebiten.Image) {
	v.mu.Lock()
	inst := v.inst
	phi, theta := v.phi, v.theta
	v.mu.Unlock()

	screen.Fill(backgroundColor)
	if inst == nil {
		return
	}

	bounds := screen.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	if v.scene == nil || v.scene.Bounds().Dx() != w || v.scene.Bounds().Dy() != h {
		v.scene = ebiten.NewImage(w, h)
	}
	v.scene.Fill(backgroundColor)

	s := inst.cfg.Settings
	cx := float64(w)/2 + s.OffsetX/100*float64(w)
	cy := float64(h)/2 + s.OffsetY/100*float64(h)
	radius := s.Scale * globe.ProjectionRadius

	v.drawHalo(v.scene, s, cx, cy, radius)
	v.drawDots(v.scene, s, phi, theta, cx, cy)
	if s.ShowVisitorMarkers {
		v.drawMarkers(v.scene, inst, phi, theta, cx, cy)
	}
	if s.ShowArcs && v.overlay != nil {
		v.overlay.Render(v.scene)
	}

	var dx, dy float64
	var scan bool
	if v.artifacts != nil {
		dx, dy, scan = v.artifacts.State()
	}

	op := &ebiten.DrawImageOptions{}
	op.GeoM.Translate(dx, dy)
	op.ColorScale.ScaleAlpha(float32(s.Opacity))
	screen.DrawImage(v.scene, op)

	if scan {
		v.drawScanlines(screen, w, h)
	}
}

func (v *Viewer) drawHalo(dst *ebiten.Image, s globe.Settings, cx, cy, radius float64) {
	d := radius * 2.3
	op := &ebiten.DrawImageOptions{}
	op.GeoM.Scale(d/glowTextureSize, d/glowTextureSize)
	op.GeoM.Translate(cx-d/2, cy-d/2)
	g := s.GlowColor.Clamp()
	op.ColorScale.Scale(float32(g.R)*0.5, float32(g.G)*0.5, float32(g.B)*0.5, 0.5)
	op.Blend = ebiten.BlendLighter
	dst.DrawImage(v.glowTex, op)
}

func (v *Viewer) drawDots(dst *ebiten.Image, s globe.Settings, phi, theta, cx, cy float64) {
	land := s.LandColor.Clamp()
	for _, d := range v.dots {
		p := globe.Project(d.Lat, d.Lng, phi, theta, s.Scale, cx, cy)
		if !p.Visible || p.Z < 0 {
			continue
		}
		// Dots dim and shrink toward the limb.
		depth := p.Z
		alpha := 0.25 + 0.75*depth
		r := s.DotSize * s.Scale * (0.6 + 0.4*depth)
		vector.DrawFilledCircle(dst, float32(p.X), float32(p.Y), float32(r), premultRGBA(land, alpha), false)
	}
}

func (v *Viewer) drawMarkers(dst *ebiten.Image, inst *instance, phi, theta, cx, cy float64) {
	s := inst.cfg.Settings
	phase := float64(inst.frame%pulsePeriod) / pulsePeriod
	for _, m := range inst.cfg.Markers {
		p := globe.Project(m.Lat, m.Lng, phi, theta, s.Scale, cx, cy)
		if !p.Visible || p.Z < 0 {
			continue
		}
		base := m.Size * s.Scale * globe.ProjectionRadius
		vector.DrawFilledCircle(dst, float32(p.X), float32(p.Y), float32(base*0.45), premultRGBA(m.Color, 0.9), true)

		// Expanding ring, fading as it grows.
		d := base * (1 + 2.2*phase) * 2
		alpha := (1 - phase) * 0.8
		op := &ebiten.DrawImageOptions{}
		op.GeoM.Scale(d/pulseTextureSize, d/pulseTextureSize)
		op.GeoM.Translate(p.X-d/2, p.Y-d/2)
		c := m.Color.Clamp()
		a := float32(alpha)
		op.ColorScale.Scale(float32(c.R)*a, float32(c.G)*a, float32(c.B)*a, a)
		op.Blend = ebiten.BlendLighter
		dst.DrawImage(v.pulseTex, op)
	}
}

func (v *Viewer) drawScanlines(dst *ebiten.Image, w, h int) {
	col := premultRGBA(globe.RGB{}, float64(scanlineAlpha)/255)
	for y := 0; y < h; y += scanlineStep {
		vector.DrawFilledRect(dst, 0, float32(y), float32(w), 1, col, false)
	}
}

// Layout reports the logical screen size and notifies the resize hook when
// the window dimensions change.
func (v *Viewer) Layout(outsideWidth, outsideHeight int) (int, int) {
	if outsideWidth != v.width || outsideHeight != v.height {
		v.width, v.height = outsideWidth, outsideHeight
		if v.OnResize != nil {
			v.OnResize(outsideWidth, outsideHeight)
		}
	}
	return outsideWidth, outsideHeight
}
