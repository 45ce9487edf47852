package globe

import (
	"fmt"
	"math/rand"
	"sync"

	"github.com/rs/zerolog"
)

// Disposer tears down a renderer instance. Every Start returns one, and it
// must run before a replacement instance is created for the same canvas.
type Disposer func()

// FrameState is the mutable per-frame state handed to the renderer's frame
// callback. The callback writes the rotation for the frame being drawn.
type FrameState struct {
	Phi, Theta float64
}

// Config parameterizes one renderer instance. The renderer treats it as
// immutable: settings or marker changes require disposing the instance and
// starting a new one.
type Config struct {
	Settings Settings
	Markers  []Marker
	Width    int
	Height   int
	OnFrame  func(*FrameState)
}

// Renderer is the black-box globe renderer: given a configuration and a
// per-frame callback it draws the globe and returns a disposer.
type Renderer interface {
	Start(Config) (Disposer, error)
}

// Adapter owns the single live renderer instance for a canvas and composes
// the rotation tracker, arc animator and marker feed into the renderer's
// per-frame state. All renderer API calls go through the adapter; no other
// component touches the instance directly.
type Adapter struct {
	mu sync.Mutex

	renderer Renderer
	dispose  Disposer

	settings      Settings
	paletteLand   *RGB // non-nil while a glitch palette is applied
	paletteGlow   *RGB
	width, height int

	tracker *RotationTracker
	arcs    *ArcAnimator
	feed    *MarkerFeed
	overlay ArcOverlay

	log zerolog.Logger
}

// NewAdapter wires the adapter. overlay may be nil when no arc overlay
// surface exists (e.g. headless tests with arcs disabled).
func NewAdapter(r Renderer, s Settings, feed *MarkerFeed, overlay ArcOverlay, rng *rand.Rand, log zerolog.Logger) *Adapter {
	return &Adapter{
		renderer: r,
		settings: s,
		tracker:  NewRotationTracker(s),
		arcs:     NewArcAnimator(s, rng),
		feed:     feed,
		overlay:  overlay,
		log:      log,
	}
}

// Tracker exposes the rotation tracker so input sources can feed pointer
// events into it.
func (ad *Adapter) Tracker() *RotationTracker { return ad.tracker }

// Settings returns a copy of the current base settings.
func (ad *Adapter) Settings() Settings {
	ad.mu.Lock()
	defer ad.mu.Unlock()
	return ad.settings
}

// Start creates the initial renderer instance for the given viewport.
func (ad *Adapter) Start(width, height int) error {
	ad.mu.Lock()
	defer ad.mu.Unlock()
	ad.width, ad.height = width, height
	return ad.restartLocked()
}

// UpdateSettings applies a point update and restarts the renderer with the
// new configuration. Rotation angles carry over.
func (ad *Adapter) UpdateSettings(mutate func(*Settings)) error {
	ad.mu.Lock()
	defer ad.mu.Unlock()
	mutate(&ad.settings)
	ad.tracker.Configure(ad.settings)
	ad.arcs.Configure(ad.settings)
	return ad.restartLocked()
}

// Resize tears the instance down and recreates it for the new viewport,
// preserving phi and theta so the globe does not visually jump.
func (ad *Adapter) Resize(width, height int) error {
	ad.mu.Lock()
	defer ad.mu.Unlock()
	if width == ad.width && height == ad.height {
		return nil
	}
	ad.width, ad.height = width, height
	return ad.restartLocked()
}

// RefreshMarkers restarts the renderer so the instance picks up the current
// marker list. Markers are read fresh at instance creation, never mutated
// mid-instance.
func (ad *Adapter) RefreshMarkers() error {
	ad.mu.Lock()
	defer ad.mu.Unlock()
	return ad.restartLocked()
}

// ApplyPalette restarts the renderer with an override land/glow palette,
// leaving the base settings untouched. Used by the glitch effect.
func (ad *Adapter) ApplyPalette(land, glow RGB) error {
	ad.mu.Lock()
	defer ad.mu.Unlock()
	land, glow = land.Clamp(), glow.Clamp()
	ad.paletteLand, ad.paletteGlow = &land, &glow
	return ad.restartLocked()
}

// ClearPalette restarts the renderer with the original palette.
func (ad *Adapter) ClearPalette() error {
	ad.mu.Lock()
	defer ad.mu.Unlock()
	ad.paletteLand, ad.paletteGlow = nil, nil
	return ad.restartLocked()
}

// Close disposes the live instance, if any.
func (ad *Adapter) Close() {
	ad.mu.Lock()
	defer ad.mu.Unlock()
	ad.disposeLocked()
}

// restartLocked disposes the current instance and starts a replacement.
// Construction failures are logged and leave no instance registered, so the
// next triggering event can retry; they never propagate as a crash.
func (ad *Adapter) restartLocked() error {
	ad.disposeLocked()

	cfg := Config{
		Settings: ad.settings,
		Width:    ad.width,
		Height:   ad.height,
		OnFrame:  ad.onFrame,
	}
	if ad.paletteLand != nil {
		cfg.Settings.LandColor = *ad.paletteLand
		cfg.Settings.GlowColor = *ad.paletteGlow
	}
	if ad.feed != nil {
		cfg.Markers = ad.feed.Snapshot()
	}

	disp, err := ad.startInstance(cfg)
	if err != nil {
		ad.log.Error().Err(err).Msg("renderer start failed")
		return err
	}
	ad.dispose = disp
	return nil
}

func (ad *Adapter) startInstance(cfg Config) (disp Disposer, err error) {
	defer func() {
		if r := recover(); r != nil {
			disp, err = nil, fmt.Errorf("renderer start panicked: %v", r)
		}
	}()
	return ad.renderer.Start(cfg)
}

func (ad *Adapter) disposeLocked() {
	if ad.dispose == nil {
		return
	}
	disp := ad.dispose
	ad.dispose = nil
	defer func() {
		if r := recover(); r != nil {
			ad.log.Error().Interface("panic", r).Msg("renderer dispose panicked")
		}
	}()
	disp()
}

// onFrame is the per-frame callback handed to the renderer. Rotation is
// stepped first; the arc overlay is drawn afterwards with the same angles so
// projection stays consistent within the frame.
func (ad *Adapter) onFrame(fs *FrameState) {
	ad.tracker.Step()
	fs.Phi = ad.tracker.Phi()
	fs.Theta = ad.tracker.Theta()

	if ad.settings.ShowArcs && ad.overlay != nil {
		ad.arcs.Tick()
		cx := float64(ad.width)/2 + ad.settings.OffsetX/100*float64(ad.width)
		cy := float64(ad.height)/2 + ad.settings.OffsetY/100*float64(ad.height)
		ad.arcs.Draw(ad.overlay, ViewState{
			Phi:   fs.Phi,
			Theta: fs.Theta,
			Scale: ad.settings.Scale,
			CX:    cx,
			CY:    cy,
		})
	}
}
