package globe

import (
	"math/rand"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

const (
	glitchPollInterval = 4 * time.Second
	glitchChance       = 0.15
	glitchCooldown     = 2 * time.Second
)

// GlitchSeverity selects how long a glitch lasts and which screen artifacts
// accompany the palette distortion.
type GlitchSeverity int

const (
	// GlitchMinor distorts the palette only.
	GlitchMinor GlitchSeverity = iota
	// GlitchMedium adds a short position jitter.
	GlitchMedium
	// GlitchMajor adds jitter and a transient scanline overlay.
	GlitchMajor
)

// glitch duration bounds per severity, in milliseconds.
var glitchDurations = [3][2]int{
	{80, 150},
	{150, 300},
	{300, 500},
}

// PaletteRestarter is the slice of the render loop adapter the glitch effect
// needs: restart with a distorted palette, restart with the original.
type PaletteRestarter interface {
	ApplyPalette(land, glow RGB) error
	ClearPalette() error
}

// GlitchArtifacts applies and clears transient screen-space artifacts. A nil
// implementation disables artifacts without disabling the effect.
type GlitchArtifacts interface {
	ApplyJitter(dx, dy float64)
	ShowScanlines()
	ClearArtifacts()
}

// Glitcher runs the recurring probabilistic glitch effect: occasionally
// distort the globe's palette by restarting the renderer, hold briefly, then
// restore. At most one glitch cycle is in flight at a time.
type Glitcher struct {
	mu sync.Mutex

	restarter PaletteRestarter
	artifacts GlitchArtifacts
	tasks     *TaskRegistry
	rng       *rand.Rand
	log       zerolog.Logger

	base struct {
		land, glow RGB
	}

	inFlight   bool
	lastEnd    time.Time
	cancelPoll func()
	closed     bool
}

// NewGlitcher builds the effect around the adapter's palette controls.
// artifacts may be nil.
func NewGlitcher(restarter PaletteRestarter, artifacts GlitchArtifacts, s Settings, rng *rand.Rand, log zerolog.Logger) *Glitcher {
	g := &Glitcher{
		restarter: restarter,
		artifacts: artifacts,
		tasks:     NewTaskRegistry(),
		rng:       rng,
		log:       log,
	}
	g.base.land = s.LandColor
	g.base.glow = s.GlowColor
	return g
}

// Start begins the recurring trigger polling.
func (g *Glitcher) Start() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.closed || g.cancelPoll != nil {
		return
	}
	g.cancelPoll = g.tasks.Every(glitchPollInterval, func() {
		g.poll(time.Now())
	})
}

// Pending reports live timers, for teardown leak checks.
func (g *Glitcher) Pending() int { return g.tasks.Pending() }

// Close cancels the poll ticker and any pending restore, restores the
// original palette if a glitch was mid-cycle and clears artifacts. No timer
// survives Close.
func (g *Glitcher) Close() {
	g.mu.Lock()
	if g.closed {
		g.mu.Unlock()
		return
	}
	g.closed = true
	wasInFlight := g.inFlight
	g.inFlight = false
	g.mu.Unlock()

	g.tasks.Close()
	if g.artifacts != nil {
		g.artifacts.ClearArtifacts()
	}
	if wasInFlight {
		if err := g.restarter.ClearPalette(); err != nil {
			g.log.Warn().Err(err).Msg("palette restore on close failed")
		}
	}
}

// poll is one trigger roll. A glitch begins only when the roll passes, no
// cycle is in flight, and the cooldown since the previous cycle has elapsed.
func (g *Glitcher) poll(now time.Time) {
	g.mu.Lock()
	if g.closed || g.inFlight || now.Sub(g.lastEnd) < glitchCooldown || g.rng.Float64() >= glitchChance {
		g.mu.Unlock()
		return
	}
	g.inFlight = true
	severity := GlitchSeverity(g.rng.Intn(3))
	bounds := glitchDurations[severity]
	duration := time.Duration(bounds[0]+g.rng.Intn(bounds[1]-bounds[0])) * time.Millisecond
	land := g.distort(g.base.land)
	glow := g.distort(g.base.glow)
	g.mu.Unlock()

	g.log.Debug().Int("severity", int(severity)).Dur("duration", duration).Msg("glitch triggered")

	if err := g.restarter.ApplyPalette(land, glow); err != nil {
		g.log.Warn().Err(err).Msg("glitch palette apply failed")
		g.finish(time.Now())
		return
	}
	if g.artifacts != nil {
		switch severity {
		case GlitchMedium:
			g.artifacts.ApplyJitter(g.jitterOffset(), g.jitterOffset())
		case GlitchMajor:
			g.artifacts.ApplyJitter(g.jitterOffset(), g.jitterOffset())
			g.artifacts.ShowScanlines()
		}
	}

	g.tasks.After(duration, func() {
		if g.artifacts != nil {
			g.artifacts.ClearArtifacts()
		}
		if err := g.restarter.ClearPalette(); err != nil {
			g.log.Warn().Err(err).Msg("glitch palette restore failed")
		}
		g.finish(time.Now())
	})
}

func (g *Glitcher) finish(now time.Time) {
	g.mu.Lock()
	g.inFlight = false
	g.lastEnd = now
	g.mu.Unlock()
}

// distort randomly perturbs or inverts each channel, clamped to [0, 1].
func (g *Glitcher) distort(c RGB) RGB {
	ch := func(v float64) float64 {
		if g.rng.Float64() < 0.3 {
			return 1 - v
		}
		return clamp01(v + g.rng.Float64()*0.8 - 0.4)
	}
	return RGB{R: ch(c.R), G: ch(c.G), B: ch(c.B)}
}

func (g *Glitcher) jitterOffset() float64 {
	return (g.rng.Float64()*2 - 1) * 8
}
