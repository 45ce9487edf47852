package globeview

import "sync"

// Artifacts holds the transient screen-space glitch state. The glitch timer
// writes it from scheduler goroutines; Draw reads it on the game loop.
type Artifacts struct {
	mu        sync.Mutex
	dx, dy    float64
	scanlines bool
}

func NewArtifacts() *Artifacts {
	return &Artifacts{}
}

func (a *Artifacts) ApplyJitter(dx, dy float64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.dx, a.dy = dx, dy
}

func (a *Artifacts) ShowScanlines() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.scanlines = true
}

func (a *Artifacts) ClearArtifacts() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.dx, a.dy = 0, 0
	a.scanlines = false
}

// State returns the current jitter offset and scanline flag.
func (a *Artifacts) State() (dx, dy float64, scanlines bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.dx, a.dy, a.scanlines
}
