package globeview

import (
	"image/color"
	"math"

	"github.com/hajimehoshi/ebiten/v2"

	"github.com/sudorandom/dot-globe/pkg/globe"
)

// newGlowTexture builds the radial halo sprite drawn behind the globe. White
// with a smooth cosine falloff so ColorScale can tint it per palette.
func newGlowTexture(size int) *ebiten.Image {
	img := ebiten.NewImage(size, size)
	pixels := make([]byte, size*size*4)
	center, maxDist := float64(size)/2.0, float64(size)/2.0
	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			dx, dy := float64(x)-center, float64(y)-center
			dist := math.Sqrt(dx*dx + dy*dy)
			if dist < maxDist {
				val := math.Cos((dist / maxDist) * (math.Pi / 2))
				val *= val
				a := uint8(val * 255)
				i := (y*size + x) * 4
				pixels[i+0], pixels[i+1], pixels[i+2], pixels[i+3] = a, a, a, a
			}
		}
	}
	img.WritePixels(pixels)
	return img
}

// newPulseTexture builds the expanding-ring sprite used for visitor marker
// pulses: transparent core, a thin bright ring near the rim with eased edges.
func newPulseTexture(size int) *ebiten.Image {
	img := ebiten.NewImage(size, size)
	pixels := make([]byte, size*size*4)
	center, maxDist := float64(size)/2.0, float64(size)/2.0
	const outer, inner = 0.9, 0.72
	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			dx, dy := float64(x)-center, float64(y)-center
			dist := math.Sqrt(dx*dx + dy*dy)
			if dist < maxDist {
				val := 0.0
				if dist > maxDist*outer {
					val = math.Cos(((dist - maxDist*outer) / (maxDist * (1 - outer))) * (math.Pi / 2))
				} else if dist > maxDist*inner {
					val = math.Sin(((dist - maxDist*inner) / (maxDist * (outer - inner))) * (math.Pi / 2))
				}
				a := uint8(val * 255)
				i := (y*size + x) * 4
				pixels[i+0], pixels[i+1], pixels[i+2], pixels[i+3] = a, a, a, a
			}
		}
	}
	img.WritePixels(pixels)
	return img
}

// premultRGBA converts a normalized color and alpha into a premultiplied
// color.RGBA for the vector drawing calls.
func premultRGBA(c globe.RGB, alpha float64) color.RGBA {
	c = c.Clamp()
	if alpha < 0 {
		alpha = 0
	} else if alpha > 1 {
		alpha = 1
	}
	return color.RGBA{
		R: uint8(c.R * alpha * 255),
		G: uint8(c.G * alpha * 255),
		B: uint8(c.B * alpha * 255),
		A: uint8(alpha * 255),
	}
}
