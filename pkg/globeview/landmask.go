package globeview

import (
	"fmt"
	"io"
	"math"
	"sort"

	geojson "github.com/paulmach/go.geojson"

	"github.com/sudorandom/dot-globe/pkg/globe"
)

// land mask raster resolution. Equirectangular, 0.35 degrees per cell at the
// equator, plenty for a dot lattice.
const (
	maskWidth  = 1024
	maskHeight = 512
)

// LandMask is a rasterized land/water grid built from a GeoJSON outline.
type LandMask struct {
	cells []bool
}

// NewLandMask rasterizes every polygon in the feature collection.
func NewLandMask(r io.Reader) (*LandMask, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read land outline: %w", err)
	}
	fc, err := geojson.UnmarshalFeatureCollection(raw)
	if err != nil {
		return nil, fmt.Errorf("parse land outline: %w", err)
	}

	m := &LandMask{cells: make([]bool, maskWidth*maskHeight)}
	for _, f := range fc.Features {
		if f.Geometry == nil {
			continue
		}
		if f.Geometry.IsPolygon() {
			m.fillPolygon(f.Geometry.Polygon)
		} else if f.Geometry.IsMultiPolygon() {
			for _, poly := range f.Geometry.MultiPolygon {
				m.fillPolygon(poly)
			}
		}
	}
	return m, nil
}

// Contains reports whether the coordinate falls on land.
func (m *LandMask) Contains(lat, lng float64) bool {
	x := int((lng + 180) / 360 * maskWidth)
	y := int((90 - lat) / 180 * maskHeight)
	if x < 0 || x >= maskWidth || y < 0 || y >= maskHeight {
		return false
	}
	return m.cells[y*maskWidth+x]
}

// fillPolygon scanline-fills one polygon (outer ring plus holes) into the
// grid. Rings are geojson [lng, lat] pairs; even-odd crossing rule handles
// the holes.
func (m *LandMask) fillPolygon(rings [][][]float64) {
	if len(rings) == 0 {
		return
	}
	type point struct{ x, y float64 }
	projected := make([][]point, len(rings))
	minY, maxY := float64(maskHeight), 0.0
	for i, ring := range rings {
		projected[i] = make([]point, len(ring))
		for j, p := range ring {
			x := (p[0] + 180) / 360 * maskWidth
			y := (90 - p[1]) / 180 * maskHeight
			projected[i][j] = point{x, y}
			if y < minY {
				minY = y
			}
			if y > maxY {
				maxY = y
			}
		}
	}
	for y := int(minY); y <= int(maxY); y++ {
		if y < 0 || y >= maskHeight {
			continue
		}
		var nodes []int
		fy := float64(y) + 0.5
		for _, ring := range projected {
			for i := 0; i < len(ring); i++ {
				j := (i + 1) % len(ring)
				if (ring[i].y < fy && ring[j].y >= fy) || (ring[j].y < fy && ring[i].y >= fy) {
					nodeX := ring[i].x + (fy-ring[i].y)/(ring[j].y-ring[i].y)*(ring[j].x-ring[i].x)
					nodes = append(nodes, int(nodeX))
				}
			}
		}
		sort.Ints(nodes)
		for i := 0; i < len(nodes)-1; i += 2 {
			xs, xe := nodes[i], nodes[i+1]
			if xs < 0 {
				xs = 0
			}
			if xe >= maskWidth {
				xe = maskWidth - 1
			}
			for x := xs; x <= xe; x++ {
				m.cells[y*maskWidth+x] = true
			}
		}
	}
}

// Dot is one land dot of the lattice, in degrees.
type Dot struct {
	Lat, Lng float64
}

// latticeRows controls dot density. Rows are evenly spaced in latitude; dots
// per row shrink with cos(lat) so spacing stays visually uniform on the
// sphere.
const latticeRows = 110

// DotLattice samples the mask into the dot set the renderer draws.
func DotLattice(mask *LandMask) []Dot {
	var dots []Dot
	for row := 0; row < latticeRows; row++ {
		lat := -90 + (float64(row)+0.5)*180/latticeRows
		lat = globe.ClampLatitude(lat)
		cols := int(2 * latticeRows * math.Cos(lat*math.Pi/180))
		if cols < 1 {
			continue
		}
		for col := 0; col < cols; col++ {
			lng := -180 + (float64(col)+0.5)*360/float64(cols)
			if mask.Contains(lat, lng) {
				dots = append(dots, Dot{Lat: lat, Lng: lng})
			}
		}
	}
	return dots
}
