package globe

import (
	"context"
	"math/rand"
	"time"

	"github.com/rs/zerolog"
)

// MarkerTTL is how long a stored visitor location stays valid. A record
// exactly at the limit is retained; one past it is discarded.
const MarkerTTL = 30 * 24 * time.Hour

// MaxLiveMarkers caps the marker list fed to the renderer.
const MaxLiveMarkers = 12

// Marker is a dot rendered on the globe for a visitor location.
type Marker struct {
	Lat       float64   `json:"latitude"`
	Lng       float64   `json:"longitude"`
	Size      float64   `json:"size"`
	Color     RGB       `json:"color"`
	CreatedAt time.Time `json:"createdAt"`
}

// NewMarker builds a marker with the coordinate clamped and normalized.
// Out-of-range input from GPS noise or malformed relay payloads is corrected
// rather than rejected; rendering never fails on bad geo data.
func NewMarker(lat, lng float64, at time.Time) Marker {
	return Marker{
		Lat:       ClampLatitude(lat),
		Lng:       NormalizeLongitude(lng),
		Size:      0.08,
		Color:     RGB{R: 1, G: 1, B: 1},
		CreatedAt: at,
	}
}

// MarkerList is an append-only marker collection with FIFO eviction beyond
// MaxLiveMarkers.
type MarkerList struct {
	markers []Marker
	cap     int
}

// NewMarkerList returns an empty list with the live-marker cap.
func NewMarkerList() *MarkerList {
	return &MarkerList{cap: MaxLiveMarkers}
}

// Add appends a marker, evicting the oldest entries beyond the cap.
func (l *MarkerList) Add(m Marker) {
	l.markers = append(l.markers, m)
	if n := len(l.markers) - l.cap; n > 0 {
		l.markers = append(l.markers[:0], l.markers[n:]...)
	}
}

// Len returns the number of live markers.
func (l *MarkerList) Len() int { return len(l.markers) }

// Snapshot returns a copy of the markers, oldest first.
func (l *MarkerList) Snapshot() []Marker {
	out := make([]Marker, len(l.markers))
	copy(out, l.markers)
	return out
}

// StoredLocation is the durable visitor-location record, kept in the same
// shape the browser bundle writes to local storage.
type StoredLocation struct {
	Location  [2]float64 `json:"location"`  // lat, lng
	Timestamp int64      `json:"timestamp"` // unix milliseconds
}

// Expired reports whether the record is older than MarkerTTL at now.
func (s StoredLocation) Expired(now time.Time) bool {
	return now.UnixMilli()-s.Timestamp > MarkerTTL.Milliseconds()
}

// Region is a geographic bounding box with a sampling weight.
type Region struct {
	Name                   string
	MinLat, MaxLat         float64
	MinLng, MaxLng         float64
	Weight                 float64
	cumulativeWeight       float64
}

// PopulatedRegions biases fallback coordinates toward where people actually
// are. Weights are relative, not percentages.
var PopulatedRegions = []Region{
	{Name: "North America", MinLat: 25, MaxLat: 55, MinLng: -125, MaxLng: -65, Weight: 25},
	{Name: "Europe", MinLat: 36, MaxLat: 60, MinLng: -10, MaxLng: 30, Weight: 30},
	{Name: "Asia", MinLat: 5, MaxLat: 45, MinLng: 65, MaxLng: 140, Weight: 30},
	{Name: "South America", MinLat: -35, MaxLat: 5, MinLng: -80, MaxLng: -40, Weight: 8},
	{Name: "Australia", MinLat: -40, MaxLat: -15, MinLng: 115, MaxLng: 153, Weight: 7},
}

func init() {
	total := 0.0
	for i := range PopulatedRegions {
		total += PopulatedRegions[i].Weight
		PopulatedRegions[i].cumulativeWeight = total
	}
}

// RandomPopulatedCoord samples a coordinate via weighted region choice, then
// uniformly within the chosen bounding box.
func RandomPopulatedCoord(rng *rand.Rand) (lat, lng float64) {
	last := PopulatedRegions[len(PopulatedRegions)-1]
	r := rng.Float64() * last.cumulativeWeight
	chosen := last
	for _, region := range PopulatedRegions {
		if region.cumulativeWeight >= r {
			chosen = region
			break
		}
	}
	lat = chosen.MinLat + rng.Float64()*(chosen.MaxLat-chosen.MinLat)
	lng = chosen.MinLng + rng.Float64()*(chosen.MaxLng-chosen.MinLng)
	return lat, lng
}

// LocationStore persists the visitor's own coordinate across sessions.
type LocationStore interface {
	LoadLocation() (StoredLocation, bool, error)
	SaveLocation(StoredLocation) error
}

// Geolocator resolves the visitor's coordinate, typically through the
// geolocation proxy endpoint or the platform's location service.
type Geolocator interface {
	Locate(ctx context.Context) (lat, lng float64, err error)
}

// Broadcaster announces the local visitor's coordinate to other sessions.
type Broadcaster interface {
	AnnounceVisitor(lat, lng float64) error
}

// MarkerFeed owns the live marker list: the visitor's own marker (stored,
// located or synthesized) plus markers merged in from the relay.
type MarkerFeed struct {
	list  *MarkerList
	store LocationStore
	rng   *rand.Rand
	log   zerolog.Logger
	now   func() time.Time
}

// NewMarkerFeed builds a feed. store may be nil when no durable storage is
// available; now defaults to time.Now when nil.
func NewMarkerFeed(store LocationStore, rng *rand.Rand, log zerolog.Logger) *MarkerFeed {
	return &MarkerFeed{
		list:  NewMarkerList(),
		store: store,
		rng:   rng,
		log:   log,
		now:   time.Now,
	}
}

// Acquire establishes the visitor's own marker: a still-valid stored record
// wins; otherwise loc is consulted and the result persisted and announced via
// bc. On any failure a population-weighted random coordinate stands in, and
// the stand-in stays session-local. Geolocation failure is expected and never
// surfaces as an error.
func (f *MarkerFeed) Acquire(ctx context.Context, loc Geolocator, bc Broadcaster) Marker {
	now := f.now()

	if f.store != nil {
		rec, ok, err := f.store.LoadLocation()
		if err != nil {
			f.log.Warn().Err(err).Msg("stored location unreadable, ignoring")
		} else if ok {
			if rec.Expired(now) {
				f.log.Debug().Msg("stored location expired, discarding")
			} else {
				m := NewMarker(rec.Location[0], rec.Location[1], time.UnixMilli(rec.Timestamp))
				f.list.Add(m)
				return m
			}
		}
	}

	lat, lng, err := 0.0, 0.0, error(nil)
	if loc != nil {
		lat, lng, err = loc.Locate(ctx)
	}
	located := loc != nil && err == nil
	if !located {
		if err != nil {
			f.log.Debug().Err(err).Msg("geolocation unavailable, using populated-region fallback")
		}
		lat, lng = RandomPopulatedCoord(f.rng)
	}

	m := NewMarker(lat, lng, now)
	f.list.Add(m)

	// A synthetic stand-in is session-local: it is never persisted or
	// announced, so the next session retries geolocation.
	if !located {
		return m
	}

	if f.store != nil {
		rec := StoredLocation{Location: [2]float64{m.Lat, m.Lng}, Timestamp: now.UnixMilli()}
		if err := f.store.SaveLocation(rec); err != nil {
			f.log.Warn().Err(err).Msg("failed to persist visitor location")
		}
	}
	if bc != nil {
		if err := bc.AnnounceVisitor(m.Lat, m.Lng); err != nil {
			f.log.Warn().Err(err).Msg("failed to announce visitor location")
		}
	}
	return m
}

// Merge folds a remote visitor coordinate into the list, clamping the input
// and evicting beyond the cap.
func (f *MarkerFeed) Merge(lat, lng float64, at time.Time) {
	f.list.Add(NewMarker(lat, lng, at))
}

// Len returns the live marker count.
func (f *MarkerFeed) Len() int { return f.list.Len() }

// Snapshot returns the current markers, oldest first.
func (f *MarkerFeed) Snapshot() []Marker { return f.list.Snapshot() }
