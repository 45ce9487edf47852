package globe

import (
	"context"
	"errors"
	"math/rand"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

type fakeStore struct {
	rec     StoredLocation
	ok      bool
	loadErr error
	saved   []StoredLocation
	saveErr error
}

func (s *fakeStore) LoadLocation() (StoredLocation, bool, error) {
	return s.rec, s.ok, s.loadErr
}

func (s *fakeStore) SaveLocation(rec StoredLocation) error {
	s.saved = append(s.saved, rec)
	return s.saveErr
}

type fakeGeolocator struct {
	lat, lng float64
	err      error
	calls    int
}

func (g *fakeGeolocator) Locate(ctx context.Context) (float64, float64, error) {
	g.calls++
	return g.lat, g.lng, g.err
}

type fakeBroadcaster struct {
	announced [][2]float64
}

func (b *fakeBroadcaster) AnnounceVisitor(lat, lng float64) error {
	b.announced = append(b.announced, [2]float64{lat, lng})
	return nil
}

func newTestFeed(store LocationStore) *MarkerFeed {
	return NewMarkerFeed(store, rand.New(rand.NewSource(7)), zerolog.Nop())
}

func TestNewMarkerClampsCoordinates(t *testing.T) {
	tests := []struct {
		lat, lng         float64
		wantLat, wantLng float64
	}{
		{0, 0, 0, 0},
		{91, 0, 85, 0},
		{-123, 0, -85, 0},
		{0, 190, 0, -170},
		{0, -180, 0, 180},
		{52.52, 13.405, 52.52, 13.405},
	}
	for _, tt := range tests {
		m := NewMarker(tt.lat, tt.lng, time.Now())
		if m.Lat != tt.wantLat || m.Lng != tt.wantLng {
			t.Errorf("NewMarker(%v, %v) = (%v, %v), want (%v, %v)",
				tt.lat, tt.lng, m.Lat, m.Lng, tt.wantLat, tt.wantLng)
		}
	}
}

func TestMarkerListFIFOEviction(t *testing.T) {
	l := NewMarkerList()
	base := time.Unix(0, 0)
	for i := 0; i < MaxLiveMarkers+3; i++ {
		l.Add(NewMarker(float64(i), 0, base.Add(time.Duration(i)*time.Second)))
	}
	if l.Len() != MaxLiveMarkers {
		t.Fatalf("len = %d, want %d", l.Len(), MaxLiveMarkers)
	}
	snap := l.Snapshot()
	// The three oldest entries were evicted.
	if snap[0].Lat != 3 {
		t.Errorf("oldest surviving marker lat = %v, want 3", snap[0].Lat)
	}
	if snap[len(snap)-1].Lat != float64(MaxLiveMarkers+2) {
		t.Errorf("newest marker lat = %v, want %v", snap[len(snap)-1].Lat, MaxLiveMarkers+2)
	}
}

func TestSnapshotIsACopy(t *testing.T) {
	l := NewMarkerList()
	l.Add(NewMarker(10, 20, time.Now()))
	snap := l.Snapshot()
	snap[0].Lat = -40
	if got := l.Snapshot()[0].Lat; got != 10 {
		t.Errorf("mutating snapshot leaked into list: lat = %v", got)
	}
}

func TestStoredLocationExpiry(t *testing.T) {
	now := time.UnixMilli(1_700_000_000_000)
	tests := []struct {
		name string
		age  time.Duration
		want bool
	}{
		{"fresh", time.Hour, false},
		{"exactly at limit", MarkerTTL, false},
		{"one past limit", MarkerTTL + time.Millisecond, true},
	}
	for _, tt := range tests {
		rec := StoredLocation{Timestamp: now.Add(-tt.age).UnixMilli()}
		if got := rec.Expired(now); got != tt.want {
			t.Errorf("%s: Expired = %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestRandomPopulatedCoordInBounds(t *testing.T) {
	rng := rand.New(rand.NewSource(99))
	for i := 0; i < 1000; i++ {
		lat, lng := RandomPopulatedCoord(rng)
		inside := false
		for _, r := range PopulatedRegions {
			if lat >= r.MinLat && lat <= r.MaxLat && lng >= r.MinLng && lng <= r.MaxLng {
				inside = true
				break
			}
		}
		if !inside {
			t.Fatalf("coordinate (%v, %v) outside every populated region", lat, lng)
		}
	}
}

func TestAcquireUsesValidStoredLocation(t *testing.T) {
	now := time.UnixMilli(1_700_000_000_000)
	store := &fakeStore{
		rec: StoredLocation{Location: [2]float64{48.85, 2.35}, Timestamp: now.Add(-time.Hour).UnixMilli()},
		ok:  true,
	}
	f := newTestFeed(store)
	f.now = func() time.Time { return now }
	loc := &fakeGeolocator{lat: 1, lng: 1}
	bc := &fakeBroadcaster{}

	m := f.Acquire(context.Background(), loc, bc)
	if m.Lat != 48.85 || m.Lng != 2.35 {
		t.Errorf("marker = (%v, %v), want stored (48.85, 2.35)", m.Lat, m.Lng)
	}
	if loc.calls != 0 {
		t.Error("geolocator consulted despite valid stored location")
	}
	if len(store.saved) != 0 {
		t.Error("stored location rewritten needlessly")
	}
	if len(bc.announced) != 0 {
		t.Error("stored location re-announced")
	}
}

func TestAcquireExpiredStoredLocationRelocates(t *testing.T) {
	now := time.UnixMilli(1_700_000_000_000)
	store := &fakeStore{
		rec: StoredLocation{Location: [2]float64{48.85, 2.35}, Timestamp: now.Add(-MarkerTTL - time.Millisecond).UnixMilli()},
		ok:  true,
	}
	f := newTestFeed(store)
	f.now = func() time.Time { return now }
	loc := &fakeGeolocator{lat: 35.68, lng: 139.69}
	bc := &fakeBroadcaster{}

	m := f.Acquire(context.Background(), loc, bc)
	if m.Lat != 35.68 || m.Lng != 139.69 {
		t.Errorf("marker = (%v, %v), want relocated (35.68, 139.69)", m.Lat, m.Lng)
	}
	if loc.calls != 1 {
		t.Errorf("geolocator called %d times, want 1", loc.calls)
	}
	if len(store.saved) != 1 {
		t.Fatalf("saved %d records, want 1", len(store.saved))
	}
	if store.saved[0].Location != [2]float64{35.68, 139.69} {
		t.Errorf("persisted location = %v", store.saved[0].Location)
	}
	if store.saved[0].Timestamp != now.UnixMilli() {
		t.Errorf("persisted timestamp = %d, want %d", store.saved[0].Timestamp, now.UnixMilli())
	}
	if len(bc.announced) != 1 || bc.announced[0] != [2]float64{35.68, 139.69} {
		t.Errorf("announced = %v, want one (35.68, 139.69)", bc.announced)
	}
}

func TestAcquireGeolocationFailureFallsBack(t *testing.T) {
	store := &fakeStore{}
	f := newTestFeed(store)
	loc := &fakeGeolocator{err: errors.New("permission denied")}
	bc := &fakeBroadcaster{}

	m := f.Acquire(context.Background(), loc, bc)
	inside := false
	for _, r := range PopulatedRegions {
		if m.Lat >= r.MinLat && m.Lat <= r.MaxLat && m.Lng >= r.MinLng && m.Lng <= r.MaxLng {
			inside = true
			break
		}
	}
	if !inside {
		t.Errorf("fallback marker (%v, %v) outside every populated region", m.Lat, m.Lng)
	}
	if f.Len() != 1 {
		t.Errorf("feed len = %d, want 1", f.Len())
	}
	// The stand-in is not a real location: it must not outlive the session
	// or reach other visitors.
	if len(store.saved) != 0 {
		t.Errorf("synthetic coordinate persisted: %v", store.saved)
	}
	if len(bc.announced) != 0 {
		t.Errorf("synthetic coordinate announced: %v", bc.announced)
	}
}

func TestAcquireNilStoreAndGeolocator(t *testing.T) {
	f := newTestFeed(nil)
	m := f.Acquire(context.Background(), nil, nil)
	if m.Lat < -85 || m.Lat > 85 {
		t.Errorf("fallback lat %v out of range", m.Lat)
	}
	if f.Len() != 1 {
		t.Errorf("feed len = %d, want 1", f.Len())
	}
}

func TestAcquireStoreErrorIsNonFatal(t *testing.T) {
	store := &fakeStore{loadErr: errors.New("corrupt"), saveErr: errors.New("disk full")}
	f := newTestFeed(store)
	loc := &fakeGeolocator{lat: 10, lng: 20}

	m := f.Acquire(context.Background(), loc, nil)
	if m.Lat != 10 || m.Lng != 20 {
		t.Errorf("marker = (%v, %v), want (10, 20)", m.Lat, m.Lng)
	}
}

func TestMergeClampsAndEvicts(t *testing.T) {
	f := newTestFeed(nil)
	for i := 0; i < MaxLiveMarkers+5; i++ {
		f.Merge(200, 500, time.Now())
	}
	if f.Len() != MaxLiveMarkers {
		t.Fatalf("len = %d, want %d", f.Len(), MaxLiveMarkers)
	}
	for _, m := range f.Snapshot() {
		if m.Lat != 85 {
			t.Errorf("merged lat = %v, want clamped 85", m.Lat)
		}
		if m.Lng != 140 {
			t.Errorf("merged lng = %v, want normalized 140", m.Lng)
		}
	}
}
