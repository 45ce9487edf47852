// Package geoip resolves visitor IP addresses to approximate coordinates
// through a MaxMind database. Addresses that cannot carry a real location
// (loopback, private ranges, lookup misses) fall back to a population
// weighted random coordinate so every visitor still gets a marker.
package geoip

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"net"
	"net/http"
	"sync"

	"github.com/biter777/countries"
	"github.com/goccy/go-json"
	"github.com/oschwald/maxminddb-golang"
	"github.com/rs/zerolog"

	"github.com/sudorandom/dot-globe/pkg/globe"
)

// Result is one resolved visitor location.
type Result struct {
	Lat         float64 `json:"latitude"`
	Lng         float64 `json:"longitude"`
	CountryCode string  `json:"countryCode,omitempty"`
	CountryName string  `json:"countryName,omitempty"`
	City        string  `json:"city,omitempty"`

	// Approximate is set when the coordinate is a fallback rather than a
	// database hit.
	Approximate bool `json:"approximate"`
}

type geoRecord struct {
	City struct {
		Names map[string]string `maxminddb:"names"`
	} `maxminddb:"city"`
	Country struct {
		ISOCode string `maxminddb:"iso_code"`
	} `maxminddb:"country"`
	Location struct {
		Latitude  float64 `maxminddb:"latitude"`
		Longitude float64 `maxminddb:"longitude"`
	} `maxminddb:"location"`
}

// Resolver looks up coordinates for IPs. Safe for concurrent use.
type Resolver struct {
	mu     sync.Mutex
	reader *maxminddb.Reader
	rng    *rand.Rand
	log    zerolog.Logger
}

// Open reads the database at path.
func Open(path string, rng *rand.Rand, log zerolog.Logger) (*Resolver, error) {
	reader, err := maxminddb.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open geoip database: %w", err)
	}
	return &Resolver{reader: reader, rng: rng, log: log}, nil
}

// FromBytes builds a resolver from an in-memory database image.
func FromBytes(data []byte, rng *rand.Rand, log zerolog.Logger) (*Resolver, error) {
	reader, err := maxminddb.FromBytes(data)
	if err != nil {
		return nil, fmt.Errorf("parse geoip database: %w", err)
	}
	return &Resolver{reader: reader, rng: rng, log: log}, nil
}

// NewFallbackOnly builds a resolver with no database: every lookup yields an
// approximate coordinate. Used when the database download is unavailable.
func NewFallbackOnly(rng *rand.Rand, log zerolog.Logger) *Resolver {
	return &Resolver{rng: rng, log: log}
}

// FallbackOnly reports whether the resolver has no database loaded.
func (r *Resolver) FallbackOnly() bool { return r.reader == nil }

func (r *Resolver) Close() error {
	if r.reader == nil {
		return nil
	}
	return r.reader.Close()
}

// Resolve maps an IP to a coordinate. It never returns an error for
// unresolvable addresses; those get the weighted fallback with Approximate
// set.
func (r *Resolver) Resolve(ip net.IP) Result {
	if ip == nil || ip.IsLoopback() || ip.IsPrivate() || ip.IsUnspecified() {
		return r.fallback()
	}
	if r.reader == nil {
		return r.fallback()
	}

	var rec geoRecord
	if err := r.reader.Lookup(ip, &rec); err != nil {
		r.log.Debug().Err(err).Str("ip", ip.String()).Msg("geoip lookup failed")
		return r.fallback()
	}
	if rec.Location.Latitude == 0 && rec.Location.Longitude == 0 {
		return r.fallback()
	}

	res := Result{
		Lat:         globe.ClampLatitude(rec.Location.Latitude),
		Lng:         globe.NormalizeLongitude(rec.Location.Longitude),
		CountryCode: rec.Country.ISOCode,
		City:        rec.City.Names["en"],
	}
	if res.CountryCode != "" {
		if c := countries.ByName(res.CountryCode); c != countries.Unknown {
			res.CountryName = c.String()
		}
	}
	return res
}

// ResolveAddr parses a "host:port" or bare-host remote address and resolves
// it.
func (r *Resolver) ResolveAddr(addr string) Result {
	host := addr
	if h, _, err := net.SplitHostPort(addr); err == nil {
		host = h
	}
	return r.Resolve(net.ParseIP(host))
}

func (r *Resolver) fallback() Result {
	r.mu.Lock()
	lat, lng := globe.RandomPopulatedCoord(r.rng)
	r.mu.Unlock()
	return Result{Lat: lat, Lng: lng, Approximate: true}
}

// HTTPGeolocator implements globe.Geolocator by asking a running server's
// geolocation endpoint, which sees the caller's public address.
type HTTPGeolocator struct {
	URL    string
	Client *http.Client
}

// Locate fetches the caller's coordinate from the endpoint. An approximate
// result is treated as a failure so the caller does not persist a synthetic
// coordinate for a month.
func (g *HTTPGeolocator) Locate(ctx context.Context) (lat, lng float64, err error) {
	client := g.Client
	if client == nil {
		client = http.DefaultClient
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.URL, nil)
	if err != nil {
		return 0, 0, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return 0, 0, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return 0, 0, fmt.Errorf("geolocation endpoint: %s", resp.Status)
	}
	var res struct {
		Status      string  `json:"status"`
		Message     string  `json:"message"`
		Lat         float64 `json:"lat"`
		Lon         float64 `json:"lon"`
		Approximate bool    `json:"approximate"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&res); err != nil {
		return 0, 0, fmt.Errorf("decode geolocation response: %w", err)
	}
	if res.Status != "success" {
		return 0, 0, fmt.Errorf("geolocation failed: %s", res.Message)
	}
	if res.Approximate {
		return 0, 0, errors.New("geolocation unavailable for this address")
	}
	return res.Lat, res.Lon, nil
}
