// globe-viewer renders the dot globe in a native window: the same rotation,
// glitch, arc and marker behavior the site ships, driven by a local renderer
// instead of a browser canvas.
package main

import (
	"context"
	"math/rand"
	"os"
	"path/filepath"
	"time"

	"github.com/alecthomas/kong"
	"github.com/hajimehoshi/ebiten/v2"
	"github.com/rs/zerolog"
	_ "github.com/silbinarywolf/preferdiscretegpu"

	"github.com/sudorandom/dot-globe/pkg/config"
	"github.com/sudorandom/dot-globe/pkg/fetch"
	"github.com/sudorandom/dot-globe/pkg/geoip"
	"github.com/sudorandom/dot-globe/pkg/globe"
	"github.com/sudorandom/dot-globe/pkg/globeview"
	"github.com/sudorandom/dot-globe/pkg/relay"
	"github.com/sudorandom/dot-globe/pkg/store"
)

// defaultLandURL is the land outline the dot lattice is built from,
// downloaded once and cached.
const defaultLandURL = "https://raw.githubusercontent.com/johan/world.geo.json/master/countries.geo.json"

var cli struct {
	Config    string `help:"Config file path." type:"path" env:"GLOBE_CONFIG" placeholder:"FILE"`
	ServerURL string `help:"Base URL of a globe server used for geolocation." default:"http://localhost:8080"`
	LandURL   string `help:"Land outline GeoJSON URL." default:"${land_url}"`
	Width     int    `help:"Window width." default:"1280"`
	Height    int    `help:"Window height." default:"720"`
	TPS       int    `help:"Ticks per second." default:"60"`
	Preview   bool   `help:"Use the preview preset instead of the home page preset."`
	Markers   *bool  `help:"Show visitor markers; the choice is remembered." negatable:""`
	Debug     bool   `help:"Force debug logging."`
	Pretty    bool   `help:"Human-readable console logging."`
}

func main() {
	kctx := kong.Parse(&cli,
		kong.Name("globe-viewer"),
		kong.Description("Native window viewer for the dot globe."),
		kong.Vars{"land_url": defaultLandURL})

	if cli.Config != "" {
		os.Setenv(config.ConfigPathEnvVar, cli.Config)
	}
	cfg, err := config.Load()
	kctx.FatalIfErrorf(err)
	if cli.Debug {
		cfg.Logging.Level = "debug"
	}
	if cli.Pretty {
		cfg.Logging.Pretty = true
	}
	log := newLogger(cfg.Logging)

	settings := cfg.Globe.Home
	if cli.Preview {
		settings = cfg.Globe.Preview
	}

	ctx := context.Background()
	dots := loadLattice(ctx, cfg, log)
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))

	var locStore globe.LocationStore
	st, err := store.Open(filepath.Join(cfg.Server.DataDir, "viewer.db"))
	if err != nil {
		log.Warn().Err(err).Msg("Visitor store unavailable, location will not persist")
	} else {
		defer st.Close()
		locStore = st
	}
	applyMarkerPref(st, &settings, log)
	feed := globe.NewMarkerFeed(locStore, rng, log)

	overlay := globeview.NewVectorOverlay()
	artifacts := globeview.NewArtifacts()
	viewer := globeview.NewViewer(dots, overlay, artifacts, log)

	adapter := globe.NewAdapter(viewer, settings, feed, overlay, rng, log)
	viewer.SetPointerSink(adapter.Tracker())
	viewer.OnResize = func(w, h int) {
		if err := adapter.Resize(w, h); err != nil {
			log.Error().Err(err).Msg("Resize failed")
		}
	}

	var announcer globe.Broadcaster
	if cfg.Relay.Enabled {
		sub := relay.NewSubscriber(cfg.Relay.URL, log)
		stop, err := sub.Subscribe(func(lat, lng float64, at time.Time) {
			feed.Merge(lat, lng, at)
			if err := adapter.RefreshMarkers(); err != nil {
				log.Error().Err(err).Msg("Marker refresh failed")
			}
		})
		if err != nil {
			log.Warn().Err(err).Msg("Relay unavailable, markers stay local")
		} else {
			defer stop()
			announcer = sub
		}
	}

	if settings.ShowVisitorMarkers {
		locator := &geoip.HTTPGeolocator{URL: cli.ServerURL + "/api/geolocation"}
		m := feed.Acquire(ctx, locator, announcer)
		log.Info().Float64("lat", m.Lat).Float64("lng", m.Lng).Msg("Visitor marker placed")
	}

	if err := adapter.Start(cli.Width, cli.Height); err != nil {
		log.Fatal().Err(err).Msg("Renderer failed to start")
	}
	defer adapter.Close()

	if settings.GlitchEffect {
		glitcher := globe.NewGlitcher(adapter, artifacts, settings, rng, log)
		glitcher.Start()
		defer glitcher.Close()
	}

	ebiten.SetTPS(cli.TPS)
	ebiten.SetWindowSize(cli.Width, cli.Height)
	ebiten.SetWindowTitle("Dot Globe")
	ebiten.SetWindowResizingMode(ebiten.WindowResizingModeEnabled)
	if err := ebiten.RunGame(viewer); err != nil {
		log.Fatal().Err(err).Msg("Viewer exited")
	}
}

func newLogger(c config.LoggingConfig) zerolog.Logger {
	level, err := zerolog.ParseLevel(c.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}
	if c.Pretty {
		return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).Level(level).With().Timestamp().Logger()
	}
	return zerolog.New(os.Stderr).Level(level).With().Timestamp().Logger()
}

// applyMarkerPref resolves marker visibility: an explicit flag wins and is
// remembered, otherwise a previously remembered choice overrides the preset.
func applyMarkerPref(st *store.Store, settings *globe.Settings, log zerolog.Logger) {
	if cli.Markers != nil {
		settings.ShowVisitorMarkers = *cli.Markers
		if st != nil {
			if err := st.SaveShowMarkers(*cli.Markers); err != nil {
				log.Warn().Err(err).Msg("Failed to remember marker preference")
			}
		}
		return
	}
	if st == nil {
		return
	}
	show, ok, err := st.LoadShowMarkers()
	if err != nil {
		log.Warn().Err(err).Msg("Stored marker preference unreadable")
		return
	}
	if ok {
		settings.ShowVisitorMarkers = show
	}
}

// loadLattice fetches the land outline, caching it beside the GeoIP data,
// and samples it into the dot lattice.
func loadLattice(ctx context.Context, cfg *config.Config, log zerolog.Logger) []globeview.Dot {
	f := fetch.New(cfg.GeoIP.CacheDir, log)
	rc, err := f.Open(ctx, cli.LandURL)
	if err != nil {
		log.Fatal().Err(err).Str("url", cli.LandURL).Msg("Failed to fetch land outline")
	}
	defer rc.Close()
	mask, err := globeview.NewLandMask(rc)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to parse land outline")
	}
	dots := globeview.DotLattice(mask)
	log.Info().Int("dots", len(dots)).Msg("Dot lattice ready")
	return dots
}
