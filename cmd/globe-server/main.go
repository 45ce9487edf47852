// globe-server hosts the marketing site backend: globe settings and
// geolocation endpoints, the export bundle download, the visitor relay hub
// and static file serving.
package main

import (
	"context"
	"errors"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/alecthomas/kong"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/sudorandom/dot-globe/pkg/config"
	"github.com/sudorandom/dot-globe/pkg/fetch"
	"github.com/sudorandom/dot-globe/pkg/geoip"
	"github.com/sudorandom/dot-globe/pkg/httpapi"
	"github.com/sudorandom/dot-globe/pkg/relay"
	"github.com/sudorandom/dot-globe/pkg/store"
)

var cli struct {
	Config  string `help:"Config file path." type:"path" env:"GLOBE_CONFIG" placeholder:"FILE"`
	Listen  string `help:"Override the configured listen address."`
	DataDir string `help:"Override the configured data directory." type:"path"`
	Debug   bool   `help:"Force debug logging."`
	Pretty  bool   `help:"Human-readable console logging."`
}

func main() {
	kctx := kong.Parse(&cli,
		kong.Name("globe-server"),
		kong.Description("HTTP and websocket backend for the dot globe."))

	if cli.Config != "" {
		os.Setenv(config.ConfigPathEnvVar, cli.Config)
	}
	cfg, err := config.Load()
	kctx.FatalIfErrorf(err)
	if cli.Listen != "" {
		cfg.Server.Listen = cli.Listen
	}
	if cli.DataDir != "" {
		cfg.Server.DataDir = cli.DataDir
	}
	if cli.Debug {
		cfg.Logging.Level = "debug"
	}
	if cli.Pretty {
		cfg.Logging.Pretty = true
	}

	log := newLogger(cfg.Logging)

	if err := os.MkdirAll(cfg.Server.DataDir, 0o755); err != nil {
		log.Fatal().Err(err).Str("dir", cfg.Server.DataDir).Msg("Failed to create data directory")
	}
	st, err := store.Open(filepath.Join(cfg.Server.DataDir, "globe.db"))
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open visitor store")
	}
	defer st.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	resolver := openResolver(ctx, cfg, rng, log)
	defer resolver.Close()

	hub := relay.NewHub(st, log)
	go func() {
		if err := hub.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Error().Err(err).Msg("Relay hub stopped")
		}
	}()

	metrics := httpapi.NewMetrics(prometheus.DefaultRegisterer, hub.ClientCount)
	api := httpapi.New(cfg, hub, resolver, metrics, log)

	srv := &http.Server{
		Addr:              cfg.Server.Listen,
		Handler:           api.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("Shutdown did not complete cleanly")
		}
	}()

	log.Info().
		Str("listen", cfg.Server.Listen).
		Bool("geoip", !resolver.FallbackOnly()).
		Msg("Server listening")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatal().Err(err).Msg("Server failed")
	}
	log.Info().Msg("Server stopped")
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

// openResolver builds the geolocation resolver: a configured local database
// wins, then a downloaded-and-cached copy, and with neither the resolver
// serves population-weighted fallbacks only.
func openResolver(ctx context.Context, cfg *config.Config, rng *rand.Rand, log zerolog.Logger) *geoip.Resolver {
	if cfg.GeoIP.DatabasePath != "" {
		r, err := geoip.Open(cfg.GeoIP.DatabasePath, rng, log)
		if err != nil {
			log.Fatal().Err(err).Str("path", cfg.GeoIP.DatabasePath).Msg("Failed to open GeoIP database")
		}
		return r
	}
	if cfg.GeoIP.DatabaseURL != "" {
		f := fetch.New(cfg.GeoIP.CacheDir, log)
		path, ok := f.CachedPath(cfg.GeoIP.DatabaseURL)
		if !ok {
			path = filepath.Join(cfg.GeoIP.CacheDir, fetch.CacheFileName(cfg.GeoIP.DatabaseURL))
			if err := f.DownloadFile(ctx, cfg.GeoIP.DatabaseURL, path); err != nil {
				log.Warn().Err(err).Msg("GeoIP database download failed, running fallback-only")
				return geoip.NewFallbackOnly(rng, log)
			}
		}
		r, err := geoip.Open(path, rng, log)
		if err != nil {
			log.Warn().Err(err).Str("path", path).Msg("Cached GeoIP database unreadable, running fallback-only")
			return geoip.NewFallbackOnly(rng, log)
		}
		return r
	}
	log.Info().Msg("No GeoIP database configured, geolocation serves fallbacks")
	return geoip.NewFallbackOnly(rng, log)
}
