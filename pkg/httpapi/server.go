// Package httpapi is the public HTTP surface: globe settings, the
// geolocation proxy, the websocket relay endpoint, the bundle download and
// the operational endpoints.
package httpapi

import (
	"io"
	"net"
	"net/http"
	"runtime"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/goccy/go-json"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/sudorandom/dot-globe/pkg/config"
	"github.com/sudorandom/dot-globe/pkg/export"
	"github.com/sudorandom/dot-globe/pkg/geoip"
	"github.com/sudorandom/dot-globe/pkg/relay"
)

// Server wires the handlers to their collaborators.
type Server struct {
	cfg      *config.Config
	hub      *relay.Hub
	resolver *geoip.Resolver
	log      zerolog.Logger
	metrics  *Metrics
	started  time.Time
}

// New builds the server. hub may be nil when the relay is disabled.
func New(cfg *config.Config, hub *relay.Hub, resolver *geoip.Resolver, m *Metrics, log zerolog.Logger) *Server {
	return &Server{
		cfg:      cfg,
		hub:      hub,
		resolver: resolver,
		log:      log,
		metrics:  m,
		started:  time.Now(),
	}
}

// Router assembles the chi router with middleware and all routes.
func (s *Server) Router() chi.Router {
	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(requestLogger(s.log))
	r.Use(chimiddleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.allowedOrigins(),
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Route("/api", func(api chi.Router) {
		api.Use(httprate.LimitByIP(s.cfg.Server.RateLimit, s.cfg.Server.RateWindow))
		api.Get("/globe-settings", s.handleSettings)
		api.Get("/geolocation", s.handleGeolocation)
		api.Post("/download", s.handleDownload)
		api.Get("/download", s.handleDownload)
	})

	if s.hub != nil {
		r.Get("/ws", s.handleWS)
	}

	r.Get("/health", s.handleHealth)
	r.Get("/status", s.handleStatus)
	r.Get("/debug", s.handleDebug)
	r.Handle("/metrics", promhttp.Handler())

	if s.cfg.Server.StaticDir != "" {
		fs := http.FileServer(http.Dir(s.cfg.Server.StaticDir))
		r.Handle("/*", fs)
	}
	return r
}

func (s *Server) allowedOrigins() []string {
	if len(s.cfg.Server.AllowedOrigins) == 0 {
		return []string{"*"}
	}
	return s.cfg.Server.AllowedOrigins
}

// handleSettings serves the configured defaults. ?page=preview selects the
// preview preset; anything else gets the home preset.
func (s *Server) handleSettings(w http.ResponseWriter, r *http.Request) {
	settings := s.cfg.Globe.Home
	if r.URL.Query().Get("page") == "preview" {
		settings = s.cfg.Globe.Preview
	}
	s.writeJSON(w, http.StatusOK, settings)
}

// GeolocationResponse is the wire shape of the geolocation endpoint. Status
// is always "success": lookup failures degrade to an approximate fallback
// coordinate rather than an error.
type GeolocationResponse struct {
	Status      string  `json:"status"`
	Lat         float64 `json:"lat"`
	Lon         float64 `json:"lon"`
	Country     string  `json:"country,omitempty"`
	City        string  `json:"city,omitempty"`
	Approximate bool    `json:"approximate"`
	Message     string  `json:"message,omitempty"`
}

// handleGeolocation resolves the caller's address. Proxy headers are trusted
// only through chi's RealIP middleware.
func (s *Server) handleGeolocation(w http.ResponseWriter, r *http.Request) {
	res := s.resolver.ResolveAddr(r.RemoteAddr)
	if s.metrics != nil {
		s.metrics.GeolocationLookups.WithLabelValues(lookupOutcome(res)).Inc()
	}
	s.writeJSON(w, http.StatusOK, GeolocationResponse{
		Status:      "success",
		Lat:         res.Lat,
		Lon:         res.Lng,
		Country:     res.CountryName,
		City:        res.City,
		Approximate: res.Approximate,
	})
}

func lookupOutcome(res geoip.Result) string {
	if res.Approximate {
		return "fallback"
	}
	return "hit"
}

// handleDownload streams the bundle zip. A POST body is a point update over
// the preview preset; GET exports the preset untouched.
func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	settings := s.cfg.Globe.Preview
	if r.Method == http.MethodPost {
		body := http.MaxBytesReader(w, r.Body, 64*1024)
		raw, err := io.ReadAll(body)
		if err != nil {
			s.writeError(w, http.StatusBadRequest, "request body unreadable")
			return
		}
		if len(raw) > 0 {
			if err := settings.ApplyJSON(raw); err != nil {
				s.writeError(w, http.StatusBadRequest, "invalid settings payload")
				return
			}
		}
	}

	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", `attachment; filename="dot-globe.zip"`)
	if err := export.WriteBundle(w, settings); err != nil {
		// Headers are already out; all we can do is log.
		s.log.Error().Err(err).Msg("bundle write failed")
		return
	}
	if s.metrics != nil {
		s.metrics.BundleDownloads.Inc()
	}
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	relay.ServeWS(s.hub, w, r, s.log)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type statusResponse struct {
	Uptime         string `json:"uptime"`
	RelayClients   int    `json:"relayClients"`
	RecentVisitors int    `json:"recentVisitors"`
	GeoIPDatabase  bool   `json:"geoipDatabase"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	resp := statusResponse{
		Uptime:        time.Since(s.started).Round(time.Second).String(),
		GeoIPDatabase: s.resolver != nil && !s.resolver.FallbackOnly(),
	}
	if s.hub != nil {
		resp.RelayClients = s.hub.ClientCount()
		resp.RecentVisitors = len(s.hub.Recent())
	}
	s.writeJSON(w, http.StatusOK, resp)
}

type debugResponse struct {
	GoVersion      string `json:"goVersion"`
	Goroutines     int    `json:"goroutines"`
	HeapBytes      uint64 `json:"heapBytes"`
	Uptime         string `json:"uptime"`
	RelayClients   int    `json:"relayClients"`
	RecentVisitors int    `json:"recentVisitors"`
	GeoIPDatabase  bool   `json:"geoipDatabase"`
}

func (s *Server) handleDebug(w http.ResponseWriter, r *http.Request) {
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)
	resp := debugResponse{
		GoVersion:     runtime.Version(),
		Goroutines:    runtime.NumGoroutine(),
		HeapBytes:     mem.HeapAlloc,
		Uptime:        time.Since(s.started).Round(time.Second).String(),
		GeoIPDatabase: s.resolver != nil && !s.resolver.FallbackOnly(),
	}
	if s.hub != nil {
		resp.RelayClients = s.hub.ClientCount()
		resp.RecentVisitors = len(s.hub.Recent())
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Warn().Err(err).Msg("response encode failed")
	}
}

func (s *Server) writeError(w http.ResponseWriter, code int, msg string) {
	s.writeJSON(w, code, map[string]string{"error": msg})
}

// requestLogger emits one structured line per request.
func requestLogger(log zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)
			log.Debug().
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", ww.Status()).
				Dur("duration", time.Since(start)).
				Str("remote", clientIP(r)).
				Msg("request")
		})
	}
}

func clientIP(r *http.Request) string {
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return strings.TrimSpace(r.RemoteAddr)
}
