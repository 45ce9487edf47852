package httpapi

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the server's prometheus instruments.
type Metrics struct {
	GeolocationLookups *prometheus.CounterVec
	BundleDownloads    prometheus.Counter
	RelayClients       prometheus.GaugeFunc
}

// NewMetrics registers the instruments on reg. relayClients may be nil when
// the relay is disabled.
func NewMetrics(reg prometheus.Registerer, relayClients func() int) *Metrics {
	m := &Metrics{
		GeolocationLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "dotglobe",
			Name:      "geolocation_lookups_total",
			Help:      "Geolocation lookups by outcome (hit or fallback).",
		}, []string{"outcome"}),
		BundleDownloads: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "dotglobe",
			Name:      "bundle_downloads_total",
			Help:      "Exported bundle downloads.",
		}),
	}
	reg.MustRegister(m.GeolocationLookups, m.BundleDownloads)

	if relayClients != nil {
		m.RelayClients = prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: "dotglobe",
			Name:      "relay_clients",
			Help:      "Connected relay sessions.",
		}, func() float64 { return float64(relayClients()) })
		reg.MustRegister(m.RelayClients)
	}
	return m
}
