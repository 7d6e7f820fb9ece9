package obs

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	DirectoryRequestsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "nearest_store_directory_requests_total",
		Help: "Total store directory search requests",
	})
	DirectoryFailuresTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "nearest_store_directory_failures_total",
		Help: "Total store directory searches that failed or timed out",
	})
	DirectoryDurationMs = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "nearest_store_directory_duration_ms",
		Help:    "Store directory search duration in milliseconds",
		Buckets: []float64{50, 100, 250, 500, 1000, 2000, 3000, 5000},
	})
	FallbackTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "nearest_store_fallback_total",
		Help: "Total query cycles served from the fallback catalog",
	}, []string{"reason"})
	GeocodeRequestsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "nearest_store_geocode_requests_total",
		Help: "Total reverse geocoding requests sent upstream",
	})
	GeocodeRateLimitedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "nearest_store_geocode_rate_limited_total",
		Help: "Total reverse geocoding lookups abandoned while waiting for the politeness limiter",
	})
	GeocodeCacheHitsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "nearest_store_geocode_cache_hits_total",
		Help: "Total reverse geocoding cache hits",
	})
	EnrichmentFailuresTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "nearest_store_enrichment_failures_total",
		Help: "Total candidates that received the placeholder address",
	})
	CyclesStartedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "nearest_store_cycles_started_total",
		Help: "Total query cycles started",
	})
	CyclesSupersededTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "nearest_store_cycles_superseded_total",
		Help: "Total query cycle results discarded because a newer cycle started",
	})
	ActiveSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "nearest_store_active_sessions",
		Help: "Number of open map sessions",
	})
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "nearest_store_http_requests_total",
		Help: "Total HTTP requests by route and status",
	}, []string{"route", "status"})
)
