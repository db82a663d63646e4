// Package metrics defines the Prometheus metric collectors used across the
// platform and exposes an HTTP handler for scraping.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus collectors for the platform.
type Metrics struct {
	HTTPRequestsTotal    *prometheus.CounterVec
	HTTPRequestDuration  *prometheus.HistogramVec
	HTTPRequestsInFlight prometheus.Gauge
	FetchesTotal         *prometheus.CounterVec
	FetchDuration        *prometheus.HistogramVec
	ReportsTotal         *prometheus.CounterVec
	SnapshotEventsTotal  *prometheus.CounterVec
	SnapshotsArchived    prometheus.Counter
	CacheHitsTotal       prometheus.Counter
	CacheMissesTotal     prometheus.Counter
	TrackedCommunities   prometheus.Gauge
	CircuitBreakerState  *prometheus.GaugeVec
}

// New creates and registers all Prometheus metrics.
func New() *Metrics {
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests by method, path, and status.",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request latency in seconds.",
				Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
			},
			[]string{"method", "path"},
		),
		HTTPRequestsInFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "http_requests_in_flight",
				Help: "Number of HTTP requests currently being processed.",
			},
		),
		FetchesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "invite_fetches_total",
				Help: "Total invite-endpoint fetches by outcome (ok, invalid_reference, fetch_failed, cached).",
			},
			[]string{"outcome"},
		),
		FetchDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "invite_fetch_duration_seconds",
				Help:    "Invite-endpoint fetch latency in seconds.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
			},
			[]string{"source"},
		),
		ReportsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "reports_generated_total",
				Help: "Total reports generated by mode (activity, competitive) and outcome.",
			},
			[]string{"mode", "outcome"},
		),
		SnapshotEventsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "snapshot_events_total",
				Help: "Total snapshot events consumed by outcome (ok, decode_error).",
			},
			[]string{"outcome"},
		),
		SnapshotsArchived: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "snapshots_archived_total",
				Help: "Total snapshots persisted to the archive.",
			},
		),
		CacheHitsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "cache_hits_total",
				Help: "Total snapshot cache hits.",
			},
		),
		CacheMissesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "cache_misses_total",
				Help: "Total snapshot cache misses.",
			},
		),
		TrackedCommunities: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "tracked_communities",
				Help: "Number of communities with a snapshot in the aggregator.",
			},
		),
		CircuitBreakerState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "circuit_breaker_state",
				Help: "Circuit breaker state (0=closed, 1=open, 2=half-open).",
			},
			[]string{"name"},
		),
	}

	prometheus.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.HTTPRequestsInFlight,
		m.FetchesTotal,
		m.FetchDuration,
		m.ReportsTotal,
		m.SnapshotEventsTotal,
		m.SnapshotsArchived,
		m.CacheHitsTotal,
		m.CacheMissesTotal,
		m.TrackedCommunities,
		m.CircuitBreakerState,
	)

	return m
}

// Handler returns the Prometheus scrape HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
