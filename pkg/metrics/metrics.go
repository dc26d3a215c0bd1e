// Package metrics defines the Prometheus metric collectors used across the
// directory service and exposes an HTTP handler for scraping.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus collectors for the service.
type Metrics struct {
	HTTPRequestsTotal    *prometheus.CounterVec
	HTTPRequestDuration  *prometheus.HistogramVec
	HTTPRequestsInFlight prometheus.Gauge

	IndexBuildsTotal    *prometheus.CounterVec
	IndexBuildDuration  prometheus.Histogram
	IndexRecords        prometheus.Gauge
	IndexLinesSkipped   *prometheus.CounterVec
	IndexCacheHits      prometheus.Counter
	IndexCacheMisses    prometheus.Counter
	IndexStaleFallbacks prometheus.Counter

	QueriesTotal     *prometheus.CounterVec
	QueryLatency     *prometheus.HistogramVec
	CacheHitsTotal   prometheus.Counter
	CacheMissesTotal prometheus.Counter

	AcceleratorRequests *prometheus.CounterVec
	CircuitBreakerState *prometheus.GaugeVec
	LogoFetchesTotal    *prometheus.CounterVec

	gatherer prometheus.Gatherer
}

// New creates all collectors on a registry of their own, together with the
// Go runtime and process collectors. Handler serves exactly that registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return NewWithRegistry(reg)
}

// NewWithRegistry registers the collectors with reg. When reg can also be
// gathered it backs Handler; otherwise Handler falls back to the default
// gatherer.
func NewWithRegistry(reg prometheus.Registerer) *Metrics {
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
		IndexBuildsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "directory_index_builds_total",
				Help: "Index builds by status (ok, error).",
			},
			[]string{"status"},
		),
		IndexBuildDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "directory_index_build_duration_seconds",
				Help:    "Time spent building an index snapshot.",
				Buckets: []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
			},
		),
		IndexRecords: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "directory_index_records",
				Help: "Companies in the current index snapshot.",
			},
		),
		IndexLinesSkipped: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "directory_index_lines_skipped_total",
				Help: "Source lines dropped during builds, by reason.",
			},
			[]string{"reason"},
		),
		IndexCacheHits: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "directory_index_cache_hits_total",
				Help: "Store lookups answered by the current snapshot.",
			},
		),
		IndexCacheMisses: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "directory_index_cache_misses_total",
				Help: "Store lookups that required a build.",
			},
		),
		IndexStaleFallbacks: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "directory_index_stale_fallbacks_total",
				Help: "Failed builds answered with the previous snapshot.",
			},
		),
		QueriesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "directory_queries_total",
				Help: "Directory queries by operation and result (ok, empty, not_found, error).",
			},
			[]string{"op", "result"},
		),
		QueryLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "directory_query_latency_seconds",
				Help:    "Directory query latency in seconds.",
				Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
			},
			[]string{"op"},
		),
		CacheHitsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "directory_response_cache_hits_total",
				Help: "Total number of response cache hits.",
			},
		),
		CacheMissesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "directory_response_cache_misses_total",
				Help: "Total number of response cache misses.",
			},
		),
		AcceleratorRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "directory_accelerator_requests_total",
				Help: "Accelerator calls by operation and outcome (ok, error, fallback).",
			},
			[]string{"op", "outcome"},
		),
		CircuitBreakerState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "circuit_breaker_state",
				Help: "Circuit breaker state (0=closed, 1=open, 2=half-open).",
			},
			[]string{"name"},
		),
		LogoFetchesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "directory_logo_fetches_total",
				Help: "Logo proxy responses by outcome (hit, fetched, stale, error).",
			},
			[]string{"outcome"},
		),
	}

	reg.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.HTTPRequestsInFlight,
		m.IndexBuildsTotal,
		m.IndexBuildDuration,
		m.IndexRecords,
		m.IndexLinesSkipped,
		m.IndexCacheHits,
		m.IndexCacheMisses,
		m.IndexStaleFallbacks,
		m.QueriesTotal,
		m.QueryLatency,
		m.CacheHitsTotal,
		m.CacheMissesTotal,
		m.AcceleratorRequests,
		m.CircuitBreakerState,
		m.LogoFetchesTotal,
	)

	m.gatherer = prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		m.gatherer = g
	}
	return m
}

// Handler returns the Prometheus scrape handler for m's registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}
