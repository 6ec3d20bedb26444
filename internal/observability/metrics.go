package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "cognicity"

// Metrics holds the Prometheus counters, histograms, and gauges for the data server.
type Metrics struct {
	// Query executor metrics.
	QueryDuration *prometheus.HistogramVec // labels: query
	QueryErrors   *prometheus.CounterVec   // labels: query, kind={connection_failed,query_failed,timeout}
	BreakerState  prometheus.Gauge         // 0 closed, 1 half-open, 2 open

	// Result cache metrics.
	CacheLookups   *prometheus.CounterVec // labels: tier={memory,redis}, result={hit,miss}
	CacheEvictions prometheus.Counter
	CacheEntries   prometheus.Gauge

	// Aggregation metrics.
	HistoricalBlocks prometheus.Counter

	// Aggregate feed metrics.
	AggregatesPublished prometheus.Counter
	PublishErrors       prometheus.Counter

	// HTTP metrics.
	Requests *prometheus.CounterVec // labels: route, status
}

// NewMetrics creates and registers all server metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	m := NewMetricsForTesting()
	prometheus.MustRegister(
		m.QueryDuration,
		m.QueryErrors,
		m.BreakerState,
		m.CacheLookups,
		m.CacheEvictions,
		m.CacheEntries,
		m.HistoricalBlocks,
		m.AggregatesPublished,
		m.PublishErrors,
		m.Requests,
	)
	return m
}

// NewMetricsForTesting creates unregistered Metrics to avoid
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return &Metrics{
		QueryDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "query_duration_seconds",
			Help:      "Spatial database query duration in seconds.",
			Buckets:   []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}, []string{"query"}),
		QueryErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "query_errors_total",
			Help:      "Failed spatial database queries by query and failure kind.",
		}, []string{"query", "kind"}),
		BreakerState: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "db_circuit_breaker_state",
			Help:      "Database circuit breaker state: 0 closed, 1 half-open, 2 open.",
		}),
		CacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_lookups_total",
			Help:      "Result cache lookups by tier and result.",
		}, []string{"tier", "result"}),
		CacheEvictions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_evictions_total",
			Help:      "Expired result cache entries removed.",
		}),
		CacheEntries: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "cache_entries",
			Help:      "Entries currently held in the in-memory result cache.",
		}),
		HistoricalBlocks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "historical_blocks_total",
			Help:      "Hourly blocks aggregated for historical series.",
		}),
		AggregatesPublished: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "aggregates_published_total",
			Help:      "Area aggregate messages written to the feed topic.",
		}),
		PublishErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "aggregate_publish_errors_total",
			Help:      "Failed aggregate feed writes.",
		}),
		Requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Data API requests by route and status code.",
		}, []string{"route", "status"}),
	}
}
