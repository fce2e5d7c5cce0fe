// ================================
// internal/metrics/metrics.go - Self-monitoring for SIGHTLINE-CORE
// ================================

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP request metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sightline_core_http_requests_total",
			Help: "Total number of HTTP requests processed",
		},
		[]string{"method", "endpoint", "status_code"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "sightline_core_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "endpoint"},
	)

	// Backend adapter metrics
	BackendRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sightline_core_backend_requests_total",
			Help: "Total number of fan-out calls to observability backends",
		},
		[]string{"backend", "outcome"}, // logs/metrics/traces, success/timeout/transport_error/query_error/circuit_open
	)

	BackendRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "sightline_core_backend_request_duration_seconds",
			Help:    "Backend sub-query duration in seconds",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0},
		},
		[]string{"backend"},
	)

	// Circuit breaker metrics
	BreakerTransitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sightline_core_breaker_transitions_total",
			Help: "Total number of circuit breaker state transitions",
		},
		[]string{"backend", "to_state"},
	)

	BreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "sightline_core_breaker_state",
			Help: "Current breaker state per backend (0=closed, 1=open, 2=half-open)",
		},
		[]string{"backend"},
	)

	// Search pipeline metrics
	SearchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sightline_core_searches_total",
			Help: "Total number of unified searches executed",
		},
		[]string{"result"}, // success/degraded/cached/invalid/failed
	)

	SearchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "sightline_core_search_duration_seconds",
			Help:    "End-to-end unified search duration in seconds",
			Buckets: []float64{0.1, 0.5, 1.0, 2.0, 5.0, 10.0, 30.0},
		},
		[]string{"type"},
	)

	DroppedRecordsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sightline_core_dropped_records_total",
			Help: "Backend records dropped during normalization for missing id or timestamp",
		},
		[]string{"backend"},
	)

	// Valkey cache metrics
	CacheRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sightline_core_cache_requests_total",
			Help: "Total number of cache requests",
		},
		[]string{"operation", "result"}, // get/set/delete, hit/miss/error
	)
)
