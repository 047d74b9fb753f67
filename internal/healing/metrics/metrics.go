package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RequestsTotal tracks lookup requests by final outcome
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "healer_requests_total",
			Help: "Total number of lookup requests",
		},
		[]string{"outcome"},
	)

	// CacheEventsTotal tracks selector cache hits, misses and evictions
	CacheEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "healer_cache_events_total",
			Help: "Total number of selector cache events",
		},
		[]string{"event"},
	)

	// AnalyzerCallsTotal tracks analyzer dispatches per capability
	AnalyzerCallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "healer_analyzer_calls_total",
			Help: "Total number of analyzer calls",
		},
		[]string{"capability"},
	)

	// AnalyzerErrorsTotal tracks analyzer failures per capability and class
	AnalyzerErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "healer_analyzer_errors_total",
			Help: "Total number of analyzer failures",
		},
		[]string{"capability", "classification"},
	)

	// TokensTotal tracks analyzer token consumption per capability
	TokensTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "healer_analyzer_tokens_total",
			Help: "Total number of analyzer tokens consumed",
		},
		[]string{"capability"},
	)

	// LocateDuration tracks end-to-end lookup latency by outcome
	LocateDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "healer_locate_duration_seconds",
			Help:    "End-to-end element lookup latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"outcome"},
	)

	// CircuitState tracks the breaker state per capability (0 closed, 1 open, 2 half-open)
	CircuitState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "healer_circuit_state",
			Help: "Circuit breaker state per analyzer capability",
		},
		[]string{"capability"},
	)

	// CacheEntries tracks the current number of cached selectors
	CacheEntries = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "healer_cache_entries",
			Help: "Current number of cached selector entries",
		},
	)
)
