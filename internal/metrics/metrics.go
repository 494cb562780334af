// Package metrics holds the Prometheus collectors exported on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Circuit breaker metrics
	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "musicfeed_circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	CircuitBreakerRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "musicfeed_circuit_breaker_requests_total",
			Help: "Total number of requests through circuit breaker",
		},
		[]string{"name", "result"}, // result: "success", "failure", "rejected"
	)

	CircuitBreakerTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "musicfeed_circuit_breaker_state_transitions_total",
			Help: "Total number of circuit breaker state transitions",
		},
		[]string{"name", "from_state", "to_state"},
	)

	FetchRetries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "musicfeed_fetch_retries_total",
			Help: "Retries scheduled by the resilient fetch client",
		},
		[]string{"name", "reason"}, // reason: "rate_limited", "server_error", "transport"
	)

	// Refresh metrics
	RefreshSourceOutcomes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "musicfeed_refresh_source_outcomes_total",
			Help: "Per-source refresh outcomes",
		},
		[]string{"kind", "result"}, // result: "ok", "failed"
	)

	ItemsUpserted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "musicfeed_items_upserted_total",
			Help: "Content items created or updated by refreshes",
		},
		[]string{"kind", "action"}, // action: "create", "update"
	)

	RefreshDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "musicfeed_refresh_duration_seconds",
			Help:    "Duration of artist refreshes",
			Buckets: prometheus.DefBuckets,
		},
	)

	SweepRefreshes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "musicfeed_sweep_refreshes_total",
			Help: "Artist refreshes triggered by the stale sweep",
		},
		[]string{"result"},
	)
)

var EventsPublished = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "musicfeed_events_published_total",
		Help: "Item events handed to the message broker",
	},
	[]string{"action", "result"},
)
