package observability

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	AIRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ai_requests_total",
			Help: "Total number of backend requests by outcome",
		},
		[]string{"provider", "outcome"},
	)
	AIRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ai_request_duration_seconds",
			Help:    "Backend request duration in seconds",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
		},
		[]string{"provider"},
	)

	CacheLookupsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cache_lookups_total",
			Help: "Cache lookups by tier and outcome",
		},
		[]string{"tier", "outcome"},
	)
	CacheEntries = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "cache_entries",
			Help: "Live entries per cache tier",
		},
		[]string{"tier"},
	)

	BatchesFormedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "batches_formed_total",
			Help: "Total number of request clusters formed",
		},
	)
	BatchSize = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "batch_size",
			Help:    "Distribution of cluster sizes",
			Buckets: []float64{1, 2, 3, 5, 8, 10, 15, 20},
		},
	)
	PendingRequests = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "pending_requests",
			Help: "Requests waiting for the next batch tick",
		},
	)

	BreakerState = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=open, 2=half-open)",
		},
	)
	BreakerTransitionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_transitions_total",
			Help: "Circuit breaker state transitions by target state",
		},
		[]string{"to"},
	)

	FallbacksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fallbacks_total",
			Help: "Offline fallback results by strategy",
		},
		[]string{"strategy"},
	)

	EventsPublishedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "events_published_total",
			Help: "Result-ready events by outcome",
		},
		[]string{"outcome"},
	)
)

var registerOnce sync.Once

// InitMetrics registers all Prometheus collectors once per process.
func InitMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			AIRequestsTotal,
			AIRequestDuration,
			CacheLookupsTotal,
			CacheEntries,
			BatchesFormedTotal,
			BatchSize,
			PendingRequests,
			BreakerState,
			BreakerTransitionsTotal,
			FallbacksTotal,
			EventsPublishedTotal,
		)
	})
}
