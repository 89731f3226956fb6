package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Gate metrics
var (
	// SecurityDecisionsTotal tracks every gate and auth decision by route and kind
	SecurityDecisionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "archon",
			Subsystem: "security",
			Name:      "decisions_total",
			Help:      "Total number of security decisions by route and kind",
		},
		[]string{"route", "kind"},
	)

	// AuditEventsTotal tracks audit entries by event name
	AuditEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "archon",
			Subsystem: "security",
			Name:      "audit_events_total",
			Help:      "Total number of audit entries emitted by event",
		},
		[]string{"event"},
	)

	// RateLimitEntries tracks live entries in the in-process rate limit store
	RateLimitEntries = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "archon",
			Subsystem: "security",
			Name:      "ratelimit_entries",
			Help:      "Number of keys held by the in-process rate limit store",
		},
	)

	// RateLimitStoreErrors tracks store failures (the limiter fails open on these)
	RateLimitStoreErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "archon",
			Subsystem: "security",
			Name:      "ratelimit_store_errors_total",
			Help:      "Total number of rate limit store errors by operation",
		},
		[]string{"operation"},
	)

	// RateLimitSweptTotal tracks expired entries removed by the sweeper
	RateLimitSweptTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "archon",
			Subsystem: "security",
			Name:      "ratelimit_swept_total",
			Help:      "Total number of expired rate limit entries removed",
		},
	)
)

// Upstream metrics
var (
	// UpstreamRequestsTotal tracks outbound calls by upstream and outcome
	UpstreamRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "archon",
			Subsystem: "upstream",
			Name:      "requests_total",
			Help:      "Total number of outbound calls by upstream and outcome",
		},
		[]string{"upstream", "outcome"},
	)

	// UpstreamDuration tracks outbound call latency
	UpstreamDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "archon",
			Subsystem: "upstream",
			Name:      "request_duration_seconds",
			Help:      "Outbound call duration in seconds",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 20, 40, 60},
		},
		[]string{"upstream"},
	)
)

// Decision metrics
var (
	// DecisionsTotal tracks decision sessions by final status
	DecisionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "archon",
			Subsystem: "council",
			Name:      "decisions_total",
			Help:      "Total number of decision requests by status",
		},
		[]string{"horizon", "status"},
	)

	// DecisionDuration tracks end-to-end decision processing time
	DecisionDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "archon",
			Subsystem: "council",
			Name:      "decision_duration_seconds",
			Help:      "Decision processing time in seconds",
			Buckets:   []float64{1, 2.5, 5, 10, 20, 30, 45, 60, 90},
		},
	)
)
