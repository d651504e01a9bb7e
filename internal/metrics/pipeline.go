package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "listing_trust"

// Pipeline metrics. Collectors work unregistered, so packages can record
// into them in tests; Register exposes them on the default registry.
var (
	EvaluationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "evaluations_total",
			Help:      "Scoring requests by outcome",
		},
		[]string{"outcome"}, // scored | invalid | rate_limited | not_found
	)

	TrustScore = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "trust_score",
			Help:      "Distribution of published trust scores",
			Buckets:   prometheus.LinearBuckets(0, 10, 11),
		},
	)

	ReviewsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ai_reviews_total",
			Help:      "AI reviews by status",
		},
		[]string{"status"},
	)

	ReasoningCallsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reasoning_calls_total",
			Help:      "External reasoning calls by provider, purpose and result",
		},
		[]string{"provider", "purpose", "result"},
	)

	ReasoningCallDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "reasoning_call_duration_seconds",
			Help:      "External reasoning call latency",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2, 4, 8, 16},
		},
		[]string{"provider", "purpose"},
	)

	GovernorDecisionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "governor_decisions_total",
			Help:      "Request governor decisions",
		},
		[]string{"decision"}, // allow | deny | fail_open
	)

	AuditWritesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "audit_writes_total",
			Help:      "Trust audit appends by result",
		},
		[]string{"result"},
	)

	ExtractionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "extractions_total",
			Help:      "Field extractions by path",
		},
		[]string{"path"}, // deterministic | escalated | ai_filled
	)
)

var registerOnce sync.Once

// Register adds the pipeline collectors to the default registry.
func Register() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			EvaluationsTotal,
			TrustScore,
			ReviewsTotal,
			ReasoningCallsTotal,
			ReasoningCallDuration,
			GovernorDecisionsTotal,
			AuditWritesTotal,
			ExtractionsTotal,
		)
	})
}
