package metrics

import "github.com/prometheus/client_golang/prometheus"

const namespace = "oraculo"

var (
	DocumentsValidatedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "documents_validated_total",
			Help:      "Total number of documents that completed validation, labeled by verdict.",
		},
		[]string{"verdict"},
	)

	ExtractionFailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "extraction_failures_total",
			Help:      "Total number of upstream extraction failures, labeled by stage (ocr, ner).",
		},
		[]string{"stage"},
	)

	PipelineLatencySeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "pipeline_latency_seconds",
			Help:      "End-to-end latency of the validation pipeline (seconds).",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		},
		[]string{"verdict"},
	)

	OracleSubmissionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "oracle_submissions_total",
			Help:      "Total number of terminal oracle submissions, labeled by state and reason.",
		},
		[]string{"state", "reason"},
	)

	OracleIdempotentHitsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "oracle_idempotent_hits_total",
			Help:      "Submissions answered from the idempotency ledger without a broadcast.",
		},
	)

	OracleBroadcastsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "oracle_broadcasts_total",
			Help:      "Raw transaction broadcasts, labeled by kind (initial, replacement).",
		},
		[]string{"kind"},
	)

	OracleSubmissionLatencySeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "oracle_submission_latency_seconds",
			Help:      "Latency from first broadcast to a terminal submission state (seconds).",
			Buckets:   []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 300, 600},
		},
		[]string{"state"},
	)

	RateLimitHitsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rate_limit_hits_total",
			Help:      "Requests rejected by rate limiting, labeled by scope and operation.",
		},
		[]string{"scope", "operation"},
	)
)

func init() {
	prometheus.MustRegister(
		DocumentsValidatedTotal,
		ExtractionFailuresTotal,
		PipelineLatencySeconds,
		OracleSubmissionsTotal,
		OracleIdempotentHitsTotal,
		OracleBroadcastsTotal,
		OracleSubmissionLatencySeconds,
		RateLimitHitsTotal,
	)
}
