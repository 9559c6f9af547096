package metrics

import "github.com/prometheus/client_golang/prometheus"

// Generative model Prometheus metrics.
var (
	GenerationRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "docqa",
			Name:      "generation_requests_total",
			Help:      "Total number of generative model requests",
		},
		[]string{"model", "purpose", "status"}, // purpose: "expand" / "synthesize"
	)

	GenerationRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "docqa",
			Name:      "generation_request_duration_seconds",
			Help:      "Generative model request duration in seconds",
			Buckets:   []float64{0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		},
		[]string{"model", "purpose"},
	)

	GenerationTokensTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "docqa",
			Name:      "generation_tokens_total",
			Help:      "Total generative model tokens consumed",
		},
		[]string{"model", "type"}, // type: "prompt" / "completion"
	)

	RetrievalCandidatesTotal = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "docqa",
			Name:      "retrieval_candidates",
			Help:      "Deduplicated candidate count per retrieval",
			Buckets:   []float64{0, 1, 2, 5, 10, 20, 50},
		},
	)

	RetrievalVariantErrorsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "docqa",
			Name:      "retrieval_variant_errors_total",
			Help:      "Query variants that failed to embed or search",
		},
	)
)

var genMetricsRegistered bool

// RegisterGenerationMetrics registers Prometheus generation and retrieval
// metrics. Must be called once from main.
func RegisterGenerationMetrics() {
	if genMetricsRegistered {
		return
	}
	prometheus.MustRegister(GenerationRequestsTotal)
	prometheus.MustRegister(GenerationRequestDuration)
	prometheus.MustRegister(GenerationTokensTotal)
	prometheus.MustRegister(RetrievalCandidatesTotal)
	prometheus.MustRegister(RetrievalVariantErrorsTotal)
	genMetricsRegistered = true
}
