package metrics

import "github.com/prometheus/client_golang/prometheus"

// LTR pipeline Prometheus metrics.
var (
	FeatureRowsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ltrkit",
			Name:      "feature_rows_total",
			Help:      "Feature rows extracted from logging responses",
		},
		[]string{"source"}, // "api" / "batch"
	)

	TrainingDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "ltrkit",
			Name:      "training_duration_seconds",
			Help:      "External trainer run time in seconds",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800},
		},
		[]string{"status"},
	)

	SynonymWordsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "ltrkit",
			Name:      "synonym_words_total",
			Help:      "Vocabulary words processed by the synonym pipeline",
		},
	)

	SynonymsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "ltrkit",
			Name:      "synonyms_total",
			Help:      "Synonyms accepted above the similarity threshold",
		},
	)

	EngineRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "ltrkit",
			Name:      "engine_request_duration_seconds",
			Help:      "Search engine request duration in seconds",
			Buckets:   []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		},
		[]string{"op", "status"},
	)
)

var ltrMetricsRegistered bool

// RegisterLTRMetrics registers the LTR collectors. Must be called once from main.
func RegisterLTRMetrics() {
	if ltrMetricsRegistered {
		return
	}
	prometheus.MustRegister(FeatureRowsTotal)
	prometheus.MustRegister(TrainingDuration)
	prometheus.MustRegister(SynonymWordsTotal)
	prometheus.MustRegister(SynonymsTotal)
	prometheus.MustRegister(EngineRequestDuration)
	ltrMetricsRegistered = true
}
