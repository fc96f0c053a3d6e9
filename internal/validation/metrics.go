package validation

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	Checks   *prometheus.CounterVec
	Outcomes *prometheus.CounterVec
	Score    prometheus.Histogram
	Duration *prometheus.HistogramVec
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Checks: f.NewCounterVec(prometheus.CounterOpts{
			Name: "kycvault_validation_checks_total",
			Help: "Validation check outcomes",
		}, []string{"check", "outcome"}),
		Outcomes: f.NewCounterVec(prometheus.CounterOpts{
			Name: "kycvault_validation_results_total",
			Help: "Overall validation results",
		}, []string{"valid"}),
		Score: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "kycvault_validation_score",
			Help:    "Distribution of validation scores",
			Buckets: []float64{0, 25, 50, 75, 100},
		}),
		Duration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "kycvault_validation_check_duration_seconds",
			Help:    "Per-check latency",
			Buckets: prometheus.DefBuckets,
		}, []string{"check"}),
	}
}
