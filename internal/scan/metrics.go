package scan

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	Verdicts        *prometheus.CounterVec
	ScannerVerdicts *prometheus.CounterVec
	ScannerDuration *prometheus.HistogramVec
	Duration        prometheus.Histogram
	AssumedClean    prometheus.Counter
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Verdicts: f.NewCounterVec(prometheus.CounterOpts{
			Name: "kycvault_scan_consensus_total",
			Help: "Consensus verdicts",
		}, []string{"verdict"}),
		ScannerVerdicts: f.NewCounterVec(prometheus.CounterOpts{
			Name: "kycvault_scanner_results_total",
			Help: "Per-scanner verdicts",
		}, []string{"scanner", "verdict"}),
		ScannerDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "kycvault_scanner_duration_seconds",
			Help:    "Per-scanner latency",
			Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 15, 30},
		}, []string{"scanner"}),
		Duration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "kycvault_scan_duration_seconds",
			Help:    "Wall time of a scan attempt across all scanners",
			Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 15, 30},
		}),
		AssumedClean: f.NewCounter(prometheus.CounterOpts{
			Name: "kycvault_scan_assumed_clean_total",
			Help: "Scans that passed only because no scanner was registered",
		}),
	}
}
