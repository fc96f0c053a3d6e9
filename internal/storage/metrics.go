package storage

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	Operations        *prometheus.CounterVec
	OperationDuration *prometheus.HistogramVec
	Retries           *prometheus.CounterVec
	IntegrityFailures prometheus.Counter
	OrphansRecorded   prometheus.Counter
	OrphansSwept      prometheus.Counter
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Operations: f.NewCounterVec(prometheus.CounterOpts{
			Name: "kycvault_storage_operations_total",
			Help: "Object store operations by outcome",
		}, []string{"op", "outcome"}),
		OperationDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "kycvault_storage_operation_duration_seconds",
			Help:    "Object store operation latency including retries",
			Buckets: prometheus.DefBuckets,
		}, []string{"op"}),
		Retries: f.NewCounterVec(prometheus.CounterOpts{
			Name: "kycvault_storage_retries_total",
			Help: "Retried object store attempts",
		}, []string{"op"}),
		IntegrityFailures: f.NewCounter(prometheus.CounterOpts{
			Name: "kycvault_storage_integrity_failures_total",
			Help: "Stored objects whose content no longer matches the recorded hash",
		}),
		OrphansRecorded: f.NewCounter(prometheus.CounterOpts{
			Name: "kycvault_storage_orphans_recorded_total",
			Help: "Objects queued for cleanup after a failed compensating delete",
		}),
		OrphansSwept: f.NewCounter(prometheus.CounterOpts{
			Name: "kycvault_storage_orphans_swept_total",
			Help: "Orphaned objects removed by the sweeper",
		}),
	}
}
