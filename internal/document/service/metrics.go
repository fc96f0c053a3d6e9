package service

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	Uploads        *prometheus.CounterVec
	UploadDuration prometheus.Histogram
	StageDuration  *prometheus.HistogramVec
	Rejections     *prometheus.CounterVec
	Compensations  *prometheus.CounterVec
	InFlight       prometheus.Gauge
	Downloads      *prometheus.CounterVec
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Uploads: f.NewCounterVec(prometheus.CounterOpts{
			Name: "kycvault_document_uploads_total",
			Help: "Upload attempts by outcome",
		}, []string{"outcome"}),
		UploadDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "kycvault_document_upload_duration_seconds",
			Help:    "End-to-end upload latency",
			Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		}),
		StageDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "kycvault_document_upload_stage_duration_seconds",
			Help:    "Upload latency per pipeline stage",
			Buckets: prometheus.DefBuckets,
		}, []string{"stage"}),
		Rejections: f.NewCounterVec(prometheus.CounterOpts{
			Name: "kycvault_document_rejections_total",
			Help: "Uploads rejected by scan or validation",
		}, []string{"reason"}),
		Compensations: f.NewCounterVec(prometheus.CounterOpts{
			Name: "kycvault_document_compensations_total",
			Help: "Compensating deletes after a failed metadata write, by outcome",
		}, []string{"outcome"}),
		InFlight: f.NewGauge(prometheus.GaugeOpts{
			Name: "kycvault_document_uploads_in_flight",
			Help: "Uploads currently holding a pipeline slot",
		}),
		Downloads: f.NewCounterVec(prometheus.CounterOpts{
			Name: "kycvault_document_downloads_total",
			Help: "Download attempts by outcome",
		}, []string{"outcome"}),
	}
}
