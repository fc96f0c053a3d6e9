package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	Decisions   *prometheus.CounterVec
	StoreErrors prometheus.Counter
}

func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Decisions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "kycvault_ratelimit_upload_decisions_total",
			Help: "Upload rate limit decisions by outcome",
		}, []string{"outcome"}),
		StoreErrors: f.NewCounter(prometheus.CounterOpts{
			Name: "kycvault_ratelimit_store_errors_total",
			Help: "Rate limit checks that failed open because the bucket store errored",
		}),
	}
}

func (m *Metrics) IncrementAllowed() { m.Decisions.WithLabelValues("allowed").Inc() }

func (m *Metrics) IncrementDenied() { m.Decisions.WithLabelValues("denied").Inc() }

func (m *Metrics) IncrementStoreErrors() { m.StoreErrors.Inc() }
