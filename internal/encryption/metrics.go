package encryption

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	Duration *prometheus.HistogramVec
	Failures *prometheus.CounterVec
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Duration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "kycvault_encryption_duration_seconds",
			Help:    "Time spent in key derivation plus cipher work",
			Buckets: prometheus.DefBuckets,
		}, []string{"op"}),
		Failures: f.NewCounterVec(prometheus.CounterOpts{
			Name: "kycvault_encryption_failures_total",
			Help: "Encryption, decryption and integrity failures",
		}, []string{"op"}),
	}
}

func (m *Metrics) ObserveDuration(op string, sec float64) { m.Duration.WithLabelValues(op).Observe(sec) }
func (m *Metrics) IncFailure(op string)                   { m.Failures.WithLabelValues(op).Inc() }
