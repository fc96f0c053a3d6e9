package buffered

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	audit "kycvault/pkg/platform/audit"
)

type Metrics struct {
	EventsRecorded  *prometheus.CounterVec
	EventsDropped   prometheus.Counter
	PersistFailures prometheus.Counter
	PersistDuration prometheus.Histogram
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		EventsRecorded: f.NewCounterVec(prometheus.CounterOpts{
			Name: "kycvault_audit_events_recorded_total",
			Help: "Audit events accepted by the sink",
		}, []string{"category", "severity"}),
		EventsDropped: f.NewCounter(prometheus.CounterOpts{
			Name: "kycvault_audit_events_dropped_total",
			Help: "Audit events dropped because the buffer was full",
		}),
		PersistFailures: f.NewCounter(prometheus.CounterOpts{
			Name: "kycvault_audit_persist_failures_total",
			Help: "Audit events that could not be written to the store",
		}),
		PersistDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "kycvault_audit_persist_duration_seconds",
			Help:    "Time to write one audit event to the store",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 12),
		}),
	}
}

func (m *Metrics) IncRecorded(category audit.EventCategory, severity audit.Severity) {
	m.EventsRecorded.WithLabelValues(string(category), string(severity)).Inc()
}

func (m *Metrics) IncDropped()                        { m.EventsDropped.Inc() }
func (m *Metrics) IncPersistFailures()                { m.PersistFailures.Inc() }
func (m *Metrics) ObservePersistDuration(sec float64) { m.PersistDuration.Observe(sec) }
