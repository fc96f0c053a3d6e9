package service

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	Transitions *prometheus.CounterVec
	Documents   *prometheus.CounterVec
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Transitions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "kycvault_kyc_transitions_total",
			Help: "KYC review actions by action and role",
		}, []string{"action", "role"}),
		Documents: f.NewCounterVec(prometheus.CounterOpts{
			Name: "kycvault_kyc_documents_transitioned_total",
			Help: "Documents moved by KYC review actions",
		}, []string{"action"}),
	}
}
