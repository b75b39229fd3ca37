// Package prometheus provides the Prometheus-backed implementations of the
// metrics interfaces consumed by gateway subsystems.
package prometheus

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/emmdurin/georchestra-gateway/pkg/accounts"
	"github.com/emmdurin/georchestra-gateway/pkg/metrics"
)

// accountMetrics is the Prometheus implementation of accounts.Metrics.
type accountMetrics struct {
	provisioned   *prometheus.CounterVec
	rollbacks     prometheus.Counter
	eventFailures prometheus.Counter
}

// NewAccountMetrics creates a Prometheus-backed accounts.Metrics.
//
// Returns nil if metrics are not enabled (InitRegistry not called), which
// disables counting in the account manager at zero cost.
func NewAccountMetrics() accounts.Metrics {
	if !metrics.IsEnabled() {
		return nil
	}

	reg := metrics.GetRegistry()

	return &accountMetrics{
		provisioned: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "gateway_accounts_provisioned_total",
				Help: "Total number of account provisioning attempts by outcome",
			},
			[]string{"outcome"}, // "success", "failure"
		),
		rollbacks: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Name: "gateway_accounts_rollbacks_total",
				Help: "Total number of compensating account deletions after partial provisioning failure",
			},
		),
		eventFailures: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Name: "gateway_accounts_event_publish_failures_total",
				Help: "Total number of account-created events dropped by the sink",
			},
		),
	}
}

func (m *accountMetrics) ProvisioningSucceeded() {
	m.provisioned.WithLabelValues("success").Inc()
}

func (m *accountMetrics) ProvisioningFailed() {
	m.provisioned.WithLabelValues("failure").Inc()
}

func (m *accountMetrics) RollbackPerformed() {
	m.rollbacks.Inc()
}

func (m *accountMetrics) EventPublishFailed() {
	m.eventFailures.Inc()
}
