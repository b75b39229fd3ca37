package prometheus

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/emmdurin/georchestra-gateway/pkg/gateway"
	"github.com/emmdurin/georchestra-gateway/pkg/metrics"
)

// resolutionMetrics is the Prometheus implementation of gateway.Metrics.
type resolutionMetrics struct {
	resolutions *prometheus.CounterVec
	failures    prometheus.Counter
}

// NewResolutionMetrics creates a Prometheus-backed gateway.Metrics.
//
// Returns nil if metrics are not enabled (InitRegistry not called).
func NewResolutionMetrics() gateway.Metrics {
	if !metrics.IsEnabled() {
		return nil
	}

	reg := metrics.GetRegistry()

	return &resolutionMetrics{
		resolutions: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "gateway_identity_resolutions_total",
				Help: "Total number of identity resolutions by source",
			},
			[]string{"source"}, // "token", "headers", "directory", "anonymous"
		),
		failures: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Name: "gateway_identity_resolution_failures_total",
				Help: "Total number of requests aborted by the resolution pipeline",
			},
		),
	}
}

func (m *resolutionMetrics) IdentityResolved(source string) {
	m.resolutions.WithLabelValues(source).Inc()
}

func (m *resolutionMetrics) ResolutionFailed() {
	m.failures.Inc()
}
