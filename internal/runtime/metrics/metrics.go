// Package metrics exposes Prometheus collectors for topology provisioning and
// envelope bridging.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "sqsbinder"

// Metrics groups the binder collectors. A nil *Metrics is valid and records nothing.
type Metrics struct {
	gatherer prometheus.Gatherer

	provisioned        *prometheus.CounterVec
	provisioningErrors *prometheus.CounterVec
	adapted            *prometheus.CounterVec
	envelopeFailures   prometheus.Counter
}

// New creates the collectors and registers them with registry. When registry is
// nil a private registry is used.
func New(registry *prometheus.Registry) (*Metrics, error) {
	if registry == nil {
		registry = prometheus.NewRegistry()
	}

	m := &Metrics{
		gatherer: registry,
		provisioned: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "provisioned_resources_total",
			Help:      "Broker resources ensured by the provisioner, by kind.",
		}, []string{"kind"}),
		provisioningErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "provisioning_errors_total",
			Help:      "Broker calls that failed during provisioning, by operation.",
		}, []string{"operation"}),
		adapted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_adapted_total",
			Help:      "Messages passed through the payload adapters, by direction and mode.",
		}, []string{"direction", "mode"}),
		envelopeFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "envelope_unwrap_failures_total",
			Help:      "Inbound messages rejected because the envelope could not be unwrapped.",
		}),
	}

	for _, c := range []prometheus.Collector{m.provisioned, m.provisioningErrors, m.adapted, m.envelopeFailures} {
		if err := registry.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// ResourceProvisioned counts a successful create/subscribe/attribute call.
func (m *Metrics) ResourceProvisioned(kind string) {
	if m == nil {
		return
	}
	m.provisioned.WithLabelValues(kind).Inc()
}

// ProvisioningFailed counts a failed broker call.
func (m *Metrics) ProvisioningFailed(operation string) {
	if m == nil {
		return
	}
	m.provisioningErrors.WithLabelValues(operation).Inc()
}

// MessageAdapted counts a message passing an adapter.
func (m *Metrics) MessageAdapted(direction, mode string) {
	if m == nil {
		return
	}
	m.adapted.WithLabelValues(direction, mode).Inc()
}

// EnvelopeRejected counts a message that failed to unwrap.
func (m *Metrics) EnvelopeRejected() {
	if m == nil {
		return
	}
	m.envelopeFailures.Inc()
}

// Handler serves the collectors in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.HandlerFor(prometheus.NewRegistry(), promhttp.HandlerOpts{})
	}
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}
