// Package metrics exposes the hub's Prometheus collectors. A single
// Metrics value is shared by the bus, the hub subscribers, and the
// automation engine. All methods are safe on a nil receiver so
// components never need guard checks.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the hub's collectors, registered on a private registry
// so tests can construct as many instances as they need.
type Metrics struct {
	registry *prometheus.Registry

	busPublished    prometheus.Counter
	busDropped      prometheus.Counter
	subscriberError *prometheus.CounterVec
	heartbeats      prometheus.Counter
	automationRuns  prometheus.Counter
}

// New creates a Metrics instance with its own registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		busPublished: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "krypin_bus_messages_published_total",
			Help: "Messages accepted by the bus for delivery.",
		}),
		busDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "krypin_bus_messages_dropped_total",
			Help: "Messages dropped from slow subscriber queues.",
		}),
		subscriberError: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "krypin_subscriber_errors_total",
			Help: "Decode, storage, and automation errors in hub subscriber tasks.",
		}, []string{"subscriber", "kind"}),
		heartbeats: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "krypin_heartbeats_published_total",
			Help: "Heartbeat messages published by the hub.",
		}),
		automationRuns: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "krypin_automation_runs_total",
			Help: "Automation runs whose actions were executed.",
		}),
	}
	reg.MustRegister(m.busPublished, m.busDropped, m.subscriberError, m.heartbeats, m.automationRuns)
	return m
}

// Handler returns an http.Handler serving the /metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// BusPublished records a message accepted by the bus.
func (m *Metrics) BusPublished() {
	if m != nil {
		m.busPublished.Inc()
	}
}

// BusDropped records a message dropped from a subscriber queue.
func (m *Metrics) BusDropped() {
	if m != nil {
		m.busDropped.Inc()
	}
}

// SubscriberError records a decode, storage, or automation error in a
// named subscriber task.
func (m *Metrics) SubscriberError(subscriber, kind string) {
	if m != nil {
		m.subscriberError.WithLabelValues(subscriber, kind).Inc()
	}
}

// HeartbeatPublished records a published heartbeat.
func (m *Metrics) HeartbeatPublished() {
	if m != nil {
		m.heartbeats.Inc()
	}
}

// AutomationRun records an automation whose actions executed.
func (m *Metrics) AutomationRun() {
	if m != nil {
		m.automationRuns.Inc()
	}
}
