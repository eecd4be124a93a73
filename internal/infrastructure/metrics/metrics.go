// Package metrics holds the prometheus collectors of the collaboration gateway.
package metrics

import (
	"net/http"
	"runtime"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "ticket_collab"

// Metrics groups every collector the gateway exports. A nil *Metrics is valid
// and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	Connections        prometheus.Gauge
	Envelopes          *prometheus.CounterVec
	MessagesPersisted  prometheus.Counter
	PresenceViewers    prometheus.Gauge
	WorklogTransitions *prometheus.CounterVec
	SLAEvaluations     *prometheus.CounterVec
	HTTPDuration       *prometheus.HistogramVec
}

// New creates the collectors on a private registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		Connections: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "ws_connections",
			Help:      "Open realtime connections.",
		}),
		Envelopes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ws_envelopes_total",
			Help:      "Envelopes handled by the hub, by event and direction.",
		}, []string{"event", "direction"}),
		MessagesPersisted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_persisted_total",
			Help:      "Conversation messages stored.",
		}),
		PresenceViewers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "presence_registrations",
			Help:      "Ticket view registrations currently held by this instance.",
		}),
		WorklogTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "worklog_transitions_total",
			Help:      "Worklog starts and stops, by action.",
		}, []string{"action"}),
		SLAEvaluations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sla_evaluations_total",
			Help:      "SLA timers computed, by display status.",
		}, []string{"status"}),
		HTTPDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "REST request latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "status"}),
	}

	m.registry.MustRegister(
		m.Connections,
		m.Envelopes,
		m.MessagesPersisted,
		m.PresenceViewers,
		m.WorklogTransitions,
		m.SLAEvaluations,
		m.HTTPDuration,
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "goroutines",
			Help:      "Number of active goroutines.",
		}, func() float64 { return float64(runtime.NumGoroutine()) }),
	)
	return m
}

// Handler serves the registry in the prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry for tests.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

func (m *Metrics) ConnectionOpened() {
	if m != nil {
		m.Connections.Inc()
	}
}

func (m *Metrics) ConnectionClosed() {
	if m != nil {
		m.Connections.Dec()
	}
}

// Envelope counts one frame; direction is "in" or "out".
func (m *Metrics) Envelope(event, direction string) {
	if m != nil {
		m.Envelopes.WithLabelValues(event, direction).Inc()
	}
}

func (m *Metrics) MessagePersisted() {
	if m != nil {
		m.MessagesPersisted.Inc()
	}
}

func (m *Metrics) ViewerAdded() {
	if m != nil {
		m.PresenceViewers.Inc()
	}
}

func (m *Metrics) ViewerRemoved() {
	if m != nil {
		m.PresenceViewers.Dec()
	}
}

func (m *Metrics) WorklogTransition(action string) {
	if m != nil {
		m.WorklogTransitions.WithLabelValues(action).Inc()
	}
}

func (m *Metrics) SLAEvaluated(status string) {
	if m != nil {
		m.SLAEvaluations.WithLabelValues(status).Inc()
	}
}

func (m *Metrics) ObserveHTTP(method, status string, seconds float64) {
	if m != nil {
		m.HTTPDuration.WithLabelValues(method, status).Observe(seconds)
	}
}
