// Package metrics exposes Prometheus counters for the dialogue pipeline.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/BTreeMap/LeadPipe/internal/models"
)

const namespace = "leadpipe"

// Metrics holds the collectors on a private registry so tests and multiple
// servers in one process do not collide.
type Metrics struct {
	registry *prometheus.Registry

	transitions    *prometheus.CounterVec
	clarifications *prometheus.CounterVec
	outcomes       *prometheus.CounterVec
	inbound        *prometheus.CounterVec
	outbound       *prometheus.CounterVec
	processing     prometheus.Histogram
}

// New creates and registers all collectors, plus the Go and process collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		transitions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "state_transitions_total",
				Help:      "Total number of dialogue state transitions",
			},
			[]string{"from", "to"},
		),
		clarifications: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "clarifications_total",
				Help:      "Total number of unclear replies by clarification source",
			},
			[]string{"source"}, // generated, fallback, capped
		),
		outcomes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "lead_outcomes_total",
				Help:      "Total number of concluded conversations by outcome",
			},
			[]string{"outcome"},
		),
		inbound: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "inbound_messages_total",
				Help:      "Total number of inbound messages",
			},
			[]string{"status"}, // processed, duplicate, error
		),
		outbound: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "outbound_messages_total",
				Help:      "Total number of outbound messages",
			},
			[]string{"kind", "status"}, // kind: reply, outreach; status: success, error
		),
		processing: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "message_processing_seconds",
				Help:      "Duration of inbound message processing in seconds",
				Buckets:   []float64{.005, .01, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
		),
	}
	m.registry.MustRegister(
		m.transitions,
		m.clarifications,
		m.outcomes,
		m.inbound,
		m.outbound,
		m.processing,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// ObserveTransition counts a state change.
func (m *Metrics) ObserveTransition(from, to string) {
	m.transitions.WithLabelValues(from, to).Inc()
}

// ObserveClarification counts an unclear reply.
func (m *Metrics) ObserveClarification(source string) {
	m.clarifications.WithLabelValues(source).Inc()
}

// ObserveOutcome counts a concluded conversation.
func (m *Metrics) ObserveOutcome(outcome models.Outcome) {
	m.outcomes.WithLabelValues(string(outcome)).Inc()
}

// ObserveInbound counts an inbound message and, for processed ones, its latency.
func (m *Metrics) ObserveInbound(status string, elapsed time.Duration) {
	m.inbound.WithLabelValues(status).Inc()
	if elapsed > 0 {
		m.processing.Observe(elapsed.Seconds())
	}
}

// ObserveOutbound counts an outbound send.
func (m *Metrics) ObserveOutbound(kind string, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	m.outbound.WithLabelValues(kind, status).Inc()
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
