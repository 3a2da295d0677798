// Package metrics exposes Prometheus instruments for the decision engine
// and the HTTP surface. A nil *Metrics is valid and records nothing.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Metrics struct {
	gatherer prometheus.Gatherer

	proposed      prometheus.Counter
	votes         *prometheus.CounterVec
	closed        *prometheus.CounterVec
	conflicts     prometheus.Counter
	sweeps        *prometheus.CounterVec
	sweepFailures *prometheus.CounterVec
	sweepSeconds  *prometheus.HistogramVec
	emitFailures  prometheus.Counter
	httpRequests  *prometheus.CounterVec
}

// New registers every instrument on reg. Passing nil uses a fresh
// registry, which keeps tests independent.
func New(reg *prometheus.Registry) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	factory := promauto.With(reg)

	return &Metrics{
		gatherer: reg,
		proposed: factory.NewCounter(prometheus.CounterOpts{
			Name: "govdecisions_decisions_proposed_total",
			Help: "Total number of decisions proposed",
		}),
		votes: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "govdecisions_votes_total",
			Help: "Votes received, by choice and whether the tally moved",
		}, []string{"choice", "result"}),
		closed: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "govdecisions_decisions_closed_total",
			Help: "Decisions closed, by terminal status",
		}, []string{"status"}),
		conflicts: factory.NewCounter(prometheus.CounterOpts{
			Name: "govdecisions_write_conflicts_total",
			Help: "Writes abandoned after exhausting conflict retries",
		}),
		sweeps: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "govdecisions_sweeps_total",
			Help: "Lifecycle passes run, by kind",
		}, []string{"kind"}),
		sweepFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "govdecisions_sweep_item_failures_total",
			Help: "Decisions a lifecycle pass failed to evaluate, by kind",
		}, []string{"kind"}),
		sweepSeconds: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "govdecisions_sweep_duration_seconds",
			Help:    "Duration of lifecycle passes",
			Buckets: prometheus.DefBuckets,
		}, []string{"kind"}),
		emitFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "govdecisions_event_emit_failures_total",
			Help: "Events at least one sink failed to deliver",
		}),
		httpRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "govdecisions_http_requests_total",
			Help: "HTTP requests served, by method, route and status code",
		}, []string{"method", "route", "code"}),
	}
}

func (m *Metrics) Proposed() {
	if m == nil {
		return
	}
	m.proposed.Inc()
}

func (m *Metrics) Vote(choice string, changed bool) {
	if m == nil {
		return
	}
	result := "noop"
	if changed {
		result = "counted"
	}
	m.votes.WithLabelValues(choice, result).Inc()
}

func (m *Metrics) Closed(status string) {
	if m == nil {
		return
	}
	m.closed.WithLabelValues(status).Inc()
}

func (m *Metrics) Conflict() {
	if m == nil {
		return
	}
	m.conflicts.Inc()
}

// Sweep records one lifecycle pass.
func (m *Metrics) Sweep(kind string, failed int, took time.Duration) {
	if m == nil {
		return
	}
	m.sweeps.WithLabelValues(kind).Inc()
	if failed > 0 {
		m.sweepFailures.WithLabelValues(kind).Add(float64(failed))
	}
	m.sweepSeconds.WithLabelValues(kind).Observe(took.Seconds())
}

func (m *Metrics) EmitFailed() {
	if m == nil {
		return
	}
	m.emitFailures.Inc()
}

func (m *Metrics) HTTPRequest(method, route, code string) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(method, route, code).Inc()
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}
