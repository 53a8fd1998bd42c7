// Package metrics owns the service's prometheus collectors. A nil *Metrics is
// valid and records nothing.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "stratomai"

// Submission outcomes.
const (
	OutcomeCreated      = "created"
	OutcomeInvalid      = "invalid"
	OutcomeUpstream     = "upstream_failure"
	OutcomeInternal     = "internal_error"
	OutcomeCanceled     = "canceled"
	OutcomeUnauthorized = "unauthorized"
)

type Metrics struct {
	registry *prometheus.Registry

	tasksSubmitted *prometheus.CounterVec
	engineLatency  *prometheus.HistogramVec
	agentsCreated  *prometheus.CounterVec
	auditFailures  prometheus.Counter
}

func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		tasksSubmitted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tasks_submitted_total",
			Help:      "Task submissions by outcome.",
		}, []string{"outcome"}),
		engineLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "engine_request_duration_seconds",
			Help:      "Inference engine round trips by stage.",
			Buckets:   []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		}, []string{"stage", "result"}),
		agentsCreated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "agents_created_total",
			Help:      "Agents created by role.",
		}, []string{"role"}),
		auditFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "audit_write_failures_total",
			Help:      "Audit entries that could not be written.",
		}),
	}
	reg.MustRegister(
		m.tasksSubmitted, m.engineLatency, m.agentsCreated, m.auditFailures,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

func (m *Metrics) TaskSubmitted(outcome string) {
	if m == nil {
		return
	}
	m.tasksSubmitted.WithLabelValues(outcome).Inc()
}

func (m *Metrics) EngineCall(stage string, d time.Duration, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.engineLatency.WithLabelValues(stage, result).Observe(d.Seconds())
}

func (m *Metrics) AgentCreated(role string) {
	if m == nil {
		return
	}
	m.agentsCreated.WithLabelValues(role).Inc()
}

func (m *Metrics) AuditFailed() {
	if m == nil {
		return
	}
	m.auditFailures.Inc()
}

// Handler serves the registry in the prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.HandlerFor(prometheus.NewRegistry(), promhttp.HandlerOpts{})
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry for tests and extra collectors.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}
