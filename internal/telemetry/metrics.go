// Package telemetry holds the Prometheus collectors for the service.
package telemetry

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics contains Prometheus metrics for rule runs, task dispatch and
// ingestion. A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	// Rule runs
	runsTotal      *prometheus.CounterVec
	runDuration    prometheus.Histogram
	violations     *prometheus.CounterVec
	rulesEvaluated prometheus.Counter

	// Task dispatch
	dispatchTotal *prometheus.CounterVec

	// Ingestion
	importRows *prometheus.CounterVec

	// Evidence
	packetsTotal prometheus.Counter

	// Audit relay
	auditDeliveries *prometheus.CounterVec
}

// NewMetrics registers collectors on a fresh registry so tests can build
// independent instances.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,

		runsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "precheck_rule_runs_total",
				Help: "Total number of processed rule runs by final status",
			},
			[]string{"status"},
		),

		runDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "precheck_rule_run_duration_seconds",
				Help:    "Wall time spent processing a rule run",
				Buckets: prometheus.DefBuckets,
			},
		),

		violations: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "precheck_rule_violations_total",
				Help: "Total number of persisted rule results",
			},
			[]string{"severity"},
		),

		rulesEvaluated: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "precheck_rules_evaluated_total",
				Help: "Total number of rule versions evaluated across runs",
			},
		),

		dispatchTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "precheck_task_dispatch_total",
				Help: "Task dispatches by task name and mode (queued or inline)",
			},
			[]string{"task", "mode"},
		),

		importRows: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "precheck_import_rows_total",
				Help: "Student rows processed by ingestion source and outcome",
			},
			[]string{"source", "outcome"},
		),

		packetsTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "precheck_evidence_packets_total",
				Help: "Total number of evidence packets built",
			},
		),

		auditDeliveries: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "precheck_audit_deliveries_total",
				Help: "Audit event delivery attempts by outcome",
			},
			[]string{"outcome"},
		),
	}
}

func (m *Metrics) RecordRun(status string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.runsTotal.WithLabelValues(status).Inc()
	m.runDuration.Observe(elapsed.Seconds())
}

func (m *Metrics) RecordViolations(severity string, n int) {
	if m == nil || n == 0 {
		return
	}
	m.violations.WithLabelValues(severity).Add(float64(n))
}

func (m *Metrics) RecordRuleEvaluated() {
	if m == nil {
		return
	}
	m.rulesEvaluated.Inc()
}

// RecordDispatch counts a task hand-off; mode is "queued" or "inline".
func (m *Metrics) RecordDispatch(task, mode string) {
	if m == nil {
		return
	}
	m.dispatchTotal.WithLabelValues(task, mode).Inc()
}

func (m *Metrics) RecordImportRow(source, outcome string) {
	if m == nil {
		return
	}
	m.importRows.WithLabelValues(source, outcome).Inc()
}

func (m *Metrics) RecordPacket() {
	if m == nil {
		return
	}
	m.packetsTotal.Inc()
}

// RecordAuditDelivery counts one relay attempt; outcome is "delivered",
// "retry" or "dead".
func (m *Metrics) RecordAuditDelivery(outcome string) {
	if m == nil {
		return
	}
	m.auditDeliveries.WithLabelValues(outcome).Inc()
}

// Registry exposes the underlying registry for tests and extra collectors.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
