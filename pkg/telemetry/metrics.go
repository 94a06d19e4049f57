package telemetry

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics provides Prometheus metrics for EvorBrain. A Metrics built with
// metrics disabled accepts every call and records nothing.
type Metrics struct {
	config MetricsConfig

	// Command metrics
	operations        *prometheus.CounterVec
	operationDuration *prometheus.HistogramVec
	errorsByKind      *prometheus.CounterVec

	// Hierarchy metrics
	entities *prometheus.GaugeVec

	// Background work
	jobRuns        *prometheus.CounterVec
	jobDuration    *prometheus.HistogramVec
	policyDenials  *prometheus.CounterVec
	eventsDropped  prometheus.Counter
	backupsWritten *prometheus.CounterVec

	registry *prometheus.Registry
}

// NewMetrics creates a new metrics collector with the given configuration.
func NewMetrics(cfg MetricsConfig) (*Metrics, error) {
	if !cfg.Enabled {
		return &Metrics{config: cfg}, nil
	}

	namespace := cfg.Namespace
	buckets := cfg.DefaultHistogramBuckets
	if len(buckets) == 0 {
		buckets = prometheus.DefBuckets
	}

	registry := prometheus.NewRegistry()

	m := &Metrics{
		config:   cfg,
		registry: registry,

		operations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "operations_total",
				Help:      "Total number of backend commands executed",
			},
			[]string{"operation", "status"},
		),
		operationDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "operation_duration_seconds",
				Help:      "Duration of backend commands in seconds",
				Buckets:   buckets,
			},
			[]string{"operation"},
		),
		errorsByKind: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "errors_total",
				Help:      "Total number of command errors by kind",
			},
			[]string{"kind"},
		),

		entities: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "entities",
				Help:      "Current number of non-archived entities by type",
			},
			[]string{"type"},
		),

		jobRuns: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "job_runs_total",
				Help:      "Total number of scheduled job runs",
			},
			[]string{"job", "status"},
		),
		jobDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "job_duration_seconds",
				Help:      "Duration of scheduled job runs in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"job"},
		),
		policyDenials: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "policy_denials_total",
				Help:      "Total number of operations blocked by policy",
			},
			[]string{"policy"},
		),
		eventsDropped: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "events_dropped_total",
				Help:      "Change events dropped because the buffer was full",
			},
		),
		backupsWritten: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "backups_total",
				Help:      "Total number of database snapshots by destination",
			},
			[]string{"destination", "status"},
		),
	}

	registry.MustRegister(
		m.operations,
		m.operationDuration,
		m.errorsByKind,
		m.entities,
		m.jobRuns,
		m.jobDuration,
		m.policyDenials,
		m.eventsDropped,
		m.backupsWritten,
	)

	return m, nil
}

// RecordOperation counts a finished command and observes its duration.
func (m *Metrics) RecordOperation(operation, status string, duration time.Duration) {
	if m == nil || m.operations == nil {
		return
	}
	m.operations.WithLabelValues(operation, status).Inc()
	m.operationDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// RecordError counts an error by its kind.
func (m *Metrics) RecordError(kind string) {
	if m == nil || m.errorsByKind == nil {
		return
	}
	m.errorsByKind.WithLabelValues(kind).Inc()
}

// SetEntityCount sets the gauge for one entity type.
func (m *Metrics) SetEntityCount(entityType string, count float64) {
	if m == nil || m.entities == nil {
		return
	}
	m.entities.WithLabelValues(entityType).Set(count)
}

// RecordJobRun records one scheduled job execution.
func (m *Metrics) RecordJobRun(job, status string, duration time.Duration) {
	if m == nil || m.jobRuns == nil {
		return
	}
	m.jobRuns.WithLabelValues(job, status).Inc()
	m.jobDuration.WithLabelValues(job).Observe(duration.Seconds())
}

// RecordPolicyDenial counts an operation blocked by a policy.
func (m *Metrics) RecordPolicyDenial(policy string) {
	if m == nil || m.policyDenials == nil {
		return
	}
	m.policyDenials.WithLabelValues(policy).Inc()
}

// RecordEventDropped counts a change event lost to a full buffer.
func (m *Metrics) RecordEventDropped() {
	if m == nil || m.eventsDropped == nil {
		return
	}
	m.eventsDropped.Inc()
}

// RecordBackup counts a snapshot written locally or uploaded remotely.
func (m *Metrics) RecordBackup(destination, status string) {
	if m == nil || m.backupsWritten == nil {
		return
	}
	m.backupsWritten.WithLabelValues(destination, status).Inc()
}

// Registry returns the private registry, or nil when metrics are disabled.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Timer provides a convenient way to time operations.
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// Duration returns the elapsed time since the timer was created.
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}

// Handler returns an HTTP handler for the metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	if m == nil || m.registry == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}
