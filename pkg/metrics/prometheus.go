package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Record outcomes.
const (
	OutcomeSucceeded = "succeeded"
	OutcomeFailed    = "failed"
	OutcomeSkipped   = "skipped"
)

// Lookup failure kinds.
const (
	LookupRejected = "rejected"
	LookupTimeout  = "timeout"
	LookupFault    = "fault"
)

// Manager manages all Prometheus metrics for a batch run.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	constLabels      prometheus.Labels
	registry         *prometheus.Registry

	records       *prometheus.CounterVec
	lookupErrors  *prometheus.CounterVec
	verdicts      *prometheus.CounterVec
	lookupLatency prometheus.Histogram
	recordLatency prometheus.Histogram

	sinkAppends prometheus.Counter
	sinkErrors  prometheus.Counter

	completed      prometheus.Gauge
	activeSessions prometheus.Gauge
	queueLength    prometheus.Gauge
	runDuration    prometheus.Gauge
}

// Global metrics manager instance.
var globalManager *Manager //nolint:gochecknoglobals // intentional global for singleton metrics manager

// Custom registry to avoid default Go metrics.
var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // intentional global for metrics registry

func init() { //nolint:gochecknoinits // intentional init for global metrics setup
	globalManager = NewManager(WithPrometheusRegistry(customRegistry))
}

// NewManager creates a new metrics manager with default configuration.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "shipaudit",
		subsystem:        "batch",
		histogramBuckets: []float64{50, 100, 250, 500, 1000, 2500, 5000, 10000, 20000, 30000, 60000},
		registry:         prometheus.NewRegistry(),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.initializeMetrics()
	return m
}

func (m *Manager) initializeMetrics() {
	auto := promauto.With(m.registry)

	m.records = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "records_total",
		Help:        "Shipment records handled, by outcome",
		ConstLabels: m.constLabels,
	}, []string{"outcome"})

	m.lookupErrors = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "lookup_errors_total",
		Help:        "Tracking lookups that did not return a result, by kind",
		ConstLabels: m.constLabels,
	}, []string{"kind"})

	m.verdicts = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "verdicts_total",
		Help:        "On-time verdicts written, by value",
		ConstLabels: m.constLabels,
	}, []string{"verdict"})

	m.lookupLatency = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "lookup_latency_milliseconds",
		Help:        "Latency of a single tracking lookup in milliseconds",
		Buckets:     m.histogramBuckets,
		ConstLabels: m.constLabels,
	})

	m.recordLatency = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "record_latency_milliseconds",
		Help:        "Latency of a full lookup, classify and append cycle in milliseconds",
		Buckets:     m.histogramBuckets,
		ConstLabels: m.constLabels,
	})

	m.sinkAppends = auto.NewCounter(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "sink_appends_total",
		Help:        "Rows appended to the result sink",
		ConstLabels: m.constLabels,
	})

	m.sinkErrors = auto.NewCounter(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "sink_errors_total",
		Help:        "Failed appends to the result sink",
		ConstLabels: m.constLabels,
	})

	m.completed = auto.NewGauge(prometheus.GaugeOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "completed_records",
		Help:        "Tracking ids known to be done, including earlier runs",
		ConstLabels: m.constLabels,
	})

	m.activeSessions = auto.NewGauge(prometheus.GaugeOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "active_sessions",
		Help:        "Lookup sessions currently processing records",
		ConstLabels: m.constLabels,
	})

	m.queueLength = auto.NewGauge(prometheus.GaugeOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "queue_length",
		Help:        "Records waiting for a lookup session",
		ConstLabels: m.constLabels,
	})

	m.runDuration = auto.NewGauge(prometheus.GaugeOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "run_duration_seconds",
		Help:        "Wall-clock duration of the last run",
		ConstLabels: m.constLabels,
	})
}

// Registry returns the registry the manager's metrics live on.
func (m *Manager) Registry() *prometheus.Registry { return m.registry }

// RecordOutcome increments the record counter for outcome.
func (m *Manager) RecordOutcome(outcome string) { m.records.WithLabelValues(outcome).Inc() }

// RecordLookupError increments the lookup error counter for kind.
func (m *Manager) RecordLookupError(kind string) { m.lookupErrors.WithLabelValues(kind).Inc() }

// RecordVerdict increments the verdict counter.
func (m *Manager) RecordVerdict(verdict string) { m.verdicts.WithLabelValues(verdict).Inc() }

// RecordLookupLatency records lookup latency in milliseconds.
func (m *Manager) RecordLookupLatency(ms float64) { m.lookupLatency.Observe(ms) }

// RecordRecordLatency records full record latency in milliseconds.
func (m *Manager) RecordRecordLatency(ms float64) { m.recordLatency.Observe(ms) }

// RecordSinkAppend increments the sink append counter.
func (m *Manager) RecordSinkAppend() { m.sinkAppends.Inc() }

// RecordSinkError increments the sink error counter.
func (m *Manager) RecordSinkError() { m.sinkErrors.Inc() }

// UpdateCompleted sets the completed-set size.
func (m *Manager) UpdateCompleted(n int64) { m.completed.Set(float64(n)) }

// UpdateActiveSessions sets the active session count.
func (m *Manager) UpdateActiveSessions(n int) { m.activeSessions.Set(float64(n)) }

// UpdateQueueLength sets the queue length.
func (m *Manager) UpdateQueueLength(n int) { m.queueLength.Set(float64(n)) }

// UpdateRunDuration sets the last run duration.
func (m *Manager) UpdateRunDuration(seconds float64) { m.runDuration.Set(seconds) }

// WriteTextfile writes every metric on the manager's registry to path in
// the Prometheus text exposition format, for a textfile collector to pick up.
func (m *Manager) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, m.registry); err != nil {
		return fmt.Errorf("%w: %w", ErrExport, err)
	}
	return nil
}

// RecordOutcome increments the record counter on the global manager.
func RecordOutcome(outcome string) { globalManager.RecordOutcome(outcome) }

// RecordLookupError increments the lookup error counter on the global manager.
func RecordLookupError(kind string) { globalManager.RecordLookupError(kind) }

// RecordVerdict increments the verdict counter on the global manager.
func RecordVerdict(verdict string) { globalManager.RecordVerdict(verdict) }

// RecordLookupLatency records lookup latency on the global manager.
func RecordLookupLatency(ms float64) { globalManager.RecordLookupLatency(ms) }

// RecordRecordLatency records record latency on the global manager.
func RecordRecordLatency(ms float64) { globalManager.RecordRecordLatency(ms) }

// RecordSinkAppend increments the sink append counter on the global manager.
func RecordSinkAppend() { globalManager.RecordSinkAppend() }

// RecordSinkError increments the sink error counter on the global manager.
func RecordSinkError() { globalManager.RecordSinkError() }

// UpdateCompleted sets the completed-set size on the global manager.
func UpdateCompleted(n int64) { globalManager.UpdateCompleted(n) }

// UpdateActiveSessions sets the active session count on the global manager.
func UpdateActiveSessions(n int) { globalManager.UpdateActiveSessions(n) }

// UpdateQueueLength sets the queue length on the global manager.
func UpdateQueueLength(n int) { globalManager.UpdateQueueLength(n) }

// UpdateRunDuration sets the run duration on the global manager.
func UpdateRunDuration(seconds float64) { globalManager.UpdateRunDuration(seconds) }

// WriteTextfile exports the global registry to path.
func WriteTextfile(path string) error { return globalManager.WriteTextfile(path) }

// GetRegistry returns the custom registry.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}
