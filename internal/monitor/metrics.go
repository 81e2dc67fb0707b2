// Package monitor provides Prometheus metrics and OpenTelemetry tracing
// for the ingestion pipeline.
package monitor

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Batch outcome labels.
const (
	OutcomePersisted        = "persisted"
	OutcomeParseError       = "parse_error"
	OutcomeDeadLettered     = "dead_lettered"
	OutcomeDeadLetterFailed = "dead_letter_failed"
)

// Metrics holds all Prometheus metrics for the ingestion service.
type Metrics struct {
	Registry *prometheus.Registry

	BatchesTotal        *prometheus.CounterVec
	EventsTotal         *prometheus.CounterVec
	ExecutionsPersisted prometheus.Counter
	DeadLettersTotal    prometheus.Counter
	IngestDuration      prometheus.Histogram
	BatchSizeBytes      prometheus.Histogram
	RequestsInFlight    prometheus.Gauge
}

// NewMetrics creates and registers all Prometheus metrics using a dedicated registry.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		Registry: reg,

		BatchesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "forgelog",
				Name:      "batches_total",
				Help:      "Total number of received event batches by outcome.",
			},
			[]string{"outcome"},
		),

		EventsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "forgelog",
				Name:      "events_total",
				Help:      "Total number of decoded log events by type.",
			},
			[]string{"type"},
		),

		ExecutionsPersisted: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "forgelog",
				Name:      "executions_persisted_total",
				Help:      "Total number of execution trees written to the database.",
			},
		),

		DeadLettersTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "forgelog",
				Name:      "dead_letters_total",
				Help:      "Total number of payloads written to the dead-letter table.",
			},
		),

		IngestDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: "forgelog",
				Name:      "ingest_duration_seconds",
				Help:      "End-to-end duration of batch ingestion in seconds.",
				Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
			},
		),

		BatchSizeBytes: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: "forgelog",
				Name:      "batch_size_bytes",
				Help:      "Size of submitted event batches in bytes.",
				Buckets:   prometheus.ExponentialBuckets(100, 4, 8),
			},
		),

		RequestsInFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "forgelog",
				Subsystem: "api",
				Name:      "requests_in_flight",
				Help:      "Number of HTTP requests currently being processed.",
			},
		),
	}

	// Register all collectors
	reg.MustRegister(
		m.BatchesTotal,
		m.EventsTotal,
		m.ExecutionsPersisted,
		m.DeadLettersTotal,
		m.IngestDuration,
		m.BatchSizeBytes,
		m.RequestsInFlight,
	)

	return m
}

// RecordBatch records the outcome and duration of one ingested batch.
func (m *Metrics) RecordBatch(outcome string, durationSec float64) {
	m.BatchesTotal.WithLabelValues(outcome).Inc()
	m.IngestDuration.Observe(durationSec)
}

// RecordEvent counts one decoded event by type.
func (m *Metrics) RecordEvent(eventType string) {
	m.EventsTotal.WithLabelValues(eventType).Inc()
}
