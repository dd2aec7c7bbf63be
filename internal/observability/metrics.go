package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/daryltucker/polyglot-runner/internal/model"
)

// Record outcomes used as the "status" label of records_total.
const (
	RecordComplete = "complete"
	RecordPartial  = "partial"
	RecordFailed   = "failed"
)

// Metrics collects per-run counters. A nil *Metrics is valid and records nothing.
type Metrics struct {
	Registry *prometheus.Registry

	requests        *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	retries         *prometheus.CounterVec
	warmups         *prometheus.CounterVec
	records         *prometheus.CounterVec
	modelDuration   *prometheus.GaugeVec
}

// NewMetrics registers the runner collectors on a private registry.
func NewMetrics() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		requests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "polyglot",
				Subsystem: "backend",
				Name:      "requests_total",
				Help:      "Backend calls by model, language and outcome",
			},
			[]string{"model", "language", "outcome"},
		),
		requestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "polyglot",
				Subsystem: "backend",
				Name:      "request_duration_seconds",
				Help:      "Wall time of a language sub-call including retries",
				Buckets:   []float64{0.5, 1, 2.5, 5, 10, 20, 40, 80, 160, 320},
			},
			[]string{"model", "language"},
		),
		retries: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "polyglot",
				Subsystem: "backend",
				Name:      "failed_attempts_total",
				Help:      "Failed attempts that were followed by a retry or gave up",
			},
			[]string{"model", "stage"},
		),
		warmups: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "polyglot",
				Subsystem: "run",
				Name:      "warmups_total",
				Help:      "Warm-up gate results",
			},
			[]string{"model", "outcome"},
		),
		records: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "polyglot",
				Subsystem: "run",
				Name:      "records_total",
				Help:      "Records persisted by completeness",
			},
			[]string{"model", "status"},
		),
		modelDuration: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "polyglot",
				Subsystem: "run",
				Name:      "model_duration_seconds",
				Help:      "Time spent on each model, warm-up included",
			},
			[]string{"model"},
		),
	}
	m.Registry.MustRegister(m.requests, m.requestDuration, m.retries, m.warmups, m.records, m.modelDuration)
	return m
}

// ObserveRequest counts one language sub-call.
func (m *Metrics) ObserveRequest(modelName, language string, ok bool, d time.Duration) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(modelName, language, outcome(ok)).Inc()
	m.requestDuration.WithLabelValues(modelName, language).Observe(d.Seconds())
}

// FailedAttempt counts one failed backend attempt. stage is "warmup" or "query".
func (m *Metrics) FailedAttempt(modelName, stage string) {
	if m == nil {
		return
	}
	m.retries.WithLabelValues(modelName, stage).Inc()
}

// ObserveWarmup counts a warm-up gate result.
func (m *Metrics) ObserveWarmup(modelName string, ok bool) {
	if m == nil {
		return
	}
	m.warmups.WithLabelValues(modelName, outcome(ok)).Inc()
}

// ObserveRecord counts a persisted record by completeness.
func (m *Metrics) ObserveRecord(r model.Record) {
	if m == nil {
		return
	}
	m.records.WithLabelValues(r.Model, RecordStatus(r)).Inc()
}

// ObserveModel sets the total time spent on a model.
func (m *Metrics) ObserveModel(modelName string, d time.Duration) {
	if m == nil {
		return
	}
	m.modelDuration.WithLabelValues(modelName).Set(d.Seconds())
}

// WriteTextfile dumps the registry in text exposition format, for the node_exporter textfile collector.
func (m *Metrics) WriteTextfile(path string) error {
	if m == nil || path == "" {
		return nil
	}
	return prometheus.WriteToTextfile(path, m.Registry)
}

// RecordStatus classifies a record as complete, partial or failed.
func RecordStatus(r model.Record) string {
	switch {
	case r.Failed():
		return RecordFailed
	case r.Partial():
		return RecordPartial
	default:
		return RecordComplete
	}
}

func outcome(ok bool) string {
	if ok {
		return "success"
	}
	return "failure"
}
