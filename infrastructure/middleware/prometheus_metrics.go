// Package middleware provides cross-cutting concerns for the evaluation engine.
package middleware

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/ahrav/go-spaneval/internal/ports"
)

const (
	metricsNamespace = "spaneval"
	unknownLabel     = "unknown"
)

// PrometheusMetrics implements the MetricsCollector interface using Prometheus.
// It exports span outcome counts, centroid gauges, score distributions and
// unit execution latency.
type PrometheusMetrics struct {
	spanOutcomes     *prometheus.CounterVec
	centroids        *prometheus.GaugeVec
	scores           *prometheus.HistogramVec
	executionLatency *prometheus.HistogramVec
	operationCounter *prometheus.CounterVec
	systemGauges     *prometheus.GaugeVec
}

// NewPrometheusMetrics creates a PrometheusMetrics instance and registers its
// collectors with reg. Passing prometheus.DefaultRegisterer exposes them on
// the default /metrics handler. Registering twice on the same registerer
// panics, as with any promauto collector.
func NewPrometheusMetrics(reg prometheus.Registerer) *PrometheusMetrics {
	factory := promauto.With(reg)
	return &PrometheusMetrics{
		spanOutcomes: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "span_outcomes_total",
				Help:      "Predicted and gold spans partitioned by evaluation outcome.",
			},
			[]string{"outcome", ports.LabelEvaluationType, ports.LabelUnit},
		),
		centroids: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: metricsNamespace,
				Name:      "centroids",
				Help:      "Centroids built from the most recent gold set, per annotation type.",
			},
			[]string{ports.LabelAnnotationType, ports.LabelUnit},
		),
		scores: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Name:      "score",
				Help:      "Distribution of precision, recall and F1 values.",
				Buckets:   prometheus.LinearBuckets(0.1, 0.1, 10),
			},
			[]string{"metric", ports.LabelUnit},
		),
		executionLatency: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Name:      "execution_duration_seconds",
				Help:      "Execution time of evaluation operations.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"operation", ports.LabelUnit},
		),
		operationCounter: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "operations_total",
				Help:      "Total number of operations performed by evaluation units.",
			},
			[]string{"operation", "status", ports.LabelUnit},
		),
		systemGauges: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: metricsNamespace,
				Name:      "system_state",
				Help:      "Current values reported by evaluation units.",
			},
			[]string{"metric", ports.LabelUnit},
		),
	}
}

func unitLabel(labels map[string]string) string {
	if unit := labels[ports.LabelUnit]; unit != "" {
		return unit
	}
	return unknownLabel
}

func labelOr(labels map[string]string, key string) string {
	if v := labels[key]; v != "" {
		return v
	}
	return unknownLabel
}

// RecordLatency implements the MetricsCollector interface by recording
// execution latency in a Prometheus histogram.
func (pm *PrometheusMetrics) RecordLatency(
	operation string,
	duration time.Duration,
	labels map[string]string,
) {
	pm.executionLatency.WithLabelValues(operation, unitLabel(labels)).Observe(duration.Seconds())
}

// RecordCounter implements the MetricsCollector interface. Span outcome
// metrics go to the outcome counter; anything else is counted as an
// operation with the status label from labels, defaulting to "success".
func (pm *PrometheusMetrics) RecordCounter(
	metric string, value float64, labels map[string]string,
) {
	unit := unitLabel(labels)

	switch metric {
	case ports.MetricTruePositives, ports.MetricFalsePositives, ports.MetricFalseNegatives:
		pm.spanOutcomes.WithLabelValues(
			metric,
			labelOr(labels, ports.LabelEvaluationType),
			unit,
		).Add(value)
	default:
		status := labels["status"]
		if status == "" {
			status = "success"
		}
		pm.operationCounter.WithLabelValues(metric, status, unit).Add(value)
	}
}

// RecordGauge implements the MetricsCollector interface by setting
// Prometheus gauge values.
func (pm *PrometheusMetrics) RecordGauge(
	metric string, value float64, labels map[string]string,
) {
	unit := unitLabel(labels)

	switch metric {
	case ports.MetricCentroids:
		pm.centroids.WithLabelValues(labelOr(labels, ports.LabelAnnotationType), unit).Set(value)
	default:
		pm.systemGauges.WithLabelValues(metric, unit).Set(value)
	}
}

// RecordHistogram implements the MetricsCollector interface. Score metrics
// use ratio buckets; other values fall back to the latency histogram.
func (pm *PrometheusMetrics) RecordHistogram(
	metric string, value float64, labels map[string]string,
) {
	unit := unitLabel(labels)

	switch metric {
	case ports.MetricF1, ports.MetricPrecision, ports.MetricRecall:
		pm.scores.WithLabelValues(metric, unit).Observe(value)
	default:
		pm.executionLatency.WithLabelValues(metric, unit).Observe(value)
	}
}

// Compile-time verification that PrometheusMetrics implements MetricsCollector.
var _ ports.MetricsCollector = (*PrometheusMetrics)(nil)
