package ports

import "time"

// MetricsCollector defines the interface for collecting operational metrics.
// Implementations should integrate with observability platforms like
// Prometheus or OpenTelemetry.
type MetricsCollector interface {
	// RecordLatency records the execution time of an operation.
	// The labels map provides additional context for the metric.
	RecordLatency(operation string, duration time.Duration, labels map[string]string)

	// RecordCounter increments a counter metric.
	// This is useful for tracking events like matched and unmatched spans.
	RecordCounter(metric string, value float64, labels map[string]string)

	// RecordGauge sets the current value of a gauge metric.
	// This is useful for tracking values like the number of centroids
	// built from the current gold set.
	RecordGauge(metric string, value float64, labels map[string]string)

	// RecordHistogram records a value in a histogram.
	// This is useful for tracking distributions like F1 scores.
	RecordHistogram(metric string, value float64, labels map[string]string)
}

// NopMetrics is a MetricsCollector that discards every observation.
type NopMetrics struct{}

// RecordLatency implements MetricsCollector.
func (NopMetrics) RecordLatency(string, time.Duration, map[string]string) {}

// RecordCounter implements MetricsCollector.
func (NopMetrics) RecordCounter(string, float64, map[string]string) {}

// RecordGauge implements MetricsCollector.
func (NopMetrics) RecordGauge(string, float64, map[string]string) {}

// RecordHistogram implements MetricsCollector.
func (NopMetrics) RecordHistogram(string, float64, map[string]string) {}

// Metric names shared by the evaluation units and the collectors that
// export them.
const (
	// MetricTruePositives counts predictions matched to gold.
	MetricTruePositives = "true_positives"
	// MetricFalsePositives counts predictions with no gold match.
	MetricFalsePositives = "false_positives"
	// MetricFalseNegatives counts gold regions no prediction matched.
	MetricFalseNegatives = "false_negatives"
	// MetricCentroids is the number of centroids built for one type.
	MetricCentroids = "centroids"
	// MetricGoldSpans is the size of the gold set a unit last evaluated.
	MetricGoldSpans = "gold_spans"
	// MetricLabelRewrites counts predictions whose type was normalised.
	MetricLabelRewrites = "label_rewrites"
	// MetricF1 observes micro F1 scores.
	MetricF1 = "f1"
	// MetricPrecision observes micro precision.
	MetricPrecision = "precision"
	// MetricRecall observes micro recall.
	MetricRecall = "recall"
)

// Label keys attached to recorded metrics.
const (
	LabelUnit           = "unit"
	LabelEvaluationType = "evaluation_type"
	LabelAnnotationType = "annotation_type"
)
