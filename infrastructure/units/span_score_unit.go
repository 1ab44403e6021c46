package units

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gopkg.in/yaml.v3"

	"github.com/ahrav/go-spaneval/internal/domain"
	"github.com/ahrav/go-spaneval/internal/ports"
)

var _ ports.Unit = (*SpanScoreUnit)(nil)

// Averaging strategies for the F1 quality gate.
const (
	AverageMicro = "micro"
	AverageMacro = "macro"
)

// SpanScoreUnit turns the partitions left by a matching unit into
// precision, recall and F1, and optionally fails the pipeline when F1 falls
// below a minimum.
//
// State requirements:
//   - domain.KeyEvalSets: partitions produced by a matching unit
//
// Returns a new state containing domain.KeyScoreReport.
//
// Concurrency: stateless and safe for concurrent execution.
type SpanScoreUnit struct {
	name   string
	config SpanScoreConfig
	deps   Dependencies
	tracer trace.Tracer
}

// SpanScoreConfig controls the quality gate applied to the score report.
type SpanScoreConfig struct {
	// MinF1 sets the minimum acceptable F1 score (0.0-1.0). Reports below
	// it fail with ErrBelowMinScore. Use 0.0 to disable the gate.
	MinF1 float64 `yaml:"min_f1" json:"min_f1" validate:"min=0.0,max=1.0"`

	// Average selects which F1 the gate checks: "micro" pools counts over
	// all types, "macro" averages per-type scores.
	Average string `yaml:"average" json:"average" validate:"required,oneof=micro macro"`
}

// NewSpanScoreUnit creates a SpanScoreUnit with validated configuration.
func NewSpanScoreUnit(name string, config SpanScoreConfig, deps Dependencies) (*SpanScoreUnit, error) {
	if name == "" {
		return nil, ErrEmptyUnitName
	}
	if err := validate.Struct(config); err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrInvalidConfiguration, err)
	}

	return &SpanScoreUnit{
		name:   name,
		config: config,
		deps:   deps.withDefaults(),
		tracer: otel.Tracer("span-score-unit"),
	}, nil
}

// Name returns the unique identifier for this unit instance.
func (ssu *SpanScoreUnit) Name() string { return ssu.name }

// Execute computes a domain.ScoreReport from domain.KeyEvalSets.
//
// When the selected F1 is below MinF1 the input state is returned unchanged
// together with an error wrapping ErrBelowMinScore.
func (ssu *SpanScoreUnit) Execute(ctx context.Context, state domain.State) (domain.State, error) {
	_, span := ssu.tracer.Start(ctx, "SpanScoreUnit.Execute",
		trace.WithAttributes(
			attribute.String("unit.type", "span_score"),
			attribute.String("unit.id", ssu.name),
			attribute.String("config.average", ssu.config.Average),
			attribute.Float64("config.min_f1", ssu.config.MinF1),
		),
	)
	defer span.End()

	sets, err := domain.Require(state, domain.KeyEvalSets)
	if err != nil {
		return state, fail(span, fmt.Errorf("%w: eval sets: %w", ErrMissingInput, err))
	}

	report := domain.NewScoreReport(sets)
	gated := report.Micro
	if ssu.config.Average == AverageMacro {
		gated = report.Macro
	}

	labels := map[string]string{ports.LabelUnit: ssu.name}
	ssu.deps.Metrics.RecordHistogram(ports.MetricF1, report.Micro.F1, labels)
	ssu.deps.Metrics.RecordHistogram(ports.MetricPrecision, report.Micro.Precision, labels)
	ssu.deps.Metrics.RecordHistogram(ports.MetricRecall, report.Micro.Recall, labels)

	span.SetAttributes(
		attribute.Float64("score.precision", report.Micro.Precision),
		attribute.Float64("score.recall", report.Micro.Recall),
		attribute.Float64("score.f1", report.Micro.F1),
		attribute.Float64("score.macro_f1", report.Macro.F1),
		attribute.Int("score.types", len(report.PerType)),
	)

	if gated.F1 < ssu.config.MinF1 {
		return state, fail(span, fmt.Errorf("%w: %s F1 %.4f < %.4f",
			ErrBelowMinScore, ssu.config.Average, gated.F1, ssu.config.MinF1))
	}

	ssu.deps.Logger.Debug("spans scored",
		"unit", ssu.name,
		"precision", report.Micro.Precision,
		"recall", report.Micro.Recall,
		"f1", report.Micro.F1,
	)

	return domain.With(state, domain.KeyScoreReport, report), nil
}

// Validate checks if the unit is properly configured and ready for execution.
func (ssu *SpanScoreUnit) Validate() error {
	if err := validate.Struct(ssu.config); err != nil {
		return fmt.Errorf("%w: %w", domain.ErrInvalidConfiguration, err)
	}

	return nil
}

// UnmarshalParameters decodes and validates YAML parameters, replacing the
// unit configuration. The configuration is unchanged on error.
func (ssu *SpanScoreUnit) UnmarshalParameters(params yaml.Node) error {
	config := DefaultSpanScoreConfig()
	if err := decodeParameters(params, &config); err != nil {
		return err
	}

	ssu.config = config
	return nil
}

// DefaultSpanScoreConfig returns micro averaging with the gate disabled.
func DefaultSpanScoreConfig() SpanScoreConfig {
	return SpanScoreConfig{
		MinF1:   0.0,
		Average: AverageMicro,
	}
}

// NewSpanScoreFromConfig creates a SpanScoreUnit from a configuration map.
// This is the boundary adapter for YAML/JSON configuration.
func NewSpanScoreFromConfig(id string, config map[string]any, deps Dependencies) (ports.Unit, error) {
	cfg := DefaultSpanScoreConfig()
	if err := decodeConfig(config, &cfg); err != nil {
		return nil, err
	}

	return NewSpanScoreUnit(id, cfg, deps)
}
