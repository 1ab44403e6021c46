package units

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gopkg.in/yaml.v3"

	"github.com/ahrav/go-spaneval/internal/centroid"
	"github.com/ahrav/go-spaneval/internal/domain"
	"github.com/ahrav/go-spaneval/internal/ports"
)

var _ ports.Unit = (*CentroidMatchUnit)(nil)

// CentroidMatchUnit scores predicted spans against centroids built from the
// gold spans in state. Each execution builds a fresh centroid model, so the
// unit holds no per-run state and is safe for concurrent use.
//
// State requirements:
//   - domain.KeyGoldAnnotations: reference spans
//   - domain.KeyPredictions: spans to score
//
// The resulting partitions are written to domain.KeyEvalSets.
type CentroidMatchUnit struct {
	name   string
	config CentroidMatchConfig
	deps   Dependencies
	tracer trace.Tracer
}

// CentroidMatchConfig holds the match thresholds. The zero thresholds accept
// any prediction whose boundaries fall on a single centroid.
type CentroidMatchConfig struct {
	centroid.Thresholds `yaml:",inline"`

	// MaxAnnotations caps the gold and prediction counts read from state.
	MaxAnnotations int `yaml:"max_annotations" json:"max_annotations" validate:"min=1"`
}

// NewCentroidMatchUnit creates a CentroidMatchUnit with validated configuration.
func NewCentroidMatchUnit(name string, config CentroidMatchConfig, deps Dependencies) (*CentroidMatchUnit, error) {
	if name == "" {
		return nil, ErrEmptyUnitName
	}
	if err := validate.Struct(config); err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrInvalidConfiguration, err)
	}

	return &CentroidMatchUnit{
		name:   name,
		config: config,
		deps:   deps.withDefaults(),
		tracer: otel.Tracer("centroid-match-unit"),
	}, nil
}

// Name returns the unique identifier for this unit instance.
func (u *CentroidMatchUnit) Name() string { return u.name }

// Execute builds centroids from the gold spans and partitions the
// predictions. Multi-peaked or invalid gold data fails the execution.
func (u *CentroidMatchUnit) Execute(ctx context.Context, state domain.State) (domain.State, error) {
	ctx, span := u.tracer.Start(ctx, "CentroidMatchUnit.Execute",
		trace.WithAttributes(
			attribute.String("unit.type", "centroid_match"),
			attribute.String("unit.id", u.name),
			attribute.Int("config.threshold", u.config.Votes),
			attribute.Int("config.left_boundary", u.config.Left),
			attribute.Int("config.right_boundary", u.config.Right),
		),
	)
	defer span.End()

	start := time.Now()

	gold, err := annotationsFrom(state, domain.KeyGoldAnnotations, "gold annotations", u.config.MaxAnnotations)
	if err != nil {
		return state, fail(span, err)
	}
	preds, err := annotationsFrom(state, domain.KeyPredictions, "predictions", u.config.MaxAnnotations)
	if err != nil {
		return state, fail(span, err)
	}
	if err := ctx.Err(); err != nil {
		return state, fail(span, err)
	}

	log := u.deps.Logger.With("unit", u.name)
	ec, err := centroid.New(gold, centroid.WithLogger(log))
	if err != nil {
		return state, fail(span, fmt.Errorf("build centroids: %w", err))
	}

	sets := ec.Evaluate(preds, u.config.Thresholds)

	labels := outcomeLabels(u.name, "centroid")
	recordOutcomes(u.deps.Metrics, sets, labels)
	total := 0
	for _, typ := range ec.Types() {
		n := ec.CentroidCount(typ, u.config.Votes)
		total += n
		u.deps.Metrics.RecordGauge(ports.MetricCentroids, float64(n), map[string]string{
			ports.LabelUnit:           u.name,
			ports.LabelAnnotationType: typ,
		})
	}
	u.deps.Metrics.RecordGauge(ports.MetricGoldSpans, float64(len(gold)), map[string]string{
		ports.LabelUnit: u.name,
	})
	latency := time.Since(start)
	u.deps.Metrics.RecordLatency("centroid_match", latency, labels)

	tp, fp, fn := sets.Counts()
	span.SetAttributes(
		attribute.Int("eval.gold_count", len(gold)),
		attribute.Int("eval.prediction_count", len(preds)),
		attribute.Int("eval.centroid_count", total),
		attribute.Int("eval.true_positives", tp),
		attribute.Int("eval.false_positives", fp),
		attribute.Int("eval.false_negatives", fn),
		attribute.Int64("eval.latency_ms", latency.Milliseconds()),
	)

	return domain.With(state, domain.KeyEvalSets, sets), nil
}

// Validate verifies the unit configuration.
func (u *CentroidMatchUnit) Validate() error {
	if err := validate.Struct(u.config); err != nil {
		return fmt.Errorf("%w: %w", domain.ErrInvalidConfiguration, err)
	}
	return nil
}

// UnmarshalParameters decodes and validates YAML parameters, replacing the
// unit configuration. The configuration is unchanged on error.
func (u *CentroidMatchUnit) UnmarshalParameters(params yaml.Node) error {
	config := DefaultCentroidMatchConfig()
	if err := decodeParameters(params, &config); err != nil {
		return err
	}
	u.config = config
	return nil
}

// DefaultCentroidMatchConfig returns all-zero thresholds and the default
// annotation cap.
func DefaultCentroidMatchConfig() CentroidMatchConfig {
	return CentroidMatchConfig{MaxAnnotations: MaxAnnotations}
}

// NewCentroidMatchFromConfig creates a CentroidMatchUnit from a configuration map.
// This is the boundary adapter for YAML/JSON configuration.
func NewCentroidMatchFromConfig(id string, config map[string]any, deps Dependencies) (ports.Unit, error) {
	cfg := DefaultCentroidMatchConfig()
	if err := decodeConfig(config, &cfg); err != nil {
		return nil, err
	}
	return NewCentroidMatchUnit(id, cfg, deps)
}
