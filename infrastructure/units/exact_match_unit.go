package units

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gopkg.in/yaml.v3"

	"github.com/ahrav/go-spaneval/internal/domain"
	"github.com/ahrav/go-spaneval/internal/ports"
)

var _ ports.Unit = (*ExactMatchUnit)(nil)

// ExactMatchUnit is the strict baseline: a prediction is a true positive
// only when an unclaimed gold span has the same type, start and end. Each
// gold span can be claimed once. Unclaimed gold spans are reported as
// false negatives whose left and right offsets are the span's first and
// last offset.
//
// Concurrency: ExactMatchUnit is stateless and safe for concurrent execution.
type ExactMatchUnit struct {
	name   string
	config ExactMatchConfig
	deps   Dependencies
	tracer trace.Tracer
}

// ExactMatchConfig controls label comparison during exact matching.
type ExactMatchConfig struct {
	// CaseSensitive controls case sensitivity when comparing type labels.
	// When false, uses Unicode-aware case folding.
	// Default: true.
	CaseSensitive bool `yaml:"case_sensitive" json:"case_sensitive"`

	// MaxAnnotations caps the gold and prediction counts read from state.
	MaxAnnotations int `yaml:"max_annotations" json:"max_annotations" validate:"min=1"`
}

// NewExactMatchUnit creates a new ExactMatchUnit with validated configuration.
//
// Returns ErrEmptyUnitName if name is empty, or a configuration validation error
// if the config struct fails validation constraints.
func NewExactMatchUnit(name string, config ExactMatchConfig, deps Dependencies) (*ExactMatchUnit, error) {
	if name == "" {
		return nil, ErrEmptyUnitName
	}

	if err := validate.Struct(config); err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrInvalidConfiguration, err)
	}

	return &ExactMatchUnit{
		name:   name,
		config: config,
		deps:   deps.withDefaults(),
		tracer: otel.Tracer("exact-match-unit"),
	}, nil
}

// Name returns the unique identifier for this unit instance.
func (emu *ExactMatchUnit) Name() string { return emu.name }

type spanKey struct {
	typ        string
	start, end int
}

// Execute partitions the predictions in state by exact boundary equality
// with the gold spans and writes domain.KeyEvalSets.
//
// Invalid predictions are false positives. An invalid gold span fails the
// execution with a *domain.AnnotationError.
func (emu *ExactMatchUnit) Execute(ctx context.Context, state domain.State) (domain.State, error) {
	_, span := emu.tracer.Start(ctx, "ExactMatchUnit.Execute",
		trace.WithAttributes(
			attribute.String("unit.type", "exact_match"),
			attribute.String("unit.id", emu.name),
			attribute.Bool("config.case_sensitive", emu.config.CaseSensitive),
		),
	)
	defer span.End()

	start := time.Now()

	gold, err := annotationsFrom(state, domain.KeyGoldAnnotations, "gold annotations", emu.config.MaxAnnotations)
	if err != nil {
		return state, fail(span, err)
	}
	preds, err := annotationsFrom(state, domain.KeyPredictions, "predictions", emu.config.MaxAnnotations)
	if err != nil {
		return state, fail(span, err)
	}
	if err := domain.ValidateAnnotations(gold); err != nil {
		return state, fail(span, fmt.Errorf("gold annotations: %w", err))
	}

	sets := emu.match(gold, preds)

	labels := outcomeLabels(emu.name, "exact")
	recordOutcomes(emu.deps.Metrics, sets, labels)
	latency := time.Since(start)
	emu.deps.Metrics.RecordLatency("exact_match", latency, labels)

	tp, fp, fn := sets.Counts()
	span.SetAttributes(
		attribute.Int("eval.gold_count", len(gold)),
		attribute.Int("eval.prediction_count", len(preds)),
		attribute.Int("eval.true_positives", tp),
		attribute.Int("eval.false_positives", fp),
		attribute.Int("eval.false_negatives", fn),
		attribute.Int64("eval.latency_ms", latency.Milliseconds()),
	)
	emu.deps.Logger.Debug("exact match evaluated",
		"unit", emu.name, "tp", tp, "fp", fp, "fn", fn)

	return domain.With(state, domain.KeyEvalSets, sets), nil
}

func (emu *ExactMatchUnit) match(gold, preds []domain.Annotation) domain.EvalSets {
	// Pending gold indices per key, in gold order.
	pending := make(map[spanKey][]int, len(gold))
	for i, g := range gold {
		k := emu.key(g)
		pending[k] = append(pending[k], i)
	}
	claimed := make([]bool, len(gold))

	sets := domain.EvalSets{
		TruePositives:  make([]domain.Annotation, 0, len(preds)),
		FalsePositives: make([]domain.Annotation, 0),
		FalseNegatives: make([]domain.CentroidSummary, 0),
	}
	for _, p := range preds {
		k := emu.key(p)
		idx := pending[k]
		if p.Validate() != nil || len(idx) == 0 {
			sets.FalsePositives = append(sets.FalsePositives, p)
			continue
		}
		claimed[idx[0]] = true
		pending[k] = idx[1:]
		sets.TruePositives = append(sets.TruePositives, p)
	}

	missed := make([]domain.Annotation, 0)
	for i, g := range gold {
		if !claimed[i] {
			missed = append(missed, g)
		}
	}
	slices.SortStableFunc(missed, func(a, b domain.Annotation) int {
		return cmp.Compare(a.Start, b.Start)
	})
	for _, g := range missed {
		sets.FalseNegatives = append(sets.FalseNegatives, domain.CentroidSummary{
			Type:  g.Type,
			Left:  []int{g.Start},
			Right: []int{g.End - 1},
		})
	}
	return sets
}

func (emu *ExactMatchUnit) key(a domain.Annotation) spanKey {
	typ := a.Type
	if !emu.config.CaseSensitive {
		typ = foldLabel(typ)
	}
	return spanKey{typ: typ, start: a.Start, end: a.End}
}

// Validate verifies the unit is properly configured and ready for execution.
func (emu *ExactMatchUnit) Validate() error {
	if err := validate.Struct(emu.config); err != nil {
		return fmt.Errorf("%w: %w", domain.ErrInvalidConfiguration, err)
	}

	return nil
}

// UnmarshalParameters deserializes YAML configuration into the unit's config.
// The unit's configuration remains unchanged on error.
func (emu *ExactMatchUnit) UnmarshalParameters(params yaml.Node) error {
	config := DefaultExactMatchConfig()
	if err := decodeParameters(params, &config); err != nil {
		return err
	}

	emu.config = config
	return nil
}

// DefaultExactMatchConfig returns case-sensitive matching with the default
// annotation cap.
func DefaultExactMatchConfig() ExactMatchConfig {
	return ExactMatchConfig{
		CaseSensitive:  true,
		MaxAnnotations: MaxAnnotations,
	}
}

// NewExactMatchFromConfig creates an ExactMatchUnit from a configuration map.
// This is the boundary adapter for YAML/JSON configuration.
func NewExactMatchFromConfig(id string, config map[string]any, deps Dependencies) (ports.Unit, error) {
	cfg := DefaultExactMatchConfig()
	if err := decodeConfig(config, &cfg); err != nil {
		return nil, err
	}

	return NewExactMatchUnit(id, cfg, deps)
}
