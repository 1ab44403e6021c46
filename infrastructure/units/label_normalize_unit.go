package units

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"time"
	"unicode/utf8"

	"github.com/agnivade/levenshtein"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gopkg.in/yaml.v3"

	"github.com/ahrav/go-spaneval/internal/domain"
	"github.com/ahrav/go-spaneval/internal/ports"
)

var _ ports.Unit = (*LabelNormalizeUnit)(nil)

// LabelNormalizeUnit rewrites prediction type labels that do not occur in the
// gold set to the most similar gold label, so that "Person" or "PERSN" can
// still be scored against "PERSON". Similarity is the normalized Levenshtein
// distance over runes. Labels already present in the gold set are left
// untouched, as are labels with no gold label above the threshold.
//
// State requirements:
//   - domain.KeyGoldAnnotations: supplies the label vocabulary
//   - domain.KeyPredictions: spans whose labels are normalized
//
// The rewritten predictions replace domain.KeyPredictions and the applied
// rewrites are written to domain.KeyLabelMapping.
type LabelNormalizeUnit struct {
	name   string
	config LabelNormalizeConfig
	deps   Dependencies
	tracer trace.Tracer
}

// LabelNormalizeConfig defines the parameters for label normalization.
type LabelNormalizeConfig struct {
	// Threshold is the minimum similarity (0.0-1.0) for a rewrite.
	// Default: 0.8.
	Threshold float64 `yaml:"threshold" json:"threshold" validate:"min=0,max=1"`

	// CaseSensitive controls whether labels differing only in case are
	// treated as identical before measuring distance.
	// Default: false.
	CaseSensitive bool `yaml:"case_sensitive" json:"case_sensitive"`

	// MaxAnnotations caps the gold and prediction counts read from state.
	MaxAnnotations int `yaml:"max_annotations" json:"max_annotations" validate:"min=1"`
}

// NewLabelNormalizeUnit creates a LabelNormalizeUnit with validated configuration.
func NewLabelNormalizeUnit(name string, config LabelNormalizeConfig, deps Dependencies) (*LabelNormalizeUnit, error) {
	if name == "" {
		return nil, ErrEmptyUnitName
	}
	if err := validate.Struct(config); err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrInvalidConfiguration, err)
	}

	return &LabelNormalizeUnit{
		name:   name,
		config: config,
		deps:   deps.withDefaults(),
		tracer: otel.Tracer("label-normalize-unit"),
	}, nil
}

// Name returns the unique identifier for this unit instance.
func (lnu *LabelNormalizeUnit) Name() string { return lnu.name }

// Execute rewrites out-of-vocabulary prediction labels.
func (lnu *LabelNormalizeUnit) Execute(ctx context.Context, state domain.State) (domain.State, error) {
	_, span := lnu.tracer.Start(ctx, "LabelNormalizeUnit.Execute",
		trace.WithAttributes(
			attribute.String("unit.type", "label_normalize"),
			attribute.String("unit.id", lnu.name),
			attribute.Float64("config.threshold", lnu.config.Threshold),
			attribute.Bool("config.case_sensitive", lnu.config.CaseSensitive),
		),
	)
	defer span.End()

	start := time.Now()

	gold, err := annotationsFrom(state, domain.KeyGoldAnnotations, "gold annotations", lnu.config.MaxAnnotations)
	if err != nil {
		return state, fail(span, err)
	}
	preds, err := annotationsFrom(state, domain.KeyPredictions, "predictions", lnu.config.MaxAnnotations)
	if err != nil {
		return state, fail(span, err)
	}

	vocab := make(map[string]struct{})
	for _, g := range gold {
		vocab[g.Type] = struct{}{}
	}
	labels := slices.Sorted(maps.Keys(vocab))

	mapping := make(map[string]string)
	seen := make(map[string]struct{})
	out := make([]domain.Annotation, len(preds))
	rewrites := 0
	for i, p := range preds {
		out[i] = p
		if _, ok := vocab[p.Type]; ok {
			continue
		}
		if _, done := seen[p.Type]; !done {
			seen[p.Type] = struct{}{}
			if best, ok := lnu.closest(p.Type, labels); ok {
				mapping[p.Type] = best
			}
		}
		if to, ok := mapping[p.Type]; ok {
			out[i].Type = to
			rewrites++
		}
	}

	if rewrites > 0 {
		lnu.deps.Metrics.RecordCounter(ports.MetricLabelRewrites, float64(rewrites),
			map[string]string{ports.LabelUnit: lnu.name})
	}
	for from, to := range mapping {
		lnu.deps.Logger.Debug("label rewritten", "unit", lnu.name, "from", from, "to", to)
	}

	latency := time.Since(start)
	span.SetAttributes(
		attribute.Int("labels.vocabulary", len(labels)),
		attribute.Int("labels.rewritten", len(mapping)),
		attribute.Int("spans.rewritten", rewrites),
		attribute.Int64("eval.latency_ms", latency.Milliseconds()),
	)

	return state.WithMultiple(map[string]any{
		domain.KeyPredictions.Name():  out,
		domain.KeyLabelMapping.Name(): mapping,
	}), nil
}

// closest returns the most similar gold label reaching the threshold.
// Labels are scanned in sorted order and the first best candidate wins.
func (lnu *LabelNormalizeUnit) closest(label string, vocab []string) (string, bool) {
	best, bestScore := "", -1.0
	for _, cand := range vocab {
		if s := lnu.similarity(label, cand); s > bestScore {
			best, bestScore = cand, s
		}
	}
	if best == "" || bestScore < lnu.config.Threshold {
		return "", false
	}
	return best, true
}

// similarity returns 1 - distance/maxRuneLength, in [0, 1].
func (lnu *LabelNormalizeUnit) similarity(a, b string) float64 {
	if !lnu.config.CaseSensitive {
		a, b = foldLabel(a), foldLabel(b)
	}
	if a == b {
		return 1.0
	}

	maxLen := max(utf8.RuneCountInString(a), utf8.RuneCountInString(b))
	if maxLen == 0 {
		return 1.0
	}
	distance := levenshtein.ComputeDistance(a, b)
	return max(0, 1.0-float64(distance)/float64(maxLen))
}

// Validate checks if the unit is properly configured and ready for execution.
func (lnu *LabelNormalizeUnit) Validate() error {
	if err := validate.Struct(lnu.config); err != nil {
		return fmt.Errorf("%w: %w", domain.ErrInvalidConfiguration, err)
	}

	return nil
}

// UnmarshalParameters decodes and validates YAML parameters, replacing the
// unit configuration. The configuration is unchanged on error.
func (lnu *LabelNormalizeUnit) UnmarshalParameters(params yaml.Node) error {
	config := DefaultLabelNormalizeConfig()
	if err := decodeParameters(params, &config); err != nil {
		return err
	}

	lnu.config = config
	return nil
}

// DefaultLabelNormalizeConfig returns a LabelNormalizeConfig with sensible defaults.
func DefaultLabelNormalizeConfig() LabelNormalizeConfig {
	return LabelNormalizeConfig{
		Threshold:      0.8,
		CaseSensitive:  false,
		MaxAnnotations: MaxAnnotations,
	}
}

// NewLabelNormalizeFromConfig creates a LabelNormalizeUnit from a
// configuration map. This is the boundary adapter for YAML/JSON configuration.
func NewLabelNormalizeFromConfig(id string, config map[string]any, deps Dependencies) (ports.Unit, error) {
	cfg := DefaultLabelNormalizeConfig()
	if err := decodeConfig(config, &cfg); err != nil {
		return nil, err
	}

	return NewLabelNormalizeUnit(id, cfg, deps)
}
