// Package units provides the evaluation units that implement the
// ports.Unit interface for the spaneval engine.
package units

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/go-playground/validator/v10"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/text/cases"
	"gopkg.in/yaml.v3"

	"github.com/ahrav/go-spaneval/internal/domain"
	"github.com/ahrav/go-spaneval/internal/ports"
)

// MaxAnnotations is the default cap on gold or predicted spans a unit will
// accept from state in a single execution.
const MaxAnnotations = 1_000_000

// Common errors returned by evaluation units.
var (
	// ErrEmptyUnitName is returned when attempting to create a unit with an empty name.
	ErrEmptyUnitName = errors.New("unit name cannot be empty")

	// ErrMissingInput is returned when a required state key is absent.
	ErrMissingInput = errors.New("required input not found in state")

	// ErrTooManyAnnotations is returned when state holds more spans than
	// the unit is configured to accept.
	ErrTooManyAnnotations = errors.New("too many annotations")

	// ErrBelowMinScore is returned when the F1 score is below the configured minimum.
	ErrBelowMinScore = errors.New("score below minimum threshold")
)

// Package-level validator instance for configuration validation.
var validate = validator.New(validator.WithRequiredStructEnabled())

// Dependencies carries the collaborators injected into units by the unit
// registry. Zero fields are replaced by no-op implementations.
type Dependencies struct {
	Metrics ports.MetricsCollector
	Logger  *slog.Logger
}

func (d Dependencies) withDefaults() Dependencies {
	if d.Metrics == nil {
		d.Metrics = ports.NopMetrics{}
	}
	if d.Logger == nil {
		d.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return d
}

// decodeConfig overlays a decoded YAML parameter map onto dst, which must
// already hold the unit defaults. Unknown fields are rejected.
func decodeConfig(config map[string]any, dst any) error {
	data, err := yaml.Marshal(config)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	return decodeStrict(bytes.NewReader(data), dst)
}

// decodeParameters decodes a YAML parameter node into dst and validates
// the result.
func decodeParameters(params yaml.Node, dst any) error {
	var buf bytes.Buffer
	encoder := yaml.NewEncoder(&buf)
	if err := encoder.Encode(&params); err != nil {
		return fmt.Errorf("failed to encode YAML node: %w", err)
	}
	if err := encoder.Close(); err != nil {
		return fmt.Errorf("failed to close YAML encoder: %w", err)
	}

	if err := decodeStrict(&buf, dst); err != nil {
		return err
	}
	if err := validate.Struct(dst); err != nil {
		return fmt.Errorf("parameter validation failed: %w", err)
	}
	return nil
}

// decodeStrict uses KnownFields so a typo in a parameter name fails instead
// of being silently ignored.
func decodeStrict(r io.Reader, dst any) error {
	decoder := yaml.NewDecoder(r)
	decoder.KnownFields(true)
	if err := decoder.Decode(dst); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("failed to decode parameters (check for typos): %w", err)
	}
	return nil
}

// annotationsFrom reads a required annotation slice from state.
func annotationsFrom(state domain.State, key domain.Key[[]domain.Annotation], what string, limit int) ([]domain.Annotation, error) {
	anns, err := domain.Require(state, key)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrMissingInput, what, err)
	}
	if len(anns) > limit {
		return nil, fmt.Errorf("%w: %d %s exceeds limit of %d", ErrTooManyAnnotations, len(anns), what, limit)
	}
	return anns, nil
}

// fail records err on span and returns it.
func fail(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}

// outcomeLabels builds the metric labels shared by matching units.
func outcomeLabels(unit, evaluationType string) map[string]string {
	return map[string]string{
		ports.LabelUnit:           unit,
		ports.LabelEvaluationType: evaluationType,
	}
}

// recordOutcomes exports the partition sizes of sets.
func recordOutcomes(m ports.MetricsCollector, sets domain.EvalSets, labels map[string]string) {
	tp, fp, fn := sets.Counts()
	m.RecordCounter(ports.MetricTruePositives, float64(tp), labels)
	m.RecordCounter(ports.MetricFalsePositives, float64(fp), labels)
	m.RecordCounter(ports.MetricFalseNegatives, float64(fn), labels)
}

// foldLabel applies Unicode case folding to a type label. A Caser carries
// state, so each call gets its own.
func foldLabel(s string) string {
	return cases.Fold().String(s)
}
