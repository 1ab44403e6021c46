package application

import (
	"fmt"
	"slices"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/ahrav/go-spaneval/internal/domain"
)

// ValidateUnitParameters checks the parameters of a unit against the
// constraints of its type before the unit is built. Unknown fields and
// type mismatches the checks here do not cover are rejected later by the
// unit's own strict decoding.
func ValidateUnitParameters(unitType string, params yaml.Node) error {
	var paramMap map[string]any
	if err := params.Decode(&paramMap); err != nil {
		return fmt.Errorf("failed to decode parameters: %w", err)
	}

	switch unitType {
	case "centroid_match":
		return validateCentroidMatchParams(paramMap)
	case "exact_match":
		return validateExactMatchParams(paramMap)
	case "label_normalize":
		return validateLabelNormalizeParams(paramMap)
	case "span_score":
		return validateSpanScoreParams(paramMap)
	case "custom":
		return nil
	default:
		return fmt.Errorf("unknown unit type: %s", unitType)
	}
}

func validateCentroidMatchParams(params map[string]any) error {
	return collect("centroid_match",
		intAtLeast(params, "threshold", 0),
		intAtLeast(params, "left_boundary", 0),
		intAtLeast(params, "right_boundary", 0),
		intAtLeast(params, "max_annotations", 1),
	)
}

func validateExactMatchParams(params map[string]any) error {
	return collect("exact_match",
		boolParam(params, "case_sensitive"),
		intAtLeast(params, "max_annotations", 1),
	)
}

func validateLabelNormalizeParams(params map[string]any) error {
	return collect("label_normalize",
		unitInterval(params, "threshold"),
		boolParam(params, "case_sensitive"),
		intAtLeast(params, "max_annotations", 1),
	)
}

func validateSpanScoreParams(params map[string]any) error {
	return collect("span_score",
		unitInterval(params, "min_f1"),
		oneOf(params, "average", "micro", "macro"),
	)
}

// collect gathers every failed check into one *domain.ValidationError.
func collect(entity string, checks ...error) error {
	ve := domain.NewValidationError(entity)
	for _, err := range checks {
		if err != nil {
			ve.AddError(err.Error())
		}
	}
	if ve.HasErrors() {
		return ve
	}
	return nil
}

// ValidateConditionParameters validates parameters for edge condition types.
func ValidateConditionParameters(condType string, params yaml.Node) error {
	var paramMap map[string]any
	if err := params.Decode(&paramMap); err != nil {
		return fmt.Errorf("failed to decode parameters: %w", err)
	}

	switch condType {
	case "score_threshold":
		return validateScoreThresholdParams(paramMap)
	case "custom":
		return nil
	default:
		return fmt.Errorf("unknown condition type: %s", condType)
	}
}

// validateScoreThresholdParams requires a threshold in [0, 1] and accepts
// an optional metric (f1, precision, recall) and operator (gt, gte, lt,
// lte, eq, ne).
func validateScoreThresholdParams(params map[string]any) error {
	if _, ok := params["threshold"]; !ok {
		return fmt.Errorf("score_threshold requires 'threshold' parameter")
	}
	return collect("score_threshold",
		unitInterval(params, "threshold"),
		oneOf(params, "metric", "f1", "precision", "recall"),
		oneOf(params, "operator", "gt", "gte", "lt", "lte", "eq", "ne"),
	)
}

// intAtLeast checks an optional integer parameter.
func intAtLeast(params map[string]any, key string, minimum int) error {
	v, ok := params[key]
	if !ok {
		return nil
	}
	n, ok := v.(int)
	if !ok {
		return fmt.Errorf("%s must be an integer", key)
	}
	if n < minimum {
		return fmt.Errorf("%s must be at least %d", key, minimum)
	}
	return nil
}

// unitInterval checks an optional numeric parameter lies in [0, 1].
func unitInterval(params map[string]any, key string) error {
	v, ok := params[key]
	if !ok {
		return nil
	}
	var f float64
	switch n := v.(type) {
	case float64:
		f = n
	case int:
		f = float64(n)
	default:
		return fmt.Errorf("%s must be a number", key)
	}
	if f < 0 || f > 1 {
		return fmt.Errorf("%s must be between 0 and 1", key)
	}
	return nil
}

func boolParam(params map[string]any, key string) error {
	if v, ok := params[key]; ok {
		if _, ok := v.(bool); !ok {
			return fmt.Errorf("%s must be a boolean", key)
		}
	}
	return nil
}

// oneOf checks an optional string parameter against a fixed set.
func oneOf(params map[string]any, key string, allowed ...string) error {
	v, ok := params[key]
	if !ok {
		return nil
	}
	s, ok := v.(string)
	if !ok {
		return fmt.Errorf("%s must be a string", key)
	}
	if !slices.Contains(allowed, s) {
		return fmt.Errorf("invalid %s: %s", key, s)
	}
	return nil
}

// RegisterGraphValidators registers custom validation functions with
// the validator instance for use in graph configuration validation.
func RegisterGraphValidators(v *validator.Validate) error {
	if err := v.RegisterValidation("unitparams", validateUnitParametersTag); err != nil {
		return fmt.Errorf("failed to register unitparams validator: %w", err)
	}
	if err := v.RegisterValidation("condparams", validateConditionParametersTag); err != nil {
		return fmt.Errorf("failed to register condparams validator: %w", err)
	}
	return nil
}

// validateUnitParametersTag accepts every value; parameter checks need the
// unit type and run in ValidateUnitParameters during semantic validation.
func validateUnitParametersTag(validator.FieldLevel) bool { return true }

// validateConditionParametersTag accepts every value; see
// ValidateConditionParameters.
func validateConditionParametersTag(validator.FieldLevel) bool { return true }
