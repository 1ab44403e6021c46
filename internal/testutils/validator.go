package testutils

import (
	"github.com/go-playground/validator/v10"
)

// NewTestValidator creates a validator configured the same way as the
// production unit and graph validators.
func NewTestValidator() *validator.Validate {
	return validator.New(validator.WithRequiredStructEnabled())
}
