package domain

import (
	"errors"
	"fmt"
)

// Common domain errors that can occur during evaluation operations.
var (
	// ErrKeyNotFound indicates that a requested state key does not exist.
	ErrKeyNotFound = errors.New("key not found")

	// ErrTypeMismatch indicates that a value's type doesn't match the expected type.
	ErrTypeMismatch = errors.New("type mismatch")

	// ErrInvalidAnnotation indicates a span with a negative start or an end
	// that does not lie after its start.
	ErrInvalidAnnotation = errors.New("invalid annotation")

	// ErrMultiPeakCentroid indicates gold annotations that overlap in more
	// than one rise-and-fall run inside a single contiguous region.
	ErrMultiPeakCentroid = errors.New("centroid has more than one peak")

	// ErrInvalidConfiguration indicates that configuration is invalid or incomplete.
	ErrInvalidConfiguration = errors.New("invalid configuration")
)

// StateError represents an error that occurred during State operations.
// It provides context about which key and operation caused the error.
type StateError struct {
	// Key is the name of the state key involved in the failed operation.
	Key string

	// Operation describes what operation was being performed when the error occurred.
	Operation string

	// Err is the underlying error that caused the operation to fail.
	Err error
}

// Error implements the error interface for StateError.
func (e *StateError) Error() string {
	return fmt.Sprintf("state error: operation=%s, key=%s, err=%v", e.Operation, e.Key, e.Err)
}

// Unwrap returns the underlying error.
func (e *StateError) Unwrap() error { return e.Err }

// NewStateError creates a new StateError with the given details.
func NewStateError(key, operation string, err error) *StateError {
	return &StateError{
		Key:       key,
		Operation: operation,
		Err:       err,
	}
}

// MultiPeakCentroidError is returned when the gold annotations of one type
// produce a centroid whose rising run does not end strictly before its
// falling run begins. The gold data has to be fixed; there is no recovery.
type MultiPeakCentroidError struct {
	// Type is the annotation type whose gold data is multi-peaked.
	Type string

	// Centroid is a printable rendering of the offending centroid.
	Centroid string
}

// Error implements the error interface for MultiPeakCentroidError.
func (e *MultiPeakCentroidError) Error() string {
	return fmt.Sprintf("type %q: %v: %s", e.Type, ErrMultiPeakCentroid, e.Centroid)
}

// Unwrap returns ErrMultiPeakCentroid so callers can match with errors.Is.
func (e *MultiPeakCentroidError) Unwrap() error { return ErrMultiPeakCentroid }

// AnnotationError points at a rejected annotation inside an input batch.
type AnnotationError struct {
	// Index is the position of the annotation in the caller's slice.
	Index int

	// Annotation is the rejected value.
	Annotation Annotation

	// Err is the validation failure.
	Err error
}

// Error implements the error interface for AnnotationError.
func (e *AnnotationError) Error() string {
	return fmt.Sprintf("annotation %d (%s): %v", e.Index, e.Annotation, e.Err)
}

// Unwrap returns the underlying validation error.
func (e *AnnotationError) Unwrap() error { return e.Err }

// ValidateAnnotations checks every annotation and returns an
// *AnnotationError for the first invalid one.
func ValidateAnnotations(anns []Annotation) error {
	for i, a := range anns {
		if err := a.Validate(); err != nil {
			return &AnnotationError{Index: i, Annotation: a, Err: err}
		}
	}
	return nil
}

// ValidationError represents an error that occurred during validation.
// It can contain multiple validation failures.
type ValidationError struct {
	// Entity is the name of the entity that failed validation.
	Entity string

	// Errors contains the list of validation error messages.
	Errors []string
}

// Error implements the error interface for ValidationError.
func (e *ValidationError) Error() string {
	if len(e.Errors) == 1 {
		return fmt.Sprintf("validation error for %s: %s", e.Entity, e.Errors[0])
	}
	return fmt.Sprintf("validation errors for %s: %v", e.Entity, e.Errors)
}

// AddError adds a new error message to the validation error.
func (e *ValidationError) AddError(msg string) { e.Errors = append(e.Errors, msg) }

// HasErrors returns true if there are any validation errors.
func (e *ValidationError) HasErrors() bool { return len(e.Errors) > 0 }

// NewValidationError creates a new ValidationError for the given entity.
func NewValidationError(entity string) *ValidationError {
	return &ValidationError{
		Entity: entity,
		Errors: make([]string, 0),
	}
}
