// Package ports defines the core interfaces that form the contract between
// the domain/application layers and the infrastructure layer.
// These interfaces enable dependency inversion and make the system testable.
package ports

import (
	"context"

	"github.com/ahrav/go-spaneval/internal/domain"
)

// Unit represents the fundamental building block of the evaluation pipeline.
// Each Unit performs a specific transformation on the evaluation State,
// such as matching predicted spans against gold spans or turning match
// results into scores.
// Units should be stateless and thread-safe for concurrent execution.
type Unit interface {
	// Name returns a unique identifier for this unit.
	// The name is used for logging, tracing, and configuration.
	Name() string

	// Execute performs the unit's transformation on the provided State.
	// It returns a new State containing the results of the transformation.
	// The original State must not be modified.
	// Any errors during execution should be returned rather than panicking.
	//
	// The context parameter allows for cancellation and deadline propagation.
	// Units should respect context cancellation and return promptly.
	//
	// Example:
	//
	//	newState, err := unit.Execute(ctx, state)
	//	if err != nil {
	//	    return domain.State{}, fmt.Errorf("unit %s failed: %w", unit.Name(), err)
	//	}
	Execute(ctx context.Context, state domain.State) (domain.State, error)

	// Validate checks if the unit is properly configured and ready for execution.
	// It is typically called during graph construction.
	// Return nil if validation passes, or an error describing what is invalid.
	Validate() error
}

// UnitFactory creates a configured Unit from its graph identifier and the
// decoded parameters of its YAML definition.
type UnitFactory func(id string, config map[string]any) (Unit, error)

// UnitRegistry resolves unit type names to factories.
// Implementations must be safe for concurrent use.
type UnitRegistry interface {
	// CreateUnit builds a unit of the given registered type.
	// It returns an error if the type is unknown or the factory rejects
	// the configuration.
	CreateUnit(unitType, id string, config map[string]any) (Unit, error)

	// RegisterUnitFactory adds or replaces the factory for unitType.
	RegisterUnitFactory(unitType string, factory UnitFactory) error

	// GetSupportedTypes lists the registered unit types in sorted order.
	GetSupportedTypes() []string
}
