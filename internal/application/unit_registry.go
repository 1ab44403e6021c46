package application

import (
	"fmt"
	"maps"
	"slices"
	"sync"

	"github.com/ahrav/go-spaneval/infrastructure/units"
	"github.com/ahrav/go-spaneval/internal/ports"
)

var _ ports.UnitRegistry = (*DefaultUnitRegistry)(nil)

// DefaultUnitRegistry maps unit type names to factories. Built-in factories
// receive the registry's Dependencies, so every unit it creates logs to the
// same logger and records to the same metrics collector.
type DefaultUnitRegistry struct {
	factories map[string]ports.UnitFactory
	deps      units.Dependencies
	mu        sync.RWMutex
}

// NewDefaultUnitRegistry creates a registry with the built-in unit types
// registered: centroid_match, exact_match, label_normalize and span_score.
func NewDefaultUnitRegistry(deps units.Dependencies) *DefaultUnitRegistry {
	r := &DefaultUnitRegistry{
		factories: make(map[string]ports.UnitFactory),
		deps:      deps,
	}
	r.registerBuiltinFactories()
	return r
}

type depsFactory func(id string, config map[string]any, deps units.Dependencies) (ports.Unit, error)

func (r *DefaultUnitRegistry) registerBuiltinFactories() {
	builtins := map[string]depsFactory{
		"centroid_match":  units.NewCentroidMatchFromConfig,
		"exact_match":     units.NewExactMatchFromConfig,
		"label_normalize": units.NewLabelNormalizeFromConfig,
		"span_score":      units.NewSpanScoreFromConfig,
	}

	deps := r.deps
	for name, build := range builtins {
		r.factories[name] = func(id string, config map[string]any) (ports.Unit, error) {
			return build(id, config, deps)
		}
	}
}

// CreateUnit builds a unit of the given type. A nil config is treated as
// empty.
func (r *DefaultUnitRegistry) CreateUnit(unitType, id string, config map[string]any) (ports.Unit, error) {
	r.mu.RLock()
	factory, exists := r.factories[unitType]
	r.mu.RUnlock()

	if !exists {
		return nil, fmt.Errorf("%w: %s", ports.ErrUnsupportedUnitType, unitType)
	}
	if id == "" {
		return nil, fmt.Errorf("unit ID cannot be empty")
	}
	if config == nil {
		config = make(map[string]any)
	}

	unit, err := factory(id, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create unit %s of type %s: %w", id, unitType, err)
	}

	return unit, nil
}

// RegisterUnitFactory adds or replaces the factory for unitType.
func (r *DefaultUnitRegistry) RegisterUnitFactory(unitType string, factory ports.UnitFactory) error {
	if unitType == "" {
		return fmt.Errorf("unit type cannot be empty")
	}
	if factory == nil {
		return fmt.Errorf("factory function cannot be nil")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.factories[unitType] = factory
	return nil
}

// GetSupportedTypes returns the registered unit types in sorted order.
func (r *DefaultUnitRegistry) GetSupportedTypes() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return slices.Sorted(maps.Keys(r.factories))
}
