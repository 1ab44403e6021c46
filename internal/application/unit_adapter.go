package application

import (
	"context"

	"github.com/ahrav/go-spaneval/internal/domain"
	"github.com/ahrav/go-spaneval/internal/ports"
)

var _ ports.Executable = (*UnitAdapter)(nil)

// UnitAdapter lets a ports.Unit take part in pipelines, layers and graphs
// by giving it the ID it was declared under in the graph config.
type UnitAdapter struct {
	unit ports.Unit
	id   string
}

// NewUnitAdapter wraps unit as an executable named id.
func NewUnitAdapter(unit ports.Unit, id string) *UnitAdapter {
	return &UnitAdapter{
		unit: unit,
		id:   id,
	}
}

// Execute delegates to the wrapped unit.
func (ua *UnitAdapter) Execute(ctx context.Context, state domain.State) (domain.State, error) {
	return ua.unit.Execute(ctx, state)
}

// ID returns the graph identifier of the unit.
func (ua *UnitAdapter) ID() string { return ua.id }

// Unit returns the wrapped unit.
func (ua *UnitAdapter) Unit() ports.Unit { return ua.unit }
