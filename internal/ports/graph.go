package ports

import (
	"context"

	"github.com/ahrav/go-spaneval/internal/domain"
)

// MergeStrategy combines the states produced by the parallel members of a
// layer into a single output state.
type MergeStrategy interface {
	// Merge combines states into one. baseState is the state the layer
	// received; states holds the outputs of every member that succeeded, in
	// member order. Implementations must be deterministic and must not
	// modify their inputs.
	Merge(baseState domain.State, states []domain.State) (domain.State, error)
}

// Executable is a node of an evaluation graph: a single unit, a pipeline
// of units, or a layer of units run in parallel.
type Executable interface {
	// Execute runs the node against state and returns the resulting state.
	// Execute must be safe for concurrent use on different states.
	//
	// The input state is shared and MUST NOT be modified. domain.State is
	// copy-on-write; use state.With or state.WithMultiple to derive a new
	// one.
	Execute(ctx context.Context, state domain.State) (domain.State, error)

	// ID returns the identifier of the node, unique within its graph.
	ID() string
}

// Pipeline runs its executables in order, feeding each one the state
// returned by the previous one.
type Pipeline interface {
	Executable

	// Add appends exec to the pipeline. It fails if an executable with the
	// same ID is already present.
	Add(exec Executable) error

	// Executables returns the pipeline members in execution order.
	// The returned slice should not be modified by callers.
	Executables() []Executable
}

// Layer runs its executables concurrently against the same input state and
// merges their outputs.
type Layer interface {
	Executable

	// Add includes exec in the layer. It fails if an executable with the
	// same ID is already present.
	Add(exec Executable) error

	// Executables returns the layer members in the order they were added.
	// The returned slice should not be modified by callers.
	Executables() []Executable

	// SetMergeStrategy configures how member outputs are combined.
	// It must be called before Execute.
	SetMergeStrategy(strategy MergeStrategy)
}

// Graph is a directed acyclic graph of executables. An edge from A to B
// means B runs after A and receives the state A produced.
type Graph interface {
	// AddNode registers exec under its ID.
	AddNode(exec Executable) error

	// AddEdge makes targetID depend on sourceID. It fails if either node is
	// missing, the edge exists, or the edge would close a cycle.
	AddEdge(sourceID, targetID string) error

	// TopologicalSort returns the nodes in an order where every dependency
	// precedes its dependents.
	TopologicalSort() ([]Executable, error)

	// HasCycle reports whether the graph contains a circular dependency.
	HasCycle() bool

	// GetNode returns the executable registered under id.
	//
	// WARNING: the returned Executable is the instance stored in the graph
	// and must be treated as read-only.
	GetNode(id string) (Executable, bool)

	// Execute runs every node in topological order, threading state
	// through them.
	Execute(ctx context.Context, state domain.State) (domain.State, error)
}
