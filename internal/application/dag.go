package application

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"runtime"
	"slices"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/ahrav/go-spaneval/internal/domain"
	"github.com/ahrav/go-spaneval/internal/ports"
)

var (
	_ ports.Pipeline = (*Pipeline)(nil)
	_ ports.Layer    = (*Layer)(nil)
	_ ports.Graph    = (*Graph)(nil)
)

// Pipeline runs executables in strict order, feeding each one the state
// returned by the previous one. A typical pipeline normalizes labels,
// matches spans and then scores the result.
type Pipeline struct {
	id          string
	executables []ports.Executable
	// idSet tracks executable IDs for O(1) duplicate detection.
	idSet map[string]struct{}
	mu    sync.RWMutex
}

// NewPipeline creates an empty pipeline.
func NewPipeline(id string) *Pipeline {
	return &Pipeline{
		id:          id,
		executables: make([]ports.Executable, 0),
		idSet:       make(map[string]struct{}),
	}
}

// Execute runs the pipeline members in order. It stops at the first
// failure or when ctx is cancelled between members, returning the last
// successfully produced state.
func (p *Pipeline) Execute(ctx context.Context, state domain.State) (domain.State, error) {
	executables := p.Executables()

	currentState := state
	for _, exec := range executables {
		if err := ctx.Err(); err != nil {
			return currentState, err
		}
		newState, err := exec.Execute(ctx, currentState)
		if err != nil {
			return currentState, fmt.Errorf("pipeline %s: execution failed at %s: %w", p.id, exec.ID(), err)
		}
		currentState = newState
	}

	return currentState, nil
}

// ID returns the pipeline identifier.
func (p *Pipeline) ID() string { return p.id }

// Add appends an executable to the pipeline. It returns an error if exec
// is nil or its ID is already present. Add is safe for concurrent use
// with Execute.
func (p *Pipeline) Add(exec ports.Executable) error {
	if exec == nil {
		return fmt.Errorf("cannot add nil executable to pipeline")
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	execID := exec.ID()
	if _, exists := p.idSet[execID]; exists {
		return fmt.Errorf("executable with ID %s already exists in pipeline", execID)
	}

	p.executables = append(p.executables, exec)
	p.idSet[execID] = struct{}{}
	return nil
}

// Executables returns a copy of the pipeline members in execution order.
func (p *Pipeline) Executables() []ports.Executable {
	p.mu.RLock()
	defer p.mu.RUnlock()

	return slices.Clone(p.executables)
}

// Layer runs independent executables concurrently against the same input
// state and merges their outputs. Members typically write different keys,
// for example several scoring units reading one set of partitions.
type Layer struct {
	id          string
	executables []ports.Executable
	idSet       map[string]struct{}
	// mergeStrategy defaults to KeyMergeStrategy when nil.
	mergeStrategy ports.MergeStrategy
	// concurrencyLimit defaults to runtime.NumCPU() * 2 when not positive.
	concurrencyLimit int
	mu               sync.RWMutex
}

// NewLayer creates an empty layer.
func NewLayer(id string) *Layer {
	return &Layer{
		id:               id,
		executables:      make([]ports.Executable, 0),
		idSet:            make(map[string]struct{}),
		concurrencyLimit: runtime.NumCPU() * 2,
	}
}

// Execute runs every member with bounded parallelism. All members run to
// completion even if some fail; every failure is reported in the returned
// error, in member order. On failure the input state is returned.
//
// Member outputs are passed to the merge strategy in member order, so the
// merged state does not depend on scheduling.
func (l *Layer) Execute(ctx context.Context, state domain.State) (domain.State, error) {
	l.mu.RLock()
	executables := slices.Clone(l.executables)
	limit := l.concurrencyLimit
	strategy := l.mergeStrategy
	l.mu.RUnlock()

	if len(executables) == 0 {
		return state, nil
	}
	if limit <= 0 {
		limit = runtime.NumCPU() * 2
	}
	if strategy == nil {
		strategy = KeyMergeStrategy{}
	}

	states := make([]domain.State, len(executables))
	errs := make([]error, len(executables))

	var g errgroup.Group
	g.SetLimit(limit)
	for i, exec := range executables {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				errs[i] = fmt.Errorf("executable %s: %w", exec.ID(), err)
				return nil
			}
			newState, err := exec.Execute(ctx, state)
			if err != nil {
				errs[i] = fmt.Errorf("executable %s: %w", exec.ID(), err)
				return nil
			}
			states[i] = newState
			return nil
		})
	}
	_ = g.Wait()

	if err := errors.Join(errs...); err != nil {
		failed := 0
		for _, e := range errs {
			if e != nil {
				failed++
			}
		}
		return state, fmt.Errorf("layer %s failed with %d errors: %w", l.id, failed, err)
	}

	mergedState, err := strategy.Merge(state, states)
	if err != nil {
		return state, fmt.Errorf("layer %s: merge failed: %w", l.id, err)
	}

	return mergedState, nil
}

// ID returns the layer identifier.
func (l *Layer) ID() string { return l.id }

// Add includes an executable in the layer. It returns an error if exec is
// nil or its ID is already present.
func (l *Layer) Add(exec ports.Executable) error {
	if exec == nil {
		return fmt.Errorf("cannot add nil executable to layer")
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	execID := exec.ID()
	if _, exists := l.idSet[execID]; exists {
		return fmt.Errorf("executable with ID %s already exists in layer", execID)
	}

	l.executables = append(l.executables, exec)
	l.idSet[execID] = struct{}{}
	return nil
}

// Executables returns a copy of the layer members in the order they were
// added.
func (l *Layer) Executables() []ports.Executable {
	l.mu.RLock()
	defer l.mu.RUnlock()

	return slices.Clone(l.executables)
}

// SetMergeStrategy configures how member outputs are combined.
func (l *Layer) SetMergeStrategy(strategy ports.MergeStrategy) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.mergeStrategy = strategy
}

// SetConcurrencyLimit bounds the number of members running at once. A
// non-positive limit restores the default of runtime.NumCPU() * 2.
func (l *Layer) SetConcurrencyLimit(limit int) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.concurrencyLimit = limit
}

// Graph is a directed acyclic graph of executables. Edges are checked for
// cycles as they are added, so a Graph is always acyclic.
type Graph struct {
	nodes map[string]ports.Executable
	// edges is the adjacency list: node ID -> target IDs in insertion order.
	edges map[string][]string
	// edgeSet keys are "sourceID->targetID".
	edgeSet  map[string]struct{}
	inDegree map[string]int
	mu       sync.RWMutex
}

// NewGraph creates an empty graph.
func NewGraph() *Graph {
	return &Graph{
		nodes:    make(map[string]ports.Executable),
		edges:    make(map[string][]string),
		edgeSet:  make(map[string]struct{}),
		inDegree: make(map[string]int),
	}
}

// AddNode registers exec under its ID. It returns an error if exec is nil
// or the ID is taken.
func (g *Graph) AddNode(exec ports.Executable) error {
	if exec == nil {
		return fmt.Errorf("cannot add nil executable to graph")
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	id := exec.ID()
	if _, exists := g.nodes[id]; exists {
		return fmt.Errorf("node with ID %s already exists in graph", id)
	}

	g.nodes[id] = exec
	g.edges[id] = make([]string, 0)
	g.inDegree[id] = 0

	return nil
}

// AddEdge makes targetID run after sourceID. The edge is rolled back and
// an error returned if it would create a cycle.
func (g *Graph) AddEdge(sourceID, targetID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, exists := g.nodes[sourceID]; !exists {
		return fmt.Errorf("source node %s does not exist", sourceID)
	}
	if _, exists := g.nodes[targetID]; !exists {
		return fmt.Errorf("target node %s does not exist", targetID)
	}

	edgeKey := sourceID + "->" + targetID
	if _, exists := g.edgeSet[edgeKey]; exists {
		return fmt.Errorf("edge from %s to %s already exists", sourceID, targetID)
	}

	g.edges[sourceID] = append(g.edges[sourceID], targetID)
	g.edgeSet[edgeKey] = struct{}{}
	g.inDegree[targetID]++

	if g.hasCycleUnsafe() {
		g.edges[sourceID] = g.edges[sourceID][:len(g.edges[sourceID])-1]
		delete(g.edgeSet, edgeKey)
		g.inDegree[targetID]--
		return fmt.Errorf("adding edge from %s to %s would create a cycle", sourceID, targetID)
	}

	return nil
}

// TopologicalSort returns the nodes in dependency order using Kahn's
// algorithm. Among nodes that are ready at the same time, the one with the
// smallest ID comes first, so the order is stable across runs.
func (g *Graph) TopologicalSort() ([]ports.Executable, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	return g.topologicalSortUnsafe()
}

func (g *Graph) topologicalSortUnsafe() ([]ports.Executable, error) {
	inDegree := make(map[string]int, len(g.inDegree))
	ready := make([]string, 0)
	for id, degree := range g.inDegree {
		inDegree[id] = degree
		if degree == 0 {
			ready = append(ready, id)
		}
	}
	slices.Sort(ready)

	result := make([]ports.Executable, 0, len(g.nodes))
	for len(ready) > 0 {
		nodeID := ready[0]
		ready = ready[1:]
		result = append(result, g.nodes[nodeID])

		released := false
		for _, neighbor := range g.edges[nodeID] {
			inDegree[neighbor]--
			if inDegree[neighbor] == 0 {
				ready = append(ready, neighbor)
				released = true
			}
		}
		if released {
			slices.Sort(ready)
		}
	}

	if len(result) != len(g.nodes) {
		return nil, fmt.Errorf("graph contains a cycle")
	}

	return result, nil
}

// Execute runs every node in topological order, threading one state
// through all of them. It stops at the first failing node.
func (g *Graph) Execute(ctx context.Context, state domain.State) (domain.State, error) {
	order, err := g.TopologicalSort()
	if err != nil {
		return state, err
	}

	current := state
	for _, node := range order {
		if err := ctx.Err(); err != nil {
			return current, err
		}
		next, err := node.Execute(ctx, current)
		if err != nil {
			return current, fmt.Errorf("node %s: %w", node.ID(), err)
		}
		current = next
	}
	return current, nil
}

// HasCycle reports whether the graph contains a circular dependency.
func (g *Graph) HasCycle() bool {
	g.mu.RLock()
	defer g.mu.RUnlock()

	return g.hasCycleUnsafe()
}

// hasCycleUnsafe runs a three-color DFS. The caller must hold g.mu.
func (g *Graph) hasCycleUnsafe() bool {
	const (
		white = iota
		gray
		black
	)
	colors := make(map[string]int, len(g.nodes))

	var dfs func(nodeID string) bool
	dfs = func(nodeID string) bool {
		colors[nodeID] = gray
		for _, neighbor := range g.edges[nodeID] {
			switch colors[neighbor] {
			case gray:
				return true
			case white:
				if dfs(neighbor) {
					return true
				}
			}
		}
		colors[nodeID] = black
		return false
	}

	for id := range g.nodes {
		if colors[id] == white && dfs(id) {
			return true
		}
	}

	return false
}

// GetNode returns the executable registered under id.
func (g *Graph) GetNode(id string) (ports.Executable, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	exec, exists := g.nodes[id]
	return exec, exists
}

// KeyMergeStrategy overlays, key by key, every value a layer member
// changed relative to the layer's input state. When two members write the
// same key, the member added later wins.
type KeyMergeStrategy struct{}

// Merge implements ports.MergeStrategy.
func (KeyMergeStrategy) Merge(baseState domain.State, states []domain.State) (domain.State, error) {
	if len(states) == 0 {
		return baseState, nil
	}

	updates := make(map[string]any)
	for _, s := range states {
		for _, key := range s.Keys() {
			value, _ := s.GetRaw(key)
			if old, ok := baseState.GetRaw(key); ok && reflect.DeepEqual(old, value) {
				continue
			}
			updates[key] = value
		}
	}
	return baseState.WithMultiple(updates), nil
}
