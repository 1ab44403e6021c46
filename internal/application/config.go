// Package application loads graph configurations and runs span evaluation
// units as pipelines, layers and DAGs.
package application

import (
	"time"

	"gopkg.in/yaml.v3"
)

// GraphConfig is the root of a graph YAML file. It names the span
// evaluation units to instantiate and wires them into pipelines, layers
// and edges.
type GraphConfig struct {
	// Version specifies the configuration schema version using semantic
	// versioning to ensure compatibility across system updates.
	Version string `yaml:"version" validate:"required,semver"`
	// Metadata contains descriptive information about the evaluation graph
	// including name, tags, and labels for organization and discovery.
	Metadata Metadata `yaml:"metadata" validate:"required"`
	// Units defines the individual evaluation components that will execute
	// within this graph, each with their own configuration and constraints.
	Units []UnitConfig `yaml:"units" validate:"required,min=1,dive"`
	// Graph specifies the execution topology that determines how units
	// are connected and the order in which they execute.
	Graph GraphTopology `yaml:"graph" validate:"required"`
}

// Metadata describes an evaluation graph for operators and tooling.
type Metadata struct {
	// Name is the human-readable identifier for this evaluation graph
	// and must be unique within the deployment scope.
	Name string `yaml:"name" validate:"required,min=1,max=255"`
	// Description provides a detailed explanation of the graph's purpose
	// and intended use cases for documentation and discovery.
	Description string `yaml:"description" validate:"max=1000"`
	// Tags are categorical labels that enable filtering and grouping
	// of graphs by functional domain or operational characteristics.
	Tags []string `yaml:"tags" validate:"max=20,dive,min=1,max=50"`
	// Labels are arbitrary key-value pairs that provide flexible metadata
	// for integration with external systems and custom categorization.
	Labels map[string]string `yaml:"labels" validate:"max=50"`
}

// UnitConfig describes a single evaluation unit
// within an evaluation graph, including its behavior and execution limits.
// Use UnitConfig to define atomic evaluation components that can be
// composed into complex evaluation workflows.
type UnitConfig struct {
	// ID is the unique identifier for this unit within the graph
	// and must be alphanumeric for safe referencing in topologies.
	ID string `yaml:"id" validate:"required,alphanum,min=1,max=100"`
	// Type specifies the evaluation unit implementation to instantiate,
	// determining the available parameters and execution behavior.
	Type string `yaml:"type" validate:"required,oneof=centroid_match exact_match label_normalize span_score custom"`
	// Parameters contains type-specific configuration as flexible YAML
	// that will be validated according to the unit type requirements.
	Parameters yaml.Node `yaml:"parameters"`
	// Timeout bounds the execution time of the unit.
	Timeout TimeoutConfig `yaml:"timeout"`
	// OrderCheck runs a matching unit a second time on the reversed
	// predictions and fails the run if the outcome counts change.
	OrderCheck bool `yaml:"order_check"`
}

// TimeoutConfig controls execution time limits for evaluation units.
type TimeoutConfig struct {
	// ExecutionTimeout specifies the maximum time in seconds that a unit
	// is allowed to execute before its context is cancelled. Zero means
	// no limit beyond the caller's context.
	ExecutionTimeout int `yaml:"execution_timeout_seconds" validate:"omitempty,min=1,max=3600"`
}

// Duration returns the execution timeout as a time.Duration.
func (tc TimeoutConfig) Duration() time.Duration {
	return time.Duration(tc.ExecutionTimeout) * time.Second
}

// GraphTopology specifies how units are grouped and ordered. Units that
// appear in no pipeline or layer become standalone graph nodes.
type GraphTopology struct {
	// Pipelines define sequential execution chains where units execute
	// in strict order, with each unit's output feeding to the next.
	Pipelines []PipelineConfig `yaml:"pipelines" validate:"dive"`
	// Layers define parallel execution groups where multiple units
	// can execute simultaneously to improve overall throughput.
	Layers []LayerConfig `yaml:"layers" validate:"dive"`
	// Edges specify directed connections between units, pipelines, and
	// layers, including conditional logic that controls execution flow.
	Edges []EdgeConfig `yaml:"edges" validate:"dive"`
}

// PipelineConfig defines a sequential execution chain where units
// execute in strict order with data flowing from one unit to the next.
// Use PipelineConfig when evaluation logic requires specific sequencing
// or when units have data dependencies that must be respected.
type PipelineConfig struct {
	// ID is the unique identifier for this pipeline within the graph
	// topology, used for referencing in edges and execution planning.
	ID string `yaml:"id" validate:"required,alphanum,min=1,max=100"`
	// Units lists the evaluation unit IDs in execution order, where
	// each unit's output becomes available to the subsequent unit.
	Units []string `yaml:"units" validate:"required,min=1,dive,alphanum"`
}

// LayerConfig defines a parallel execution group where multiple units
// execute simultaneously to improve throughput and reduce total runtime.
// Use LayerConfig when units are independent and can benefit from
// concurrent execution without data dependencies between them.
type LayerConfig struct {
	// ID is the unique identifier for this layer within the graph
	// topology, used for referencing in edges and execution coordination.
	ID string `yaml:"id" validate:"required,alphanum,min=1,max=100"`
	// Units lists the evaluation unit IDs that will execute in parallel,
	// with a minimum of two units required to justify layer overhead.
	Units []string `yaml:"units" validate:"required,min=2,dive,alphanum"`
	// MaxConcurrency bounds how many members run at once. Zero keeps the
	// layer default.
	MaxConcurrency int `yaml:"max_concurrency" validate:"min=0,max=1024"`
}

// EdgeConfig establishes a directed connection between execution nodes
// in the graph topology, optionally including conditional logic that
// controls when the connection is activated.
// Use EdgeConfig to define execution dependencies and implement
// branching logic based on evaluation results or system state.
type EdgeConfig struct {
	// From identifies the source node (unit, pipeline, or layer) that
	// must complete before the target node can begin execution.
	From string `yaml:"from" validate:"required,alphanum"`
	// To identifies the target node that will receive control flow
	// and potentially data from the source node upon completion.
	To string `yaml:"to" validate:"required,alphanum"`
	// Conditions define optional logical predicates that must evaluate
	// to true for this edge to be traversed during execution.
	Conditions []ConditionConfig `yaml:"conditions" validate:"dive"`
}

// ConditionConfig specifies logical predicates that control edge traversal
// and execution flow within the evaluation graph topology.
// Use ConditionConfig to implement branching logic based on score report
// values or custom rules.
type ConditionConfig struct {
	// Type specifies the condition evaluation strategy, determining
	// how the parameters will be interpreted and evaluated.
	Type string `yaml:"type" validate:"required,oneof=score_threshold custom"`
	// Parameters contains condition-specific configuration as flexible
	// YAML that will be validated according to the condition type.
	Parameters yaml.Node `yaml:"parameters"`
}
