package main

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
	"github.com/spf13/cobra"

	"github.com/ahrav/go-spaneval/infrastructure/middleware"
	"github.com/ahrav/go-spaneval/internal/application"
	"github.com/ahrav/go-spaneval/internal/domain"
)

type evalOptions struct {
	graph   string
	data    string
	sets    bool
	metrics bool
}

// evalResult is printed as JSON. Fields the graph did not produce are
// omitted.
type evalResult struct {
	Report       *domain.ScoreReport `json:"report,omitempty"`
	Sets         *domain.EvalSets    `json:"sets,omitempty"`
	LabelMapping map[string]string   `json:"label_mapping,omitempty"`
}

func newEvalCmd(c *cli) *cobra.Command {
	var opts evalOptions
	cmd := &cobra.Command{
		Use:   "eval",
		Short: "Run an evaluation graph over a dataset",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runEval(cmd, c, opts)
		},
	}
	f := cmd.Flags()
	f.StringVar(&opts.graph, "graph", "", "Graph config YAML (required)")
	f.StringVar(&opts.data, "data", "", "Dataset JSON with gold and predictions (required)")
	f.BoolVar(&opts.sets, "sets", false, "Include true/false positive and false negative sets")
	f.BoolVar(&opts.metrics, "metrics", false, "Write Prometheus metrics to stderr after the run")

	_ = cmd.MarkFlagRequired("graph")
	_ = cmd.MarkFlagRequired("data")
	return cmd
}

func runEval(cmd *cobra.Command, c *cli, opts evalOptions) error {
	ds, err := readDataset(opts.data)
	if err != nil {
		return err
	}

	reg := prometheus.NewRegistry()
	metrics := middleware.NewPrometheusMetrics(reg)
	loader, err := application.NewGraphLoader(
		application.NewDefaultUnitRegistry(c.deps(metrics)),
		application.WithMetrics(metrics),
		application.WithLogger(c.logger),
	)
	if err != nil {
		return err
	}
	graph, err := loader.LoadFromFile(cmd.Context(), opts.graph)
	if err != nil {
		return fmt.Errorf("load graph: %w", err)
	}

	state := domain.With(domain.NewState(), domain.KeyGoldAnnotations, ds.Gold)
	state = domain.With(state, domain.KeyPredictions, ds.Predictions)
	state = state.WithExecutionContext(domain.ExecutionContext{
		GraphID:        opts.graph,
		EvaluationType: "span",
		ExecutionID:    uuid.NewString(),
	})

	out, runErr := graph.Execute(cmd.Context(), state)
	if opts.metrics {
		if err := dumpMetrics(cmd, reg); err != nil {
			return err
		}
	}
	if runErr != nil {
		return runErr
	}

	var res evalResult
	if report, ok := domain.Get(out, domain.KeyScoreReport); ok {
		res.Report = &report
	}
	if opts.sets {
		if sets, ok := domain.Get(out, domain.KeyEvalSets); ok {
			res.Sets = &sets
		}
	}
	if mapping, ok := domain.Get(out, domain.KeyLabelMapping); ok && len(mapping) > 0 {
		res.LabelMapping = mapping
	}
	return writeJSON(cmd.OutOrStdout(), res)
}

func dumpMetrics(cmd *cobra.Command, reg *prometheus.Registry) error {
	families, err := reg.Gather()
	if err != nil {
		return fmt.Errorf("gather metrics: %w", err)
	}
	for _, mf := range families {
		if _, err := expfmt.MetricFamilyToText(cmd.ErrOrStderr(), mf); err != nil {
			return fmt.Errorf("write metrics: %w", err)
		}
	}
	return nil
}
