package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/ahrav/go-spaneval/internal/testutils"
)

func newCorpusCmd() *cobra.Command {
	cfg := testutils.DefaultCorpusConfig()
	var (
		seed   int64
		output string
	)

	cmd := &cobra.Command{
		Use:   "corpus",
		Short: "Generate a synthetic gold and prediction dataset",
		Long: "corpus writes a reproducible dataset of single-peaked gold clusters and\n" +
			"jittered predictions in the format eval reads.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			corpus := testutils.GenerateCorpus(cfg, seed)
			ds := dataset{Gold: corpus.Gold, Predictions: corpus.Predictions}

			var w io.Writer = cmd.OutOrStdout()
			if output != "" && output != "-" {
				f, err := os.Create(output)
				if err != nil {
					return fmt.Errorf("create %s: %w", output, err)
				}
				defer f.Close()
				w = f
			}
			if err := writeJSON(w, ds); err != nil {
				return fmt.Errorf("write dataset: %w", err)
			}
			if w != cmd.OutOrStdout() {
				fmt.Fprintf(cmd.ErrOrStderr(), "wrote %d gold and %d predicted spans to %s\n",
					len(ds.Gold), len(ds.Predictions), output)
			}
			return nil
		},
	}

	f := cmd.Flags()
	f.Int64Var(&seed, "seed", 1, "Random seed")
	f.StringSliceVar(&cfg.Types, "types", cfg.Types, "Annotation types to generate")
	f.IntVar(&cfg.Clusters, "clusters", cfg.Clusters, "Gold clusters per type")
	f.IntVar(&cfg.SpansPerCluster, "spans", cfg.SpansPerCluster, "Overlapping gold spans per cluster")
	f.IntVar(&cfg.MaxReach, "reach", cfg.MaxReach, "Maximum distance of a span boundary from its cluster pivot")
	f.IntVar(&cfg.Jitter, "jitter", cfg.Jitter, "Maximum boundary shift applied to predictions")
	f.IntVar(&cfg.Noise, "noise", cfg.Noise, "Random predictions added per type")
	f.StringVarP(&output, "output", "o", "", "Output file (default stdout)")
	return cmd
}
