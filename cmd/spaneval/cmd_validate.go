package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ahrav/go-spaneval/internal/application"
	"github.com/ahrav/go-spaneval/internal/ports"
)

func newValidateCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "validate <graph.yaml>...",
		Short: "Load graph configs and print their execution order",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			loader, err := application.NewGraphLoader(
				application.NewDefaultUnitRegistry(c.deps(ports.NopMetrics{})),
				application.WithLogger(c.logger),
			)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			failed := 0
			for _, path := range args {
				graph, err := loader.LoadFromFile(cmd.Context(), path)
				if err != nil {
					failed++
					fmt.Fprintf(out, "FAIL %s: %v\n", path, err)
					continue
				}
				order, err := graph.TopologicalSort()
				if err != nil {
					failed++
					fmt.Fprintf(out, "FAIL %s: %v\n", path, err)
					continue
				}
				ids := make([]string, len(order))
				for i, n := range order {
					ids[i] = n.ID()
				}
				fmt.Fprintf(out, "ok   %s: %s\n", path, strings.Join(ids, " -> "))
			}

			if failed > 0 {
				return fmt.Errorf("%d of %d graphs invalid", failed, len(args))
			}
			return nil
		},
	}
}
