package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ahrav/go-spaneval/internal/application"
	"github.com/ahrav/go-spaneval/internal/ports"
)

func newUnitsCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "units",
		Short: "List the unit types a graph may use",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			registry := application.NewDefaultUnitRegistry(c.deps(ports.NopMetrics{}))
			for _, t := range registry.GetSupportedTypes() {
				fmt.Fprintln(cmd.OutOrStdout(), t)
			}
		},
	}
}
