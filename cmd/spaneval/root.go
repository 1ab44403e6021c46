package main

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/ahrav/go-spaneval/infrastructure/units"
	"github.com/ahrav/go-spaneval/internal/ports"
)

// version is set at build time via -ldflags.
var version = "dev"

// cli holds state shared by subcommands once the persistent flags are
// parsed.
type cli struct {
	logLevel string
	logger   *slog.Logger
}

func (c *cli) deps(metrics ports.MetricsCollector) units.Dependencies {
	return units.Dependencies{Metrics: metrics, Logger: c.logger}
}

func newRootCmd() *cobra.Command {
	c := &cli{}
	root := &cobra.Command{
		Use:   "spaneval",
		Short: "Centroid-based evaluation of predicted annotation spans",
		Long: "spaneval scores predicted spans against gold annotations that overlap.\n" +
			"Gold spans vote on the offsets they cover and every contiguous rise and\n" +
			"fall of votes forms a centroid that predictions are matched against.",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		CompletionOptions: cobra.CompletionOptions{
			HiddenDefaultCmd: true,
		},
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			logger, err := newLogger(c.logLevel, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			c.logger = logger
			return nil
		},
	}
	root.PersistentFlags().StringVar(&c.logLevel, "log-level", "warn", "Log level: debug, info, warn or error")

	root.AddCommand(
		newUnitsCmd(c),
		newValidateCmd(c),
		newEvalCmd(c),
		newCorpusCmd(),
		newVersionCmd(),
	)
	return root
}

func newLogger(level string, w io.Writer) (*slog.Logger, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return nil, fmt.Errorf("invalid --log-level %q: %w", level, err)
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: lvl})), nil
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the spaneval version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "spaneval %s\n", version)
		},
	}
}
