// spaneval evaluates predicted annotation spans against overlapping gold
// annotations using evaluation graphs defined in YAML.
//
// Usage:
//
//	spaneval units
//	spaneval validate <graph.yaml>...
//	spaneval eval --graph <graph.yaml> --data <data.json> [--sets] [--metrics]
//	spaneval corpus [--seed=N] [-o data.json]
//	spaneval version
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		stop()
		os.Exit(1)
	}
}
