package main

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"therapist-effects/internal/config"
	"therapist-effects/internal/container"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "therapist-effects",
		Short: "Simulation studies of therapist effects in cluster-randomized trials",
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			// Load .env file if present
			if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
				log.Printf("Warning: could not load .env file: %v", err)
			}
		},
		SilenceUsage: true,
	}

	rootCmd.AddCommand(
		newSimulateCmd(),
		newOverlapCmd(),
		newCurveCmd(),
		newExportCmd(),
		newShapeCmd(),
		newCacheCmd(),
	)
	return rootCmd
}

// withContainer loads configuration, wires the dependencies and runs fn
func withContainer(ctx context.Context, fn func(*container.Container) error) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	c, err := container.New(ctx, cfg)
	if err != nil {
		return err
	}
	defer c.Shutdown(ctx)
	return fn(c)
}

func optional(v *float64) string {
	if v == nil {
		return "-"
	}
	return fmt.Sprintf("%.4f", *v)
}
