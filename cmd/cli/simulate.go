package main

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"therapist-effects/domain/core"
	"therapist-effects/domain/run"
	"therapist-effects/internal/container"
)

func newSimulateCmd() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "simulate [main|ci ...]",
		Short: "Run simulation studies, reusing cached results",
		Long: `Run the confounding-bias study (main) and/or the interval coverage
study (ci). A study whose configuration is already cached is not recomputed
unless --force is given.

Example: therapist-effects simulate main ci`,
		ValidArgs: []string{"main", "bias", "confounding", "ci", "coverage"},
		RunE: func(cmd *cobra.Command, args []string) error {
			names, err := studyNames(args)
			if err != nil {
				return err
			}
			return withContainer(cmd.Context(), func(c *container.Container) error {
				for _, name := range names {
					study, err := c.Catalog.Study(name)
					if err != nil {
						return err
					}
					if force {
						if err := c.Driver.Invalidate(cmd.Context(), study.Config); err != nil && !core.IsCacheMiss(err) {
							return err
						}
					}
					artifact, err := c.Driver.Run(cmd.Context(), study)
					if err != nil {
						return fmt.Errorf("study %s: %w", name, err)
					}
					printSummary(cmd.OutOrStdout(), artifact)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "replicates simulated this run: %d\n", c.Driver.Simulated())
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Discard cached results and recompute")
	return cmd
}

// studyNames maps CLI arguments onto studies; no arguments selects both
func studyNames(args []string) ([]core.StudyName, error) {
	if len(args) == 0 {
		return []core.StudyName{core.StudyConfounding, core.StudyCoverage}, nil
	}
	names := make([]core.StudyName, 0, len(args))
	for _, arg := range args {
		name, err := core.ParseStudyName(arg)
		if err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, nil
}

func printSummary(out io.Writer, artifact *run.Artifact) {
	fmt.Fprintf(out, "\n%s (%d replicates, hash %s, run %s)\n",
		artifact.Config.Study, artifact.Result.Replicates, core.Hash(artifact.Hash).Short(16), artifact.RunID)

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "model\tparameter\ttrue\tn\tfail\testimate\tbias\trel.bias\tsd\tcoverage\tpower")
	for _, row := range artifact.Result.Rows {
		fmt.Fprintf(w, "%s\t%s\t%.4f\t%d\t%d\t%s\t%s\t%s\t%s\t%s\t%s\n",
			row.Model, row.Parameter, row.TrueValue, row.N, row.Failures,
			optional(row.MeanEstimate), optional(row.Bias), optional(row.RelativeBias),
			optional(row.EmpiricalSD), optional(row.Coverage), optional(row.Power))
	}
	w.Flush()
}
