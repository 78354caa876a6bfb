package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"therapist-effects/domain/core"
	"therapist-effects/internal/container"
	"therapist-effects/internal/profiling"
)

func newShapeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "shape [main|ci]",
		Short: "Skewness, kurtosis and normality of cached sampling distributions",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name, err := core.ParseStudyName(args[0])
			if err != nil {
				return err
			}
			return withContainer(cmd.Context(), func(c *container.Container) error {
				artifact, err := c.Catalog.Results(cmd.Context(), c.Driver, name)
				if err != nil {
					return err
				}
				if len(artifact.Result.Estimates) == 0 {
					return fmt.Errorf("study %s was run without per-replicate estimates", name)
				}

				w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
				fmt.Fprintln(w, "model\tparameter\tn\tmean\tsd\tskew\tkurt\tnormal p\toutliers")
				for _, s := range profiling.AnalyzeEstimates(artifact.Result.Estimates) {
					fmt.Fprintf(w, "%s\t%s\t%d\t%.4f\t%.4f\t%.3f\t%.3f\t%.3f\t%d\n",
						s.Model, s.Parameter, s.N, s.Mean, s.StdDev, s.Skewness, s.Kurtosis, s.NormalP, s.Outliers)
				}
				return w.Flush()
			})
		},
	}
}
