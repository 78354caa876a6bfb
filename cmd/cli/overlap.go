package main

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"therapist-effects/domain/design"
	"therapist-effects/domain/overlap"
)

func newOverlapCmd() *cobra.Command {
	var d, icc float64
	var ate, clusterSD, errorSD float64

	cmd := &cobra.Command{
		Use:   "overlap",
		Short: "Overlap, U3 and probability of superiority of therapist effects",
		Long: `Compute the distribution-overlap effect sizes of the therapist effect
distributions of two arms, either from a standardized effect and ICC or from a
raw effect with the therapist and patient standard deviations.

Example: therapist-effects overlap --d 0.5 --icc 0.05
         therapist-effects overlap --ate 0.8 --cluster-sd 0.35 --error-sd 1.5`,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			if !cmd.Flags().Changed("ate") {
				m, err := overlap.Compute(d, icc)
				if err != nil {
					return err
				}
				printMeasures(out, d, icc, m)
				return nil
			}

			m, err := overlap.ComputeRaw(ate, clusterSD)
			if err != nil {
				return err
			}
			sd, sicc := overlap.Standardize(ate, clusterSD, design.TotalSD(clusterSD, 0, errorSD))
			printMeasures(out, sd, sicc, m)
			return nil
		},
	}

	cmd.Flags().Float64Var(&d, "d", 0.5, "Standardized treatment effect (Cohen's d)")
	cmd.Flags().Float64Var(&icc, "icc", 0.05, "Intra-class correlation of therapists")
	cmd.Flags().Float64Var(&ate, "ate", 0, "Raw treatment effect; selects the raw form")
	cmd.Flags().Float64Var(&clusterSD, "cluster-sd", 0, "Therapist standard deviation (raw form)")
	cmd.Flags().Float64Var(&errorSD, "error-sd", 1.5, "Patient standard deviation (raw form)")
	cmd.MarkFlagsMutuallyExclusive("d", "ate")
	cmd.MarkFlagsMutuallyExclusive("icc", "ate")
	return cmd
}

func newCurveCmd() *cobra.Command {
	var d, from, to, step float64

	cmd := &cobra.Command{
		Use:   "curve",
		Short: "Overlap measures over a grid of ICC values",
		RunE: func(cmd *cobra.Command, args []string) error {
			points, err := overlap.Curve(d, from, to, step)
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "icc\toverlap\tu3\tps")
			for _, p := range points {
				fmt.Fprintf(w, "%.4f\t%.4f\t%.4f\t%.4f\n", p.ICC, p.Overlap, p.U3, p.ProbabilityOfSuperiority)
			}
			return w.Flush()
		},
	}

	cmd.Flags().Float64Var(&d, "d", 0.5, "Standardized treatment effect")
	cmd.Flags().Float64Var(&from, "from", 0.01, "First ICC")
	cmd.Flags().Float64Var(&to, "to", 0.3, "Last ICC")
	cmd.Flags().Float64Var(&step, "step", 0.01, "ICC step")
	return cmd
}

func printMeasures(out io.Writer, d, icc float64, m overlap.Measures) {
	fmt.Fprintf(out, "d                        %.4f\n", d)
	fmt.Fprintf(out, "icc                      %.4f\n", icc)
	fmt.Fprintf(out, "overlap                  %.4f\n", m.Overlap)
	fmt.Fprintf(out, "u3                       %.4f\n", m.U3)
	fmt.Fprintf(out, "probability superiority  %.4f\n", m.ProbabilityOfSuperiority)
}
