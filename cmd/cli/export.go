package main

import (
	stderrors "errors"
	"fmt"
	"log"

	"github.com/spf13/cobra"

	"therapist-effects/adapters/excel"
	"therapist-effects/domain/core"
	"therapist-effects/domain/overlap"
	"therapist-effects/domain/run"
	"therapist-effects/internal/container"
)

func newExportCmd() *cobra.Command {
	var out string
	var from, to, step float64

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write cached study results and the overlap curve to an Excel workbook",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withContainer(cmd.Context(), func(c *container.Container) error {
				report := excel.Report{D: c.Config.Studies.Main.CohensD}

				for _, name := range c.Catalog.Names() {
					artifact, err := c.Catalog.Results(cmd.Context(), c.Driver, name)
					if err != nil {
						if core.IsCacheMiss(err) || stderrors.Is(err, core.ErrCacheCorruption) {
							log.Printf("Warning: no cached results for %s, skipping", name)
							continue
						}
						return err
					}
					report.Artifacts = append(report.Artifacts, artifact)
				}
				if len(report.Artifacts) == 0 {
					return fmt.Errorf("nothing to export: run the simulate command first")
				}

				curve, err := overlap.Curve(report.D, from, to, step)
				if err != nil {
					return err
				}
				report.Curve = curve

				if err := excel.NewWorkbookWriter(out).Write(report); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "wrote %s (%s)\n", out, studies(report.Artifacts))
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&out, "out", "therapist_effects.xlsx", "Output workbook path")
	cmd.Flags().Float64Var(&from, "from", 0.01, "First ICC of the overlap curve")
	cmd.Flags().Float64Var(&to, "to", 0.3, "Last ICC of the overlap curve")
	cmd.Flags().Float64Var(&step, "step", 0.01, "ICC step of the overlap curve")
	return cmd
}

func studies(artifacts []*run.Artifact) string {
	s := ""
	for i, a := range artifacts {
		if i > 0 {
			s += ", "
		}
		s += string(a.Config.Study)
	}
	return s
}
