package excel

import (
	"fmt"
	"log"

	"github.com/xuri/excelize/v2"

	"therapist-effects/domain/overlap"
	"therapist-effects/domain/run"
	"therapist-effects/domain/stats"
)

// Report is everything exported to one workbook
type Report struct {
	Artifacts []*run.Artifact
	// Curve holds overlap measures over an ICC grid at effect size D
	D     float64
	Curve []overlap.CurvePoint
}

// WorkbookWriter writes simulation results for the report layer
type WorkbookWriter struct {
	filePath string
}

// NewWorkbookWriter creates a writer targeting filePath (.xlsx)
func NewWorkbookWriter(filePath string) *WorkbookWriter {
	return &WorkbookWriter{filePath: filePath}
}

// Write creates the summary, estimates and overlap sheets. The estimates
// sheet is only added when some artifact kept its per-replicate table.
func (w *WorkbookWriter) Write(report Report) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", SheetSummary); err != nil {
		return fmt.Errorf("failed to name summary sheet: %w", err)
	}
	rows := [][]interface{}{}
	for _, a := range report.Artifacts {
		for _, r := range a.Result.Rows {
			rows = append(rows, []interface{}{
				string(a.Config.Study), r.Model, string(r.Parameter), r.TrueValue, r.N, r.Failures,
				cell(r.MeanEstimate), cell(r.Bias), cell(r.RelativeBias), cell(r.EmpiricalSD),
				cell(r.Coverage), cell(r.Power),
			})
		}
	}
	if err := writeSheet(f, SheetSummary, SummaryHeaders, rows); err != nil {
		return err
	}

	rows = rows[:0]
	for _, a := range report.Artifacts {
		for _, e := range a.Result.Estimates {
			var lower, upper interface{}
			if e.Interval != nil {
				lower, upper = e.Interval.Lower, e.Interval.Upper
			}
			rows = append(rows, []interface{}{
				string(a.Config.Study), e.Replicate, e.Model, string(e.Parameter), value(e),
				lower, upper, cell(e.PValue), e.Failed, e.Error,
			})
		}
	}
	if len(rows) > 0 {
		if _, err := f.NewSheet(SheetEstimates); err != nil {
			return fmt.Errorf("failed to add estimates sheet: %w", err)
		}
		if err := writeSheet(f, SheetEstimates, EstimateHeaders, rows); err != nil {
			return err
		}
	}

	if _, err := f.NewSheet(SheetOverlap); err != nil {
		return fmt.Errorf("failed to add overlap sheet: %w", err)
	}
	rows = rows[:0]
	for _, p := range report.Curve {
		rows = append(rows, []interface{}{report.D, p.ICC, p.Overlap, p.U3, p.ProbabilityOfSuperiority})
	}
	if err := writeSheet(f, SheetOverlap, OverlapHeaders, rows); err != nil {
		return err
	}

	if err := f.SaveAs(w.filePath); err != nil {
		return fmt.Errorf("failed to save workbook %s: %w", w.filePath, err)
	}
	log.Printf("[WorkbookWriter] wrote %s (%d artifacts, %d curve points)", w.filePath, len(report.Artifacts), len(report.Curve))
	return nil
}

func writeSheet(f *excelize.File, sheet string, headers []string, rows [][]interface{}) error {
	header := make([]interface{}, len(headers))
	for i, h := range headers {
		header[i] = h
	}
	if err := f.SetSheetRow(sheet, "A1", &header); err != nil {
		return fmt.Errorf("failed to write %s header: %w", sheet, err)
	}
	for i, row := range rows {
		addr, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		row := row
		if err := f.SetSheetRow(sheet, addr, &row); err != nil {
			return fmt.Errorf("failed to write %s row %d: %w", sheet, i+2, err)
		}
	}
	return nil
}

// cell renders an optional metric; nil becomes an empty cell
func cell(v *float64) interface{} {
	if v == nil {
		return nil
	}
	return *v
}

func value(e stats.Estimate) interface{} {
	if e.Failed {
		return nil
	}
	return e.Value
}
