package excel

// RawRowData represents a row of a sheet as header -> cell text
type RawRowData map[string]string

// ExcelData represents one sheet read back from a workbook
type ExcelData struct {
	Headers []string     // Column headers
	Rows    []RawRowData // Data rows
}

// Sheet names of the results workbook
const (
	SheetSummary   = "summary"
	SheetEstimates = "estimates"
	SheetOverlap   = "overlap"
)

// SummaryHeaders are the documented columns of the summary sheet
var SummaryHeaders = []string{
	"study", "model", "parameter", "true_value", "n", "failures",
	"estimate", "bias", "relative_bias", "sd", "coverage", "power",
}

// EstimateHeaders are the columns of the per-replicate sheet
var EstimateHeaders = []string{
	"study", "replicate", "model", "parameter", "value", "lower", "upper", "p_value", "failed", "error",
}

// OverlapHeaders are the columns of the overlap sheet
var OverlapHeaders = []string{"d", "icc", "overlap", "u3", "probability_of_superiority"}
