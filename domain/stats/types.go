// Package stats holds the per-replicate estimate records and the aggregate
// summary tables handed to the report layer.
package stats

import "math"

// Parameter names a quantity whose sampling behaviour is summarized
type Parameter string

const (
	ParamTreatmentEffect  Parameter = "treatment_effect"
	ParamClusterVariance  Parameter = "cluster_variance"
	ParamResidualVariance Parameter = "residual_variance"
	ParamICC              Parameter = "icc"
	ParamOverlap          Parameter = "overlap"
	ParamU3               Parameter = "u3"
	ParamSuperiority      Parameter = "probability_of_superiority"
)

// Interval is a reported confidence, credible or bootstrap interval
type Interval struct {
	Lower float64 `json:"lower"`
	Upper float64 `json:"upper"`
}

// Contains reports whether v lies inside the closed interval
func (i Interval) Contains(v float64) bool {
	return v >= i.Lower && v <= i.Upper
}

// Excludes reports whether v lies strictly outside the interval
func (i Interval) Excludes(v float64) bool {
	return v < i.Lower || v > i.Upper
}

// Estimate is one replicate's estimate of one parameter under one model.
// A failed fit is recorded with Failed set and no parameter.
type Estimate struct {
	Replicate int       `json:"replicate"`
	Model     string    `json:"model"`
	Parameter Parameter `json:"parameter,omitempty"`
	Value     float64   `json:"value"`
	Interval  *Interval `json:"interval,omitempty"`
	PValue    *float64  `json:"p_value,omitempty"`
	Failed    bool      `json:"failed,omitempty"`
	Error     string    `json:"error,omitempty"`
}

// Failure builds the missing-result record for a model on a replicate
func Failure(replicate int, model string, err error) Estimate {
	return Estimate{Replicate: replicate, Model: model, Failed: true, Error: err.Error()}
}

// Truth is the externally supplied true value (and optional null) of a parameter
type Truth struct {
	Parameter Parameter `json:"parameter"`
	Value     float64   `json:"value"`
	// Null is the value whose exclusion counts toward power; nil means no power
	Null *float64 `json:"null,omitempty"`
}

// Truths maps parameters to their true values
type Truths map[Parameter]Truth

// NewTruth builds a Truth without a null value
func NewTruth(p Parameter, value float64) Truth {
	return Truth{Parameter: p, Value: value}
}

// NewTruthWithNull builds a Truth that also reports power against null
func NewTruthWithNull(p Parameter, value, null float64) Truth {
	return Truth{Parameter: p, Value: value, Null: &null}
}

// SummaryRow is one model x parameter cell of a SimulationResult.
// Metrics are nil when undefined: no successful replicate, no intervals,
// zero true value, fewer than two successful replicates for the SD.
type SummaryRow struct {
	Model        string    `json:"model"`
	Parameter    Parameter `json:"parameter"`
	TrueValue    float64   `json:"true_value"`
	N            int       `json:"n"`
	Failures     int       `json:"failures"`
	MeanEstimate *float64  `json:"mean_estimate,omitempty"`
	Bias         *float64  `json:"bias,omitempty"`
	RelativeBias *float64  `json:"relative_bias,omitempty"`
	EmpiricalSD  *float64  `json:"empirical_sd,omitempty"`
	Coverage     *float64  `json:"coverage,omitempty"`
	Power        *float64  `json:"power,omitempty"`
}

// SimulationResult is the aggregate over every replicate of one configuration
type SimulationResult struct {
	Replicates int          `json:"replicates"`
	Rows       []SummaryRow `json:"rows"`
	// Estimates is the per-replicate table, omitted in anonymized mode
	Estimates []Estimate `json:"estimates,omitempty"`
}

// Row finds the summary cell for a model and parameter
func (r *SimulationResult) Row(model string, p Parameter) (SummaryRow, bool) {
	for _, row := range r.Rows {
		if row.Model == model && row.Parameter == p {
			return row, true
		}
	}
	return SummaryRow{}, false
}

// Value dereferences an optional metric, returning NaN when it is nil
func Value(v *float64) float64 {
	if v == nil {
		return math.NaN()
	}
	return *v
}

// Ptr returns a pointer to a copy of v, or nil for NaN and infinities
func Ptr(v float64) *float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}
