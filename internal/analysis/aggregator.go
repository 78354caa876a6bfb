// Package analysis reduces per-replicate estimates into the summary metrics
// of a simulation study: mean estimate, bias, empirical SD, coverage and power.
package analysis

import (
	"math"
	"sort"

	"github.com/montanaflynn/stats"

	sim "therapist-effects/domain/stats"
)

// Plan fixes the row layout of an aggregation: models in battery order,
// parameters in report order, and the truths they are scored against.
type Plan struct {
	Models        []string
	Parameters    []sim.Parameter
	Truths        sim.Truths
	Replicates    int
	KeepEstimates bool
}

// cell collects the successful estimates of one model x parameter pair
type cell struct {
	estimates []sim.Estimate
}

// Aggregate builds the SimulationResult. Estimates may arrive in any order;
// they are sorted by (model, parameter, replicate) before reduction.
// A failure record for a model counts against every parameter of that model.
func Aggregate(estimates []sim.Estimate, plan Plan) sim.SimulationResult {
	sorted := make([]sim.Estimate, len(estimates))
	copy(sorted, estimates)
	sort.SliceStable(sorted, func(i, j int) bool {
		a, b := sorted[i], sorted[j]
		if a.Model != b.Model {
			return a.Model < b.Model
		}
		if a.Parameter != b.Parameter {
			return a.Parameter < b.Parameter
		}
		return a.Replicate < b.Replicate
	})

	cells := make(map[string]map[sim.Parameter]*cell)
	failed := make(map[string]map[int]bool)
	for _, e := range sorted {
		if e.Failed {
			if failed[e.Model] == nil {
				failed[e.Model] = make(map[int]bool)
			}
			failed[e.Model][e.Replicate] = true
			continue
		}
		if math.IsNaN(e.Value) || math.IsInf(e.Value, 0) {
			continue
		}
		if cells[e.Model] == nil {
			cells[e.Model] = make(map[sim.Parameter]*cell)
		}
		c := cells[e.Model][e.Parameter]
		if c == nil {
			c = &cell{}
			cells[e.Model][e.Parameter] = c
		}
		c.estimates = append(c.estimates, e)
	}

	result := sim.SimulationResult{Replicates: plan.Replicates}
	for _, m := range plan.Models {
		for _, p := range plan.Parameters {
			truth, ok := plan.Truths[p]
			if !ok {
				continue
			}
			c := cells[m][p]
			// a model that never reports a parameter (e.g. OLS has no cluster
			// variance) gets no row unless it failed on every replicate
			if c == nil && (len(cells[m]) > 0 || len(failed[m]) == 0) {
				continue
			}
			row := summarize(m, truth, c)
			row.Failures = len(failed[m])
			result.Rows = append(result.Rows, row)
		}
	}
	if plan.KeepEstimates {
		result.Estimates = sorted
	}
	return result
}

func summarize(model string, truth sim.Truth, c *cell) sim.SummaryRow {
	row := sim.SummaryRow{Model: model, Parameter: truth.Parameter, TrueValue: truth.Value}
	if c == nil || len(c.estimates) == 0 {
		return row
	}

	values := make([]float64, len(c.estimates))
	for i, e := range c.estimates {
		values[i] = e.Value
	}
	row.N = len(values)

	mean, err := stats.Mean(values)
	if err != nil {
		return row
	}
	bias := mean - truth.Value
	row.MeanEstimate = sim.Ptr(mean)
	row.Bias = sim.Ptr(bias)
	if truth.Value != 0 {
		row.RelativeBias = sim.Ptr(bias / truth.Value)
	}
	if len(values) > 1 {
		if sd, err := stats.StandardDeviationSample(values); err == nil {
			row.EmpiricalSD = sim.Ptr(sd)
		}
	}

	var withInterval, covered, rejected int
	for _, e := range c.estimates {
		if e.Interval == nil {
			continue
		}
		withInterval++
		if e.Interval.Contains(truth.Value) {
			covered++
		}
		if truth.Null != nil && e.Interval.Excludes(*truth.Null) {
			rejected++
		}
	}
	if withInterval > 0 {
		row.Coverage = sim.Ptr(float64(covered) / float64(withInterval))
		if truth.Null != nil {
			row.Power = sim.Ptr(float64(rejected) / float64(withInterval))
		}
	}
	return row
}
