package testkit

import (
	"context"
	"sync"

	"therapist-effects/domain/dataset"
	"therapist-effects/domain/model"
	"therapist-effects/ports"
)

// ScriptedFitter returns closed-form fits (difference in arm means, fixed
// variance components) and fails wherever FailWhen says so.
type ScriptedFitter struct {
	// FailWhen returns a non-nil error to make one fit fail
	FailWhen func(spec model.Spec, table *dataset.Table) error

	mu    sync.Mutex
	calls map[string]int
}

// NewScriptedFitter creates a fitter that never fails
func NewScriptedFitter() *ScriptedFitter {
	return &ScriptedFitter{calls: make(map[string]int)}
}

// Calls returns how often the named model was fitted
func (f *ScriptedFitter) Calls(model string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[model]
}

// Fit implements ports.ModelFitter
func (f *ScriptedFitter) Fit(ctx context.Context, table *dataset.Table, spec model.Spec) (*model.Fit, error) {
	f.mu.Lock()
	f.calls[spec.Name]++
	f.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if f.FailWhen != nil {
		if err := f.FailWhen(spec, table); err != nil {
			return nil, err
		}
	}

	y, err := table.Numeric(spec.Outcome)
	if err != nil {
		return nil, err
	}
	var sum [2]float64
	var n [2]int
	for i, z := range table.Treatment {
		sum[int(z)] += y[i]
		n[int(z)]++
	}
	control := sum[0] / float64(n[0])
	effect := sum[1]/float64(n[1]) - control

	fit := &model.Fit{
		Model: spec.Name,
		Coefficients: map[model.Term]model.Coefficient{
			model.TermIntercept: model.NewCoefficient(control, 0.1, 10),
			model.TermTreatment: model.NewCoefficient(effect, 0.2, 10),
		},
		ResidualVariance: 2.25,
		N:                len(y),
	}
	if spec.Clustered() {
		cv := 0.1
		fit.ClusterVariance = &cv
		fit.Groups = table.Clusters
	}
	return fit, nil
}

var _ ports.ModelFitter = (*ScriptedFitter)(nil)
