package app

import (
	"context"
	"math/rand/v2"

	"therapist-effects/domain/core"
	"therapist-effects/domain/dataset"
	"therapist-effects/domain/design"
	"therapist-effects/domain/model"
	"therapist-effects/domain/run"
	"therapist-effects/domain/stats"
	"therapist-effects/internal"
	"therapist-effects/ports"
)

// ConfidenceLevel of every reported interval
const ConfidenceLevel = 0.95

// BiasParameters is the report order of the confounding-bias study
var BiasParameters = []stats.Parameter{
	stats.ParamTreatmentEffect,
	stats.ParamClusterVariance,
	stats.ParamResidualVariance,
	stats.ParamICC,
}

// BiasEvaluator fits the whole model battery to each replicate
type BiasEvaluator struct {
	fitter  ports.ModelFitter
	battery model.Battery
	logger  *internal.Logger
}

// NewBiasEvaluator creates the evaluator of the confounding-bias study
func NewBiasEvaluator(fitter ports.ModelFitter, battery model.Battery) *BiasEvaluator {
	return &BiasEvaluator{fitter: fitter, battery: battery, logger: internal.DefaultLogger}
}

// Evaluate records the treatment effect with its t interval for every model
// and, for clustered models, both variance components and the replicate's ICC.
func (e *BiasEvaluator) Evaluate(ctx context.Context, replicate int, table *dataset.Table, _ *rand.Rand) ([]stats.Estimate, error) {
	var out []stats.Estimate
	for _, spec := range e.battery {
		fit, err := e.fitter.Fit(ctx, table, spec)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			fitErr := &core.FitError{Model: spec.Name, Replicate: replicate, Cause: err}
			e.logger.Debug("[BiasEvaluator] %v", fitErr)
			out = append(out, stats.Failure(replicate, spec.Name, fitErr))
			continue
		}
		out = append(out, fitEstimates(replicate, fit)...)
	}
	return out, nil
}

func fitEstimates(replicate int, fit *model.Fit) []stats.Estimate {
	tr := fit.Treatment()
	lower, upper := tr.ConfInt(ConfidenceLevel)
	p := tr.PValue
	out := []stats.Estimate{{
		Replicate: replicate,
		Model:     fit.Model,
		Parameter: stats.ParamTreatmentEffect,
		Value:     tr.Estimate,
		Interval:  &stats.Interval{Lower: lower, Upper: upper},
		PValue:    &p,
	}}
	if fit.ClusterVariance == nil {
		return out
	}

	out = append(out,
		stats.Estimate{Replicate: replicate, Model: fit.Model, Parameter: stats.ParamClusterVariance, Value: *fit.ClusterVariance},
		stats.Estimate{Replicate: replicate, Model: fit.Model, Parameter: stats.ParamResidualVariance, Value: fit.ResidualVariance},
	)
	// ratio of this replicate's components, not of averaged components
	if icc, ok := fit.ICC(); ok {
		out = append(out, stats.Estimate{Replicate: replicate, Model: fit.Model, Parameter: stats.ParamICC, Value: icc})
	}
	return out
}

// BiasTruths are the true values scored by the confounding-bias study
func BiasTruths(params design.Parameters) stats.Truths {
	return stats.Truths{
		stats.ParamTreatmentEffect:  stats.NewTruthWithNull(stats.ParamTreatmentEffect, params.AverageTreatmentEffect, 0),
		stats.ParamClusterVariance:  stats.NewTruth(stats.ParamClusterVariance, params.ClusterVariance()),
		stats.ParamResidualVariance: stats.NewTruth(stats.ParamResidualVariance, params.ErrorVariance()),
		stats.ParamICC:              stats.NewTruth(stats.ParamICC, params.ICC),
	}
}

// NewBiasStudy assembles the confounding-bias study
func NewBiasStudy(params design.Parameters, replicates int, seed uint64, keepEstimates bool, fitter ports.ModelFitter) Study {
	battery := model.DefaultBattery()
	return Study{
		Config: run.Config{
			Study:         core.StudyConfounding,
			Design:        params,
			Battery:       battery,
			Replicates:    replicates,
			Seed:          seed,
			Truths:        BiasTruths(params),
			KeepEstimates: keepEstimates,
		},
		Parameters: BiasParameters,
		Evaluator:  NewBiasEvaluator(fitter, battery),
	}
}
