package app

import (
	"context"
	"math"
	"math/rand/v2"

	"therapist-effects/domain/core"
	"therapist-effects/domain/dataset"
	"therapist-effects/domain/design"
	"therapist-effects/domain/model"
	"therapist-effects/domain/overlap"
	"therapist-effects/domain/run"
	"therapist-effects/domain/stats"
	"therapist-effects/internal"
	"therapist-effects/internal/analysis"
	"therapist-effects/ports"
)

// CoverageParameters is the report order of the CI-coverage study
var CoverageParameters = []stats.Parameter{
	stats.ParamTreatmentEffect,
	stats.ParamOverlap,
	stats.ParamU3,
	stats.ParamSuperiority,
}

// CoverageEvaluator fits the random-assignment mixed model and derives
// percentile intervals for the treatment effect and the overlap measures
// from the interval source's draws.
type CoverageEvaluator struct {
	fitter ports.ModelFitter
	source ports.IntervalSource
	spec   model.Spec
	logger *internal.Logger
}

// NewCoverageEvaluator creates the evaluator of the CI-coverage study
func NewCoverageEvaluator(fitter ports.ModelFitter, source ports.IntervalSource, spec model.Spec) *CoverageEvaluator {
	return &CoverageEvaluator{fitter: fitter, source: source, spec: spec, logger: internal.DefaultLogger}
}

// Evaluate returns four estimates, or one failure record when the fit or the
// draws fail.
func (e *CoverageEvaluator) Evaluate(ctx context.Context, replicate int, table *dataset.Table, rng *rand.Rand) ([]stats.Estimate, error) {
	fail := func(err error) ([]stats.Estimate, error) {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		fitErr := &core.FitError{Model: e.spec.Name, Replicate: replicate, Cause: err}
		e.logger.Debug("[CoverageEvaluator] %v", fitErr)
		return []stats.Estimate{stats.Failure(replicate, e.spec.Name, fitErr)}, nil
	}

	fit, err := e.fitter.Fit(ctx, table, e.spec)
	if err != nil {
		return fail(err)
	}
	if fit.ClusterVariance == nil {
		return fail(core.ErrSingularDesign)
	}
	draws, err := e.source.Draws(ctx, table, e.spec, fit, rng)
	if err != nil {
		return fail(err)
	}

	ate := fit.Treatment().Estimate
	clusterSD := math.Sqrt(math.Max(*fit.ClusterVariance, 0))
	point := overlap.Measures{
		Overlap:                  overlap.OverlapRaw(ate, clusterSD),
		U3:                       overlap.U3Raw(ate, clusterSD),
		ProbabilityOfSuperiority: overlap.ProbabilityOfSuperiorityRaw(ate, clusterSD),
	}

	n := draws.Len()
	transformed := map[stats.Parameter][]float64{
		stats.ParamTreatmentEffect: draws.TreatmentEffect,
		stats.ParamOverlap:         make([]float64, n),
		stats.ParamU3:              make([]float64, n),
		stats.ParamSuperiority:     make([]float64, n),
	}
	for i := 0; i < n; i++ {
		b, sd := draws.TreatmentEffect[i], draws.ClusterSD[i]
		transformed[stats.ParamOverlap][i] = overlap.OverlapRaw(b, sd)
		transformed[stats.ParamU3][i] = overlap.U3Raw(b, sd)
		transformed[stats.ParamSuperiority][i] = overlap.ProbabilityOfSuperiorityRaw(b, sd)
	}
	values := map[stats.Parameter]float64{
		stats.ParamTreatmentEffect: ate,
		stats.ParamOverlap:         point.Overlap,
		stats.ParamU3:              point.U3,
		stats.ParamSuperiority:     point.ProbabilityOfSuperiority,
	}

	out := make([]stats.Estimate, 0, len(CoverageParameters))
	for _, p := range CoverageParameters {
		interval, err := analysis.PercentileInterval(transformed[p])
		if err != nil {
			return fail(err)
		}
		out = append(out, stats.Estimate{
			Replicate: replicate,
			Model:     e.spec.Name,
			Parameter: p,
			Value:     values[p],
			Interval:  &interval,
		})
	}
	return out, nil
}

// CoverageTruths are the true values and nulls scored by the CI-coverage study
func CoverageTruths(params design.Parameters) stats.Truths {
	ate, sd := params.AverageTreatmentEffect, params.ClusterSD
	return stats.Truths{
		stats.ParamTreatmentEffect: stats.NewTruthWithNull(stats.ParamTreatmentEffect, ate, 0),
		stats.ParamOverlap:         stats.NewTruthWithNull(stats.ParamOverlap, overlap.OverlapRaw(ate, sd), 1),
		stats.ParamU3:              stats.NewTruthWithNull(stats.ParamU3, overlap.U3Raw(ate, sd), 0.5),
		stats.ParamSuperiority:     stats.NewTruthWithNull(stats.ParamSuperiority, overlap.ProbabilityOfSuperiorityRaw(ate, sd), 0.5),
	}
}

// NewCoverageStudy assembles the CI-coverage study on the random-assignment LMM
func NewCoverageStudy(params design.Parameters, replicates int, seed uint64, draws int, keepEstimates bool, fitter ports.ModelFitter, source ports.IntervalSource) Study {
	spec, _ := model.DefaultBattery().Lookup(model.RandomLMM)
	return Study{
		Config: run.Config{
			Study:          core.StudyCoverage,
			Design:         params,
			Battery:        model.Battery{spec},
			Replicates:     replicates,
			Seed:           seed,
			BootstrapDraws: draws,
			Truths:         CoverageTruths(params),
			KeepEstimates:  keepEstimates,
		},
		Parameters: CoverageParameters,
		Evaluator:  NewCoverageEvaluator(fitter, source, spec),
	}
}
