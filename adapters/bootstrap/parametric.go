// Package bootstrap supplies the interval source for the CI-coverage study:
// a parametric bootstrap of the random-intercept model.
package bootstrap

import (
	"context"
	"fmt"
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/stat/distuv"

	"therapist-effects/domain/core"
	"therapist-effects/domain/dataset"
	"therapist-effects/domain/model"
	"therapist-effects/internal"
	"therapist-effects/ports"
)

// ParametricBootstrap implements ports.IntervalSource. Each draw simulates a
// new outcome vector from the fitted model on the original design (same
// treatment, covariate and cluster columns) and refits the model.
type ParametricBootstrap struct {
	fitter ports.ModelFitter
	draws  int
	logger *internal.Logger
}

// NewParametricBootstrap creates a bootstrap that refits with fitter
func NewParametricBootstrap(fitter ports.ModelFitter, draws int) *ParametricBootstrap {
	return &ParametricBootstrap{fitter: fitter, draws: draws, logger: internal.DefaultLogger}
}

// Draws returns one (treatment effect, cluster SD, residual SD) triple per
// successful refit. Failed refits are skipped; fewer than half successful
// draws is itself a fit failure.
func (b *ParametricBootstrap) Draws(ctx context.Context, table *dataset.Table, spec model.Spec, fit *model.Fit, rng *rand.Rand) (ports.Draws, error) {
	if b.draws <= 0 {
		return ports.Draws{}, core.NewConfigError("bootstrap_draws", fmt.Sprintf("must be positive, got %d", b.draws))
	}
	if !spec.Clustered() || fit == nil || fit.ClusterVariance == nil {
		return ports.Draws{}, fmt.Errorf("parametric bootstrap needs a clustered fit, got model %s", spec.Name)
	}

	fixed, err := fittedMeans(table, spec, fit)
	if err != nil {
		return ports.Draws{}, err
	}
	groups, err := table.Grouping(spec.Grouping)
	if err != nil {
		return ports.Draws{}, err
	}

	clusterSD := math.Sqrt(math.Max(*fit.ClusterVariance, 0))
	residualSD := math.Sqrt(fit.ResidualVariance)
	errorDist := distuv.Normal{Mu: 0, Sigma: residualSD, Src: rng}
	clusterDist := distuv.Normal{Mu: 0, Sigma: clusterSD, Src: rng}

	out := ports.Draws{
		TreatmentEffect: make([]float64, 0, b.draws),
		ClusterSD:       make([]float64, 0, b.draws),
		ResidualSD:      make([]float64, 0, b.draws),
	}
	effects := make([]float64, table.Clusters+1)
	failures := 0

	for i := 0; i < b.draws; i++ {
		if err := ctx.Err(); err != nil {
			return ports.Draws{}, err
		}

		for g := 1; g <= table.Clusters; g++ {
			effects[g] = 0
			if clusterSD > 0 {
				effects[g] = clusterDist.Rand()
			}
		}
		y := make([]float64, len(fixed))
		for r := range y {
			y[r] = fixed[r] + effects[groups[r]] + errorDist.Rand()
		}

		sim, err := table.WithOutcome(spec.Outcome, y)
		if err != nil {
			return ports.Draws{}, err
		}
		refit, err := b.fitter.Fit(ctx, sim, spec)
		if err != nil {
			if !core.IsFitFailure(err) {
				return ports.Draws{}, err
			}
			failures++
			b.logger.Trace("[ParametricBootstrap] draw %d of %s failed: %v", i, spec.Name, err)
			continue
		}

		cv := 0.0
		if refit.ClusterVariance != nil {
			cv = math.Max(*refit.ClusterVariance, 0)
		}
		out.TreatmentEffect = append(out.TreatmentEffect, refit.Treatment().Estimate)
		out.ClusterSD = append(out.ClusterSD, math.Sqrt(cv))
		out.ResidualSD = append(out.ResidualSD, math.Sqrt(refit.ResidualVariance))
	}

	if 2*out.Len() < b.draws {
		return ports.Draws{}, fmt.Errorf("%w: %d of %d bootstrap refits failed", core.ErrInsufficientFit, failures, b.draws)
	}
	return out, nil
}

// fittedMeans returns X*beta for every row
func fittedMeans(table *dataset.Table, spec model.Spec, fit *model.Fit) ([]float64, error) {
	intercept, ok := fit.Coefficients[model.TermIntercept]
	if !ok {
		return nil, fmt.Errorf("fit for %s has no intercept", spec.Name)
	}
	out := make([]float64, table.RowCount())
	for r := range out {
		out[r] = intercept.Estimate
	}
	for _, term := range spec.Terms {
		coef, ok := fit.Coefficients[term]
		if !ok {
			return nil, fmt.Errorf("fit for %s has no %s coefficient", spec.Name, term)
		}
		col, err := table.Numeric(termColumn(term))
		if err != nil {
			return nil, err
		}
		for r, v := range col {
			out[r] += coef.Estimate * v
		}
	}
	return out, nil
}

func termColumn(term model.Term) dataset.Column {
	switch term {
	case model.TermCovariate:
		return dataset.ColCovariate
	default:
		return dataset.ColTreatment
	}
}
