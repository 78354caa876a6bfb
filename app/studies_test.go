package app

import (
	"context"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"therapist-effects/adapters/bootstrap"
	"therapist-effects/adapters/fitter"
	"therapist-effects/adapters/generator"
	"therapist-effects/domain/core"
	"therapist-effects/domain/dataset"
	"therapist-effects/domain/design"
	"therapist-effects/domain/model"
	"therapist-effects/domain/overlap"
	"therapist-effects/domain/stats"
	"therapist-effects/internal/testkit"
	"therapist-effects/ports"
)

type mockFitter struct {
	mock.Mock
}

func (m *mockFitter) Fit(ctx context.Context, table *dataset.Table, spec model.Spec) (*model.Fit, error) {
	args := m.Called(ctx, table, spec)
	fit, _ := args.Get(0).(*model.Fit)
	return fit, args.Error(1)
}

type failingSource struct{}

func (failingSource) Draws(ctx context.Context, table *dataset.Table, spec model.Spec, fit *model.Fit, rng *rand.Rand) (ports.Draws, error) {
	return ports.Draws{}, core.ErrInsufficientFit
}

func smallTable(t *testing.T, seed uint64) *dataset.Table {
	t.Helper()
	table, err := generator.NewClusteredTrialGenerator().Generate(testkit.SmallParameters(), rand.New(rand.NewPCG(seed, 0)))
	require.NoError(t, err)
	return table
}

func TestBiasEvaluator_RecordsFailuresPerModel(t *testing.T) {
	cv := 0.3
	clustered := &model.Fit{
		Model: model.ConfoundedLMMCovariate,
		Coefficients: map[model.Term]model.Coefficient{
			model.TermTreatment: model.NewCoefficient(0.8, 0.2, 18),
		},
		ResidualVariance: 0.9,
		ClusterVariance:  &cv,
	}
	plain := &model.Fit{
		Model: model.ConfoundedOLS,
		Coefficients: map[model.Term]model.Coefficient{
			model.TermTreatment: model.NewCoefficient(1.1, 0.1, 398),
		},
		ResidualVariance: 2.5,
	}

	fit := &mockFitter{}
	fit.On("Fit", mock.Anything, mock.Anything, mock.MatchedBy(func(s model.Spec) bool { return s.Name == model.ConfoundedOLS })).Return(plain, nil)
	fit.On("Fit", mock.Anything, mock.Anything, mock.MatchedBy(func(s model.Spec) bool { return s.Name == model.ConfoundedLMM })).Return(nil, core.ErrNonConvergence)
	fit.On("Fit", mock.Anything, mock.Anything, mock.MatchedBy(func(s model.Spec) bool { return s.Name == model.ConfoundedLMMCovariate })).Return(clustered, nil)

	battery := model.Battery{}
	for _, name := range []string{model.ConfoundedOLS, model.ConfoundedLMM, model.ConfoundedLMMCovariate} {
		s, ok := model.DefaultBattery().Lookup(name)
		require.True(t, ok)
		battery = append(battery, s)
	}

	out, err := NewBiasEvaluator(fit, battery).Evaluate(context.Background(), 4, smallTable(t, 1), nil)
	require.NoError(t, err)
	require.Len(t, out, 1+1+4)

	assert.Equal(t, stats.ParamTreatmentEffect, out[0].Parameter)
	assert.Equal(t, 1.1, out[0].Value)
	require.NotNil(t, out[0].Interval)
	assert.True(t, out[0].Interval.Contains(1.1))
	require.NotNil(t, out[0].PValue)

	assert.True(t, out[1].Failed)
	assert.Equal(t, model.ConfoundedLMM, out[1].Model)
	assert.Equal(t, 4, out[1].Replicate)

	byParam := map[stats.Parameter]float64{}
	for _, e := range out[2:] {
		assert.Equal(t, model.ConfoundedLMMCovariate, e.Model)
		byParam[e.Parameter] = e.Value
	}
	assert.Equal(t, 0.3, byParam[stats.ParamClusterVariance])
	assert.Equal(t, 0.9, byParam[stats.ParamResidualVariance])
	assert.InDelta(t, 0.25, byParam[stats.ParamICC], 1e-12)
	fit.AssertNumberOfCalls(t, "Fit", 3)
}

func TestBiasEvaluator_CancellationIsFatal(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewBiasEvaluator(testkit.NewScriptedFitter(), model.DefaultBattery()).Evaluate(ctx, 0, smallTable(t, 1), nil)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestBiasTruths(t *testing.T) {
	params := testkit.SmallParameters()
	truths := BiasTruths(params)

	assert.Len(t, truths, len(BiasParameters))
	assert.Equal(t, params.AverageTreatmentEffect, truths[stats.ParamTreatmentEffect].Value)
	require.NotNil(t, truths[stats.ParamTreatmentEffect].Null)
	assert.Equal(t, 0.0, *truths[stats.ParamTreatmentEffect].Null)
	assert.InDelta(t, params.ClusterSD*params.ClusterSD, truths[stats.ParamClusterVariance].Value, 1e-15)
	assert.Equal(t, 2.25, truths[stats.ParamResidualVariance].Value)
	assert.Equal(t, 0.05, truths[stats.ParamICC].Value)
	assert.Nil(t, truths[stats.ParamICC].Null)
}

func TestCoverageTruths_MatchStandardizedForms(t *testing.T) {
	params, err := design.Resolve(design.DefaultKnobs().WithClustersPerArm(40))
	require.NoError(t, err)
	truths := CoverageTruths(params)

	d, icc := overlap.Standardize(params.AverageTreatmentEffect, params.ClusterSD, params.TotalSD)
	assert.InDelta(t, overlap.Overlap(d, icc), truths[stats.ParamOverlap].Value, 1e-12)
	assert.InDelta(t, overlap.U3(d, icc), truths[stats.ParamU3].Value, 1e-12)
	assert.InDelta(t, overlap.ProbabilityOfSuperiority(d, icc), truths[stats.ParamSuperiority].Value, 1e-12)

	assert.Equal(t, 1.0, *truths[stats.ParamOverlap].Null)
	assert.Equal(t, 0.5, *truths[stats.ParamU3].Null)
	assert.Equal(t, 0.5, *truths[stats.ParamSuperiority].Null)
}

func TestCoverageEvaluator_IntervalsFromDraws(t *testing.T) {
	params, err := design.Resolve(design.DefaultKnobs().WithClustersPerArm(20))
	require.NoError(t, err)
	rng := rand.New(rand.NewPCG(17, 3))
	table, err := generator.NewClusteredTrialGenerator().Generate(params, rng)
	require.NoError(t, err)

	f := fitter.NewFitter()
	study := NewCoverageStudy(params, 1, 1, 40, true, f, bootstrap.NewParametricBootstrap(f, 40))

	out, err := study.Evaluator.Evaluate(context.Background(), 2, table, rng)
	require.NoError(t, err)
	require.Len(t, out, len(CoverageParameters))

	for i, e := range out {
		assert.Equal(t, CoverageParameters[i], e.Parameter)
		assert.Equal(t, model.RandomLMM, e.Model)
		assert.Equal(t, 2, e.Replicate)
		require.NotNil(t, e.Interval, e.Parameter)
		assert.LessOrEqual(t, e.Interval.Lower, e.Interval.Upper)
	}
	for _, e := range out[1:] {
		assert.GreaterOrEqual(t, e.Value, 0.0)
		assert.LessOrEqual(t, e.Value, 1.0)
		assert.GreaterOrEqual(t, e.Interval.Lower, 0.0)
		assert.LessOrEqual(t, e.Interval.Upper, 1.0)
	}
}

func TestCoverageEvaluator_SourceFailureIsRecorded(t *testing.T) {
	spec, _ := model.DefaultBattery().Lookup(model.RandomLMM)
	eval := NewCoverageEvaluator(testkit.NewScriptedFitter(), failingSource{}, spec)

	out, err := eval.Evaluate(context.Background(), 9, smallTable(t, 2), rand.New(rand.NewPCG(1, 1)))
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.True(t, out[0].Failed)
	assert.Contains(t, out[0].Error, "too few successful draws")
}

func TestCoverageStudy_EndToEnd(t *testing.T) {
	kit := testkit.NewTestKit()
	f := testkit.NewScriptedFitter()
	study := NewCoverageStudy(testkit.SmallParameters(), 6, 3, 10, true, f, bootstrap.NewParametricBootstrap(f, 10))

	artifact, err := newDriver(kit, 2).Run(context.Background(), study)
	require.NoError(t, err)
	assert.Equal(t, core.StudyCoverage, artifact.Config.Study)
	assert.Len(t, artifact.Result.Rows, len(CoverageParameters))
	for _, row := range artifact.Result.Rows {
		assert.Equal(t, 6, row.N)
		assert.NotNil(t, row.Coverage)
		assert.NotNil(t, row.Power)
	}
}
