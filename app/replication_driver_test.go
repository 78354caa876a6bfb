package app

import (
	"context"
	"fmt"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"therapist-effects/adapters/fitter"
	"therapist-effects/domain/core"
	"therapist-effects/domain/dataset"
	"therapist-effects/domain/model"
	"therapist-effects/domain/run"
	"therapist-effects/domain/stats"
	"therapist-effects/internal/errors"
	"therapist-effects/internal/testkit"
)

type mockEvaluator struct {
	mock.Mock
}

func (m *mockEvaluator) Evaluate(ctx context.Context, replicate int, table *dataset.Table, rng *rand.Rand) ([]stats.Estimate, error) {
	args := m.Called(ctx, replicate, table, rng)
	estimates, _ := args.Get(0).([]stats.Estimate)
	return estimates, args.Error(1)
}

func newDriver(kit *testkit.TestKit, workers int) *ReplicationDriver {
	return NewReplicationDriver(kit.Cache(), kit.RNGAdapter(), kit.Generator(), workers)
}

func TestRun_CacheIdempotence(t *testing.T) {
	kit := testkit.NewTestKit()
	driver := newDriver(kit, 3)
	fit := testkit.NewScriptedFitter()
	study := NewBiasStudy(testkit.SmallParameters(), 12, 99, true, fit)

	first, err := driver.Run(context.Background(), study)
	require.NoError(t, err)
	assert.Equal(t, int64(12), driver.Simulated())
	assert.Equal(t, 1, kit.Cache().Stores())
	assert.Equal(t, 12, fit.Calls(model.ConfoundedLMM))

	fp, err := run.NewFingerprint(study.Config)
	require.NoError(t, err)
	assert.Equal(t, run.StatusCached, driver.Status(fp.Key()))

	second, err := driver.Run(context.Background(), study)
	require.NoError(t, err)
	assert.Equal(t, int64(12), driver.Simulated(), "second run must not re-simulate")
	assert.Equal(t, 1, kit.Cache().Stores())
	assert.Equal(t, 12, fit.Calls(model.ConfoundedLMM))

	assert.Equal(t, first.Result, second.Result)
	assert.Equal(t, first.RunID, second.RunID)

	a, err := first.Encode()
	require.NoError(t, err)
	b, err := second.Encode()
	require.NoError(t, err)
	assert.Equal(t, a, b, "bit-identical artifacts")
}

func TestRun_DistinctConfigurationsDoNotShareCache(t *testing.T) {
	kit := testkit.NewTestKit()
	driver := newDriver(kit, 2)
	fit := testkit.NewScriptedFitter()

	_, err := driver.Run(context.Background(), NewBiasStudy(testkit.SmallParameters(), 4, 1, true, fit))
	require.NoError(t, err)
	_, err = driver.Run(context.Background(), NewBiasStudy(testkit.SmallParameters(), 4, 2, true, fit))
	require.NoError(t, err)

	keys, err := kit.Cache().Keys(context.Background())
	require.NoError(t, err)
	assert.Len(t, keys, 2)
	assert.Equal(t, int64(8), driver.Simulated())
}

func TestRun_WorkerCountDoesNotChangeResult(t *testing.T) {
	params := testkit.SmallParameters()
	var results []stats.SimulationResult
	for _, workers := range []int{1, 4} {
		kit := testkit.NewTestKit()
		artifact, err := newDriver(kit, workers).Run(context.Background(),
			NewBiasStudy(params, 8, 2024, true, fitter.NewFitter()))
		require.NoError(t, err)
		results = append(results, artifact.Result)
	}
	assert.Equal(t, results[0], results[1])
}

func TestRun_FitFailuresAreAbsorbed(t *testing.T) {
	kit := testkit.NewTestKit()
	fit := testkit.NewScriptedFitter()
	fit.FailWhen = func(spec model.Spec, table *dataset.Table) error {
		if spec.Name != model.ConfoundedLMM {
			return nil
		}
		// the first patient's outcome decides, so failures vary by replicate
		if table.ConfoundedOutcome[0] > 10 {
			return core.ErrNonConvergence
		}
		return nil
	}

	artifact, err := newDriver(kit, 2).Run(context.Background(), NewBiasStudy(testkit.SmallParameters(), 20, 5, true, fit))
	require.NoError(t, err)

	var failed int
	for _, e := range artifact.Result.Estimates {
		if e.Failed {
			failed++
			assert.Equal(t, model.ConfoundedLMM, e.Model)
			assert.Contains(t, e.Error, "optimizer did not converge")
		}
	}
	require.Greater(t, failed, 0)
	require.Less(t, failed, 20)

	row, ok := artifact.Result.Row(model.ConfoundedLMM, stats.ParamTreatmentEffect)
	require.True(t, ok)
	assert.Equal(t, failed, row.Failures)
	assert.Equal(t, 20-failed, row.N)

	other, ok := artifact.Result.Row(model.RandomLMM, stats.ParamICC)
	require.True(t, ok)
	assert.Equal(t, 20, other.N)
	assert.Equal(t, 0, other.Failures)
	assert.InDelta(t, 0.1/2.35, stats.Value(other.MeanEstimate), 1e-12)
}

func TestRun_ConfigurationErrorIsImmediate(t *testing.T) {
	kit := testkit.NewTestKit()
	driver := newDriver(kit, 2)
	params := testkit.SmallParameters()
	params.ClustersPerArm = 3

	_, err := driver.Run(context.Background(), NewBiasStudy(params, 5, 1, true, testkit.NewScriptedFitter()))
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrOddClusters)
	assert.Equal(t, errors.CodeConfigInvalid, errors.GetCode(err))
	assert.Equal(t, int64(0), driver.Simulated())
	assert.Equal(t, 0, kit.Cache().Loads())
}

func TestRun_CancelledWritesNothing(t *testing.T) {
	kit := testkit.NewTestKit()
	driver := newDriver(kit, 2)
	study := NewBiasStudy(testkit.SmallParameters(), 50, 1, true, testkit.NewScriptedFitter())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := driver.Run(ctx, study)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)

	assert.Equal(t, 0, kit.Cache().Stores())
	fp, err := run.NewFingerprint(study.Config)
	require.NoError(t, err)
	assert.Equal(t, run.StatusFailed, driver.Status(fp.Key()))

	// the next invocation starts from zero and succeeds
	_, err = driver.Run(context.Background(), study)
	require.NoError(t, err)
	assert.Equal(t, run.StatusCached, driver.Status(fp.Key()))
}

func TestRun_EvaluatorErrorAbortsBatch(t *testing.T) {
	kit := testkit.NewTestKit()
	driver := newDriver(kit, 1)

	eval := &mockEvaluator{}
	eval.On("Evaluate", mock.Anything, 0, mock.Anything, mock.Anything).Return([]stats.Estimate{}, nil)
	eval.On("Evaluate", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil, fmt.Errorf("fitter crashed"))

	study := NewBiasStudy(testkit.SmallParameters(), 3, 1, true, testkit.NewScriptedFitter())
	study.Evaluator = eval

	_, err := driver.Run(context.Background(), study)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "fitter crashed")
	assert.Equal(t, 0, kit.Cache().Stores())
	eval.AssertCalled(t, "Evaluate", mock.Anything, 0, mock.Anything, mock.Anything)
}

func TestRun_CorruptArtifactIsRecomputed(t *testing.T) {
	kit := testkit.NewTestKit()
	driver := newDriver(kit, 2)
	study := NewBiasStudy(testkit.SmallParameters(), 4, 8, false, testkit.NewScriptedFitter())

	fp, err := run.NewFingerprint(study.Config)
	require.NoError(t, err)
	require.NoError(t, kit.Cache().Store(context.Background(), fp.Key(), []byte("{not json")))

	_, err = driver.Lookup(context.Background(), study.Config)
	assert.ErrorIs(t, err, core.ErrCacheCorruption)

	artifact, err := driver.Run(context.Background(), study)
	require.NoError(t, err)
	assert.Equal(t, int64(4), driver.Simulated())
	assert.Nil(t, artifact.Result.Estimates, "estimates dropped when not kept")

	cached, err := driver.Lookup(context.Background(), study.Config)
	require.NoError(t, err)
	assert.Equal(t, artifact.Result, cached.Result)
}

func TestRun_SchemaMismatchIsAMiss(t *testing.T) {
	kit := testkit.NewTestKit()
	driver := newDriver(kit, 2)
	study := NewBiasStudy(testkit.SmallParameters(), 4, 8, true, testkit.NewScriptedFitter())

	artifact, err := driver.Run(context.Background(), study)
	require.NoError(t, err)

	stale := *artifact
	stale.SchemaVersion = run.SchemaVersion - 1
	payload, err := stale.Encode()
	require.NoError(t, err)
	fp, err := run.NewFingerprint(study.Config)
	require.NoError(t, err)
	require.NoError(t, kit.Cache().Store(context.Background(), fp.Key(), payload))

	_, err = driver.Run(context.Background(), study)
	require.NoError(t, err)
	assert.Equal(t, int64(8), driver.Simulated(), "stale artifact forces recomputation")
}

func TestInvalidate(t *testing.T) {
	kit := testkit.NewTestKit()
	driver := newDriver(kit, 2)
	study := NewBiasStudy(testkit.SmallParameters(), 2, 3, true, testkit.NewScriptedFitter())

	_, err := driver.Run(context.Background(), study)
	require.NoError(t, err)
	require.NoError(t, driver.Invalidate(context.Background(), study.Config))

	_, err = driver.Lookup(context.Background(), study.Config)
	assert.True(t, core.IsCacheMiss(err))
}

func TestNewReplicationDriver_MinimumOneWorker(t *testing.T) {
	d := NewReplicationDriver(testkit.NewRecordingCache(), nil, nil, 0)
	assert.Equal(t, 1, d.workers)
	assert.Equal(t, run.StatusPending, d.Status("unknown"))
}
