package generator

import (
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/stat"

	"therapist-effects/domain/core"
	"therapist-effects/domain/design"
)

func scenario(t *testing.T) design.Parameters {
	t.Helper()
	params, err := design.Resolve(design.Knobs{
		ICC: 0.05, ErrorSD: 1.5, ConfoundICC: 0.05, CohensD: 0.5,
		PatientsPerCluster: 20, ClustersPerArm: 10,
	})
	require.NoError(t, err)
	return params
}

func TestGenerate_Shape(t *testing.T) {
	params := scenario(t)
	table, err := NewClusteredTrialGenerator().Generate(params, rand.New(rand.NewPCG(1, 2)))
	require.NoError(t, err)
	require.NoError(t, table.Validate())

	assert.Equal(t, 400, table.RowCount())
	assert.Equal(t, 20, table.Clusters)

	n2, half := params.ClustersPerArm, params.ClustersPerArm/2
	for i := 0; i < table.RowCount(); i++ {
		row := table.Row(i)
		wantZ := 0
		if i >= 200 {
			wantZ = 1
		}
		require.Equal(t, wantZ, row.Treatment, "row %d: block treatment assignment", i)

		lo := wantZ*n2 + row.Covariate*half + 1
		assert.GreaterOrEqual(t, row.ConfoundedCluster, lo)
		assert.Less(t, row.ConfoundedCluster, lo+half)

		assert.GreaterOrEqual(t, row.RandomCluster, wantZ*n2+1)
		assert.LessOrEqual(t, row.RandomCluster, wantZ*n2+n2)
	}
}

func TestGenerate_SharedEffectsAndErrors(t *testing.T) {
	params := scenario(t)
	table, err := NewClusteredTrialGenerator().Generate(params, rand.New(rand.NewPCG(7, 7)))
	require.NoError(t, err)

	matched := 0
	for i := 0; i < table.RowCount(); i++ {
		if table.ConfoundedCluster[i] != table.RandomCluster[i] {
			continue
		}
		matched++
		diff := table.ConfoundedOutcome[i] - table.RandomOutcome[i]
		assert.InDelta(t, table.Covariate[i]*params.ConfoundMeanShift, diff, 1e-9)
	}
	assert.Greater(t, matched, 0, "some patients should land in the same cluster under both mechanisms")
}

func TestGenerate_Deterministic(t *testing.T) {
	params := scenario(t)
	g := NewClusteredTrialGenerator()
	a, err := g.Generate(params, rand.New(rand.NewPCG(11, 0)))
	require.NoError(t, err)
	b, err := g.Generate(params, rand.New(rand.NewPCG(11, 0)))
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestGenerate_ConfoundRaisesCovariateCorrelation(t *testing.T) {
	params := scenario(t)
	g := NewClusteredTrialGenerator()

	const reps = 300
	var confSum, randSum float64
	for r := 0; r < reps; r++ {
		table, err := g.Generate(params, rand.New(rand.NewPCG(99, uint64(r))))
		require.NoError(t, err)
		confSum += stat.Correlation(table.ConfoundedOutcome, table.Covariate, nil)
		randSum += stat.Correlation(table.RandomOutcome, table.Covariate, nil)
	}
	confMean, randMean := confSum/reps, randSum/reps

	// y_random is independent of the covariate; y_confounded carries a shift of
	// about 0.56 outcome units against a total SD of about 1.55.
	assert.InDelta(t, 0, randMean, 0.02)
	assert.Greater(t, confMean-randMean, 0.1)
}

func TestGenerate_Errors(t *testing.T) {
	params := scenario(t)
	g := NewClusteredTrialGenerator()

	odd := params
	odd.ClustersPerArm = 9
	_, err := g.Generate(odd, rand.New(rand.NewPCG(1, 1)))
	assert.ErrorIs(t, err, core.ErrOddClusters)

	_, err = g.Generate(params, nil)
	assert.Error(t, err)
}
