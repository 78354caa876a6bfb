// Package generator draws synthetic clustered-trial tables under confounded
// and random cluster assignment from shared cluster effects and errors.
package generator

import (
	"fmt"
	"math/rand/v2"

	"gonum.org/v1/gonum/stat/distuv"

	"therapist-effects/domain/core"
	"therapist-effects/domain/dataset"
	"therapist-effects/domain/design"
)

// Intercept is the outcome grand mean of the control arm
const Intercept = 10.0

// ClusteredTrialGenerator implements ports.GeneratorPort
type ClusteredTrialGenerator struct{}

// NewClusteredTrialGenerator creates the data generator
func NewClusteredTrialGenerator() *ClusteredTrialGenerator {
	return &ClusteredTrialGenerator{}
}

// Generate draws one table of 2*n1*n2 patients.
//
// Cluster ids 1..n2 are control, n2+1..2n2 treatment. The first half of the
// patients is control and the second half treatment (fixed block design).
// Under confounded assignment covariate-0 patients go to the low half of their
// arm's clusters and covariate-1 patients to the high half; under random
// assignment patients pick from the whole arm. Both outcomes reuse the same
// cluster effects and errors.
func (g *ClusteredTrialGenerator) Generate(params design.Parameters, rng *rand.Rand) (*dataset.Table, error) {
	n1, n2 := params.PatientsPerCluster, params.ClustersPerArm
	if n1 <= 0 || n2 <= 0 {
		return nil, fmt.Errorf("%w: n1=%d n2=%d", core.ErrNonPositive, n1, n2)
	}
	if n2%2 != 0 {
		return nil, fmt.Errorf("%w: n2=%d", core.ErrOddClusters, n2)
	}
	if rng == nil {
		return nil, fmt.Errorf("generator needs a random source")
	}

	clusterDist := distuv.Normal{Mu: 0, Sigma: params.ClusterSD, Src: rng}
	errorDist := distuv.Normal{Mu: 0, Sigma: params.ErrorSD, Src: rng}
	coinDist := distuv.Bernoulli{P: 0.5, Src: rng}

	// 1. cluster effects, control then treatment, indexed by id-1
	effects := make([]float64, 2*n2)
	for i := range effects {
		effects[i] = clusterDist.Rand()
	}

	n := 2 * n1 * n2
	half := n2 / 2
	table := dataset.NewTable(n, 2*n2)

	for i := 0; i < n; i++ {
		// 2-3. covariate and block treatment assignment
		x := coinDist.Rand()
		z := 0
		if i >= n/2 {
			z = 1
		}
		armOffset := z * n2

		// 4. confounded: covariate picks the low or high half of the arm
		confounded := armOffset + int(x)*half + rng.IntN(half) + 1
		// 5. random: any cluster of the arm
		random := armOffset + rng.IntN(n2) + 1
		// 6. shared error
		e := errorDist.Rand()

		base := Intercept + float64(z)*params.AverageTreatmentEffect + e
		table.Treatment[i] = float64(z)
		table.Covariate[i] = x
		table.ConfoundedCluster[i] = confounded
		table.RandomCluster[i] = random
		// 7-8. outcomes
		table.ConfoundedOutcome[i] = base + effects[confounded-1] + x*params.ConfoundMeanShift
		table.RandomOutcome[i] = base + effects[random-1]
	}

	return table, nil
}
