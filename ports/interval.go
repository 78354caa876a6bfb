package ports

import (
	"context"
	"math/rand/v2"

	"therapist-effects/domain/dataset"
	"therapist-effects/domain/model"
)

// Draws holds resampled (or posterior) values of the random-intercept model
// parameters. The three slices have equal length.
type Draws struct {
	TreatmentEffect []float64
	ClusterSD       []float64
	ResidualSD      []float64
}

// Len returns the number of draws
func (d Draws) Len() int {
	return len(d.TreatmentEffect)
}

// IntervalSource produces draws for a fitted clustered model
type IntervalSource interface {
	Draws(ctx context.Context, table *dataset.Table, spec model.Spec, fit *model.Fit, rng *rand.Rand) (Draws, error)
}
