package ports

import (
	"context"

	"therapist-effects/domain/dataset"
	"therapist-effects/domain/model"
)

// ModelFitter fits one model to one table.
// Non-convergence is returned as an error wrapping core.ErrFitFailure, never a panic.
type ModelFitter interface {
	Fit(ctx context.Context, table *dataset.Table, spec model.Spec) (*model.Fit, error)
}
