package ports

import (
	"math/rand/v2"

	"therapist-effects/domain/dataset"
	"therapist-effects/domain/design"
)

// GeneratorPort draws one synthetic trial table per call
type GeneratorPort interface {
	Generate(params design.Parameters, rng *rand.Rand) (*dataset.Table, error)
}
