package ports

import (
	"context"
	"math/rand/v2"
)

// RNGPort provides seeded random number generation for deterministic operations
type RNGPort interface {
	// Stream returns an independent generator for one replicate of a study.
	// The same (study, replicate, seed) always yields the same stream, and
	// distinct replicates never share state.
	Stream(ctx context.Context, study string, replicate int, seed uint64) (*rand.Rand, error)
}
