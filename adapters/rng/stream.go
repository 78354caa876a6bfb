// Package rng hands out one independent PCG stream per study replicate.
package rng

import (
	"context"
	"fmt"
	"math/rand/v2"
)

// StreamAdapter implements ports.RNGPort with math/rand/v2 PCG generators.
// The first PCG word mixes the base seed with the study name, the second is
// the replicate index, so streams never overlap across replicates.
type StreamAdapter struct{}

// NewStreamAdapter creates the production RNG adapter
func NewStreamAdapter() *StreamAdapter {
	return &StreamAdapter{}
}

// Stream returns the generator for one replicate
func (a *StreamAdapter) Stream(ctx context.Context, study string, replicate int, seed uint64) (*rand.Rand, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if replicate < 0 {
		return nil, fmt.Errorf("replicate index must be non-negative, got %d", replicate)
	}
	return rand.New(rand.NewPCG(seed^uint64(hashString(study))<<32, uint64(replicate))), nil
}

// hashString creates a simple hash for deterministic seeding
func hashString(s string) uint32 {
	var hash uint32 = 5381
	for _, c := range s {
		hash = ((hash << 5) + hash) + uint32(c) // djb2
	}
	return hash
}
