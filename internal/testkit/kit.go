// Package testkit provides fakes and fixtures for driver and surface tests.
package testkit

import (
	"context"
	"sync"

	"therapist-effects/adapters/cache"
	"therapist-effects/adapters/generator"
	"therapist-effects/adapters/rng"
	"therapist-effects/domain/design"
	"therapist-effects/ports"
)

// TestKit provides testing utilities and fixtures
type TestKit struct {
	cache *RecordingCache
}

// NewTestKit creates a kit with an empty in-memory cache
func NewTestKit() *TestKit {
	return &TestKit{cache: NewRecordingCache()}
}

// Cache returns the shared recording cache
func (t *TestKit) Cache() *RecordingCache { return t.cache }

// RNGAdapter returns the production stream adapter; it is already deterministic
func (t *TestKit) RNGAdapter() ports.RNGPort { return rng.NewStreamAdapter() }

// Generator returns the production data generator
func (t *TestKit) Generator() ports.GeneratorPort { return generator.NewClusteredTrialGenerator() }

// SmallKnobs is a design small enough to simulate many times in a unit test
func SmallKnobs() design.Knobs {
	k := design.DefaultKnobs()
	k.PatientsPerCluster = 5
	k.ClustersPerArm = 4
	return k
}

// SmallParameters resolves SmallKnobs
func SmallParameters() design.Parameters {
	p, err := design.Resolve(SmallKnobs())
	if err != nil {
		panic(err)
	}
	return p
}

// RecordingCache is an in-memory cache that counts reads and writes
type RecordingCache struct {
	*cache.MemoryStore

	mu     sync.Mutex
	loads  int
	stores int
}

// NewRecordingCache creates an empty recording cache
func NewRecordingCache() *RecordingCache {
	return &RecordingCache{MemoryStore: cache.NewMemoryStore()}
}

// Load counts and delegates
func (c *RecordingCache) Load(ctx context.Context, key string) ([]byte, error) {
	c.mu.Lock()
	c.loads++
	c.mu.Unlock()
	return c.MemoryStore.Load(ctx, key)
}

// Store counts and delegates
func (c *RecordingCache) Store(ctx context.Context, key string, payload []byte) error {
	c.mu.Lock()
	c.stores++
	c.mu.Unlock()
	return c.MemoryStore.Store(ctx, key, payload)
}

// Loads returns the number of Load calls
func (c *RecordingCache) Loads() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.loads
}

// Stores returns the number of Store calls
func (c *RecordingCache) Stores() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stores
}

var _ ports.CacheStore = (*RecordingCache)(nil)
