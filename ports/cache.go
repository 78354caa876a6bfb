package ports

import (
	"context"
)

// CacheReader reads persisted study artifacts
type CacheReader interface {
	// Load returns the payload stored under key, or an error wrapping
	// core.ErrCacheMiss when nothing is stored.
	Load(ctx context.Context, key string) ([]byte, error)
}

// CacheWriter persists study artifacts. Store must be atomic: a reader
// never observes a partially written payload.
type CacheWriter interface {
	Store(ctx context.Context, key string, payload []byte) error
	Delete(ctx context.Context, key string) error
}

// CacheStore combines read and write access
type CacheStore interface {
	CacheReader
	CacheWriter
	// Keys lists stored keys, sorted
	Keys(ctx context.Context) ([]string, error)
	Close() error
}
