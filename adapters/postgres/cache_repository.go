package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"

	"therapist-effects/domain/core"
	"therapist-effects/ports"
)

// cacheRepository implements ports.CacheStore on the simulation_cache table
type cacheRepository struct {
	db *sqlx.DB
}

// NewCacheRepository creates a Postgres-backed artifact cache
func NewCacheRepository(db *sqlx.DB) ports.CacheStore {
	return &cacheRepository{db: db}
}

// Load retrieves the artifact payload stored under key
func (r *cacheRepository) Load(ctx context.Context, key string) ([]byte, error) {
	var payload []byte
	err := r.db.QueryRowContext(ctx, `SELECT payload FROM simulation_cache WHERE key = $1`, key).Scan(&payload)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("%w: %s", core.ErrCacheMiss, key)
		}
		return nil, fmt.Errorf("failed to load cache entry: %w", err)
	}
	return payload, nil
}

// Store upserts the payload; a single statement is atomic
func (r *cacheRepository) Store(ctx context.Context, key string, payload []byte) error {
	query := `INSERT INTO simulation_cache (key, study, payload, created_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (key) DO UPDATE SET payload = EXCLUDED.payload, created_at = EXCLUDED.created_at`

	if _, err := r.db.ExecContext(ctx, query, key, studyOf(key), payload); err != nil {
		return fmt.Errorf("failed to store cache entry: %w", err)
	}
	return nil
}

// Delete removes the entry for key
func (r *cacheRepository) Delete(ctx context.Context, key string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM simulation_cache WHERE key = $1`, key); err != nil {
		return fmt.Errorf("failed to delete cache entry: %w", err)
	}
	return nil
}

// Keys lists every cache key in sorted order
func (r *cacheRepository) Keys(ctx context.Context) ([]string, error) {
	var keys []string
	if err := r.db.SelectContext(ctx, &keys, `SELECT key FROM simulation_cache ORDER BY key`); err != nil {
		return nil, fmt.Errorf("failed to list cache keys: %w", err)
	}
	return keys, nil
}

// Close closes the connection pool
func (r *cacheRepository) Close() error {
	return r.db.Close()
}

// studyOf extracts the study name from a "<study>-<hash>" key
func studyOf(key string) string {
	if i := strings.LastIndex(key, "-"); i > 0 {
		return key[:i]
	}
	return key
}
