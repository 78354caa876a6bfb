package migration

import (
	"context"

	"therapist-effects/internal/errors"

	"github.com/jmoiron/sqlx"
)

// Migrator defines the interface for database migration operations
type Migrator interface {
	Run(ctx context.Context, db *sqlx.DB) error
	Version() string
}

// MigrationRunner handles database schema migrations
type MigrationRunner struct {
	version string
}

// NewRunner creates a new migration runner
func NewRunner() *MigrationRunner {
	return &MigrationRunner{
		version: "2.0.0",
	}
}

// Version returns the migration version
func (r *MigrationRunner) Version() string {
	return r.version
}

// Statements returns the DDL in execution order
func (r *MigrationRunner) Statements() []string {
	return []string{createSimulationCacheTable, createSimulationCacheStudyIndex}
}

// Run executes all database migrations in the correct order
func (r *MigrationRunner) Run(ctx context.Context, db *sqlx.DB) error {
	if _, err := db.ExecContext(ctx, createSimulationCacheTable); err != nil {
		return errors.WithCode(errors.CodeCacheError, errors.Wrap(err, "failed to create simulation_cache table"))
	}
	if _, err := db.ExecContext(ctx, createSimulationCacheStudyIndex); err != nil {
		return errors.WithCode(errors.CodeCacheError, errors.Wrap(err, "failed to create simulation_cache index"))
	}
	return nil
}

const createSimulationCacheTable = `
		CREATE TABLE IF NOT EXISTS simulation_cache (
			key VARCHAR(128) PRIMARY KEY,
			study VARCHAR(64) NOT NULL,
			payload BYTEA NOT NULL,
			created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
		)
	`

const createSimulationCacheStudyIndex = `
		CREATE INDEX IF NOT EXISTS idx_simulation_cache_study ON simulation_cache(study)
	`
