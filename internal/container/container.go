package container

import (
	"context"
	"fmt"
	"log"
	"path/filepath"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"therapist-effects/adapters/cache"
	"therapist-effects/adapters/fitter"
	"therapist-effects/adapters/generator"
	"therapist-effects/adapters/postgres"
	"therapist-effects/adapters/rng"
	"therapist-effects/app"
	"therapist-effects/internal/config"
	"therapist-effects/internal/errors"
	"therapist-effects/internal/migration"
	"therapist-effects/ports"
)

// Container holds all application dependencies and manages their lifecycle
type Container struct {
	Config *config.Config

	// Infrastructure
	DB    *sqlx.DB
	Cache ports.CacheStore

	// Simulation components
	Fitter  ports.ModelFitter
	Driver  *app.ReplicationDriver
	Catalog *app.Catalog
}

// New creates a new dependency injection container and opens the configured cache
func New(ctx context.Context, cfg *config.Config) (*Container, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}

	c := &Container{
		Config: cfg,
		Fitter: fitter.NewFitter(),
	}

	if err := c.initCache(ctx); err != nil {
		return nil, errors.Wrap(err, "failed to initialize cache")
	}

	c.Driver = app.NewReplicationDriver(c.Cache, rng.NewStreamAdapter(),
		generator.NewClusteredTrialGenerator(), cfg.Simulation.Workers())
	c.Catalog = app.NewCatalog(cfg.Simulation, cfg.Studies, c.Fitter)

	log.Printf("Container initialized: cache=%s workers=%d profile=%s",
		cfg.Cache.Backend, cfg.Simulation.Workers(), cfg.Simulation.Profile)
	return c, nil
}

// initCache opens the artifact store named by the configuration
func (c *Container) initCache(ctx context.Context) error {
	cc := c.Config.Cache
	switch cc.Backend {
	case config.CacheMemory:
		c.Cache = cache.NewMemoryStore()
	case config.CacheFile:
		store, err := cache.NewFileStore(cc.Dir)
		if err != nil {
			return err
		}
		c.Cache = store
	case config.CacheBadger:
		store, err := cache.OpenBadgerStore(cache.DefaultBadgerConfig(filepath.Join(cc.Dir, "badger")))
		if err != nil {
			return err
		}
		c.Cache = store
	case config.CachePostgres:
		db, err := OpenDatabase(ctx, cc.DatabaseURL)
		if err != nil {
			return err
		}
		c.DB = db
		c.Cache = postgres.NewCacheRepository(db)
	default:
		return errors.ConfigInvalid("unknown cache backend " + string(cc.Backend))
	}
	return nil
}

// OpenDatabase connects to PostgreSQL and applies the schema migrations
func OpenDatabase(ctx context.Context, databaseURL string) (*sqlx.DB, error) {
	db, err := sqlx.Connect("postgres", databaseURL)
	if err != nil {
		return nil, errors.CacheError("failed to connect to database", err)
	}

	// Test database connection
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, errors.CacheError("database connection test failed", err)
	}

	runner := migration.NewRunner()
	if err := runner.Run(ctx, db); err != nil {
		db.Close()
		return nil, err
	}
	log.Printf("Database schema at version %s", runner.Version())
	return db, nil
}

// Shutdown closes the cache. The postgres cache owns the database pool.
func (c *Container) Shutdown(ctx context.Context) error {
	if c.Cache == nil {
		return nil
	}
	return c.Cache.Close()
}
