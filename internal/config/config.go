package config

import (
	"os"
	"runtime"
	"strconv"
	"strings"

	"therapist-effects/internal/errors"
)

// Config represents the complete application configuration
type Config struct {
	Simulation SimulationConfig
	Cache      CacheConfig
	Server     ServerConfig
	Studies    Studies
}

// Profile selects the full or the reduced (anonymized) report mode
type Profile string

const (
	ProfileFull       Profile = "full"
	ProfileAnonymized Profile = "anonymized"
)

// SimulationConfig holds replication settings
type SimulationConfig struct {
	MaxWorkers     int
	Replications   int
	CIReplications int
	BootstrapDraws int
	Seed           uint64
	Profile        Profile
}

// CacheBackend names an artifact store implementation
type CacheBackend string

const (
	CacheFile     CacheBackend = "file"
	CacheMemory   CacheBackend = "memory"
	CacheBadger   CacheBackend = "badger"
	CachePostgres CacheBackend = "postgres"
)

// CacheConfig selects and locates the artifact store
type CacheConfig struct {
	Backend     CacheBackend
	Dir         string
	DatabaseURL string
}

// ServerConfig holds web server settings
type ServerConfig struct {
	Port    string
	GinMode string
}

// Defaults
const (
	DefaultReplications   = 1000
	DefaultCIReplications = 200
	DefaultBootstrapDraws = 200
	DefaultSeed           = 20240101
	anonymizedFraction    = 0.1
	anonymizedMinimum     = 20
)

// Load reads configuration from environment variables and validates it
func Load() (*Config, error) {
	config := &Config{}

	simConfig, err := loadSimulationConfig()
	if err != nil {
		return nil, errors.Wrap(err, "failed to load simulation configuration")
	}
	config.Simulation = *simConfig
	config.Cache = *loadCacheConfig()
	config.Server = *loadServerConfig()

	studies, err := LoadStudies(os.Getenv("STUDY_FILE"))
	if err != nil {
		return nil, errors.Wrap(err, "failed to load study file")
	}
	config.Studies = *studies

	if err := config.Validate(); err != nil {
		return nil, errors.Wrap(err, "configuration validation failed")
	}
	return config, nil
}

func loadSimulationConfig() (*SimulationConfig, error) {
	maxWorkers, err := getEnvInt("SIM_MAX_WORKERS", defaultWorkers())
	if err != nil {
		return nil, err
	}
	replications, err := getEnvInt("SIM_REPLICATIONS", DefaultReplications)
	if err != nil {
		return nil, err
	}
	ciReplications, err := getEnvInt("SIM_CI_REPLICATIONS", DefaultCIReplications)
	if err != nil {
		return nil, err
	}
	draws, err := getEnvInt("SIM_BOOTSTRAP_DRAWS", DefaultBootstrapDraws)
	if err != nil {
		return nil, err
	}
	seed := uint64(DefaultSeed)
	if value := os.Getenv("SIM_SEED"); value != "" {
		if seed, err = strconv.ParseUint(value, 10, 64); err != nil {
			return nil, errors.ConfigInvalid("SIM_SEED must be a non-negative integer")
		}
	}

	return &SimulationConfig{
		MaxWorkers:     maxWorkers,
		Replications:   replications,
		CIReplications: ciReplications,
		BootstrapDraws: draws,
		Seed:           seed,
		Profile:        Profile(strings.ToLower(getEnvOrDefault("SIM_PROFILE", string(ProfileFull)))),
	}, nil
}

func loadCacheConfig() *CacheConfig {
	return &CacheConfig{
		Backend:     CacheBackend(strings.ToLower(getEnvOrDefault("CACHE_BACKEND", string(CacheFile)))),
		Dir:         getEnvOrDefault("CACHE_DIR", "./cache"),
		DatabaseURL: os.Getenv("DATABASE_URL"),
	}
}

func loadServerConfig() *ServerConfig {
	return &ServerConfig{
		Port:    getEnvOrDefault("PORT", "8080"),
		GinMode: getEnvOrDefault("GIN_MODE", "release"),
	}
}

// Validate checks every section
func (c *Config) Validate() error {
	s := c.Simulation
	if s.MaxWorkers < 1 {
		return errors.ConfigInvalid("SIM_MAX_WORKERS must be at least 1")
	}
	if s.Replications < 1 || s.CIReplications < 1 {
		return errors.ConfigInvalid("replication counts must be positive")
	}
	if s.BootstrapDraws < 2 {
		return errors.ConfigInvalid("SIM_BOOTSTRAP_DRAWS must be at least 2")
	}
	if s.Profile != ProfileFull && s.Profile != ProfileAnonymized {
		return errors.ConfigInvalid("SIM_PROFILE must be full or anonymized")
	}

	switch c.Cache.Backend {
	case CacheMemory:
	case CacheFile, CacheBadger:
		if c.Cache.Dir == "" {
			return errors.ConfigInvalid("CACHE_DIR is required for the " + string(c.Cache.Backend) + " cache")
		}
	case CachePostgres:
		if c.Cache.DatabaseURL == "" {
			return errors.ConfigInvalid("DATABASE_URL is required for the postgres cache")
		}
	default:
		return errors.ConfigInvalid("CACHE_BACKEND must be file, memory, badger or postgres")
	}

	return c.Studies.Validate()
}

// Workers returns min(MaxWorkers, NumCPU-1), at least 1
func (s SimulationConfig) Workers() int {
	return WorkerCount(s.MaxWorkers, runtime.NumCPU())
}

// WorkerCount bounds the pool by the configured maximum and available cores
func WorkerCount(maxWorkers, cpus int) int {
	n := cpus - 1
	if maxWorkers < n {
		n = maxWorkers
	}
	if n < 1 {
		n = 1
	}
	return n
}

// EffectiveReplicates applies the run profile to a replicate count
func (s SimulationConfig) EffectiveReplicates(n int) int {
	if s.Profile != ProfileAnonymized {
		return n
	}
	reduced := int(float64(n) * anonymizedFraction)
	if reduced < anonymizedMinimum {
		reduced = anonymizedMinimum
	}
	if reduced > n {
		reduced = n
	}
	return reduced
}

// KeepEstimates reports whether per-replicate tables are persisted and exported
func (s SimulationConfig) KeepEstimates() bool {
	return s.Profile != ProfileAnonymized
}

func defaultWorkers() int {
	return WorkerCount(runtime.NumCPU(), runtime.NumCPU())
}

// Helper functions for environment variable parsing
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	intValue, err := strconv.Atoi(value)
	if err != nil {
		return 0, errors.ConfigInvalid(key + " must be an integer")
	}
	return intValue, nil
}
