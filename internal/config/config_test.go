package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"therapist-effects/domain/core"
	"therapist-effects/internal/errors"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"SIM_MAX_WORKERS", "SIM_REPLICATIONS", "SIM_CI_REPLICATIONS", "SIM_BOOTSTRAP_DRAWS",
		"SIM_SEED", "SIM_PROFILE", "CACHE_BACKEND", "CACHE_DIR", "DATABASE_URL", "STUDY_FILE",
		"PORT", "GIN_MODE",
	} {
		t.Setenv(key, "")
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, DefaultReplications, cfg.Simulation.Replications)
	assert.Equal(t, DefaultCIReplications, cfg.Simulation.CIReplications)
	assert.Equal(t, DefaultBootstrapDraws, cfg.Simulation.BootstrapDraws)
	assert.Equal(t, uint64(DefaultSeed), cfg.Simulation.Seed)
	assert.Equal(t, ProfileFull, cfg.Simulation.Profile)
	assert.GreaterOrEqual(t, cfg.Simulation.MaxWorkers, 1)
	assert.Equal(t, CacheFile, cfg.Cache.Backend)
	assert.Equal(t, "./cache", cfg.Cache.Dir)
	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, "release", cfg.Server.GinMode)
	assert.Equal(t, DefaultStudies(), cfg.Studies)
	assert.Equal(t, 40, cfg.Studies.CI.ClustersPerArm)
}

func TestLoad_Overrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("SIM_MAX_WORKERS", "3")
	t.Setenv("SIM_REPLICATIONS", "50")
	t.Setenv("SIM_SEED", "7")
	t.Setenv("SIM_PROFILE", "Anonymized")
	t.Setenv("CACHE_BACKEND", "memory")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 3, cfg.Simulation.MaxWorkers)
	assert.Equal(t, 50, cfg.Simulation.Replications)
	assert.Equal(t, uint64(7), cfg.Simulation.Seed)
	assert.Equal(t, ProfileAnonymized, cfg.Simulation.Profile)
	assert.Equal(t, CacheMemory, cfg.Cache.Backend)
	assert.False(t, cfg.Simulation.KeepEstimates())
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"non-integer replications", map[string]string{"SIM_REPLICATIONS": "many"}},
		{"zero workers", map[string]string{"SIM_MAX_WORKERS": "0"}},
		{"negative seed", map[string]string{"SIM_SEED": "-1"}},
		{"unknown profile", map[string]string{"SIM_PROFILE": "fast"}},
		{"unknown backend", map[string]string{"CACHE_BACKEND": "redis"}},
		{"postgres without url", map[string]string{"CACHE_BACKEND": "postgres"}},
		{"missing study file", map[string]string{"STUDY_FILE": "/does/not/exist.yaml"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := Load()
			require.Error(t, err)
			assert.Equal(t, errors.CodeConfigInvalid, errors.GetCode(err))
		})
	}
}

func TestWorkerCount(t *testing.T) {
	tests := []struct {
		max, cpus, want int
	}{
		{8, 4, 3},
		{2, 16, 2},
		{8, 1, 1},
		{0, 8, 1},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, WorkerCount(tt.max, tt.cpus), "max=%d cpus=%d", tt.max, tt.cpus)
	}
}

func TestEffectiveReplicates(t *testing.T) {
	full := SimulationConfig{Profile: ProfileFull}
	anon := SimulationConfig{Profile: ProfileAnonymized}

	assert.Equal(t, 1000, full.EffectiveReplicates(1000))
	assert.Equal(t, 100, anon.EffectiveReplicates(1000))
	assert.Equal(t, 20, anon.EffectiveReplicates(100), "minimum of 20")
	assert.Equal(t, 10, anon.EffectiveReplicates(10), "never more than requested")
	assert.True(t, full.KeepEstimates())
}

func TestLoadStudies(t *testing.T) {
	path := filepath.Join(t.TempDir(), "studies.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
main:
  icc: 0.1
  n2: 12
ci:
  cohens_d: 0.8
`), 0o644))

	studies, err := LoadStudies(path)
	require.NoError(t, err)
	assert.Equal(t, 0.1, studies.Main.ICC)
	assert.Equal(t, 12, studies.Main.ClustersPerArm)
	assert.Equal(t, 1.5, studies.Main.ErrorSD, "unset keys keep defaults")
	assert.Equal(t, 0.8, studies.CI.CohensD)
	assert.Equal(t, CIClustersPerArm, studies.CI.ClustersPerArm)
	require.NoError(t, studies.Validate())
}

func TestStudies_ValidateOddClusters(t *testing.T) {
	studies := DefaultStudies()
	require.NoError(t, ParseStudies([]byte("main:\n  n2: 9\n"), &studies))

	err := studies.Validate()
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrOddClusters)
	assert.Equal(t, errors.CodeConfigInvalid, errors.GetCode(err))

	assert.Error(t, ParseStudies([]byte("main: [1, 2"), &studies))
}
