package app

import (
	"context"
	"fmt"
	"math/rand/v2"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"therapist-effects/domain/core"
	"therapist-effects/domain/dataset"
	"therapist-effects/domain/run"
	"therapist-effects/domain/stats"
	"therapist-effects/internal"
	"therapist-effects/internal/analysis"
	"therapist-effects/internal/errors"
	"therapist-effects/ports"
)

// ReplicateEvaluator fits one replicate's table and returns its estimates.
// Fit failures are returned as failure records, not errors; an error aborts
// the whole batch (cancellation, broken collaborators).
type ReplicateEvaluator interface {
	Evaluate(ctx context.Context, replicate int, table *dataset.Table, rng *rand.Rand) ([]stats.Estimate, error)
}

// Study is one configuration plus the work to run per replicate
type Study struct {
	Config     run.Config
	Parameters []stats.Parameter
	Evaluator  ReplicateEvaluator
}

// ReplicationDriver runs a study once per configuration: cache-or-compute.
type ReplicationDriver struct {
	cache     ports.CacheStore
	rng       ports.RNGPort
	generator ports.GeneratorPort
	workers   int
	logger    *internal.Logger

	mu       sync.Mutex
	statuses map[string]run.Status

	simulated atomic.Int64
}

// NewReplicationDriver creates a driver with a bounded worker pool
func NewReplicationDriver(cache ports.CacheStore, rng ports.RNGPort, generator ports.GeneratorPort, workers int) *ReplicationDriver {
	if workers < 1 {
		workers = 1
	}
	return &ReplicationDriver{
		cache:     cache,
		rng:       rng,
		generator: generator,
		workers:   workers,
		logger:    internal.DefaultLogger,
		statuses:  make(map[string]run.Status),
	}
}

// Simulated returns how many replicates this driver has generated
func (d *ReplicationDriver) Simulated() int64 {
	return d.simulated.Load()
}

// Status returns the lifecycle state of a cache key
func (d *ReplicationDriver) Status(key string) run.Status {
	d.mu.Lock()
	defer d.mu.Unlock()
	if s, ok := d.statuses[key]; ok {
		return s
	}
	return run.StatusPending
}

func (d *ReplicationDriver) transition(key string, next run.Status) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if next == run.StatusPending {
		d.statuses[key] = next
		return
	}
	current, ok := d.statuses[key]
	if !ok || current.Terminal() {
		current = run.StatusPending
	}
	if !current.CanTransition(next) {
		d.logger.Warn("[ReplicationDriver] %s: ignoring transition %s -> %s", key, current, next)
		return
	}
	d.statuses[key] = next
	d.logger.Info("[ReplicationDriver] %s: %s -> %s", key, current, next)
}

// Lookup returns the cached artifact for cfg without computing anything.
// Missing and corrupt artifacts both return an error wrapping core.ErrCacheMiss
// or core.ErrCacheCorruption.
func (d *ReplicationDriver) Lookup(ctx context.Context, cfg run.Config) (*run.Artifact, error) {
	fp, err := run.NewFingerprint(cfg)
	if err != nil {
		return nil, errors.Wrap(err, "failed to fingerprint configuration")
	}
	payload, err := d.cache.Load(ctx, fp.Key())
	if err != nil {
		return nil, err
	}
	return run.DecodeArtifact(fp, payload)
}

// Invalidate deletes the cached artifact of cfg, forcing the next Run to recompute
func (d *ReplicationDriver) Invalidate(ctx context.Context, cfg run.Config) error {
	fp, err := run.NewFingerprint(cfg)
	if err != nil {
		return errors.Wrap(err, "failed to fingerprint configuration")
	}
	return d.cache.Delete(ctx, fp.Key())
}

// Run returns the cached artifact for the study configuration or computes,
// stores and returns it. Nothing is written unless every replicate finished.
func (d *ReplicationDriver) Run(ctx context.Context, study Study) (*run.Artifact, error) {
	cfg := study.Config
	if err := cfg.Validate(); err != nil {
		return nil, errors.WithCode(errors.CodeConfigInvalid, err)
	}
	if study.Evaluator == nil {
		return nil, errors.ConfigInvalid("study has no evaluator")
	}
	fp, err := run.NewFingerprint(cfg)
	if err != nil {
		return nil, errors.Wrap(err, "failed to fingerprint configuration")
	}
	key := fp.Key()
	d.transition(key, run.StatusPending)

	if artifact, err := d.loadCached(ctx, fp); err == nil {
		d.transition(key, run.StatusCached)
		return artifact, nil
	}

	d.transition(key, run.StatusRunning)
	start := time.Now()

	estimates, err := d.simulate(ctx, study)
	if err != nil {
		d.transition(key, run.StatusFailed)
		return nil, errors.Wrapf(err, "study %s aborted", cfg.Study)
	}

	result := analysis.Aggregate(estimates, analysis.Plan{
		Models:        modelNames(cfg),
		Parameters:    study.Parameters,
		Truths:        cfg.Truths,
		Replicates:    cfg.Replicates,
		KeepEstimates: cfg.KeepEstimates,
	})

	payload, err := run.NewArtifact(fp, core.NewRunID(), result).Encode()
	if err != nil {
		d.transition(key, run.StatusFailed)
		return nil, errors.Wrap(err, "failed to encode artifact")
	}
	// workers are done; this is the only writer
	if err := d.cache.Store(ctx, key, payload); err != nil {
		d.transition(key, run.StatusFailed)
		return nil, errors.CacheError("failed to store artifact "+key, err)
	}
	artifact, err := run.DecodeArtifact(fp, payload)
	if err != nil {
		d.transition(key, run.StatusFailed)
		return nil, errors.CacheError("stored artifact does not decode", err)
	}

	d.transition(key, run.StatusCached)
	d.logger.Info("[ReplicationDriver] %s: %d replicates in %s", key, cfg.Replicates, time.Since(start).Round(time.Millisecond))
	return artifact, nil
}

func (d *ReplicationDriver) loadCached(ctx context.Context, fp run.Fingerprint) (*run.Artifact, error) {
	payload, err := d.cache.Load(ctx, fp.Key())
	if err != nil {
		if !core.IsCacheMiss(err) {
			d.logger.Warn("[ReplicationDriver] %s: cache read failed, recomputing: %v", fp.Key(), err)
		}
		return nil, err
	}
	artifact, err := run.DecodeArtifact(fp, payload)
	if err != nil {
		d.logger.Warn("[ReplicationDriver] %s: %v; recomputing", fp.Key(), err)
		return nil, err
	}
	return artifact, nil
}

// simulate fans replicates out over the worker pool. Results are written to
// per-replicate slots, so completion order does not matter.
func (d *ReplicationDriver) simulate(ctx context.Context, study Study) ([]stats.Estimate, error) {
	cfg := study.Config
	slots := make([][]stats.Estimate, cfg.Replicates)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(d.workers)

	for r := 0; r < cfg.Replicates; r++ {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			rng, err := d.rng.Stream(gctx, string(cfg.Study), r, cfg.Seed)
			if err != nil {
				return err
			}
			table, err := d.generator.Generate(cfg.Design, rng)
			if err != nil {
				return fmt.Errorf("replicate %d: %w", r, err)
			}
			d.simulated.Add(1)

			estimates, err := study.Evaluator.Evaluate(gctx, r, table, rng)
			if err != nil {
				return fmt.Errorf("replicate %d: %w", r, err)
			}
			slots[r] = estimates
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var out []stats.Estimate
	for _, s := range slots {
		out = append(out, s...)
	}
	return out, nil
}

func modelNames(cfg run.Config) []string {
	names := make([]string, len(cfg.Battery))
	for i, s := range cfg.Battery {
		names[i] = s.Name
	}
	return names
}
