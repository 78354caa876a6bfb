package run

import (
	"encoding/json"
	"fmt"

	"therapist-effects/domain/core"
	"therapist-effects/domain/design"
	"therapist-effects/domain/model"
	"therapist-effects/domain/stats"
)

// SchemaVersion is bumped whenever the artifact layout changes; artifacts
// written under another version are treated as cache misses.
const SchemaVersion = 2

// Config fully describes one study run. Everything that can
// change the result is part of the fingerprint.
type Config struct {
	Study          core.StudyName    `json:"study"`
	Design         design.Parameters `json:"design"`
	Battery        model.Battery     `json:"battery"`
	Replicates     int               `json:"replicates"`
	Seed           uint64            `json:"seed"`
	BootstrapDraws int               `json:"bootstrap_draws,omitempty"`
	Truths         stats.Truths      `json:"truths"`
	// KeepEstimates controls whether the per-replicate table is persisted
	KeepEstimates bool `json:"keep_estimates"`
}

// Validate checks the run configuration before any work starts
func (c Config) Validate() error {
	if c.Study == "" {
		return core.NewConfigError("study", "name is required")
	}
	if c.Replicates <= 0 {
		return core.NewConfigError("replicates", fmt.Sprintf("must be positive, got %d", c.Replicates))
	}
	if c.Design.ClustersPerArm <= 0 || c.Design.ClustersPerArm%2 != 0 {
		return fmt.Errorf("%w: n2=%d", core.ErrOddClusters, c.Design.ClustersPerArm)
	}
	if err := c.Battery.Validate(); err != nil {
		return core.NewConfigError("battery", err.Error())
	}
	if len(c.Truths) == 0 {
		return core.NewConfigError("truths", "at least one true parameter value is required")
	}
	return nil
}

// Fingerprint identifies a configuration for caching
type Fingerprint struct {
	SchemaVersion int             `json:"schema_version"`
	Config        Config          `json:"config"`
	Hash          core.ConfigHash `json:"hash"`
}

// NewFingerprint hashes the configuration together with the schema version
func NewFingerprint(cfg Config) (Fingerprint, error) {
	payload := struct {
		SchemaVersion int    `json:"schema_version"`
		Config        Config `json:"config"`
	}{SchemaVersion, cfg}

	hash, err := core.ComputeConfigHash(payload)
	if err != nil {
		return Fingerprint{}, err
	}
	return Fingerprint{SchemaVersion: SchemaVersion, Config: cfg, Hash: hash}, nil
}

// Key is the storage key: study name plus a short hash prefix
func (f Fingerprint) Key() string {
	return fmt.Sprintf("%s-%s", f.Config.Study, core.Hash(f.Hash).Short(16))
}

// Artifact is the persisted, immutable outcome of a completed run
type Artifact struct {
	SchemaVersion int                    `json:"schema_version"`
	Hash          core.ConfigHash        `json:"hash"`
	RunID         core.RunID             `json:"run_id"`
	Config        Config                 `json:"config"`
	Result        stats.SimulationResult `json:"result"`
	CreatedAt     core.Timestamp         `json:"created_at"`
}

// NewArtifact wraps a finished result
func NewArtifact(fp Fingerprint, runID core.RunID, result stats.SimulationResult) *Artifact {
	return &Artifact{
		SchemaVersion: fp.SchemaVersion,
		Hash:          fp.Hash,
		RunID:         runID,
		Config:        fp.Config,
		Result:        result,
		CreatedAt:     core.Now(),
	}
}

// Encode serializes the artifact
func (a *Artifact) Encode() ([]byte, error) {
	return json.Marshal(a)
}

// DecodeArtifact parses a stored payload and checks that it belongs to fp.
// Any mismatch is reported as corruption so the caller recomputes.
func DecodeArtifact(fp Fingerprint, payload []byte) (*Artifact, error) {
	var a Artifact
	if err := json.Unmarshal(payload, &a); err != nil {
		return nil, core.NewCorruptionError(fp.Key(), err)
	}
	if a.SchemaVersion != fp.SchemaVersion {
		return nil, core.NewCorruptionError(fp.Key(),
			fmt.Errorf("schema version %d, expected %d", a.SchemaVersion, fp.SchemaVersion))
	}
	if a.Hash != fp.Hash {
		return nil, core.NewCorruptionError(fp.Key(), fmt.Errorf("hash %s does not match configuration", a.Hash))
	}
	if a.Result.Replicates != fp.Config.Replicates {
		return nil, core.NewCorruptionError(fp.Key(),
			fmt.Errorf("artifact holds %d replicates, expected %d", a.Result.Replicates, fp.Config.Replicates))
	}
	return &a, nil
}

// Status is the lifecycle of one configuration in the replication driver
type Status string

const (
	StatusPending Status = "PENDING"
	StatusRunning Status = "RUNNING"
	StatusCached  Status = "CACHED"
	StatusFailed  Status = "FAILED"
)

// CanTransition enforces PENDING -> RUNNING -> {CACHED, FAILED}, with the
// PENDING -> CACHED short-circuit when a cache entry exists.
func (s Status) CanTransition(next Status) bool {
	switch s {
	case StatusPending:
		return next == StatusRunning || next == StatusCached || next == StatusFailed
	case StatusRunning:
		return next == StatusCached || next == StatusFailed
	}
	return false
}

// Terminal reports whether no further transitions are possible
func (s Status) Terminal() bool {
	return s == StatusCached || s == StatusFailed
}
