package app

import (
	"context"

	"therapist-effects/adapters/bootstrap"
	"therapist-effects/domain/core"
	"therapist-effects/domain/design"
	"therapist-effects/domain/run"
	"therapist-effects/internal/config"
	"therapist-effects/internal/errors"
	"therapist-effects/ports"
)

// Catalog builds the two studies from configuration so that the CLI and the
// API resolve a study name to the same fingerprint.
type Catalog struct {
	sim     config.SimulationConfig
	studies config.Studies
	fitter  ports.ModelFitter
	source  ports.IntervalSource
}

// NewCatalog creates a catalog; the interval source is a parametric
// bootstrap over fitter with the configured number of draws.
func NewCatalog(sim config.SimulationConfig, studies config.Studies, fitter ports.ModelFitter) *Catalog {
	return &Catalog{
		sim:     sim,
		studies: studies,
		fitter:  fitter,
		source:  bootstrap.NewParametricBootstrap(fitter, sim.BootstrapDraws),
	}
}

// Names lists the studies in run order
func (c *Catalog) Names() []core.StudyName {
	return []core.StudyName{core.StudyConfounding, core.StudyCoverage}
}

// Study resolves the parameters of the named study and assembles it
func (c *Catalog) Study(name core.StudyName) (Study, error) {
	switch name {
	case core.StudyConfounding:
		params, err := design.Resolve(c.studies.Main)
		if err != nil {
			return Study{}, errors.WithCode(errors.CodeConfigInvalid, err)
		}
		return NewBiasStudy(params, c.sim.EffectiveReplicates(c.sim.Replications), c.sim.Seed,
			c.sim.KeepEstimates(), c.fitter), nil
	case core.StudyCoverage:
		params, err := design.Resolve(c.studies.CI)
		if err != nil {
			return Study{}, errors.WithCode(errors.CodeConfigInvalid, err)
		}
		return NewCoverageStudy(params, c.sim.EffectiveReplicates(c.sim.CIReplications), c.sim.Seed,
			c.sim.BootstrapDraws, c.sim.KeepEstimates(), c.fitter, c.source), nil
	}
	return Study{}, errors.InvalidInput("unknown study " + string(name))
}

// Results returns the cached artifact of a study without computing it
func (c *Catalog) Results(ctx context.Context, driver *ReplicationDriver, name core.StudyName) (*run.Artifact, error) {
	study, err := c.Study(name)
	if err != nil {
		return nil, err
	}
	return driver.Lookup(ctx, study.Config)
}
