package config

import (
	"os"

	"gopkg.in/yaml.v3"

	"therapist-effects/domain/design"
	"therapist-effects/internal/errors"
)

// CIClustersPerArm is the cluster count of the CI-coverage study
const CIClustersPerArm = 40

// Studies holds the knob blocks of both simulation studies
type Studies struct {
	Main design.Knobs `yaml:"main"`
	CI   design.Knobs `yaml:"ci"`
}

// DefaultStudies returns the published configuration of both studies
func DefaultStudies() Studies {
	return Studies{
		Main: design.DefaultKnobs(),
		CI:   design.DefaultKnobs().WithClustersPerArm(CIClustersPerArm),
	}
}

// LoadStudies reads the optional YAML study file. Keys missing from the file
// keep their defaults; an empty path returns the defaults.
func LoadStudies(path string) (*Studies, error) {
	studies := DefaultStudies()
	if path == "" {
		return &studies, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.WithCode(errors.CodeConfigInvalid, errors.Wrapf(err, "failed to read study file %s", path))
	}
	if err := ParseStudies(data, &studies); err != nil {
		return nil, err
	}
	return &studies, nil
}

// ParseStudies decodes YAML over the values already in studies
func ParseStudies(data []byte, studies *Studies) error {
	if err := yaml.Unmarshal(data, studies); err != nil {
		return errors.WithCode(errors.CodeConfigInvalid, errors.Wrap(err, "failed to parse study file"))
	}
	return nil
}

// Validate checks both knob blocks
func (s Studies) Validate() error {
	if err := s.Main.Validate(); err != nil {
		return errors.WithCode(errors.CodeConfigInvalid, errors.Wrap(err, "main study"))
	}
	if err := s.CI.Validate(); err != nil {
		return errors.WithCode(errors.CodeConfigInvalid, errors.Wrap(err, "ci study"))
	}
	return nil
}
