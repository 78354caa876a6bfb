package core

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// ID represents a domain identifier
type ID string

// NewID creates a new unique identifier using UUID v7 for time-ordered generation
func NewID() ID {
	id, err := uuid.NewV7()
	if err != nil {
		id = uuid.New()
	}
	return ID(id.String())
}

// String returns the string representation
func (id ID) String() string {
	return string(id)
}

// IsEmpty checks if the ID is empty
func (id ID) IsEmpty() bool {
	return id == ""
}

// RunID identifies one execution of a study
type RunID ID

func (id RunID) String() string { return ID(id).String() }

// NewRunID creates a fresh run identifier
func NewRunID() RunID { return RunID(NewID()) }

// ParseRunID parses a string into RunID
func ParseRunID(s string) (RunID, error) {
	if strings.TrimSpace(s) == "" {
		return "", fmt.Errorf("run ID cannot be empty")
	}
	return RunID(s), nil
}

// StudyName names a simulation study (one cache artifact per study)
type StudyName string

const (
	StudyConfounding StudyName = "confounding"
	StudyCoverage    StudyName = "coverage"
)

// ParseStudyName accepts the CLI/API spellings of a study
func ParseStudyName(s string) (StudyName, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "confounding", "main", "bias":
		return StudyConfounding, nil
	case "coverage", "ci":
		return StudyCoverage, nil
	}
	return "", fmt.Errorf("unknown study %q", s)
}
