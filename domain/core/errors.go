package core

import (
	"errors"
	"fmt"
)

// Domain errors - centralized error definitions
var (
	// Configuration errors are fatal and raised before any simulation work starts
	ErrConfiguration = errors.New("invalid configuration")
	ErrICCOutOfRange = fmt.Errorf("%w: icc outside [0,1)", ErrConfiguration)
	ErrOddClusters   = fmt.Errorf("%w: clusters per arm must be even", ErrConfiguration)
	ErrNonPositive   = fmt.Errorf("%w: value must be positive", ErrConfiguration)

	// Fit errors are absorbed per replicate and model
	ErrFitFailure      = errors.New("model fit failed")
	ErrNonConvergence  = fmt.Errorf("%w: optimizer did not converge", ErrFitFailure)
	ErrSingularDesign  = fmt.Errorf("%w: singular design matrix", ErrFitFailure)
	ErrInsufficientFit = fmt.Errorf("%w: too few successful draws", ErrFitFailure)

	// Cache errors never surface stale data; both mean "recompute"
	ErrCacheMiss       = errors.New("cache miss")
	ErrCacheCorruption = errors.New("cache artifact corrupt")
)

// FitError records which model failed on which replicate.
type FitError struct {
	Model     string
	Replicate int
	Cause     error
}

func (e *FitError) Error() string {
	return fmt.Sprintf("fit %s (replicate %d): %v", e.Model, e.Replicate, e.Cause)
}

func (e *FitError) Unwrap() error {
	if e.Cause == nil {
		return ErrFitFailure
	}
	return e.Cause
}

// Is makes every FitError match ErrFitFailure even when the cause is foreign.
func (e *FitError) Is(target error) bool {
	return target == ErrFitFailure
}

// NewConfigError wraps a field-specific reason as a configuration error
func NewConfigError(field string, reason string) error {
	return fmt.Errorf("%w: %s: %s", ErrConfiguration, field, reason)
}

// NewCorruptionError wraps a cache decoding problem
func NewCorruptionError(key string, err error) error {
	return fmt.Errorf("%w: key %s: %v", ErrCacheCorruption, key, err)
}

// Error checking helpers
func IsConfigurationError(err error) bool {
	return errors.Is(err, ErrConfiguration)
}

func IsFitFailure(err error) bool {
	return errors.Is(err, ErrFitFailure)
}

// IsCacheMiss reports whether err should be treated as "not cached".
// Corruption counts as a miss.
func IsCacheMiss(err error) bool {
	return errors.Is(err, ErrCacheMiss) || errors.Is(err, ErrCacheCorruption)
}
