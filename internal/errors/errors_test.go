package errors

import (
	stderrors "errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"therapist-effects/domain/core"
)

func TestWrap_KeepsCode(t *testing.T) {
	base := ConfigInvalid("SIM_SEED must be an integer")
	wrapped := Wrap(base, "failed to load configuration")

	assert.Equal(t, CodeConfigInvalid, GetCode(wrapped))
	assert.Equal(t, "failed to load configuration: SIM_SEED must be an integer", wrapped.Error())
	assert.True(t, stderrors.Is(wrapped, base))
	assert.Nil(t, Wrap(nil, "x"))
}

func TestWrap_DefaultsToInternal(t *testing.T) {
	err := Wrapf(fmt.Errorf("disk full"), "write %s", "cache")
	assert.Equal(t, CodeInternalError, GetCode(err))
	assert.Equal(t, "UNKNOWN", GetCode(fmt.Errorf("plain")))
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code string
	}{
		{"configuration", fmt.Errorf("resolve: %w", core.ErrOddClusters), CodeConfigInvalid},
		{"fit", &core.FitError{Model: "conf_lmm", Replicate: 3, Cause: core.ErrNonConvergence}, CodeFitFailure},
		{"corruption", core.NewCorruptionError("k", fmt.Errorf("bad json")), CodeCacheError},
		{"miss", core.ErrCacheMiss, CodeCacheError},
		{"other", fmt.Errorf("boom"), CodeInternalError},
		{"already coded", InvalidInput("d must be finite"), CodeInvalidInput},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Classify(tt.err)
			assert.Equal(t, tt.code, GetCode(got))
			assert.True(t, stderrors.Is(got, tt.err))
		})
	}
	assert.Nil(t, Classify(nil))
}
