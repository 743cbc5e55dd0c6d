package core

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFrameworkErrorUnwrapAndIs(t *testing.T) {
	fe := NewFrameworkError("Router.Route", string(KindTimeout), ErrStepTimeout).WithID("exec-1")
	assert.True(t, errors.Is(fe, ErrStepTimeout))
	assert.Contains(t, fe.Error(), "Router.Route")
	assert.Contains(t, fe.Error(), "exec-1")
}

func TestFrameworkErrorWithSubtype(t *testing.T) {
	fe := NewFrameworkError("Config.Validate", "configuration", ErrInvalidComplianceMode).
		WithSubtype("regulated_mode_requires_determinism_and_signing")
	assert.Equal(t, "regulated_mode_requires_determinism_and_signing", fe.Subtype)
}

func TestRecoveryStrategyForKnownAndUnknownKinds(t *testing.T) {
	assert.Equal(t, RecoveryFallback, RecoveryStrategyFor(KindTimeout))
	assert.Equal(t, RecoveryManualIntervention, RecoveryStrategyFor(KindWALIntegrityError))
	assert.Equal(t, RecoveryAbort, RecoveryStrategyFor(ErrorKind("UNKNOWN")))
}

func TestToErrorInfoMarksRetryableForFallbackKinds(t *testing.T) {
	fe := NewFrameworkError("invoke", string(KindTimeout), ErrStepTimeout)
	info := fe.ToErrorInfo(KindTimeout)
	assert.True(t, info.Retryable)
	assert.Equal(t, string(KindTimeout), info.Code)
}

func TestToErrorInfoMarksNonRetryableForAbortKinds(t *testing.T) {
	fe := NewFrameworkError("route", string(KindContractViolation), ErrContractNoRetryConflict)
	info := fe.ToErrorInfo(KindContractViolation)
	assert.False(t, info.Retryable)
}

func TestIsIntegrityError(t *testing.T) {
	assert.True(t, IsIntegrityError(ErrWALHashChainBroken))
	assert.True(t, IsIntegrityError(ErrRecordHashMismatch))
	assert.False(t, IsIntegrityError(ErrCapabilityNotFound))
}

func TestIsNotFound(t *testing.T) {
	assert.True(t, IsNotFound(ErrRecordNotFound))
	assert.True(t, IsNotFound(ErrWALMissing))
	assert.False(t, IsNotFound(ErrBudgetExceeded))
}

func TestIsConfigurationError(t *testing.T) {
	assert.True(t, IsConfigurationError(ErrContractInvalidTimeout))
	assert.True(t, IsConfigurationError(ErrNotResumable))
	assert.True(t, IsConfigurationError(ErrNotBlocked))
	assert.False(t, IsConfigurationError(ErrWALMissing))
}
