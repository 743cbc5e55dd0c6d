package router

import (
	"fmt"

	"github.com/gomind-labs/execrt/core"
)

// validateComplianceAtInit re-checks the compliance invariants a
// Router depends on, on top of core.Config.Validate's general checks:
// REGULATED mode can't start without a signer actually configured, the
// same way a circuit breaker refuses to construct with a zero
// threshold rather than fail on its first trip.
func validateComplianceAtInit(cfg *core.Config, signer *core.KeyPair) error {
	if cfg == nil {
		return core.NewFrameworkError("router.validateComplianceAtInit", string(core.KindContractViolation),
			fmt.Errorf("config is required")).WithSubtype("missing_config")
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	if cfg.SignWAL && signer == nil {
		return core.NewFrameworkError("router.validateComplianceAtInit", string(core.KindContractViolation),
			core.ErrInvalidComplianceMode).WithSubtype("signing_required_no_signer")
	}
	if cfg.SignWAL && signer != nil && cfg.SigningKeyID != "" && signer.KeyID != cfg.SigningKeyID {
		return core.NewFrameworkError("router.validateComplianceAtInit", string(core.KindContractViolation),
			core.ErrInvalidComplianceMode).WithSubtype("signing_key_id_mismatch")
	}
	return nil
}

// parallelAllowed reports whether the PARALLEL strategy may be used
// under cfg's compliance posture. STANDARD and REGULATED both forbid
// PARALLEL; under DEVELOPMENT, RequireDeterminism decides.
func parallelAllowed(cfg *core.Config) bool {
	return !cfg.RequireDeterminism && cfg.Compliance == core.ModeDevelopment
}
