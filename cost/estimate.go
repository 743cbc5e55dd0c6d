// Package cost provides the default pre-execution cost estimator the
// router consults against ExecutionContract.MaxCostUnits before
// writing execution.started. It is a deterministic heuristic over the
// envelope alone — no external pricing service or third-party library
// fits a domain-specific cost model this small, so it is implemented
// directly (see DESIGN.md).
package cost

import (
	"context"

	"github.com/gomind-labs/execrt/core"
)

// Estimate returns envelope's estimated cost in the caller-defined
// unit maxCostUnits is expressed in: one unit per payload field plus
// one base unit, a
// side-effect-class multiplier (an IRREVERSIBLE step risks a
// compensating action on failure, so it costs more to attempt), and a
// strategy surcharge for strategies that may invoke more than one
// candidate.
func Estimate(envelope *core.IntentEnvelope) float64 {
	base := float64(len(envelope.Payload)) + 1

	switch envelope.SideEffect {
	case core.SideEffectReversible:
		base *= 2
	case core.SideEffectIrreversible:
		base *= 5
	}

	switch envelope.Routing.Strategy {
	case core.StrategyFallback:
		base *= 1.5
	case core.StrategyBroadcast, core.StrategyParallel:
		base *= 3
	}

	return base
}

// Estimator adapts Estimate to router.CostEstimator's signature.
func Estimator(_ context.Context, envelope *core.IntentEnvelope) (float64, error) {
	return Estimate(envelope), nil
}
