// Package contract enforces the execution guarantees declared on an
// core.ExecutionContract: pre-flight validation of the contract
// itself, and runtime enforcement of exactly-once semantics, timeout
// watchdogs, and cost budgets while a step executes.
package contract

import (
	"context"
	"sync"
	"time"

	"github.com/gomind-labs/execrt/core"
)

// Engine enforces contracts for a single runtime instance. The
// completed set is process-local and held in memory only, in every
// compliance mode; it is not rebuilt from the WAL, so a new Engine
// does not know which exactly-once steps an earlier process ran.
type Engine struct {
	mu        sync.Mutex
	completed map[string]struct{} // executionId/stepKey already finished exactly-once

	logger core.Logger
}

// NewEngine creates a contract engine with an empty exactly-once set.
func NewEngine(logger core.Logger) *Engine {
	if logger == nil {
		logger = core.NoOpLogger{}
	}
	return &Engine{completed: make(map[string]struct{}), logger: logger}
}

// Validate checks a contract's internal consistency and its
// compatibility with sideEffect before any attempt is made. This is
// static validation; it never touches the completed set.
func Validate(c *core.ExecutionContract, sideEffect core.SideEffectClass) error {
	if c == nil {
		return nil
	}
	if c.NoRetry && c.MaxRetries > 0 {
		return core.NewFrameworkError("contract.Validate", string(core.KindContractViolation), core.ErrContractNoRetryConflict)
	}
	if sideEffect == core.SideEffectIrreversible && c.MaxRetries > 0 {
		return core.NewFrameworkError("contract.Validate", string(core.KindContractViolation), core.ErrContractIrreversibleRetry)
	}
	if c.TimeoutMs <= 0 {
		return core.NewFrameworkError("contract.Validate", string(core.KindContractViolation), core.ErrContractInvalidTimeout)
	}
	if c.MaxCostUnits <= 0 {
		return core.NewFrameworkError("contract.Validate", string(core.KindContractViolation), core.ErrContractInvalidBudget)
	}
	return nil
}

// stepKey identifies one (execution, step) pair for exactly-once
// tracking. A "step" is the agent name being invoked; the same
// executionId invoking two different agents (e.g. DIRECT then a
// FALLBACK candidate) are distinct steps.
func stepKey(executionID, agentName string) string {
	return executionID + "/" + agentName
}

// CheckExactlyOnce returns core.ErrContractAlreadyCompleted if this
// (executionId, agentName) pair already completed under an
// ExactlyOnce contract. Call before attempting the step.
func (e *Engine) CheckExactlyOnce(executionID, agentName string, c *core.ExecutionContract) error {
	if c == nil || !c.ExactlyOnce {
		return nil
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, done := e.completed[stepKey(executionID, agentName)]; done {
		return core.NewFrameworkError("Engine.CheckExactlyOnce", string(core.KindContractViolation), core.ErrContractAlreadyCompleted).
			WithID(executionID)
	}
	return nil
}

// MarkCompleted records that (executionId, agentName) finished,
// closing the exactly-once gate for any future retry/replay attempt.
func (e *Engine) MarkCompleted(executionID, agentName string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.completed[stepKey(executionID, agentName)] = struct{}{}
}

// CheckBudget returns core.ErrBudgetExceeded if estimatedCost would
// exceed the contract's MaxCostUnits.
func CheckBudget(c *core.ExecutionContract, estimatedCost float64) error {
	if c == nil || c.MaxCostUnits <= 0 {
		return nil
	}
	if estimatedCost > c.MaxCostUnits {
		return core.NewFrameworkError("contract.CheckBudget", string(core.KindBudgetExceeded), core.ErrBudgetExceeded)
	}
	return nil
}

// WithTimeout derives a context bounded by the contract's TimeoutMs, a
// deadline watcher that fires TIMEOUT back to the caller even if the
// invoked agent keeps running past its deadline in the background.
func WithTimeout(ctx context.Context, c *core.ExecutionContract) (context.Context, context.CancelFunc) {
	if c == nil || c.TimeoutMs <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, time.Duration(c.TimeoutMs)*time.Millisecond)
}

// ClassifyTimeout converts a context deadline error into the
// framework's TIMEOUT error kind, leaving other errors untouched.
func ClassifyTimeout(err error) error {
	if err == context.DeadlineExceeded {
		return core.NewFrameworkError("contract.ClassifyTimeout", string(core.KindTimeout), core.ErrStepTimeout)
	}
	return err
}
