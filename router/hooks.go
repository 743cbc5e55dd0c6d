package router

import (
	"context"
	"fmt"
	"runtime/debug"

	"github.com/gomind-labs/execrt/core"
)

// Hook is per-intent middleware around a routed call. A hook's job is
// observation (metrics, audit logging, payload scrubbing) rather than
// control flow: per spec, a failing hook is logged and otherwise
// ignored, never allowed to interrupt or alter the routing decision.
type Hook struct {
	Name string

	// BeforeRoute runs once at the start of Route, before the
	// idempotency lookup, contract validation and candidate ordering.
	// Its error is logged, not acted on.
	BeforeRoute func(ctx context.Context, envelope *core.IntentEnvelope) error

	// AfterRoute runs once the strategy has produced a final response.
	AfterRoute func(ctx context.Context, envelope *core.IntentEnvelope, resp *core.AgentResponse)

	// OnError runs whenever a strategy attempt fails, fallback or not.
	OnError func(ctx context.Context, envelope *core.IntentEnvelope, agentName string, err error)
}

// hookChain runs an ordered list of Hooks, isolating each one from
// panics and from each other: one misbehaving hook never prevents the
// rest from running, and never prevents routing from proceeding.
type hookChain struct {
	hooks  []Hook
	logger core.Logger
}

func newHookChain(logger core.Logger) *hookChain {
	if logger == nil {
		logger = core.NoOpLogger{}
	}
	return &hookChain{logger: logger}
}

func (c *hookChain) register(h Hook) {
	c.hooks = append(c.hooks, h)
}

func (c *hookChain) runBefore(ctx context.Context, envelope *core.IntentEnvelope) {
	for _, h := range c.hooks {
		if h.BeforeRoute == nil {
			continue
		}
		c.safely(h.Name, "beforeRoute", func() error { return h.BeforeRoute(ctx, envelope) })
	}
}

func (c *hookChain) runAfter(ctx context.Context, envelope *core.IntentEnvelope, resp *core.AgentResponse) {
	for _, h := range c.hooks {
		if h.AfterRoute == nil {
			continue
		}
		c.safely(h.Name, "afterRoute", func() error {
			h.AfterRoute(ctx, envelope, resp)
			return nil
		})
	}
}

func (c *hookChain) runOnError(ctx context.Context, envelope *core.IntentEnvelope, agentName string, stepErr error) {
	for _, h := range c.hooks {
		if h.OnError == nil {
			continue
		}
		c.safely(h.Name, "onError", func() error {
			h.OnError(ctx, envelope, agentName, stepErr)
			return nil
		})
	}
}

func (c *hookChain) safely(hookName, phase string, fn func() error) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("hook panicked", map[string]interface{}{
				"hook":  hookName,
				"phase": phase,
				"panic": fmt.Sprintf("%v", r),
				"stack": string(debug.Stack()),
			})
		}
	}()
	if err := fn(); err != nil {
		c.logger.Warn("hook returned error", map[string]interface{}{
			"hook":  hookName,
			"phase": phase,
			"error": err.Error(),
		})
	}
}
