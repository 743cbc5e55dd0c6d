package router

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gomind-labs/execrt/core"
	"github.com/gomind-labs/execrt/registry"
)

func testConfig(t *testing.T, walDir string) *core.Config {
	t.Helper()
	cfg, err := core.NewConfig(core.WithWALDir(walDir))
	require.NoError(t, err)
	return cfg
}

func envelope(intentName string, strategy core.RoutingStrategy) *core.IntentEnvelope {
	return &core.IntentEnvelope{
		Version: "1",
		Intent:  core.IntentReference{Name: intentName, Version: "v1"},
		Payload: map[string]core.Value{"x": 1},
		Routing: core.RoutingOptions{Strategy: strategy},
	}
}

func alwaysSucceeds(payload map[string]core.Value) AgentInvokerFunc {
	return func(ctx context.Context, agent core.AgentDefinition, env *core.IntentEnvelope) (*core.AgentResponse, error) {
		return &core.AgentResponse{Status: core.ResponseSuccess, Payload: payload}, nil
	}
}

func alwaysFails() AgentInvokerFunc {
	return func(ctx context.Context, agent core.AgentDefinition, env *core.IntentEnvelope) (*core.AgentResponse, error) {
		return &core.AgentResponse{
			Status: core.ResponseError,
			Error:  &core.ErrorInfo{Code: string(core.KindAgentError), Message: "boom"},
		}, nil
	}
}

func registerAgent(t *testing.T, reg registry.Registry, name, intentName string) {
	t.Helper()
	err := reg.Register(context.Background(), core.AgentDefinition{
		Name: name,
		Capabilities: []core.Capability{
			{Intent: core.IntentReference{Name: intentName, Version: "v1"}},
		},
	})
	require.NoError(t, err)
}

func TestRouteDirectSuccess(t *testing.T) {
	dir := t.TempDir()
	cfg := testConfig(t, dir)
	reg := registry.NewInMemoryRegistry()
	registerAgent(t, reg, "agent-a", "order.place")

	rt, err := NewRouter(cfg, reg, alwaysSucceeds(map[string]core.Value{"ok": true}), nil, nil)
	require.NoError(t, err)

	resp, err := rt.Route(context.Background(), envelope("order.place", core.StrategyDirect))
	require.NoError(t, err)
	assert.Equal(t, core.ResponseSuccess, resp.Status)
	assert.Equal(t, true, resp.Payload["ok"])
	assert.NotEmpty(t, resp.Metadata["executionId"])
}

func TestRouteCapabilityNotFound(t *testing.T) {
	dir := t.TempDir()
	cfg := testConfig(t, dir)
	reg := registry.NewInMemoryRegistry()

	rt, err := NewRouter(cfg, reg, alwaysSucceeds(nil), nil, nil)
	require.NoError(t, err)

	resp, err := rt.Route(context.Background(), envelope("no.such.intent", core.StrategyDirect))
	require.NoError(t, err)
	assert.Equal(t, core.ResponseError, resp.Status)
	assert.Equal(t, string(core.KindCapabilityNotFound), resp.Error.Code)
}

func TestRouteFallbackAdvancesOnFailure(t *testing.T) {
	dir := t.TempDir()
	cfg := testConfig(t, dir)
	reg := registry.NewInMemoryRegistry()
	registerAgent(t, reg, "agent-a", "order.place")
	registerAgent(t, reg, "agent-b", "order.place")

	calls := map[string]int{}
	invoker := AgentInvokerFunc(func(ctx context.Context, agent core.AgentDefinition, env *core.IntentEnvelope) (*core.AgentResponse, error) {
		calls[agent.Name]++
		if agent.Name == "agent-a" {
			return &core.AgentResponse{Status: core.ResponseError, Error: &core.ErrorInfo{Code: "X", Message: "fail"}}, nil
		}
		return &core.AgentResponse{Status: core.ResponseSuccess, Payload: map[string]core.Value{"agent": agent.Name}}, nil
	})

	rt, err := NewRouter(cfg, reg, invoker, nil, nil)
	require.NoError(t, err)

	env := envelope("order.place", core.StrategyFallback)
	resp, err := rt.Route(context.Background(), env)
	require.NoError(t, err)
	assert.Equal(t, core.ResponseSuccess, resp.Status)
	assert.Equal(t, 1, calls["agent-a"])
	assert.Equal(t, 1, calls["agent-b"])
	assert.Equal(t, []string{"agent-a", "agent-b"}, env.RoutingMetadata.DecisionPath)
}

func TestRouteFallbackStopsAfterIrreversibleFailure(t *testing.T) {
	dir := t.TempDir()
	cfg := testConfig(t, dir)
	reg := registry.NewInMemoryRegistry()
	registerAgent(t, reg, "agent-a", "order.place")
	registerAgent(t, reg, "agent-b", "order.place")

	calls := map[string]int{}
	invoker := AgentInvokerFunc(func(ctx context.Context, agent core.AgentDefinition, env *core.IntentEnvelope) (*core.AgentResponse, error) {
		calls[agent.Name]++
		return &core.AgentResponse{Status: core.ResponseError, Error: &core.ErrorInfo{Code: "X", Message: "fail"}}, nil
	})

	rt, err := NewRouter(cfg, reg, invoker, nil, nil)
	require.NoError(t, err)

	env := envelope("order.place", core.StrategyFallback)
	env.SideEffect = core.SideEffectIrreversible
	resp, err := rt.Route(context.Background(), env)
	require.NoError(t, err)
	assert.Equal(t, core.ResponseError, resp.Status)
	assert.Equal(t, 1, calls["agent-a"])
	assert.Equal(t, 0, calls["agent-b"], "must not attempt another agent after an irreversible step fails")
}

func TestRouteBroadcastReturnsLastSuccess(t *testing.T) {
	dir := t.TempDir()
	cfg := testConfig(t, dir)
	reg := registry.NewInMemoryRegistry()
	registerAgent(t, reg, "agent-a", "order.place")
	registerAgent(t, reg, "agent-b", "order.place")

	invoker := AgentInvokerFunc(func(ctx context.Context, agent core.AgentDefinition, env *core.IntentEnvelope) (*core.AgentResponse, error) {
		return &core.AgentResponse{Status: core.ResponseSuccess, Payload: map[string]core.Value{"agent": agent.Name}}, nil
	})

	rt, err := NewRouter(cfg, reg, invoker, nil, nil)
	require.NoError(t, err)

	resp, err := rt.Route(context.Background(), envelope("order.place", core.StrategyBroadcast))
	require.NoError(t, err)
	assert.Equal(t, core.ResponseSuccess, resp.Status)
	assert.Equal(t, "agent-b", resp.Payload["agent"])
}

func TestRouteParallelForbiddenUnderRequireDeterminism(t *testing.T) {
	dir := t.TempDir()
	cfg, err := core.NewConfig(core.WithWALDir(dir), core.WithRequireDeterminism(true))
	require.NoError(t, err)
	reg := registry.NewInMemoryRegistry()
	registerAgent(t, reg, "agent-a", "order.place")

	rt, err := NewRouter(cfg, reg, alwaysSucceeds(nil), nil, nil)
	require.NoError(t, err)

	resp, err := rt.Route(context.Background(), envelope("order.place", core.StrategyParallel))
	require.NoError(t, err)
	assert.Equal(t, core.ResponseError, resp.Status)
	assert.Equal(t, string(core.KindDeterminismViolation), resp.Error.Code)
}

func TestRouteUnknownStrategyIsRoutingError(t *testing.T) {
	dir := t.TempDir()
	cfg := testConfig(t, dir)
	reg := registry.NewInMemoryRegistry()
	registerAgent(t, reg, "agent-a", "order.place")

	rt, err := NewRouter(cfg, reg, alwaysSucceeds(nil), nil, nil)
	require.NoError(t, err)

	resp, err := rt.Route(context.Background(), envelope("order.place", core.RoutingStrategy("BOGUS")))
	require.NoError(t, err)
	assert.Equal(t, core.ResponseError, resp.Status)
	assert.Equal(t, string(core.KindRoutingError), resp.Error.Code)
}

func TestRouteIdempotencyShortCircuitsSecondCall(t *testing.T) {
	dir := t.TempDir()
	cfg := testConfig(t, dir)
	reg := registry.NewInMemoryRegistry()
	registerAgent(t, reg, "agent-a", "order.place")

	calls := 0
	invoker := AgentInvokerFunc(func(ctx context.Context, agent core.AgentDefinition, env *core.IntentEnvelope) (*core.AgentResponse, error) {
		calls++
		return &core.AgentResponse{Status: core.ResponseSuccess}, nil
	})

	rt, err := NewRouter(cfg, reg, invoker, nil, nil)
	require.NoError(t, err)
	rt.SetIdempotencyChecker(&fakeIdempotency{})

	env := envelope("order.place", core.StrategyDirect)
	env.IdempotencyKey = "key-1"

	resp1, err := rt.Route(context.Background(), env)
	require.NoError(t, err)
	assert.Equal(t, core.ResponseSuccess, resp1.Status)
	assert.Equal(t, 1, calls)

	resp2, err := rt.Route(context.Background(), env)
	require.NoError(t, err)
	assert.Equal(t, core.ResponseSuccess, resp2.Status)
	assert.Equal(t, true, resp2.Metadata["idempotent"])
	assert.Equal(t, 1, calls, "second route with the same idempotency key must not invoke the agent again")
}

// fakeIdempotency is a minimal in-memory IdempotencyChecker for router
// tests that don't need the real fsynced index.
type fakeIdempotency struct {
	seen map[string]string
}

func (f *fakeIdempotency) Lookup(ctx context.Context, key string) (string, bool, error) {
	if f.seen == nil {
		return "", false, nil
	}
	id, ok := f.seen[key]
	return id, ok, nil
}

func (f *fakeIdempotency) Record(ctx context.Context, key, executionID string) error {
	if f.seen == nil {
		f.seen = map[string]string{}
	}
	f.seen[key] = executionID
	return nil
}
