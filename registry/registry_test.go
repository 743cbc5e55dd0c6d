package registry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gomind-labs/execrt/core"
)

func agent(name, nodeID string, intentNames ...string) core.AgentDefinition {
	caps := make([]core.Capability, 0, len(intentNames))
	for _, n := range intentNames {
		caps = append(caps, core.Capability{Intent: core.IntentReference{Name: n, Version: "v1"}})
	}
	return core.AgentDefinition{Name: name, NodeID: nodeID, Capabilities: caps}
}

func TestInMemoryRegisterAndGet(t *testing.T) {
	r := NewInMemoryRegistry()
	ctx := context.Background()

	require.NoError(t, r.Register(ctx, agent("agent-a", "node-1", "order.place")))

	got, found, err := r.Get(ctx, "agent-a")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "node-1", got.NodeID)
}

func TestInMemoryRegisterRejectsSameNameSameNode(t *testing.T) {
	r := NewInMemoryRegistry()
	ctx := context.Background()

	require.NoError(t, r.Register(ctx, agent("agent-a", "node-1", "order.place")))
	err := r.Register(ctx, agent("agent-a", "node-1", "order.place", "refund.issue"))
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrDuplicateAgent)
}

func TestInMemoryRegisterAfterDeregisterSucceeds(t *testing.T) {
	r := NewInMemoryRegistry()
	ctx := context.Background()

	require.NoError(t, r.Register(ctx, agent("agent-a", "node-1", "order.place")))
	require.NoError(t, r.Deregister(ctx, "agent-a"))
	require.NoError(t, r.Register(ctx, agent("agent-a", "node-1", "order.place", "refund.issue")))

	got, _, err := r.Get(ctx, "agent-a")
	require.NoError(t, err)
	assert.Len(t, got.Capabilities, 2)
}

func TestInMemoryRegisterRejectsNodeIDChange(t *testing.T) {
	r := NewInMemoryRegistry()
	ctx := context.Background()

	require.NoError(t, r.Register(ctx, agent("agent-a", "node-1")))
	err := r.Register(ctx, agent("agent-a", "node-2"))
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrDuplicateAgent)
}

func TestInMemoryDeregisterRemovesAgent(t *testing.T) {
	r := NewInMemoryRegistry()
	ctx := context.Background()

	require.NoError(t, r.Register(ctx, agent("agent-a", "node-1", "order.place")))
	require.NoError(t, r.Deregister(ctx, "agent-a"))

	_, found, err := r.Get(ctx, "agent-a")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestInMemoryDeregisterUnknownNameIsNoOp(t *testing.T) {
	r := NewInMemoryRegistry()
	require.NoError(t, r.Deregister(context.Background(), "does-not-exist"))
}

func TestInMemoryFindCapableAgentsReturnsRegistrationOrder(t *testing.T) {
	r := NewInMemoryRegistry()
	ctx := context.Background()

	require.NoError(t, r.Register(ctx, agent("agent-b", "node-1", "order.place")))
	require.NoError(t, r.Register(ctx, agent("agent-a", "node-2", "order.place")))

	matches, err := r.FindCapableAgents(ctx, core.IntentReference{Name: "order.place", Version: "v1"})
	require.NoError(t, err)
	require.Len(t, matches, 2)
	assert.Equal(t, "agent-b", matches[0].Name)
	assert.Equal(t, "agent-a", matches[1].Name)
}

func TestInMemoryFindCapableAgentsExcludesNonMatching(t *testing.T) {
	r := NewInMemoryRegistry()
	ctx := context.Background()

	require.NoError(t, r.Register(ctx, agent("agent-a", "node-1", "refund.issue")))

	matches, err := r.FindCapableAgents(ctx, core.IntentReference{Name: "order.place", Version: "v1"})
	require.NoError(t, err)
	assert.Empty(t, matches)
}
