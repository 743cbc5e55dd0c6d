package idempotency

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gomind-labs/execrt/core"
)

func TestIndexRecordThenLookupRoundTrip(t *testing.T) {
	dir := t.TempDir()
	idx := NewIndex(dir)
	ctx := context.Background()

	_, found, err := idx.Lookup(ctx, "key-1")
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, idx.Record(ctx, "key-1", "exec-1"))

	id, found, err := idx.Lookup(ctx, "key-1")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "exec-1", id)
}

func TestIndexRecordIsFirstWriteWins(t *testing.T) {
	dir := t.TempDir()
	idx := NewIndex(dir)
	ctx := context.Background()

	require.NoError(t, idx.Record(ctx, "key-1", "exec-1"))
	require.NoError(t, idx.Record(ctx, "key-1", "exec-2"))

	id, found, err := idx.Lookup(ctx, "key-1")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "exec-1", id, "second Record for an already-claimed key must not overwrite the first")
}

func TestIndexPersistsAcrossInstances(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	require.NoError(t, NewIndex(dir).Record(ctx, "key-1", "exec-1"))

	reopened := NewIndex(dir)
	id, found, err := reopened.Lookup(ctx, "key-1")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "exec-1", id)
}

func TestDerivedKeyIgnoresRoutingMetadataAndTraceID(t *testing.T) {
	base := &core.IntentEnvelope{
		Version: "1",
		Intent:  core.IntentReference{Name: "order.place", Version: "v1"},
		Payload: map[string]core.Value{"sku": "abc"},
		Metadata: map[string]core.Value{
			"traceId": "trace-1",
		},
	}
	k1, err := DerivedKey(base)
	require.NoError(t, err)

	withPath := &core.IntentEnvelope{
		Version: "1",
		Intent:  core.IntentReference{Name: "order.place", Version: "v1"},
		Payload: map[string]core.Value{"sku": "abc"},
		Metadata: map[string]core.Value{
			"traceId": "trace-2",
		},
		RoutingMetadata: core.RoutingMetadata{DecisionPath: []string{"agent-a"}},
	}
	k2, err := DerivedKey(withPath)
	require.NoError(t, err)

	assert.Equal(t, k1, k2)
}

func TestDerivedKeyDiffersForDifferentPayload(t *testing.T) {
	a := &core.IntentEnvelope{
		Version: "1",
		Intent:  core.IntentReference{Name: "order.place", Version: "v1"},
		Payload: map[string]core.Value{"sku": "abc"},
	}
	b := &core.IntentEnvelope{
		Version: "1",
		Intent:  core.IntentReference{Name: "order.place", Version: "v1"},
		Payload: map[string]core.Value{"sku": "xyz"},
	}
	ka, err := DerivedKey(a)
	require.NoError(t, err)
	kb, err := DerivedKey(b)
	require.NoError(t, err)
	assert.NotEqual(t, ka, kb)
}
