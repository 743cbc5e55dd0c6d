package runtime

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gomind-labs/execrt/core"
	"github.com/gomind-labs/execrt/router"
)

func testRuntimeConfig(t *testing.T) *core.Config {
	t.Helper()
	dir := t.TempDir()
	cfg, err := core.NewConfig(
		core.WithWALDir(filepath.Join(dir, "wal")),
		core.WithRecordsDir(filepath.Join(dir, "records")),
		core.WithIdempotencyDir(filepath.Join(dir, "idempotency")),
		core.WithCLIIndexPath(filepath.Join(dir, "index.db")),
	)
	require.NoError(t, err)
	return cfg
}

func TestNewBuildsRuntimeWithDefaultsAndClosesCleanly(t *testing.T) {
	cfg := testRuntimeConfig(t)
	rt, err := New(context.Background(), cfg)
	require.NoError(t, err)
	require.NotNil(t, rt.Registry)
	require.NotNil(t, rt.Recorder)
	require.NotNil(t, rt.Recovery)
	require.NotNil(t, rt.Index)
	require.NotNil(t, rt.Idempotency)
	assert.Nil(t, rt.Signer)

	require.NoError(t, rt.Close(context.Background()))
}

func TestNewRegistersSignerPublicKeyWhenNoKeyRegistryGiven(t *testing.T) {
	cfg := testRuntimeConfig(t)
	kp, err := core.GenerateKeyPair("key-1")
	require.NoError(t, err)

	rt, err := New(context.Background(), cfg, WithSigner(kp))
	require.NoError(t, err)
	defer rt.Close(context.Background())

	assert.Equal(t, kp, rt.Signer)
	pub, ok := rt.Keys.Lookup("key-1")
	require.True(t, ok)
	assert.Equal(t, kp.PublicKey, pub)
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	cfg := core.DefaultConfig()
	cfg.Compliance = core.ComplianceMode("BOGUS")

	_, err := New(context.Background(), cfg)
	require.Error(t, err)
}

func TestNewRouterWiresIdempotencyAndCostEstimator(t *testing.T) {
	cfg := testRuntimeConfig(t)
	rt, err := New(context.Background(), cfg)
	require.NoError(t, err)
	defer rt.Close(context.Background())

	invoker := router.AgentInvokerFunc(func(ctx context.Context, agent core.AgentDefinition, env *core.IntentEnvelope) (*core.AgentResponse, error) {
		return &core.AgentResponse{Status: core.ResponseSuccess}, nil
	})

	rtr, err := rt.NewRouter(invoker)
	require.NoError(t, err)
	assert.NotNil(t, rtr)
}

func TestRebuildIndexIsSafeOnEmptyDirectories(t *testing.T) {
	cfg := testRuntimeConfig(t)
	rt, err := New(context.Background(), cfg)
	require.NoError(t, err)
	defer rt.Close(context.Background())

	require.NoError(t, rt.RebuildIndex(context.Background()))
}
