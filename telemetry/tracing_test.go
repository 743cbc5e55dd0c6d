package telemetry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gomind-labs/execrt/core"
)

func TestNewProviderDisabledReturnsNoopTracerAndShutdown(t *testing.T) {
	provider, shutdown, err := NewProvider(context.Background(), core.TelemetryConfig{Enabled: false}, core.DevelopmentConfig{}, NewProductionLogger(core.LoggingConfig{}, core.DevelopmentConfig{}, "svc"))
	require.NoError(t, err)
	require.NotNil(t, provider)
	require.NotNil(t, shutdown)

	assert.NoError(t, shutdown(context.Background()))
}

func TestStartSpanOnDisabledProviderReturnsUsableContextAndSpan(t *testing.T) {
	provider, _, err := NewProvider(context.Background(), core.TelemetryConfig{Enabled: false}, core.DevelopmentConfig{}, NewProductionLogger(core.LoggingConfig{}, core.DevelopmentConfig{}, "svc"))
	require.NoError(t, err)

	ctx, span := provider.StartSpan(context.Background(), "route.intent", "intent", "order.place")
	require.NotNil(t, ctx)
	require.NotNil(t, span)
	span.End()
}

func TestTracerReturnsNonNilTracerWhenDisabled(t *testing.T) {
	provider, _, err := NewProvider(context.Background(), core.TelemetryConfig{Enabled: false}, core.DevelopmentConfig{}, NewProductionLogger(core.LoggingConfig{}, core.DevelopmentConfig{}, "svc"))
	require.NoError(t, err)
	assert.NotNil(t, provider.Tracer())
}

func TestStringAttributesPairsOddTrailingKeyIsDropped(t *testing.T) {
	attrs := stringAttributes([]string{"a", "1", "b"})
	require.Len(t, attrs, 1)
	assert.Equal(t, "a", string(attrs[0].Key))
}

func TestStringAttributesEmptyInputYieldsNoAttributes(t *testing.T) {
	attrs := stringAttributes(nil)
	assert.Empty(t, attrs)
}
