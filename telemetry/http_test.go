package telemetry

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewTracedHTTPClientWrapsNilTransportWithPooledDefault(t *testing.T) {
	client := NewTracedHTTPClient(nil)
	require.NotNil(t, client.Transport)
}

func TestNewTracedHTTPClientWrapsProvidedTransport(t *testing.T) {
	base := &http.Transport{MaxIdleConns: 5}
	client := NewTracedHTTPClient(base)
	require.NotNil(t, client.Transport)
}

func TestPooledTransportConfiguresConnectionLimits(t *testing.T) {
	tr := pooledTransport()
	assert.Equal(t, 100, tr.MaxIdleConns)
	assert.Equal(t, 10, tr.MaxIdleConnsPerHost)
	assert.True(t, tr.ForceAttemptHTTP2)
}
