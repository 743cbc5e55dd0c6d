package telemetry

import (
	"net/http"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// NewTracedHTTPClient wraps baseTransport with otelhttp so every
// outbound agent invocation propagates the caller's trace context and
// produces a client span, without the router's dispatch code needing
// to know about tracing at all.
//
//	req, _ := http.NewRequestWithContext(ctx, "POST", agentURL, body)
//	resp, err := client.Do(req)
func NewTracedHTTPClient(baseTransport http.RoundTripper) *http.Client {
	if baseTransport == nil {
		baseTransport = pooledTransport()
	}
	return &http.Client{Transport: otelhttp.NewTransport(baseTransport)}
}

func pooledTransport() *http.Transport {
	return &http.Transport{
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,
		ForceAttemptHTTP2:   true,
	}
}
