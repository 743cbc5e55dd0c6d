// Package transport provides the default AgentInvoker: an HTTP client
// that POSTs a canonical-JSON IntentEnvelope to an agent's Endpoint
// and parses back an AgentResponse, propagating W3C trace context so
// a routed intent's span covers the out-of-process hop too.
package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/gomind-labs/execrt/core"
)

// HTTPInvoker implements router.AgentInvoker over plain HTTP, the
// transport boundary spec calls out as carrying W3C trace context to
// out-of-process agents.
type HTTPInvoker struct {
	client *http.Client
}

// NewHTTPInvoker builds an HTTPInvoker with the given per-request
// timeout as a ceiling; the router's own contract timeout is applied
// to ctx on top of this and will cancel the request first if it's
// shorter.
func NewHTTPInvoker(timeout time.Duration) *HTTPInvoker {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &HTTPInvoker{
		client: &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
	}
}

// Invoke POSTs envelope's canonical JSON encoding to
// agent.Endpoint + "/invoke" and decodes the body as an
// AgentResponse. A non-2xx status with a decodable AgentResponse body
// is returned as that response (so the router can see the agent's own
// structured error); anything else becomes a non-nil error, which the
// router normalizes into INTERNAL_AGENT_ERROR.
func (h *HTTPInvoker) Invoke(ctx context.Context, agent core.AgentDefinition, envelope *core.IntentEnvelope) (*core.AgentResponse, error) {
	if agent.Endpoint == "" {
		return nil, fmt.Errorf("transport: agent %q has no endpoint", agent.Name)
	}

	body, err := core.MarshalCanonical(envelope)
	if err != nil {
		return nil, fmt.Errorf("transport: encode envelope: %w", err)
	}

	url := agent.Endpoint + "/invoke"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("transport: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := h.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("transport: call %s: %w", agent.Name, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("transport: read response from %s: %w", agent.Name, err)
	}

	var out core.AgentResponse
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("transport: decode response from %s (status %d): %w", agent.Name, resp.StatusCode, err)
	}
	return &out, nil
}
