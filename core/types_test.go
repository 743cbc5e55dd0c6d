package core

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestIntentReferenceEqual(t *testing.T) {
	a := IntentReference{Name: "order.place", Version: "v1"}
	b := IntentReference{Name: "order.place", Version: "v1"}
	c := IntentReference{Name: "order.place", Version: "v2"}

	assert.True(t, a.Equal(b))
	assert.False(t, a.Equal(c))
	assert.Equal(t, "order.place/v1", a.String())
}

func TestRoutingMetadataAppendIsOrderedAndCumulative(t *testing.T) {
	var m RoutingMetadata
	m.Append("agent-a")
	m.Append("agent-b")
	assert.Equal(t, []string{"agent-a", "agent-b"}, m.DecisionPath)
}

func TestSideEffectClassIsEscalationFrom(t *testing.T) {
	tests := []struct {
		name string
		from SideEffectClass
		to   SideEffectClass
		want bool
	}{
		{"read_only to reversible is allowed", SideEffectReadOnly, SideEffectReversible, true},
		{"reversible to irreversible is allowed", SideEffectReversible, SideEffectIrreversible, true},
		{"read_only to irreversible is allowed", SideEffectReadOnly, SideEffectIrreversible, true},
		{"same class is allowed", SideEffectReversible, SideEffectReversible, true},
		{"irreversible to reversible is forbidden", SideEffectIrreversible, SideEffectReversible, false},
		{"reversible to read_only is forbidden", SideEffectReversible, SideEffectReadOnly, false},
		{"irreversible to irreversible is allowed", SideEffectIrreversible, SideEffectIrreversible, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.to.IsEscalationFrom(tt.from))
		})
	}
}

func TestExecutionContractTimeout(t *testing.T) {
	c := &ExecutionContract{TimeoutMs: 1500}
	assert.Equal(t, 1500*time.Millisecond, c.Timeout())
}

func TestEnvelopeHashStableAcrossEqualEnvelopes(t *testing.T) {
	e1 := &IntentEnvelope{
		Version: "1",
		Intent:  IntentReference{Name: "order.place", Version: "v1"},
		Payload: map[string]Value{"sku": "abc", "qty": 2},
	}
	e2 := &IntentEnvelope{
		Version: "1",
		Intent:  IntentReference{Name: "order.place", Version: "v1"},
		Payload: map[string]Value{"qty": 2, "sku": "abc"},
	}

	h1, err := e1.EnvelopeHash()
	assert.NoError(t, err)
	h2, err := e2.EnvelopeHash()
	assert.NoError(t, err)
	assert.Equal(t, h1, h2)
}

func TestResponseHashDiffersByPayload(t *testing.T) {
	r1 := &AgentResponse{Status: ResponseSuccess, Payload: map[string]Value{"x": 1}}
	r2 := &AgentResponse{Status: ResponseSuccess, Payload: map[string]Value{"x": 2}}

	h1, err := r1.ResponseHash()
	assert.NoError(t, err)
	h2, err := r2.ResponseHash()
	assert.NoError(t, err)
	assert.NotEqual(t, h1, h2)
}
