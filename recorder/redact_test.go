package recorder

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gomind-labs/execrt/core"
)

func TestRedactResponseNoFieldsIsNoOp(t *testing.T) {
	resp := &core.AgentResponse{Payload: map[string]core.Value{"ssn": "123"}}
	out := redactResponse(resp, nil)
	assert.Same(t, resp, out)
}

func TestRedactResponseNilResponseReturnsNil(t *testing.T) {
	assert.Nil(t, redactResponse(nil, []string{"ssn"}))
}

func TestRedactResponseScrubsTopLevelAndMetadataFields(t *testing.T) {
	resp := &core.AgentResponse{
		Payload:  map[string]core.Value{"ssn": "123-45-6789"},
		Metadata: map[string]core.Value{"ssn": "123-45-6789", "traceId": "t-1"},
	}
	out := redactResponse(resp, []string{"ssn"})
	assert.Equal(t, redactionMarker, out.Payload["ssn"])
	assert.Equal(t, redactionMarker, out.Metadata["ssn"])
	assert.Equal(t, "t-1", out.Metadata["traceId"])
}

func TestRedactResponseScrubsWithinNestedLists(t *testing.T) {
	resp := &core.AgentResponse{
		Payload: map[string]core.Value{
			"customers": []core.Value{
				map[string]core.Value{"email": "a@example.com"},
				map[string]core.Value{"email": "b@example.com"},
			},
		},
	}
	out := redactResponse(resp, []string{"email"})
	list, ok := out.Payload["customers"].([]core.Value)
	require.True(t, ok)
	require.Len(t, list, 2)
	for _, item := range list {
		m, ok := item.(map[string]core.Value)
		require.True(t, ok)
		assert.Equal(t, redactionMarker, m["email"])
	}
}
