package fingerprint

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gomind-labs/execrt/core"
	"github.com/gomind-labs/execrt/recorder"
	"github.com/gomind-labs/execrt/wal"
)

func baseEnvelope() *core.IntentEnvelope {
	return &core.IntentEnvelope{
		Version:  "1",
		Intent:   core.IntentReference{Name: "order.place", Version: "v1"},
		Contract: &core.ExecutionContract{TimeoutMs: 5000},
		RoutingMetadata: core.RoutingMetadata{
			DecisionPath: []string{"agent-a"},
		},
	}
}

func baseRecord() *recorder.Record {
	return &recorder.Record{
		EnvelopeHash: "envhash-1",
		Events: []recorder.Event{
			{EntryType: wal.EntryStepStarted, Payload: map[string]core.Value{"agent": "agent-a"}},
			{EntryType: wal.EntryStepCompleted, Payload: map[string]core.Value{"agent": "agent-a", "responseHash": "resphash-1"}},
		},
	}
}

func TestComputeIsDeterministicForEquivalentInputs(t *testing.T) {
	envelope := baseEnvelope()
	record := baseRecord()

	h1, err := Compute(envelope, record)
	require.NoError(t, err)
	h2, err := Compute(baseEnvelope(), baseRecord())
	require.NoError(t, err)
	assert.Equal(t, h1, h2)
}

func TestComputeDiffersWhenOutputHashDiffers(t *testing.T) {
	envelope := baseEnvelope()
	record := baseRecord()
	h1, err := Compute(envelope, record)
	require.NoError(t, err)

	other := baseRecord()
	other.Events[1].Payload["responseHash"] = "resphash-2"
	h2, err := Compute(envelope, other)
	require.NoError(t, err)

	assert.NotEqual(t, h1, h2)
}

func TestComputeCountsRetriesPastFirstAttempt(t *testing.T) {
	envelope := baseEnvelope()
	record := &recorder.Record{
		EnvelopeHash: "envhash-1",
		Events: []recorder.Event{
			{EntryType: wal.EntryStepStarted, Payload: map[string]core.Value{"agent": "agent-a"}},
			{EntryType: wal.EntryStepFailed, Payload: map[string]core.Value{"agent": "agent-a", "code": "TIMEOUT"}},
			{EntryType: wal.EntryStepStarted, Payload: map[string]core.Value{"agent": "agent-a"}},
			{EntryType: wal.EntryStepCompleted, Payload: map[string]core.Value{"agent": "agent-a", "responseHash": "resphash-1"}},
		},
	}

	h, err := Compute(envelope, record)
	require.NoError(t, err)
	assert.NotEmpty(t, h)

	// A single-attempt record with the same final output must hash
	// differently: the retry happened, so the fingerprint must reflect it.
	single := baseRecord()
	hSingle, err := Compute(envelope, single)
	require.NoError(t, err)
	assert.NotEqual(t, h, hSingle)
}
