// Package fingerprint computes a deterministic SHA-256 fingerprint
// per execution for drift detection: running the same deterministic
// envelope against the same registry N times must produce identical
// fingerprints, or something non-deterministic has crept into the
// router, an agent, or its retry behavior.
package fingerprint

import (
	"github.com/gomind-labs/execrt/core"
	"github.com/gomind-labs/execrt/recorder"
	"github.com/gomind-labs/execrt/wal"
)

// tuple is the canonical input to the fingerprint hash. Wall-clock
// timestamps, execution ids, and log messages are deliberately
// excluded — none of them are part of what "the same execution"
// means.
type tuple struct {
	IntentSequence []string          `json:"intentSequence"`
	ToolSequence   []string          `json:"toolSequence"`
	ParamHashes    []string          `json:"paramHashes"`
	OutputHashes   []string          `json:"outputHashes"`
	RetryPattern   map[string]int    `json:"retryPattern"`
	ExecutionOrder []string          `json:"executionOrder"`
	TimeoutValues  []int             `json:"timeoutValues"`
}

// Compute derives an execution's fingerprint from its finalized
// Record and the envelope that produced it. Both are required: the
// record carries the step-by-step WAL transcription, the envelope
// carries the contract timeout value and the full decisionPath.
func Compute(envelope *core.IntentEnvelope, record *recorder.Record) (string, error) {
	t := tuple{
		IntentSequence: []string{envelope.Intent.String()},
		ExecutionOrder: append([]string(nil), envelope.RoutingMetadata.DecisionPath...),
		RetryPattern:   map[string]int{},
	}

	if envelope.Contract != nil {
		t.TimeoutValues = append(t.TimeoutValues, envelope.Contract.TimeoutMs)
	}

	retries := map[string]int{}
	for _, ev := range record.Events {
		switch ev.EntryType {
		case wal.EntryStepStarted:
			if agent, ok := ev.Payload["agent"].(string); ok {
				t.ToolSequence = append(t.ToolSequence, agent)
				retries[agent]++
			}
		case wal.EntryStepCompleted, wal.EntryStepFailed:
			if hash, ok := ev.Payload["responseHash"].(string); ok {
				t.OutputHashes = append(t.OutputHashes, hash)
			} else if code, ok := ev.Payload["code"].(string); ok {
				t.OutputHashes = append(t.OutputHashes, code)
			}
		}
	}
	for agent, count := range retries {
		// A step is only a "retry" past its first attempt.
		if count > 1 {
			t.RetryPattern[agent] = count - 1
		}
	}

	if record.EnvelopeHash != "" {
		t.ParamHashes = append(t.ParamHashes, record.EnvelopeHash)
	}

	return core.ContentHash(t)
}
