// Package recorder builds immutable ExecutionRecords from a finished
// WAL and persists them atomically. A Record is pure derived state —
// everything in it can be recomputed by replaying the WAL — so the
// recorder never itself decides execution outcomes, only transcribes
// them.
package recorder

import (
	"github.com/gomind-labs/execrt/core"
	"github.com/gomind-labs/execrt/wal"
)

// Event is a record's transcription of one WAL entry: the seq and
// type an operator needs to correlate a record with its WAL file,
// without repeating the hash-chain fields the WAL itself already
// guards.
type Event struct {
	Seq          int64                  `json:"seq"`
	EntryType    wal.EntryType          `json:"entryType"`
	TimestampISO string                 `json:"timestampIso"`
	Payload      map[string]core.Value  `json:"payload,omitempty"`
}

// Record is the immutable, content-addressed summary of one
// execution. It is finalized exactly once, at execution.completed or
// execution.failed, and never mutated afterward.
type Record struct {
	ExecutionID  string              `json:"executionId"`
	EnvelopeHash string              `json:"envelopeHash"`
	Intent       core.IntentReference `json:"intent"`
	StartedAt    string              `json:"startedAt"`
	FinishedAt   string              `json:"finishedAt"`
	Events       []Event             `json:"events"`
	Response     *core.AgentResponse `json:"response"`
	RecordHash   string              `json:"recordHash"`
	Finalized    bool                `json:"finalized"`
	// Replayable marks whether this execution could safely be driven
	// through recovery's RESUME path: an IRREVERSIBLE execution whose
	// response is not a success is never replayable; a successful one
	// is.
	Replayable bool `json:"replayable"`
}

// hashableRecord mirrors Record's fields minus RecordHash, which is
// computed over everything else.
type hashableRecord struct {
	ExecutionID  string               `json:"executionId"`
	EnvelopeHash string               `json:"envelopeHash"`
	Intent       core.IntentReference `json:"intent"`
	StartedAt    string               `json:"startedAt"`
	FinishedAt   string               `json:"finishedAt"`
	Events       []Event              `json:"events"`
	Response     *core.AgentResponse  `json:"response"`
	Finalized    bool                 `json:"finalized"`
	Replayable   bool                 `json:"replayable"`
}

// computeRecordHash returns the SHA-256 hex digest of r's canonical
// encoding with RecordHash excluded.
func computeRecordHash(r *Record) (string, error) {
	h := hashableRecord{
		ExecutionID:  r.ExecutionID,
		EnvelopeHash: r.EnvelopeHash,
		Intent:       r.Intent,
		StartedAt:    r.StartedAt,
		FinishedAt:   r.FinishedAt,
		Events:       r.Events,
		Response:     r.Response,
		Finalized:    r.Finalized,
		Replayable:   r.Replayable,
	}
	return core.ContentHash(h)
}
