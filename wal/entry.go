// Package wal implements the hash-chained, fsync-durable write-ahead
// log every execution appends to before any side effect it describes
// is allowed to take place.
package wal

import (
	"github.com/gomind-labs/execrt/core"
)

// EntryType names the event an Entry records. The router, contract
// engine, and recovery manager each write a bounded vocabulary of
// these. ReadFile does not check an entry's type against this list.
type EntryType string

const (
	EntryExecutionStarted   EntryType = "execution.started"
	EntryExecutionCompleted EntryType = "execution.completed"
	EntryExecutionFailed    EntryType = "execution.failed"
	EntryExecutionAborted   EntryType = "execution.aborted"
	EntryStepStarted        EntryType = "step.started"
	EntryStepCompleted      EntryType = "step.completed"
	EntryStepFailed         EntryType = "step.failed"
	EntryStepSkipped        EntryType = "step.skipped"
	EntryFallbackTriggered  EntryType = "fallback.triggered"
	EntryFallbackExhausted  EntryType = "fallback.exhausted"
	EntryContractValidated  EntryType = "contract.validated"
	EntryContractViolated   EntryType = "contract.violated"
	EntryRecoveryStarted    EntryType = "recovery.started"
	EntryRecoveryCompleted  EntryType = "recovery.completed"
	EntryCheckpoint         EntryType = "checkpoint"
)

// EntryVersion is the wire version stamped on every entry, bumped
// only on a breaking change to the hash input tuple.
const EntryVersion = "1"

// Entry is one hash-chained record in an execution's WAL. Every field
// that participates in EntryHash is exported and ordered exactly as
// the canonical tuple in computeEntryHash; Signature and KeyID are
// deliberately excluded from the hash so a REGULATED-mode signature
// covers the hash, not the other way around.
type Entry struct {
	Seq          int64            `json:"seq"`
	ExecutionID  string           `json:"executionId"`
	TimestampISO string           `json:"timestampIso"`
	EntryType    EntryType        `json:"entryType"`
	Payload      map[string]core.Value `json:"payload,omitempty"`
	PrevHash     string           `json:"prevHash"`
	Version      string           `json:"version"`
	EntryHash    string           `json:"entryHash"`
	KeyID        string           `json:"keyId,omitempty"`
	Signature    string           `json:"signature,omitempty"`
}

// hashable is the exact tuple hashed into EntryHash: seq, executionId,
// timestampIso, entryType, payload, prevHash, version — in that order,
// matching the field order documented on Entry.
type hashable struct {
	Seq          int64            `json:"seq"`
	ExecutionID  string           `json:"executionId"`
	TimestampISO string           `json:"timestampIso"`
	EntryType    EntryType        `json:"entryType"`
	Payload      map[string]core.Value `json:"payload,omitempty"`
	PrevHash     string           `json:"prevHash"`
	Version      string           `json:"version"`
}

// computeEntryHash returns the SHA-256 hex digest of e's canonical
// hashable tuple.
func computeEntryHash(e *Entry) (string, error) {
	h := hashable{
		Seq:          e.Seq,
		ExecutionID:  e.ExecutionID,
		TimestampISO: e.TimestampISO,
		EntryType:    e.EntryType,
		Payload:      e.Payload,
		PrevHash:     e.PrevHash,
		Version:      e.Version,
	}
	return core.ContentHash(h)
}

// SignableBytes returns the canonical bytes an Ed25519 signature
// covers: the entry's own EntryHash plus its identity fields, so a
// signature cannot be replayed onto a different entry even if the
// hash happened to collide (it won't, but the signature should cover
// more than just the hash string alone).
func (e *Entry) SignableBytes() ([]byte, error) {
	return core.MarshalCanonical(map[string]core.Value{
		"executionId": e.ExecutionID,
		"seq":         e.Seq,
		"entryHash":   e.EntryHash,
	})
}
