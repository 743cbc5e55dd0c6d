package recorder

import (
	"encoding/json"
	"path/filepath"

	"github.com/gomind-labs/execrt/core"
	"github.com/gomind-labs/execrt/wal"
)

// Recorder finalizes ExecutionRecords from a terminal WAL and persists
// them atomically under recordsDir. Finalize is called explicitly
// with the response once the WAL carries its terminal entry; the
// router does not call it, so Route alone persists no record. The
// response is passed straight through rather than reconstructed from
// the WAL's necessarily-lossy hash-only payloads.
type Recorder struct {
	recordsDir   string
	logger       core.Logger
	redactFields []string
}

// NewRecorder creates a Recorder persisting to recordsDir.
func NewRecorder(recordsDir string, logger core.Logger) *Recorder {
	if logger == nil {
		logger = core.NoOpLogger{}
	}
	return &Recorder{recordsDir: recordsDir, logger: logger}
}

// SetRedaction configures field names to scrub from a response's
// Payload/Metadata (at any nesting depth) before a record is
// persisted. Required under REGULATED compliance (core.Config.Validate
// enforces RedactPII/RedactPIIFields are set there).
func (r *Recorder) SetRedaction(fields []string) {
	r.redactFields = fields
}

// Finalize reads executionID's WAL (which must already carry a
// terminal entry), builds the Record, computes RecordHash, and
// persists it as <recordsDir>/<executionId>.json via an atomic
// temp-file-rename write.
func (r *Recorder) Finalize(walDir, executionID string, envelope *core.IntentEnvelope, response *core.AgentResponse, keys *core.KeyRegistry) (*Record, error) {
	result, err := wal.ReadFile(walDir, executionID, keys)
	if err != nil {
		return nil, err
	}
	if !result.IsTerminal() {
		return nil, core.NewFrameworkError("Recorder.Finalize", string(core.KindWALIntegrityError),
			core.ErrRecordNotFinalized).WithID(executionID)
	}

	envHash, err := envelope.EnvelopeHash()
	if err != nil {
		return nil, core.NewFrameworkError("Recorder.Finalize", string(core.KindWALIntegrityError), err).WithID(executionID)
	}

	response = redactResponse(response, r.redactFields)

	events := make([]Event, 0, len(result.Entries))
	for _, e := range result.Entries {
		events = append(events, Event{
			Seq:          e.Seq,
			EntryType:    e.EntryType,
			TimestampISO: e.TimestampISO,
			Payload:      e.Payload,
		})
	}

	record := &Record{
		ExecutionID:  executionID,
		EnvelopeHash: envHash,
		Intent:       envelope.Intent,
		StartedAt:    result.Entries[0].TimestampISO,
		FinishedAt:   result.Entries[len(result.Entries)-1].TimestampISO,
		Events:       events,
		Response:     response,
		Finalized:    true,
		Replayable:   isReplayable(envelope, response),
	}

	hash, err := computeRecordHash(record)
	if err != nil {
		return nil, core.NewFrameworkError("Recorder.Finalize", string(core.KindWALIntegrityError), err).WithID(executionID)
	}
	record.RecordHash = hash

	data, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		return nil, core.NewFrameworkError("Recorder.Finalize", string(core.KindWALIntegrityError), err).WithID(executionID)
	}
	if err := core.EnsureDir(r.recordsDir); err != nil {
		return nil, err
	}
	path := filepath.Join(r.recordsDir, executionID+".json")
	if err := core.WriteFileAtomic(path, data, 0o644); err != nil {
		return nil, core.NewFrameworkError("Recorder.Finalize", string(core.KindWALIntegrityError), err).WithID(executionID)
	}

	r.logger.Info("execution record finalized", map[string]interface{}{
		"executionId": executionID,
		"recordHash":  record.RecordHash,
		"replayable":  record.Replayable,
	})
	return record, nil
}

// isReplayable reports whether an execution could safely be resumed
// by the recovery manager: once an IRREVERSIBLE-classified envelope
// has run without a clean success, the side effect it may have caused
// cannot be undone by replaying, so it is never replayable.
func isReplayable(envelope *core.IntentEnvelope, response *core.AgentResponse) bool {
	if envelope.SideEffect == core.SideEffectIrreversible && response.Status != core.ResponseSuccess {
		return false
	}
	return true
}
