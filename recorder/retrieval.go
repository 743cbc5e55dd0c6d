package recorder

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/gomind-labs/execrt/core"
	"github.com/gomind-labs/execrt/wal"
)

// Retrieve loads executionID's Record, verifies its RecordHash and
// cross-checks it against the matching WAL, and returns it without
// invoking any agent. Retrieval is pure lookup: callers that need the
// stored response read Record.Response.
func Retrieve(recordsDir, walDir, executionID string, keys *core.KeyRegistry) (*Record, error) {
	path := filepath.Join(recordsDir, executionID+".json")
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, core.NewFrameworkError("recorder.Retrieve", string(core.KindWALIntegrityError), core.ErrRecordNotFound).WithID(executionID)
		}
		return nil, core.NewFrameworkError("recorder.Retrieve", string(core.KindWALIntegrityError), err).WithID(executionID)
	}

	var record Record
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, core.NewFrameworkError("recorder.Retrieve", string(core.KindWALIntegrityError), err).WithID(executionID)
	}

	if !record.Finalized {
		return nil, core.NewFrameworkError("recorder.Retrieve", string(core.KindWALIntegrityError), core.ErrRecordNotFinalized).WithID(executionID)
	}

	storedHash := record.RecordHash
	recomputed, err := computeRecordHash(&record)
	if err != nil {
		return nil, core.NewFrameworkError("recorder.Retrieve", string(core.KindWALIntegrityError), err).WithID(executionID)
	}
	if recomputed != storedHash {
		return nil, core.NewFrameworkError("recorder.Retrieve", string(core.KindWALIntegrityError), core.ErrRecordHashMismatch).WithID(executionID)
	}

	if err := crossCheckWAL(&record, walDir, executionID, keys); err != nil {
		return nil, err
	}

	return &record, nil
}

// crossCheckWAL reloads executionID's WAL and verifies invariant 4/5
// from the data model: the record's envelope hash matches the WAL's
// execution.started entry, and every WAL entry has exactly one
// corresponding record event (no extras on either side).
func crossCheckWAL(record *Record, walDir, executionID string, keys *core.KeyRegistry) error {
	result, err := wal.ReadFile(walDir, executionID, keys)
	if err != nil {
		return err
	}

	if len(result.Entries) != len(record.Events) {
		return core.NewFrameworkError("recorder.crossCheckWAL", string(core.KindWALIntegrityError), core.ErrConsistencyViolation).
			WithID(executionID).WithSubtype("event_count_mismatch")
	}

	for i, entry := range result.Entries {
		ev := record.Events[i]
		if entry.Seq != ev.Seq || entry.EntryType != ev.EntryType {
			return core.NewFrameworkError("recorder.crossCheckWAL", string(core.KindWALIntegrityError), core.ErrConsistencyViolation).
				WithID(executionID).WithSubtype("event_mismatch")
		}
	}

	if len(result.Entries) > 0 {
		first := result.Entries[0]
		if first.EntryType == wal.EntryExecutionStarted {
			if envHash, ok := first.Payload["envelopeHash"].(string); ok && envHash != record.EnvelopeHash {
				return core.NewFrameworkError("recorder.crossCheckWAL", string(core.KindWALIntegrityError), core.ErrConsistencyViolation).
					WithID(executionID).WithSubtype("envelope_hash_mismatch")
			}
		}
	}

	return nil
}
