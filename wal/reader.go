package wal

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"github.com/gomind-labs/execrt/core"
)

// ReadResult is the outcome of reading and verifying one execution's
// WAL file.
type ReadResult struct {
	Entries []Entry
	// Torn is true when the file ends mid-line (a write that was
	// interrupted before its trailing newline, or before fsync
	// completed). Torn is not itself an integrity error: a correctly
	// functioning WAL can be torn exactly once, at the very end, after
	// a crash. Anything else wrong is returned as an error.
	Torn bool
}

// ReadFile parses and verifies the WAL file for executionID under
// dir: sequence numbers must be contiguous from one, each entry's
// EntryHash must match its recomputed hash, and PrevHash must chain to
// the previous entry's EntryHash. If keys is non-nil, any entry
// carrying a signature is also verified against it.
func ReadFile(dir, executionID string, keys *core.KeyRegistry) (*ReadResult, error) {
	path := filepath.Join(dir, executionID+".jsonl")
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, core.NewFrameworkError("wal.ReadFile", string(core.KindWALIntegrityError), core.ErrWALMissing).WithID(executionID)
		}
		return nil, core.NewFrameworkError("wal.ReadFile", string(core.KindWALIntegrityError), err).WithID(executionID)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 16*1024*1024)
	var lines []string
	for scanner.Scan() {
		if trimmed := strings.TrimSpace(scanner.Text()); trimmed != "" {
			lines = append(lines, trimmed)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, core.NewFrameworkError("wal.ReadFile", string(core.KindWALIntegrityError), err).WithID(executionID)
	}

	result := &ReadResult{}
	var prevHash string
	expectSeq := int64(1)

	for i, trimmed := range lines {
		var entry Entry
		if err := json.Unmarshal([]byte(trimmed), &entry); err != nil {
			// A line that doesn't parse as JSON at all is a torn write
			// from a crash mid-fsync, but only if it's the last line;
			// a malformed line anywhere else is real corruption.
			if i == len(lines)-1 {
				result.Torn = true
				break
			}
			return nil, core.NewFrameworkError("wal.ReadFile", string(core.KindWALIntegrityError), core.ErrWALEntryHashInvalid).
				WithID(executionID).WithSubtype("unparseable_entry")
		}

		if entry.Seq != expectSeq {
			return nil, core.NewFrameworkError("wal.ReadFile", string(core.KindWALIntegrityError), core.ErrWALSeqGap).
				WithID(executionID).WithSubtype("seq_gap")
		}
		if entry.PrevHash != prevHash {
			return nil, core.NewFrameworkError("wal.ReadFile", string(core.KindWALIntegrityError), core.ErrWALHashChainBroken).
				WithID(executionID).WithSubtype("hash_chain_broken")
		}

		recomputed, err := computeEntryHash(&entry)
		if err != nil {
			return nil, core.NewFrameworkError("wal.ReadFile", string(core.KindWALIntegrityError), err).WithID(executionID)
		}
		if recomputed != entry.EntryHash {
			return nil, core.NewFrameworkError("wal.ReadFile", string(core.KindWALIntegrityError), core.ErrWALEntryHashInvalid).
				WithID(executionID).WithSubtype("entry_hash_invalid")
		}

		if keys != nil && entry.Signature != "" {
			signable, err := entry.SignableBytes()
			if err != nil {
				return nil, core.NewFrameworkError("wal.ReadFile", string(core.KindWALIntegrityError), err).WithID(executionID)
			}
			if err := keys.Verify(entry.KeyID, signable, entry.Signature); err != nil {
				return nil, err
			}
		}

		result.Entries = append(result.Entries, entry)
		prevHash = entry.EntryHash
		expectSeq++
	}

	return result, nil
}

// ListExecutionIDs returns every executionId with a WAL file under
// dir, used by crash recovery to find in-flight executions.
func ListExecutionIDs(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, core.NewFrameworkError("wal.ListExecutionIDs", string(core.KindWALIntegrityError), err)
	}
	var ids []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if strings.HasSuffix(name, ".jsonl") {
			ids = append(ids, strings.TrimSuffix(name, ".jsonl"))
		}
	}
	return ids, nil
}

// LastEntry returns the final entry in an execution's WAL, or nil if
// the WAL is empty or torn with no valid entries before the tear.
func (r *ReadResult) LastEntry() *Entry {
	if len(r.Entries) == 0 {
		return nil
	}
	return &r.Entries[len(r.Entries)-1]
}

// IsTerminal reports whether the WAL's last entry marks the execution
// as finished (successfully or not), meaning recovery has nothing to
// do for it.
func (r *ReadResult) IsTerminal() bool {
	last := r.LastEntry()
	if last == nil {
		return false
	}
	return last.EntryType == EntryExecutionCompleted || last.EntryType == EntryExecutionFailed || last.EntryType == EntryExecutionAborted
}
