package wal

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gomind-labs/execrt/core"
)

type walOp int

const (
	opAppend walOp = iota
	opClose
)

// writeRequest is handed to the single writer goroutine over an
// unbuffered channel; the caller blocks on reply until the entry is
// fsynced, so Append never returns before the entry is durable.
type writeRequest struct {
	op        walOp
	entryType EntryType
	payload   map[string]core.Value
	reply     chan writeReply
}

type writeReply struct {
	entry *Entry
	err   error
}

// Writer durably appends Entries to one execution's WAL file. Exactly
// one Writer should exist per executionId at a time; its internal
// goroutine is the sole owner of seq/prevHash, so Append is safe to
// call concurrently from multiple goroutines racing to record
// different steps of the same execution — writes are serialized FIFO.
type Writer struct {
	executionID string
	path        string
	file        *os.File
	writer      *bufio.Writer

	reqChan  chan writeRequest
	doneChan chan struct{}
	closeOnce sync.Once

	seq      int64
	prevHash string

	signer       *core.KeyPair
	signRequired bool

	logger core.Logger
}

// NewWriter creates the WAL file for executionID under dir. The
// caller is responsible for never constructing two Writers for the
// same executionId concurrently. signer may be nil when signRequired
// is false.
func NewWriter(dir, executionID string, signer *core.KeyPair, signRequired bool, logger core.Logger) (*Writer, error) {
	if logger == nil {
		logger = core.NoOpLogger{}
	}
	if err := core.EnsureDir(dir); err != nil {
		return nil, err
	}
	path := filepath.Join(dir, executionID+".jsonl")

	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY|os.O_CREATE, 0o600)
	if err != nil {
		return nil, core.NewFrameworkError("wal.NewWriter", string(core.KindWALIntegrityError), err).WithID(executionID)
	}

	w := &Writer{
		executionID:  executionID,
		path:         path,
		file:         f,
		writer:       bufio.NewWriter(f),
		reqChan:      make(chan writeRequest),
		doneChan:     make(chan struct{}),
		seq:          1,
		signer:       signer,
		signRequired: signRequired,
		logger:       logger,
	}

	go w.run()
	return w, nil
}

// ResumeWriter reopens an existing execution's WAL file for further
// appends — used by recovery to write recovery.started/completed and
// execution.aborted entries onto a WAL that already has entries on
// disk. It replays the file first (the same integrity checks
// ReadFile applies) so seq/prevHash continue the existing hash chain
// instead of restarting it, which NewWriter would silently corrupt if
// pointed at a non-empty file.
func ResumeWriter(dir, executionID string, keys *core.KeyRegistry, signer *core.KeyPair, signRequired bool, logger core.Logger) (*Writer, error) {
	if logger == nil {
		logger = core.NoOpLogger{}
	}
	result, err := ReadFile(dir, executionID, keys)
	if err != nil {
		return nil, err
	}
	if result.Torn {
		return nil, core.NewFrameworkError("wal.ResumeWriter", string(core.KindWALIntegrityError),
			fmt.Errorf("refusing to resume a torn WAL for %s", executionID)).WithID(executionID)
	}

	path := filepath.Join(dir, executionID+".jsonl")
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, core.NewFrameworkError("wal.ResumeWriter", string(core.KindWALIntegrityError), err).WithID(executionID)
	}

	w := &Writer{
		executionID:  executionID,
		path:         path,
		file:         f,
		writer:       bufio.NewWriter(f),
		reqChan:      make(chan writeRequest),
		doneChan:     make(chan struct{}),
		signer:       signer,
		signRequired: signRequired,
		logger:       logger,
	}
	if last := result.LastEntry(); last != nil {
		w.seq = last.Seq + 1
		w.prevHash = last.EntryHash
	} else {
		w.seq = 1
	}

	go w.run()
	return w, nil
}

// Append durably records one entry and returns it fully populated
// (hash, signature, seq) once fsync has completed.
func (w *Writer) Append(entryType EntryType, payload map[string]core.Value) (*Entry, error) {
	reply := make(chan writeReply, 1)
	select {
	case w.reqChan <- writeRequest{op: opAppend, entryType: entryType, payload: payload, reply: reply}:
		r := <-reply
		return r.entry, r.err
	case <-w.doneChan:
		return nil, core.NewFrameworkError("Writer.Append", string(core.KindWALIntegrityError),
			fmt.Errorf("wal writer for %s is closed", w.executionID)).WithID(w.executionID)
	}
}

// Close flushes, fsyncs, and closes the underlying file. Idempotent;
// safe to call concurrently with in-flight Append calls (they see the
// closed error if they lose the race).
func (w *Writer) Close() error {
	var closeErr error
	w.closeOnce.Do(func() {
		reply := make(chan writeReply, 1)
		select {
		case w.reqChan <- writeRequest{op: opClose, reply: reply}:
			r := <-reply
			closeErr = r.err
		case <-time.After(2 * time.Second):
			closeErr = core.NewFrameworkError("Writer.Close", string(core.KindWALIntegrityError),
				fmt.Errorf("wal writer goroutine for %s did not respond to close", w.executionID)).WithID(w.executionID)
		}
		close(w.doneChan)
	})
	return closeErr
}

// run is the sole goroutine permitted to mutate seq/prevHash or touch
// the file handle.
func (w *Writer) run() {
	for req := range w.reqChan {
		switch req.op {
		case opClose:
			err := w.flushAndSync()
			closeErr := w.file.Close()
			if err == nil {
				err = closeErr
			}
			req.reply <- writeReply{err: err}
			return
		default:
			entry, err := w.appendOne(req.entryType, req.payload)
			req.reply <- writeReply{entry: entry, err: err}
		}
	}
}

func (w *Writer) appendOne(entryType EntryType, payload map[string]core.Value) (*Entry, error) {
	entry := &Entry{
		Seq:          w.seq,
		ExecutionID:  w.executionID,
		TimestampISO: time.Now().UTC().Format(time.RFC3339Nano),
		EntryType:    entryType,
		Payload:      payload,
		PrevHash:     w.prevHash,
		Version:      EntryVersion,
	}

	hash, err := computeEntryHash(entry)
	if err != nil {
		return nil, core.NewFrameworkError("Writer.appendOne", string(core.KindWALIntegrityError), err).WithID(w.executionID)
	}
	entry.EntryHash = hash

	if w.signRequired {
		if w.signer == nil {
			return nil, core.NewFrameworkError("Writer.appendOne", string(core.KindWALIntegrityError),
				fmt.Errorf("signing required but no signer configured")).WithID(w.executionID)
		}
		signable, err := entry.SignableBytes()
		if err != nil {
			return nil, core.NewFrameworkError("Writer.appendOne", string(core.KindWALIntegrityError), err).WithID(w.executionID)
		}
		entry.KeyID = w.signer.KeyID
		entry.Signature = w.signer.Sign(signable)
	}

	line, err := json.Marshal(entry)
	if err != nil {
		return nil, core.NewFrameworkError("Writer.appendOne", string(core.KindWALIntegrityError), err).WithID(w.executionID)
	}
	if _, err := w.writer.Write(line); err != nil {
		return nil, core.NewFrameworkError("Writer.appendOne", string(core.KindWALIntegrityError), err).WithID(w.executionID)
	}
	if err := w.writer.WriteByte('\n'); err != nil {
		return nil, core.NewFrameworkError("Writer.appendOne", string(core.KindWALIntegrityError), err).WithID(w.executionID)
	}
	if err := w.flushAndSync(); err != nil {
		return nil, err
	}

	w.seq++
	w.prevHash = entry.EntryHash
	return entry, nil
}

func (w *Writer) flushAndSync() error {
	if err := w.writer.Flush(); err != nil {
		return core.NewFrameworkError("Writer.flushAndSync", string(core.KindWALIntegrityError), err).WithID(w.executionID)
	}
	if err := w.file.Sync(); err != nil {
		return core.NewFrameworkError("Writer.flushAndSync", string(core.KindWALIntegrityError), err).WithID(w.executionID)
	}
	return nil
}
