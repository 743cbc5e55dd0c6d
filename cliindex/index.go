// Package cliindex maintains a sqlite-backed introspection index over
// a WALDir and RecordsDir so `executions list/show/trace/diff` can
// answer in constant-ish time instead of re-parsing every WAL file on
// every CLI invocation. The index is pure derived state: Rebuild
// replays WALDir/RecordsDir from scratch and is always correct to run
// again, the same way a read-model can always be rebuilt from its
// event log.
package cliindex

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"fmt"
	"strings"

	_ "github.com/mattn/go-sqlite3"

	"github.com/gomind-labs/execrt/core"
	"github.com/gomind-labs/execrt/recorder"
	"github.com/gomind-labs/execrt/wal"
)

//go:embed schema.sql
var schemaSQL string

// Index wraps the sqlite connection backing the CLI's introspection
// views. SQLite only supports one writer at a time, so like the
// teacher's store, the pool is pinned to a single connection rather
// than left at Go's default.
type Index struct {
	db *sql.DB
}

// Open opens (creating if necessary) the sqlite file at path and
// applies pragmas and schema.
func Open(path string) (*Index, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, core.NewFrameworkError("cliindex.Open", "configuration", err).WithID(path)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	idx := &Index{db: db}
	if err := idx.applyPragmas(); err != nil {
		db.Close()
		return nil, err
	}
	if err := idx.applySchema(); err != nil {
		db.Close()
		return nil, err
	}
	return idx, nil
}

func (idx *Index) applyPragmas() error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
	}
	for _, p := range pragmas {
		if _, err := idx.db.Exec(p); err != nil {
			return core.NewFrameworkError("cliindex.applyPragmas", "configuration", err)
		}
	}
	return nil
}

func (idx *Index) applySchema() error {
	if _, err := idx.db.Exec(schemaSQL); err != nil {
		return core.NewFrameworkError("cliindex.applySchema", "configuration", err)
	}
	return nil
}

// Close releases the underlying sqlite connection.
func (idx *Index) Close() error {
	return idx.db.Close()
}

// DB exposes the raw connection for callers that need a query shape
// this package doesn't provide yet.
func (idx *Index) DB() *sql.DB {
	return idx.db
}

// ExecutionSummary is one row of the executions table, the unit
// `executions list/show` render.
type ExecutionSummary struct {
	ExecutionID   string
	IntentName    string
	IntentVersion string
	Strategy      string
	Status        string
	StartedAt     string
	FinishedAt    string
	DecisionPath  []string
	RecordHash    string
	Replayable    bool
}

// Rebuild truncates the index and repopulates it by replaying every
// WAL file under walDir, cross-referencing the finalized Record under
// recordsDir when one exists. It is always safe to call: the index
// has no state that doesn't derive from those two directories.
func (idx *Index) Rebuild(ctx context.Context, walDir, recordsDir string, keys *core.KeyRegistry) error {
	ids, err := wal.ListExecutionIDs(walDir)
	if err != nil {
		return err
	}

	tx, err := idx.db.BeginTx(ctx, nil)
	if err != nil {
		return core.NewFrameworkError("cliindex.Rebuild", "configuration", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM events"); err != nil {
		return core.NewFrameworkError("cliindex.Rebuild", "configuration", err)
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM executions"); err != nil {
		return core.NewFrameworkError("cliindex.Rebuild", "configuration", err)
	}

	for _, id := range ids {
		if err := idx.indexOne(ctx, tx, walDir, recordsDir, id, keys); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return core.NewFrameworkError("cliindex.Rebuild", "configuration", err)
	}
	return nil
}

func (idx *Index) indexOne(ctx context.Context, tx *sql.Tx, walDir, recordsDir, executionID string, keys *core.KeyRegistry) error {
	result, err := wal.ReadFile(walDir, executionID, keys)
	if err != nil {
		// A corrupted WAL still gets an executions row, flagged via
		// status, so `executions list` surfaces it instead of
		// silently omitting it.
		if _, execErr := tx.ExecContext(ctx, `
			INSERT INTO executions (execution_id, intent_name, intent_version, strategy, status, started_at, finished_at, decision_path, record_hash, replayable)
			VALUES (?, '', '', '', 'CORRUPTED', '', '', '[]', '', 0)`, executionID); execErr != nil {
			return core.NewFrameworkError("cliindex.indexOne", "configuration", execErr).WithID(executionID)
		}
		return nil
	}

	var intentName, intentVersion, strategy, status, startedAt, finishedAt string
	var decisionPath []string

	for _, e := range result.Entries {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO events (execution_id, seq, entry_type, timestamp_iso, payload)
			VALUES (?, ?, ?, ?, ?)`,
			executionID, e.Seq, string(e.EntryType), e.TimestampISO, payloadJSON(e.Payload)); err != nil {
			return core.NewFrameworkError("cliindex.indexOne", "configuration", err).WithID(executionID)
		}

		switch e.EntryType {
		case wal.EntryExecutionStarted:
			startedAt = e.TimestampISO
			if v, ok := e.Payload["intentName"].(string); ok {
				intentName = v
			}
			if v, ok := e.Payload["intentVersion"].(string); ok {
				intentVersion = v
			}
			if v, ok := e.Payload["strategy"].(string); ok {
				strategy = v
			}
		case wal.EntryExecutionCompleted:
			finishedAt = e.TimestampISO
			status = "completed"
		case wal.EntryExecutionFailed:
			finishedAt = e.TimestampISO
			status = "failed"
		case wal.EntryExecutionAborted:
			finishedAt = e.TimestampISO
			status = "aborted"
		}
	}
	if status == "" {
		status = "in_flight"
	}

	var recordHash string
	replayable := true
	if rec, err := recorder.Retrieve(recordsDir, walDir, executionID, keys); err == nil {
		recordHash = rec.RecordHash
		replayable = rec.Replayable
	}
	decisionPath = extractDecisionPath(result.Entries)

	decisionJSON, err := json.Marshal(decisionPath)
	if err != nil {
		return core.NewFrameworkError("cliindex.indexOne", "configuration", err).WithID(executionID)
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO executions (execution_id, intent_name, intent_version, strategy, status, started_at, finished_at, decision_path, record_hash, replayable)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		executionID, intentName, intentVersion, strategy, status, startedAt, finishedAt, string(decisionJSON), recordHash, boolToInt(replayable)); err != nil {
		return core.NewFrameworkError("cliindex.indexOne", "configuration", err).WithID(executionID)
	}
	return nil
}

func extractDecisionPath(entries []wal.Entry) []string {
	var path []string
	for _, e := range entries {
		if e.EntryType != wal.EntryStepStarted {
			continue
		}
		if agent, ok := e.Payload["agent"].(string); ok {
			path = append(path, agent)
		}
	}
	return path
}

func payloadJSON(payload map[string]core.Value) string {
	if payload == nil {
		return "{}"
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return "{}"
	}
	return string(data)
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// ListFilter narrows ListExecutions. Zero values are unfiltered.
type ListFilter struct {
	IntentName string
	Status     string
	Limit      int
}

// ListExecutions returns executions matching filter, most recently
// started first.
func (idx *Index) ListExecutions(ctx context.Context, filter ListFilter) ([]ExecutionSummary, error) {
	var clauses []string
	var args []any
	if filter.IntentName != "" {
		clauses = append(clauses, "intent_name = ?")
		args = append(args, filter.IntentName)
	}
	if filter.Status != "" {
		clauses = append(clauses, "status = ?")
		args = append(args, filter.Status)
	}

	query := "SELECT execution_id, intent_name, intent_version, strategy, status, started_at, finished_at, decision_path, record_hash, replayable FROM executions"
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += " ORDER BY started_at DESC"
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
	}

	rows, err := idx.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, core.NewFrameworkError("cliindex.ListExecutions", "configuration", err)
	}
	defer rows.Close()

	var out []ExecutionSummary
	for rows.Next() {
		var s ExecutionSummary
		var decisionJSON string
		var replayableInt int
		if err := rows.Scan(&s.ExecutionID, &s.IntentName, &s.IntentVersion, &s.Strategy, &s.Status,
			&s.StartedAt, &s.FinishedAt, &decisionJSON, &s.RecordHash, &replayableInt); err != nil {
			return nil, core.NewFrameworkError("cliindex.ListExecutions", "configuration", err)
		}
		_ = json.Unmarshal([]byte(decisionJSON), &s.DecisionPath)
		s.Replayable = replayableInt != 0
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, core.NewFrameworkError("cliindex.ListExecutions", "configuration", err)
	}
	return out, nil
}

// GetExecution returns the one summary row for executionID, or
// (nil, nil) if it isn't indexed.
func (idx *Index) GetExecution(ctx context.Context, executionID string) (*ExecutionSummary, error) {
	row := idx.db.QueryRowContext(ctx, `
		SELECT execution_id, intent_name, intent_version, strategy, status, started_at, finished_at, decision_path, record_hash, replayable
		FROM executions WHERE execution_id = ?`, executionID)

	var s ExecutionSummary
	var decisionJSON string
	var replayableInt int
	if err := row.Scan(&s.ExecutionID, &s.IntentName, &s.IntentVersion, &s.Strategy, &s.Status,
		&s.StartedAt, &s.FinishedAt, &decisionJSON, &s.RecordHash, &replayableInt); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, core.NewFrameworkError("cliindex.GetExecution", "configuration", err).WithID(executionID)
	}
	_ = json.Unmarshal([]byte(decisionJSON), &s.DecisionPath)
	s.Replayable = replayableInt != 0
	return &s, nil
}

// TraceEntry is one event row returned by Trace, in seq order.
type TraceEntry struct {
	Seq          int64
	EntryType    string
	TimestampISO string
	Payload      map[string]core.Value
}

// Trace returns the full event transcript for executionID, ordered by
// seq, the data backing `executions trace`.
func (idx *Index) Trace(ctx context.Context, executionID string) ([]TraceEntry, error) {
	rows, err := idx.db.QueryContext(ctx, `
		SELECT seq, entry_type, timestamp_iso, payload FROM events
		WHERE execution_id = ? ORDER BY seq ASC`, executionID)
	if err != nil {
		return nil, core.NewFrameworkError("cliindex.Trace", "configuration", err).WithID(executionID)
	}
	defer rows.Close()

	var out []TraceEntry
	for rows.Next() {
		var t TraceEntry
		var payloadJSON string
		if err := rows.Scan(&t.Seq, &t.EntryType, &t.TimestampISO, &payloadJSON); err != nil {
			return nil, core.NewFrameworkError("cliindex.Trace", "configuration", err).WithID(executionID)
		}
		_ = json.Unmarshal([]byte(payloadJSON), &t.Payload)
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, core.NewFrameworkError("cliindex.Trace", "configuration", err).WithID(executionID)
	}
	return out, nil
}

// Diff compares two executions' traces for fingerprint-style drift
// inspection: same tool sequence, same decision path, different
// outcome is exactly the signature of a non-deterministic agent.
type Diff struct {
	ToolSequenceEqual   bool
	DecisionPathEqual   bool
	StatusA, StatusB    string
	ToolSequenceA       []string
	ToolSequenceB       []string
}

// Diff compares executionA against executionB.
func (idx *Index) Diff(ctx context.Context, executionA, executionB string) (*Diff, error) {
	a, err := idx.GetExecution(ctx, executionA)
	if err != nil {
		return nil, err
	}
	b, err := idx.GetExecution(ctx, executionB)
	if err != nil {
		return nil, err
	}
	if a == nil || b == nil {
		return nil, core.NewFrameworkError("cliindex.Diff", "configuration", fmt.Errorf("one or both executions not indexed"))
	}

	traceA, err := idx.Trace(ctx, executionA)
	if err != nil {
		return nil, err
	}
	traceB, err := idx.Trace(ctx, executionB)
	if err != nil {
		return nil, err
	}

	toolsA := toolSequence(traceA)
	toolsB := toolSequence(traceB)

	return &Diff{
		ToolSequenceEqual: stringsEqual(toolsA, toolsB),
		DecisionPathEqual: stringsEqual(a.DecisionPath, b.DecisionPath),
		StatusA:           a.Status,
		StatusB:           b.Status,
		ToolSequenceA:     toolsA,
		ToolSequenceB:     toolsB,
	}, nil
}

func toolSequence(trace []TraceEntry) []string {
	var out []string
	for _, t := range trace {
		if t.EntryType != string(wal.EntryStepStarted) {
			continue
		}
		if agent, ok := t.Payload["agent"].(string); ok {
			out = append(out, agent)
		}
	}
	return out
}

func stringsEqual(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
