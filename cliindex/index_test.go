package cliindex

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gomind-labs/execrt/core"
	"github.com/gomind-labs/execrt/wal"
)

func writeExecution(t *testing.T, walDir, executionID, intentName, strategy string, terminal wal.EntryType) {
	t.Helper()
	w, err := wal.NewWriter(walDir, executionID, nil, false, nil)
	require.NoError(t, err)
	_, err = w.Append(wal.EntryExecutionStarted, map[string]core.Value{
		"intentName":    intentName,
		"intentVersion": "v1",
		"strategy":      strategy,
	})
	require.NoError(t, err)
	_, err = w.Append(wal.EntryStepStarted, map[string]core.Value{"agent": "agent-a"})
	require.NoError(t, err)
	_, err = w.Append(wal.EntryStepCompleted, map[string]core.Value{"agent": "agent-a"})
	require.NoError(t, err)
	_, err = w.Append(terminal, nil)
	require.NoError(t, err)
	require.NoError(t, w.Close())
}

func openTestIndex(t *testing.T) *Index {
	t.Helper()
	path := filepath.Join(t.TempDir(), "index.sqlite")
	idx, err := Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { idx.Close() })
	return idx
}

func TestRebuildIndexesExecutionsAndEvents(t *testing.T) {
	walDir := t.TempDir()
	recordsDir := t.TempDir()
	writeExecution(t, walDir, "exec-1", "order.place", "DIRECT", wal.EntryExecutionCompleted)

	idx := openTestIndex(t)
	require.NoError(t, idx.Rebuild(context.Background(), walDir, recordsDir, nil))

	summary, err := idx.GetExecution(context.Background(), "exec-1")
	require.NoError(t, err)
	require.NotNil(t, summary)
	assert.Equal(t, "order.place", summary.IntentName)
	assert.Equal(t, "completed", summary.Status)
	assert.Equal(t, []string{"agent-a"}, summary.DecisionPath)

	trace, err := idx.Trace(context.Background(), "exec-1")
	require.NoError(t, err)
	assert.Len(t, trace, 4)
}

func TestRebuildFlagsCorruptedWALAsStatus(t *testing.T) {
	walDir := t.TempDir()
	recordsDir := t.TempDir()
	require.NoError(t, core.EnsureDir(walDir))
	require.NoError(t, writeRawFile(filepath.Join(walDir, "exec-bad.jsonl"), `{"seq":0,"entryType":"execution.started","entryHash":"wrong"}`+"\n"))

	idx := openTestIndex(t)
	require.NoError(t, idx.Rebuild(context.Background(), walDir, recordsDir, nil))

	summary, err := idx.GetExecution(context.Background(), "exec-bad")
	require.NoError(t, err)
	require.NotNil(t, summary)
	assert.Equal(t, "CORRUPTED", summary.Status)
}

func TestListExecutionsFiltersByIntentName(t *testing.T) {
	walDir := t.TempDir()
	recordsDir := t.TempDir()
	writeExecution(t, walDir, "exec-a", "order.place", "DIRECT", wal.EntryExecutionCompleted)
	writeExecution(t, walDir, "exec-b", "refund.issue", "DIRECT", wal.EntryExecutionCompleted)

	idx := openTestIndex(t)
	require.NoError(t, idx.Rebuild(context.Background(), walDir, recordsDir, nil))

	results, err := idx.ListExecutions(context.Background(), ListFilter{IntentName: "order.place"})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "exec-a", results[0].ExecutionID)
}

func TestGetExecutionReturnsNilWhenNotIndexed(t *testing.T) {
	idx := openTestIndex(t)
	require.NoError(t, idx.Rebuild(context.Background(), t.TempDir(), t.TempDir(), nil))

	summary, err := idx.GetExecution(context.Background(), "does-not-exist")
	require.NoError(t, err)
	assert.Nil(t, summary)
}

func TestDiffDetectsMatchingToolSequenceWithDifferentOutcome(t *testing.T) {
	walDir := t.TempDir()
	recordsDir := t.TempDir()
	writeExecution(t, walDir, "exec-a", "order.place", "DIRECT", wal.EntryExecutionCompleted)
	writeExecution(t, walDir, "exec-b", "order.place", "DIRECT", wal.EntryExecutionFailed)

	idx := openTestIndex(t)
	require.NoError(t, idx.Rebuild(context.Background(), walDir, recordsDir, nil))

	diff, err := idx.Diff(context.Background(), "exec-a", "exec-b")
	require.NoError(t, err)
	assert.True(t, diff.ToolSequenceEqual)
	assert.Equal(t, "completed", diff.StatusA)
	assert.Equal(t, "failed", diff.StatusB)
}

func TestDiffErrorsWhenExecutionNotIndexed(t *testing.T) {
	idx := openTestIndex(t)
	require.NoError(t, idx.Rebuild(context.Background(), t.TempDir(), t.TempDir(), nil))

	_, err := idx.Diff(context.Background(), "missing-a", "missing-b")
	require.Error(t, err)
}

func writeRawFile(path, content string) error {
	return core.WriteFileAtomic(path, []byte(content), 0o600)
}
