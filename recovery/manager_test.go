package recovery

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gomind-labs/execrt/core"
	"github.com/gomind-labs/execrt/wal"
)

func startExecution(t *testing.T, dir, executionID string, sideEffect core.SideEffectClass) *wal.Writer {
	t.Helper()
	w, err := wal.NewWriter(dir, executionID, nil, false, nil)
	require.NoError(t, err)
	_, err = w.Append(wal.EntryExecutionStarted, map[string]core.Value{
		"sideEffect": string(sideEffect),
	})
	require.NoError(t, err)
	return w
}

func TestScanSkipsCleanlyCompletedExecutions(t *testing.T) {
	dir := t.TempDir()
	w := startExecution(t, dir, "exec-done", core.SideEffectReversible)
	_, err := w.Append(wal.EntryExecutionCompleted, nil)
	require.NoError(t, err)
	require.NoError(t, w.Close())

	m := NewManager(dir, nil, nil)
	findings, err := m.Scan()
	require.NoError(t, err)
	assert.Empty(t, findings)
}

func TestScanClassifiesReversibleInFlightAsResume(t *testing.T) {
	dir := t.TempDir()
	w := startExecution(t, dir, "exec-resume", core.SideEffectReversible)
	_, err := w.Append(wal.EntryStepStarted, map[string]core.Value{"agent": "agent-a"})
	require.NoError(t, err)
	require.NoError(t, w.Close())

	m := NewManager(dir, nil, nil)
	findings, err := m.Scan()
	require.NoError(t, err)
	require.Len(t, findings, 1)
	assert.Equal(t, DecisionResume, findings[0].Decision)
	assert.Equal(t, "agent-a", findings[0].InFlightStep)
}

func TestScanClassifiesIrreversibleInFlightAsBlock(t *testing.T) {
	dir := t.TempDir()
	w := startExecution(t, dir, "exec-block", core.SideEffectIrreversible)
	_, err := w.Append(wal.EntryStepStarted, map[string]core.Value{"agent": "agent-a"})
	require.NoError(t, err)
	require.NoError(t, w.Close())

	m := NewManager(dir, nil, nil)
	findings, err := m.Scan()
	require.NoError(t, err)
	require.Len(t, findings, 1)
	assert.Equal(t, DecisionBlock, findings[0].Decision)
	assert.Equal(t, ReasonIrreversibleInFlight, findings[0].BlockReason)
}

func TestScanClassifiesStalledBetweenStepsAsAmbiguous(t *testing.T) {
	dir := t.TempDir()
	w := startExecution(t, dir, "exec-ambiguous", core.SideEffectReversible)
	_, err := w.Append(wal.EntryFallbackTriggered, map[string]core.Value{"from": "agent-a", "to": "agent-b"})
	require.NoError(t, err)
	require.NoError(t, w.Close())

	m := NewManager(dir, nil, nil)
	findings, err := m.Scan()
	require.NoError(t, err)
	require.Len(t, findings, 1)
	assert.Equal(t, DecisionBlock, findings[0].Decision)
	assert.Equal(t, ReasonAmbiguousState, findings[0].BlockReason)
}

func TestResumeAppendsRecoveryBookkeepingForResumableExecution(t *testing.T) {
	dir := t.TempDir()
	w := startExecution(t, dir, "exec-resume-2", core.SideEffectReversible)
	_, err := w.Append(wal.EntryStepStarted, map[string]core.Value{"agent": "agent-a"})
	require.NoError(t, err)
	require.NoError(t, w.Close())

	m := NewManager(dir, nil, nil)
	finding, err := m.Resume("exec-resume-2")
	require.NoError(t, err)
	assert.Equal(t, DecisionResume, finding.Decision)

	result, err := wal.ReadFile(dir, "exec-resume-2", nil)
	require.NoError(t, err)
	last := result.LastEntry()
	require.NotNil(t, last)
	assert.Equal(t, wal.EntryRecoveryCompleted, last.EntryType)
}

func TestResumeRejectsExecutionClassifiedBlock(t *testing.T) {
	dir := t.TempDir()
	w := startExecution(t, dir, "exec-resume-3", core.SideEffectIrreversible)
	_, err := w.Append(wal.EntryStepStarted, map[string]core.Value{"agent": "agent-a"})
	require.NoError(t, err)
	require.NoError(t, w.Close())

	m := NewManager(dir, nil, nil)
	_, err = m.Resume("exec-resume-3")
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrNotResumable)
}

func TestAbortAppendsExecutionAbortedForBlockedExecution(t *testing.T) {
	dir := t.TempDir()
	w := startExecution(t, dir, "exec-abort-1", core.SideEffectIrreversible)
	_, err := w.Append(wal.EntryStepStarted, map[string]core.Value{"agent": "agent-a"})
	require.NoError(t, err)
	require.NoError(t, w.Close())

	m := NewManager(dir, nil, nil)
	finding, err := m.Abort("exec-abort-1", "operator confirmed manual cleanup")
	require.NoError(t, err)
	assert.Equal(t, DecisionBlock, finding.Decision)

	result, err := wal.ReadFile(dir, "exec-abort-1", nil)
	require.NoError(t, err)
	assert.True(t, result.IsTerminal())
	assert.Equal(t, wal.EntryExecutionAborted, result.LastEntry().EntryType)
}

func TestAbortRejectsExecutionClassifiedResume(t *testing.T) {
	dir := t.TempDir()
	w := startExecution(t, dir, "exec-abort-2", core.SideEffectReversible)
	_, err := w.Append(wal.EntryStepStarted, map[string]core.Value{"agent": "agent-a"})
	require.NoError(t, err)
	require.NoError(t, w.Close())

	m := NewManager(dir, nil, nil)
	_, err = m.Abort("exec-abort-2", "should not be allowed")
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrNotBlocked)
}

func TestResumeSignsEntriesWhenSignerConfigured(t *testing.T) {
	dir := t.TempDir()
	w := startExecution(t, dir, "exec-signed", core.SideEffectReversible)
	_, err := w.Append(wal.EntryStepStarted, map[string]core.Value{"agent": "agent-a"})
	require.NoError(t, err)
	require.NoError(t, w.Close())

	kp, err := core.GenerateKeyPair("key-1")
	require.NoError(t, err)
	keys := core.NewKeyRegistry()
	keys.Register(kp.KeyID, kp.PublicKey)

	m := NewManager(dir, keys, nil)
	m.SetSigner(kp, true)

	_, err = m.Resume("exec-signed")
	require.NoError(t, err)

	result, err := wal.ReadFile(dir, "exec-signed", keys)
	require.NoError(t, err)
	last := result.LastEntry()
	require.NotNil(t, last)
	assert.NotEmpty(t, last.Signature)
}
