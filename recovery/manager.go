// Package recovery scans a WAL directory for executions that crashed
// mid-flight and classifies each one as safe to RESUME or requiring an
// operator to BLOCK it, never re-executing an IRREVERSIBLE step whose
// completion was never recorded.
package recovery

import (
	"github.com/gomind-labs/execrt/core"
	"github.com/gomind-labs/execrt/wal"
)

// Decision is the recovery manager's verdict for one incomplete
// execution.
type Decision string

const (
	DecisionResume Decision = "RESUME"
	DecisionBlock  Decision = "BLOCK"
)

// BlockReason names why an execution was blocked, for operator
// display and for CLI exit-code selection.
type BlockReason string

const (
	ReasonIrreversibleInFlight BlockReason = "irreversible_in_flight"
	ReasonWALCorrupted         BlockReason = "wal_corrupted"
	ReasonAmbiguousState       BlockReason = "ambiguous_state"
)

// Finding is one execution's recovery classification.
type Finding struct {
	ExecutionID  string
	Decision     Decision
	BlockReason  BlockReason `json:"blockReason,omitempty"`
	InFlightStep string      `json:"inFlightStep,omitempty"`
	LastEntry    wal.EntryType
}

// Manager scans a WAL directory for incomplete executions.
type Manager struct {
	walDir string
	keys   *core.KeyRegistry
	signer *core.KeyPair
	sign   bool
	logger core.Logger
}

// NewManager creates a recovery Manager over walDir. keys may be nil
// if WAL entries aren't signed.
func NewManager(walDir string, keys *core.KeyRegistry, logger core.Logger) *Manager {
	if logger == nil {
		logger = core.NoOpLogger{}
	}
	return &Manager{walDir: walDir, keys: keys, logger: logger}
}

// SetSigner configures the Manager to sign recovery.* /
// execution.aborted entries it appends via Resume/Abort, matching
// REGULATED-mode WAL signing. Without a signer, entries appended by
// this Manager are unsigned even if the rest of the WAL is signed —
// callers running under REGULATED compliance must call this before
// Resume/Abort.
func (m *Manager) SetSigner(signer *core.KeyPair, required bool) {
	m.signer = signer
	m.sign = required
}

// Resume records that an operator (or an automated policy satisfying
// the same invariant) has confirmed it's safe to let a RESUME-classified
// execution be retried: it appends recovery.started then
// recovery.completed to the existing WAL and returns the in-flight
// step's agent name so the caller knows what a subsequent route call
// should retry. Resume never re-invokes an agent itself — by the time
// this returns, nothing has happened except bookkeeping.
func (m *Manager) Resume(executionID string) (Finding, error) {
	finding, incomplete, err := m.classify(executionID)
	if err != nil {
		return Finding{}, err
	}
	if !incomplete || finding.Decision != DecisionResume {
		return Finding{}, core.NewFrameworkError("recovery.Resume", "configuration", core.ErrNotResumable).WithID(executionID)
	}

	w, err := wal.ResumeWriter(m.walDir, executionID, m.keys, m.signer, m.sign, m.logger)
	if err != nil {
		return Finding{}, err
	}
	defer w.Close()

	if _, err := w.Append(wal.EntryRecoveryStarted, map[string]core.Value{
		"inFlightStep": finding.InFlightStep,
	}); err != nil {
		return Finding{}, err
	}
	if _, err := w.Append(wal.EntryRecoveryCompleted, map[string]core.Value{
		"decision": string(DecisionResume),
	}); err != nil {
		return Finding{}, err
	}
	return finding, nil
}

// Abort records an operator's decision to give up on a BLOCK-classified
// execution without retrying it: it appends execution.aborted, which
// makes the WAL terminal so future Scan calls skip it.
func (m *Manager) Abort(executionID, reason string) (Finding, error) {
	finding, incomplete, err := m.classify(executionID)
	if err != nil {
		return Finding{}, err
	}
	if !incomplete || finding.Decision != DecisionBlock {
		return Finding{}, core.NewFrameworkError("recovery.Abort", "configuration", core.ErrNotBlocked).WithID(executionID)
	}

	w, err := wal.ResumeWriter(m.walDir, executionID, m.keys, m.signer, m.sign, m.logger)
	if err != nil {
		return Finding{}, err
	}
	defer w.Close()

	if _, err := w.Append(wal.EntryExecutionAborted, map[string]core.Value{
		"blockReason":     string(finding.BlockReason),
		"operatorComment": reason,
	}); err != nil {
		return Finding{}, err
	}
	return finding, nil
}

// Scan enumerates every execution under walDir lacking a terminal WAL
// entry and classifies each one. Executions that already ended
// cleanly are skipped entirely — they are not incomplete.
func (m *Manager) Scan() ([]Finding, error) {
	ids, err := wal.ListExecutionIDs(m.walDir)
	if err != nil {
		return nil, err
	}

	var findings []Finding
	for _, id := range ids {
		finding, incomplete, err := m.classify(id)
		if err != nil {
			return nil, err
		}
		if incomplete {
			findings = append(findings, finding)
		}
	}
	return findings, nil
}

// classify replays one execution's WAL and determines whether it is
// incomplete, and if so, whether it may be resumed.
func (m *Manager) classify(executionID string) (Finding, bool, error) {
	result, err := wal.ReadFile(m.walDir, executionID, m.keys)
	if err != nil {
		if core.IsIntegrityError(err) {
			return Finding{
				ExecutionID: executionID,
				Decision:    DecisionBlock,
				BlockReason: ReasonWALCorrupted,
			}, true, nil
		}
		return Finding{}, false, err
	}

	if result.Torn {
		// A torn final line means the writer crashed mid-fsync; the
		// entries before the tear are still trustworthy and the
		// execution is incomplete by definition.
		return m.classifyInFlight(executionID, result), true, nil
	}

	if result.IsTerminal() {
		return Finding{}, false, nil
	}

	return m.classifyInFlight(executionID, result), true, nil
}

// classifyInFlight inspects the last entries of an incomplete
// execution's WAL to decide RESUME vs BLOCK. A step.started with no
// matching step.completed/step.failed is the in-flight step; the
// envelope's side-effect class (recorded in the execution.started
// payload by the router) decides the verdict.
func (m *Manager) classifyInFlight(executionID string, result *wal.ReadResult) Finding {
	last := result.LastEntry()
	if last == nil {
		return Finding{ExecutionID: executionID, Decision: DecisionBlock, BlockReason: ReasonAmbiguousState}
	}

	inFlightAgent, sideEffect, ok := findInFlightStep(result.Entries)
	if !ok {
		// No unmatched step.started: the execution stalled between
		// steps (e.g. after a fallback.triggered with no next
		// step.started yet recorded) rather than mid-step. Treat
		// conservatively as blocked rather than guessing a resume
		// point.
		return Finding{
			ExecutionID: executionID,
			Decision:    DecisionBlock,
			BlockReason: ReasonAmbiguousState,
			LastEntry:   last.EntryType,
		}
	}

	switch sideEffect {
	case core.SideEffectReadOnly, core.SideEffectReversible:
		return Finding{
			ExecutionID:  executionID,
			Decision:     DecisionResume,
			InFlightStep: inFlightAgent,
			LastEntry:    last.EntryType,
		}
	case core.SideEffectIrreversible:
		return Finding{
			ExecutionID:  executionID,
			Decision:     DecisionBlock,
			BlockReason:  ReasonIrreversibleInFlight,
			InFlightStep: inFlightAgent,
			LastEntry:    last.EntryType,
		}
	default:
		return Finding{
			ExecutionID:  executionID,
			Decision:     DecisionBlock,
			BlockReason:  ReasonAmbiguousState,
			InFlightStep: inFlightAgent,
			LastEntry:    last.EntryType,
		}
	}
}

// findInFlightStep walks entries looking for a step.started with no
// later step.completed/step.failed for the same agent. The envelope's
// side-effect class is read back from execution.started's payload,
// since that's where the router recorded it.
func findInFlightStep(entries []wal.Entry) (agentName string, sideEffect core.SideEffectClass, found bool) {
	started := map[string]bool{}
	finished := map[string]bool{}
	var envelopeSideEffect core.SideEffectClass

	for _, e := range entries {
		switch e.EntryType {
		case wal.EntryExecutionStarted:
			if se, ok := e.Payload["sideEffect"].(string); ok {
				envelopeSideEffect = core.SideEffectClass(se)
			}
		case wal.EntryStepStarted:
			if name, ok := e.Payload["agent"].(string); ok {
				started[name] = true
			}
		case wal.EntryStepCompleted, wal.EntryStepFailed:
			if name, ok := e.Payload["agent"].(string); ok {
				finished[name] = true
			}
		}
	}

	for _, e := range entries {
		if e.EntryType != wal.EntryStepStarted {
			continue
		}
		name, _ := e.Payload["agent"].(string)
		if name != "" && started[name] && !finished[name] {
			agentName = name
			found = true
		}
	}
	if found {
		sideEffect = envelopeSideEffect
	}
	return agentName, sideEffect, found
}
