package idempotency

import (
	"encoding/json"
	"os"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gomind-labs/execrt/core"
)

// DefaultLockTTL is how long an execution lock is considered live
// without a liveness check succeeding, matching spec's documented
// default.
const DefaultLockTTL = 1 * time.Hour

// Lock is an advisory per-execution lock file guaranteeing at most
// one process drives a given executionId at a time. It is a file, not
// an OS-level flock, so staleness is reclaimed the same way a Redis
// registry entry's TTL lease is reclaimed: check liveness, then take
// over.
type Lock struct {
	dir         string
	executionID string
	path        string
}

type lockInfo struct {
	PID        int    `json:"pid"`
	AcquiredAt string `json:"acquiredAt"`
}

// NewLock addresses the lock file for executionID under dir.
func NewLock(dir, executionID string) *Lock {
	return &Lock{dir: dir, executionID: executionID, path: filepath.Join(dir, executionID+".lock")}
}

// Acquire takes the lock, reclaiming it first if the holder recorded
// in an existing lock file is dead or the lock has outlived ttl.
// Returns core.ErrLockHeld if a live lock is held by another process.
func (l *Lock) Acquire(ttl time.Duration) error {
	if ttl <= 0 {
		ttl = DefaultLockTTL
	}
	if err := core.EnsureDir(l.dir); err != nil {
		return err
	}

	info := lockInfo{PID: os.Getpid(), AcquiredAt: time.Now().UTC().Format(time.RFC3339Nano)}
	data, err := json.Marshal(info)
	if err != nil {
		return core.NewFrameworkError("Lock.Acquire", "configuration", err).WithID(l.executionID)
	}

	if err := core.CreateExclusive(l.path, data, 0o644); err == nil {
		return nil
	}

	existing, err := l.read()
	if err != nil {
		return err
	}
	if l.isLive(existing, ttl) {
		return core.NewFrameworkError("Lock.Acquire", "configuration", core.ErrLockHeld).WithID(l.executionID)
	}

	// Stale: reclaim by overwriting via rename, which is atomic on the
	// same filesystem and leaves no window where the path is missing.
	tmp := l.path + ".tmp-" + info.AcquiredAt
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return core.NewFrameworkError("Lock.Acquire", "configuration", err).WithID(l.executionID)
	}
	if err := os.Rename(tmp, l.path); err != nil {
		os.Remove(tmp)
		return core.NewFrameworkError("Lock.Acquire", "configuration", err).WithID(l.executionID)
	}
	return nil
}

// Release removes the lock file, but only if this process is still
// the recorded holder.
func (l *Lock) Release() error {
	existing, err := l.read()
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	if existing.PID != os.Getpid() {
		return core.NewFrameworkError("Lock.Release", "configuration", core.ErrLockNotOwned).WithID(l.executionID)
	}
	if err := os.Remove(l.path); err != nil && !os.IsNotExist(err) {
		return core.NewFrameworkError("Lock.Release", "configuration", err).WithID(l.executionID)
	}
	return nil
}

func (l *Lock) read() (*lockInfo, error) {
	data, err := os.ReadFile(l.path)
	if err != nil {
		return nil, err
	}
	var info lockInfo
	if err := json.Unmarshal(data, &info); err != nil {
		return nil, core.NewFrameworkError("Lock.read", "configuration", err).WithID(l.executionID)
	}
	return &info, nil
}

func (l *Lock) isLive(info *lockInfo, ttl time.Duration) bool {
	acquiredAt, err := time.Parse(time.RFC3339Nano, info.AcquiredAt)
	if err != nil {
		return false
	}
	if time.Since(acquiredAt) > ttl {
		return false
	}
	return processAlive(info.PID)
}

// processAlive sends signal 0 to pid, which performs permission and
// existence checks without actually signaling the process.
func processAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	err = proc.Signal(syscall.Signal(0))
	return err == nil
}
