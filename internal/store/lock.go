package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

const (
	runLockDirName   = ".run.lock"
	runLockOwnerFile = "owner.json"
)

// RunLock keeps a second process from driving a harvest over the same store.
type RunLock struct {
	lockDir string
}

type runLockOwner struct {
	PID       int    `json:"pid"`
	CreatedAt string `json:"created_at"`
	Hostname  string `json:"hostname,omitempty"`
}

// LockedError reports a store already held by another process.
type LockedError struct {
	Dir       string
	PID       int
	CreatedAt string
	Hostname  string
}

func (e *LockedError) Error() string {
	if e.PID > 0 {
		return fmt.Sprintf("store is locked: %s (pid=%d created_at=%s host=%s)", e.Dir, e.PID, e.CreatedAt, e.Hostname)
	}
	return fmt.Sprintf("store is locked: %s", e.Dir)
}

// ownerlessGrace is how long a lock directory without an owner file is
// assumed to belong to a process still writing it.
const ownerlessGrace = time.Minute

// AcquireRunLock creates the lock directory under dir. It fails with
// *LockedError while another holder exists. A lock left by a process on this
// host that no longer runs is reclaimed.
func AcquireRunLock(dir string) (RunLock, error) {
	target := strings.TrimSpace(dir)
	if target == "" {
		return RunLock{}, fmt.Errorf("lock directory is required")
	}
	if err := os.MkdirAll(target, 0o755); err != nil {
		return RunLock{}, fmt.Errorf("create lock parent %s: %w", target, err)
	}

	lockDir := filepath.Join(target, runLockDirName)
	err := os.Mkdir(lockDir, 0o755)
	if err != nil && os.IsExist(err) {
		locked, stale := inspectRunLock(target, lockDir)
		if !stale {
			return RunLock{}, locked
		}
		if rmErr := os.RemoveAll(lockDir); rmErr != nil {
			return RunLock{}, fmt.Errorf("remove stale run lock %s: %w", lockDir, rmErr)
		}
		err = os.Mkdir(lockDir, 0o755)
		if err != nil && os.IsExist(err) {
			// Another process reclaimed it first.
			locked, _ := inspectRunLock(target, lockDir)
			return RunLock{}, locked
		}
	}
	if err != nil {
		return RunLock{}, fmt.Errorf("acquire run lock for %s: %w", target, err)
	}

	owner := runLockOwner{
		PID:       os.Getpid(),
		CreatedAt: time.Now().UTC().Format(time.RFC3339),
		Hostname:  hostnameOrUnknown(),
	}
	data, err := json.MarshalIndent(owner, "", "  ")
	if err == nil {
		err = writeBytes(filepath.Join(lockDir, runLockOwnerFile), append(data, '\n'))
	}
	if err != nil {
		_ = os.RemoveAll(lockDir)
		return RunLock{}, fmt.Errorf("write run lock owner for %s: %w", target, err)
	}

	return RunLock{lockDir: lockDir}, nil
}

// inspectRunLock describes an existing lock and reports whether its owner is
// gone: same host and a pid that no longer runs, or no owner file long after
// the directory was created.
func inspectRunLock(target, lockDir string) (*LockedError, bool) {
	locked := &LockedError{Dir: target}
	data, err := os.ReadFile(filepath.Join(lockDir, runLockOwnerFile))
	if err != nil {
		info, statErr := os.Stat(lockDir)
		return locked, os.IsNotExist(err) && statErr == nil && time.Since(info.ModTime()) > ownerlessGrace
	}
	var owner runLockOwner
	if json.Unmarshal(data, &owner) != nil || owner.PID <= 0 {
		return locked, false
	}
	locked.PID = owner.PID
	locked.CreatedAt = owner.CreatedAt
	locked.Hostname = owner.Hostname
	return locked, owner.Hostname == hostnameOrUnknown() && !processAlive(owner.PID)
}

// ForceUnlock removes the run lock under dir whoever holds it.
func ForceUnlock(dir string) error {
	target := strings.TrimSpace(dir)
	if target == "" {
		return nil
	}
	if err := os.RemoveAll(filepath.Join(target, runLockDirName)); err != nil {
		return fmt.Errorf("remove run lock in %s: %w", target, err)
	}
	return nil
}

// Release removes the lock. Releasing a zero RunLock is a no-op.
func (l RunLock) Release() error {
	if strings.TrimSpace(l.lockDir) == "" {
		return nil
	}
	_ = os.Remove(filepath.Join(l.lockDir, runLockOwnerFile))
	if err := os.Remove(l.lockDir); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("release run lock %s: %w", l.lockDir, err)
	}
	return nil
}

func hostnameOrUnknown() string {
	host, err := os.Hostname()
	if err != nil {
		return "unknown"
	}
	host = strings.TrimSpace(host)
	if host == "" {
		return "unknown"
	}
	return host
}
