package store

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func shortLockConfig(timeout time.Duration) *FileLockConfig {
	retry := 10 * time.Millisecond
	maxRetry := int(timeout / retry)
	if maxRetry < 1 {
		maxRetry = 1
	}
	return &FileLockConfig{
		LockTimeout:  timeout,
		LockRetry:    retry,
		LockMaxRetry: maxRetry,
	}
}

func TestFileLockAcquireAndRelease(t *testing.T) {
	tmpDir := t.TempDir()

	lock, err := NewFileLock("ws-"+t.Name(), tmpDir, nil)
	if err != nil {
		t.Fatalf("Failed to acquire lock: %v", err)
	}

	if !lock.IsLocked() {
		t.Error("Expected lock to be held")
	}

	lock.Unlock()

	if lock.IsLocked() {
		t.Error("Expected lock to be released after Unlock()")
	}
}

func TestFileLockSecondAcquireFailsAfterRetries(t *testing.T) {
	tmpDir := t.TempDir()
	cfg := shortLockConfig(120 * time.Millisecond)

	lock1, err := NewFileLock("ws-"+t.Name(), tmpDir, cfg)
	if err != nil {
		t.Fatalf("Failed to acquire first lock: %v", err)
	}
	defer lock1.Unlock()

	start := time.Now()
	lock2, err := NewFileLock("ws-"+t.Name(), tmpDir, cfg)
	if err == nil {
		lock2.Unlock()
		t.Fatal("Expected second lock acquisition to fail while first is held")
	}
	if elapsed := time.Since(start); elapsed < 100*time.Millisecond {
		t.Errorf("Expected retries before giving up, got elapsed=%v", elapsed)
	}
}

func TestFileLockDoubleUnlock(t *testing.T) {
	tmpDir := t.TempDir()

	lock, err := NewFileLock("ws-"+t.Name(), tmpDir, nil)
	if err != nil {
		t.Fatalf("Failed to acquire lock: %v", err)
	}

	lock.Unlock()
	lock.Unlock()

	if lock.IsLocked() {
		t.Error("Expected lock to remain released after double unlock")
	}
}

func TestCleanupStaleLocksWarnOnlyKeepsFile(t *testing.T) {
	tmpDir := t.TempDir()
	lockPath := filepath.Join(tmpDir, "workspace.lock")
	if err := os.WriteFile(lockPath, []byte("stale"), 0o644); err != nil {
		t.Fatalf("Failed to create stale lock: %v", err)
	}
	staleTime := time.Now().Add(-2 * time.Hour)
	if err := os.Chtimes(lockPath, staleTime, staleTime); err != nil {
		t.Fatalf("Failed to age lock file: %v", err)
	}

	if err := CleanupStaleLocks(tmpDir, 15*time.Minute, false); err != nil {
		t.Fatalf("CleanupStaleLocks(force=false) failed: %v", err)
	}
	if _, err := os.Stat(lockPath); err != nil {
		t.Fatalf("Expected stale lock to remain when force=false: %v", err)
	}
}

func TestCleanupStaleLocksForceRemovesAndUnblocks(t *testing.T) {
	tmpDir := t.TempDir()
	lockPath := filepath.Join(tmpDir, "workspace.lock")
	if err := os.WriteFile(lockPath, []byte("stale"), 0o644); err != nil {
		t.Fatalf("Failed to create stale lock: %v", err)
	}
	staleTime := time.Now().Add(-2 * time.Hour)
	if err := os.Chtimes(lockPath, staleTime, staleTime); err != nil {
		t.Fatalf("Failed to age lock file: %v", err)
	}

	if err := CleanupStaleLocks(tmpDir, 15*time.Minute, true); err != nil {
		t.Fatalf("CleanupStaleLocks(force=true) failed: %v", err)
	}
	if _, err := os.Stat(lockPath); !os.IsNotExist(err) {
		t.Fatalf("Expected stale lock file to be removed, stat err=%v", err)
	}

	lock, err := NewFileLock("ws-"+t.Name(), tmpDir, shortLockConfig(120*time.Millisecond))
	if err != nil {
		t.Fatalf("Failed to acquire lock after cleanup: %v", err)
	}
	lock.Unlock()
}

func TestCleanupStaleLocksIgnoresFreshLock(t *testing.T) {
	tmpDir := t.TempDir()
	lockPath := filepath.Join(tmpDir, "workspace.lock")
	if err := os.WriteFile(lockPath, []byte("fresh"), 0o644); err != nil {
		t.Fatalf("Failed to create lock: %v", err)
	}

	if err := CleanupStaleLocks(tmpDir, 15*time.Minute, true); err != nil {
		t.Fatalf("CleanupStaleLocks failed: %v", err)
	}
	if _, err := os.Stat(lockPath); err != nil {
		t.Fatalf("Expected fresh lock to remain: %v", err)
	}
}

func TestGetLockPathMatchesAcquiredLock(t *testing.T) {
	root := t.TempDir()

	base, err := EnsureWorkspaceDirs("ws-1", root)
	if err != nil {
		t.Fatalf("Failed to prepare workspace: %v", err)
	}

	lock, err := NewFileLock("ws-1", base, nil)
	if err != nil {
		t.Fatalf("Failed to acquire lock: %v", err)
	}
	defer lock.Unlock()

	lockPath, err := GetLockPath("ws-1", root)
	if err != nil {
		t.Fatalf("GetLockPath failed: %v", err)
	}
	if _, err := os.Stat(lockPath); err != nil {
		t.Fatalf("Expected lock file at %s: %v", lockPath, err)
	}
}
