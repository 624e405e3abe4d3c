package runlock_test

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"forge/internal/resources"
	"forge/internal/runlock"
)

func lockPath(t *testing.T) string {
	t.Helper()
	return filepath.Join(t.TempDir(), "forge.lock")
}

func TestAcquireWritesOwnerPid(t *testing.T) {
	path := lockPath(t)
	stack := resources.New(nil)
	lock := runlock.New(path, nil)

	if err := lock.Acquire(stack, nil); err != nil {
		t.Fatalf("Acquire returned error: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read lock file: %v", err)
	}
	want := fmt.Sprintf("%d\n", os.Getpid())
	if string(data) != want {
		t.Fatalf("lock content %q, want %q", string(data), want)
	}

	stack.Release()
	if _, err := os.Stat(path); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("expected lock removed by stack unwind, stat err: %v", err)
	}
}

func TestAcquireFailsWhileOwnerAlive(t *testing.T) {
	path := lockPath(t)
	first := runlock.New(path, nil)
	if err := first.Acquire(resources.New(nil), nil); err != nil {
		t.Fatalf("first Acquire: %v", err)
	}

	second := runlock.New(path, nil)
	err := second.Acquire(resources.New(nil), func(int) (bool, error) {
		t.Fatal("confirm must not be consulted for a live owner")
		return false, nil
	})
	if !errors.Is(err, runlock.ErrBusy) {
		t.Fatalf("expected ErrBusy, got %v", err)
	}
}

func TestAcquireReclaimsDeadOwnerAfterConfirmation(t *testing.T) {
	path := lockPath(t)
	// Pid beyond the default pid_max cannot belong to a live process.
	if err := os.WriteFile(path, []byte("99999999\n"), 0o644); err != nil {
		t.Fatalf("seed stale lock: %v", err)
	}

	asked := 0
	lock := runlock.New(path, nil)
	err := lock.Acquire(resources.New(nil), func(owner int) (bool, error) {
		asked++
		if owner != 99999999 {
			t.Fatalf("unexpected owner pid %d", owner)
		}
		return true, nil
	})
	if err != nil {
		t.Fatalf("Acquire after reclaim: %v", err)
	}
	if asked != 1 {
		t.Fatalf("confirm consulted %d times, want 1", asked)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read lock file: %v", err)
	}
	if string(data) != fmt.Sprintf("%d\n", os.Getpid()) {
		t.Fatalf("lock not rewritten with current pid: %q", string(data))
	}
}

func TestAcquireDeclinedReclaimFails(t *testing.T) {
	path := lockPath(t)
	if err := os.WriteFile(path, []byte("99999999\n"), 0o644); err != nil {
		t.Fatalf("seed stale lock: %v", err)
	}

	lock := runlock.New(path, nil)
	err := lock.Acquire(resources.New(nil), func(int) (bool, error) {
		return false, nil
	})
	if !errors.Is(err, runlock.ErrBusy) {
		t.Fatalf("expected ErrBusy after declined reclaim, got %v", err)
	}
	data, _ := os.ReadFile(path)
	if string(data) != "99999999\n" {
		t.Fatalf("declined reclaim must leave the lock untouched, got %q", string(data))
	}
}

func TestReleaseRefusesForeignLock(t *testing.T) {
	path := lockPath(t)
	if err := os.WriteFile(path, []byte("1\n"), 0o644); err != nil {
		t.Fatalf("seed foreign lock: %v", err)
	}
	lock := runlock.New(path, nil)
	if err := lock.Release(); err == nil {
		t.Fatal("expected error releasing a lock owned by another pid")
	}
}
