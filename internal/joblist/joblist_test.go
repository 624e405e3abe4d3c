package joblist_test

import (
	"os"
	"path/filepath"
	"testing"

	"forge/internal/joblist"
)

func writeList(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "build.linux.lst")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write list: %v", err)
	}
	return path
}

func TestParseModesAndOrder(t *testing.T) {
	path := writeList(t, `
# core libraries
= libA
- libB base.comp
< libC
> libD api.idl util.comp

libE
`)
	directives, err := joblist.Parse(path)
	if err != nil {
		t.Fatalf("Parse returned error: %v", err)
	}
	if len(directives) != 5 {
		t.Fatalf("expected 5 directives, got %d", len(directives))
	}

	wantModes := []joblist.Mode{joblist.Async, joblist.Sync, joblist.WaitThenAsync, joblist.WaitThenSync, joblist.Async}
	wantDirs := []string{"libA", "libB", "libC", "libD", "libE"}
	for i, d := range directives {
		if d.Index != i {
			t.Fatalf("directive %d carries index %d", i, d.Index)
		}
		if d.Mode != wantModes[i] {
			t.Fatalf("directive %d mode %v, want %v", i, d.Mode, wantModes[i])
		}
		if d.SourceDir != wantDirs[i] {
			t.Fatalf("directive %d dir %q, want %q", i, d.SourceDir, wantDirs[i])
		}
	}

	if got := directives[1].Files; len(got) != 1 || got[0] != "base.comp" {
		t.Fatalf("unexpected files for libB: %v", got)
	}
	if got := directives[3].Files; len(got) != 2 || got[0] != "api.idl" || got[1] != "util.comp" {
		t.Fatalf("unexpected files for libD: %v", got)
	}
}

func TestParseMissingFileIsError(t *testing.T) {
	if _, err := joblist.Parse(filepath.Join(t.TempDir(), "absent.lst")); err == nil {
		t.Fatal("expected error for missing job list")
	}
}

func TestParseRejectsBareMarker(t *testing.T) {
	path := writeList(t, "=\n")
	if _, err := joblist.Parse(path); err == nil {
		t.Fatal("expected error for marker without directory")
	}
}

func TestModePredicates(t *testing.T) {
	if !joblist.WaitThenSync.Barrier() || !joblist.WaitThenAsync.Barrier() {
		t.Fatal("wait modes must be barriers")
	}
	if joblist.Async.Barrier() || joblist.Sync.Barrier() {
		t.Fatal("plain modes must not be barriers")
	}
	if !joblist.Sync.Synchronous() || !joblist.WaitThenSync.Synchronous() {
		t.Fatal("sync modes must report synchronous")
	}
	if joblist.Async.Synchronous() || joblist.WaitThenAsync.Synchronous() {
		t.Fatal("async modes must not report synchronous")
	}
}
