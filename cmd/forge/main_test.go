package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"forge/internal/config"
	"forge/internal/run"
)

// writeTestConfig materializes a config file rooted in temp directories and
// returns its path together with the parsed form.
func writeTestConfig(t *testing.T) (string, *config.Config) {
	t.Helper()
	base := t.TempDir()

	content := fmt.Sprintf(`[paths]
sources_root = %q
output_root = %q
lists_dir = %q
state_dir = %q
log_dir = %q
`,
		filepath.Join(base, "sources"),
		filepath.Join(base, "output"),
		filepath.Join(base, "lists"),
		filepath.Join(base, "state"),
		filepath.Join(base, "logs"),
	)

	path := filepath.Join(base, "forge.toml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if err := os.MkdirAll(filepath.Join(base, "sources"), 0o755); err != nil {
		t.Fatalf("mkdir sources: %v", err)
	}

	cfg, _, _, err := config.Load(path)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	return path, cfg
}

func runCommand(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestExitCodeMapping(t *testing.T) {
	if code := exitCode(run.Wrap(run.ErrAborted, "dispatch", "build", "job failed", nil)); code != 130 {
		t.Fatalf("aborted run must exit 130, got %d", code)
	}
	if code := exitCode(context.Canceled); code != 130 {
		t.Fatalf("canceled context must exit 130, got %d", code)
	}
	if code := exitCode(run.Wrap(run.ErrConfig, "config", "load", "", errors.New("bad toml"))); code != 1 {
		t.Fatalf("config error must exit 1, got %d", code)
	}
	if code := exitCode(errors.New("anything else")); code != 1 {
		t.Fatalf("generic error must exit 1, got %d", code)
	}
}

func TestConfigInitRefusesOverwrite(t *testing.T) {
	target := filepath.Join(t.TempDir(), "config.toml")

	out, err := runCommand(t, "config", "init", "--path", target)
	if err != nil {
		t.Fatalf("config init: %v", err)
	}
	if _, err := os.Stat(target); err != nil {
		t.Fatalf("sample config not written: %v", err)
	}
	if out == "" {
		t.Fatal("expected confirmation output")
	}

	if _, err := runCommand(t, "config", "init", "--path", target); err == nil {
		t.Fatal("second init must refuse to overwrite")
	}
}

func TestConfigShowPrintsResolvedValues(t *testing.T) {
	path, cfg := writeTestConfig(t)

	out, err := runCommand(t, "config", "show", "-c", path)
	if err != nil {
		t.Fatalf("config show: %v", err)
	}
	if !bytes.Contains([]byte(out), []byte(cfg.Paths.SourcesRoot)) {
		t.Fatalf("output missing resolved sources root:\n%s", out)
	}
}

func TestHistoryWithEmptyJournal(t *testing.T) {
	path, _ := writeTestConfig(t)

	out, err := runCommand(t, "history", "-c", path)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if !bytes.Contains([]byte(out), []byte("No runs recorded")) {
		t.Fatalf("unexpected output:\n%s", out)
	}
}

func TestDepsReportsMissingTool(t *testing.T) {
	path, _ := writeTestConfig(t)

	// Defaults name real-world binaries that are absent in the test
	// environment, so the command must fail and say which ones.
	out, err := runCommand(t, "deps", "-c", path)
	if err == nil {
		t.Skip("all default tools installed on this host")
	}
	if !bytes.Contains([]byte(out), []byte("Dependency")) {
		t.Fatalf("status table not rendered:\n%s", out)
	}
}

func TestBuildRequiresPlatformArgument(t *testing.T) {
	path, _ := writeTestConfig(t)

	if _, err := runCommand(t, "build", "-c", path); err == nil {
		t.Fatal("build without a platform must fail")
	}
}
