// Package testsupport provides helpers shared by forge tests: temp-rooted
// configurations, source-tree fixtures, and stub collaborator binaries.
package testsupport

import (
	"os"
	"path/filepath"
	"testing"

	"forge/internal/config"
)

// NewConfig produces a config seeded with unique temp directories per test.
func NewConfig(t testing.TB) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfg := config.Default()
	cfg.Paths.SourcesRoot = filepath.Join(base, "sources")
	cfg.Paths.OutputRoot = filepath.Join(base, "output")
	cfg.Paths.ListsDir = filepath.Join(base, "lists")
	cfg.Paths.StateDir = filepath.Join(base, "state")
	cfg.Paths.LogDir = filepath.Join(base, "logs")

	for _, dir := range []string{cfg.Paths.SourcesRoot, cfg.Paths.ListsDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			t.Fatalf("mkdir %s: %v", dir, err)
		}
	}
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("ensure directories: %v", err)
	}
	return &cfg
}

// WriteFile writes content to path, creating parent directories.
func WriteFile(t testing.TB, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir for %s: %v", path, err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

// StubTool writes an executable shell script into dir and returns its path.
func StubTool(t testing.TB, dir, name, body string) string {
	t.Helper()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("mkdir %s: %v", dir, err)
	}
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+body), 0o755); err != nil {
		t.Fatalf("write stub %s: %v", name, err)
	}
	return path
}

// SourceModule creates a buildable source directory (with the applicability
// marker) under the config's sources root and returns its absolute path.
func SourceModule(t testing.TB, cfg *config.Config, name string) string {
	t.Helper()
	dir := filepath.Join(cfg.Paths.SourcesRoot, name)
	WriteFile(t, filepath.Join(dir, "makefile.mk"), "# build rules\n")
	return dir
}
