package deps

import (
	"os"
	"path/filepath"
	"testing"

	"forge/internal/config"
)

func TestCheckBinaries(t *testing.T) {
	binDir := t.TempDir()
	present := filepath.Join(binDir, "present")
	script := []byte("#!/bin/sh\nexit 0\n")
	if err := os.WriteFile(present, script, 0o755); err != nil {
		t.Fatalf("write stub: %v", err)
	}
	reqs := []Requirement{
		{Name: "Present", Command: present},
		{Name: "Missing", Command: "clearly-not-present-binary"},
	}

	results := CheckBinaries(reqs)
	if len(results) != len(reqs) {
		t.Fatalf("expected %d results, got %d", len(reqs), len(results))
	}

	if !results[0].Available {
		t.Fatalf("expected first requirement to be available, got %#v", results[0])
	}
	if results[0].Detail != "" {
		t.Fatalf("unexpected detail for available dependency: %s", results[0].Detail)
	}

	if results[1].Available {
		t.Fatalf("expected missing binary to be unavailable")
	}
	if results[1].Detail == "" {
		t.Fatalf("expected detail message for missing binary")
	}
	if results[1].Command != "clearly-not-present-binary" {
		t.Fatalf("unexpected command recorded: %s", results[1].Command)
	}
}

func TestDefaultRequirementsFollowConfig(t *testing.T) {
	cfg := config.Default()

	base := DefaultRequirements(&cfg)
	for _, req := range base {
		if req.Name == "Overlay mount" {
			t.Fatal("overlay tools required under the shadow mechanism")
		}
	}

	cfg.Checkpoint.Mechanism = "overlay"
	cfg.Build.CacheEnabled = true
	full := DefaultRequirements(&cfg)
	if len(full) != len(base)+3 {
		t.Fatalf("expected overlay and cache requirements, got %d vs %d", len(full), len(base))
	}
	last := full[len(full)-1]
	if last.Name != "Compiler cache" || !last.Optional {
		t.Fatalf("cache requirement must be optional, got %#v", last)
	}
}

func TestMissingRequired(t *testing.T) {
	statuses := []Status{
		{Name: "A", Available: true},
		{Name: "B", Available: false, Optional: true},
		{Name: "C", Available: false},
	}
	missing := MissingRequired(statuses)
	if len(missing) != 1 || missing[0] != "C" {
		t.Fatalf("unexpected missing set: %v", missing)
	}
}
