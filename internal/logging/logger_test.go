package logging_test

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"forge/internal/logging"
)

func TestNewWritesToConfiguredFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "forge.log")

	logger, err := logging.New(logging.Options{
		Level:       "info",
		Format:      "json",
		OutputPaths: []string{path},
	})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	logger.Info("dispatch started", logging.String(logging.FieldPlatform, "linux-x86_64"))

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	if !strings.Contains(string(data), `"platform":"linux-x86_64"`) {
		t.Fatalf("expected platform attribute in output, got %q", string(data))
	}
	if !strings.Contains(string(data), `"level":"info"`) {
		t.Fatalf("expected lowercase level key, got %q", string(data))
	}
}

func TestNewRejectsUnknownFormat(t *testing.T) {
	if _, err := logging.New(logging.Options{Format: "xml"}); err == nil {
		t.Fatal("expected error for unknown format")
	}
}

func TestWithContextAddsFields(t *testing.T) {
	ctx := logging.WithRunID(context.Background(), "run-1")
	ctx = logging.WithStage(ctx, "build")
	ctx = logging.WithJob(ctx, 3, "libs/core")

	fields := logging.ContextFields(ctx)
	keys := map[string]bool{}
	for _, attr := range fields {
		keys[attr.Key] = true
	}
	for _, want := range []string{logging.FieldRunID, logging.FieldStage, logging.FieldJobIndex, logging.FieldSourceDir} {
		if !keys[want] {
			t.Fatalf("missing context field %q in %v", want, keys)
		}
	}
}

func TestNewNopDiscards(t *testing.T) {
	logger := logging.NewNop()
	logger.Error("ignored", logging.Error(nil))
}
