package run_test

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"forge/internal/config"
	"forge/internal/journal"
	"forge/internal/run"
	"forge/internal/testsupport"
)

// fixture wires a config with stub collaborator tools that append their
// invocations to a shared call log.
type fixture struct {
	cfg      *config.Config
	callsLog string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	binDir := filepath.Join(t.TempDir(), "bin")
	callsLog := filepath.Join(binDir, "calls.log")

	record := func(name string) string {
		return fmt.Sprintf("echo %s $@ >> %q\n", name, callsLog)
	}
	cfg.Tools.Driver = testsupport.StubTool(t, binDir, "driver", record("driver"))
	cfg.Tools.IDLGen = testsupport.StubTool(t, binDir, "idlgen", record("idlgen"))
	cfg.Tools.Compiler = testsupport.StubTool(t, binDir, "cmpc", record("cmpc"))
	cfg.Tools.Sync = testsupport.StubTool(t, binDir, "sync", record("sync"))

	return &fixture{cfg: cfg, callsLog: callsLog}
}

func (f *fixture) writeList(t *testing.T, platform, stage, content string) {
	t.Helper()
	testsupport.WriteFile(t, f.cfg.DescriptorPath(stage, platform), content)
}

func (f *fixture) calls(t *testing.T) string {
	t.Helper()
	data, err := os.ReadFile(f.callsLog)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return ""
		}
		t.Fatalf("read call log: %v", err)
	}
	return string(data)
}

func (f *fixture) recentRuns(t *testing.T) []journal.Run {
	t.Helper()
	store, err := journal.Open(f.cfg)
	if err != nil {
		t.Fatalf("reopen journal: %v", err)
	}
	defer store.Close()
	runs, err := store.RecentRuns(context.Background(), 10)
	if err != nil {
		t.Fatalf("RecentRuns: %v", err)
	}
	return runs
}

func TestExecuteHappyPath(t *testing.T) {
	f := newFixture(t)
	testsupport.SourceModule(t, f.cfg, "libA")
	testsupport.SourceModule(t, f.cfg, "libB")
	f.writeList(t, "test", "build", "= libA\n- libB\n")

	result, err := run.Execute(context.Background(), run.Options{
		Config:   f.cfg,
		Platform: "test",
	})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if result.Outcome != journal.OutcomeSucceeded {
		t.Fatalf("unexpected outcome %q", result.Outcome)
	}
	if result.RunID == "" {
		t.Fatal("missing run id")
	}

	calls := f.calls(t)
	if strings.Count(calls, "driver") != 2 {
		t.Fatalf("expected 2 driver invocations, got log:\n%s", calls)
	}
	if !strings.Contains(calls, "sync") {
		t.Fatalf("mirror never seeded, log:\n%s", calls)
	}

	// The run lock must be gone once the stack unwound.
	if _, err := os.Stat(f.cfg.LockPath()); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("lock file still present: %v", err)
	}

	runs := f.recentRuns(t)
	if len(runs) != 1 || runs[0].ID != result.RunID {
		t.Fatalf("unexpected journal runs: %+v", runs)
	}
	if runs[0].Outcome != journal.OutcomeSucceeded || runs[0].FinishedAt == nil {
		t.Fatalf("run not finalized in journal: %+v", runs[0])
	}
}

func TestExecuteJobFailureAborts(t *testing.T) {
	f := newFixture(t)
	testsupport.SourceModule(t, f.cfg, "libGood")
	testsupport.SourceModule(t, f.cfg, "libBad")
	// The driver fails only inside libBad's source directory.
	binDir := filepath.Dir(f.cfg.Tools.Driver)
	f.cfg.Tools.Driver = testsupport.StubTool(t, binDir, "flaky-driver",
		"case \"$PWD\" in *libBad) exit 3 ;; esac\nexit 0\n")
	f.writeList(t, "test", "build", "libGood\n- libBad\n> libAfter\n")

	result, err := run.Execute(context.Background(), run.Options{
		Config:   f.cfg,
		Platform: "test",
	})
	if err == nil {
		t.Fatal("expected aborted run")
	}
	if !errors.Is(err, run.ErrAborted) {
		t.Fatalf("expected ErrAborted, got %v", err)
	}
	// A nonzero collaborator exit is classified as an external tool failure.
	if !errors.Is(err, run.ErrExternalTool) {
		t.Fatalf("expected ErrExternalTool in the chain, got %v", err)
	}
	if result.Outcome != journal.OutcomeAborted {
		t.Fatalf("unexpected outcome %q", result.Outcome)
	}
	if !strings.Contains(result.Reason, "libBad") {
		t.Fatalf("reason missing failing job: %q", result.Reason)
	}

	runs := f.recentRuns(t)
	if len(runs) != 1 || runs[0].Outcome != journal.OutcomeAborted {
		t.Fatalf("journal outcome not aborted: %+v", runs)
	}
	// The lock is released even on the failure path.
	if _, err := os.Stat(f.cfg.LockPath()); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("lock file still present: %v", err)
	}
}

func TestMissingSourceDirectoryStopsDispatch(t *testing.T) {
	f := newFixture(t)
	testsupport.SourceModule(t, f.cfg, "libReal")
	// The invalid directive is asynchronous and first: nothing after it may
	// be dispatched even though the loop never reaches a join point.
	f.writeList(t, "test", "build", "= ghost\n= libReal\n")

	result, err := run.Execute(context.Background(), run.Options{
		Config:   f.cfg,
		Platform: "test",
	})
	if !errors.Is(err, run.ErrAborted) {
		t.Fatalf("expected ErrAborted, got %v", err)
	}
	if !errors.Is(err, run.ErrJobFailure) {
		t.Fatalf("expected ErrJobFailure in the chain, got %v", err)
	}
	if errors.Is(err, run.ErrExternalTool) {
		t.Fatalf("no collaborator ran, yet chain claims a tool failure: %v", err)
	}
	if !strings.Contains(result.Reason, "ghost") {
		t.Fatalf("reason missing invalid directive: %q", result.Reason)
	}
	if f.calls(t) != "" {
		t.Fatalf("a job ran despite the invalid directive:\n%s", f.calls(t))
	}
}

func TestMissingDescriptorIsConfigError(t *testing.T) {
	f := newFixture(t)

	_, err := run.Execute(context.Background(), run.Options{
		Config:   f.cfg,
		Platform: "test",
	})
	if !errors.Is(err, run.ErrConfig) {
		t.Fatalf("expected ErrConfig, got %v", err)
	}
	// Planning failed before the lock was touched.
	if _, statErr := os.Stat(f.cfg.LockPath()); !errors.Is(statErr, os.ErrNotExist) {
		t.Fatal("lock acquired despite planning failure")
	}
}

func TestUnknownPlatformIsConfigError(t *testing.T) {
	f := newFixture(t)
	testsupport.WriteFile(t, f.cfg.CatalogPath(), "platforms:\n  known:\n    env: {}\n")
	f.writeList(t, "other", "build", "libA\n")

	_, err := run.Execute(context.Background(), run.Options{
		Config:   f.cfg,
		Platform: "other",
	})
	if !errors.Is(err, run.ErrConfig) {
		t.Fatalf("expected ErrConfig, got %v", err)
	}
	if !strings.Contains(err.Error(), "unknown platform") {
		t.Fatalf("error does not name the problem: %v", err)
	}
}

func TestExecuteLockContention(t *testing.T) {
	f := newFixture(t)
	testsupport.SourceModule(t, f.cfg, "libA")
	f.writeList(t, "test", "build", "libA\n")
	// A live owner (this very process) already holds the lock.
	testsupport.WriteFile(t, f.cfg.LockPath(), fmt.Sprintf("%d\n", os.Getpid()))

	_, err := run.Execute(context.Background(), run.Options{
		Config:   f.cfg,
		Platform: "test",
	})
	if !errors.Is(err, run.ErrLockContention) {
		t.Fatalf("expected ErrLockContention, got %v", err)
	}
}

func TestMissingToolFailsPreflight(t *testing.T) {
	f := newFixture(t)
	f.cfg.Tools.Compiler = "surely-not-installed-anywhere"
	testsupport.SourceModule(t, f.cfg, "libA")
	f.writeList(t, "test", "build", "libA\n")

	_, err := run.Execute(context.Background(), run.Options{
		Config:   f.cfg,
		Platform: "test",
	})
	if !errors.Is(err, run.ErrConfig) {
		t.Fatalf("expected ErrConfig, got %v", err)
	}
	if !strings.Contains(err.Error(), "Component compiler") {
		t.Fatalf("error does not name the missing tool: %v", err)
	}
}

func TestDryRunToleratesMissingTools(t *testing.T) {
	f := newFixture(t)
	f.cfg.Tools.Compiler = "surely-not-installed-anywhere"
	testsupport.SourceModule(t, f.cfg, "libA")
	f.writeList(t, "test", "build", "libA\n")

	result, err := run.Execute(context.Background(), run.Options{
		Config:   f.cfg,
		Platform: "test",
		DryRun:   true,
	})
	if err != nil {
		t.Fatalf("Execute dry run: %v", err)
	}
	if result.Outcome != journal.OutcomeSucceeded {
		t.Fatalf("unexpected outcome %q", result.Outcome)
	}
	// Dry run forwards -n to the default driver.
	if !strings.Contains(f.calls(t), "-n") {
		t.Fatalf("driver not invoked with -n:\n%s", f.calls(t))
	}
}

func TestSkippedDirectoriesDoNotFailTheRun(t *testing.T) {
	f := newFixture(t)
	// No applicability marker: the directory exists but is not buildable.
	testsupport.WriteFile(t, filepath.Join(f.cfg.Paths.SourcesRoot, "docsOnly", "README"), "nothing to build\n")
	f.writeList(t, "test", "build", "docsOnly\n")

	result, err := run.Execute(context.Background(), run.Options{
		Config:   f.cfg,
		Platform: "test",
	})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if result.Outcome != journal.OutcomeSucceeded {
		t.Fatalf("unexpected outcome %q", result.Outcome)
	}
	if strings.Contains(f.calls(t), "driver") {
		t.Fatal("driver ran for a skipped directory")
	}
}
