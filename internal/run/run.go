// Package run orchestrates a full build invocation: lock acquisition,
// dependency preflight, checkpoint staging, per-stage job dispatch, and the
// unwind of everything the run set up, in reverse order, on every exit path.
package run

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sys/unix"

	"forge/internal/abort"
	"forge/internal/checkpoint"
	"forge/internal/config"
	"forge/internal/deps"
	"forge/internal/dispatch"
	"forge/internal/executor"
	"forge/internal/joblist"
	"forge/internal/journal"
	"forge/internal/loadgov"
	"forge/internal/logging"
	"forge/internal/platform"
	"forge/internal/resources"
	"forge/internal/runlock"
	"forge/internal/tools"
)

// Options parameterizes one build run.
type Options struct {
	Config   *config.Config
	Platform string
	// Stages are dispatched in order; each names a descriptor file in the
	// lists directory.
	Stages []string
	// Checkpoint stages all output-tree writes and merges them back only if
	// the run succeeds. Without it jobs write into the output tree directly.
	Checkpoint bool
	DryRun     bool
	// Cache enables compiler caching for this run even when the config
	// leaves it off.
	Cache bool
	// DriverOpts are appended to the configured default-driver options.
	DriverOpts []string
	// LoadLimit overrides the configured dispatch ceiling when positive.
	LoadLimit float64
	// Confirm decides whether a stale run lock may be reclaimed. Nil refuses.
	Confirm runlock.ConfirmFunc
	Logger  *slog.Logger
}

// Result summarizes a finished run.
type Result struct {
	RunID   string
	Outcome journal.Outcome
	Reason  string
	Elapsed time.Duration
}

type stagePlan struct {
	name       string
	descriptor string
	directives []joblist.Directive
}

// Execute performs the run. Errors are tagged with the package sentinels so
// callers can map them to exit codes.
func Execute(ctx context.Context, opts Options) (Result, error) {
	start := time.Now()
	cfg := opts.Config
	if cfg == nil {
		return Result{}, Wrap(ErrConfig, "run", "execute", "no configuration", nil)
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.NewNop()
	}

	if err := cfg.EnsureDirectories(); err != nil {
		return Result{}, Wrap(ErrConfig, "run", "prepare directories", "", err)
	}

	plans, resolved, err := planStages(cfg, opts)
	if err != nil {
		return Result{}, err
	}

	runID := uuid.NewString()
	logger = logger.With(
		logging.String(logging.FieldRunID, runID),
		logging.String(logging.FieldPlatform, resolved.ID),
	)
	ctx = logging.WithRunID(logging.WithPlatform(ctx, resolved.ID), runID)

	stack := resources.New(logger)
	defer stack.Release()

	coord := abort.New(ctx)
	defer coord.Stop()
	stopSignals := coord.NotifySignals(logger, unix.SIGINT, unix.SIGTERM, unix.SIGUSR1)
	defer stopSignals()

	lock := runlock.New(cfg.LockPath(), logger)
	if err := lock.Acquire(stack, opts.Confirm); err != nil {
		if errors.Is(err, runlock.ErrBusy) {
			return Result{}, Wrap(ErrLockContention, "runlock", "acquire", "", err)
		}
		return Result{}, Wrap(ErrConfig, "runlock", "acquire", "", err)
	}

	if err := preflight(cfg, opts.DryRun, logger); err != nil {
		return Result{}, err
	}

	store, err := journal.Open(cfg)
	if err != nil {
		return Result{}, Wrap(ErrConfig, "journal", "open", "", err)
	}
	stack.Push("journal close", store.Close)

	stageNames := make([]string, len(plans))
	for i, plan := range plans {
		stageNames[i] = plan.name
	}
	if err := store.StartRun(ctx, runID, resolved.ID, strings.Join(stageNames, ",")); err != nil {
		return Result{}, Wrap(ErrConfig, "journal", "start run", "", err)
	}

	runner := tools.NewRunner(logger)

	manager, err := checkpoint.NewManager(checkpoint.Options{
		OutputRoot:  cfg.Paths.OutputRoot,
		ScratchRoot: cfg.ScratchRoot(),
		Enabled:     opts.Checkpoint,
		Mechanism:   cfg.Checkpoint.Mechanism,
		Commit:      opts.Checkpoint,
		DryRun:      opts.DryRun,
		Runner:      runner,
		MountTool:   cfg.Tools.OverlayMount,
		UnmountTool: cfg.Tools.OverlayUnmount,
		Logger:      logger,
	})
	if err != nil {
		return Result{}, Wrap(ErrCheckpointSetup, "checkpoint", "configure", "", err)
	}

	var runSucceeded bool
	if err := manager.Setup(coord.Context(), stack, func() bool { return runSucceeded }); err != nil {
		return Result{}, Wrap(ErrCheckpointSetup, "checkpoint", "setup", "", err)
	}

	loadLimit := cfg.EffectiveLoadLimit()
	if opts.LoadLimit > 0 {
		loadLimit = opts.LoadLimit
	}
	governor := loadgov.New(loadLimit, logger)

	driverOpts := splitOpts(cfg.Build.DriverOpts)
	driverOpts = append(driverOpts, opts.DriverOpts...)
	cacheTool := ""
	if cfg.Build.CacheEnabled || opts.Cache {
		cacheTool = cfg.Build.CacheTool
	}

	// Job failures are classified here so the final error chain tells a
	// collaborator's nonzero exit apart from other job failures and from a
	// plain signal abort.
	var jobFailed, toolFailed atomic.Bool
	observer := func(directive joblist.Directive, jobErr error, elapsed time.Duration) {
		outcome := journal.OutcomeSucceeded
		switch {
		case errors.Is(jobErr, context.Canceled):
			outcome = journal.OutcomeAborted
		case jobErr != nil:
			outcome = journal.OutcomeFailed
			jobFailed.Store(true)
			var toolErr *tools.ToolError
			if errors.As(jobErr, &toolErr) {
				toolFailed.Store(true)
			}
		}
		if err := store.RecordJob(context.Background(), runID, directive, outcome, elapsed); err != nil {
			logger.Warn("failed to record job outcome", logging.Error(err))
		}
	}

	logger.Info("run started",
		logging.Int("stages", len(plans)),
		logging.Bool("dry_run", opts.DryRun),
		logging.Bool("checkpoint_commit", opts.Checkpoint),
		logging.String(logging.FieldEventType, "run_start"),
	)

	for _, plan := range plans {
		stageLogger := logger.With(logging.String(logging.FieldStage, plan.name))
		stageLogger.Info("stage started",
			logging.Int("jobs", len(plan.directives)),
			logging.String("descriptor", plan.descriptor),
		)

		exec := executor.New(executor.Options{
			SourcesRoot: resolved.SourcesRoot,
			OutputDir:   manager.OutputDir(),
			Runner:      runner,
			Tools:       cfg.Tools,
			Stack:       stack,
			DriverOpts:  driverOpts,
			Parallelism: cfg.EffectiveParallelism(),
			CacheTool:   cacheTool,
			DryRun:      opts.DryRun,
			Env:         resolved.Env,
			Logger:      stageLogger,
		})

		dispatcher := dispatch.New(exec, governor, coord, observer, stageLogger)
		if err := dispatcher.Dispatch(plan.directives); err != nil {
			reason := coord.Reason()
			result := Result{RunID: runID, Outcome: journal.OutcomeAborted, Reason: reason, Elapsed: time.Since(start)}
			finish(store, runID, result, logger)
			var cause error
			switch {
			case toolFailed.Load():
				cause = ErrExternalTool
			case jobFailed.Load():
				cause = ErrJobFailure
			}
			return result, Wrap(ErrAborted, "dispatch", plan.name, reason, cause)
		}
		stageLogger.Info("stage completed")
	}

	runSucceeded = true
	result := Result{RunID: runID, Outcome: journal.OutcomeSucceeded, Elapsed: time.Since(start)}
	finish(store, runID, result, logger)

	logger.Info("run completed",
		logging.Duration("elapsed", result.Elapsed),
		logging.String(logging.FieldEventType, "run_complete"),
	)

	// Unwind now rather than in the defer so checkpoint commit happens while
	// the journal entry and the logger are still live.
	stack.Release()
	return result, nil
}

// planStages resolves the platform and parses every stage descriptor before
// any resource is acquired, so a bad platform id or a missing list file fails
// fast without touching the lock.
func planStages(cfg *config.Config, opts Options) ([]stagePlan, platform.Resolved, error) {
	catalog, err := platform.LoadCatalog(cfg.CatalogPath())
	if err != nil {
		return nil, platform.Resolved{}, Wrap(ErrConfig, "platform", "load catalog", "", err)
	}
	resolved, err := catalog.Resolve(cfg, opts.Platform)
	if err != nil {
		return nil, platform.Resolved{}, Wrap(ErrConfig, "platform", "resolve", "", err)
	}

	stages := opts.Stages
	if len(stages) == 0 {
		stages = []string{"build"}
	}

	plans := make([]stagePlan, 0, len(stages))
	for _, stage := range stages {
		descriptor := resolved.DescriptorPath(cfg, stage)
		directives, err := joblist.Parse(descriptor)
		if err != nil {
			return nil, platform.Resolved{}, Wrap(ErrConfig, "joblist", "parse "+stage, "", err)
		}
		plans = append(plans, stagePlan{name: stage, descriptor: descriptor, directives: directives})
	}
	return plans, resolved, nil
}

// preflight verifies the collaborator binaries. Missing required tools fail
// the run, except under dry-run where they are reported and tolerated.
func preflight(cfg *config.Config, dryRun bool, logger *slog.Logger) error {
	statuses := deps.CheckBinaries(deps.DefaultRequirements(cfg))
	missing := deps.MissingRequired(statuses)
	if len(missing) == 0 {
		return nil
	}
	if dryRun {
		logger.Warn("missing dependencies tolerated under dry run",
			logging.String("missing", strings.Join(missing, ", ")),
		)
		return nil
	}
	return Wrap(ErrConfig, "deps", "preflight", "missing required tools: "+strings.Join(missing, ", "), nil)
}

func finish(store *journal.Store, runID string, result Result, logger *slog.Logger) {
	if err := store.FinishRun(context.Background(), runID, result.Outcome, result.Reason); err != nil {
		logger.Warn("failed to record run outcome", logging.Error(err))
	}
}

func splitOpts(raw string) []string {
	fields := strings.Fields(raw)
	if len(fields) == 0 {
		return nil
	}
	return fields
}
