package executor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	"forge/internal/config"
	"forge/internal/joblist"
	"forge/internal/logging"
	"forge/internal/resources"
	"forge/internal/tools"
)

const (
	// ApplicabilityMarker must exist in a source directory for it to build.
	// Directories without it are skipped, not failed.
	ApplicabilityMarker = "makefile.mk"
	// DiscoveryMarker is consulted by the collaborator tools to locate
	// sibling modules. It is hidden for the job's duration because the tools
	// would otherwise wander into directories this run does not own.
	DiscoveryMarker       = "build.lst"
	hiddenDiscoveryMarker = ".build.lst.off"
)

// Options configures an executor for one run.
type Options struct {
	SourcesRoot string
	// OutputDir is the tree jobs write under: the checkpoint union view when
	// staging, the real output root otherwise.
	OutputDir   string
	Runner      tools.Runner
	Tools       config.Tools
	Stack       *resources.Stack
	DriverOpts  []string
	Parallelism int
	CacheTool   string // empty disables compiler caching
	DryRun      bool
	// Env is appended to every collaborator invocation (platform catalog
	// entries land here).
	Env    []string
	Logger *slog.Logger
}

// Executor runs one job at a time: it resolves the build action per requested
// file and keeps all intermediate writes inside the job's working mirror.
type Executor struct {
	opts   Options
	logger *slog.Logger

	// dirLocks serializes jobs that name the same source directory. The job
	// list is not supposed to do that, but the marker rename and the working
	// mirror are not safe against it.
	dirLocks sync.Map
}

// New constructs an executor.
func New(opts Options) *Executor {
	return &Executor{
		opts:   opts,
		logger: logging.NewComponentLogger(opts.Logger, "executor"),
	}
}

// Validate reports whether the directive can run at all. The dispatcher
// calls it before launching so an invalid directive stops the loop at its
// own index.
func (e *Executor) Validate(directive joblist.Directive) error {
	sourceDir := filepath.Join(e.opts.SourcesRoot, directive.SourceDir)
	info, err := os.Stat(sourceDir)
	if err != nil || !info.IsDir() {
		return fmt.Errorf("source directory not found: %s", directive.SourceDir)
	}
	return nil
}

// Run executes the directive. A missing source directory or an unsupported
// file extension is a job failure; a missing applicability marker is a
// logged no-op.
func (e *Executor) Run(ctx context.Context, directive joblist.Directive) error {
	logger := e.logger.With(
		logging.Int(logging.FieldJobIndex, directive.Index),
		logging.String(logging.FieldSourceDir, directive.SourceDir),
	)

	sourceDir := filepath.Join(e.opts.SourcesRoot, directive.SourceDir)
	info, err := os.Stat(sourceDir)
	if err != nil || !info.IsDir() {
		return fmt.Errorf("job %d: source directory not found: %s", directive.Index, directive.SourceDir)
	}

	lock := e.dirLock(directive.SourceDir)
	lock.Lock()
	defer lock.Unlock()

	// The applicability check comes first: a skipped job never touches the
	// discovery marker.
	if _, err := os.Stat(filepath.Join(sourceDir, ApplicabilityMarker)); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			logger.Info("job skipped, no applicability marker",
				logging.String("marker", ApplicabilityMarker),
				logging.String(logging.FieldEventType, "job_skipped"),
			)
			return nil
		}
		return fmt.Errorf("job %d: probe %s: %w", directive.Index, ApplicabilityMarker, err)
	}

	restore, err := e.hideDiscoveryMarker(sourceDir)
	if err != nil {
		return fmt.Errorf("job %d: %w", directive.Index, err)
	}
	defer func() {
		if err := restore.Close(); err != nil {
			logger.Warn("failed to restore discovery marker", logging.Error(err))
		}
	}()

	mirror, err := e.prepareMirror(ctx, sourceDir, directive.SourceDir)
	if err != nil {
		return fmt.Errorf("job %d: %w", directive.Index, err)
	}

	logger.Info("job started",
		logging.String("mode", directive.Mode.String()),
		logging.Int("files", len(directive.Files)),
		logging.String(logging.FieldEventType, "job_start"),
	)

	if len(directive.Files) == 0 {
		if err := e.runDefaultDriver(ctx, sourceDir, mirror); err != nil {
			return fmt.Errorf("job %d: %w", directive.Index, err)
		}
	} else {
		for _, file := range directive.Files {
			if err := e.runFileAction(ctx, sourceDir, mirror, file); err != nil {
				return fmt.Errorf("job %d: %w", directive.Index, err)
			}
		}
	}

	logger.Info("job completed", logging.String(logging.FieldEventType, "job_complete"))
	return nil
}

// hideDiscoveryMarker renames the marker for the job's duration. The restore
// guard sits on the run's resource stack so abnormal termination still puts
// the marker back; the normal path closes it as the job finishes.
func (e *Executor) hideDiscoveryMarker(sourceDir string) (*resources.Guard, error) {
	marker := filepath.Join(sourceDir, DiscoveryMarker)
	hidden := filepath.Join(sourceDir, hiddenDiscoveryMarker)

	if _, err := os.Stat(marker); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return &resources.Guard{}, nil
		}
		return nil, fmt.Errorf("probe %s: %w", DiscoveryMarker, err)
	}
	if err := os.Rename(marker, hidden); err != nil {
		return nil, fmt.Errorf("hide %s: %w", DiscoveryMarker, err)
	}
	return e.opts.Stack.Push("restore "+DiscoveryMarker, func() error {
		return os.Rename(hidden, marker)
	}), nil
}

// prepareMirror creates the job's working mirror under the output tree and
// seeds it from the source directory through the sync collaborator.
func (e *Executor) prepareMirror(ctx context.Context, sourceDir, relDir string) (string, error) {
	mirror := filepath.Join(e.opts.OutputDir, "mirror", relDir)
	if err := os.MkdirAll(mirror, 0o755); err != nil {
		return "", fmt.Errorf("create working mirror: %w", err)
	}
	err := e.opts.Runner.Run(ctx, tools.Command{
		Binary: e.opts.Tools.Sync,
		Args:   []string{"-a", "--delete", sourceDir + string(os.PathSeparator), mirror},
		Env:    e.opts.Env,
	})
	if err != nil {
		return "", fmt.Errorf("seed working mirror: %w", err)
	}
	return mirror, nil
}

func (e *Executor) runDefaultDriver(ctx context.Context, sourceDir, mirror string) error {
	args := []string{"-j", strconv.Itoa(e.opts.Parallelism)}
	args = append(args, e.opts.DriverOpts...)
	if e.opts.DryRun {
		args = append(args, "-n")
	}
	env := e.toolEnv(mirror)
	if e.opts.CacheTool != "" {
		env = append(env,
			"CC="+e.opts.CacheTool+" cc",
			"CXX="+e.opts.CacheTool+" c++",
		)
	}
	err := e.opts.Runner.Run(ctx, tools.Command{
		Binary: e.opts.Tools.Driver,
		Args:   args,
		Dir:    sourceDir,
		Env:    env,
	})
	if err != nil {
		return fmt.Errorf("default build: %w", err)
	}
	return nil
}

func (e *Executor) dirLock(dir string) *sync.Mutex {
	actual, _ := e.dirLocks.LoadOrStore(dir, &sync.Mutex{})
	return actual.(*sync.Mutex)
}

func (e *Executor) toolEnv(mirror string) []string {
	env := append([]string{}, e.opts.Env...)
	return append(env,
		"FORGE_OUT="+mirror,
		"FORGE_SRC_ROOT="+e.opts.SourcesRoot,
	)
}
