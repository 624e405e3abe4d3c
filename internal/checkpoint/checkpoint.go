package checkpoint

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"forge/internal/logging"
	"forge/internal/resources"
	"forge/internal/tools"
)

// Stager is the shadow-write backend: it presents a union view of the output
// tree, and either merges the union's changes back or discards them.
type Stager interface {
	Setup(ctx context.Context) error
	// UnionPath is the directory jobs treat as the output tree.
	UnionPath() string
	// Commit merges the union's additions, modifications, and deletions into
	// the real output tree.
	Commit(ctx context.Context) error
	// Teardown discards the scratch state. Safe to call after Commit.
	Teardown() error
}

// Options configures the manager.
type Options struct {
	OutputRoot  string
	ScratchRoot string
	// Enabled engages staging at all. When false jobs write directly into
	// the output tree.
	Enabled bool
	// Mechanism selects the stager: "shadow" or "overlay".
	Mechanism string
	// Commit requests the merge-on-success action. Without it the staged
	// writes are always discarded.
	Commit bool
	DryRun bool
	// Runner and the mount tools are used by the overlay mechanism only.
	Runner      tools.Runner
	MountTool   string
	UnmountTool string
	Logger      *slog.Logger
}

// Manager wires a stager into a run: teardown is registered on the resource
// stack immediately and unconditionally, the commit guard only when requested
// and not a dry run, and commit itself only fires if the run succeeded.
type Manager struct {
	stager Stager
	active bool
	output string
	opts   Options
	logger *slog.Logger
}

// NewManager builds a manager. The manager is inactive when staging was not
// requested, or when the output tree does not exist yet: in either case there
// is nothing to protect and jobs write directly.
func NewManager(opts Options) (*Manager, error) {
	logger := logging.NewComponentLogger(opts.Logger, "checkpoint")

	if !opts.Enabled {
		return &Manager{active: false, output: opts.OutputRoot, opts: opts, logger: logger}, nil
	}

	info, err := os.Stat(opts.OutputRoot)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			logger.Info("output tree absent, checkpoint inactive",
				logging.String("output_root", opts.OutputRoot),
			)
			return &Manager{active: false, output: opts.OutputRoot, opts: opts, logger: logger}, nil
		}
		return nil, fmt.Errorf("stat output tree: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("output root %s is not a directory", opts.OutputRoot)
	}

	var stager Stager
	switch opts.Mechanism {
	case "shadow", "":
		stager = newShadowStager(opts.OutputRoot, opts.ScratchRoot)
	case "overlay":
		stager = newOverlayStager(opts.OutputRoot, opts.ScratchRoot, opts.Runner, opts.MountTool, opts.UnmountTool)
	default:
		return nil, fmt.Errorf("unknown checkpoint mechanism %q", opts.Mechanism)
	}

	return &Manager{
		stager: stager,
		active: true,
		output: opts.OutputRoot,
		opts:   opts,
		logger: logger,
	}, nil
}

// Active reports whether staging is in effect.
func (m *Manager) Active() bool {
	return m.active
}

// OutputDir returns the directory jobs must treat as the output tree: the
// union view while staging, the real tree otherwise.
func (m *Manager) OutputDir() string {
	if m.active {
		return m.stager.UnionPath()
	}
	return m.output
}

// Setup prepares the staging view and registers the unwind guards. succeeded
// is consulted at unwind time: commit only merges when the run did not abort.
// A setup failure is fatal; the run must never silently degrade to writing
// into the unprotected output tree once checkpointing was requested.
func (m *Manager) Setup(ctx context.Context, stack *resources.Stack, succeeded func() bool) error {
	if !m.active {
		return nil
	}

	if err := m.stager.Setup(ctx); err != nil {
		return fmt.Errorf("checkpoint setup: %w (check privileges for %q staging under %s, or switch checkpoint.mechanism)",
			err, m.opts.Mechanism, m.opts.ScratchRoot)
	}

	stack.Push("checkpoint teardown", m.stager.Teardown)

	if m.opts.Commit && !m.opts.DryRun {
		stack.Push("checkpoint commit", func() error {
			if !succeeded() {
				m.logger.Info("run did not succeed, discarding staged output",
					logging.String(logging.FieldEventType, "checkpoint_discard"),
				)
				return nil
			}
			m.logger.Info("committing staged output",
				logging.String("output_root", m.output),
				logging.String(logging.FieldEventType, "checkpoint_commit"),
			)
			return m.stager.Commit(context.Background())
		})
	}

	m.logger.Info("checkpoint staging active",
		logging.String("union", m.stager.UnionPath()),
		logging.Bool("commit_on_success", m.opts.Commit && !m.opts.DryRun),
	)
	return nil
}
