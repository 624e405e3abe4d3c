package tools

import (
	"bufio"
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"time"

	"forge/internal/logging"
)

// Command describes one collaborator invocation. The only signal consumed
// from the tool is its exit status; output is streamed to the debug log and
// otherwise ignored.
type Command struct {
	Binary string
	Args   []string
	Dir    string
	// Env entries are appended to the inherited environment.
	Env []string
}

// Runner executes collaborator commands.
type Runner interface {
	Run(ctx context.Context, cmd Command) error
}

// Option configures the exec-backed runner.
type Option func(*execRunner)

// WithKillGrace overrides the delay between the group TERM and the follow-up KILL.
func WithKillGrace(d time.Duration) Option {
	return func(r *execRunner) {
		if d > 0 {
			r.grace = d
		}
	}
}

// NewRunner constructs the production runner. Each collaborator runs in its
// own process group so cancellation reaches the tool's children as well.
func NewRunner(logger *slog.Logger, opts ...Option) Runner {
	runner := &execRunner{
		logger: logging.NewComponentLogger(logger, "tools"),
		grace:  5 * time.Second,
	}
	for _, opt := range opts {
		opt(runner)
	}
	return runner
}

type execRunner struct {
	logger *slog.Logger
	grace  time.Duration
}

func (r *execRunner) Run(ctx context.Context, spec Command) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	cmd := exec.Command(spec.Binary, spec.Args...) //nolint:gosec
	cmd.Dir = spec.Dir
	cmd.Env = append(os.Environ(), spec.Env...)
	setProcessGroup(cmd)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return err
	}
	cmd.Stderr = cmd.Stdout

	if err := cmd.Start(); err != nil {
		return err
	}

	killed := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			r.logger.Debug("terminating collaborator",
				logging.String("binary", spec.Binary),
			)
			terminateGroup(cmd, r.grace)
		case <-killed:
		}
	}()

	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		r.logger.Debug(scanner.Text(), logging.String("tool", spec.Binary))
	}
	if scanErr := scanner.Err(); scanErr != nil {
		// The pipe must be drained to the end regardless: a child blocked on
		// a full pipe buffer never exits and Wait would hang the job.
		r.logger.Warn("collaborator output not fully logged",
			logging.String("tool", spec.Binary),
			logging.Error(scanErr),
		)
		_, _ = io.Copy(io.Discard, stdout)
	}

	waitErr := cmd.Wait()
	close(killed)

	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	if waitErr != nil {
		var exitErr *exec.ExitError
		if errors.As(waitErr, &exitErr) {
			return &ToolError{Binary: spec.Binary, ExitCode: exitErr.ExitCode()}
		}
		return waitErr
	}
	return nil
}
