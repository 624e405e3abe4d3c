package abort

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"sync"

	"forge/internal/logging"
)

// Coordinator tracks the run's one-way abort state. The first Abort call wins:
// it records the reason and cancels the run context, which terminates every
// outstanding collaborator process through the tools runner. Later calls are
// no-ops.
type Coordinator struct {
	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.Mutex
	once   sync.Once
	reason string
}

// New derives the run context from parent and returns its coordinator.
func New(parent context.Context) *Coordinator {
	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := context.WithCancel(parent)
	return &Coordinator{ctx: ctx, cancel: cancel}
}

// Context returns the cancellable run context shared by all jobs.
func (c *Coordinator) Context() context.Context {
	return c.ctx
}

// Abort flips the run into the aborted state. Idempotent; only the first
// reason is retained.
func (c *Coordinator) Abort(reason string) {
	c.once.Do(func() {
		c.mu.Lock()
		c.reason = reason
		c.mu.Unlock()
		c.cancel()
	})
}

// Aborted reports whether the run has been aborted.
func (c *Coordinator) Aborted() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.reason != "" || c.ctx.Err() != nil
}

// Reason returns the recorded abort reason, empty when not aborted.
func (c *Coordinator) Reason() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.reason != "" {
		return c.reason
	}
	if err := c.ctx.Err(); err != nil {
		return err.Error()
	}
	return ""
}

// Stop releases the run context without marking the run aborted. Called once
// the run finishes so derived resources are freed.
func (c *Coordinator) Stop() {
	c.cancel()
}

// NotifySignals aborts the run when a termination or external build-failure
// signal arrives. The returned stop function detaches the handler.
func (c *Coordinator) NotifySignals(logger *slog.Logger, signals ...os.Signal) func() {
	if logger == nil {
		logger = logging.NewNop()
	}
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, signals...)
	done := make(chan struct{})

	go func() {
		select {
		case sig := <-ch:
			logger.Warn("abort signal received",
				logging.String("signal", sig.String()),
				logging.String(logging.FieldEventType, "abort_signal"),
			)
			c.Abort("terminated by signal " + sig.String())
		case <-done:
		case <-c.ctx.Done():
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			signal.Stop(ch)
			close(done)
		})
	}
}
