package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"forge/internal/abort"
	"forge/internal/joblist"
	"forge/internal/loadgov"
	"forge/internal/logging"
)

// JobRunner executes one directive to completion.
type JobRunner interface {
	Run(ctx context.Context, directive joblist.Directive) error
}

// Validator is implemented by runners that can cheaply reject a directive
// before it launches. The dispatcher calls it inline at the directive's turn,
// so an invalid directive aborts the run at its index with nothing after it
// ever issued, even in asynchronous mode.
type Validator interface {
	Validate(directive joblist.Directive) error
}

// Observer is notified after each dispatched job finishes. Used for the run
// journal; never consulted for control flow.
type Observer func(directive joblist.Directive, jobErr error, elapsed time.Duration)

// Dispatcher walks the job list in order, issuing directives synchronously,
// asynchronously, or behind barriers, throttled by the load governor. Any
// job failure flips the abort coordinator; the dispatcher then stops issuing
// work but still joins every outstanding job before returning.
type Dispatcher struct {
	runner   JobRunner
	governor *loadgov.Governor
	coord    *abort.Coordinator
	observer Observer
	logger   *slog.Logger

	mu          sync.Mutex
	outstanding int
}

// New constructs a dispatcher. observer may be nil.
func New(runner JobRunner, governor *loadgov.Governor, coord *abort.Coordinator, observer Observer, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{
		runner:   runner,
		governor: governor,
		coord:    coord,
		observer: observer,
		logger:   logging.NewComponentLogger(logger, "dispatch"),
	}
}

// Dispatch runs the ordered directive list. It returns nil when every job
// completed, or the abort reason when the run was cut short. In either case
// no asynchronous job is left unjoined.
func (d *Dispatcher) Dispatch(directives []joblist.Directive) error {
	ctx := d.coord.Context()
	wake := make(chan struct{}, 1)
	var wg sync.WaitGroup

	for _, directive := range directives {
		if d.coord.Aborted() {
			break
		}

		if validator, ok := d.runner.(Validator); ok {
			if err := validator.Validate(directive); err != nil {
				if d.observer != nil {
					d.observer(directive, err, 0)
				}
				d.coord.Abort(fmt.Sprintf("job %d (%s) failed: %v", directive.Index, directive.SourceDir, err))
				break
			}
		}

		if err := d.governor.Throttle(ctx, d.currentOutstanding, wake); err != nil {
			break
		}

		if directive.Mode.Barrier() {
			d.logger.Debug("barrier reached, draining outstanding jobs",
				logging.Int(logging.FieldJobIndex, directive.Index),
			)
			wg.Wait()
			if d.coord.Aborted() {
				break
			}
		}

		if directive.Mode.Synchronous() {
			if err := d.runOne(ctx, directive); err != nil {
				d.coord.Abort(fmt.Sprintf("job %d (%s) failed: %v", directive.Index, directive.SourceDir, err))
				break
			}
			continue
		}

		d.addOutstanding(1)
		wg.Add(1)
		go func(directive joblist.Directive) {
			defer wg.Done()
			err := d.runOne(ctx, directive)
			d.addOutstanding(-1)
			select {
			case wake <- struct{}{}:
			default:
			}
			if err != nil {
				d.coord.Abort(fmt.Sprintf("job %d (%s) failed: %v", directive.Index, directive.SourceDir, err))
			}
		}(directive)
	}

	// Every job is joined before returning, aborted or not.
	wg.Wait()

	if d.coord.Aborted() {
		return fmt.Errorf("dispatch aborted: %s", d.coord.Reason())
	}
	return nil
}

func (d *Dispatcher) runOne(ctx context.Context, directive joblist.Directive) error {
	jobCtx := logging.WithJob(ctx, directive.Index, directive.SourceDir)
	start := time.Now()
	err := d.runner.Run(jobCtx, directive)
	if d.observer != nil {
		d.observer(directive, err, time.Since(start))
	}
	return err
}

func (d *Dispatcher) currentOutstanding() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.outstanding
}

func (d *Dispatcher) addOutstanding(delta int) {
	d.mu.Lock()
	d.outstanding += delta
	d.mu.Unlock()
}
