package loadgov

import (
	"context"
	"log/slog"
	"time"

	"forge/internal/logging"
)

// Sampler reports the current system load figure used for admission control.
type Sampler interface {
	Sample() (float64, error)
}

// Option configures the governor.
type Option func(*Governor)

// WithSampler injects a custom load sampler (primarily for tests).
func WithSampler(s Sampler) Option {
	return func(g *Governor) {
		if s != nil {
			g.sampler = s
		}
	}
}

// WithPollInterval overrides the fallback polling interval.
func WithPollInterval(d time.Duration) Option {
	return func(g *Governor) {
		if d > 0 {
			g.poll = d
		}
	}
}

// Governor throttles job dispatch against a load ceiling and a hard cap on
// outstanding asynchronous jobs. It never blocks while nothing is running:
// with zero outstanding jobs there is no completion to wait for, so blocking
// would deadlock the scheduling loop.
type Governor struct {
	ceiling float64
	maxJobs int
	poll    time.Duration
	sampler Sampler
	logger  *slog.Logger
}

// New constructs a governor. The ceiling also bounds the number of
// concurrently outstanding jobs.
func New(ceiling float64, logger *slog.Logger, opts ...Option) *Governor {
	g := &Governor{
		ceiling: ceiling,
		maxJobs: int(ceiling),
		poll:    500 * time.Millisecond,
		sampler: sysinfoSampler{},
		logger:  logging.NewComponentLogger(logger, "loadgov"),
	}
	if g.maxJobs < 1 {
		g.maxJobs = 1
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Throttle blocks until dispatching one more job is admissible. It wakes on a
// signal from wake (any child completion) or after the poll interval,
// whichever comes first, and returns early when ctx is canceled.
func (g *Governor) Throttle(ctx context.Context, outstanding func() int, wake <-chan struct{}) error {
	logged := false
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		running := outstanding()
		if running == 0 {
			return nil
		}
		if running < g.maxJobs {
			load, err := g.sampler.Sample()
			if err != nil {
				g.logger.Warn("load sample failed, admitting dispatch", logging.Error(err))
				return nil
			}
			if load < g.ceiling {
				return nil
			}
			if !logged {
				g.logger.Debug("throttling dispatch",
					logging.Float64("load", load),
					logging.Float64("ceiling", g.ceiling),
					logging.Int("outstanding", running),
				)
				logged = true
			}
		}

		timer := time.NewTimer(g.poll)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-wake:
			timer.Stop()
		case <-timer.C:
		}
	}
}
