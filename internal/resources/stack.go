package resources

import (
	"log/slog"
	"sync"

	"forge/internal/logging"
)

// Stack holds cleanup guards and unwinds them in reverse registration order.
// Release runs at most once per process lifetime regardless of how many exit
// paths reach it.
type Stack struct {
	mu      sync.Mutex
	entries []*Guard
	logger  *slog.Logger
	once    sync.Once
}

// Guard is one registered cleanup action. It runs exactly once: at unwind, or
// earlier through Close. Cancel withdraws it without running it.
type Guard struct {
	name string
	fn   func() error

	mu   sync.Mutex
	done bool
}

// New constructs an empty stack. A nil logger discards unwind diagnostics.
func New(logger *slog.Logger) *Stack {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Stack{logger: logging.NewComponentLogger(logger, "resources")}
}

// Push registers a cleanup action under a diagnostic name and returns its guard.
func (s *Stack) Push(name string, fn func() error) *Guard {
	guard := &Guard{name: name, fn: fn}
	s.mu.Lock()
	s.entries = append(s.entries, guard)
	s.mu.Unlock()
	return guard
}

// Len reports the number of guards that have neither run nor been canceled.
func (s *Stack) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	count := 0
	for _, guard := range s.entries {
		if !guard.finished() {
			count++
		}
	}
	return count
}

// Release unwinds every pending guard, last pushed first. A failing guard is
// logged and does not block the remaining guards. Subsequent calls are no-ops.
func (s *Stack) Release() {
	s.once.Do(func() {
		s.mu.Lock()
		entries := s.entries
		s.entries = nil
		s.mu.Unlock()

		for i := len(entries) - 1; i >= 0; i-- {
			guard := entries[i]
			if err := guard.run(); err != nil {
				s.logger.Warn("cleanup action failed",
					logging.String("guard", guard.name),
					logging.Error(err),
					logging.String(logging.FieldEventType, "cleanup_failed"),
				)
			}
		}
	})
}

// Close runs the guard immediately and withdraws it from the unwind.
func (g *Guard) Close() error {
	return g.run()
}

// Cancel withdraws the guard without running it.
func (g *Guard) Cancel() {
	g.mu.Lock()
	g.done = true
	g.mu.Unlock()
}

func (g *Guard) run() error {
	g.mu.Lock()
	if g.done {
		g.mu.Unlock()
		return nil
	}
	g.done = true
	fn := g.fn
	g.mu.Unlock()
	if fn == nil {
		return nil
	}
	return fn()
}

func (g *Guard) finished() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.done
}
