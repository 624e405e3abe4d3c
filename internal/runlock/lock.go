package runlock

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/gofrs/flock"

	"forge/internal/logging"
	"forge/internal/resources"
)

// ErrBusy reports that another live run owns the lock, or that a stale lock
// was found and the caller declined to reclaim it.
var ErrBusy = errors.New("another run is active")

// ConfirmFunc decides whether a lock left behind by a dead owner may be
// reclaimed. The CLI wires an interactive prompt; tests wire a canned answer.
type ConfirmFunc func(ownerPid int) (bool, error)

// Lock is the singleton run lock: a file holding the owner's pid. The file's
// existence and content are the sole source of truth for "a run is active".
// A flock sidecar serializes the create/probe/reclaim sequence so two
// concurrent acquisitions cannot both observe the same stale owner.
type Lock struct {
	path   string
	guard  *flock.Flock
	logger *slog.Logger
}

// New constructs a lock rooted at path.
func New(path string, logger *slog.Logger) *Lock {
	return &Lock{
		path:   path,
		guard:  flock.New(path + ".guard"),
		logger: logging.NewComponentLogger(logger, "runlock"),
	}
}

// Path returns the lock file location.
func (l *Lock) Path() string {
	return l.path
}

// Acquire takes the lock for the current process and registers the matching
// release on the stack. When the recorded owner is dead, confirm is consulted
// before the stale lock is reclaimed; acquisition is then retried once.
func (l *Lock) Acquire(stack *resources.Stack, confirm ConfirmFunc) error {
	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		return fmt.Errorf("create lock directory: %w", err)
	}

	if err := l.guard.Lock(); err != nil {
		return fmt.Errorf("acquire lock guard: %w", err)
	}
	defer func() {
		if err := l.guard.Unlock(); err != nil {
			l.logger.Warn("failed to release lock guard", logging.Error(err))
		}
	}()

	if err := l.tryCreate(); err == nil {
		l.registerRelease(stack)
		return nil
	} else if !errors.Is(err, os.ErrExist) {
		return fmt.Errorf("create lock file: %w", err)
	}

	owner, readErr := l.readOwner()
	if readErr == nil && ownerAlive(owner) {
		return fmt.Errorf("%w (pid %d holds %s)", ErrBusy, owner, l.path)
	}

	if confirm == nil {
		return fmt.Errorf("%w (stale lock at %s, owner pid %d not running)", ErrBusy, l.path, owner)
	}
	ok, err := confirm(owner)
	if err != nil {
		return fmt.Errorf("confirm lock reclaim: %w", err)
	}
	if !ok {
		return fmt.Errorf("%w (stale lock at %s not reclaimed)", ErrBusy, l.path)
	}

	l.logger.Warn("reclaiming stale run lock",
		logging.String("path", l.path),
		logging.Int("owner_pid", owner),
		logging.String(logging.FieldEventType, "lock_reclaimed"),
	)
	if err := os.Remove(l.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove stale lock: %w", err)
	}
	if err := l.tryCreate(); err != nil {
		return fmt.Errorf("recreate lock file: %w", err)
	}
	l.registerRelease(stack)
	return nil
}

// Release removes the lock file if this process still owns it.
func (l *Lock) Release() error {
	owner, err := l.readOwner()
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	}
	if owner != os.Getpid() {
		return fmt.Errorf("lock at %s owned by pid %d, not releasing", l.path, owner)
	}
	return os.Remove(l.path)
}

func (l *Lock) tryCreate() error {
	file, err := os.OpenFile(l.path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	_, writeErr := fmt.Fprintf(file, "%d\n", os.Getpid())
	closeErr := file.Close()
	if writeErr != nil {
		_ = os.Remove(l.path)
		return writeErr
	}
	if closeErr != nil {
		_ = os.Remove(l.path)
		return closeErr
	}
	return nil
}

func (l *Lock) readOwner() (int, error) {
	data, err := os.ReadFile(l.path)
	if err != nil {
		return 0, err
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0, fmt.Errorf("parse lock owner from %s: %w", l.path, err)
	}
	return pid, nil
}

func (l *Lock) registerRelease(stack *resources.Stack) {
	if stack == nil {
		return
	}
	stack.Push("run lock release", l.Release)
}
