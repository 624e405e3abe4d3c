//go:build unix

package runlock

import (
	"errors"

	"golang.org/x/sys/unix"
)

// ownerAlive probes whether pid refers to a live process. Signal 0 performs
// the existence check without delivering anything; EPERM still means alive.
func ownerAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	err := unix.Kill(pid, 0)
	if err == nil {
		return true
	}
	return errors.Is(err, unix.EPERM)
}
