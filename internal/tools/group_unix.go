//go:build unix

package tools

import (
	"os/exec"
	"syscall"
	"time"

	"golang.org/x/sys/unix"
)

func setProcessGroup(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
}

// terminateGroup delivers TERM to the tool's whole process group, escalating
// to KILL after the grace period for tools that ignore the first signal.
func terminateGroup(cmd *exec.Cmd, grace time.Duration) {
	if cmd.Process == nil {
		return
	}
	pgid := cmd.Process.Pid
	_ = unix.Kill(-pgid, unix.SIGTERM)
	go func() {
		time.Sleep(grace)
		_ = unix.Kill(-pgid, unix.SIGKILL)
	}()
}
