//go:build !unix

package tools

import (
	"os/exec"
	"time"
)

func setProcessGroup(cmd *exec.Cmd) {}

func terminateGroup(cmd *exec.Cmd, grace time.Duration) {
	if cmd.Process != nil {
		_ = cmd.Process.Kill()
	}
}
