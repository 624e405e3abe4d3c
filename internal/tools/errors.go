package tools

import "fmt"

// ToolError reports a collaborator exiting nonzero. Per the process contract
// no structured output is parsed; the exit code is everything we know.
type ToolError struct {
	Binary   string
	ExitCode int
}

func (e *ToolError) Error() string {
	return fmt.Sprintf("%s exited with status %d", e.Binary, e.ExitCode)
}
