package run

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrConfig          = errors.New("configuration error")
	ErrLockContention  = errors.New("run lock contention")
	ErrCheckpointSetup = errors.New("checkpoint setup error")
	ErrJobFailure      = errors.New("job failure")
	ErrAborted         = errors.New("run aborted")
	ErrExternalTool    = errors.New("external tool error")
)

// Wrap builds an error message carrying component context while tagging it
// with the provided marker for exit-code classification. The marker should be
// one of the exported sentinel errors above.
func Wrap(marker error, component, operation, message string, err error) error {
	detail := buildDetail(component, operation, message)
	if marker == nil {
		marker = ErrJobFailure
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

func buildDetail(component, operation, message string) string {
	parts := make([]string, 0, 3)
	if component = strings.TrimSpace(component); component != "" {
		parts = append(parts, component)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "run failure"
	}
	return strings.Join(parts, ": ")
}
