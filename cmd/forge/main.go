package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"forge/internal/run"
)

func main() {
	cmd := newRootCommand()
	if err := cmd.Execute(); err != nil {
		if !errors.Is(err, context.Canceled) {
			fmt.Fprintln(os.Stderr, err)
		}
		os.Exit(exitCode(err))
	}
}

// exitCode maps run errors onto the process exit status: 130 for an aborted
// run (the conventional code for interrupted work), 1 for everything else.
func exitCode(err error) int {
	switch {
	case errors.Is(err, run.ErrAborted), errors.Is(err, context.Canceled):
		return 130
	default:
		return 1
	}
}
