package joblist

import (
	"bufio"
	"fmt"
	"os"
	"strings"
)

// Mode selects how the dispatcher issues a directive.
type Mode int

const (
	// Async launches the job and continues without waiting.
	Async Mode = iota
	// Sync runs the job inline, blocking the scheduling loop.
	Sync
	// WaitThenAsync drains all outstanding asynchronous jobs, then launches.
	WaitThenAsync
	// WaitThenSync drains all outstanding asynchronous jobs, then runs inline.
	WaitThenSync
)

// String returns the descriptor-file spelling of the mode.
func (m Mode) String() string {
	switch m {
	case Sync:
		return "sync"
	case WaitThenAsync:
		return "wait-async"
	case WaitThenSync:
		return "wait-sync"
	default:
		return "async"
	}
}

// Barrier reports whether the mode drains outstanding jobs before dispatch.
func (m Mode) Barrier() bool {
	return m == WaitThenAsync || m == WaitThenSync
}

// Synchronous reports whether the job itself runs inline.
func (m Mode) Synchronous() bool {
	return m == Sync || m == WaitThenSync
}

// Directive is one line of the job list: a source directory, the dispatch
// mode, and the files requested within it (empty meaning a full default
// build of the directory).
type Directive struct {
	Index     int
	Mode      Mode
	SourceDir string
	Files     []string
}

var markers = map[string]Mode{
	"-": Sync,
	"=": Async,
	"<": WaitThenAsync,
	">": WaitThenSync,
}

// Parse reads the descriptor file at path into an ordered directive list.
// Blank lines and lines starting with '#' are skipped. A missing file is a
// configuration error: no job may run without its list.
func Parse(path string) ([]Directive, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open job list %s: %w", path, err)
	}
	defer file.Close()

	var directives []Directive
	scanner := bufio.NewScanner(file)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		tokens := strings.Fields(line)
		mode := Async
		if m, ok := markers[tokens[0]]; ok {
			mode = m
			tokens = tokens[1:]
			if len(tokens) == 0 {
				return nil, fmt.Errorf("parse job list %s:%d: marker without source directory", path, lineNo)
			}
		}

		directives = append(directives, Directive{
			Index:     len(directives),
			Mode:      mode,
			SourceDir: tokens[0],
			Files:     tokens[1:],
		})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read job list %s: %w", path, err)
	}

	return directives, nil
}
