// Package deps checks the collaborator binaries a build run shells out to.
package deps

import (
	"fmt"
	"os/exec"
	"strings"

	"forge/internal/config"
)

// Requirement defines an external binary forge relies on.
type Requirement struct {
	Name        string
	Command     string
	Description string
	Optional    bool
}

// Status reports the availability of a dependency.
type Status struct {
	Name        string
	Command     string
	Description string
	Optional    bool
	Available   bool
	Detail      string
}

// DefaultRequirements derives the requirement set from the configured tools.
// The overlay tools are only required when that checkpoint mechanism is
// selected; the cache tool only when caching is on.
func DefaultRequirements(cfg *config.Config) []Requirement {
	reqs := []Requirement{
		{Name: "Build driver", Command: cfg.Tools.Driver, Description: "default per-module build driver"},
		{Name: "Interface generator", Command: cfg.Tools.IDLGen, Description: "interface definition code generator"},
		{Name: "Component compiler", Command: cfg.Tools.Compiler, Description: "component description compiler"},
		{Name: "Tree sync", Command: cfg.Tools.Sync, Description: "mirrors source trees into the output area"},
	}
	if cfg.Checkpoint.Mechanism == "overlay" {
		reqs = append(reqs,
			Requirement{Name: "Overlay mount", Command: cfg.Tools.OverlayMount, Description: "mounts the checkpoint union"},
			Requirement{Name: "Overlay unmount", Command: cfg.Tools.OverlayUnmount, Description: "unmounts the checkpoint union"},
		)
	}
	if cfg.Build.CacheEnabled {
		reqs = append(reqs, Requirement{
			Name:        "Compiler cache",
			Command:     cfg.Build.CacheTool,
			Description: "wraps CC/CXX for the default driver",
			Optional:    true,
		})
	}
	return reqs
}

// CheckBinaries evaluates the provided requirements and reports availability.
func CheckBinaries(requirements []Requirement) []Status {
	results := make([]Status, 0, len(requirements))
	for _, req := range requirements {
		cmd := strings.TrimSpace(req.Command)
		status := Status{
			Name:        req.Name,
			Command:     cmd,
			Description: strings.TrimSpace(req.Description),
			Optional:    req.Optional,
		}
		if cmd == "" {
			status.Available = false
			status.Detail = "command not configured"
			results = append(results, status)
			continue
		}
		if _, err := exec.LookPath(cmd); err != nil {
			status.Available = false
			status.Detail = fmt.Sprintf("binary %q not found", cmd)
			results = append(results, status)
			continue
		}
		status.Available = true
		results = append(results, status)
	}
	return results
}

// MissingRequired returns the names of unavailable non-optional dependencies.
func MissingRequired(statuses []Status) []string {
	var missing []string
	for _, status := range statuses {
		if !status.Available && !status.Optional {
			missing = append(missing, status.Name)
		}
	}
	return missing
}
