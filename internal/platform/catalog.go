// Package platform resolves target platform identifiers against the optional
// platforms.yaml catalog: which descriptor lists a platform uses, where its
// sources live, and what extra environment its collaborator tools need.
package platform

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"gopkg.in/yaml.v3"

	"forge/internal/config"
)

// Entry customizes one platform.
type Entry struct {
	// ListsPrefix replaces the platform id in descriptor file names
	// (<stage>.<prefix>.lst). Empty keeps the id.
	ListsPrefix string `yaml:"lists_prefix"`
	// SourcesRoot overrides the configured sources root.
	SourcesRoot string `yaml:"sources_root"`
	// Env is exported to every collaborator invocation for this platform.
	Env map[string]string `yaml:"env"`
}

// Catalog is the parsed platforms.yaml. An empty catalog admits any platform
// id whose descriptor files exist.
type Catalog struct {
	Platforms map[string]Entry `yaml:"platforms"`
}

// Resolved is the per-run view of a platform.
type Resolved struct {
	ID          string
	ListsPrefix string
	SourcesRoot string
	Env         []string
}

// LoadCatalog reads the catalog at path. A missing file yields an empty
// catalog; a malformed one is a configuration error.
func LoadCatalog(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return &Catalog{}, nil
		}
		return nil, fmt.Errorf("read platform catalog: %w", err)
	}
	var catalog Catalog
	if err := yaml.Unmarshal(data, &catalog); err != nil {
		return nil, fmt.Errorf("parse platform catalog %s: %w", path, err)
	}
	return &catalog, nil
}

// Resolve validates the platform id and applies catalog overrides.
func (c *Catalog) Resolve(cfg *config.Config, id string) (Resolved, error) {
	resolved := Resolved{
		ID:          id,
		ListsPrefix: id,
		SourcesRoot: cfg.Paths.SourcesRoot,
	}

	if len(c.Platforms) == 0 {
		return resolved, nil
	}

	entry, ok := c.Platforms[id]
	if !ok {
		return Resolved{}, fmt.Errorf("unknown platform %q (catalog lists: %v)", id, c.ids())
	}
	if entry.ListsPrefix != "" {
		resolved.ListsPrefix = entry.ListsPrefix
	}
	if entry.SourcesRoot != "" {
		resolved.SourcesRoot = entry.SourcesRoot
	}
	keys := make([]string, 0, len(entry.Env))
	for key := range entry.Env {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		resolved.Env = append(resolved.Env, key+"="+entry.Env[key])
	}
	return resolved, nil
}

// DescriptorPath returns the job list file for a stage under this platform.
func (r Resolved) DescriptorPath(cfg *config.Config, stage string) string {
	return filepath.Join(cfg.Paths.ListsDir, fmt.Sprintf("%s.%s.lst", stage, r.ListsPrefix))
}

func (c *Catalog) ids() []string {
	ids := make([]string, 0, len(c.Platforms))
	for id := range c.Platforms {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
