package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory configuration for a build run.
type Paths struct {
	SourcesRoot string `toml:"sources_root"`
	OutputRoot  string `toml:"output_root"`
	ListsDir    string `toml:"lists_dir"`
	StateDir    string `toml:"state_dir"`
	LogDir      string `toml:"log_dir"`
}

// Build contains dispatch and driver settings.
type Build struct {
	// LoadLimit is the loadavg ceiling above which no new job is dispatched.
	// Zero means twice the CPU count.
	LoadLimit float64 `toml:"load_limit"`
	// Parallelism is passed to the default build driver (-j). Zero means
	// CPU count + 1.
	Parallelism  int    `toml:"parallelism"`
	DriverOpts   string `toml:"driver_opts"`
	CacheEnabled bool   `toml:"cache_enabled"`
	CacheTool    string `toml:"cache_tool"`
}

// Checkpoint contains output-tree staging settings.
type Checkpoint struct {
	// Mechanism selects the staging backend: "shadow" (portable
	// copy-and-merge) or "overlay" (external overlay mount tools).
	Mechanism string `toml:"mechanism"`
}

// Tools names the collaborator binaries invoked per job.
type Tools struct {
	Driver         string `toml:"driver"`
	IDLGen         string `toml:"idlgen"`
	Compiler       string `toml:"compiler"`
	Sync           string `toml:"sync"`
	OverlayMount   string `toml:"overlay_mount"`
	OverlayUnmount string `toml:"overlay_unmount"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all configuration values for forge.
//
// Configuration sections by subsystem:
//   - Paths: source, output, list, state, and log directories
//   - Build: load ceiling, driver parallelism, cache settings
//   - Checkpoint: output-tree staging mechanism
//   - Tools: collaborator binary names
//   - Logging: log format and level
type Config struct {
	Paths      Paths      `toml:"paths"`
	Build      Build      `toml:"build"`
	Checkpoint Checkpoint `toml:"checkpoint"`
	Tools      Tools      `toml:"tools"`
	Logging    Logging    `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/forge/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned config
// has all path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("forge.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates the directories a run writes into. The sources
// root is deliberately excluded: it must already exist.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.OutputRoot, c.Paths.StateDir, c.Paths.LogDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// LockPath returns the singleton run-lock file path.
func (c *Config) LockPath() string {
	return filepath.Join(c.Paths.StateDir, "forge.lock")
}

// JournalPath returns the run journal database path.
func (c *Config) JournalPath() string {
	return filepath.Join(c.Paths.StateDir, "journal.db")
}

// ScratchRoot returns the directory holding checkpoint scratch trees.
func (c *Config) ScratchRoot() string {
	return filepath.Join(c.Paths.StateDir, "scratch")
}

// DescriptorPath returns the job list file for a stage and platform.
func (c *Config) DescriptorPath(stage, platform string) string {
	return filepath.Join(c.Paths.ListsDir, fmt.Sprintf("%s.%s.lst", stage, platform))
}

// CatalogPath returns the platform catalog file location.
func (c *Config) CatalogPath() string {
	return filepath.Join(c.Paths.ListsDir, "platforms.yaml")
}

// WriteSample writes the embedded sample configuration to path, refusing to
// overwrite an existing file.
func WriteSample(path string) error {
	expanded, err := expandPath(path)
	if err != nil {
		return err
	}
	if _, err := os.Stat(expanded); err == nil {
		return fmt.Errorf("config file already exists at %s", expanded)
	} else if !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("stat config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(expanded), 0o755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	return os.WriteFile(expanded, []byte(sampleConfig), 0o644)
}

func expandPath(path string) (string, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return "", nil
	}
	if trimmed == "~" || strings.HasPrefix(trimmed, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if trimmed == "~" {
			return home, nil
		}
		return filepath.Join(home, trimmed[2:]), nil
	}
	return filepath.Abs(trimmed)
}
