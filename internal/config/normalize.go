package config

import (
	"fmt"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeTools()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if c.Paths.SourcesRoot, err = expandPath(c.Paths.SourcesRoot); err != nil {
		return fmt.Errorf("paths.sources_root: %w", err)
	}
	if c.Paths.OutputRoot, err = expandPath(c.Paths.OutputRoot); err != nil {
		return fmt.Errorf("paths.output_root: %w", err)
	}
	if c.Paths.ListsDir, err = expandPath(c.Paths.ListsDir); err != nil {
		return fmt.Errorf("paths.lists_dir: %w", err)
	}
	if c.Paths.StateDir, err = expandPath(c.Paths.StateDir); err != nil {
		return fmt.Errorf("paths.state_dir: %w", err)
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	return nil
}

func (c *Config) normalizeTools() {
	fallback := func(value *string, def string) {
		if strings.TrimSpace(*value) == "" {
			*value = def
		}
	}
	fallback(&c.Tools.Driver, defaultDriverBinary)
	fallback(&c.Tools.IDLGen, defaultIDLGenBinary)
	fallback(&c.Tools.Compiler, defaultCompilerBinary)
	fallback(&c.Tools.Sync, defaultSyncBinary)
	fallback(&c.Tools.OverlayMount, defaultOverlayMount)
	fallback(&c.Tools.OverlayUnmount, defaultOverlayUnmount)
	fallback(&c.Build.CacheTool, defaultCacheTool)
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
	c.Checkpoint.Mechanism = strings.ToLower(strings.TrimSpace(c.Checkpoint.Mechanism))
	if c.Checkpoint.Mechanism == "" {
		c.Checkpoint.Mechanism = defaultMechanism
	}
}
