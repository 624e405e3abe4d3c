package config

import (
	"errors"
	"fmt"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validatePaths(); err != nil {
		return err
	}
	if err := c.validateBuild(); err != nil {
		return err
	}
	if err := c.validateCheckpoint(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validatePaths() error {
	if c.Paths.SourcesRoot == "" {
		return errors.New("paths.sources_root must be set")
	}
	if c.Paths.OutputRoot == "" {
		return errors.New("paths.output_root must be set")
	}
	if c.Paths.ListsDir == "" {
		return errors.New("paths.lists_dir must be set")
	}
	if c.Paths.OutputRoot == c.Paths.SourcesRoot {
		return errors.New("paths.output_root must differ from paths.sources_root")
	}
	return nil
}

func (c *Config) validateBuild() error {
	if c.Build.LoadLimit < 0 {
		return errors.New("build.load_limit must not be negative")
	}
	if c.Build.Parallelism < 0 {
		return errors.New("build.parallelism must not be negative")
	}
	return nil
}

func (c *Config) validateCheckpoint() error {
	switch c.Checkpoint.Mechanism {
	case "shadow", "overlay":
		return nil
	default:
		return fmt.Errorf("checkpoint.mechanism: unsupported value %q (expected \"shadow\" or \"overlay\")", c.Checkpoint.Mechanism)
	}
}
