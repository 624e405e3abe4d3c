package config

import "runtime"

const (
	defaultSourcesRoot    = "~/forge/sources"
	defaultOutputRoot     = "~/forge/output"
	defaultListsDir       = "~/forge/lists"
	defaultStateDir       = "~/.local/share/forge/state"
	defaultLogDir         = "~/.local/share/forge/logs"
	defaultLogFormat      = "console"
	defaultLogLevel       = "info"
	defaultCacheTool      = "ccache"
	defaultDriverBinary   = "make"
	defaultIDLGenBinary   = "idlgen"
	defaultCompilerBinary = "cmpc"
	defaultSyncBinary     = "rsync"
	defaultOverlayMount   = "fuse-overlayfs"
	defaultOverlayUnmount = "fusermount3"
	defaultMechanism      = "shadow"
)

// DefaultLoadLimit is the loadavg ceiling applied when none is configured.
func DefaultLoadLimit() float64 {
	return float64(2 * runtime.NumCPU())
}

// DefaultParallelism is the driver -j value applied when none is configured.
func DefaultParallelism() int {
	return runtime.NumCPU() + 1
}

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			SourcesRoot: defaultSourcesRoot,
			OutputRoot:  defaultOutputRoot,
			ListsDir:    defaultListsDir,
			StateDir:    defaultStateDir,
			LogDir:      defaultLogDir,
		},
		Build: Build{
			CacheTool: defaultCacheTool,
		},
		Checkpoint: Checkpoint{
			Mechanism: defaultMechanism,
		},
		Tools: Tools{
			Driver:         defaultDriverBinary,
			IDLGen:         defaultIDLGenBinary,
			Compiler:       defaultCompilerBinary,
			Sync:           defaultSyncBinary,
			OverlayMount:   defaultOverlayMount,
			OverlayUnmount: defaultOverlayUnmount,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}

// EffectiveLoadLimit resolves the configured ceiling, falling back to the default.
func (c *Config) EffectiveLoadLimit() float64 {
	if c.Build.LoadLimit > 0 {
		return c.Build.LoadLimit
	}
	return DefaultLoadLimit()
}

// EffectiveParallelism resolves the driver parallelism, falling back to the default.
func (c *Config) EffectiveParallelism() int {
	if c.Build.Parallelism > 0 {
		return c.Build.Parallelism
	}
	return DefaultParallelism()
}
