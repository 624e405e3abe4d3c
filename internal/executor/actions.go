package executor

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"forge/internal/logging"
	"forge/internal/tools"
)

// runFileAction dispatches a requested filename by extension. Extending the
// build surface means adding a case here and nothing else.
func (e *Executor) runFileAction(ctx context.Context, sourceDir, mirror, file string) error {
	switch strings.ToLower(filepath.Ext(file)) {
	case ".idl":
		return e.runInterfaceGeneration(ctx, sourceDir, mirror, file)
	case ".comp":
		return e.runComponentCompile(ctx, sourceDir, mirror, file)
	default:
		return fmt.Errorf("unsupported file type %q", file)
	}
}

// runInterfaceGeneration regenerates derived header and binding artifacts
// from an interface description. There is no freshness check: bindings are
// cheap and always re-derived.
func (e *Executor) runInterfaceGeneration(ctx context.Context, sourceDir, mirror, file string) error {
	err := e.opts.Runner.Run(ctx, tools.Command{
		Binary: e.opts.Tools.IDLGen,
		Args:   []string{"-O", mirror, filepath.Join(sourceDir, file)},
		Dir:    sourceDir,
		Env:    e.toolEnv(mirror),
	})
	if err != nil {
		return fmt.Errorf("generate interface %s: %w", file, err)
	}
	return nil
}

// runComponentCompile compiles a component description into its class
// description, dependency file, and header. When every artifact is strictly
// newer than the source the job is a no-op. A failure partway through must
// not leave partial artifacts behind, so their removal is registered before
// the first tool runs and canceled only on success.
func (e *Executor) runComponentCompile(ctx context.Context, sourceDir, mirror, file string) error {
	source := filepath.Join(sourceDir, file)
	sourceInfo, err := os.Stat(source)
	if err != nil {
		return fmt.Errorf("component source %s: %w", file, err)
	}

	stem := strings.TrimSuffix(file, filepath.Ext(file))
	artifacts := []string{
		filepath.Join(mirror, stem+".cd"),
		filepath.Join(mirror, stem+".dep"),
		filepath.Join(mirror, stem+".h"),
	}

	if artifactsFresh(artifacts, sourceInfo.ModTime()) {
		e.logger.Debug("component artifacts up to date",
			logging.String("file", file),
			logging.String(logging.FieldEventType, "component_fresh"),
		)
		return nil
	}

	guard := e.opts.Stack.Push("remove partial artifacts for "+file, func() error {
		for _, artifact := range artifacts {
			if err := os.Remove(artifact); err != nil && !os.IsNotExist(err) {
				return err
			}
		}
		return nil
	})

	err = e.opts.Runner.Run(ctx, tools.Command{
		Binary: e.opts.Tools.Compiler,
		Args:   []string{"-O", mirror, source},
		Dir:    sourceDir,
		Env:    e.toolEnv(mirror),
	})
	if err == nil {
		err = e.opts.Runner.Run(ctx, tools.Command{
			Binary: e.opts.Tools.IDLGen,
			Args:   []string{"-O", mirror, "--from-cd", filepath.Join(mirror, stem+".cd")},
			Dir:    sourceDir,
			Env:    e.toolEnv(mirror),
		})
	}
	if err != nil {
		if cleanupErr := guard.Close(); cleanupErr != nil {
			e.logger.Warn("failed to remove partial artifacts", logging.Error(cleanupErr))
		}
		return fmt.Errorf("compile component %s: %w", file, err)
	}

	guard.Cancel()
	return nil
}

// artifactsFresh reports whether every artifact exists and is strictly newer
// than the source modification time.
func artifactsFresh(artifacts []string, sourceMod time.Time) bool {
	for _, artifact := range artifacts {
		info, err := os.Stat(artifact)
		if err != nil {
			return false
		}
		if !info.ModTime().After(sourceMod) {
			return false
		}
	}
	return true
}
