package checkpoint

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"forge/internal/fileutil"
	"forge/internal/tools"
)

// overlayStager mounts a copy-on-write union over the output tree using the
// configured overlay tools. The tools are collaborators like any other: only
// their exit status is consumed. Commit applies the upper layer to the real
// tree, honoring whiteout entries as deletions.
type overlayStager struct {
	lower       string
	scratchRoot string
	runner      tools.Runner
	mountTool   string
	unmountTool string

	scratch string
	upper   string
	work    string
	union   string
	mounted bool
}

func newOverlayStager(outputRoot, scratchRoot string, runner tools.Runner, mountTool, unmountTool string) *overlayStager {
	return &overlayStager{
		lower:       outputRoot,
		scratchRoot: scratchRoot,
		runner:      runner,
		mountTool:   mountTool,
		unmountTool: unmountTool,
	}
}

func (s *overlayStager) Setup(ctx context.Context) error {
	if s.runner == nil {
		return errors.New("overlay mechanism requires a tool runner")
	}
	if err := os.MkdirAll(s.scratchRoot, 0o755); err != nil {
		return fmt.Errorf("create scratch root: %w", err)
	}
	scratch, err := os.MkdirTemp(s.scratchRoot, "overlay-")
	if err != nil {
		return fmt.Errorf("create scratch dir: %w", err)
	}
	s.scratch = scratch
	s.upper = filepath.Join(scratch, "upper")
	s.work = filepath.Join(scratch, "work")
	s.union = filepath.Join(scratch, "union")
	for _, dir := range []string{s.upper, s.work, s.union} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}

	err = s.runner.Run(ctx, tools.Command{
		Binary: s.mountTool,
		Args: []string{
			"-o", fmt.Sprintf("lowerdir=%s,upperdir=%s,workdir=%s", s.lower, s.upper, s.work),
			s.union,
		},
	})
	if err != nil {
		return fmt.Errorf("mount overlay: %w", err)
	}
	s.mounted = true
	return nil
}

func (s *overlayStager) UnionPath() string {
	return s.union
}

func (s *overlayStager) Commit(ctx context.Context) error {
	return filepath.WalkDir(s.upper, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		rel, err := filepath.Rel(s.upper, path)
		if err != nil {
			return err
		}
		if rel == "." {
			return nil
		}
		target := filepath.Join(s.lower, rel)

		switch {
		case entry.IsDir():
			info, err := entry.Info()
			if err != nil {
				return err
			}
			return os.MkdirAll(target, info.Mode().Perm())
		case entry.Type()&fs.ModeCharDevice != 0:
			// Overlay whiteout: the job deleted this path.
			if err := os.RemoveAll(target); err != nil {
				return fmt.Errorf("apply staged deletion of %s: %w", rel, err)
			}
			return nil
		case entry.Type()&fs.ModeSymlink != 0:
			dest, err := os.Readlink(path)
			if err != nil {
				return err
			}
			if err := os.Remove(target); err != nil && !os.IsNotExist(err) {
				return err
			}
			return os.Symlink(dest, target)
		default:
			return fileutil.CopyFile(path, target)
		}
	})
}

func (s *overlayStager) Teardown() error {
	if s.scratch == "" {
		return nil
	}
	if s.mounted {
		err := s.runner.Run(context.Background(), tools.Command{
			Binary: s.unmountTool,
			Args:   []string{"-u", s.union},
		})
		if err != nil {
			return fmt.Errorf("unmount overlay: %w", err)
		}
		s.mounted = false
	}
	return os.RemoveAll(s.scratch)
}
