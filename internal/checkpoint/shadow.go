package checkpoint

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"forge/internal/fileutil"
)

// shadowStager is the portable mechanism: the union view is a private copy of
// the output tree, and commit computes the delta against a manifest captured
// at setup, applying additions, modifications, and deletions file-for-file.
type shadowStager struct {
	lower       string
	scratchRoot string

	scratch  string
	union    string
	manifest map[string]string
}

func newShadowStager(outputRoot, scratchRoot string) *shadowStager {
	return &shadowStager{lower: outputRoot, scratchRoot: scratchRoot}
}

func (s *shadowStager) Setup(ctx context.Context) error {
	if err := os.MkdirAll(s.scratchRoot, 0o755); err != nil {
		return fmt.Errorf("create scratch root: %w", err)
	}
	scratch, err := os.MkdirTemp(s.scratchRoot, "shadow-")
	if err != nil {
		return fmt.Errorf("create scratch dir: %w", err)
	}
	s.scratch = scratch
	s.union = filepath.Join(scratch, "union")

	manifest, err := snapshotTree(s.lower)
	if err != nil {
		return fmt.Errorf("snapshot output tree: %w", err)
	}
	s.manifest = manifest

	if err := os.MkdirAll(s.union, 0o755); err != nil {
		return err
	}
	if err := fileutil.CopyTree(s.lower, s.union); err != nil {
		return fmt.Errorf("seed union view: %w", err)
	}
	return nil
}

func (s *shadowStager) UnionPath() string {
	return s.union
}

func (s *shadowStager) Commit(ctx context.Context) error {
	seen := make(map[string]struct{}, len(s.manifest))

	err := filepath.WalkDir(s.union, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		rel, err := filepath.Rel(s.union, path)
		if err != nil {
			return err
		}
		if rel == "." {
			return nil
		}
		target := filepath.Join(s.lower, rel)

		if entry.IsDir() {
			info, err := entry.Info()
			if err != nil {
				return err
			}
			return os.MkdirAll(target, info.Mode().Perm())
		}

		digest, err := entryDigest(path, entry)
		if err != nil {
			return err
		}
		seen[rel] = struct{}{}
		if prior, ok := s.manifest[rel]; ok && prior == digest {
			return nil
		}
		if entry.Type()&fs.ModeSymlink != 0 {
			dest, err := os.Readlink(path)
			if err != nil {
				return err
			}
			if err := os.Remove(target); err != nil && !os.IsNotExist(err) {
				return err
			}
			return os.Symlink(dest, target)
		}
		return fileutil.CopyFile(path, target)
	})
	if err != nil {
		return fmt.Errorf("apply staged changes: %w", err)
	}

	// Files present at setup but gone from the union were deleted by a job.
	var removed []string
	for rel := range s.manifest {
		if _, ok := seen[rel]; !ok {
			removed = append(removed, rel)
		}
	}
	sort.Sort(sort.Reverse(sort.StringSlice(removed)))
	for _, rel := range removed {
		if err := os.Remove(filepath.Join(s.lower, rel)); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("apply staged deletion of %s: %w", rel, err)
		}
	}
	return nil
}

func (s *shadowStager) Teardown() error {
	if s.scratch == "" {
		return nil
	}
	return os.RemoveAll(s.scratch)
}

// snapshotTree records a digest per regular file and symlink under root.
func snapshotTree(root string) (map[string]string, error) {
	manifest := make(map[string]string)
	err := filepath.WalkDir(root, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if entry.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		digest, err := entryDigest(path, entry)
		if err != nil {
			return err
		}
		manifest[rel] = digest
		return nil
	})
	if err != nil {
		return nil, err
	}
	return manifest, nil
}

func entryDigest(path string, entry fs.DirEntry) (string, error) {
	if entry.Type()&fs.ModeSymlink != 0 {
		dest, err := os.Readlink(path)
		if err != nil {
			return "", err
		}
		return "link:" + dest, nil
	}
	return fileutil.HashFile(path)
}
