package stage

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"packager/internal/apperrors"
	"path/filepath"
	"strings"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/util"
)

// Thin strips the exclusion list from the staged copy.
//
// The list is a denylist: each entry names one path relative to Dir and
// matches only that path, never a file of the same name deeper in the tree.
// Entries containing glob metacharacters are expanded against Dir.
type Thin struct {
	Dir      string
	Excludes []string
}

func (s *Thin) StageName() string { return NameThin }
func (s *Thin) DependsOn() string { return NameCopy }

// Apply deletes every listed path that exists. Absent paths are not an error.
func (s *Thin) Apply(ctx context.Context, fsys billy.Filesystem) *Result {
	summary := &ThinSummary{Removed: []string{}}

	for _, exclude := range s.Excludes {
		targets, err := s.expand(fsys, exclude)
		if err != nil {
			return failed(apperrors.Delete(NameThin, exclude, err))
		}

		for _, target := range targets {
			rel, err := filepath.Rel(s.Dir, target)
			if err != nil {
				return failed(apperrors.Delete(NameThin, target, err))
			}

			if _, err := fsys.Lstat(target); err != nil {
				if errors.Is(err, os.ErrNotExist) {
					continue
				}
				return failed(apperrors.Delete(NameThin, target, err))
			}

			if err := util.RemoveAll(fsys, target); err != nil {
				return failed(apperrors.Delete(NameThin, target, err))
			}

			summary.Removed = append(summary.Removed, filepath.ToSlash(rel))
			slog.Debug("Removed excluded path", "path", target)
		}
	}

	return succeeded(summary)
}

func (s *Thin) expand(fsys billy.Filesystem, exclude string) ([]string, error) {
	target := fsys.Join(s.Dir, filepath.Clean(exclude))
	if !strings.ContainsAny(exclude, `*?[\`) {
		return []string{target}, nil
	}
	return util.Glob(fsys, target)
}
