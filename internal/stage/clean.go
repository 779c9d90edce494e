package stage

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"packager/internal/apperrors"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/util"
)

// Clean removes the output directory so each run starts from a clean slate.
type Clean struct {
	Dir string // Output directory, relative to the project root
}

func (s *Clean) StageName() string { return NameClean }
func (s *Clean) DependsOn() string { return "" }

// Apply deletes the output directory and everything beneath it.
// A missing directory is not an error.
func (s *Clean) Apply(ctx context.Context, fsys billy.Filesystem) *Result {
	_, err := fsys.Lstat(s.Dir)
	if errors.Is(err, os.ErrNotExist) {
		slog.Debug("Output directory absent", "path", s.Dir)
		return succeeded(&CleanSummary{Removed: false})
	}
	if err != nil {
		return failed(apperrors.Delete(NameClean, s.Dir, err))
	}

	if err := util.RemoveAll(fsys, s.Dir); err != nil {
		return failed(apperrors.Delete(NameClean, s.Dir, err))
	}

	slog.Debug("Removed output directory", "path", s.Dir)
	return succeeded(&CleanSummary{Removed: true})
}
