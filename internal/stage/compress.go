package stage

import (
	"context"
	"packager/internal/apperrors"
	"packager/internal/archive"

	"github.com/go-git/go-billy/v5"
)

// Compress zips the thinned output directory into the archive at the project root.
// This is the terminal stage.
type Compress struct {
	Dir     string
	Archive string // Archive path, relative to the project root
	Level   int    // Deflate level
}

func (s *Compress) StageName() string { return NameCompress }
func (s *Compress) DependsOn() string { return NameThin }

// Apply writes every remaining entry under Dir into a single deflate archive,
// replacing any previous archive of the same name.
func (s *Compress) Apply(ctx context.Context, fsys billy.Filesystem) *Result {
	stats, err := archive.Write(fsys, s.Dir, s.Archive, s.Level)
	if err != nil {
		return failed(apperrors.Archive("compress.write", s.Archive, err))
	}

	return succeeded(&CompressSummary{
		Archive: s.Archive,
		Entries: stats.Entries,
		Files:   stats.Files,
		Bytes:   stats.Bytes,
	})
}
