package stage

import (
	"context"
	"io"
	"log/slog"
	"os"
	"packager/internal/apperrors"
	"path/filepath"
	"strings"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/util"
)

// Copy mirrors the project tree into the output directory.
type Copy struct {
	Dir        string // Output directory, relative to the project root
	SkipHidden bool   // Skip dot-prefixed files and directories
}

func (s *Copy) StageName() string { return NameCopy }
func (s *Copy) DependsOn() string { return NameClean }

// Apply recursively copies every entry under the project root into Dir,
// preserving relative paths and file modes. Dir itself is never descended
// into. Symlinks to regular files are copied as their content; other
// non-regular entries are skipped.
func (s *Copy) Apply(ctx context.Context, fsys billy.Filesystem) *Result {
	outDir := filepath.Clean(s.Dir)
	summary := &CopySummary{}

	if err := fsys.MkdirAll(outDir, 0o755); err != nil {
		return failed(apperrors.Copy("copy.mkdir", outDir, err))
	}

	err := util.Walk(fsys, ".", func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return apperrors.Copy("copy.walk", path, err)
		}

		relPath := filepath.Clean(path)
		if relPath == "." {
			return nil
		}

		if isWithin(relPath, outDir) {
			if info.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		if s.SkipHidden && strings.HasPrefix(info.Name(), ".") {
			summary.Skipped++
			if info.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		target := fsys.Join(outDir, relPath)

		switch mode := info.Mode(); {
		case mode.IsDir():
			if err := fsys.MkdirAll(target, 0o755); err != nil {
				return apperrors.Copy("copy.mkdir", target, err)
			}
			summary.Dirs++

		case mode.IsRegular():
			n, err := copyFile(fsys, path, target, mode.Perm())
			if err != nil {
				return err
			}
			summary.Files++
			summary.Bytes += n

		case mode&os.ModeSymlink != 0:
			resolved, err := fsys.Stat(path)
			if err != nil {
				return apperrors.Copy("copy.stat", path, err)
			}
			if !resolved.Mode().IsRegular() {
				slog.Debug("Skipping symlink to non-regular file", "path", path, "mode", resolved.Mode().String())
				summary.Skipped++
				return nil
			}
			n, err := copyFile(fsys, path, target, resolved.Mode().Perm())
			if err != nil {
				return err
			}
			summary.Files++
			summary.Bytes += n

		default:
			slog.Debug("Skipping non-regular file", "path", path, "mode", mode.String())
			summary.Skipped++
		}

		return nil
	})
	if err != nil {
		return failed(err)
	}

	slog.Debug("Copied project tree", "dest", outDir, "files", summary.Files, "dirs", summary.Dirs, "bytes", summary.Bytes)
	return succeeded(summary)
}

func copyFile(fsys billy.Filesystem, src, dst string, perm os.FileMode) (int64, error) {
	in, err := fsys.Open(src)
	if err != nil {
		return 0, apperrors.Copy("copy.open", src, err)
	}
	defer in.Close()

	out, err := fsys.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, perm)
	if err != nil {
		return 0, apperrors.Copy("copy.create", dst, err)
	}

	n, err := io.Copy(out, in)
	if err != nil {
		out.Close()
		return n, apperrors.Copy("copy.write", dst, err)
	}
	if err := out.Close(); err != nil {
		return n, apperrors.Copy("copy.close", dst, err)
	}

	return n, nil
}

// isWithin reports whether path equals dir or lies beneath it.
func isWithin(path, dir string) bool {
	return path == dir || strings.HasPrefix(path, dir+string(filepath.Separator))
}
