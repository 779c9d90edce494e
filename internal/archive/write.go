// Package archive writes and inspects the zip archive produced by a packaging run.
package archive

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/util"
	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/zip"
)

// Stats summarizes a written archive.
type Stats struct {
	Entries int   `json:"entries"`
	Files   int   `json:"files"`
	Bytes   int64 `json:"bytes"` // Size of the archive file on disk
}

// Write zips the contents of srcDir into dest using deflate at the given level.
// Entry names are slash-separated and relative to srcDir; directories get a
// trailing slash. The archive is written to a temporary sibling and renamed
// over dest only once complete, so a failed write leaves any previous archive
// untouched.
func Write(fsys billy.Filesystem, srcDir, dest string, level int) (*Stats, error) {
	info, err := fsys.Stat(srcDir)
	if err != nil {
		return nil, fmt.Errorf("failed to stat source: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("source %s is not a directory", srcDir)
	}

	tmp, err := fsys.TempFile(filepath.Dir(dest), tempPrefix(dest))
	if err != nil {
		return nil, fmt.Errorf("failed to create archive file: %w", err)
	}
	tmpName := tmp.Name()

	abort := func(err error) (*Stats, error) {
		tmp.Close()
		if rmErr := fsys.Remove(tmpName); rmErr != nil {
			slog.Debug("Failed to remove partial archive", "path", tmpName, "error", rmErr)
		}
		return nil, err
	}

	zipWriter := zip.NewWriter(tmp)
	zipWriter.RegisterCompressor(zip.Deflate, func(out io.Writer) (io.WriteCloser, error) {
		return flate.NewWriter(out, level)
	})

	stats, err := archiveDir(zipWriter, fsys, srcDir)
	if err != nil {
		zipWriter.Close()
		return abort(err)
	}
	if err := zipWriter.Close(); err != nil {
		return abort(fmt.Errorf("failed to finish archive: %w", err))
	}
	if err := tmp.Close(); err != nil {
		return abort(fmt.Errorf("failed to close archive file: %w", err))
	}

	if err := fsys.Rename(tmpName, dest); err != nil {
		return abort(fmt.Errorf("failed to move archive into place: %w", err))
	}

	written, err := fsys.Stat(dest)
	if err != nil {
		return nil, fmt.Errorf("failed to stat archive: %w", err)
	}
	stats.Bytes = written.Size()

	slog.Debug("Wrote archive", "src", srcDir, "dest", dest, "entries", stats.Entries, "bytes", stats.Bytes)
	return stats, nil
}

func archiveDir(zw *zip.Writer, fsys billy.Filesystem, srcDir string) (*Stats, error) {
	stats := &Stats{}

	err := util.Walk(fsys, srcDir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}

		relPath, err := filepath.Rel(srcDir, path)
		if err != nil {
			return err
		}

		if relPath == "." {
			return nil
		}

		name := filepath.ToSlash(relPath)

		if info.IsDir() {
			header, err := zip.FileInfoHeader(info)
			if err != nil {
				return fmt.Errorf("failed to create zip header: %w", err)
			}
			header.Name = name + "/"
			header.Method = zip.Store
			if _, err := zw.CreateHeader(header); err != nil {
				return fmt.Errorf("failed to write zip header: %w", err)
			}
			stats.Entries++
			return nil
		}

		if !info.Mode().IsRegular() {
			slog.Debug("Skipping archive entry", "name", name, "mode", info.Mode().String())
			return nil
		}

		if err := archiveFile(zw, fsys, path, name, info); err != nil {
			return err
		}
		stats.Entries++
		stats.Files++
		return nil
	})
	if err != nil {
		return nil, err
	}

	return stats, nil
}

func archiveFile(zw *zip.Writer, fsys billy.Filesystem, path, name string, info os.FileInfo) error {
	header, err := zip.FileInfoHeader(info)
	if err != nil {
		return fmt.Errorf("failed to create zip header: %w", err)
	}
	header.Name = name
	header.Method = zip.Deflate

	w, err := zw.CreateHeader(header)
	if err != nil {
		return fmt.Errorf("failed to write zip header: %w", err)
	}

	file, err := fsys.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	if _, err := io.Copy(w, file); err != nil {
		return fmt.Errorf("failed to write %s to zip: %w", name, err)
	}

	return nil
}

// tempPrefix is the name prefix of the file an archive is staged in before
// it is renamed onto dest.
func tempPrefix(dest string) string {
	return "." + filepath.Base(dest) + "."
}

// TempPattern returns a glob matching the staging files Write leaves next to
// dest when it is interrupted.
func TempPattern(dest string) string {
	return filepath.Join(filepath.Dir(dest), tempPrefix(dest)+"*")
}
