package archive

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/util"
	"github.com/klauspost/compress/zip"
)

// List returns the sorted entry names of the zip archive at path.
func List(fsys billy.Filesystem, path string) ([]string, error) {
	info, err := fsys.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("failed to stat archive: %w", err)
	}

	file, err := fsys.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open archive: %w", err)
	}
	defer file.Close()

	reader, err := zip.NewReader(file, info.Size())
	if err != nil {
		return nil, fmt.Errorf("failed to read archive: %w", err)
	}

	names := make([]string, 0, len(reader.File))
	for _, f := range reader.File {
		names = append(names, f.Name)
	}
	slices.Sort(names)
	return names, nil
}

// Files filters archive entry names down to regular files.
func Files(entries []string) []string {
	files := make([]string, 0, len(entries))
	for _, e := range entries {
		if !strings.HasSuffix(e, "/") {
			files = append(files, e)
		}
	}
	return files
}

// Tree returns the sorted, slash-separated relative paths of every regular
// file under dir, skipping anything matched by excludes. An exclude matches a
// path relative to dir either exactly, as a parent directory, or as a
// filepath.Match pattern against the whole relative path.
func Tree(fsys billy.Filesystem, dir string, excludes []string) ([]string, error) {
	var files []string

	err := util.Walk(fsys, dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}

		relPath, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}

		if relPath == "." {
			return nil
		}

		if matchesAnyPattern(relPath, excludes) {
			if info.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		if info.Mode().IsRegular() {
			files = append(files, filepath.ToSlash(relPath))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk directory: %w", err)
	}

	slices.Sort(files)
	return files, nil
}

func matchesAnyPattern(path string, patterns []string) bool {
	for _, pattern := range patterns {
		pattern = filepath.Clean(pattern)
		if path == pattern {
			return true
		}
		if matched, _ := filepath.Match(pattern, path); matched {
			return true
		}
		if strings.HasPrefix(path, pattern+string(filepath.Separator)) {
			return true
		}
	}
	return false
}
