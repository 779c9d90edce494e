// Package testutil provides filesystem fixtures and fault injection for tests.
package testutil

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/util"
)

// WriteFiles creates each file with its content, creating parent directories as needed.
func WriteFiles(tb testing.TB, fsys billy.Filesystem, files map[string]string) {
	tb.Helper()
	for name, content := range files {
		if err := fsys.MkdirAll(filepath.Dir(name), 0o755); err != nil {
			tb.Fatalf("MkdirAll(%s) failed: %v", filepath.Dir(name), err)
		}
		if err := util.WriteFile(fsys, name, []byte(content), 0o644); err != nil {
			tb.Fatalf("WriteFile(%s) failed: %v", name, err)
		}
	}
}

// ReadFile returns the content of name or fails the test.
func ReadFile(tb testing.TB, fsys billy.Filesystem, name string) string {
	tb.Helper()
	data, err := util.ReadFile(fsys, name)
	if err != nil {
		tb.Fatalf("ReadFile(%s) failed: %v", name, err)
	}
	return string(data)
}

// FaultFS wraps a billy.Filesystem and fails mutating operations on locked
// path prefixes with os.ErrPermission, the way a read-only directory would.
type FaultFS struct {
	billy.Filesystem

	mu     sync.RWMutex
	locked []string
}

// FaultOption is a functional option for NewFaultFS.
type FaultOption func(*FaultFS)

// WithLocked locks the given path prefixes from the start.
func WithLocked(prefixes ...string) FaultOption {
	return func(f *FaultFS) {
		f.locked = append(f.locked, prefixes...)
	}
}

// NewFaultFS wraps base.
func NewFaultFS(base billy.Filesystem, opts ...FaultOption) *FaultFS {
	f := &FaultFS{Filesystem: base}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Lock makes every path equal to or beneath prefix read-only.
func (f *FaultFS) Lock(prefix string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.locked = append(f.locked, filepath.Clean(prefix))
}

// Unlock clears all locks.
func (f *FaultFS) Unlock() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.locked = nil
}

func (f *FaultFS) check(op, path string) error {
	f.mu.RLock()
	defer f.mu.RUnlock()

	path = filepath.Clean(path)
	for _, prefix := range f.locked {
		if path == prefix || strings.HasPrefix(path, prefix+string(filepath.Separator)) {
			return &os.PathError{Op: op, Path: path, Err: os.ErrPermission}
		}
	}
	return nil
}

// Create implements billy.Basic.
func (f *FaultFS) Create(name string) (billy.File, error) {
	if err := f.check("create", name); err != nil {
		return nil, err
	}
	return f.Filesystem.Create(name)
}

// OpenFile implements billy.Basic. Read-only opens are always allowed.
func (f *FaultFS) OpenFile(name string, flag int, perm os.FileMode) (billy.File, error) {
	if flag&(os.O_WRONLY|os.O_RDWR|os.O_CREATE|os.O_TRUNC|os.O_APPEND) != 0 {
		if err := f.check("open", name); err != nil {
			return nil, err
		}
	}
	return f.Filesystem.OpenFile(name, flag, perm)
}

// Remove implements billy.Basic.
func (f *FaultFS) Remove(name string) error {
	if err := f.check("remove", name); err != nil {
		return err
	}
	return f.Filesystem.Remove(name)
}

// Rename implements billy.Basic.
func (f *FaultFS) Rename(from, to string) error {
	if err := f.check("rename", from); err != nil {
		return err
	}
	if err := f.check("rename", to); err != nil {
		return err
	}
	return f.Filesystem.Rename(from, to)
}

// MkdirAll implements billy.Dir.
func (f *FaultFS) MkdirAll(name string, perm os.FileMode) error {
	if err := f.check("mkdir", name); err != nil {
		return err
	}
	return f.Filesystem.MkdirAll(name, perm)
}

// TempFile implements billy.TempFile.
func (f *FaultFS) TempFile(dir, prefix string) (billy.File, error) {
	if err := f.check("createtemp", filepath.Join(dir, prefix)); err != nil {
		return nil, err
	}
	return f.Filesystem.TempFile(dir, prefix)
}
