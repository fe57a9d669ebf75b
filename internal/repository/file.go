package repository

import (
	"fmt"
	"os"
	"path/filepath"
)

// File is a collection file on local disk.
type File struct {
	path string
	mode os.FileMode
}

// OpenFile checks that path names an existing regular file that the process
// can read and write. Symlinks are resolved so writes replace the target.
func OpenFile(path string) (*File, error) {
	resolved, err := filepath.EvalSymlinks(path)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", path, err)
	}
	info, err := os.Stat(resolved)
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", resolved, err)
	}
	if !info.Mode().IsRegular() {
		return nil, fmt.Errorf("%s is not a regular file", resolved)
	}
	if err := checkAccess(resolved); err != nil {
		return nil, fmt.Errorf("access %s: %w", resolved, err)
	}
	return &File{path: resolved, mode: info.Mode().Perm()}, nil
}

// Path returns the resolved file path.
func (f *File) Path() string { return f.path }

// Read returns the whole file.
func (f *File) Read() ([]byte, error) {
	return os.ReadFile(f.path)
}

// Write replaces the file contents. The data goes to a temporary file in the
// same directory which is synced and renamed over the original.
func (f *File) Write(data []byte) error {
	dir := filepath.Dir(f.path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(f.path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp: %w", err)
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write temp: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("sync temp: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp: %w", err)
	}
	if err := os.Chmod(tmpName, f.mode); err != nil {
		return fmt.Errorf("chmod temp: %w", err)
	}
	if err := os.Rename(tmpName, f.path); err != nil {
		return fmt.Errorf("rename temp: %w", err)
	}
	syncDir(dir)
	return nil
}

func syncDir(dir string) {
	d, err := os.Open(dir)
	if err != nil {
		return
	}
	_ = d.Sync()
	_ = d.Close()
}
