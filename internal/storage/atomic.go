// Package storage provides crash-safe JSON document persistence shared by
// independent processes: atomic file replacement, advisory locking and a
// locked read-modify-write primitive.
package storage

import (
	"fmt"
	"os"
	"path/filepath"
)

const (
	dirPerm  os.FileMode = 0o700
	filePerm os.FileMode = 0o600
)

// EnsureDir creates dir (and parents) with owner-only permissions. An
// existing dir is tightened to owner-only as well.
func EnsureDir(dir string) error {
	if err := os.MkdirAll(dir, dirPerm); err != nil {
		return fmt.Errorf("storage: mkdir %s: %w", dir, err)
	}
	info, err := os.Stat(dir)
	if err != nil {
		return fmt.Errorf("storage: stat %s: %w", dir, err)
	}
	if info.Mode().Perm() != dirPerm {
		if err := os.Chmod(dir, dirPerm); err != nil {
			return fmt.Errorf("storage: chmod %s: %w", dir, err)
		}
	}
	return nil
}

// WriteFileAtomic replaces path with content: uniquely named temp sibling →
// fsync → rename. Readers observe either the previous file or the complete
// new one, never a truncated write.
func WriteFileAtomic(path string, content []byte) error {
	dir := filepath.Dir(path)
	if err := EnsureDir(dir); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("storage: create temp: %w", err)
	}
	tmpName := tmp.Name()

	// Clean up on any failure path.
	success := false
	defer func() {
		if !success {
			_ = tmp.Close()
			_ = os.Remove(tmpName)
		}
	}()

	if _, err := tmp.Write(content); err != nil {
		return fmt.Errorf("storage: write temp: %w", err)
	}
	if err := tmp.Chmod(filePerm); err != nil {
		return fmt.Errorf("storage: chmod temp: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("storage: fsync: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("storage: close temp: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("storage: rename: %w", err)
	}
	success = true

	if err := os.Chmod(path, filePerm); err != nil {
		return fmt.Errorf("storage: chmod %s: %w", path, err)
	}
	return nil
}
