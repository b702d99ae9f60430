//go:build !unix

package storage

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"
)

// staleLockAge bounds how long an abandoned lock file can block writers.
const staleLockAge = time.Minute

// tryLock creates the lock file exclusively. A failed attempt creates
// nothing, and release removes the file.
func tryLock(path string) (func() error, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, filePerm)
	if err != nil {
		if errors.Is(err, fs.ErrExist) {
			if info, statErr := os.Stat(path); statErr == nil && time.Since(info.ModTime()) > staleLockAge {
				_ = os.Remove(path)
			}
			return nil, errLockBusy
		}
		return nil, fmt.Errorf("storage: create lock: %w", err)
	}
	_, _ = f.WriteString(strconv.Itoa(os.Getpid()))
	if err := f.Close(); err != nil {
		_ = os.Remove(path)
		return nil, fmt.Errorf("storage: close lock: %w", err)
	}
	return func() error {
		if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return err
		}
		return nil
	}, nil
}
