package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"time"

	"github.com/starford/threadlinking/internal/apperr"
)

// Outcome tags what a transform decided.
type Outcome int

const (
	// Unchanged leaves the document as it is; nothing is written.
	Unchanged Outcome = iota
	// Updated persists the transform's value.
	Updated
	// Rejected aborts with a reason; nothing is written.
	Rejected
)

// Result is the tagged value returned by an Update transform.
type Result[T any] struct {
	outcome Outcome
	value   T
	err     error
}

// Keep leaves the document untouched.
func Keep[T any]() Result[T] { return Result[T]{outcome: Unchanged} }

// Replace persists v as the new document.
func Replace[T any](v T) Result[T] { return Result[T]{outcome: Updated, value: v} }

// Reject aborts the update; Update returns err after releasing the lock.
func Reject[T any](err error) Result[T] { return Result[T]{outcome: Rejected, err: err} }

// Outcome reports the transform's decision.
func (r Result[T]) Outcome() Outcome { return r.outcome }

// Err returns the rejection reason, if any.
func (r Result[T]) Err() error { return r.err }

// Document is a JSON document shared between processes. Reads are tolerant
// of missing and corrupt files; writes go exclusively through Update.
type Document[T any] struct {
	// Path is the document location.
	Path string
	// Default builds the value used when the file is missing or corrupt.
	Default func() T
	// Normalize, if set, is applied to every loaded value.
	Normalize func(T) T
	Locker    Locker
	Logger    *slog.Logger
}

// BackupPath returns where a corrupt document's bytes are preserved.
func (d *Document[T]) BackupPath() string {
	return d.Path + ".backup"
}

// Load reads the document without taking the lock. A missing file yields
// the default. Malformed content is copied to BackupPath and the default is
// returned; only a failure to write that backup is reported, wrapping
// apperr.ErrCorrupt.
func (d *Document[T]) Load() (T, error) {
	data, err := os.ReadFile(d.Path)
	if errors.Is(err, fs.ErrNotExist) {
		return d.empty(), nil
	}
	if err != nil {
		var zero T
		return zero, fmt.Errorf("storage: read %s: %w", d.Path, err)
	}
	return d.decode(data)
}

// ModTime returns the document's modification time, or the zero time when
// it does not exist.
func (d *Document[T]) ModTime() time.Time {
	info, err := os.Stat(d.Path)
	if err != nil {
		return time.Time{}
	}
	return info.ModTime()
}

// Update runs one locked read-modify-write cycle: acquire the lock, load,
// apply fn, persist when fn returns Replace, release. fn must be free of
// I/O. The lock is released on every path, including a panicking fn.
//
// Concurrent Updates against the same path apply in some serial order and
// each observes every Update that finished before it acquired the lock.
func (d *Document[T]) Update(ctx context.Context, fn func(current T) Result[T]) (T, error) {
	var zero T
	unlock, err := d.Locker.Acquire(ctx, d.Path)
	if err != nil {
		return zero, err
	}
	defer func() {
		if uerr := unlock(); uerr != nil {
			d.logger().Warn("release lock failed",
				slog.String("path", d.Path),
				slog.String("error", uerr.Error()))
		}
	}()

	current, err := d.Load()
	if err != nil {
		return zero, err
	}

	res := fn(current)
	switch res.outcome {
	case Updated:
		if err := d.write(res.value); err != nil {
			return current, err
		}
		return res.value, nil
	case Rejected:
		return current, res.err
	default:
		return current, nil
	}
}

func (d *Document[T]) write(v T) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("storage: encode %s: %w", d.Path, err)
	}
	data = append(data, '\n')
	return WriteFileAtomic(d.Path, data)
}

func (d *Document[T]) decode(data []byte) (T, error) {
	var v T
	err := json.Unmarshal(data, &v)
	if err == nil && bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		err = errors.New("document is null")
	}
	if err == nil {
		return d.normalize(v), nil
	}

	backup := d.BackupPath()
	if werr := WriteFileAtomic(backup, data); werr != nil {
		var zero T
		return zero, fmt.Errorf("storage: back up %s: %w", d.Path, errors.Join(apperr.ErrCorrupt, werr))
	}
	d.logger().Warn("corrupt document backed up, continuing with empty state",
		slog.String("path", d.Path),
		slog.String("backup", backup),
		slog.String("error", err.Error()))
	return d.empty(), nil
}

func (d *Document[T]) empty() T {
	var v T
	if d.Default != nil {
		v = d.Default()
	}
	return d.normalize(v)
}

func (d *Document[T]) normalize(v T) T {
	if d.Normalize != nil {
		return d.Normalize(v)
	}
	return v
}

func (d *Document[T]) logger() *slog.Logger {
	if d.Logger != nil {
		return d.Logger
	}
	return slog.Default()
}
