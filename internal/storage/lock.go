package storage

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/starford/threadlinking/internal/apperr"
)

// Default lock timing. Exposed through configuration (store.lock_*).
const (
	DefaultLockTimeout         = 5 * time.Second
	DefaultLockInitialInterval = 10 * time.Millisecond
	DefaultLockMaxInterval     = 250 * time.Millisecond
)

// errLockBusy is returned by tryLock while another holder owns the lock.
var errLockBusy = errors.New("lock busy")

// Locker acquires exclusive advisory locks scoped to a document path.
// The zero value uses the default timing.
type Locker struct {
	Timeout         time.Duration
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

func (l Locker) withDefaults() Locker {
	if l.Timeout <= 0 {
		l.Timeout = DefaultLockTimeout
	}
	if l.InitialInterval <= 0 {
		l.InitialInterval = DefaultLockInitialInterval
	}
	if l.MaxInterval <= 0 {
		l.MaxInterval = DefaultLockMaxInterval
	}
	if l.InitialInterval > l.MaxInterval {
		l.InitialInterval = l.MaxInterval
	}
	return l
}

// LockPath returns the lock file guarding path.
func LockPath(path string) string {
	return path + ".lock"
}

// Acquire blocks until it holds the lock for path, retrying with jittered
// exponential backoff. When Timeout elapses first it returns an error
// wrapping apperr.ErrLockTimeout. The returned func releases the lock and
// must be called exactly once.
func (l Locker) Acquire(ctx context.Context, path string) (func() error, error) {
	l = l.withDefaults()
	lockPath := LockPath(path)
	if err := EnsureDir(filepath.Dir(lockPath)); err != nil {
		return nil, err
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = l.InitialInterval
	b.MaxInterval = l.MaxInterval
	b.Multiplier = 2
	b.RandomizationFactor = 0.5

	unlock, err := backoff.Retry(ctx, func() (func() error, error) {
		unlock, err := tryLock(lockPath)
		if err == nil {
			return unlock, nil
		}
		if errors.Is(err, errLockBusy) {
			return nil, err
		}
		return nil, backoff.Permanent(err)
	}, backoff.WithBackOff(b), backoff.WithMaxElapsedTime(l.Timeout))
	if err != nil {
		if errors.Is(err, errLockBusy) {
			return nil, fmt.Errorf("storage: acquire %s after %s: %w", lockPath, l.Timeout, apperr.ErrLockTimeout)
		}
		return nil, fmt.Errorf("storage: acquire %s: %w", lockPath, err)
	}
	return unlock, nil
}
