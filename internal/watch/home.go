package watch

import (
	"context"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/starford/threadlinking/internal/pending"
	"github.com/starford/threadlinking/internal/threadstore"
)

// Store document kinds reported by WatchHome.
const (
	KindThreads = "threads"
	KindPending = "pending"
)

// ChangeFunc is called after a store document is replaced on disk.
type ChangeFunc func(kind string)

// WatchHome watches the store directory and reports replacements of the thread
// index and the pending list. Writes land through a rename, so both Create and
// Write events count. Bursts are collapsed per document.
func WatchHome(ctx context.Context, home string, logger *slog.Logger, cb ChangeFunc) error {
	return watchHome(ctx, home, DefaultDebounce, logger, cb)
}

func watchHome(ctx context.Context, home string, debounce time.Duration, logger *slog.Logger, cb ChangeFunc) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	if err := w.Add(home); err != nil {
		return err
	}
	logger.Info("home watcher: started", slog.String("home", home))

	d := newDebouncer(debounce)
	defer d.stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info("home watcher: stopped")
			return nil

		case kind := <-d.ready:
			logger.Debug("home watcher: changed", slog.String("kind", kind))
			if cb != nil {
				cb(kind)
			}

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if ev.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove) == 0 {
				continue
			}
			switch filepath.Base(ev.Name) {
			case threadstore.FileName:
				d.touch(KindThreads)
			case pending.FileName:
				d.touch(KindPending)
			}

		case watchErr, ok := <-w.Errors:
			if !ok {
				return nil
			}
			logger.Error("home watcher: error", slog.String("error", watchErr.Error()))
		}
	}
}
