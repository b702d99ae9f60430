package watch

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce is how long a path must stay quiet before it is reported.
const DefaultDebounce = 200 * time.Millisecond

// FileFunc receives the absolute path of a file that was created or written.
type FileFunc func(path string)

// Matcher reports whether a root-relative, slash-separated path is ignored.
type Matcher struct {
	patterns []string
}

// NewMatcher validates the doublestar patterns.
func NewMatcher(patterns []string) (*Matcher, error) {
	for _, p := range patterns {
		if !doublestar.ValidatePattern(p) {
			return nil, &PatternError{Pattern: p}
		}
	}
	return &Matcher{patterns: patterns}, nil
}

// PatternError is returned for a malformed ignore glob.
type PatternError struct {
	Pattern string
}

func (e *PatternError) Error() string {
	return "watch: invalid ignore pattern " + e.Pattern
}

// Match checks a file path.
func (m *Matcher) Match(rel string) bool {
	if m == nil {
		return false
	}
	rel = filepath.ToSlash(rel)
	for _, p := range m.patterns {
		if ok, _ := doublestar.Match(p, rel); ok {
			return true
		}
	}
	return false
}

// MatchDir checks a directory; patterns ending in /** also cover the directory itself.
func (m *Matcher) MatchDir(rel string) bool {
	return m.Match(rel) || m.Match(filepath.ToSlash(rel)+"/")
}

// Watch starts a recursive fsnotify watcher on root and calls onFile for every
// regular file that is created or written, once per quiet period. Directories
// created at runtime are added to the watch list and their existing files are
// reported. Watch returns when ctx is cancelled.
func Watch(ctx context.Context, root string, ignore []string, logger *slog.Logger, onFile FileFunc) error {
	return watch(ctx, root, ignore, DefaultDebounce, logger, onFile)
}

func watch(ctx context.Context, root string, ignore []string, debounce time.Duration, logger *slog.Logger, onFile FileFunc) error {
	root, err := filepath.Abs(root)
	if err != nil {
		return err
	}
	matcher, err := NewMatcher(ignore)
	if err != nil {
		return err
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	if err := addDirsRecursive(w, root, root, matcher); err != nil {
		return err
	}
	logger.Info("watcher: started", slog.String("root", root))

	d := newDebouncer(debounce)
	defer d.stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info("watcher: stopped")
			return nil

		case p := <-d.ready:
			if onFile != nil {
				onFile(p)
			}

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if ev.Op&(fsnotify.Create|fsnotify.Write) == 0 {
				continue
			}
			rel, relErr := filepath.Rel(root, ev.Name)
			if relErr != nil {
				continue
			}
			info, statErr := os.Stat(ev.Name)
			if statErr != nil {
				continue
			}

			if info.IsDir() {
				if ev.Op&fsnotify.Create == 0 || matcher.MatchDir(rel) {
					continue
				}
				if addErr := addDirsRecursive(w, root, ev.Name, matcher); addErr != nil {
					logger.Warn("watcher: add new dir failed",
						slog.String("path", ev.Name),
						slog.String("error", addErr.Error()))
					continue
				}
				logger.Debug("watcher: watching new dir", slog.String("path", ev.Name))
				scanDir(root, ev.Name, matcher, d.touch)
				continue
			}

			if !info.Mode().IsRegular() || matcher.Match(rel) {
				continue
			}
			d.touch(ev.Name)

		case watchErr, ok := <-w.Errors:
			if !ok {
				return nil
			}
			logger.Error("watcher: error", slog.String("error", watchErr.Error()))
		}
	}
}

// debouncer delays each path until it has been quiet for interval.
type debouncer struct {
	interval time.Duration
	ready    chan string

	mu      sync.Mutex
	timers  map[string]*time.Timer
	stopped bool
	done    chan struct{}
}

func newDebouncer(interval time.Duration) *debouncer {
	return &debouncer{
		interval: interval,
		ready:    make(chan string),
		timers:   make(map[string]*time.Timer),
		done:     make(chan struct{}),
	}
}

func (d *debouncer) touch(path string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopped {
		return
	}
	if t, ok := d.timers[path]; ok {
		t.Reset(d.interval)
		return
	}
	var t *time.Timer
	t = time.AfterFunc(d.interval, func() {
		d.mu.Lock()
		if d.timers[path] != t {
			d.mu.Unlock()
			return
		}
		delete(d.timers, path)
		d.mu.Unlock()
		select {
		case d.ready <- path:
		case <-d.done:
		}
	})
	d.timers[path] = t
}

func (d *debouncer) stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stopped = true
	for p, t := range d.timers {
		t.Stop()
		delete(d.timers, p)
	}
	close(d.done)
}

// scanDir reports files already present in a directory that appeared at runtime.
func scanDir(root, dir string, matcher *Matcher, report func(string)) {
	_ = filepath.WalkDir(dir, func(p string, entry fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		rel, relErr := filepath.Rel(root, p)
		if relErr != nil {
			return nil
		}
		if entry.IsDir() {
			if p != dir && matcher.MatchDir(rel) {
				return filepath.SkipDir
			}
			return nil
		}
		if entry.Type().IsRegular() && !matcher.Match(rel) {
			report(p)
		}
		return nil
	})
}

// addDirsRecursive adds dir and all its non-ignored subdirectories to the watcher.
func addDirsRecursive(w *fsnotify.Watcher, root, dir string, matcher *Matcher) error {
	return filepath.WalkDir(dir, func(p string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !entry.IsDir() {
			return nil
		}
		if p != dir {
			if rel, relErr := filepath.Rel(root, p); relErr == nil && matcher.MatchDir(rel) {
				return filepath.SkipDir
			}
		}
		return w.Add(p)
	})
}
