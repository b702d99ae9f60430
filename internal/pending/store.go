// Package pending persists files that were edited but not yet linked to a
// thread. Entries expire lazily once their first sighting is older than
// the configured expiry.
package pending

import (
	"context"
	"log/slog"
	"path/filepath"
	"slices"
	"time"

	"github.com/starford/threadlinking/internal/models"
	"github.com/starford/threadlinking/internal/storage"
)

// FileName is the pending document inside the home directory.
const FileName = "pending.json"

// DefaultExpiry drops entries first seen more than 30 days ago.
const DefaultExpiry = 30 * 24 * time.Hour

// Store reads and mutates pending.json.
type Store struct {
	doc    *storage.Document[models.PendingState]
	expiry time.Duration
	now    func() time.Time
}

// Option configures a Store.
type Option func(*Store)

// WithExpiry overrides DefaultExpiry.
func WithExpiry(d time.Duration) Option {
	return func(s *Store) {
		if d > 0 {
			s.expiry = d
		}
	}
}

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// New returns a Store rooted at home.
func New(home string, locker storage.Locker, logger *slog.Logger, opts ...Option) *Store {
	s := &Store{expiry: DefaultExpiry, now: time.Now}
	for _, o := range opts {
		o(s)
	}
	s.doc = &storage.Document[models.PendingState]{
		Path:    filepath.Join(home, FileName),
		Default: func() models.PendingState { return models.PendingState{Tracked: []models.PendingFile{}} },
		Normalize: func(st models.PendingState) models.PendingState {
			return s.dropExpired(st)
		},
		Locker: locker,
		Logger: logger,
	}
	return s
}

// Path returns the document location.
func (s *Store) Path() string { return s.doc.Path }

// ModTime returns the last write time, zero when the document does not exist.
func (s *Store) ModTime() time.Time { return s.doc.ModTime() }

// Load returns the unexpired entries without locking.
func (s *Store) Load() (models.PendingState, error) {
	return s.doc.Load()
}

// Track records an edit of path at now: the first sighting inserts an entry
// with count 1, later ones bump count and last_modified.
func (s *Store) Track(ctx context.Context, path string, now time.Time) (models.PendingFile, error) {
	now = now.UTC()
	var tracked models.PendingFile
	_, err := s.doc.Update(ctx, func(st models.PendingState) storage.Result[models.PendingState] {
		if i := st.Find(path); i >= 0 {
			st.Tracked[i].LastModified = now
			st.Tracked[i].Count++
			tracked = st.Tracked[i]
		} else {
			tracked = models.PendingFile{Path: path, FirstSeen: now, LastModified: now, Count: 1}
			st.Tracked = append(st.Tracked, tracked)
		}
		return storage.Replace(st)
	})
	return tracked, err
}

// Remove drops path. It reports whether an entry was removed; a missing
// entry leaves the document untouched.
func (s *Store) Remove(ctx context.Context, path string) (bool, error) {
	removed := false
	_, err := s.doc.Update(ctx, func(st models.PendingState) storage.Result[models.PendingState] {
		i := st.Find(path)
		if i < 0 {
			return storage.Keep[models.PendingState]()
		}
		st.Tracked = slices.Delete(st.Tracked, i, i+1)
		removed = true
		return storage.Replace(st)
	})
	return removed, err
}

// Clear empties the list and returns how many entries were dropped.
func (s *Store) Clear(ctx context.Context) (int, error) {
	n := 0
	_, err := s.doc.Update(ctx, func(st models.PendingState) storage.Result[models.PendingState] {
		n = len(st.Tracked)
		st.Tracked = []models.PendingFile{}
		return storage.Replace(st)
	})
	return n, err
}

func (s *Store) dropExpired(st models.PendingState) models.PendingState {
	cutoff := s.now().Add(-s.expiry)
	kept := make([]models.PendingFile, 0, len(st.Tracked))
	for _, f := range st.Tracked {
		if f.Path == "" || !f.FirstSeen.After(cutoff) {
			continue
		}
		kept = append(kept, f)
	}
	st.Tracked = kept
	return st
}
