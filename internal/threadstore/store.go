// Package threadstore persists the thread index document.
package threadstore

import (
	"context"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/starford/threadlinking/internal/models"
	"github.com/starford/threadlinking/internal/storage"
)

// FileName is the thread index document inside the home directory.
const FileName = "thread_index.json"

// Store reads and mutates thread_index.json. Every mutation is a single
// locked Update; there is no in-memory cache between calls.
type Store struct {
	doc *storage.Document[models.ThreadIndex]
}

// New returns a Store rooted at home.
func New(home string, locker storage.Locker, logger *slog.Logger) *Store {
	return &Store{doc: &storage.Document[models.ThreadIndex]{
		Path:      filepath.Join(home, FileName),
		Default:   func() models.ThreadIndex { return models.ThreadIndex{} },
		Normalize: models.ThreadIndex.Normalize,
		Locker:    locker,
		Logger:    logger,
	}}
}

// Path returns the document location.
func (s *Store) Path() string { return s.doc.Path }

// BackupPath returns where a corrupt index is preserved.
func (s *Store) BackupPath() string { return s.doc.BackupPath() }

// ModTime returns the last write time, zero when the index does not exist.
func (s *Store) ModTime() time.Time { return s.doc.ModTime() }

// Load returns a fresh snapshot without locking. Callers must not write it
// back; use Update for mutations.
func (s *Store) Load() (models.ThreadIndex, error) {
	return s.doc.Load()
}

// Update applies fn to the current index under the document lock. fn
// signals not-found and conflict conditions with storage.Reject.
func (s *Store) Update(ctx context.Context, fn func(models.ThreadIndex) storage.Result[models.ThreadIndex]) (models.ThreadIndex, error) {
	return s.doc.Update(ctx, fn)
}
