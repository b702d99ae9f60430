// Package threadservice implements the thread operations shared by the
// CLI, the MCP server and the HTTP API. Every mutation is a single locked
// update of the thread index; reads load a fresh snapshot.
package threadservice

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/starford/threadlinking/internal/apperr"
	"github.com/starford/threadlinking/internal/embedding"
	"github.com/starford/threadlinking/internal/models"
	"github.com/starford/threadlinking/internal/pending"
	"github.com/starford/threadlinking/internal/semantic"
	"github.com/starford/threadlinking/internal/storage"
	"github.com/starford/threadlinking/internal/threadstore"
)

// DefaultBackgroundTimeout bounds a single background indexing task.
const DefaultBackgroundTimeout = 10 * time.Second

// Config wires a Service.
type Config struct {
	// Home is the base directory holding every document.
	Home          string
	Locker        storage.Locker
	PendingExpiry time.Duration
	// Embedder is nil when semantic search is disabled.
	Embedder          embedding.Embedder
	Provider          string
	BackgroundTimeout time.Duration
	Logger            *slog.Logger
	Version           string
	// Now replaces time.Now, for tests.
	Now func() time.Time
}

// Service coordinates the thread store, the pending store and the
// semantic index.
type Service struct {
	home      string
	threads   *threadstore.Store
	pending   *pending.Store
	index     *semantic.Index
	embedder  embedding.Embedder
	provider  string
	bgTimeout time.Duration
	logger    *slog.Logger
	version   string
	now       func() time.Time

	bg sync.WaitGroup
}

// New creates a Service rooted at cfg.Home.
func New(cfg Config) *Service {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	bgTimeout := cfg.BackgroundTimeout
	if bgTimeout <= 0 {
		bgTimeout = DefaultBackgroundTimeout
	}
	version := cfg.Version
	if version == "" {
		version = "dev"
	}
	return &Service{
		home:    cfg.Home,
		threads: threadstore.New(cfg.Home, cfg.Locker, logger),
		pending: pending.New(cfg.Home, cfg.Locker, logger,
			pending.WithExpiry(cfg.PendingExpiry),
			pending.WithClock(now)),
		index:     semantic.New(filepath.Join(cfg.Home, semantic.DirName)),
		embedder:  cfg.Embedder,
		provider:  cfg.Provider,
		bgTimeout: bgTimeout,
		logger:    logger,
		version:   version,
		now:       now,
	}
}

// Home returns the base directory.
func (s *Service) Home() string { return s.home }

// ThreadsPath returns the thread index document.
func (s *Service) ThreadsPath() string { return s.threads.Path() }

// PendingPath returns the pending document.
func (s *Service) PendingPath() string { return s.pending.Path() }

// Close releases the semantic index handle. Call Wait first to let
// background work finish.
func (s *Service) Close() error {
	return s.index.Close()
}

// Go runs fn in the background. Failures and panics are logged and never
// reach the caller that scheduled the work.
func (s *Service) Go(ctx context.Context, name string, fn func(context.Context) error) {
	s.bg.Add(1)
	go func() {
		defer s.bg.Done()
		defer func() {
			if r := recover(); r != nil {
				s.logger.Warn("background task panicked",
					slog.String("task", name),
					slog.Any("panic", r))
			}
		}()
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.bgTimeout)
		defer cancel()
		if err := fn(ctx); err != nil {
			s.logger.Debug("background task failed",
				slog.String("task", name),
				slog.String("error", err.Error()))
		}
	}()
}

// Wait blocks until background work finishes or ctx is done.
func (s *Service) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.bg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Service) timestamp() time.Time {
	return s.now().UTC()
}

func threadNotFound(tag string) error {
	return apperr.NotFound(apperr.CodeThreadNotFound, "thread '%s' not found", tag)
}

func reject(err error) storage.Result[models.ThreadIndex] {
	return storage.Reject[models.ThreadIndex](err)
}

func (s *Service) loadThreads() (models.ThreadIndex, error) {
	idx, err := s.threads.Load()
	if err != nil {
		return nil, fmt.Errorf("threadservice: load threads: %w", err)
	}
	return idx, nil
}

func nonNilSlice[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
