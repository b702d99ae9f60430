package threadservice

import (
	"context"
	"log/slog"
	"os"
	"slices"
	"time"

	"github.com/starford/threadlinking/internal/apperr"
	"github.com/starford/threadlinking/internal/models"
	"github.com/starford/threadlinking/internal/storage"
	"github.com/starford/threadlinking/internal/validate"
)

// AttachResult reports a link between a thread and a file.
type AttachResult struct {
	Tag           string `json:"tag"`
	Path          string `json:"path"`
	AlreadyLinked bool   `json:"already_linked"`
	// FileExists is false when the path was linked without existing on disk.
	FileExists bool `json:"file_exists"`
}

// Attach links a file to an existing thread and drops it from the pending
// list. Linking an already linked file reports AlreadyLinked and leaves the
// thread index unchanged.
func (s *Service) Attach(ctx context.Context, rawTag, rawPath string) (*AttachResult, error) {
	tag, err := validate.Tag(rawTag)
	if err != nil {
		return nil, err
	}
	path, err := validate.ResolvePath(rawPath)
	if err != nil {
		return nil, err
	}
	_, statErr := os.Stat(path)

	now := s.timestamp()
	res := AttachResult{Tag: tag, Path: path, FileExists: statErr == nil}
	_, err = s.threads.Update(ctx, func(idx models.ThreadIndex) storage.Result[models.ThreadIndex] {
		t, ok := idx[tag]
		if !ok {
			return reject(threadNotFound(tag))
		}
		if t.HasFile(path) {
			res.AlreadyLinked = true
			return storage.Keep[models.ThreadIndex]()
		}
		t.LinkedFiles = append(t.LinkedFiles, path)
		t.Touch(now)
		return storage.Replace(idx)
	})
	if err != nil {
		return nil, err
	}

	// Best effort: List hides linked paths even when removal fails.
	if _, err := s.pending.Remove(ctx, path); err != nil {
		s.logger.Warn("remove attached file from pending failed",
			slog.String("path", path),
			slog.String("error", err.Error()))
	}
	return &res, nil
}

// DetachResult reports a removed link.
type DetachResult struct {
	Tag  string `json:"tag"`
	Path string `json:"path"`
}

// Detach unlinks a file from a thread.
func (s *Service) Detach(ctx context.Context, rawTag, rawPath string) (*DetachResult, error) {
	tag, err := validate.Tag(rawTag)
	if err != nil {
		return nil, err
	}
	path, err := validate.ResolvePath(rawPath)
	if err != nil {
		return nil, err
	}

	now := s.timestamp()
	_, err = s.threads.Update(ctx, func(idx models.ThreadIndex) storage.Result[models.ThreadIndex] {
		t, ok := idx[tag]
		if !ok {
			return reject(threadNotFound(tag))
		}
		i := slices.Index(t.LinkedFiles, path)
		if i < 0 {
			return reject(apperr.NotFound(apperr.CodeFileNotLinked, "file '%s' is not linked to thread '%s'", path, tag))
		}
		t.LinkedFiles = slices.Delete(t.LinkedFiles, i, i+1)
		t.Touch(now)
		return storage.Replace(idx)
	})
	if err != nil {
		return nil, err
	}
	return &DetachResult{Tag: tag, Path: path}, nil
}

// ExplainHit is one thread linking the explained file.
type ExplainHit struct {
	Tag          string           `json:"tag"`
	Summary      string           `json:"summary"`
	Snippets     []models.Snippet `json:"snippets"`
	ChatURL      string           `json:"chat_url,omitempty"`
	DateCreated  time.Time        `json:"date_created"`
	DateModified time.Time        `json:"date_modified"`
}

// ExplainResult lists the threads linking a file.
type ExplainResult struct {
	Path    string       `json:"path"`
	Threads []ExplainHit `json:"threads"`
}

// Explain returns every thread that links the resolved path.
func (s *Service) Explain(rawPath string) (*ExplainResult, error) {
	path, err := validate.ResolvePath(rawPath)
	if err != nil {
		return nil, err
	}
	idx, err := s.loadThreads()
	if err != nil {
		return nil, err
	}
	res := &ExplainResult{Path: path, Threads: []ExplainHit{}}
	for _, tag := range idx.ThreadsForFile(path) {
		t := idx[tag]
		res.Threads = append(res.Threads, ExplainHit{
			Tag:          tag,
			Summary:      t.Summary,
			Snippets:     t.Snippets,
			ChatURL:      t.ChatURL,
			DateCreated:  t.DateCreated,
			DateModified: t.LastActivity(),
		})
	}
	return res, nil
}

// Track records an edit of a file that is not linked to any thread yet.
// Missing files and directories are ignored. It reports whether the file
// was recorded.
func (s *Service) Track(ctx context.Context, rawPath string) (bool, error) {
	path, err := validate.ResolvePath(rawPath)
	if err != nil {
		return false, err
	}
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return false, nil
	}
	idx, err := s.loadThreads()
	if err != nil {
		return false, err
	}
	if idx.IsLinked(path) {
		return false, nil
	}
	if _, err := s.pending.Track(ctx, path, s.timestamp()); err != nil {
		return false, err
	}
	return true, nil
}
