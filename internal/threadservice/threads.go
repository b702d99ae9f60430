package threadservice

import (
	"context"
	"strings"
	"unicode/utf8"

	"github.com/starford/threadlinking/internal/apperr"
	"github.com/starford/threadlinking/internal/models"
	"github.com/starford/threadlinking/internal/storage"
	"github.com/starford/threadlinking/internal/validate"
)

// EmptySummary is stored for threads created without one.
const EmptySummary = "(empty thread)"

// autoSummaryLength bounds a summary derived from snippet content.
const autoSummaryLength = 80

// CreateInput describes a new thread.
type CreateInput struct {
	Tag     string
	Summary string
	ChatURL string
}

// CreateResult reports a created thread.
type CreateResult struct {
	Tag    string         `json:"tag"`
	Thread *models.Thread `json:"thread"`
}

// Create adds an empty thread. An existing tag is a conflict.
func (s *Service) Create(ctx context.Context, in CreateInput) (*CreateResult, error) {
	tag, err := validate.Tag(in.Tag)
	if err != nil {
		return nil, err
	}
	chatURL, err := validate.URL(in.ChatURL)
	if err != nil {
		return nil, err
	}
	summary := validate.Sanitize(in.Summary, validate.MaxSummaryLength)
	if summary == "" {
		summary = EmptySummary
	}

	now := s.timestamp()
	thread := &models.Thread{
		Summary:      summary,
		Snippets:     []models.Snippet{},
		LinkedFiles:  []string{},
		ChatURL:      chatURL,
		DateCreated:  now,
		DateModified: now,
	}
	_, err = s.threads.Update(ctx, func(idx models.ThreadIndex) storage.Result[models.ThreadIndex] {
		if _, ok := idx[tag]; ok {
			return reject(apperr.Conflict(apperr.CodeThreadExists, "thread '%s' already exists", tag))
		}
		idx[tag] = thread
		return storage.Replace(idx)
	})
	if err != nil {
		return nil, err
	}
	return &CreateResult{Tag: tag, Thread: thread}, nil
}

// SnippetInput describes a snippet to append.
type SnippetInput struct {
	Tag     string
	Content string
	// Source defaults to validate.DetectSource.
	Source string
	URL    string
	Tags   []string
	// Summary is used only when the thread has to be created.
	Summary string
}

// SnippetResult reports where a snippet landed.
type SnippetResult struct {
	Tag          string `json:"tag"`
	SnippetIndex int    `json:"snippet_index"`
	Created      bool   `json:"created"`
	SnippetCount int    `json:"snippet_count"`
}

// AddSnippet appends a snippet, creating the thread when it does not exist.
// The semantic index, when built, is updated in the background.
func (s *Service) AddSnippet(ctx context.Context, in SnippetInput) (*SnippetResult, error) {
	tag, err := validate.Tag(in.Tag)
	if err != nil {
		return nil, err
	}
	content := validate.Sanitize(in.Content, validate.MaxSnippetLength)
	if content == "" {
		return nil, apperr.Validation(apperr.CodeEmptyContent, "snippet content cannot be empty")
	}
	url, err := validate.URL(in.URL)
	if err != nil {
		return nil, err
	}
	source := validate.Sanitize(in.Source, validate.MaxTagLength)
	if source == "" {
		source = validate.DetectSource()
	}
	summary := validate.Sanitize(in.Summary, validate.MaxSummaryLength)
	if summary == "" {
		summary = deriveSummary(content)
	}

	now := s.timestamp()
	snippet := models.Snippet{
		Content:   content,
		Source:    source,
		URL:       url,
		Timestamp: now,
	}
	if tags := validate.NormalizeTags(in.Tags); len(tags) > 0 {
		snippet.Tags = tags
	}

	var res SnippetResult
	_, err = s.threads.Update(ctx, func(idx models.ThreadIndex) storage.Result[models.ThreadIndex] {
		t, ok := idx[tag]
		if !ok {
			t = &models.Thread{
				Summary:      summary,
				Snippets:     []models.Snippet{},
				LinkedFiles:  []string{},
				DateCreated:  now,
				DateModified: now,
			}
			idx[tag] = t
		}
		t.Snippets = append(t.Snippets, snippet)
		if ok {
			t.Touch(now)
		}
		res = SnippetResult{
			Tag:          tag,
			SnippetIndex: len(t.Snippets) - 1,
			Created:      !ok,
			SnippetCount: len(t.Snippets),
		}
		return storage.Replace(idx)
	})
	if err != nil {
		return nil, err
	}

	s.indexSnippet(ctx, tag, res.SnippetIndex, snippet)
	return &res, nil
}

// UpdateInput carries the fields to change; nil leaves a field as it is.
// An empty ChatURL clears the link.
type UpdateInput struct {
	Summary *string
	ChatURL *string
}

// UpdateMeta changes a thread's summary or chat URL.
func (s *Service) UpdateMeta(ctx context.Context, rawTag string, in UpdateInput) (*models.Thread, error) {
	if in.Summary == nil && in.ChatURL == nil {
		return nil, apperr.Validation(apperr.CodeInvalidInput, "nothing to update: provide a summary and/or a chat URL")
	}
	tag, err := validate.Tag(rawTag)
	if err != nil {
		return nil, err
	}
	var summary, chatURL string
	if in.Summary != nil {
		summary = validate.Sanitize(*in.Summary, validate.MaxSummaryLength)
		if summary == "" {
			return nil, apperr.Validation(apperr.CodeInvalidInput, "summary cannot be empty")
		}
	}
	if in.ChatURL != nil {
		if chatURL, err = validate.URL(*in.ChatURL); err != nil {
			return nil, err
		}
	}

	now := s.timestamp()
	var updated *models.Thread
	_, err = s.threads.Update(ctx, func(idx models.ThreadIndex) storage.Result[models.ThreadIndex] {
		t, ok := idx[tag]
		if !ok {
			return reject(threadNotFound(tag))
		}
		if in.Summary != nil {
			t.Summary = summary
		}
		if in.ChatURL != nil {
			t.ChatURL = chatURL
		}
		t.Touch(now)
		updated = t
		return storage.Replace(idx)
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// Rename moves a thread to a new tag. Both tags are left untouched when
// the source is missing or the target exists.
func (s *Service) Rename(ctx context.Context, rawOld, rawNew string) error {
	oldTag, err := validate.Tag(rawOld)
	if err != nil {
		return err
	}
	newTag, err := validate.Tag(rawNew)
	if err != nil {
		return err
	}
	if oldTag == newTag {
		return apperr.Validation(apperr.CodeInvalidInput, "old and new tag are the same")
	}

	now := s.timestamp()
	_, err = s.threads.Update(ctx, func(idx models.ThreadIndex) storage.Result[models.ThreadIndex] {
		t, ok := idx[oldTag]
		if !ok {
			return reject(threadNotFound(oldTag))
		}
		if _, exists := idx[newTag]; exists {
			return reject(apperr.Conflict(apperr.CodeThreadExists, "target tag '%s' already exists", newTag))
		}
		t.Touch(now)
		idx[newTag] = t
		delete(idx, oldTag)
		return storage.Replace(idx)
	})
	if err != nil {
		return err
	}

	s.reindexRename(ctx, oldTag, newTag)
	return nil
}

// Delete removes a thread and returns it. A missing tag is not-found and
// the document is left byte-for-byte unchanged.
func (s *Service) Delete(ctx context.Context, rawTag string) (*models.Thread, error) {
	tag, err := validate.Tag(rawTag)
	if err != nil {
		return nil, err
	}
	var removed *models.Thread
	_, err = s.threads.Update(ctx, func(idx models.ThreadIndex) storage.Result[models.ThreadIndex] {
		t, ok := idx[tag]
		if !ok {
			return reject(threadNotFound(tag))
		}
		removed = t
		delete(idx, tag)
		return storage.Replace(idx)
	})
	if err != nil {
		return nil, err
	}

	s.unindexThread(ctx, tag)
	return removed, nil
}

// Clear removes every thread and returns how many were dropped.
func (s *Service) Clear(ctx context.Context) (int, error) {
	n := 0
	_, err := s.threads.Update(ctx, func(idx models.ThreadIndex) storage.Result[models.ThreadIndex] {
		n = len(idx)
		if n == 0 {
			return storage.Keep[models.ThreadIndex]()
		}
		return storage.Replace(models.ThreadIndex{})
	})
	if err != nil {
		return 0, err
	}
	if n > 0 {
		s.clearIndex(ctx)
	}
	return n, nil
}

// ClearPending empties the pending list and returns how many entries were
// dropped.
func (s *Service) ClearPending(ctx context.Context) (int, error) {
	return s.pending.Clear(ctx)
}

// deriveSummary uses the first line of content, falling back to its first
// 80 characters when that line is too short to be useful.
func deriveSummary(content string) string {
	first, _, _ := strings.Cut(content, "\n")
	summary := truncateRunes(strings.TrimSpace(first), autoSummaryLength)
	if utf8.RuneCountInString(summary) < 10 {
		summary = truncateRunes(content, autoSummaryLength)
	}
	if utf8.RuneCountInString(content) > autoSummaryLength {
		summary += "..."
	}
	return summary
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
