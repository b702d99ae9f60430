package threadservice

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/starford/threadlinking/internal/apperr"
	"github.com/starford/threadlinking/internal/embedding"
	"github.com/starford/threadlinking/internal/models"
	"github.com/starford/threadlinking/internal/semantic"
	"github.com/starford/threadlinking/internal/validate"
)

// DefaultSemanticLimit is the number of threads SemanticSearch returns
// when no limit is given.
const DefaultSemanticLimit = 10

// candidateFactor widens the item search so several hits on one thread do
// not crowd out other threads.
const candidateFactor = 3

// StaleWarning is reported when the thread index changed after the last
// semantic index update.
const StaleWarning = `semantic index may be outdated; run "threadlinking reindex" for best results`

// SemanticHit is a thread ranked by similarity.
type SemanticHit struct {
	Tag             string         `json:"tag"`
	Thread          *models.Thread `json:"thread"`
	Score           float64        `json:"score"`
	MatchedSnippets []int          `json:"matched_snippets"`
}

// SemanticResult lists threads by descending similarity.
type SemanticResult struct {
	Query        string        `json:"query"`
	Results      []SemanticHit `json:"results"`
	StaleWarning string        `json:"stale_warning,omitempty"`
}

// ReindexResult reports a rebuilt semantic index.
type ReindexResult struct {
	Threads int `json:"threads"`
	Items   int `json:"items"`
}

// SemanticEnabled reports whether an embedding provider is configured.
func (s *Service) SemanticEnabled() bool { return s.embedder != nil }

func (s *Service) requireEmbedder() error {
	if s.embedder == nil {
		return apperr.Validation(apperr.CodeInvalidInput, "semantic search is disabled (semantic.provider is %q)", embedding.ProviderDisabled)
	}
	return nil
}

// SemanticSearch ranks threads by the best similarity of their summary or
// snippets to query.
func (s *Service) SemanticSearch(ctx context.Context, query string, limit int) (*SemanticResult, error) {
	q := validate.Sanitize(query, validate.MaxSnippetLength)
	if q == "" {
		return nil, apperr.Validation(apperr.CodeEmptyQuery, "search query cannot be empty")
	}
	if limit <= 0 {
		limit = DefaultSemanticLimit
	}
	if err := s.requireEmbedder(); err != nil {
		return nil, err
	}
	if !s.index.Exists() {
		return nil, apperr.NotFound(apperr.CodeIndexNotFound, `semantic index not found; run "threadlinking reindex" to build it`)
	}

	res := &SemanticResult{Query: q, Results: []SemanticHit{}}
	if mt := s.threads.ModTime(); !mt.IsZero() {
		stale, err := s.index.IsStale(ctx, mt)
		if err != nil {
			return nil, err
		}
		if stale {
			res.StaleWarning = StaleWarning
		}
	}

	vec, err := embedding.EmbedOne(ctx, s.embedder, q)
	if err != nil {
		return nil, fmt.Errorf("threadservice: embed query: %w", err)
	}
	matches, err := s.index.Search(ctx, vec, limit*candidateFactor)
	if err != nil {
		return nil, err
	}
	idx, err := s.loadThreads()
	if err != nil {
		return nil, err
	}

	byTag := map[string]*SemanticHit{}
	for _, m := range matches {
		t, ok := idx[m.ThreadID]
		if !ok {
			continue
		}
		hit, ok := byTag[m.ThreadID]
		if !ok {
			hit = &SemanticHit{Tag: m.ThreadID, Thread: t, Score: m.Score, MatchedSnippets: []int{}}
			byTag[m.ThreadID] = hit
		}
		hit.Score = max(hit.Score, m.Score)
		if m.Kind == semantic.KindSnippet && m.SnippetIndex >= 0 && !slices.Contains(hit.MatchedSnippets, m.SnippetIndex) {
			hit.MatchedSnippets = append(hit.MatchedSnippets, m.SnippetIndex)
		}
	}
	for _, hit := range byTag {
		slices.Sort(hit.MatchedSnippets)
		res.Results = append(res.Results, *hit)
	}
	slices.SortFunc(res.Results, func(a, b SemanticHit) int {
		if c := cmp.Compare(b.Score, a.Score); c != 0 {
			return c
		}
		return cmp.Compare(a.Tag, b.Tag)
	})
	if len(res.Results) > limit {
		res.Results = res.Results[:limit]
	}
	return res, nil
}

// Reindex rebuilds the semantic index from every summary and snippet.
// Embedding happens before the old index is cleared, so a provider failure
// leaves the previous index intact. progress may be nil.
func (s *Service) Reindex(ctx context.Context, progress func(string)) (*ReindexResult, error) {
	if progress == nil {
		progress = func(string) {}
	}
	if err := s.requireEmbedder(); err != nil {
		return nil, err
	}
	idx, err := s.loadThreads()
	if err != nil {
		return nil, err
	}
	progress(fmt.Sprintf("Found %d threads.", len(idx)))

	var (
		items []semantic.Item
		texts []string
	)
	for _, tag := range idx.Tags() {
		t := idx[tag]
		if t.Summary != "" && t.Summary != EmptySummary {
			items = append(items, semantic.Item{ThreadID: tag, Kind: semantic.KindSummary, SnippetIndex: -1, Text: t.Summary, Timestamp: t.LastActivity()})
			texts = append(texts, t.Summary)
		}
		for i, sn := range t.Snippets {
			if sn.Content == "" {
				continue
			}
			items = append(items, semantic.Item{ThreadID: tag, Kind: semantic.KindSnippet, SnippetIndex: i, Text: sn.Content, Timestamp: sn.Timestamp})
			texts = append(texts, sn.Content)
		}
	}

	if len(texts) > 0 {
		progress(fmt.Sprintf("Embedding %d items...", len(texts)))
		vecs, err := s.embedder.Embed(ctx, texts)
		if err != nil {
			return nil, fmt.Errorf("threadservice: embed: %w", err)
		}
		if len(vecs) != len(items) {
			return nil, fmt.Errorf("threadservice: embedder returned %d vectors for %d items", len(vecs), len(items))
		}
		for i := range items {
			items[i].Vector = vecs[i]
		}
	}

	progress("Storing in index...")
	if err := s.index.Clear(ctx); err != nil {
		return nil, err
	}
	if err := s.index.AddItems(ctx, items); err != nil {
		return nil, err
	}
	return &ReindexResult{Threads: len(idx), Items: len(items)}, nil
}

// indexSnippet adds a new snippet to an existing semantic index in the
// background. Nothing happens when the index was never built.
func (s *Service) indexSnippet(ctx context.Context, tag string, i int, sn models.Snippet) {
	if s.embedder == nil || !s.index.Exists() {
		return
	}
	s.Go(ctx, "index snippet", func(ctx context.Context) error {
		vec, err := embedding.EmbedOne(ctx, s.embedder, sn.Content)
		if err != nil {
			return err
		}
		return s.index.AddItem(ctx, semantic.Item{
			ThreadID:     tag,
			Kind:         semantic.KindSnippet,
			SnippetIndex: i,
			Text:         sn.Content,
			Timestamp:    sn.Timestamp,
			Vector:       vec,
		})
	})
}

func (s *Service) unindexThread(ctx context.Context, tag string) {
	if !s.index.Exists() {
		return
	}
	s.Go(ctx, "unindex thread", func(ctx context.Context) error {
		_, err := s.index.DeleteThread(ctx, tag)
		return err
	})
}

func (s *Service) reindexRename(ctx context.Context, from, to string) {
	if !s.index.Exists() {
		return
	}
	s.Go(ctx, "rename indexed thread", func(ctx context.Context) error {
		_, err := s.index.RenameThread(ctx, from, to)
		return err
	})
}

func (s *Service) clearIndex(ctx context.Context) {
	if !s.index.Exists() {
		return
	}
	s.Go(ctx, "clear index", func(ctx context.Context) error {
		return s.index.Clear(ctx)
	})
}

// SemanticStatus describes the semantic index.
type SemanticStatus struct {
	Enabled  bool            `json:"enabled"`
	Provider string          `json:"provider,omitempty"`
	Built    bool            `json:"built"`
	Stale    bool            `json:"stale"`
	Stats    *semantic.Stats `json:"stats,omitempty"`
}

// Status reports the installation state.
type Status struct {
	Version     string         `json:"version"`
	Home        string         `json:"home"`
	ThreadsPath string         `json:"threads_path"`
	PendingPath string         `json:"pending_path"`
	Threads     int            `json:"threads"`
	Pending     int            `json:"pending"`
	Semantic    SemanticStatus `json:"semantic"`
	Features    []string       `json:"features"`
}

var features = []string{
	"create", "snippet", "attach", "detach", "explain", "show", "list", "search",
	"update", "rename", "delete", "audit", "track", "analytics", "semantic_search", "reindex",
}

// Status collects counts and semantic index state.
func (s *Service) Status(ctx context.Context) (*Status, error) {
	idx, err := s.loadThreads()
	if err != nil {
		return nil, err
	}
	st, err := s.pending.Load()
	if err != nil {
		return nil, err
	}
	linked := idx.LinkedFiles()
	nPending := 0
	for _, f := range st.Tracked {
		if _, ok := linked[f.Path]; !ok {
			nPending++
		}
	}

	out := &Status{
		Version:     s.version,
		Home:        s.home,
		ThreadsPath: s.threads.Path(),
		PendingPath: s.pending.Path(),
		Threads:     len(idx),
		Pending:     nPending,
		Semantic:    SemanticStatus{Enabled: s.SemanticEnabled(), Provider: s.provider},
		Features:    features,
	}
	if s.index.Exists() {
		out.Semantic.Built = true
		stats, err := s.index.Stats(ctx)
		if err != nil && !errors.Is(err, semantic.ErrNotBuilt) {
			return nil, err
		}
		if err == nil {
			out.Semantic.Stats = &stats
		}
		if mt := s.threads.ModTime(); !mt.IsZero() {
			if out.Semantic.Stale, err = s.index.IsStale(ctx, mt); err != nil {
				return nil, err
			}
		}
	}
	return out, nil
}
