package threadservice

import (
	"cmp"
	"math"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/starford/threadlinking/internal/apperr"
	"github.com/starford/threadlinking/internal/models"
	"github.com/starford/threadlinking/internal/validate"
)

const day = 24 * time.Hour

// ShowOptions filters Show output.
type ShowOptions struct {
	// FilterTag keeps only snippets carrying this tag.
	FilterTag string
}

// ShowResult is a single thread.
type ShowResult struct {
	Tag    string         `json:"tag"`
	Thread *models.Thread `json:"thread"`
}

// Show returns a thread, optionally keeping only snippets with a tag.
func (s *Service) Show(rawTag string, opts ShowOptions) (*ShowResult, error) {
	tag, err := validate.Tag(rawTag)
	if err != nil {
		return nil, err
	}
	idx, err := s.loadThreads()
	if err != nil {
		return nil, err
	}
	t, ok := idx[tag]
	if !ok {
		return nil, threadNotFound(tag)
	}
	if filter := strings.ToLower(strings.TrimSpace(opts.FilterTag)); filter != "" {
		t = t.Clone()
		t.Snippets = slices.DeleteFunc(t.Snippets, func(sn models.Snippet) bool {
			return !sn.HasTag(filter)
		})
	}
	return &ShowResult{Tag: tag, Thread: t}, nil
}

// ListOptions filters List output.
type ListOptions struct {
	Prefix string
	// SinceDays drops threads idle for more whole days than this. Negative
	// disables the filter.
	SinceDays      int
	IncludePending bool
}

// ThreadSummary is a thread as shown in listings.
type ThreadSummary struct {
	Tag          string    `json:"tag"`
	Summary      string    `json:"summary"`
	SnippetCount int       `json:"snippet_count"`
	FileCount    int       `json:"file_count"`
	DateModified time.Time `json:"date_modified"`
}

// PendingSummary is a pending file as shown in listings.
type PendingSummary struct {
	Path         string    `json:"path"`
	Basename     string    `json:"basename"`
	Count        int       `json:"count"`
	LastModified time.Time `json:"last_modified"`
}

// ListResult holds threads sorted by tag and pending files, most recently
// edited first.
type ListResult struct {
	Threads []ThreadSummary  `json:"threads"`
	Pending []PendingSummary `json:"pending"`
}

// List returns thread summaries and, optionally, pending files that are
// not linked to any thread.
func (s *Service) List(opts ListOptions) (*ListResult, error) {
	idx, err := s.loadThreads()
	if err != nil {
		return nil, err
	}
	now := s.now()
	res := &ListResult{Threads: []ThreadSummary{}, Pending: []PendingSummary{}}
	for _, tag := range idx.Tags() {
		if opts.Prefix != "" && !strings.HasPrefix(tag, opts.Prefix) {
			continue
		}
		t := idx[tag]
		if opts.SinceDays >= 0 && daysSince(now, t.LastActivity()) > opts.SinceDays {
			continue
		}
		res.Threads = append(res.Threads, ThreadSummary{
			Tag:          tag,
			Summary:      t.Summary,
			SnippetCount: len(t.Snippets),
			FileCount:    len(t.LinkedFiles),
			DateModified: t.LastActivity(),
		})
	}
	if !opts.IncludePending {
		return res, nil
	}

	st, err := s.pending.Load()
	if err != nil {
		return nil, err
	}
	linked := idx.LinkedFiles()
	for _, f := range st.Tracked {
		if _, ok := linked[f.Path]; ok {
			continue
		}
		res.Pending = append(res.Pending, PendingSummary{
			Path:         f.Path,
			Basename:     filepath.Base(f.Path),
			Count:        f.Count,
			LastModified: f.LastModified,
		})
	}
	slices.SortStableFunc(res.Pending, func(a, b PendingSummary) int {
		return b.LastModified.Compare(a.LastModified)
	})
	return res, nil
}

// Match locations reported by Search.
const (
	MatchTag      = "tag"
	MatchSummary  = "summary"
	MatchSnippets = "snippets"
)

// SearchHit is a thread matching a keyword query.
type SearchHit struct {
	Tag       string         `json:"tag"`
	Thread    *models.Thread `json:"thread"`
	MatchedIn []string       `json:"matched_in"`
}

// SearchResult lists keyword hits sorted by tag.
type SearchResult struct {
	Query   string      `json:"query"`
	Results []SearchHit `json:"results"`
}

// Search finds threads whose tag, summary or snippet content contains the
// query, case-insensitively.
func (s *Service) Search(query string) (*SearchResult, error) {
	q := strings.ToLower(validate.Sanitize(query, validate.MaxQueryLength))
	if q == "" {
		return nil, apperr.Validation(apperr.CodeEmptyQuery, "search query cannot be empty")
	}
	idx, err := s.loadThreads()
	if err != nil {
		return nil, err
	}
	res := &SearchResult{Query: q, Results: []SearchHit{}}
	for _, tag := range idx.Tags() {
		t := idx[tag]
		var matched []string
		if strings.Contains(strings.ToLower(tag), q) {
			matched = append(matched, MatchTag)
		}
		if strings.Contains(strings.ToLower(t.Summary), q) {
			matched = append(matched, MatchSummary)
		}
		if slices.ContainsFunc(t.Snippets, func(sn models.Snippet) bool {
			return strings.Contains(strings.ToLower(sn.Content), q)
		}) {
			matched = append(matched, MatchSnippets)
		}
		if len(matched) > 0 {
			res.Results = append(res.Results, SearchHit{Tag: tag, Thread: t, MatchedIn: matched})
		}
	}
	return res, nil
}

// DefaultStaleDays is the Audit threshold when none is given.
const DefaultStaleDays = 90

// AuditOptions tunes Audit.
type AuditOptions struct {
	StaleDays int
}

// BrokenLink is a linked path missing from disk.
type BrokenLink struct {
	Tag  string `json:"tag"`
	Path string `json:"path"`
}

// AuditReport lists problems found in the thread index.
type AuditReport struct {
	Broken     []BrokenLink        `json:"broken"`
	Orphans    []string            `json:"orphans"`
	Stale      []string            `json:"stale"`
	Duplicates map[string][]string `json:"duplicates"`
	StaleDays  int                 `json:"stale_days"`
}

// Audit reports broken links, orphan threads, threads idle for longer than
// StaleDays and files linked from more than one thread.
func (s *Service) Audit(opts AuditOptions) (*AuditReport, error) {
	staleDays := opts.StaleDays
	if staleDays <= 0 {
		staleDays = DefaultStaleDays
	}
	idx, err := s.loadThreads()
	if err != nil {
		return nil, err
	}
	now := s.now()
	rep := &AuditReport{
		Broken:     []BrokenLink{},
		Orphans:    []string{},
		Stale:      []string{},
		Duplicates: map[string][]string{},
		StaleDays:  staleDays,
	}
	owners := map[string][]string{}
	for _, tag := range idx.Tags() {
		t := idx[tag]
		if t.IsOrphan() {
			rep.Orphans = append(rep.Orphans, tag)
		}
		for _, f := range t.LinkedFiles {
			if _, err := os.Stat(f); err != nil {
				rep.Broken = append(rep.Broken, BrokenLink{Tag: tag, Path: f})
			}
			owners[f] = append(owners[f], tag)
		}
		if last := t.LastActivity(); !last.IsZero() && daysSince(now, last) > staleDays {
			rep.Stale = append(rep.Stale, tag)
		}
	}
	for f, tags := range owners {
		if len(tags) > 1 {
			rep.Duplicates[f] = tags
		}
	}
	return rep, nil
}

// TagCount is a snippet tag with its usage count.
type TagCount struct {
	Tag   string `json:"tag"`
	Count int    `json:"count"`
}

// ThreadRef names a thread with an associated date.
type ThreadRef struct {
	Tag  string    `json:"tag"`
	Date time.Time `json:"date"`
}

// ActiveThread names the thread with the most snippets.
type ActiveThread struct {
	Tag          string `json:"tag"`
	SnippetCount int    `json:"snippet_count"`
}

// Analytics summarizes how threads are used.
type Analytics struct {
	TotalThreads         int            `json:"total_threads"`
	TotalSnippets        int            `json:"total_snippets"`
	TotalLinkedFiles     int            `json:"total_linked_files"`
	AvgSnippetsPerThread float64        `json:"avg_snippets_per_thread"`
	AvgFilesPerThread    float64        `json:"avg_files_per_thread"`
	CreatedLast7Days     int            `json:"created_last_7_days"`
	CreatedLast30Days    int            `json:"created_last_30_days"`
	MostActive           *ActiveThread  `json:"most_active"`
	Sources              map[string]int `json:"sources"`
	TopTags              []TagCount     `json:"top_tags"`
	Oldest               *ThreadRef     `json:"oldest"`
	Newest               *ThreadRef     `json:"newest"`
}

const topTagLimit = 10

// Analytics computes usage statistics over the whole index.
func (s *Service) Analytics() (*Analytics, error) {
	idx, err := s.loadThreads()
	if err != nil {
		return nil, err
	}
	now := s.now()
	a := &Analytics{Sources: map[string]int{}, TopTags: []TagCount{}}
	tagCounts := map[string]int{}
	for _, tag := range idx.Tags() {
		t := idx[tag]
		a.TotalThreads++
		a.TotalSnippets += len(t.Snippets)
		a.TotalLinkedFiles += len(t.LinkedFiles)

		if a.MostActive == nil || len(t.Snippets) > a.MostActive.SnippetCount {
			a.MostActive = &ActiveThread{Tag: tag, SnippetCount: len(t.Snippets)}
		}
		if created := t.DateCreated; !created.IsZero() {
			if a.Oldest == nil || created.Before(a.Oldest.Date) {
				a.Oldest = &ThreadRef{Tag: tag, Date: created}
			}
			if a.Newest == nil || created.After(a.Newest.Date) {
				a.Newest = &ThreadRef{Tag: tag, Date: created}
			}
			if !created.Before(now.Add(-7 * day)) {
				a.CreatedLast7Days++
			}
			if !created.Before(now.Add(-30 * day)) {
				a.CreatedLast30Days++
			}
		}
		for _, sn := range t.Snippets {
			src := sn.Source
			if src == "" {
				src = "unknown"
			}
			a.Sources[src]++
			for _, tg := range sn.Tags {
				tagCounts[tg]++
			}
		}
	}
	if a.TotalThreads > 0 {
		a.AvgSnippetsPerThread = roundTenth(float64(a.TotalSnippets) / float64(a.TotalThreads))
		a.AvgFilesPerThread = roundTenth(float64(a.TotalLinkedFiles) / float64(a.TotalThreads))
	}
	for tg, n := range tagCounts {
		a.TopTags = append(a.TopTags, TagCount{Tag: tg, Count: n})
	}
	slices.SortFunc(a.TopTags, func(x, y TagCount) int {
		if c := cmp.Compare(y.Count, x.Count); c != 0 {
			return c
		}
		return cmp.Compare(x.Tag, y.Tag)
	})
	if len(a.TopTags) > topTagLimit {
		a.TopTags = a.TopTags[:topTagLimit]
	}
	return a, nil
}

func daysSince(now, t time.Time) int {
	return int(math.Floor(float64(now.Sub(t)) / float64(day)))
}

func roundTenth(v float64) float64 {
	return math.Round(v*10) / 10
}
