package threadservice

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/starford/threadlinking/internal/apperr"
	"github.com/starford/threadlinking/internal/models"
	"github.com/starford/threadlinking/internal/storage"
)

func TestListFilters(t *testing.T) {
	clock := &fakeClock{t: time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)}
	svc := newService(t, func(c *Config) { c.Now = clock.Now })
	ctx := context.Background()

	_, err := svc.Create(ctx, CreateInput{Tag: "proj-old"})
	require.NoError(t, err)
	clock.Advance(10 * day)
	_, err = svc.Create(ctx, CreateInput{Tag: "proj-new"})
	require.NoError(t, err)
	_, err = svc.Create(ctx, CreateInput{Tag: "other"})
	require.NoError(t, err)

	all, err := svc.List(ListOptions{SinceDays: -1})
	require.NoError(t, err)
	assert.Equal(t, []string{"other", "proj-new", "proj-old"}, summaryTags(all.Threads))
	assert.Empty(t, all.Pending)

	prefixed, err := svc.List(ListOptions{Prefix: "proj-", SinceDays: -1})
	require.NoError(t, err)
	assert.Equal(t, []string{"proj-new", "proj-old"}, summaryTags(prefixed.Threads))

	recent, err := svc.List(ListOptions{SinceDays: 7})
	require.NoError(t, err)
	assert.Equal(t, []string{"other", "proj-new"}, summaryTags(recent.Threads))
}

func TestListPendingOrder(t *testing.T) {
	clock := &fakeClock{t: time.Now().UTC()}
	svc := newService(t, func(c *Config) { c.Now = clock.Now })
	ctx := context.Background()
	dir := t.TempDir()
	var paths []string
	for _, name := range []string{"a.go", "b.go", "c.go"} {
		p := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(p, nil, 0o644))
		paths = append(paths, p)
	}
	for _, p := range []string{paths[0], paths[1], paths[2], paths[0]} {
		clock.Advance(time.Minute)
		_, err := svc.Track(ctx, p)
		require.NoError(t, err)
	}

	list, err := svc.List(ListOptions{SinceDays: -1, IncludePending: true})
	require.NoError(t, err)
	require.Len(t, list.Pending, 3)
	assert.Equal(t, "a.go", list.Pending[0].Basename)
	assert.Equal(t, 2, list.Pending[0].Count)
	assert.Equal(t, "c.go", list.Pending[1].Basename)
	assert.Equal(t, "b.go", list.Pending[2].Basename)
}

func TestSearch(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()
	_, err := svc.Create(ctx, CreateInput{Tag: "postgres-tuning", Summary: "Vacuum settings"})
	require.NoError(t, err)
	_, err = svc.AddSnippet(ctx, SnippetInput{Tag: "auth", Content: "Moved sessions into POSTGRES", Source: "manual"})
	require.NoError(t, err)
	_, err = svc.Create(ctx, CreateInput{Tag: "unrelated", Summary: "nothing"})
	require.NoError(t, err)

	res, err := svc.Search("Postgres")
	require.NoError(t, err)
	assert.Equal(t, "postgres", res.Query)
	require.Len(t, res.Results, 2)
	assert.Equal(t, "auth", res.Results[0].Tag)
	assert.Equal(t, []string{MatchSummary, MatchSnippets}, res.Results[0].MatchedIn)
	assert.Equal(t, "postgres-tuning", res.Results[1].Tag)
	assert.Equal(t, []string{MatchTag}, res.Results[1].MatchedIn)

	_, err = svc.Search("   ")
	assert.Equal(t, apperr.CodeEmptyQuery, apperr.Code(err))
}

func TestAudit(t *testing.T) {
	clock := &fakeClock{t: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	svc := newService(t, func(c *Config) { c.Now = clock.Now })
	ctx := context.Background()

	present := filepath.Join(t.TempDir(), "present.go")
	require.NoError(t, os.WriteFile(present, nil, 0o644))
	gone := filepath.Join(t.TempDir(), "gone.go")

	_, err := svc.Create(ctx, CreateInput{Tag: "old"})
	require.NoError(t, err)
	clock.Advance(100 * day)
	for _, tag := range []string{"x", "y"} {
		_, err := svc.Create(ctx, CreateInput{Tag: tag})
		require.NoError(t, err)
		_, err = svc.Attach(ctx, tag, present)
		require.NoError(t, err)
	}
	_, err = svc.Attach(ctx, "x", gone)
	require.NoError(t, err)
	_, err = svc.threads.Update(ctx, func(idx models.ThreadIndex) storage.Result[models.ThreadIndex] {
		idx["orphan"] = &models.Thread{DateCreated: clock.Now(), DateModified: clock.Now()}
		return storage.Replace(idx)
	})
	require.NoError(t, err)

	rep, err := svc.Audit(AuditOptions{})
	require.NoError(t, err)
	assert.Equal(t, DefaultStaleDays, rep.StaleDays)
	assert.Equal(t, []BrokenLink{{Tag: "x", Path: gone}}, rep.Broken)
	assert.Equal(t, []string{"orphan"}, rep.Orphans)
	assert.Equal(t, []string{"old"}, rep.Stale)
	assert.Equal(t, map[string][]string{present: {"x", "y"}}, rep.Duplicates)
}

func TestAnalytics(t *testing.T) {
	clock := &fakeClock{t: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	svc := newService(t, func(c *Config) { c.Now = clock.Now })
	ctx := context.Background()

	empty, err := svc.Analytics()
	require.NoError(t, err)
	assert.Zero(t, empty.TotalThreads)
	assert.Nil(t, empty.MostActive)

	_, err = svc.Create(ctx, CreateInput{Tag: "ancient"})
	require.NoError(t, err)
	clock.Advance(20 * day)
	_, err = svc.AddSnippet(ctx, SnippetInput{Tag: "mid", Content: "one", Source: "manual", Tags: []string{"go"}})
	require.NoError(t, err)
	clock.Advance(20 * day)
	for i, content := range []string{"a", "b", "c"} {
		_, err = svc.AddSnippet(ctx, SnippetInput{Tag: "busy", Content: content, Source: "claude-code", Tags: []string{"go", "db"}[:i%2+1]})
		require.NoError(t, err)
	}
	_, err = svc.Attach(ctx, "busy", "/tmp/a")
	require.NoError(t, err)

	a, err := svc.Analytics()
	require.NoError(t, err)
	assert.Equal(t, 3, a.TotalThreads)
	assert.Equal(t, 4, a.TotalSnippets)
	assert.Equal(t, 1, a.TotalLinkedFiles)
	assert.InDelta(t, 1.3, a.AvgSnippetsPerThread, 1e-9)
	assert.InDelta(t, 0.3, a.AvgFilesPerThread, 1e-9)
	assert.Equal(t, 1, a.CreatedLast7Days)
	assert.Equal(t, 2, a.CreatedLast30Days)
	require.NotNil(t, a.MostActive)
	assert.Equal(t, ActiveThread{Tag: "busy", SnippetCount: 3}, *a.MostActive)
	assert.Equal(t, map[string]int{"manual": 1, "claude-code": 3}, a.Sources)
	assert.Equal(t, []TagCount{{Tag: "go", Count: 4}, {Tag: "db", Count: 1}}, a.TopTags)
	assert.Equal(t, "ancient", a.Oldest.Tag)
	assert.Equal(t, "busy", a.Newest.Tag)
}

func summaryTags(ts []ThreadSummary) []string {
	out := make([]string, 0, len(ts))
	for _, t := range ts {
		out = append(out, t.Tag)
	}
	return out
}
