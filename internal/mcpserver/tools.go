package mcpserver

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/starford/threadlinking/internal/apperr"
	"github.com/starford/threadlinking/internal/models"
	"github.com/starford/threadlinking/internal/threadservice"
	"github.com/starford/threadlinking/internal/validate"
)

const (
	defaultSemanticLimit = 10
	maxPendingListed     = 10
	topTagsListed        = 5
)

// toolError turns a service error into a tool result the model can read.
func (s *Server) toolError(tool string, err error) *mcp.CallToolResult {
	s.logger.Debug("tool failed",
		slog.String("tool", tool),
		slog.String("code", apperr.Code(err)),
		slog.String("error", err.Error()))
	return mcp.NewToolResultError(fmt.Sprintf("Error [%s]: %s", apperr.Code(err), err.Error()))
}

func (s *Server) snippet(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	tag, err := req.RequireString("thread_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	content, err := req.RequireString("content")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	res, err := s.svc.AddSnippet(ctx, threadservice.SnippetInput{
		Tag:     tag,
		Content: content,
		Source:  req.GetString("source", validate.SourceClaudeCode),
		URL:     req.GetString("url", ""),
		Tags:    validate.ParseTags(req.GetString("tags", "")),
		Summary: req.GetString("summary", ""),
	})
	if err != nil {
		return s.toolError("threadlinking_snippet", err), nil
	}
	msg := fmt.Sprintf("Added snippet #%d to thread %q (%d total).", res.SnippetIndex+1, res.Tag, res.SnippetCount)
	if res.Created {
		msg = fmt.Sprintf("Created thread %q and added its first snippet.", res.Tag)
	}
	return mcp.NewToolResultText(msg + "\n\nSnippet saved to thread \"" + res.Tag + "\"."), nil
}

func (s *Server) create(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	tag, err := req.RequireString("thread_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	res, err := s.svc.Create(ctx, threadservice.CreateInput{
		Tag:     tag,
		Summary: req.GetString("summary", ""),
		ChatURL: req.GetString("chat_url", ""),
	})
	if err != nil {
		return s.toolError("threadlinking_create", err), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("Created thread %q.\n\nThread %q is ready for snippets and file attachments.", res.Tag, res.Tag)), nil
}

func (s *Server) attach(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	tag, err := req.RequireString("thread_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	path, err := req.RequireString("file_path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	res, err := s.svc.Attach(ctx, tag, path)
	if err != nil {
		return s.toolError("threadlinking_attach", err), nil
	}
	if res.AlreadyLinked {
		return mcp.NewToolResultText(fmt.Sprintf("%s is already linked to thread %q.", res.Path, res.Tag)), nil
	}
	msg := fmt.Sprintf("Linked %s to thread %q.", res.Path, res.Tag)
	if !res.FileExists {
		msg += "\nNote: the file does not exist yet."
	}
	return mcp.NewToolResultText(msg), nil
}

func (s *Server) detach(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	tag, err := req.RequireString("thread_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	path, err := req.RequireString("file_path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	res, err := s.svc.Detach(ctx, tag, path)
	if err != nil {
		return s.toolError("threadlinking_detach", err), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("Unlinked %s from thread %q.", res.Path, res.Tag)), nil
}

func (s *Server) explain(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := req.RequireString("file_path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	res, err := s.svc.Explain(path)
	if err != nil {
		return s.toolError("threadlinking_explain", err), nil
	}
	if len(res.Threads) == 0 {
		return mcp.NewToolResultText("No context found for this file.\n\n" +
			"Tip: use threadlinking_snippet to save context, then threadlinking_attach to link the file."), nil
	}
	var b strings.Builder
	for _, hit := range res.Threads {
		fmt.Fprintf(&b, "## Thread: %s\n*%s*\n\n", hit.Tag, hit.Summary)
		if len(hit.Snippets) > 0 {
			b.WriteString("### Context:\n")
			writeSnippets(&b, hit.Snippets, "**[%d]** %s%s\n")
		}
	}
	return mcp.NewToolResultText(strings.TrimRight(b.String(), "\n")), nil
}

func (s *Server) show(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	tag, err := req.RequireString("thread_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	res, err := s.svc.Show(tag, threadservice.ShowOptions{FilterTag: req.GetString("filter_tag", "")})
	if err != nil {
		return s.toolError("threadlinking_show", err), nil
	}
	t := res.Thread
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n*%s*\n\n", res.Tag, orDefault(t.Summary, "(no summary)"))
	if t.ChatURL != "" {
		fmt.Fprintf(&b, "Chat: %s\n\n", t.ChatURL)
	}
	if len(t.Snippets) > 0 {
		fmt.Fprintf(&b, "## Snippets (%d)\n", len(t.Snippets))
		writeSnippets(&b, t.Snippets, "### [%d] %s%s\n")
	}
	if len(t.LinkedFiles) > 0 {
		fmt.Fprintf(&b, "## Linked Files (%d)\n", len(t.LinkedFiles))
		for _, f := range t.LinkedFiles {
			fmt.Fprintf(&b, "- `%s`\n", f)
		}
	}
	return mcp.NewToolResultText(strings.TrimRight(b.String(), "\n")), nil
}

func (s *Server) list(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	res, err := s.svc.List(threadservice.ListOptions{
		Prefix:         req.GetString("prefix", ""),
		SinceDays:      -1,
		IncludePending: req.GetBool("include_pending", true),
	})
	if err != nil {
		return s.toolError("threadlinking_list", err), nil
	}
	var b strings.Builder
	if len(res.Threads) == 0 {
		b.WriteString("No threads yet.\nCreate one with: threadlinking_snippet\n")
	} else {
		b.WriteString("## Threads\n")
		for _, t := range res.Threads {
			fmt.Fprintf(&b, "- **%s**: %s\n", t.Tag, orDefault(t.Summary, "(no summary)"))
			fmt.Fprintf(&b, "  %d snippet(s), %d file(s)\n", t.SnippetCount, t.FileCount)
		}
	}
	if len(res.Pending) > 0 {
		fmt.Fprintf(&b, "\n## Pending Files (%d)\n*Files edited but not yet linked to a thread:*\n", len(res.Pending))
		for i, f := range res.Pending {
			if i == maxPendingListed {
				fmt.Fprintf(&b, "... and %d more\n", len(res.Pending)-maxPendingListed)
				break
			}
			fmt.Fprintf(&b, "- %s (%s)\n", f.Basename, f.Path)
		}
	}
	return mcp.NewToolResultText(strings.TrimRight(b.String(), "\n")), nil
}

func (s *Server) search(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, err := req.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	res, err := s.svc.Search(query)
	if err != nil {
		return s.toolError("threadlinking_search", err), nil
	}
	if len(res.Results) == 0 {
		return mcp.NewToolResultText("No matching threads found."), nil
	}
	var b strings.Builder
	fmt.Fprintf(&b, "## Search Results for %q\n", query)
	for _, hit := range res.Results {
		fmt.Fprintf(&b, "- **%s**: %s\n", hit.Tag, orDefault(hit.Thread.Summary, "(no summary)"))
		fmt.Fprintf(&b, "  Matched in: %s\n", strings.Join(hit.MatchedIn, ", "))
	}
	return mcp.NewToolResultText(strings.TrimRight(b.String(), "\n")), nil
}

func (s *Server) status(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	st, err := s.svc.Status(ctx)
	if err != nil {
		return s.toolError("threadlinking_status", err), nil
	}
	var b strings.Builder
	fmt.Fprintf(&b, "## threadlinking %s\n\n", st.Version)
	fmt.Fprintf(&b, "- Threads: %d\n- Pending files: %d\n\n", st.Threads, st.Pending)
	b.WriteString("## Available Features\n\n")
	b.WriteString("**Core:**\n- snippet, attach, detach, explain, show, list, search, create\n\n")
	b.WriteString("**Advanced:**\n")
	sem := st.Semantic
	switch {
	case !sem.Enabled:
		b.WriteString("- semantic_search (disabled)\n")
	case !sem.Built:
		b.WriteString("- semantic_search (index not built; run `threadlinking reindex`)\n")
	case sem.Stale:
		b.WriteString("- semantic_search (index may be outdated)\n")
	default:
		b.WriteString("- semantic_search (natural language search)\n")
	}
	b.WriteString("- analytics (usage insights)")
	return mcp.NewToolResultText(b.String()), nil
}

func (s *Server) semanticSearch(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, err := req.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	res, err := s.svc.SemanticSearch(ctx, query, req.GetInt("limit", defaultSemanticLimit))
	if err != nil {
		return s.toolError("threadlinking_semantic_search", err), nil
	}
	if len(res.Results) == 0 {
		return mcp.NewToolResultText("No semantically similar threads found."), nil
	}
	var b strings.Builder
	if res.StaleWarning != "" {
		fmt.Fprintf(&b, "> Note: %s\n\n", res.StaleWarning)
	}
	fmt.Fprintf(&b, "## Semantic Search Results for %q\n", query)
	for _, hit := range res.Results {
		fmt.Fprintf(&b, "- **%s** (score: %.0f%%)\n", hit.Tag, hit.Score*100)
		fmt.Fprintf(&b, "  %s\n", orDefault(hit.Thread.Summary, "(no summary)"))
	}
	return mcp.NewToolResultText(strings.TrimRight(b.String(), "\n")), nil
}

func (s *Server) analytics(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	a, err := s.svc.Analytics()
	if err != nil {
		return s.toolError("threadlinking_analytics", err), nil
	}
	var b strings.Builder
	b.WriteString("## threadlinking Analytics\n\n### Summary\n")
	fmt.Fprintf(&b, "- Total threads: %d\n", a.TotalThreads)
	fmt.Fprintf(&b, "- Total snippets: %d\n", a.TotalSnippets)
	fmt.Fprintf(&b, "- Total linked files: %d\n", a.TotalLinkedFiles)
	fmt.Fprintf(&b, "- Avg snippets/thread: %.1f\n", a.AvgSnippetsPerThread)
	fmt.Fprintf(&b, "- Avg files/thread: %.1f\n\n", a.AvgFilesPerThread)
	b.WriteString("### Activity\n")
	fmt.Fprintf(&b, "- Threads created (7 days): %d\n", a.CreatedLast7Days)
	fmt.Fprintf(&b, "- Threads created (30 days): %d\n", a.CreatedLast30Days)
	if a.MostActive != nil {
		fmt.Fprintf(&b, "- Most active: %s (%d snippets)\n", a.MostActive.Tag, a.MostActive.SnippetCount)
	}
	if len(a.TopTags) > 0 {
		b.WriteString("\n### Top Tags\n")
		for i, tc := range a.TopTags {
			if i == topTagsListed {
				break
			}
			fmt.Fprintf(&b, "- %s: %d\n", tc.Tag, tc.Count)
		}
	}
	return mcp.NewToolResultText(strings.TrimRight(b.String(), "\n")), nil
}

// writeSnippets renders snippets with a header format taking the 1-based
// number, the source and the tag list.
func writeSnippets(b *strings.Builder, snippets []models.Snippet, header string) {
	for i, sn := range snippets {
		tags := ""
		if len(sn.Tags) > 0 {
			tags = " [" + strings.Join(sn.Tags, ", ") + "]"
		}
		fmt.Fprintf(b, header, i+1, orDefault(sn.Source, "unknown"), tags)
		b.WriteString(sn.Content)
		b.WriteString("\n\n")
	}
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
