// Package mcpserver provides an MCP (Model Context Protocol) server
// that exposes threadlinking tools for LLM integration via stdio transport.
package mcpserver

import (
	"context"
	"io"
	"log/slog"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/starford/threadlinking/internal/threadservice"
)

// Instructions are sent to the client during initialization.
const Instructions = `threadlinking preserves AI conversation context across sessions.

Key concepts:
- Threads: named containers for context (use project names, not task names)
- Snippets: context excerpts explaining decisions
- File links: connect files to their origin stories

Proactively save context when creating new files from conversation decisions,
when making architectural choices, or when the user asks to "remember why"
something was done. Read threadlinking://guide for details.`

// Server wraps the MCP server with threadlinking tools.
type Server struct {
	mcp    *server.MCPServer
	svc    *threadservice.Service
	logger *slog.Logger
}

// New creates a new MCP server with all threadlinking tools registered.
func New(svc *threadservice.Service, version string, logger *slog.Logger) *Server {
	s := &Server{svc: svc, logger: logger}

	s.mcp = server.NewMCPServer(
		"threadlinking",
		version,
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
		server.WithInstructions(Instructions),
		server.WithRecovery(),
	)

	s.mcp.AddTool(mcp.NewTool("threadlinking_snippet",
		mcp.WithDescription("Add a context snippet to a thread. Auto-creates the thread if needed."),
		mcp.WithString("thread_id", mcp.Required(), mcp.Description(`Thread name (e.g. "myproject")`)),
		mcp.WithString("content", mcp.Required(), mcp.Description(`The context to save (the "why")`)),
		mcp.WithString("tags", mcp.Description(`Comma separated tags (e.g. "auth,decision")`)),
		mcp.WithString("source", mcp.Description("Source identifier (defaults to claude-code)")),
		mcp.WithString("url", mcp.Description("URL of the conversation")),
		mcp.WithString("summary", mcp.Description("Summary used when the thread is created")),
	), s.snippet)

	s.mcp.AddTool(mcp.NewTool("threadlinking_create",
		mcp.WithDescription("Create a new empty thread. Use this to set up a thread before adding snippets or files."),
		mcp.WithString("thread_id", mcp.Required(), mcp.Description(`Thread name (e.g. "myproject")`)),
		mcp.WithString("summary", mcp.Description("Thread description")),
		mcp.WithString("chat_url", mcp.Description("Associated chat URL")),
	), s.create)

	s.mcp.AddTool(mcp.NewTool("threadlinking_attach",
		mcp.WithDescription("Link a file to a thread. The file will be associated with the thread's context."),
		mcp.WithString("thread_id", mcp.Required(), mcp.Description("Thread name")),
		mcp.WithString("file_path", mcp.Required(), mcp.Description("Path to the file to attach")),
	), s.attach)

	s.mcp.AddTool(mcp.NewTool("threadlinking_detach",
		mcp.WithDescription("Remove a file link from a thread."),
		mcp.WithString("thread_id", mcp.Required(), mcp.Description("Thread name")),
		mcp.WithString("file_path", mcp.Required(), mcp.Description("Path to the file to detach")),
		mcp.WithDestructiveHintAnnotation(true),
	), s.detach)

	s.mcp.AddTool(mcp.NewTool("threadlinking_explain",
		mcp.WithDescription("Show why a file exists: its origin story and the decisions that led to it."),
		mcp.WithString("file_path", mcp.Required(), mcp.Description("Path to the file to explain")),
		mcp.WithReadOnlyHintAnnotation(true),
	), s.explain)

	s.mcp.AddTool(mcp.NewTool("threadlinking_show",
		mcp.WithDescription("View full details of a thread including all snippets and linked files."),
		mcp.WithString("thread_id", mcp.Required(), mcp.Description("Thread name")),
		mcp.WithString("filter_tag", mcp.Description("Only show snippets carrying this tag")),
		mcp.WithReadOnlyHintAnnotation(true),
	), s.show)

	s.mcp.AddTool(mcp.NewTool("threadlinking_list",
		mcp.WithDescription("List all threads and any pending unlinked files."),
		mcp.WithString("prefix", mcp.Description("Filter threads by prefix")),
		mcp.WithBoolean("include_pending", mcp.Description("Include pending files (default: true)")),
		mcp.WithReadOnlyHintAnnotation(true),
	), s.list)

	s.mcp.AddTool(mcp.NewTool("threadlinking_search",
		mcp.WithDescription("Search threads by keyword."),
		mcp.WithString("query", mcp.Required(), mcp.Description("Search query")),
		mcp.WithReadOnlyHintAnnotation(true),
	), s.search)

	s.mcp.AddTool(mcp.NewTool("threadlinking_status",
		mcp.WithDescription("Check available features and the state of the semantic index."),
		mcp.WithReadOnlyHintAnnotation(true),
	), s.status)

	s.mcp.AddTool(mcp.NewTool("threadlinking_semantic_search",
		mcp.WithDescription("Search threads by semantic similarity."),
		mcp.WithString("query", mcp.Required(), mcp.Description("Natural language query")),
		mcp.WithNumber("limit", mcp.Description("Max results (default: 10)")),
		mcp.WithReadOnlyHintAnnotation(true),
	), s.semanticSearch)

	s.mcp.AddTool(mcp.NewTool("threadlinking_analytics",
		mcp.WithDescription("Get usage analytics and insights."),
		mcp.WithReadOnlyHintAnnotation(true),
	), s.analytics)

	// Resource: usage guide.
	s.mcp.AddResource(
		mcp.NewResource(GuideURI, "threadlinking guide",
			mcp.WithResourceDescription("How to organize threads, snippets and file links."),
			mcp.WithMIMEType("text/markdown"),
		),
		s.readGuide,
	)

	return s
}

// ServeStdio serves MCP over the given streams until ctx is cancelled or
// the input is closed.
func (s *Server) ServeStdio(ctx context.Context, in io.Reader, out io.Writer) error {
	stdio := server.NewStdioServer(s.mcp)
	stdio.SetErrorLogger(slog.NewLogLogger(s.logger.Handler(), slog.LevelError))
	return stdio.Listen(ctx, in, out)
}

// MCPServer returns the underlying server for testing.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcp
}

func (s *Server) readGuide(_ context.Context, _ mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      GuideURI,
			MIMEType: "text/markdown",
			Text:     Guide,
		},
	}, nil
}
