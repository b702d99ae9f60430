package api

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/starford/threadlinking/internal/threadservice"
)

// NewRouter creates a chi router with all API routes mounted.
// authEnabled controls whether Bearer token auth is enforced.
// sseHandler, if non-nil, is mounted at GET /events inside the auth group.
func NewRouter(svc *threadservice.Service, authEnabled bool, token string, sseHandler http.Handler, logger *slog.Logger) chi.Router {
	h := NewHandler(svc, logger)

	r := chi.NewRouter()
	r.Use(AuthMiddleware(authEnabled, token))

	// Threads.
	r.Get("/threads", h.ListThreads)
	r.Post("/threads", h.CreateThread)
	r.Get("/threads/{tag}", h.GetThread)
	r.Post("/threads/{tag}/snippets", h.AddSnippet)
	r.Post("/threads/{tag}/files", h.AttachFile)
	r.Delete("/threads/{tag}/files", h.DetachFile)

	// Files.
	r.Get("/explain", h.Explain)
	r.Get("/pending", h.Pending)

	// Search.
	r.Get("/search", h.Search)
	r.Get("/semantic-search", h.SemanticSearch)

	// Reports.
	r.Get("/analytics", h.Analytics)
	r.Get("/status", h.Status)

	// SSE endpoint (protected by same auth middleware).
	if sseHandler != nil {
		r.Get("/events", sseHandler.ServeHTTP)
	}

	return r
}
