package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/starford/threadlinking/internal/apperr"
	"github.com/starford/threadlinking/internal/checksum"
	"github.com/starford/threadlinking/internal/threadservice"
)

// maxBodyBytes bounds request bodies; snippets are capped well below it.
const maxBodyBytes = 1 << 20

// Handler holds API route handlers.
type Handler struct {
	svc    *threadservice.Service
	logger *slog.Logger
}

// NewHandler creates a new Handler.
func NewHandler(svc *threadservice.Service, logger *slog.Logger) *Handler {
	return &Handler{svc: svc, logger: logger}
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return apperr.Validation(apperr.CodeInvalidInput, "invalid JSON body")
	}
	return nil
}

// ListThreads handles GET /api/threads.
//
//	@Summary		List threads with optional prefix and idle filters
//	@Tags			threads
//	@Produce		json
//	@Param			prefix	query		string	false	"Tag prefix"
//	@Param			since	query		int		false	"Only threads touched within this many days"
//	@Success		200		{object}	threadservice.ListResult
//	@Security		BearerAuth
//	@Router			/threads [get]
func (h *Handler) ListThreads(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	opts := threadservice.ListOptions{Prefix: q.Get("prefix"), SinceDays: -1}
	if raw := q.Get("since"); raw != "" {
		days, err := strconv.Atoi(raw)
		if err != nil || days < 0 {
			h.writeError(w, r, apperr.Validation(apperr.CodeInvalidInput, "since must be a non-negative integer"))
			return
		}
		opts.SinceDays = days
	}
	res, err := h.svc.List(opts)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// GetThread handles GET /api/threads/{tag}.
//
//	@Summary		Get a thread
//	@Tags			threads
//	@Produce		json
//	@Param			tag		path		string	true	"Thread tag"
//	@Param			filter	query		string	false	"Only snippets carrying this tag"
//	@Success		200		{object}	threadservice.ShowResult
//	@Success		304
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/threads/{tag} [get]
func (h *Handler) GetThread(w http.ResponseWriter, r *http.Request) {
	res, err := h.svc.Show(chi.URLParam(r, "tag"), threadservice.ShowOptions{
		FilterTag: r.URL.Query().Get("filter"),
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if etag, err := checksum.ETag(res); err == nil {
		w.Header().Set("ETag", etag)
		if r.Header.Get("If-None-Match") == etag {
			w.WriteHeader(http.StatusNotModified)
			return
		}
	}
	writeJSON(w, http.StatusOK, res)
}

// CreateThread handles POST /api/threads.
//
//	@Summary		Create an empty thread
//	@Tags			threads
//	@Accept			json
//	@Produce		json
//	@Param			body	body		CreateThreadRequest	true	"Thread to create"
//	@Success		201		{object}	threadservice.CreateResult
//	@Failure		400		{object}	errResponse
//	@Failure		409		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/threads [post]
func (h *Handler) CreateThread(w http.ResponseWriter, r *http.Request) {
	var req CreateThreadRequest
	if err := decodeBody(w, r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	res, err := h.svc.Create(r.Context(), threadservice.CreateInput{
		Tag:     req.Tag,
		Summary: req.Summary,
		ChatURL: req.ChatURL,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

// AddSnippet handles POST /api/threads/{tag}/snippets.
// The thread is created when it does not exist.
//
//	@Summary		Append a snippet
//	@Tags			threads
//	@Accept			json
//	@Produce		json
//	@Param			tag		path		string				true	"Thread tag"
//	@Param			body	body		AddSnippetRequest	true	"Snippet"
//	@Success		201		{object}	threadservice.SnippetResult
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/threads/{tag}/snippets [post]
func (h *Handler) AddSnippet(w http.ResponseWriter, r *http.Request) {
	var req AddSnippetRequest
	if err := decodeBody(w, r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	res, err := h.svc.AddSnippet(r.Context(), threadservice.SnippetInput{
		Tag:     chi.URLParam(r, "tag"),
		Content: req.Content,
		Source:  req.Source,
		URL:     req.URL,
		Tags:    req.Tags,
		Summary: req.Summary,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

// AttachFile handles POST /api/threads/{tag}/files.
//
//	@Summary		Link a file to a thread
//	@Tags			files
//	@Accept			json
//	@Produce		json
//	@Param			tag		path		string				true	"Thread tag"
//	@Param			body	body		AttachFileRequest	true	"File"
//	@Success		200		{object}	threadservice.AttachResult
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/threads/{tag}/files [post]
func (h *Handler) AttachFile(w http.ResponseWriter, r *http.Request) {
	var req AttachFileRequest
	if err := decodeBody(w, r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	res, err := h.svc.Attach(r.Context(), chi.URLParam(r, "tag"), req.Path)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// DetachFile handles DELETE /api/threads/{tag}/files?path=.
//
//	@Summary		Unlink a file from a thread
//	@Tags			files
//	@Produce		json
//	@Param			tag		path		string	true	"Thread tag"
//	@Param			path	query		string	true	"File path"
//	@Success		200		{object}	threadservice.DetachResult
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/threads/{tag}/files [delete]
func (h *Handler) DetachFile(w http.ResponseWriter, r *http.Request) {
	res, err := h.svc.Detach(r.Context(), chi.URLParam(r, "tag"), r.URL.Query().Get("path"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// Explain handles GET /api/explain?path=.
//
//	@Summary		List the threads linking a file
//	@Tags			files
//	@Produce		json
//	@Param			path	query		string	true	"File path"
//	@Success		200		{object}	threadservice.ExplainResult
//	@Security		BearerAuth
//	@Router			/explain [get]
func (h *Handler) Explain(w http.ResponseWriter, r *http.Request) {
	res, err := h.svc.Explain(r.URL.Query().Get("path"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// Pending handles GET /api/pending.
//
//	@Summary		List tracked files not linked to any thread
//	@Tags			files
//	@Produce		json
//	@Success		200	{array}	threadservice.PendingSummary
//	@Security		BearerAuth
//	@Router			/pending [get]
func (h *Handler) Pending(w http.ResponseWriter, r *http.Request) {
	res, err := h.svc.List(threadservice.ListOptions{SinceDays: -1, IncludePending: true})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"pending": res.Pending})
}

// Search handles GET /api/search?q=.
//
//	@Summary		Keyword search over tags, summaries and snippets
//	@Tags			search
//	@Produce		json
//	@Param			q	query		string	true	"Query"
//	@Success		200	{object}	threadservice.SearchResult
//	@Failure		400	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/search [get]
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	res, err := h.svc.Search(r.URL.Query().Get("q"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// SemanticSearch handles GET /api/semantic-search?q=&limit=.
//
//	@Summary		Similarity search over the semantic index
//	@Tags			search
//	@Produce		json
//	@Param			q		query		string	true	"Query"
//	@Param			limit	query		int		false	"Max results"
//	@Success		200		{object}	threadservice.SemanticResult
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/semantic-search [get]
func (h *Handler) SemanticSearch(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	res, err := h.svc.SemanticSearch(r.Context(), r.URL.Query().Get("q"), limit)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// Analytics handles GET /api/analytics.
//
//	@Summary		Usage analytics
//	@Tags			reports
//	@Produce		json
//	@Success		200	{object}	threadservice.Analytics
//	@Security		BearerAuth
//	@Router			/analytics [get]
func (h *Handler) Analytics(w http.ResponseWriter, r *http.Request) {
	res, err := h.svc.Analytics()
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// Status handles GET /api/status.
//
//	@Summary		Store paths and semantic index state
//	@Tags			reports
//	@Produce		json
//	@Success		200	{object}	threadservice.Status
//	@Security		BearerAuth
//	@Router			/status [get]
func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	res, err := h.svc.Status(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}
