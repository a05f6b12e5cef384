package api

import (
	"encoding/json"
	stderrors "errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/FocuswithJustin/reflink/core/books"
	"github.com/FocuswithJustin/reflink/core/citation"
	"github.com/FocuswithJustin/reflink/core/errors"
	"github.com/FocuswithJustin/reflink/internal/document"
	"github.com/FocuswithJustin/reflink/internal/index"
	"github.com/FocuswithJustin/reflink/internal/logging"
)

// Version is reported by / and /health.
var Version = "dev"

// APIResponse is the standard API response wrapper.
type APIResponse struct {
	Success bool      `json:"success"`
	Data    any       `json:"data,omitempty"`
	Error   *APIError `json:"error,omitempty"`
	Meta    *APIMeta  `json:"meta,omitempty"`
}

// APIError represents an API error.
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// APIMeta contains response metadata.
type APIMeta struct {
	Total     int    `json:"total,omitempty"`
	Timestamp string `json:"timestamp"`
}

// RewriteRequest is the body of POST /rewrite. Format defaults to text.
type RewriteRequest struct {
	Format  string `json:"format"`
	Content string `json:"content"`
}

// CitationLink is one placed link.
type CitationLink struct {
	citation.Citation
	citation.LinkResult
	Text string `json:"text"`
}

// RewriteResponse is the result of a rewrite.
type RewriteResponse struct {
	Format    document.Format `json:"format"`
	Changed   bool            `json:"changed"`
	Content   string          `json:"content"`
	Citations []CitationLink  `json:"citations"`
	Warnings  []string        `json:"warnings,omitempty"`
}

// ResolveResponse is the result of GET /resolve.
type ResolveResponse struct {
	Query    string              `json:"query"`
	Citation citation.Citation   `json:"citation"`
	Link     citation.LinkResult `json:"link"`
	Anchor   string              `json:"anchor"`
}

// BookInfo describes one canonical book.
type BookInfo struct {
	ID      string   `json:"id"`
	Name    string   `json:"name"`
	Path    string   `json:"path"`
	Aliases []string `json:"aliases"`
}

// HealthInfo is the health check response.
type HealthInfo struct {
	Status    string `json:"status"`
	Version   string `json:"version"`
	Uptime    string `json:"uptime"`
	Clients   int    `json:"clients"`
	Documents int    `json:"documents,omitempty"`
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		respondError(w, http.StatusNotFound, "NOT_FOUND", "Endpoint not found")
		return
	}

	endpoints := []string{
		"GET /health",
		"POST /rewrite",
		"GET /resolve?q=",
		"GET /books",
		"GET /metrics",
		"WS /ws",
	}
	if s.cfg.Index != nil {
		endpoints = append(endpoints, "GET /index/books?limit=", "GET /index/find?book=")
	}
	respond(w, http.StatusOK, map[string]any{
		"name":      "reflink",
		"version":   Version,
		"formats":   document.Formats(),
		"versions":  citation.Versions(),
		"endpoints": endpoints,
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	info := HealthInfo{
		Status:  "healthy",
		Version: Version,
		Uptime:  time.Since(s.started).Round(time.Second).String(),
		Clients: s.hub.ClientCount(),
	}
	if s.cfg.Index != nil {
		n, err := s.cfg.Index.DocumentCount(r.Context())
		if err != nil {
			respondErr(w, r, err)
			return
		}
		info.Documents = n
	}
	respond(w, http.StatusOK, info)
}

func (s *Server) handleRewrite(w http.ResponseWriter, r *http.Request) {
	var req RewriteRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, s.cfg.maxBody()))
	if err := dec.Decode(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if stderrors.As(err, &tooLarge) {
			respondError(w, http.StatusRequestEntityTooLarge, "TOO_LARGE", "Request body too large")
			return
		}
		respondError(w, http.StatusBadRequest, "INVALID_REQUEST", "Body must be a JSON rewrite request")
		return
	}

	resp, err := s.rewrite(req)
	if err != nil {
		respondErr(w, r, err)
		return
	}
	respond(w, http.StatusOK, resp)
}

// rewrite runs one request through the document pipeline and records it
// in the metrics. The HTTP and websocket paths share it.
func (s *Server) rewrite(req RewriteRequest) (RewriteResponse, error) {
	format, err := document.ParseFormat(req.Format)
	if err != nil {
		return RewriteResponse{}, err
	}

	start := time.Now()
	out, st, err := document.RewriteString(format, req.Content, s.cfg.rewriter(), s.cfg.Options)
	if err != nil {
		return RewriteResponse{}, err
	}
	s.metrics.observe(format, st, time.Since(start))

	resp := RewriteResponse{
		Format:    format,
		Changed:   st.Changed > 0,
		Content:   out,
		Citations: make([]CitationLink, 0, len(st.Links)),
	}
	for _, seg := range st.Links {
		resp.Citations = append(resp.Citations, CitationLink{Citation: seg.Citation, LinkResult: *seg.Link, Text: seg.Text})
	}
	for _, warn := range st.Warnings {
		resp.Warnings = append(resp.Warnings, warn.Error())
	}
	return resp, nil
}

func (s *Server) handleResolve(w http.ResponseWriter, r *http.Request) {
	q := strings.TrimSpace(r.URL.Query().Get("q"))
	if q == "" {
		respondError(w, http.StatusBadRequest, "MISSING_QUERY", "Query parameter q is required")
		return
	}
	c, link, err := s.cfg.rewriter().Lookup(q)
	if err != nil {
		respondErr(w, r, err)
		return
	}
	respond(w, http.StatusOK, ResolveResponse{Query: q, Citation: c, Link: link, Anchor: link.Anchor()})
}

func (s *Server) handleBooks(w http.ResponseWriter, r *http.Request) {
	table := s.cfg.table()
	ids := table.Books()
	list := make([]BookInfo, 0, len(ids))
	for _, id := range ids {
		aliases, err := table.Aliases(id)
		if err != nil {
			respondErr(w, r, err)
			return
		}
		list = append(list, BookInfo{ID: id, Name: books.DisplayName(id), Path: books.PathName(id), Aliases: aliases})
	}
	respondList(w, list, len(list))
}

func (s *Server) handleIndexBooks(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			respondError(w, http.StatusBadRequest, "INVALID_LIMIT", "limit must be a non-negative integer")
			return
		}
		limit = n
	}
	counts, err := s.counts.GetOrLoad(limit, func() ([]index.BookCount, error) {
		return s.cfg.Index.BookCounts(r.Context(), limit)
	})
	if err != nil {
		respondErr(w, r, err)
		return
	}
	if counts == nil {
		counts = []index.BookCount{}
	}
	respondList(w, counts, len(counts))
}

func (s *Server) handleIndexFind(w http.ResponseWriter, r *http.Request) {
	q := strings.TrimSpace(r.URL.Query().Get("book"))
	if q == "" {
		respondError(w, http.StatusBadRequest, "MISSING_BOOK", "Query parameter book is required")
		return
	}
	id, ok := s.cfg.table().Resolve(q)
	if !ok {
		respondErr(w, r, errors.NewNotFound("book", q))
		return
	}
	occ, err := s.cfg.Index.Occurrences(r.Context(), id)
	if err != nil {
		respondErr(w, r, err)
		return
	}
	if occ == nil {
		occ = []index.Occurrence{}
	}
	respondList(w, occ, len(occ))
}

// classify maps an error to an API error code, status and message.
func classify(err error) (code string, status int, message string) {
	switch {
	case stderrors.Is(err, errors.ErrNotFound):
		return "NOT_FOUND", http.StatusNotFound, err.Error()
	case stderrors.Is(err, errors.ErrUnsupported):
		return "UNSUPPORTED", http.StatusBadRequest, err.Error()
	case stderrors.Is(err, errors.ErrInvalidInput):
		return "INVALID_INPUT", http.StatusUnprocessableEntity, err.Error()
	}
	return "INTERNAL_ERROR", http.StatusInternalServerError, "Internal server error"
}

func respondErr(w http.ResponseWriter, r *http.Request, err error) {
	code, status, message := classify(err)
	if status == http.StatusInternalServerError {
		logging.ErrorContext(r.Context(), "request failed", "path", r.URL.Path, "error", err)
	} else {
		logging.DebugContext(r.Context(), "request rejected", "path", r.URL.Path, "code", code, "error", err)
	}
	respondError(w, status, code, message)
}

func respond(w http.ResponseWriter, status int, data any) {
	writeJSON(w, status, APIResponse{
		Success: true,
		Data:    data,
		Meta:    &APIMeta{Timestamp: time.Now().UTC().Format(time.RFC3339)},
	})
}

func respondList(w http.ResponseWriter, data any, total int) {
	writeJSON(w, http.StatusOK, APIResponse{
		Success: true,
		Data:    data,
		Meta:    &APIMeta{Total: total, Timestamp: time.Now().UTC().Format(time.RFC3339)},
	})
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, APIResponse{
		Success: false,
		Error:   &APIError{Code: code, Message: message},
		Meta:    &APIMeta{Timestamp: time.Now().UTC().Format(time.RFC3339)},
	})
}

func writeJSON(w http.ResponseWriter, status int, body APIResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}
