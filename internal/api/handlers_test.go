package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/FocuswithJustin/reflink/core/citation"
	"github.com/FocuswithJustin/reflink/internal/index"
	"github.com/FocuswithJustin/reflink/internal/logging"
	"github.com/FocuswithJustin/reflink/internal/site"
)

func newTestServer(t *testing.T, cfg Config) *Server {
	t.Helper()
	s := NewServer(cfg)
	t.Cleanup(s.Close)
	return s
}

// do runs one request through the full middleware chain.
func do(t *testing.T, h http.Handler, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, r)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

// decode unmarshals the envelope and, when data is non-nil, its payload.
func decode(t *testing.T, w *httptest.ResponseRecorder, data any) APIResponse {
	t.Helper()
	var raw struct {
		APIResponse
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &raw); err != nil {
		t.Fatalf("failed to decode response %q: %v", w.Body.String(), err)
	}
	if data != nil && len(raw.Data) > 0 {
		if err := json.Unmarshal(raw.Data, data); err != nil {
			t.Fatalf("failed to decode data: %v", err)
		}
	}
	return raw.APIResponse
}

func TestHandleRoot(t *testing.T) {
	h := newTestServer(t, Config{}).Handler()

	w := do(t, h, http.MethodGet, "/", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}
	var info map[string]any
	resp := decode(t, w, &info)
	if !resp.Success || info["name"] != "reflink" {
		t.Errorf("unexpected root response: %+v %v", resp, info)
	}
	if w.Header().Get("X-Content-Type-Options") != "nosniff" {
		t.Error("security headers missing")
	}
	if w.Header().Get("X-Request-ID") == "" {
		t.Error("request id header missing")
	}

	w = do(t, h, http.MethodGet, "/nope", "")
	if w.Code != http.StatusNotFound {
		t.Errorf("unknown path: expected 404, got %d", w.Code)
	}
	if resp := decode(t, w, nil); resp.Success || resp.Error == nil || resp.Error.Code != "NOT_FOUND" {
		t.Errorf("unknown path response = %+v", resp)
	}
}

func TestHandleHealth(t *testing.T) {
	w := do(t, newTestServer(t, Config{}).Handler(), http.MethodGet, "/health", "")
	var info HealthInfo
	decode(t, w, &info)
	if w.Code != http.StatusOK || info.Status != "healthy" || info.Clients != 0 {
		t.Errorf("health = %d %+v", w.Code, info)
	}
}

func TestHandleRewrite(t *testing.T) {
	h := newTestServer(t, Config{}).Handler()

	tests := []struct {
		name      string
		body      string
		status    int
		code      string
		changed   bool
		contains  string
		citations int
	}{
		{
			name:      "html",
			body:      `{"format":"html","content":"<p>Read John 3:16.</p>"}`,
			status:    http.StatusOK,
			changed:   true,
			contains:  `href="https://biblehub.com/john/3-16.htm"`,
			citations: 1,
		},
		{
			name:      "default format is text",
			body:      `{"content":"Ps 23 and Rom 8:28 KJV"}`,
			status:    http.StatusOK,
			changed:   true,
			contains:  "https://biblehub.com/nlt/psalms/23.htm",
			citations: 2,
		},
		{
			name:     "no citations",
			body:     `{"format":"markdown","content":"nothing"}`,
			status:   http.StatusOK,
			contains: "nothing",
		},
		{
			name:   "unknown format",
			body:   `{"format":"pdf","content":"John 3:16"}`,
			status: http.StatusBadRequest,
			code:   "UNSUPPORTED",
		},
		{
			name:   "malformed xhtml",
			body:   `{"format":"xhtml","content":"<p>John 3:16"}`,
			status: http.StatusUnprocessableEntity,
			code:   "INVALID_INPUT",
		},
		{
			name:   "not json",
			body:   `format=html`,
			status: http.StatusBadRequest,
			code:   "INVALID_REQUEST",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(t, h, http.MethodPost, "/rewrite", tt.body)
			if w.Code != tt.status {
				t.Fatalf("expected status %d, got %d: %s", tt.status, w.Code, w.Body.String())
			}
			var got RewriteResponse
			resp := decode(t, w, &got)
			if tt.code != "" {
				if resp.Error == nil || resp.Error.Code != tt.code {
					t.Errorf("error = %+v, want code %s", resp.Error, tt.code)
				}
				return
			}
			if got.Changed != tt.changed || len(got.Citations) != tt.citations {
				t.Errorf("changed %v, citations %d; want %v, %d", got.Changed, len(got.Citations), tt.changed, tt.citations)
			}
			if !strings.Contains(got.Content, tt.contains) {
				t.Errorf("content %q does not contain %q", got.Content, tt.contains)
			}
		})
	}
}

func TestHandleRewriteCitationFields(t *testing.T) {
	w := do(t, newTestServer(t, Config{}).Handler(), http.MethodPost, "/rewrite",
		`{"format":"text","content":"see 1 Cor 13:4-7 NIV"}`)
	var got RewriteResponse
	decode(t, w, &got)
	if len(got.Citations) != 1 {
		t.Fatalf("citations = %+v", got.Citations)
	}
	c := got.Citations[0]
	if c.Book != "1 corinthians" || c.Chapter != 13 || c.Verse != 4 || c.VerseEnd != 7 || c.Version != citation.NIV {
		t.Errorf("citation = %+v", c.Citation)
	}
	if c.Href != "https://biblehub.com/niv/1_corinthians/13.htm" || c.Text != "1 Cor 13:4-7 NIV" {
		t.Errorf("link = %s %q", c.Href, c.Text)
	}
}

func TestHandleRewriteBodyLimit(t *testing.T) {
	h := newTestServer(t, Config{MaxBodyBytes: 16}).Handler()
	w := do(t, h, http.MethodPost, "/rewrite", `{"content":"`+strings.Repeat("x", 64)+`"}`)
	if w.Code != http.StatusRequestEntityTooLarge {
		t.Errorf("expected 413, got %d", w.Code)
	}
}

func TestHandleResolve(t *testing.T) {
	h := newTestServer(t, Config{}).Handler()

	w := do(t, h, http.MethodGet, "/resolve?q=jn+3:16", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var got ResolveResponse
	decode(t, w, &got)
	if got.Citation.Book != "john" || got.Link.Href != "https://biblehub.com/john/3-16.htm" {
		t.Errorf("resolve = %+v", got)
	}
	if !strings.Contains(got.Anchor, "John 3:16") {
		t.Errorf("anchor = %q", got.Anchor)
	}

	tests := []struct {
		target string
		status int
	}{
		{"/resolve", http.StatusBadRequest},
		{"/resolve?q=hello", http.StatusNotFound},
		{"/resolve?q=John+0", http.StatusUnprocessableEntity},
	}
	for _, tt := range tests {
		if w := do(t, h, http.MethodGet, tt.target, ""); w.Code != tt.status {
			t.Errorf("%s: expected %d, got %d", tt.target, tt.status, w.Code)
		}
	}
}

func TestHandleBooks(t *testing.T) {
	w := do(t, newTestServer(t, Config{}).Handler(), http.MethodGet, "/books", "")
	var list []BookInfo
	resp := decode(t, w, &list)
	if len(list) != 66 || resp.Meta == nil || resp.Meta.Total != 66 {
		t.Fatalf("books = %d, meta %+v", len(list), resp.Meta)
	}
	if list[0].ID != "genesis" || list[0].Name != "Genesis" || len(list[0].Aliases) < 2 {
		t.Errorf("first book = %+v", list[0])
	}
}

func TestIndexRoutes(t *testing.T) {
	ctx := context.Background()
	ix, err := index.Open(filepath.Join(t.TempDir(), "index.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer ix.Close()

	run, _ := ix.BeginRun(ctx, "test")
	res := citation.Default().Rewrite("John 3:16 and Gen 1")
	var links []citation.Segment
	for _, s := range res.Segments {
		if s.IsLink() {
			links = append(links, s)
		}
	}
	if _, err := ix.Record(ctx, run, "a.html", []byte("x"), links); err != nil {
		t.Fatal(err)
	}

	h := newTestServer(t, Config{Index: ix}).Handler()

	var counts []index.BookCount
	w := do(t, h, http.MethodGet, "/index/books?limit=1", "")
	decode(t, w, &counts)
	if w.Code != http.StatusOK || len(counts) != 1 {
		t.Errorf("index/books = %d %+v", w.Code, counts)
	}

	var occ []index.Occurrence
	w = do(t, h, http.MethodGet, "/index/find?book=Jn", "")
	decode(t, w, &occ)
	if w.Code != http.StatusOK || len(occ) != 1 || occ[0].Path != "a.html" {
		t.Errorf("index/find = %d %+v", w.Code, occ)
	}

	for target, status := range map[string]int{
		"/index/find?book=nowhere": http.StatusNotFound,
		"/index/find":              http.StatusBadRequest,
		"/index/books?limit=-1":    http.StatusBadRequest,
	} {
		if w := do(t, h, http.MethodGet, target, ""); w.Code != status {
			t.Errorf("%s: expected %d, got %d", target, status, w.Code)
		}
	}

	var health HealthInfo
	decode(t, do(t, h, http.MethodGet, "/health", ""), &health)
	if health.Documents != 1 {
		t.Errorf("health documents = %d", health.Documents)
	}

	// without an index the routes do not exist
	plain := newTestServer(t, Config{}).Handler()
	if w := do(t, plain, http.MethodGet, "/index/books", ""); w.Code != http.StatusNotFound {
		t.Errorf("index route without index: got %d", w.Code)
	}
}

func TestIndexBooksCache(t *testing.T) {
	ctx := context.Background()
	ix, err := index.Open(filepath.Join(t.TempDir(), "index.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer ix.Close()

	record := func(path, text string) {
		t.Helper()
		run, err := ix.BeginRun(ctx, "test")
		if err != nil {
			t.Fatal(err)
		}
		var links []citation.Segment
		for _, s := range citation.Default().Rewrite(text).Segments {
			if s.IsLink() {
				links = append(links, s)
			}
		}
		if _, err := ix.Record(ctx, run, path, []byte(text), links); err != nil {
			t.Fatal(err)
		}
	}
	books := func(h http.Handler) int {
		t.Helper()
		var counts []index.BookCount
		decode(t, do(t, h, http.MethodGet, "/index/books", ""), &counts)
		return len(counts)
	}

	record("a.html", "John 3:16")
	s := newTestServer(t, Config{Index: ix})
	h := s.Handler()
	if n := books(h); n != 1 {
		t.Fatalf("books = %d, want 1", n)
	}

	record("b.html", "Ps 23")
	if n := books(h); n != 1 {
		t.Errorf("books before notify = %d, want cached 1", n)
	}

	s.Notify(site.FileResult{Path: "b.html", Changed: true, Citations: 1})
	if n := books(h); n != 2 {
		t.Errorf("books after notify = %d, want 2", n)
	}

	uncached := newTestServer(t, Config{Index: ix, CacheTTL: -1}).Handler()
	record("c.html", "Rev 1")
	if n := books(uncached); n != 3 {
		t.Errorf("uncached books = %d, want 3", n)
	}
}

func TestMetrics(t *testing.T) {
	h := newTestServer(t, Config{}).Handler()
	do(t, h, http.MethodPost, "/rewrite", `{"format":"html","content":"<p>John 3:16</p>"}`)
	do(t, h, http.MethodPost, "/rewrite", `{"format":"html","content":"<p>none</p>"}`)

	w := do(t, h, http.MethodGet, "/metrics", "")
	body := w.Body.String()
	for _, want := range []string{
		`reflink_rewrites_total{changed="true",format="html"} 1`,
		`reflink_rewrites_total{changed="false",format="html"} 1`,
		`reflink_citations_total{rule="verse"} 1`,
		`reflink_rewrite_duration_seconds_count 2`,
	} {
		if !strings.Contains(body, want) {
			t.Errorf("metrics missing %q", want)
		}
	}
}

func TestCORS(t *testing.T) {
	h := newTestServer(t, Config{AllowedOrigins: []string{"https://a.example"}}).Handler()

	preflight := func(origin string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodOptions, "/rewrite", nil)
		req.Header.Set("Origin", origin)
		w := httptest.NewRecorder()
		h.ServeHTTP(w, req)
		return w
	}

	if w := preflight("https://a.example"); w.Code != http.StatusNoContent ||
		w.Header().Get("Access-Control-Allow-Origin") != "https://a.example" {
		t.Errorf("allowed preflight = %d %q", w.Code, w.Header().Get("Access-Control-Allow-Origin"))
	}
	if w := preflight("https://evil.example"); w.Code != http.StatusForbidden {
		t.Errorf("foreign preflight = %d, want 403", w.Code)
	}

	open := newTestServer(t, Config{}).Handler()
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Origin", "https://any.example")
	w := httptest.NewRecorder()
	open.ServeHTTP(w, req)
	if w.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Errorf("permissive CORS header = %q", w.Header().Get("Access-Control-Allow-Origin"))
	}
}

func TestRateLimitMiddleware(t *testing.T) {
	var logs bytes.Buffer
	prev := logging.GetLogger()
	logging.SetLogger(logging.NewLogger(&logs, logging.LevelDebug, logging.FormatJSON))
	t.Cleanup(func() { logging.SetLogger(prev) })

	h := newTestServer(t, Config{RateLimitRequests: 1, RateLimitBurst: 2}).Handler()

	codes := make([]int, 3)
	for i := range codes {
		codes[i] = do(t, h, http.MethodGet, "/health", "").Code
	}
	if codes[0] != http.StatusOK || codes[1] != http.StatusOK || codes[2] != http.StatusTooManyRequests {
		t.Errorf("status codes = %v, want [200 200 429]", codes)
	}

	w := do(t, h, http.MethodGet, "/health", "")
	if w.Header().Get("Retry-After") == "" {
		t.Error("Retry-After header missing")
	}
	if resp := decode(t, w, nil); resp.Error == nil || resp.Error.Code != "RATE_LIMIT_EXCEEDED" {
		t.Errorf("rate limit response = %+v", resp)
	}

	out := logs.String()
	if !strings.Contains(out, `"msg":"rate limit exceeded"`) || !strings.Contains(out, `"request_id":"`) {
		t.Errorf("rate limit log missing or without request id:\n%s", out)
	}
}

func TestWriteJSONEnvelope(t *testing.T) {
	w := httptest.NewRecorder()
	respondList(w, []int{1, 2}, 2)
	if ct := w.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q", ct)
	}
	var got []int
	resp := decode(t, w, &got)
	if !resp.Success || resp.Meta.Total != 2 || resp.Meta.Timestamp == "" || len(got) != 2 {
		t.Errorf("envelope = %+v, data %v", resp, got)
	}
}
