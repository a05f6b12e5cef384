// Package api serves citation linking over HTTP: one-shot rewrites and
// lookups as JSON, a websocket live preview, and Prometheus metrics.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/FocuswithJustin/reflink/internal/cache"
	"github.com/FocuswithJustin/reflink/internal/index"
	"github.com/FocuswithJustin/reflink/internal/logging"
	"github.com/FocuswithJustin/reflink/internal/site"
)

// Server is a configured API server. Its hub runs from NewServer until
// Close.
type Server struct {
	cfg      Config
	hub      *Hub
	metrics  *Metrics
	limiter  *RateLimiter
	counts   *cache.TTLCache[int, []index.BookCount]
	upgrader websocket.Upgrader
	started  time.Time

	cancel    context.CancelFunc
	closeOnce sync.Once
}

// NewServer builds a server and starts its websocket hub.
func NewServer(cfg Config) *Server {
	s := &Server{
		cfg:     cfg,
		hub:     NewHub(),
		metrics: NewMetrics(),
		counts:  cache.New[int, []index.BookCount](cfg.cacheTTL()),
		started: time.Now(),
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     s.checkOrigin,
	}
	s.hub.onCount = func(n int) { s.metrics.wsClients.Set(float64(n)) }
	if cfg.RateLimitRequests > 0 {
		s.limiter = NewRateLimiter(cfg.RateLimitRequests, cfg.RateLimitBurst)
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	go s.hub.Run(ctx)
	if s.limiter != nil {
		go s.pruneLimiter(ctx)
	}
	return s
}

// Close disconnects every websocket client and stops background work.
func (s *Server) Close() {
	s.closeOnce.Do(func() {
		s.cancel()
		<-s.hub.done
	})
}

// Metrics returns the server's collectors.
func (s *Server) Metrics() *Metrics {
	return s.metrics
}

// Notify broadcasts a processed file to the live preview clients and drops
// cached index summaries when the file changed. Its
// signature fits site.Processor.Watch.
func (s *Server) Notify(res site.FileResult) {
	if res.Changed {
		s.counts.Invalidate()
	}
	msg := Message{Type: "document", Document: &res}
	if res.Err != nil {
		msg.Error = &APIError{Code: "PROCESS_FAILED", Message: res.Err.Error()}
	}
	s.hub.Broadcast(msg)
}

func (s *Server) pruneLimiter(ctx context.Context) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			s.limiter.prune(now)
		}
	}
}

// routes configures all HTTP routes.
func (s *Server) routes() *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("/", s.handleRoot)
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("POST /rewrite", s.handleRewrite)
	mux.HandleFunc("GET /resolve", s.handleResolve)
	mux.HandleFunc("GET /books", s.handleBooks)
	mux.HandleFunc("GET /ws", s.handleWebSocket)
	mux.Handle("GET /metrics", s.metrics.Handler())
	if s.cfg.Index != nil {
		mux.HandleFunc("GET /index/books", s.handleIndexBooks)
		mux.HandleFunc("GET /index/find", s.handleIndexFind)
	}
	return mux
}

// Handler returns the routes wrapped in the middleware chain. From the
// inside out: security headers, rate limiting, CORS, then request logging.
func (s *Server) Handler() http.Handler {
	var handler http.Handler = securityHeaders(s.routes())
	if s.limiter != nil {
		handler = s.limiter.Middleware(handler)
	}
	handler = corsMiddleware(s.cfg.AllowedOrigins, handler)
	return logging.CombinedMiddleware(handler)
}

// ListenAndServe serves on cfg.Port until ctx is done, then shuts down
// gracefully and closes the server.
func (s *Server) ListenAndServe(ctx context.Context) error {
	defer s.Close()

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", s.cfg.Port),
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	if len(s.cfg.AllowedOrigins) > 0 {
		logging.Info("cors configured", "mode", "restricted", "allowed_origins_count", len(s.cfg.AllowedOrigins))
	} else {
		logging.Info("cors configured", "mode", "permissive")
	}
	if s.limiter != nil {
		logging.Info("rate limiting enabled",
			"requests_per_minute", s.cfg.RateLimitRequests,
			"burst_size", s.limiter.burst)
	}
	logging.ServerStartup("rest_api", "http", s.cfg.Port,
		"websocket_protocol", "ws",
		"index", s.cfg.Index != nil)

	errc := make(chan error, 1)
	go func() { errc <- srv.ListenAndServe() }()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}
	logging.InfoContext(ctx, "server shutting down", "port", s.cfg.Port, "clients", s.hub.ClientCount())

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errc; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Start serves cfg until ctx is done.
func Start(ctx context.Context, cfg Config) error {
	return NewServer(cfg).ListenAndServe(ctx)
}
