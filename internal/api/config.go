package api

import (
	"time"

	"github.com/FocuswithJustin/reflink/core/books"
	"github.com/FocuswithJustin/reflink/core/citation"
	"github.com/FocuswithJustin/reflink/internal/document"
	"github.com/FocuswithJustin/reflink/internal/index"
)

// DefaultMaxBodyBytes caps the size of a rewrite request body.
const DefaultMaxBodyBytes = 4 << 20

// DefaultCacheTTL is how long /index/books results are reused.
const DefaultCacheTTL = 30 * time.Second

// Config holds server configuration.
type Config struct {
	Port           int
	AllowedOrigins []string // CORS allowed origins (empty = allow all)

	Rewriter *citation.Rewriter // nil = citation.Default()
	Table    *books.Table       // served by /books; nil = books.Default()
	Options  document.Options
	Index    *index.Index  // enables /index routes when set
	CacheTTL time.Duration // 0 = DefaultCacheTTL, negative = no caching

	RateLimitRequests int // Requests per minute per client (0 = disabled)
	RateLimitBurst    int
	MaxBodyBytes      int64 // 0 = DefaultMaxBodyBytes
}

func (c Config) rewriter() *citation.Rewriter {
	if c.Rewriter != nil {
		return c.Rewriter
	}
	return citation.Default()
}

func (c Config) table() *books.Table {
	if c.Table != nil {
		return c.Table
	}
	return books.Default()
}

func (c Config) maxBody() int64 {
	if c.MaxBodyBytes > 0 {
		return c.MaxBodyBytes
	}
	return DefaultMaxBodyBytes
}

func (c Config) cacheTTL() time.Duration {
	if c.CacheTTL == 0 {
		return DefaultCacheTTL
	}
	return c.CacheTTL
}
