package api

import (
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/FocuswithJustin/reflink/internal/logging"
)

// tokenBucket refills continuously at rate tokens per second up to
// capacity.
type tokenBucket struct {
	mu       sync.Mutex
	tokens   float64
	capacity float64
	rate     float64
	last     time.Time
}

func newTokenBucket(capacity, rate float64) *tokenBucket {
	return &tokenBucket{tokens: capacity, capacity: capacity, rate: rate, last: time.Now()}
}

// refill must be called with mu held.
func (b *tokenBucket) refill(now time.Time) {
	b.tokens = min(b.capacity, b.tokens+now.Sub(b.last).Seconds()*b.rate)
	b.last = now
}

// take consumes a token if one is available. It also returns the tokens
// left and how long until the next one.
func (b *tokenBucket) take() (ok bool, remaining int, wait time.Duration) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.refill(time.Now())
	if b.tokens >= 1 {
		b.tokens--
		ok = true
	}
	if b.tokens < 1 && b.rate > 0 {
		wait = time.Duration((1 - b.tokens) / b.rate * float64(time.Second))
	}
	return ok, int(b.tokens), wait
}

func (b *tokenBucket) idleSince() time.Time {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.last
}

// RateLimiter keeps one token bucket per client address.
type RateLimiter struct {
	perMinute int
	burst     int
	ttl       time.Duration

	mu      sync.Mutex
	buckets map[string]*tokenBucket
}

// NewRateLimiter allows perMinute requests per client with bursts of up to
// burst. A burst of zero defaults to 10.
func NewRateLimiter(perMinute, burst int) *RateLimiter {
	if burst <= 0 {
		burst = 10
	}
	return &RateLimiter{
		perMinute: perMinute,
		burst:     burst,
		ttl:       5 * time.Minute,
		buckets:   make(map[string]*tokenBucket),
	}
}

func (rl *RateLimiter) bucket(client string) *tokenBucket {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	b, ok := rl.buckets[client]
	if !ok {
		b = newTokenBucket(float64(rl.burst), float64(rl.perMinute)/60)
		rl.buckets[client] = b
	}
	return b
}

// Allow consumes one request for client.
func (rl *RateLimiter) Allow(client string) bool {
	ok, _, _ := rl.bucket(client).take()
	return ok
}

// prune drops buckets idle for longer than the ttl.
func (rl *RateLimiter) prune(now time.Time) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	for client, b := range rl.buckets {
		if now.Sub(b.idleSince()) > rl.ttl {
			delete(rl.buckets, client)
		}
	}
}

// Middleware rejects requests over the limit with 429 and sets the
// X-RateLimit headers on every response.
func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := clientIP(r)
		ok, remaining, wait := rl.bucket(ip).take()

		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(rl.perMinute))
		w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(remaining))

		if !ok {
			retry := int(wait.Seconds()) + 1
			logging.WarnContext(r.Context(), "rate limit exceeded", "client", ip, "path", r.URL.Path)
			w.Header().Set("Retry-After", strconv.Itoa(retry))
			respondError(w, http.StatusTooManyRequests, "RATE_LIMIT_EXCEEDED",
				fmt.Sprintf("Rate limit exceeded. Try again in %d seconds.", retry))
			return
		}
		next.ServeHTTP(w, r)
	})
}

// clientIP prefers the leftmost X-Forwarded-For address, then X-Real-IP,
// then the connection's remote address. Header values that are not IP
// addresses are ignored.
func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		first, _, _ := strings.Cut(fwd, ",")
		if ip := strings.TrimSpace(first); net.ParseIP(ip) != nil {
			return ip
		}
	}
	if ip := strings.TrimSpace(r.Header.Get("X-Real-IP")); net.ParseIP(ip) != nil {
		return ip
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	if net.ParseIP(host) != nil {
		return host
	}
	return "unknown"
}
