package middleware

import (
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/utafrali/docsearch/pkg/httputil"
)

// RateLimitConfig sets a per-client token bucket. RPS <= 0 disables limiting.
type RateLimitConfig struct {
	RPS   float64
	Burst int
	// IdleTTL is how long an unseen client's bucket is kept.
	IdleTTL time.Duration
}

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// clientBuckets holds one limiter per client address. Idle buckets are
// evicted on access, at most once per ttl.
type clientBuckets struct {
	mu        sync.Mutex
	clients   map[string]*visitor
	limit     rate.Limit
	burst     int
	ttl       time.Duration
	lastSweep time.Time
	now       func() time.Time
}

func newClientBuckets(cfg RateLimitConfig) *clientBuckets {
	if cfg.Burst < 1 {
		cfg.Burst = 1
	}
	if cfg.IdleTTL <= 0 {
		cfg.IdleTTL = 3 * time.Minute
	}
	return &clientBuckets{
		clients: make(map[string]*visitor),
		limit:   rate.Limit(cfg.RPS),
		burst:   cfg.Burst,
		ttl:     cfg.IdleTTL,
		now:     time.Now,
	}
}

func (b *clientBuckets) allow(addr string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.now()
	if now.Sub(b.lastSweep) > b.ttl {
		for k, c := range b.clients {
			if now.Sub(c.lastSeen) > b.ttl {
				delete(b.clients, k)
			}
		}
		b.lastSweep = now
	}

	c, ok := b.clients[addr]
	if !ok {
		c = &visitor{limiter: rate.NewLimiter(b.limit, b.burst)}
		b.clients[addr] = c
	}
	c.lastSeen = now
	return c.limiter.AllowN(now, 1)
}

func (b *clientBuckets) len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.clients)
}

// RateLimit answers 429 once a client exceeds its token bucket.
func RateLimit(cfg RateLimitConfig, logger *slog.Logger) func(http.Handler) http.Handler {
	if cfg.RPS <= 0 {
		return func(next http.Handler) http.Handler { return next }
	}
	buckets := newClientBuckets(cfg)
	return rateLimit(buckets, logger)
}

func rateLimit(buckets *clientBuckets, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			addr := clientIP(r)
			if !buckets.allow(addr) {
				logger.WarnContext(r.Context(), "rate limit exceeded",
					slog.String("ip", addr),
					slog.String("path", r.URL.Path),
				)
				w.Header().Set("Retry-After", "1")
				httputil.WriteJSON(w, http.StatusTooManyRequests, httputil.Response{
					Error: &httputil.ErrorResponse{Code: "RATE_LIMITED", Message: "too many requests"},
				})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// clientIP prefers the first address in X-Forwarded-For, then X-Real-IP,
// then the connection's remote address.
func clientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		if ip := net.ParseIP(strings.TrimSpace(first)); ip != nil {
			return ip.String()
		}
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		if ip := net.ParseIP(strings.TrimSpace(xri)); ip != nil {
			return ip.String()
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
