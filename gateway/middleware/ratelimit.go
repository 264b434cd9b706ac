package middleware

import (
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// RateLimit configures per-client throttling. Tokens maps route prefixes to
// the number of tokens a request on that route consumes; routes without an
// entry consume DefaultTokens.
type RateLimit struct {
	RatePerSecond float64
	Burst         int
	DefaultTokens int
	Tokens        map[string]int
}

// RateLimiter throttles requests per client identity. Clients are keyed by
// API key when present, their forwarded address otherwise.
type RateLimiter struct {
	cfg      RateLimit
	mu       sync.Mutex
	clients  map[string]*rate.Limiter
	clockNow func() time.Time
}

func NewRateLimiter(cfg RateLimit) *RateLimiter {
	if cfg.RatePerSecond <= 0 {
		cfg.RatePerSecond = 10
	}
	if cfg.Burst <= 0 {
		cfg.Burst = int(cfg.RatePerSecond) * 2
	}
	if cfg.DefaultTokens <= 0 {
		cfg.DefaultTokens = 1
	}
	return &RateLimiter{
		cfg:      cfg,
		clients:  make(map[string]*rate.Limiter),
		clockNow: time.Now,
	}
}

// Middleware rejects requests exceeding the client's budget with 429.
func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		limiter := rl.limiterFor(clientID(r))
		if !limiter.AllowN(rl.clockNow(), rl.tokensFor(r.URL.Path)) {
			w.Header().Set("Retry-After", "1")
			http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (rl *RateLimiter) limiterFor(client string) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	limiter, ok := rl.clients[client]
	if !ok {
		limiter = rate.NewLimiter(rate.Limit(rl.cfg.RatePerSecond), rl.cfg.Burst)
		rl.clients[client] = limiter
	}
	return limiter
}

func (rl *RateLimiter) tokensFor(path string) int {
	for prefix, tokens := range rl.cfg.Tokens {
		if tokens > 0 && strings.HasPrefix(path, prefix) {
			return tokens
		}
	}
	return rl.cfg.DefaultTokens
}

// clientID prefers an explicit API key, then the proxy-reported address,
// then the socket peer.
func clientID(r *http.Request) string {
	if key := strings.TrimSpace(r.Header.Get("X-API-Key")); key != "" {
		return "key:" + key
	}
	if ip := strings.TrimSpace(r.Header.Get("X-Real-IP")); ip != "" {
		return "ip:" + ip
	}
	if fwd := strings.TrimSpace(r.Header.Get("X-Forwarded-For")); fwd != "" {
		parts := strings.Split(fwd, ",")
		if first := strings.TrimSpace(parts[0]); first != "" {
			return "ip:" + first
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return "ip:" + r.RemoteAddr
	}
	return "ip:" + host
}
