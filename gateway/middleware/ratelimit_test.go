package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestRateLimiterBlocksAfterBurst(t *testing.T) {
	limiter := NewRateLimiter(RateLimit{RatePerSecond: 1, Burst: 1})
	handler := limiter.Middleware(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/v1/credit/accounts", nil)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	if res.Code != http.StatusOK {
		t.Fatalf("expected first request to succeed, got %d", res.Code)
	}

	res = httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	if res.Code != http.StatusTooManyRequests {
		t.Fatalf("expected second request to be rate limited, got %d", res.Code)
	}
	if res.Header().Get("Retry-After") == "" {
		t.Fatal("expected Retry-After header on throttled response")
	}
}

func TestRateLimiterAppliesRouteTokens(t *testing.T) {
	limiter := NewRateLimiter(RateLimit{
		RatePerSecond: 5,
		Burst:         5,
		DefaultTokens: 1,
		Tokens: map[string]int{
			"/v1/credit/liquidations": 3,
		},
	})
	handler := limiter.Middleware(okHandler())

	req := httptest.NewRequest(http.MethodPost, "/v1/credit/liquidations", nil)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	if res.Code != http.StatusOK {
		t.Fatalf("expected first liquidation request to succeed, got %d", res.Code)
	}

	res = httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	if res.Code != http.StatusTooManyRequests {
		t.Fatalf("expected second liquidation request to exhaust the burst, got %d", res.Code)
	}

	// Reads only consume the default token cost and still fit the budget.
	readReq := httptest.NewRequest(http.MethodGet, "/v1/credit/config", nil)
	readRes := httptest.NewRecorder()
	handler.ServeHTTP(readRes, readReq)
	if readRes.Code != http.StatusOK {
		t.Fatalf("expected read to succeed with default token cost, got %d", readRes.Code)
	}
}

func TestRateLimiterPrefersAPIKeyOverIP(t *testing.T) {
	limiter := NewRateLimiter(RateLimit{RatePerSecond: 1, Burst: 1})
	handler := limiter.Middleware(okHandler())

	reqA := httptest.NewRequest(http.MethodGet, "/v1/credit/accounts", nil)
	reqA.Header.Set("X-API-Key", "tenant-A")
	resA := httptest.NewRecorder()
	handler.ServeHTTP(resA, reqA)
	if resA.Code != http.StatusOK {
		t.Fatalf("expected tenant A request to succeed, got %d", resA.Code)
	}

	reqB := httptest.NewRequest(http.MethodGet, "/v1/credit/accounts", nil)
	reqB.Header.Set("X-API-Key", "tenant-B")
	resB := httptest.NewRecorder()
	handler.ServeHTTP(resB, reqB)
	if resB.Code != http.StatusOK {
		t.Fatalf("expected tenant B request to succeed, got %d", resB.Code)
	}

	resA = httptest.NewRecorder()
	handler.ServeHTTP(resA, reqA)
	if resA.Code != http.StatusTooManyRequests {
		t.Fatalf("expected tenant A to be throttled on its second request, got %d", resA.Code)
	}
}

func TestClientIDFallbackOrder(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.0.0.9:5123"
	if got := clientID(req); got != "ip:10.0.0.9" {
		t.Fatalf("expected socket peer fallback, got %q", got)
	}

	req.Header.Set("X-Forwarded-For", "203.0.113.7, 10.0.0.1")
	if got := clientID(req); got != "ip:203.0.113.7" {
		t.Fatalf("expected first forwarded hop, got %q", got)
	}

	req.Header.Set("X-Real-IP", "198.51.100.2")
	if got := clientID(req); got != "ip:198.51.100.2" {
		t.Fatalf("expected real-ip to win over forwarded-for, got %q", got)
	}

	req.Header.Set("X-API-Key", "tenant-Z")
	if got := clientID(req); got != "key:tenant-Z" {
		t.Fatalf("expected api key to win, got %q", got)
	}
}
