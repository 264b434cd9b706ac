package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"creditcore/native/common"
)

func TestQuotaGuardDisabledPassesThrough(t *testing.T) {
	guard := NewQuotaGuard(common.Quota{})
	handler := guard.Middleware(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/v1/credit/accounts", nil)
	for i := 0; i < 10; i++ {
		res := httptest.NewRecorder()
		handler.ServeHTTP(res, req)
		if res.Code != http.StatusOK {
			t.Fatalf("request %d: expected pass-through, got %d", i, res.Code)
		}
	}
}

func TestQuotaGuardEnforcesWindow(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	guard := NewQuotaGuard(common.Quota{MaxRequestsPerWindow: 2, WindowSeconds: 60})
	guard.clockNow = func() time.Time { return now }
	handler := guard.Middleware(okHandler())

	req := httptest.NewRequest(http.MethodPost, "/v1/credit/accounts", nil)
	req.Header.Set("X-API-Key", "tenant-A")

	for i := 0; i < 2; i++ {
		res := httptest.NewRecorder()
		handler.ServeHTTP(res, req)
		if res.Code != http.StatusOK {
			t.Fatalf("request %d: expected success, got %d", i, res.Code)
		}
	}

	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	if res.Code != http.StatusTooManyRequests {
		t.Fatalf("expected third request to exceed quota, got %d", res.Code)
	}
	if res.Header().Get("Retry-After") == "" {
		t.Fatal("expected Retry-After header on quota rejection")
	}

	// A different tenant keeps its own counters.
	other := httptest.NewRequest(http.MethodPost, "/v1/credit/accounts", nil)
	other.Header.Set("X-API-Key", "tenant-B")
	res = httptest.NewRecorder()
	handler.ServeHTTP(res, other)
	if res.Code != http.StatusOK {
		t.Fatalf("expected tenant B to have a fresh budget, got %d", res.Code)
	}

	// Counters reset once the window rolls over.
	now = now.Add(61 * time.Second)
	res = httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	if res.Code != http.StatusOK {
		t.Fatalf("expected fresh window to admit the request, got %d", res.Code)
	}
}

func TestQuotaGuardKeysBySubject(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	guard := NewQuotaGuard(common.Quota{MaxRequestsPerWindow: 1, WindowSeconds: 60})
	guard.clockNow = func() time.Time { return now }
	handler := guard.Middleware(okHandler())

	send := func(subject string) int {
		req := httptest.NewRequest(http.MethodPost, "/v1/credit/accounts", nil)
		if subject != "" {
			ctx := context.WithValue(req.Context(), ContextKeySubject, subject)
			req = req.WithContext(ctx)
		}
		res := httptest.NewRecorder()
		handler.ServeHTTP(res, req)
		return res.Code
	}

	if code := send("alice"); code != http.StatusOK {
		t.Fatalf("expected alice's first request to pass, got %d", code)
	}
	if code := send("alice"); code != http.StatusTooManyRequests {
		t.Fatalf("expected alice's second request to be rejected, got %d", code)
	}
	if code := send("bob"); code != http.StatusOK {
		t.Fatalf("expected bob's budget to be independent, got %d", code)
	}
}
