package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
)

const testSecret = "gateway-test-secret"

func mintToken(t *testing.T, secret string, claims jwt.MapClaims) string {
	t.Helper()
	if _, ok := claims["exp"]; !ok {
		claims["exp"] = time.Now().Add(time.Hour).Unix()
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return signed
}

func authedConfig() AuthConfig {
	return AuthConfig{
		Enabled:    true,
		HMACSecret: testSecret,
		Issuer:     "credit-identity",
		Audience:   "credit-gateway",
		ScopeClaim: "scope",
		ClockSkew:  time.Minute,
	}
}

func subjectEcho(t *testing.T, want string) http.Handler {
	t.Helper()
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := Subject(r.Context()); got != want {
			t.Fatalf("expected subject %q in context, got %q", want, got)
		}
		w.WriteHeader(http.StatusOK)
	})
}

func TestAuthenticatorDisabledPassesThrough(t *testing.T) {
	auth := NewAuthenticator(AuthConfig{Enabled: false}, nil)
	handler := auth.Middleware("credit.write")(okHandler())

	req := httptest.NewRequest(http.MethodPost, "/v1/credit/accounts", nil)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	if res.Code != http.StatusOK {
		t.Fatalf("expected pass-through with auth disabled, got %d", res.Code)
	}
}

func TestAuthenticatorRejectsMissingToken(t *testing.T) {
	auth := NewAuthenticator(authedConfig(), nil)
	handler := auth.Middleware()(okHandler())

	req := httptest.NewRequest(http.MethodPost, "/v1/credit/accounts", nil)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	if res.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without bearer token, got %d", res.Code)
	}
}

func TestAuthenticatorAcceptsValidToken(t *testing.T) {
	auth := NewAuthenticator(authedConfig(), nil)
	handler := auth.Middleware("credit.write")(subjectEcho(t, "alice"))

	token := mintToken(t, testSecret, jwt.MapClaims{
		"iss":   "credit-identity",
		"aud":   "credit-gateway",
		"sub":   "alice",
		"scope": "credit.read credit.write",
	})
	req := httptest.NewRequest(http.MethodPost, "/v1/credit/accounts", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	if res.Code != http.StatusOK {
		t.Fatalf("expected valid token to be accepted, got %d: %s", res.Code, res.Body.String())
	}
}

func TestAuthenticatorRejectsIssuerMismatch(t *testing.T) {
	auth := NewAuthenticator(authedConfig(), nil)
	handler := auth.Middleware()(okHandler())

	token := mintToken(t, testSecret, jwt.MapClaims{
		"iss":   "someone-else",
		"aud":   "credit-gateway",
		"scope": "credit.read",
	})
	req := httptest.NewRequest(http.MethodGet, "/v1/credit/accounts", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	if res.Code != http.StatusUnauthorized {
		t.Fatalf("expected issuer mismatch to fail, got %d", res.Code)
	}
}

func TestAuthenticatorRejectsMissingScope(t *testing.T) {
	auth := NewAuthenticator(authedConfig(), nil)
	handler := auth.Middleware("credit.admin")(okHandler())

	token := mintToken(t, testSecret, jwt.MapClaims{
		"iss":   "credit-identity",
		"aud":   "credit-gateway",
		"sub":   "alice",
		"scope": "credit.read credit.write",
	})
	req := httptest.NewRequest(http.MethodPost, "/v1/admin/assets", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	if res.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for missing admin scope, got %d", res.Code)
	}
}

func TestAuthenticatorRejectsExpiredToken(t *testing.T) {
	auth := NewAuthenticator(authedConfig(), nil)
	handler := auth.Middleware()(okHandler())

	token := mintToken(t, testSecret, jwt.MapClaims{
		"iss":   "credit-identity",
		"aud":   "credit-gateway",
		"scope": "credit.read",
		"exp":   time.Now().Add(-time.Hour).Unix(),
	})
	req := httptest.NewRequest(http.MethodGet, "/v1/credit/accounts", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	if res.Code != http.StatusUnauthorized {
		t.Fatalf("expected expired token to fail, got %d", res.Code)
	}
}

func TestAuthenticatorRejectsWrongSecret(t *testing.T) {
	auth := NewAuthenticator(authedConfig(), nil)
	handler := auth.Middleware()(okHandler())

	token := mintToken(t, "other-secret", jwt.MapClaims{
		"iss":   "credit-identity",
		"aud":   "credit-gateway",
		"scope": "credit.read",
	})
	req := httptest.NewRequest(http.MethodGet, "/v1/credit/accounts", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	if res.Code != http.StatusUnauthorized {
		t.Fatalf("expected bad signature to fail, got %d", res.Code)
	}
}

func TestExtractBearer(t *testing.T) {
	if got := extractBearer(""); got != "" {
		t.Fatalf("expected empty header to yield no token, got %q", got)
	}
	if got := extractBearer("Basic abc"); got != "" {
		t.Fatalf("expected non-bearer scheme to yield no token, got %q", got)
	}
	if got := extractBearer("bearer  tok123 "); got != "tok123" {
		t.Fatalf("expected case-insensitive bearer parse, got %q", got)
	}
}
