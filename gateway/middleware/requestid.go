package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/google/uuid"
)

// ContextKeyRequestID carries the request correlation id.
const ContextKeyRequestID contextKey = "gateway.request_id"

const requestIDHeader = "X-Request-Id"

// RequestID returns the correlation id assigned to the request, empty when
// the middleware is not installed.
func RequestID(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	id, _ := ctx.Value(ContextKeyRequestID).(string)
	return id
}

// WithRequestID tags every request with a correlation id. Incoming ids from
// trusted proxies are preserved; anything else gets a fresh UUID. The id is
// echoed on the response for client-side correlation.
func WithRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimSpace(r.Header.Get(requestIDHeader))
		if id == "" || len(id) > 64 {
			id = uuid.NewString()
		}
		w.Header().Set(requestIDHeader, id)
		ctx := context.WithValue(r.Context(), ContextKeyRequestID, id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
