package middleware

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"creditcore/native/common"
)

// QuotaGuard enforces windowed request quotas on top of the instantaneous
// rate limiter. Counters are keyed by authenticated subject when available
// and fall back to the transport client identity.
type QuotaGuard struct {
	quota    common.Quota
	mu       sync.Mutex
	usage    map[string]common.Usage
	clockNow func() time.Time
}

func NewQuotaGuard(quota common.Quota) *QuotaGuard {
	return &QuotaGuard{
		quota:    quota,
		usage:    make(map[string]common.Usage),
		clockNow: time.Now,
	}
}

// Middleware rejects requests once the caller's window budget is spent.
// A zero-valued quota disables the guard.
func (qg *QuotaGuard) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !qg.quota.Enabled() {
			next.ServeHTTP(w, r)
			return
		}
		key := Subject(r.Context())
		if key == "" {
			key = clientID(r)
		}
		if err := qg.consume(key); err != nil {
			w.Header().Set("Retry-After", qg.retryAfter())
			http.Error(w, "quota exceeded", http.StatusTooManyRequests)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (qg *QuotaGuard) consume(key string) error {
	window := qg.quota.Window(uint64(qg.clockNow().Unix()))
	qg.mu.Lock()
	defer qg.mu.Unlock()
	next, err := common.Apply(qg.quota, window, qg.usage[key], 1, 0)
	if err != nil {
		return err
	}
	qg.usage[key] = next
	return nil
}

// retryAfter reports the seconds until the current window rolls over.
func (qg *QuotaGuard) retryAfter() string {
	if qg.quota.WindowSeconds == 0 {
		return "1"
	}
	now := uint64(qg.clockNow().Unix())
	window := uint64(qg.quota.WindowSeconds)
	return strconv.FormatUint(window-now%window, 10)
}
