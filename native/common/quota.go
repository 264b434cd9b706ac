package common

import (
	"errors"
	"math"
)

var (
	ErrQuotaRequestsExceeded = errors.New("quota requests exceeded")
	ErrQuotaValueExceeded    = errors.New("quota value cap exceeded")
	ErrQuotaCounterOverflow  = errors.New("quota counter overflow")
)

// Usage captures the rolling quota counters for a single caller.
type Usage struct {
	Requests uint32
	Value    uint64
	WindowID uint64
}

// Quota bounds what a caller may do inside one window. Zero limits disable
// the corresponding check.
type Quota struct {
	MaxRequestsPerWindow uint32
	MaxValuePerWindow    uint64
	WindowSeconds        uint32
}

// Enabled reports whether any limit is configured.
func (q Quota) Enabled() bool {
	return q.MaxRequestsPerWindow > 0 || q.MaxValuePerWindow > 0
}

// Window buckets a unix timestamp into the quota window.
func (q Quota) Window(nowUnix uint64) uint64 {
	if q.WindowSeconds == 0 {
		return 0
	}
	return nowUnix / uint64(q.WindowSeconds)
}

// Apply verifies whether the additional request and value usage fit within
// the quota. The returned Usage reflects the updated counters when the quota
// is not exceeded; on error the previous counters are returned unchanged.
func Apply(q Quota, window uint64, prev Usage, addRequests uint32, addValue uint64) (Usage, error) {
	next := prev
	if prev.WindowID != window {
		next = Usage{WindowID: window}
	}

	if addRequests > 0 {
		if next.Requests > math.MaxUint32-addRequests {
			return prev, ErrQuotaCounterOverflow
		}
		next.Requests += addRequests
	}
	if q.MaxRequestsPerWindow > 0 && next.Requests > q.MaxRequestsPerWindow {
		return prev, ErrQuotaRequestsExceeded
	}

	if addValue > 0 {
		if next.Value > math.MaxUint64-addValue {
			return prev, ErrQuotaCounterOverflow
		}
		next.Value += addValue
	}
	if q.MaxValuePerWindow > 0 && next.Value > q.MaxValuePerWindow {
		return prev, ErrQuotaValueExceeded
	}

	return next, nil
}
