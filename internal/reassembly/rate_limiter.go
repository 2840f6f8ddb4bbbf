package reassembly

import (
	"net/netip"
	"time"
)

const defaultRateLimitWindow = 10 * time.Second

// sourceLimiter caps the fragments accepted from one source address within a
// fixed window of capture time. The first window opens at the first fragment.
// Callers serialize access.
type sourceLimiter struct {
	limit    int
	window   time.Duration
	opened   time.Time
	counts   map[netip.Addr]int
	rejected int64
}

// newSourceLimiter returns nil when limit is not positive.
func newSourceLimiter(limit int, window time.Duration) *sourceLimiter {
	if limit <= 0 {
		return nil
	}
	if window <= 0 {
		window = defaultRateLimitWindow
	}
	return &sourceLimiter{limit: limit, window: window, counts: make(map[netip.Addr]int)}
}

func (l *sourceLimiter) allow(src netip.Addr, now time.Time) bool {
	if l.opened.IsZero() || now.Sub(l.opened) >= l.window {
		clear(l.counts)
		l.opened = now
	}
	if l.counts[src] >= l.limit {
		l.rejected++
		return false
	}
	l.counts[src]++
	return true
}

// sources is the number of addresses seen in the open window.
func (l *sourceLimiter) sources() int { return len(l.counts) }
