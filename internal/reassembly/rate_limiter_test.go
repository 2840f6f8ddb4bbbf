package reassembly

import (
	"net/netip"
	"testing"
	"time"
)

var limiterEpoch = time.Unix(1700000000, 0)

func TestSourceLimiterDisabled(t *testing.T) {
	if l := newSourceLimiter(0, time.Second); l != nil {
		t.Error("expected nil limiter for a zero limit")
	}
}

func TestSourceLimiterRejectsOverLimit(t *testing.T) {
	l := newSourceLimiter(3, 10*time.Second)
	src := netip.MustParseAddr("10.0.0.1")

	for i := 0; i < 3; i++ {
		if !l.allow(src, limiterEpoch) {
			t.Fatalf("fragment %d should be allowed", i)
		}
	}
	if l.allow(src, limiterEpoch) {
		t.Error("4th fragment should be rejected")
	}
	if l.rejected != 1 {
		t.Errorf("expected 1 rejected, got %d", l.rejected)
	}
}

func TestSourceLimiterCountsSourcesIndependently(t *testing.T) {
	l := newSourceLimiter(2, 0)
	a := netip.MustParseAddr("192.0.2.1")
	b := netip.MustParseAddr("2001:db8::1")

	l.allow(a, limiterEpoch)
	l.allow(a, limiterEpoch)
	if l.allow(a, limiterEpoch) {
		t.Error("first source should be limited")
	}
	if !l.allow(b, limiterEpoch) {
		t.Error("second source should be allowed")
	}
	if l.sources() != 2 {
		t.Errorf("expected 2 sources, got %d", l.sources())
	}
	if l.window != defaultRateLimitWindow {
		t.Errorf("expected default window, got %v", l.window)
	}
}

func TestSourceLimiterWindowFollowsCaptureTime(t *testing.T) {
	l := newSourceLimiter(1, time.Second)
	src := netip.MustParseAddr("10.0.0.1")

	if !l.allow(src, limiterEpoch) {
		t.Fatal("first fragment should be allowed")
	}
	if l.allow(src, limiterEpoch.Add(500*time.Millisecond)) {
		t.Error("second fragment in the same window should be rejected")
	}
	if !l.allow(src, limiterEpoch.Add(time.Second)) {
		t.Error("fragment in the next window should be allowed")
	}
	if l.sources() != 1 {
		t.Errorf("expected the window to restart with 1 source, got %d", l.sources())
	}
}
