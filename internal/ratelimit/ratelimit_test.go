package ratelimit

import (
	"testing"
	"time"
)

func TestWindowAllowsUpToLimit(t *testing.T) {
	w := NewWindow(3, time.Second)
	now := time.Now()
	for i := 0; i < 3; i++ {
		if !w.Allow("k", now) {
			t.Fatalf("event %d should be allowed within limit", i)
		}
	}
	if w.Allow("k", now) {
		t.Fatalf("4th event within the same instant should exceed the limit")
	}
}

func TestWindowExpiresOldEvents(t *testing.T) {
	w := NewWindow(1, 100*time.Millisecond)
	now := time.Now()
	if !w.Allow("k", now) {
		t.Fatalf("first event should be allowed")
	}
	if w.Allow("k", now.Add(10*time.Millisecond)) {
		t.Fatalf("second event inside the window should be rejected")
	}
	if !w.Allow("k", now.Add(200*time.Millisecond)) {
		t.Fatalf("event after the window expires should be allowed")
	}
}

func TestWindowCleanupPrunesStaleKeys(t *testing.T) {
	w := NewWindow(5, 50*time.Millisecond)
	now := time.Now()
	w.Allow("a", now)
	w.Cleanup(now.Add(time.Second))
	if len(w.limiters) != 0 {
		t.Fatalf("cleanup should have pruned the stale key, got %d remaining", len(w.limiters))
	}
}

func TestLimiterEnforcesAllThreeWindows(t *testing.T) {
	l := New()
	now := time.Now()
	for i := 0; i < PerConnectionMessageLimit; i++ {
		if !l.AllowMessage("conn1", "1.2.3.4", now) {
			t.Fatalf("message %d should be within per-connection limit", i)
		}
	}
	if l.AllowMessage("conn1", "1.2.3.4", now) {
		t.Fatalf("exceeding the per-connection limit should be rejected")
	}

	l.Forget("conn1")
	if !l.AllowMessage("conn1", "1.2.3.4", now) {
		t.Fatalf("forgetting a connection should reset its message window")
	}

	l2 := New()
	for i := 0; i < PerConnectionMessageLimit; i++ {
		if !l2.AllowMessage("a", "5.6.7.8", now) {
			t.Fatalf("message %d on conn a should be allowed", i)
		}
	}
	for i := 0; i < PerAddressMessageLimit-PerConnectionMessageLimit; i++ {
		if !l2.AllowMessage("b", "5.6.7.8", now) {
			t.Fatalf("message %d on conn b should be allowed", i)
		}
	}
	if l2.AllowMessage("b", "5.6.7.8", now) {
		t.Fatalf("exceeding the per-address message limit should be rejected")
	}

	for i := 0; i < PerAddressConnectionLimit; i++ {
		if !l2.AllowConnection("5.6.7.8", now) {
			t.Fatalf("connection %d should be within per-address connection limit", i)
		}
	}
	if l2.AllowConnection("5.6.7.8", now) {
		t.Fatalf("exceeding the per-address connection limit should be rejected")
	}
}
