package genai

import (
	"testing"
	"time"
)

func TestRateLimiterWindow(t *testing.T) {
	current := time.Unix(1000, 0)
	l := NewRateLimiter(20, time.Minute)
	l.now = func() time.Time { return current }

	for i := 0; i < 20; i++ {
		if !l.Allow() {
			t.Fatalf("request %d should be allowed", i+1)
		}
	}

	if l.Allow() {
		t.Fatal("21st request within the window should be rejected")
	}
	if got := l.Remaining(); got != 0 {
		t.Fatalf("expected 0 remaining, got %d", got)
	}

	// Once the oldest request ages past the window, exactly one slot frees
	current = current.Add(61 * time.Second)
	// All 20 were recorded at the same instant, so they all expire together
	if got := l.Remaining(); got != 20 {
		t.Fatalf("expected full capacity after window, got %d", got)
	}
}

func TestRateLimiterFreesOneSlotAtATime(t *testing.T) {
	current := time.Unix(1000, 0)
	l := NewRateLimiter(3, time.Minute)
	l.now = func() time.Time { return current }

	// Stagger requests 10s apart
	for i := 0; i < 3; i++ {
		if !l.Allow() {
			t.Fatalf("request %d should be allowed", i+1)
		}
		current = current.Add(10 * time.Second)
	}
	// now = t0+30s, window holds stamps at t0, t0+10, t0+20
	if l.Allow() {
		t.Fatal("4th request should be rejected")
	}

	// Advance so only the oldest stamp expires
	current = time.Unix(1000, 0).Add(61 * time.Second)
	if got := l.Remaining(); got != 1 {
		t.Fatalf("expected exactly one slot freed, got %d", got)
	}
	if !l.Allow() {
		t.Fatal("request should be allowed after oldest stamp expired")
	}
	if l.Allow() {
		t.Fatal("window should be full again")
	}
}

func TestRateLimiterRejectionNotRecorded(t *testing.T) {
	current := time.Unix(1000, 0)
	l := NewRateLimiter(1, time.Minute)
	l.now = func() time.Time { return current }

	if !l.Allow() {
		t.Fatal("first request should be allowed")
	}
	for i := 0; i < 5; i++ {
		if l.Allow() {
			t.Fatal("request should be rejected")
		}
	}

	// Rejections must not extend the window
	current = current.Add(61 * time.Second)
	if !l.Allow() {
		t.Fatal("request should be allowed after the recorded stamp expired")
	}
}

func TestRateLimiterDefaults(t *testing.T) {
	l := NewRateLimiter(0, 0)
	if l.max != 20 {
		t.Errorf("expected default max 20, got %d", l.max)
	}
	if l.window != time.Minute {
		t.Errorf("expected default window 1m, got %s", l.window)
	}
}
