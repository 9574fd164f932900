package genai

import (
	"sync"
	"time"
)

// RateLimiter is a sliding-window request budget shared by every caller
// of the generative client. It is constructed once per process and
// injected, never global. A request is rejected locally, without any
// network call, once the window is full.
type RateLimiter struct {
	mu     sync.Mutex
	window time.Duration
	max    int
	stamps []time.Time

	now func() time.Time
}

// NewRateLimiter creates a limiter allowing max requests per window
func NewRateLimiter(max int, window time.Duration) *RateLimiter {
	if max <= 0 {
		max = 20
	}
	if window <= 0 {
		window = time.Minute
	}
	return &RateLimiter{
		window: window,
		max:    max,
		now:    time.Now,
	}
}

// Allow records the request and returns true if it fits in the window.
// A rejected request is not recorded.
func (l *RateLimiter) Allow() bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	l.prune(now)

	if len(l.stamps) >= l.max {
		return false
	}
	l.stamps = append(l.stamps, now)
	return true
}

// Remaining returns how many requests currently fit in the window
func (l *RateLimiter) Remaining() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.prune(l.now())
	return l.max - len(l.stamps)
}

// prune drops timestamps older than the window. Caller holds the lock.
func (l *RateLimiter) prune(now time.Time) {
	cutoff := now.Add(-l.window)
	i := 0
	for i < len(l.stamps) && !l.stamps[i].After(cutoff) {
		i++
	}
	if i > 0 {
		l.stamps = append(l.stamps[:0], l.stamps[i:]...)
	}
}
