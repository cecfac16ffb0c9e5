package application

import (
	"sync"
	"time"

	"github.com/ericfisherdev/rollouthub/internal/apperror"
)

// rateWindow is one live fixed window for a key.
type rateWindow struct {
	start time.Time
	count int
}

// RateLimiter bounds request volume per key over a rolling fixed window.
// Keys are identity handles for authenticated flows and remote addresses
// for pre-authentication routes. The whole structure is guarded by one
// mutex so the check-then-increment sequence is atomic: two concurrent
// requests for the same key can never both observe "under limit" and both
// proceed past the cap.
type RateLimiter struct {
	mu      sync.Mutex
	window  time.Duration
	max     int
	windows map[string]*rateWindow

	now func() time.Time
}

// NewRateLimiter creates a RateLimiter allowing max requests per key per
// window.
func NewRateLimiter(window time.Duration, max int) *RateLimiter {
	return &RateLimiter{
		window:  window,
		max:     max,
		windows: make(map[string]*rateWindow),
		now:     time.Now,
	}
}

// Allow records one request for key. It returns nil when the request may
// proceed, or a rate_limit_exceeded error carrying the window's reset time
// when the key's live window is already at the cap. Stale windows are swept
// on every call; the expected key cardinality is hundreds, not millions, so
// a full sweep stays cheap.
func (l *RateLimiter) Allow(key string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()

	for k, w := range l.windows {
		if now.Sub(w.start) >= l.window {
			delete(l.windows, k)
		}
	}

	w, ok := l.windows[key]
	if !ok {
		l.windows[key] = &rateWindow{start: now, count: 1}
		return nil
	}

	if w.count >= l.max {
		resetAt := w.start.Add(l.window)
		return apperror.New(apperror.CodeRateLimitExceeded, "rate limit exceeded, retry after window reset").
			WithResetAt(resetAt)
	}

	w.count++
	return nil
}
