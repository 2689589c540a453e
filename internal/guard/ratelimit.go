package guard

import (
	"strings"
	"sync"
	"time"
)

// RateLimiter enforces a sliding window of at most Limit actions per Window
// for each identity. In-process, best-effort: sufficient for a single
// instance. Keys are trimmed so whitespace churn cannot mint a fresh window.
type RateLimiter struct {
	limit  int
	window time.Duration
	now    func() time.Time

	mu      sync.Mutex
	actions map[string][]time.Time
}

// NewRateLimiter creates a limiter allowing limit actions per window.
func NewRateLimiter(limit int, window time.Duration) *RateLimiter {
	return &RateLimiter{
		limit:   limit,
		window:  window,
		now:     time.Now,
		actions: make(map[string][]time.Time),
	}
}

// normalizeKey trims whitespace only. Keys are case-sensitive: base58
// addresses differing in case are distinct identities and must not share
// a window.
func normalizeKey(key string) string {
	return strings.TrimSpace(key)
}

// Allow records an action for key and reports whether it fits the window.
// A rejected action is not recorded: denial does not extend the penalty.
func (r *RateLimiter) Allow(key string) bool {
	key = normalizeKey(key)
	now := r.now()
	cutoff := now.Add(-r.window)

	r.mu.Lock()
	defer r.mu.Unlock()

	recent := r.actions[key][:0]
	for _, t := range r.actions[key] {
		if t.After(cutoff) {
			recent = append(recent, t)
		}
	}

	if len(recent) >= r.limit {
		r.actions[key] = recent
		return false
	}

	r.actions[key] = append(recent, now)
	return true
}

// Prune drops identities whose entire window has elapsed. Called periodically
// so abandoned keys do not accumulate.
func (r *RateLimiter) Prune() {
	cutoff := r.now().Add(-r.window)

	r.mu.Lock()
	defer r.mu.Unlock()

	for key, times := range r.actions {
		alive := false
		for _, t := range times {
			if t.After(cutoff) {
				alive = true
				break
			}
		}
		if !alive {
			delete(r.actions, key)
		}
	}
}
