package ratelimit

import (
	"context"
	"time"
)

// Store abstracts the backing counter store for rate-limit windows.
// Production multi-instance deployments use Redis for atomic increments;
// single-instance and test deployments use the in-memory store.
//
// The store only counts; comparing the count against the effective ceiling
// is the Limiter's job, so severity multipliers never leak into storage.
type Store interface {
	// Increment atomically increments the window counter for key, starting
	// a fresh window {count:1, resetAt: now+window} when none exists or the
	// existing one has expired.
	Increment(ctx context.Context, key string, window time.Duration) (Window, error)
}

// Window is the state of one counting bucket after an increment.
type Window struct {
	// Count is the number of requests recorded in the current window,
	// including the one just added.
	Count int
	// ResetAt is when the current window expires.
	ResetAt time.Time
}

// RetryAfterSeconds returns the whole seconds until the window resets,
// never less than 1 (a Retry-After of 0 is meaningless to clients).
func (w Window) RetryAfterSeconds(now time.Time) int {
	secs := int(w.ResetAt.Sub(now).Seconds())
	if secs < 1 {
		return 1
	}
	return secs
}
