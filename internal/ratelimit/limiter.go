package ratelimit

import (
	"context"
	"math"
	"time"

	"dmcaguard/internal/types"
)

// anonymousMultiplier is the extra penalty applied to unauthenticated
// traffic on top of the abuse-state multiplier.
const anonymousMultiplier = 0.5

// Result is the outcome of one limiter check.
type Result struct {
	// Matched is false when no rule covers the endpoint; such requests are
	// never rate limited and the remaining fields are zero.
	Matched bool
	// Exceeded is true when the request pushed the counter past the
	// effective ceiling.
	Exceeded bool
	// Limit is the effective ceiling after the severity multiplier.
	Limit int
	// Remaining is the number of requests left in the window (never negative).
	Remaining int
	// ResetAt is when the current window expires.
	ResetAt time.Time
}

// RetryAfterSeconds returns whole seconds until the window resets, minimum 1.
func (r Result) RetryAfterSeconds(now time.Time) int {
	return Window{ResetAt: r.ResetAt}.RetryAfterSeconds(now)
}

// Limiter combines the endpoint rule table, a counter store, and the
// abuse-state severity multiplier into a single check-and-increment call.
type Limiter struct {
	rules *Rules
	store Store
}

// NewLimiter creates a Limiter.
func NewLimiter(rules *Rules, store Store) *Limiter {
	return &Limiter{rules: rules, store: store}
}

// CheckAndIncrement records one request for (identity, endpoint) and reports
// whether it exceeded the effective ceiling:
//
//	floor(rule.MaxRequests * state.SeverityMultiplier() [* 0.5 if anonymous])
//
// A BLOCKED state yields a ceiling of 0, so the very first request in any
// window is exceeded. The increment is applied even for rejected requests;
// windows are advisory, time-bounded state and self-heal on expiry.
func (l *Limiter) CheckAndIncrement(ctx context.Context, identity, endpoint string, state types.AbuseState, anonymous bool) (Result, error) {
	rule, ok := l.rules.Match(endpoint)
	if !ok {
		return Result{}, nil
	}

	multiplier := state.SeverityMultiplier()
	if anonymous {
		multiplier *= anonymousMultiplier
	}
	limit := int(math.Floor(float64(rule.MaxRequests) * multiplier))

	// Key by identity and the matched prefix, not the raw path, so all
	// endpoints under one rule share a window.
	w, err := l.store.Increment(ctx, identity+":"+rule.Prefix, rule.Window)
	if err != nil {
		return Result{}, err
	}

	remaining := limit - w.Count
	if remaining < 0 {
		remaining = 0
	}

	return Result{
		Matched:   true,
		Exceeded:  w.Count > limit,
		Limit:     limit,
		Remaining: remaining,
		ResetAt:   w.ResetAt,
	}, nil
}
