// Package guard implements the authorization boundary invoked at the top of
// every mutating request handler. It composes the abuse state machine, the
// rate limiter, and the plan-limit authorizer into a single decision:
//
//	abuse state -> blocked? -> severity multiplier -> window check/increment
//	-> exceeded? (records a violation, feeding back into abuse state)
//	-> plan-limit check -> decision
//
// The boundary always returns a structured Decision; it never panics into
// callers and never surfaces raw infrastructure errors.
package guard

import (
	"context"
	"log/slog"
	"time"

	"dmcaguard/internal/policy"
	"dmcaguard/internal/ratelimit"
	"dmcaguard/internal/types"
)

// AbuseReader is the subset of the abuse service the guard consumes.
type AbuseReader interface {
	GetState(ctx context.Context, userID string) (types.AbuseState, error)
	RecordViolation(ctx context.Context, userID string, kind types.ViolationKind, severity float64, reason string, metadata map[string]any) error
}

// UsageReader returns the current usage snapshot for a user.
type UsageReader interface {
	GetCurrentUsage(ctx context.Context, userID string) (types.UsageSnapshot, error)
}

// MetricsRecorder receives decision telemetry. May be nil.
type MetricsRecorder interface {
	RecordDecision(reason types.ReasonCode)
	RecordViolation(kind types.ViolationKind)
}

// Config tunes the boundary's failure policy.
type Config struct {
	// FailOpen permits requests when the abuse store, counter store, or
	// usage counts are unavailable after retries. The default (false)
	// fails closed for mutating actions: a denied decision with a short
	// retry hint rather than a silent allow.
	FailOpen bool

	// RateLimitViolationSeverity is the score added per rate-limit breach.
	RateLimitViolationSeverity float64

	// TransientRetryAfterSeconds is the retry hint returned on fail-closed
	// infrastructure errors.
	TransientRetryAfterSeconds int
}

// DefaultConfig returns the production failure policy: fail closed.
func DefaultConfig() Config {
	return Config{
		FailOpen:                   false,
		RateLimitViolationSeverity: 0.1,
		TransientRetryAfterSeconds: 30,
	}
}

// Request describes the operation being authorized.
type Request struct {
	// Actor is the authenticated identity; may be anonymous.
	Actor types.Actor
	// Action is the plan-gated operation, or empty for requests that are
	// only rate limited (reads, non-gated mutations).
	Action types.Action
	// Endpoint is the request path matched against the rate-limit rules.
	Endpoint string
	// ClientIP keys the rate window for anonymous requests so unrelated
	// unauthenticated clients never share a bucket. Ignored for
	// authenticated actors, whose windows are keyed by user ID.
	ClientIP string
}

// Guard is the authorization boundary.
type Guard struct {
	abuse      AbuseReader
	limiter    *ratelimit.Limiter
	authorizer policy.Authorizer
	usage      UsageReader
	metrics    MetricsRecorder
	cfg        Config
	logger     *slog.Logger

	now func() time.Time
}

// New creates a Guard. metrics may be nil.
func New(abuse AbuseReader, limiter *ratelimit.Limiter, authorizer policy.Authorizer, usage UsageReader, metrics MetricsRecorder, cfg Config, logger *slog.Logger) *Guard {
	if logger == nil {
		logger = slog.Default()
	}
	return &Guard{
		abuse:      abuse,
		limiter:    limiter,
		authorizer: authorizer,
		usage:      usage,
		metrics:    metrics,
		cfg:        cfg,
		logger:     logger,
		now:        time.Now,
	}
}

// Authorize runs the full decision flow for one request.
func (g *Guard) Authorize(ctx context.Context, req Request) types.Decision {
	d := g.authorize(ctx, req)
	if g.metrics != nil {
		g.metrics.RecordDecision(d.ReasonCode)
	}
	return d
}

func (g *Guard) authorize(ctx context.Context, req Request) types.Decision {
	actor := req.Actor

	// The bypass capability is exempt from every usage and rate check.
	if actor.IsSuperUser || actor.Plan == types.PlanSuperUser {
		return types.Allow()
	}

	// An already-suspended account is rejected outright, independent of
	// rate limits.
	if actor.Status == types.AccountSuspended {
		return types.Deny(types.ReasonAccountBlocked)
	}

	// Abuse state lookup. Anonymous traffic has no abuse record; it is
	// penalized by the anonymous rate multiplier instead.
	state := types.AbuseStateClean
	if !actor.Anonymous() {
		var err error
		state, err = g.abuse.GetState(ctx, actor.ID)
		if err != nil {
			return g.infraFailure(ctx, "abuse state lookup failed", actor.ID, err)
		}
		if state == types.AbuseStateBlocked {
			return types.Deny(types.ReasonAccountBlocked)
		}
	}

	// Window check-and-increment with the severity-adjusted ceiling.
	// Anonymous windows are per client IP; a missing IP degrades to one
	// shared bucket rather than no limiting at all.
	identity := actor.ID
	if actor.Anonymous() {
		identity = "anon"
		if req.ClientIP != "" {
			identity = "anon:" + req.ClientIP
		}
	}
	res, err := g.limiter.CheckAndIncrement(ctx, identity, req.Endpoint, state, actor.Anonymous())
	if err != nil {
		return g.infraFailure(ctx, "rate limit check failed", actor.ID, err)
	}
	var window *types.RateWindow
	if res.Matched {
		window = &types.RateWindow{
			Limit:     res.Limit,
			Remaining: res.Remaining,
			ResetAt:   res.ResetAt,
		}
	}
	if res.Matched && res.Exceeded {
		g.recordRateLimitViolation(ctx, actor, req.Endpoint)
		return types.Decision{
			Allowed:           false,
			ReasonCode:        types.ReasonRateLimited,
			RetryAfterSeconds: res.RetryAfterSeconds(g.now()),
			RateLimit:         window,
		}
	}

	// Plan-limit check, only for plan-gated actions.
	if req.Action == "" {
		return allowWithWindow(window)
	}
	if actor.Anonymous() {
		// Plan-gated mutations require an identity to count usage against.
		return denyWithWindow(types.ReasonPlanLimitReached, window)
	}

	snapshot, err := g.usage.GetCurrentUsage(ctx, actor.ID)
	if err != nil {
		return g.infraFailure(ctx, "usage snapshot failed", actor.ID, err)
	}
	currentUsage, ok := snapshot.ForAction(req.Action)
	if !ok {
		// Unknown action: the closed action set has no usage dimension for
		// it; the authorizer denies it below with usage 0.
		currentUsage = 0
	}

	if !g.authorizer.CanPerformAction(actor.Plan, req.Action, currentUsage, actor.IsSuperUser) {
		return denyWithWindow(types.ReasonPlanLimitReached, window)
	}
	return allowWithWindow(window)
}

func allowWithWindow(w *types.RateWindow) types.Decision {
	d := types.Allow()
	d.RateLimit = w
	return d
}

func denyWithWindow(reason types.ReasonCode, w *types.RateWindow) types.Decision {
	d := types.Deny(reason)
	d.RateLimit = w
	return d
}

// infraFailure applies the configured fail policy for transient
// infrastructure errors. Fail-open logs and allows; fail-closed denies with
// a retry hint, using RATE_LIMITED as the retryable reason so clients back
// off instead of treating the denial as permanent.
func (g *Guard) infraFailure(ctx context.Context, msg, userID string, err error) types.Decision {
	g.logger.ErrorContext(ctx, msg,
		slog.String("user_id", userID),
		slog.Bool("fail_open", g.cfg.FailOpen),
		slog.String("error", err.Error()),
	)
	if g.cfg.FailOpen {
		return types.Allow()
	}
	return types.Decision{
		Allowed:           false,
		ReasonCode:        types.ReasonRateLimited,
		RetryAfterSeconds: g.cfg.TransientRetryAfterSeconds,
	}
}

// recordRateLimitViolation feeds a breach back into the abuse score.
// Failures are logged, not propagated; the denial stands either way.
func (g *Guard) recordRateLimitViolation(ctx context.Context, actor types.Actor, endpoint string) {
	if actor.Anonymous() {
		return
	}
	if g.metrics != nil {
		g.metrics.RecordViolation(types.ViolationRateLimitExceeded)
	}
	err := g.abuse.RecordViolation(ctx, actor.ID, types.ViolationRateLimitExceeded,
		g.cfg.RateLimitViolationSeverity, "rate limit exceeded",
		map[string]any{"endpoint": endpoint},
	)
	if err != nil {
		g.logger.ErrorContext(ctx, "failed to record rate limit violation",
			slog.String("user_id", actor.ID),
			slog.String("error", err.Error()),
		)
	}
}
