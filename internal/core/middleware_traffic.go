package core

import (
	"log/slog"
	"net"
	"net/http"
	"strconv"

	"dmcaguard/internal/guard"
	"dmcaguard/internal/types"
)

// gatedRoutes maps the plan-gated mutation endpoints to their actions.
// Every request passes through the guard exactly once; these routes
// additionally trigger the plan-limit check inside that same call, so the
// rate window is never double-counted.
var gatedRoutes = map[string]types.Action{
	"/v1/brand-profiles":      types.ActionCreateBrandProfile,
	"/v1/monitoring-sessions": types.ActionCreateMonitoringSession,
	"/v1/takedowns":           types.ActionSendTakedown,
}

// GuardMiddleware runs every request through the authorization boundary:
// abuse state, severity-adjusted rate window, and (for gated POST routes)
// the plan-limit check.
//
// On every decision where a rate rule matched, the middleware sets:
//   - X-RateLimit-Limit: The effective ceiling for the window.
//   - X-RateLimit-Remaining: The number of requests remaining.
//   - X-RateLimit-Reset: Unix timestamp when the window resets.
//
// Denials map onto HTTP responses:
//   - RATE_LIMITED       -> 429 with Retry-After.
//   - ACCOUNT_BLOCKED    -> 403 account_blocked.
//   - PLAN_LIMIT_REACHED -> 403 limit_plan_reached.
//
// If the Guard field on Server is nil (tests exercising routing only), the
// middleware passes through.
func (s *Server) GuardMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.Guard == nil || publicPaths[r.URL.Path] {
			next.ServeHTTP(w, r)
			return
		}

		// The zero Actor is anonymous; the guard penalizes it.
		actor, _ := types.GetActor(r.Context())

		decision := s.Guard.Authorize(r.Context(), guard.Request{
			Actor:    actor,
			Action:   routeAction(r.Method, r.URL.Path),
			Endpoint: r.URL.Path,
			ClientIP: clientIP(r),
		})

		if decision.RateLimit != nil {
			setRateLimitHeaders(w, *decision.RateLimit)
		}

		if !decision.Allowed {
			s.writeDecisionDenied(w, r, actor, decision)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// routeAction returns the plan-gated action for the request, or "" for
// requests that are only rate limited.
func routeAction(method, path string) types.Action {
	if method != http.MethodPost {
		return ""
	}
	return gatedRoutes[path]
}

// clientIP returns the peer address without the port. RemoteAddr is the
// socket peer, not a spoofable header; behind a load balancer that is the
// LB's address, which still separates anonymous clients per frontend hop.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// writeDecisionDenied translates a denied Decision into the HTTP response.
func (s *Server) writeDecisionDenied(w http.ResponseWriter, r *http.Request, actor types.Actor, d types.Decision) {
	var (
		code    types.ErrorCode
		message string
	)
	switch d.ReasonCode {
	case types.ReasonRateLimited:
		code = types.ErrCodeRateLimited
		message = "Rate limit exceeded. Please retry after the reset time."
		if d.RetryAfterSeconds > 0 {
			w.Header().Set("Retry-After", strconv.Itoa(d.RetryAfterSeconds))
		}
	case types.ReasonAccountBlocked:
		code = types.ErrCodeAccountBlocked
		message = "Account is blocked. Contact support to appeal."
	case types.ReasonPlanLimitReached:
		code = types.ErrCodePlanLimitReached
		message = "Plan limit reached. Upgrade to continue."
	default:
		code = types.ErrCodeInternalUnexpected
		message = "Request denied"
	}

	s.Logger.Warn("request denied by guard",
		slog.String("user_id", actor.ID),
		slog.String("reason", string(d.ReasonCode)),
		slog.String("method", r.Method),
		slog.String("path", r.URL.Path),
	)

	requestID := types.GetRequestID(r.Context())
	resp := APIErrorResponse{
		Error: ErrorDetail{
			Code:      string(code),
			Message:   message,
			RequestID: requestID,
		},
	}
	JSON(w, r, code.HTTPStatus(), resp)
}

// setRateLimitHeaders writes the standard X-RateLimit-* headers to the response.
func setRateLimitHeaders(w http.ResponseWriter, rw types.RateWindow) {
	w.Header().Set("X-RateLimit-Limit", strconv.Itoa(rw.Limit))
	w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(rw.Remaining))
	w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(rw.ResetAt.Unix(), 10))
}
