// Package policy implements the pure plan-limit authorization rules.
// It has no side effects and no I/O: callers supply the tier, the action,
// and the current usage count, and receive a boolean decision.
package policy

import (
	"dmcaguard/internal/billing"
	"dmcaguard/internal/types"
)

// Unlimited is the sentinel limit value meaning "no cap". It is never a real
// count.
const Unlimited = -1

// Authorizer decides whether a plan-gated action is allowed.
type Authorizer interface {
	// CanPerformAction returns true when the action is permitted for the
	// tier at the given usage count. The bypass flag is the actor's
	// super-user capability, resolved once at authentication time.
	//
	// Rules:
	//   - bypass or tier == super_user: always allowed, no usage check.
	//   - limit == Unlimited: always allowed.
	//   - otherwise: allowed iff currentUsage < limit (being exactly at the
	//     limit blocks the next action).
	//   - actions with no configured limit dimension are DENIED. The action
	//     set is closed; a new action must get an explicit limit before it
	//     can ever be allowed.
	CanPerformAction(tier types.PlanTier, action types.Action, currentUsage int, bypass bool) bool
}

// planAuthorizer implements Authorizer against a plan registry.
type planAuthorizer struct {
	plans billing.PlanRegistry
}

// NewAuthorizer creates an Authorizer backed by the given plan registry.
func NewAuthorizer(plans billing.PlanRegistry) Authorizer {
	return &planAuthorizer{plans: plans}
}

func (a *planAuthorizer) CanPerformAction(tier types.PlanTier, action types.Action, currentUsage int, bypass bool) bool {
	if bypass || tier == types.PlanSuperUser {
		return true
	}

	limits := a.plans.GetLimits(tier)

	var limit int
	switch action {
	case types.ActionCreateBrandProfile:
		limit = limits.BrandProfiles
	case types.ActionCreateMonitoringSession:
		limit = limits.MonitoringSessions
	case types.ActionSendTakedown:
		limit = limits.TakedownsPerMonth
	default:
		// Default-deny. An action outside the closed set has no policy and
		// must not be silently allowed.
		return false
	}

	if limit == Unlimited {
		return true
	}
	return currentUsage < limit
}
