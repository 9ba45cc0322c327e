// Package billing provides plan management, usage accounting, and Stripe
// billing glue for the DMCA Guard platform.
package billing

import "dmcaguard/internal/types"

// PlanRegistry defines the authoritative limits for each tier.
// This is the single source of truth for what each plan allows.
type PlanRegistry interface {
	// GetPlan returns the full plan record for the given tier.
	// For unknown tiers, returns the Free plan to fail safely.
	GetPlan(tier types.PlanTier) types.Plan

	// GetLimits returns the resource limits for the given plan tier.
	// For unknown tiers, returns the most restrictive (Free) limits.
	GetLimits(tier types.PlanTier) types.PlanLimits
}

// staticPlanRegistry is a compile-time plan registry backed by an in-memory map.
// It implements PlanRegistry and is the standard implementation for production use.
type staticPlanRegistry struct {
	plans map[types.PlanTier]types.Plan
}

// planDefaults defines the hardcoded plan catalog.
//
//	| Plan       | Profiles | Sessions | Takedowns/mo | Scan every |
//	|------------|----------|----------|--------------|------------|
//	| Free       | 5        | 1        | 5            | 168h       |
//	| Basic      | 5        | 10       | 50           | 24h        |
//	| Premium    | unlimited| 50       | 500          | 6h         |
//	| Enterprise | unlimited| unlimited| unlimited    | 1h         |
//	| Super User | unlimited| unlimited| unlimited    | 1h         |
//
// -1 represents "unlimited" -- enforcement code must treat -1 as no cap.
var planDefaults = map[types.PlanTier]types.Plan{
	types.PlanFree: {
		Tier:        types.PlanFree,
		DisplayName: "Free",
		PriceCents:  0,
		Currency:    "usd",
		Interval:    types.IntervalMonthly,
		Limits: types.PlanLimits{
			BrandProfiles:      5,
			MonitoringSessions: 1,
			TakedownsPerMonth:  5,
			ScanFrequencyHours: 168,
		},
	},
	types.PlanBasic: {
		Tier:        types.PlanBasic,
		DisplayName: "Basic",
		PriceCents:  2900,
		Currency:    "usd",
		Interval:    types.IntervalMonthly,
		Limits: types.PlanLimits{
			BrandProfiles:      5,
			MonitoringSessions: 10,
			TakedownsPerMonth:  50,
			ScanFrequencyHours: 24,
		},
	},
	types.PlanPremium: {
		Tier:        types.PlanPremium,
		DisplayName: "Premium",
		PriceCents:  9900,
		Currency:    "usd",
		Interval:    types.IntervalMonthly,
		Limits: types.PlanLimits{
			BrandProfiles:      -1,
			MonitoringSessions: 50,
			TakedownsPerMonth:  500,
			ScanFrequencyHours: 6,
		},
	},
	types.PlanEnterprise: {
		Tier:        types.PlanEnterprise,
		DisplayName: "Enterprise",
		PriceCents:  49900,
		Currency:    "usd",
		Interval:    types.IntervalMonthly,
		Limits: types.PlanLimits{
			BrandProfiles:      -1,
			MonitoringSessions: -1,
			TakedownsPerMonth:  -1,
			ScanFrequencyHours: 1,
		},
	},
	types.PlanSuperUser: {
		Tier:        types.PlanSuperUser,
		DisplayName: "Super User",
		PriceCents:  0,
		Currency:    "usd",
		Interval:    types.IntervalMonthly,
		Limits: types.PlanLimits{
			BrandProfiles:      -1,
			MonitoringSessions: -1,
			TakedownsPerMonth:  -1,
			ScanFrequencyHours: 1,
		},
	},
}

// freePlan is cached to avoid map lookups on the fallback path.
var freePlan = planDefaults[types.PlanFree]

// NewStaticPlanRegistry returns a PlanRegistry backed by the hardcoded plan
// catalog. This is the standard production implementation; no database or
// external service is required.
func NewStaticPlanRegistry() PlanRegistry {
	// Copy the defaults into a new map so callers cannot mutate the package-level variable.
	m := make(map[types.PlanTier]types.Plan, len(planDefaults))
	for k, v := range planDefaults {
		m[k] = v
	}
	return &staticPlanRegistry{plans: m}
}

// GetPlan returns the full plan record for the given tier.
// If the tier is unknown, it returns the Free plan as a safe default.
func (r *staticPlanRegistry) GetPlan(tier types.PlanTier) types.Plan {
	if plan, ok := r.plans[tier]; ok {
		return plan
	}
	return freePlan
}

// GetLimits returns the resource limits for the given plan tier.
// If the tier is unknown, it returns the Free tier limits as a safe default.
func (r *staticPlanRegistry) GetLimits(tier types.PlanTier) types.PlanLimits {
	return r.GetPlan(tier).Limits
}
