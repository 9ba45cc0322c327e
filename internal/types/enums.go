package types

// PlanTier identifies the subscription plan for a user account.
type PlanTier string

const (
	PlanFree       PlanTier = "free"
	PlanBasic      PlanTier = "basic"
	PlanPremium    PlanTier = "premium"
	PlanEnterprise PlanTier = "enterprise"
	// PlanSuperUser is an internal tier that bypasses every usage and rate
	// check. It is never sold and never assigned through billing flows.
	PlanSuperUser PlanTier = "super_user"
)

// Action is the closed set of plan-gated mutating operations.
// Every new action MUST get an explicit limit in the plan registry and an
// explicit branch in the authorizer; unknown actions are denied.
type Action string

const (
	ActionCreateBrandProfile      Action = "create_brand_profile"
	ActionCreateMonitoringSession Action = "create_monitoring_session"
	ActionSendTakedown            Action = "send_takedown"
)

// AbuseState is the escalating abuse classification for a user.
// Transitions are driven by the accumulated violation score; BLOCKED
// additionally suspends the underlying account.
type AbuseState string

const (
	AbuseStateClean    AbuseState = "clean"
	AbuseStateWarning  AbuseState = "warning"
	AbuseStateHighRisk AbuseState = "high_risk"
	AbuseStateBlocked  AbuseState = "blocked"
)

// SeverityMultiplier returns the rate-limit ceiling multiplier for the state.
// The effective request cap for a window is floor(maxRequests * multiplier),
// so BLOCKED (0.0) rejects the very first request in any window.
func (s AbuseState) SeverityMultiplier() float64 {
	switch s {
	case AbuseStateWarning:
		return 0.7
	case AbuseStateHighRisk:
		return 0.3
	case AbuseStateBlocked:
		return 0.0
	default:
		return 1.0
	}
}

// ViolationKind categorizes a recorded abuse violation.
type ViolationKind string

const (
	ViolationRateLimitExceeded ViolationKind = "rate_limit_exceeded"
	ViolationAuthFailure       ViolationKind = "auth_failure"
	ViolationSuspiciousPattern ViolationKind = "suspicious_pattern"
	ViolationSpamTakedowns     ViolationKind = "spam_takedowns"
	ViolationManualBlock       ViolationKind = "manual_block"
)

// AccountStatus represents the lifecycle state of a user account.
type AccountStatus string

const (
	AccountActive    AccountStatus = "active"
	AccountSuspended AccountStatus = "suspended"
	AccountDeleted   AccountStatus = "deleted"
)

// ReasonCode is the machine-readable outcome of an authorization decision.
// These values are part of the public API contract.
type ReasonCode string

const (
	ReasonOK               ReasonCode = "OK"
	ReasonPlanLimitReached ReasonCode = "PLAN_LIMIT_REACHED"
	ReasonRateLimited      ReasonCode = "RATE_LIMITED"
	ReasonAccountBlocked   ReasonCode = "ACCOUNT_BLOCKED"
)

// BillingInterval defines the recurring billing cadence for a plan.
type BillingInterval string

const (
	IntervalMonthly BillingInterval = "month"
	IntervalYearly  BillingInterval = "year"
)

// TakedownStatus tracks the lifecycle of a DMCA takedown notice.
type TakedownStatus string

const (
	TakedownPending      TakedownStatus = "pending"
	TakedownSent         TakedownStatus = "sent"
	TakedownAcknowledged TakedownStatus = "acknowledged"
	TakedownRemoved      TakedownStatus = "removed"
	TakedownRejected     TakedownStatus = "rejected"
)

// SessionStatus represents the lifecycle state of a monitoring session.
type SessionStatus string

const (
	SessionActive SessionStatus = "active"
	SessionPaused SessionStatus = "paused"
	SessionEnded  SessionStatus = "ended"
)

// SubscriptionStatus mirrors the Stripe subscription states the platform
// reacts to. Values MUST match the strings Stripe sends in webhook events.
type SubscriptionStatus string

const (
	SubStatusActive   SubscriptionStatus = "active"
	SubStatusPastDue  SubscriptionStatus = "past_due"
	SubStatusCanceled SubscriptionStatus = "canceled"
	SubStatusTrialing SubscriptionStatus = "trialing"
	SubStatusUnpaid   SubscriptionStatus = "unpaid"
)
