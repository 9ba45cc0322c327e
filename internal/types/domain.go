package types

import "time"

// PlanLimits is the numeric usage cap set for a plan tier.
// A value of -1 means unlimited; enforcement code MUST treat -1 as no cap.
// Zero is a real cap (the action is never allowed on that tier).
type PlanLimits struct {
	BrandProfiles      int `json:"brand_profiles"`
	MonitoringSessions int `json:"monitoring_sessions"`
	TakedownsPerMonth  int `json:"takedowns_per_month"`
	ScanFrequencyHours int `json:"scan_frequency_hours"`
}

// Plan is the immutable per-tier record exposed by the plan registry.
type Plan struct {
	Tier        PlanTier        `json:"tier"`
	DisplayName string          `json:"display_name"`
	PriceCents  int64           `json:"price_cents"`
	Currency    string          `json:"currency"`
	Interval    BillingInterval `json:"interval"`
	Limits      PlanLimits      `json:"limits"`
}

// User represents a brand-owner account.
type User struct {
	ID               string        `json:"id" db:"id"`
	Email            string        `json:"email" db:"email"`
	Name             string        `json:"name" db:"name"`
	Plan             PlanTier      `json:"plan" db:"plan"`
	Status           AccountStatus `json:"status" db:"status"`
	IsSuperUser      bool          `json:"is_super_user" db:"is_super_user"`
	StripeCustomerID string        `json:"-" db:"stripe_customer_id"`
	CreatedAt        time.Time     `json:"created_at" db:"created_at"`
	UpdatedAt        time.Time     `json:"updated_at" db:"updated_at"`
	SuspendedAt      *time.Time    `json:"suspended_at,omitempty" db:"suspended_at"`
}

// AbuseScore is the persisted abuse record for a user. One row per user,
// created lazily on the first violation and never deleted (audit trail).
type AbuseScore struct {
	UserID          string     `json:"user_id" db:"user_id"`
	CurrentScore    float64    `json:"current_score" db:"current_score"`
	State           AbuseState `json:"state" db:"state"`
	LastViolationAt *time.Time `json:"last_violation_at,omitempty" db:"last_violation_at"`
	CreatedAt       time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at" db:"updated_at"`
}

// Violation is an immutable record of a single abuse violation.
type Violation struct {
	ID        string         `json:"id" db:"id"`
	UserID    string         `json:"user_id" db:"user_id"`
	Kind      ViolationKind  `json:"kind" db:"kind"`
	Severity  float64        `json:"severity" db:"severity"`
	Reason    string         `json:"reason" db:"reason"`
	Metadata  map[string]any `json:"metadata,omitempty" db:"metadata"`
	CreatedAt time.Time      `json:"created_at" db:"created_at"`
}

// BrandProfile is a protected brand a user monitors for infringement.
type BrandProfile struct {
	ID           string    `json:"id" db:"id"`
	UserID       string    `json:"user_id" db:"user_id"`
	BrandName    string    `json:"brand_name" db:"brand_name"`
	OfficialURLs []string  `json:"official_urls" db:"official_urls"`
	Keywords     []string  `json:"keywords" db:"keywords"`
	Active       bool      `json:"active" db:"active"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time `json:"updated_at" db:"updated_at"`
}

// MonitoringSession is a recurring scan configuration for a brand profile.
type MonitoringSession struct {
	ID             string        `json:"id" db:"id"`
	UserID         string        `json:"user_id" db:"user_id"`
	BrandProfileID string        `json:"brand_profile_id" db:"brand_profile_id"`
	Name           string        `json:"name" db:"name"`
	ScanInterval   time.Duration `json:"scan_interval" db:"scan_interval"`
	Status         SessionStatus `json:"status" db:"status"`
	LastScanAt     *time.Time    `json:"last_scan_at,omitempty" db:"last_scan_at"`
	CreatedAt      time.Time     `json:"created_at" db:"created_at"`
}

// TakedownRequest is a DMCA notice issued against an infringing URL.
type TakedownRequest struct {
	ID             string         `json:"id" db:"id"`
	UserID         string         `json:"user_id" db:"user_id"`
	BrandProfileID string         `json:"brand_profile_id" db:"brand_profile_id"`
	InfringingURL  string         `json:"infringing_url" db:"infringing_url"`
	RecipientEmail string         `json:"recipient_email" db:"recipient_email"`
	Status         TakedownStatus `json:"status" db:"status"`
	CreatedAt      time.Time      `json:"created_at" db:"created_at"`
	SentAt         *time.Time     `json:"sent_at,omitempty" db:"sent_at"`
}

// UsageSnapshot is the current usage tally for a user, read from the
// authoritative count queries at decision time.
type UsageSnapshot struct {
	BrandProfiles      int        `json:"brand_profiles"`
	MonitoringSessions int        `json:"monitoring_sessions"`
	TakedownsThisMonth int        `json:"takedowns_this_month"`
	PeriodEnd          *time.Time `json:"period_end,omitempty"`
}

// ForAction returns the usage count relevant to the given action, and false
// for actions with no usage dimension.
func (u UsageSnapshot) ForAction(action Action) (int, bool) {
	switch action {
	case ActionCreateBrandProfile:
		return u.BrandProfiles, true
	case ActionCreateMonitoringSession:
		return u.MonitoringSessions, true
	case ActionSendTakedown:
		return u.TakedownsThisMonth, true
	default:
		return 0, false
	}
}

// RateWindow reports the effective window counters for a matched rate rule.
// The HTTP layer translates this into X-RateLimit-* response headers.
type RateWindow struct {
	Limit     int
	Remaining int
	ResetAt   time.Time
}

// Decision is the structured outcome of the authorization boundary.
// The boundary always returns a Decision value; it never panics or surfaces
// raw infrastructure errors to the caller.
type Decision struct {
	Allowed           bool       `json:"allowed"`
	ReasonCode        ReasonCode `json:"reason_code"`
	RetryAfterSeconds int        `json:"retry_after_seconds,omitempty"`

	// RateLimit is set when a rate rule matched the endpoint, on allowed and
	// denied decisions alike. It is a transport hint, not part of the JSON
	// decision contract.
	RateLimit *RateWindow `json:"-"`
}

// Allow is the canonical allowed decision.
func Allow() Decision {
	return Decision{Allowed: true, ReasonCode: ReasonOK}
}

// Deny builds a denied decision with the given reason.
func Deny(reason ReasonCode) Decision {
	return Decision{Allowed: false, ReasonCode: reason}
}

// ViolationEvent is the fire-and-forget audit payload published to the
// violation event queue when abuse is recorded or an action is denied.
type ViolationEvent struct {
	EventID    string         `json:"event_id"`
	UserID     string         `json:"user_id"`
	Kind       ViolationKind  `json:"kind"`
	Severity   float64        `json:"severity"`
	Reason     string         `json:"reason"`
	State      AbuseState     `json:"state"`
	Score      float64        `json:"score"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	OccurredAt time.Time      `json:"occurred_at"`
}
