// Package config defines the global configuration structure for the DMCA
// Guard platform. Configuration is loaded once at process initialization and
// is immutable thereafter. It follows 12-Factor App principles by strictly
// separating code from configuration.
//
// Values are resolved via a priority chain:
//
//	OS Environment (Highest) -> Dotenv File -> AWS SSM Parameter Store (Lowest)
//
// Any missing required value or invalid format causes the application to fail
// immediately on startup (fail fast).
package config

import (
	"encoding/json"
	"time"

	"dmcaguard/internal/types"
)

// SecretString is an alias for types.SecretString, the redacted secret type used
// throughout configuration to prevent accidental logging of sensitive values.
type SecretString = types.SecretString

// Config is the top-level configuration struct for the DMCA Guard platform.
// It is populated once during process initialization and never modified.
// Sub-components receive only the specific config subsets they require
// (Least Privilege principle).
type Config struct {
	// System Metadata
	Environment string `envconfig:"APP_ENV" validate:"required,oneof=local dev staging prod"`
	Service     string `envconfig:"OTEL_SERVICE_NAME" default:"dmcaguard-api"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`
	IsTestMode  bool   `envconfig:"IS_TEST_MODE" default:"false"`

	// Domain Configurations
	Server    ServerConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	AWS       AWSConfig
	Billing   BillingConfig
	Abuse     AbuseConfig
	RateLimit RateLimitConfig
	Archive   ArchiveConfig
	Security  SecurityConfig
	Metrics   MetricsConfig

	// Build Metadata (Injected via ldflags, not Env)
	Build BuildInfo
}

// ServerConfig holds HTTP server and public URL configuration.
type ServerConfig struct {
	Port string `envconfig:"PORT" default:"8080"`
	// Public URLs for billing redirects (no trailing slash)
	APIExternalURL string `envconfig:"API_EXTERNAL_URL" validate:"required,url"` // e.g., https://api.dmcaguard.io
	DashboardURL   string `envconfig:"DASHBOARD_URL" validate:"required,url"`    // e.g., https://app.dmcaguard.io
}

// DatabaseConfig holds database connection and pool tuning parameters.
type DatabaseConfig struct {
	// Resolved from SSM or Env
	URL SecretString `envconfig:"DATABASE_URL" validate:"required,url"`

	// Tuning Parameters
	MaxConns          int           `envconfig:"DB_MAX_CONNS" default:"10"`
	MinConns          int           `envconfig:"DB_MIN_CONNS" default:"2"`
	MaxConnLifetime   time.Duration `envconfig:"DB_MAX_CONN_LIFETIME" default:"30m"`
	AcquireTimeout    time.Duration `envconfig:"DB_ACQUIRE_TIMEOUT" default:"2s"`     // Fail fast when pool exhausted
	HealthCheckPeriod time.Duration `envconfig:"DB_HEALTH_CHECK_PERIOD" default:"1m"` // Detect dead connections during failover
}

// RedisConfig holds the connection settings for the shared rate-limit
// counter store. When URL is empty the API falls back to the in-process
// store, which is only correct for single-instance deployments.
type RedisConfig struct {
	URL         SecretString  `envconfig:"REDIS_URL"`
	DialTimeout time.Duration `envconfig:"REDIS_DIAL_TIMEOUT" default:"3s"`
}

// AWSConfig holds AWS resource identifiers and regional configuration.
type AWSConfig struct {
	Region string `envconfig:"AWS_REGION" default:"us-east-1"`

	// ViolationQueue receives fire-and-forget violation audit events.
	ViolationQueue string `envconfig:"SQS_VIOLATION_EVENTS" validate:"required,url"`

	// LocalStack Support (Empty in Prod)
	EndpointURL string `envconfig:"AWS_ENDPOINT_URL"`
}

// BillingConfig holds Stripe payment integration credentials and the
// tier-to-price mapping used by checkout.
type BillingConfig struct {
	StripeSecretKey     SecretString `envconfig:"STRIPE_SECRET_KEY" validate:"required"`
	StripeWebhookSecret SecretString `envconfig:"STRIPE_WEBHOOK_SECRET" validate:"required"`
	// PriceTableJSON maps plan tier -> Stripe price ID.
	// Example: {"basic": "price_123", "premium": "price_456"}
	PriceTableJSON string `envconfig:"STRIPE_PRICE_TABLE_JSON" validate:"required,json"`
}

// ParsePriceTable decodes the tier-to-price mapping.
func (b BillingConfig) ParsePriceTable() (map[types.PlanTier]string, error) {
	var raw map[types.PlanTier]string
	if err := json.Unmarshal([]byte(b.PriceTableJSON), &raw); err != nil {
		return nil, err
	}
	return raw, nil
}

// AbuseConfig holds the abuse state machine thresholds and the guard
// boundary failure policy.
type AbuseConfig struct {
	WarningThreshold  float64 `envconfig:"ABUSE_WARNING_THRESHOLD" default:"3"`
	HighRiskThreshold float64 `envconfig:"ABUSE_HIGH_RISK_THRESHOLD" default:"6"`
	BlockedThreshold  float64 `envconfig:"ABUSE_BLOCKED_THRESHOLD" default:"10"`

	// SweepInterval is the period of the reconciliation sweep in the monitor
	// process.
	SweepInterval time.Duration `envconfig:"ABUSE_SWEEP_INTERVAL" default:"10m"`

	// FailOpen allows requests through when the abuse or counter stores are
	// unavailable. Default is fail-closed.
	FailOpen bool `envconfig:"GUARD_FAIL_OPEN" default:"false"`

	// RateLimitViolationSeverity is the score added per rate-limit breach.
	RateLimitViolationSeverity float64 `envconfig:"ABUSE_RATE_LIMIT_SEVERITY" default:"0.1"`
}

// RateLimitConfig holds tuning for the in-process counter store sweeper.
// The rule table itself is code, not configuration.
type RateLimitConfig struct {
	SweepInterval time.Duration `envconfig:"RATE_LIMIT_SWEEP_INTERVAL" default:"1m"`
}

// ArchiveConfig holds violation archival settings. Old violation rows are
// exported to gzip JSONL files and deleted; abuse scores are kept forever.
type ArchiveConfig struct {
	RetentionDays int    `envconfig:"VIOLATION_RETENTION_DAYS" default:"90"`
	BatchSize     int    `envconfig:"VIOLATION_ARCHIVE_BATCH" default:"500"`
	Dir           string `envconfig:"VIOLATION_ARCHIVE_DIR" default:"/var/lib/dmcaguard/archive"`
}

// SecurityConfig holds security-related configuration including admin access
// and CORS settings.
type SecurityConfig struct {
	AdminAPIKey        SecretString `envconfig:"ADMIN_API_KEY" validate:"required"`
	CorsAllowedOrigins []string     `envconfig:"CORS_ALLOWED_ORIGINS" default:"*"`
}

// MetricsConfig holds telemetry settings.
type MetricsConfig struct {
	Namespace string `envconfig:"METRIC_NAMESPACE" default:"dmcaguard"`
	Enabled   bool   `envconfig:"METRICS_ENABLED" default:"true"`
}

// BuildInfo holds build-time metadata injected via ldflags.
// These values are NOT populated from environment variables.
type BuildInfo struct {
	Version   string
	Commit    string
	BuildTime string
}

// ConfigErrorType categorizes configuration loading failures to aid debugging.
type ConfigErrorType string

const (
	// ErrMissingEnv indicates a required environment variable was not found.
	ErrMissingEnv ConfigErrorType = "MISSING_ENV"
	// ErrSSMResolution indicates a failure when fetching secrets from AWS SSM.
	ErrSSMResolution ConfigErrorType = "SSM_FAILURE"
	// ErrValidation indicates the configuration failed struct validation rules.
	ErrValidation ConfigErrorType = "VALIDATION_FAILED"
	// ErrParsing indicates a failure when parsing environment variable values
	// into their target types.
	ErrParsing ConfigErrorType = "PARSING_FAILED"
)
