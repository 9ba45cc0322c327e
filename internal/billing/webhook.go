package billing

import (
	"github.com/stripe/stripe-go/v82/webhook"

	"dmcaguard/internal/types"
)

// WebhookVerifier validates that a webhook payload genuinely came from
// Stripe before any of it is parsed.
type WebhookVerifier interface {
	Verify(payload []byte, sigHeader string) error
}

type stripeWebhookVerifier struct {
	secret string
}

// NewWebhookVerifier creates a WebhookVerifier for the given endpoint
// signing secret.
func NewWebhookVerifier(secret string) WebhookVerifier {
	return &stripeWebhookVerifier{secret: secret}
}

// Verify checks the Stripe-Signature header against the payload. Signature
// only; callers decode the payload themselves after this passes.
func (v *stripeWebhookVerifier) Verify(payload []byte, sigHeader string) error {
	if err := webhook.ValidatePayload(payload, sigHeader, v.secret); err != nil {
		return types.NewAppError(types.ErrCodeAuthTokenInvalid, "webhook signature verification failed", err)
	}
	return nil
}
