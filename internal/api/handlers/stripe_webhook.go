package handlers

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"dmcaguard/internal/core"
	"dmcaguard/internal/types"
)

// maxWebhookBodySize bounds the webhook payload. Stripe subscription events
// are small; anything larger is not ours.
const maxWebhookBodySize = 64 * 1024

// SignatureVerifier validates the Stripe-Signature header for a payload.
// Implemented by billing.NewWebhookVerifier.
type SignatureVerifier interface {
	Verify(payload []byte, sigHeader string) error
}

// PlanStore is the persistence surface webhook processing needs: mapping a
// Stripe customer back to a user and moving them between tiers.
type PlanStore interface {
	GetByStripeCustomerID(ctx context.Context, customerID string) (*types.User, error)
	UpdatePlan(ctx context.Context, userID string, plan types.PlanTier) error
}

// stripeEvent is the slice of a Stripe event envelope this handler reads.
// Decoding the full stripe.Event type drags in fields and API-version
// coupling we do not need.
type stripeEvent struct {
	ID   string          `json:"id"`
	Type string          `json:"type"`
	Data stripeEventData `json:"data"`
}

type stripeEventData struct {
	Object stripeSubscription `json:"object"`
}

type stripeSubscription struct {
	ID       string                   `json:"id"`
	Customer string                   `json:"customer"`
	Status   types.SubscriptionStatus `json:"status"`
	Metadata map[string]string        `json:"metadata"`
}

// StripeWebhookHandler processes Stripe subscription lifecycle events and
// keeps user plan tiers in sync. The route is public: authentication is the
// webhook signature, not an API key.
type StripeWebhookHandler struct {
	verifier SignatureVerifier
	store    PlanStore
	logger   *slog.Logger
}

// NewStripeWebhookHandler creates a new StripeWebhookHandler.
func NewStripeWebhookHandler(verifier SignatureVerifier, store PlanStore, l *slog.Logger) *StripeWebhookHandler {
	if l == nil {
		l = slog.Default()
	}
	return &StripeWebhookHandler{verifier: verifier, store: store, logger: l}
}

// RegisterRoutes mounts the webhook endpoint on the provided chi.Router.
// The resulting /v1/webhooks/stripe path is exempt from API-key auth and the
// guard boundary; the signature check is the authentication.
func (h *StripeWebhookHandler) RegisterRoutes(r chi.Router) {
	r.Post("/webhooks/stripe", h.Handle)
}

// Handle receives a Stripe event. Once the signature verifies, the response
// is always 200: returning an error makes Stripe retry, and a permanently
// malformed event would retry forever. Processing failures are logged and
// alerted on instead.
func (h *StripeWebhookHandler) Handle(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBodySize))
	if err != nil {
		core.Error(w, r, types.NewAppError(types.ErrCodeValidationFailed, "failed to read webhook payload", err))
		return
	}

	if err := h.verifier.Verify(payload, r.Header.Get("Stripe-Signature")); err != nil {
		core.Error(w, r, err)
		return
	}

	var event stripeEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		h.logger.ErrorContext(r.Context(), "undecodable stripe event", slog.Any("error", err))
		w.WriteHeader(http.StatusOK)
		return
	}

	if err := h.routeEvent(r.Context(), event); err != nil {
		h.logger.ErrorContext(r.Context(), "stripe event processing failed",
			slog.String("event_id", event.ID),
			slog.String("event_type", event.Type),
			slog.Any("error", err),
		)
	}

	w.WriteHeader(http.StatusOK)
}

func (h *StripeWebhookHandler) routeEvent(ctx context.Context, event stripeEvent) error {
	switch event.Type {
	case "customer.subscription.created", "customer.subscription.updated":
		return h.syncSubscription(ctx, event)
	case "customer.subscription.deleted":
		return h.downgrade(ctx, event.Data.Object.Customer)
	default:
		h.logger.DebugContext(ctx, "ignoring stripe event", slog.String("event_type", event.Type))
		return nil
	}
}

// syncSubscription moves the user onto the tier named in the subscription's
// metadata when the subscription is in good standing, and back to free when
// it lapses.
func (h *StripeWebhookHandler) syncSubscription(ctx context.Context, event stripeEvent) error {
	sub := event.Data.Object

	switch sub.Status {
	case types.SubStatusActive, types.SubStatusTrialing:
		tier, ok := purchasableTier(sub.Metadata["plan_tier"])
		if !ok {
			return types.NewAppError(types.ErrCodeValidationFailed,
				"subscription metadata has no recognizable plan_tier", nil)
		}
		return h.setPlan(ctx, sub.Customer, tier)
	case types.SubStatusCanceled, types.SubStatusUnpaid:
		return h.downgrade(ctx, sub.Customer)
	case types.SubStatusPastDue:
		// Grace period: the plan stays until the subscription resolves to
		// canceled or unpaid.
		h.logger.WarnContext(ctx, "subscription past due",
			slog.String("subscription_id", sub.ID),
			slog.String("customer_id", sub.Customer),
		)
		return nil
	default:
		h.logger.DebugContext(ctx, "ignoring subscription status",
			slog.String("status", string(sub.Status)))
		return nil
	}
}

func (h *StripeWebhookHandler) downgrade(ctx context.Context, customerID string) error {
	return h.setPlan(ctx, customerID, types.PlanFree)
}

func (h *StripeWebhookHandler) setPlan(ctx context.Context, customerID string, tier types.PlanTier) error {
	user, err := h.store.GetByStripeCustomerID(ctx, customerID)
	if err != nil {
		return err
	}
	if user.Plan == tier {
		return nil
	}

	if err := h.store.UpdatePlan(ctx, user.ID, tier); err != nil {
		return err
	}

	h.logger.InfoContext(ctx, "plan updated from stripe event",
		slog.String("user_id", user.ID),
		slog.String("from", string(user.Plan)),
		slog.String("to", string(tier)),
	)
	return nil
}

// purchasableTier maps subscription metadata to a sellable tier. Unknown
// values and internal tiers are rejected.
func purchasableTier(raw string) (types.PlanTier, bool) {
	switch t := types.PlanTier(raw); t {
	case types.PlanBasic, types.PlanPremium, types.PlanEnterprise:
		return t, true
	default:
		return "", false
	}
}
