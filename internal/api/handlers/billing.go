package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"dmcaguard/internal/core"
	"dmcaguard/internal/types"
)

// BillingGateway is the payment provider surface the handler uses.
// Implemented by billing.NewStripeGateway.
type BillingGateway interface {
	EnsureCustomer(ctx context.Context, userID, email string) (string, error)
	CreateCheckoutSession(ctx context.Context, customerID string, tier types.PlanTier, successURL, cancelURL string) (string, error)
	CreatePortalSession(ctx context.Context, customerID, returnURL string) (string, error)
}

// BillingPlanRegistry mirrors billing.PlanRegistry.
type BillingPlanRegistry interface {
	GetPlan(tier types.PlanTier) types.Plan
	GetLimits(tier types.PlanTier) types.PlanLimits
}

// UsageReader mirrors billing.UsageReader.
type UsageReader interface {
	GetCurrentUsage(ctx context.Context, userID string) (types.UsageSnapshot, error)
}

// CheckoutRequest is the request body for POST /v1/billing/checkout.
type CheckoutRequest struct {
	Tier types.PlanTier `json:"tier" validate:"required,plan_tier"`
}

// checkoutResponse carries the hosted session URL the client redirects to.
type checkoutResponse struct {
	URL string `json:"url"`
}

// usageResponse pairs current consumption with the plan's ceilings so the
// dashboard renders both from one call.
type usageResponse struct {
	Plan   types.PlanTier      `json:"plan"`
	Usage  types.UsageSnapshot `json:"usage"`
	Limits types.PlanLimits    `json:"limits"`
}

// BillingHandler exposes plan discovery, usage reporting, and the Stripe
// checkout/portal redirects.
type BillingHandler struct {
	gateway      BillingGateway
	plans        BillingPlanRegistry
	usage        UsageReader
	dashboardURL string
	validator    *core.Validator
	logger       *slog.Logger
}

// NewBillingHandler creates a new BillingHandler. dashboardURL is the base
// URL Stripe redirects back to after checkout or portal sessions.
func NewBillingHandler(
	gateway BillingGateway,
	plans BillingPlanRegistry,
	usage UsageReader,
	dashboardURL string,
	v *core.Validator,
	l *slog.Logger,
) *BillingHandler {
	if l == nil {
		l = slog.Default()
	}
	return &BillingHandler{
		gateway:      gateway,
		plans:        plans,
		usage:        usage,
		dashboardURL: dashboardURL,
		validator:    v,
		logger:       l,
	}
}

// RegisterRoutes mounts billing routes on the provided chi.Router.
func (h *BillingHandler) RegisterRoutes(r chi.Router) {
	r.Route("/billing", func(r chi.Router) {
		r.Get("/plans", h.ListPlans)
		r.Get("/usage", h.Usage)
		r.Post("/checkout", h.Checkout)
		r.Post("/portal", h.Portal)
	})
}

// ListPlans handles GET /v1/billing/plans. Public tiers only; the internal
// super-user tier is not advertised.
func (h *BillingHandler) ListPlans(w http.ResponseWriter, r *http.Request) {
	tiers := []types.PlanTier{types.PlanFree, types.PlanBasic, types.PlanPremium, types.PlanEnterprise}
	plans := make([]types.Plan, 0, len(tiers))
	for _, tier := range tiers {
		plans = append(plans, h.plans.GetPlan(tier))
	}

	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: plans})
}

// Usage handles GET /v1/billing/usage.
func (h *BillingHandler) Usage(w http.ResponseWriter, r *http.Request) {
	actor, ok := types.GetActor(r.Context())
	if !ok {
		core.Error(w, r, types.NewAppError(types.ErrCodeAuthTokenMissing, "Authentication required", nil))
		return
	}

	snapshot, err := h.usage.GetCurrentUsage(r.Context(), actor.ID)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: usageResponse{
		Plan:   actor.Plan,
		Usage:  snapshot,
		Limits: h.plans.GetLimits(actor.Plan),
	}})
}

// Checkout handles POST /v1/billing/checkout: creates a Stripe Checkout
// session for a paid tier and returns its URL.
func (h *BillingHandler) Checkout(w http.ResponseWriter, r *http.Request) {
	actor, ok := types.GetActor(r.Context())
	if !ok {
		core.Error(w, r, types.NewAppError(types.ErrCodeAuthTokenMissing, "Authentication required", nil))
		return
	}

	var req CheckoutRequest
	if err := core.DecodeJSON(w, r, &req); err != nil {
		core.Error(w, r, err)
		return
	}
	if err := h.validator.ValidateStruct(req); err != nil {
		core.Error(w, r, err)
		return
	}
	if req.Tier == types.PlanFree {
		core.Error(w, r, types.NewAppError(types.ErrCodeValidationFailed, "the free tier has no checkout; downgrades happen via the portal", nil))
		return
	}

	customerID, err := h.gateway.EnsureCustomer(r.Context(), actor.ID, actor.Email)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	sessionURL, err := h.gateway.CreateCheckoutSession(r.Context(), customerID, req.Tier,
		h.dashboardURL+"/billing/success",
		h.dashboardURL+"/billing/cancel",
	)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	h.logger.InfoContext(r.Context(), "checkout session created",
		slog.String("user_id", actor.ID),
		slog.String("tier", string(req.Tier)),
	)

	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: checkoutResponse{URL: sessionURL}})
}

// Portal handles POST /v1/billing/portal: returns a Stripe billing portal
// URL for the customer to manage their subscription.
func (h *BillingHandler) Portal(w http.ResponseWriter, r *http.Request) {
	actor, ok := types.GetActor(r.Context())
	if !ok {
		core.Error(w, r, types.NewAppError(types.ErrCodeAuthTokenMissing, "Authentication required", nil))
		return
	}

	customerID, err := h.gateway.EnsureCustomer(r.Context(), actor.ID, actor.Email)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	portalURL, err := h.gateway.CreatePortalSession(r.Context(), customerID, h.dashboardURL+"/billing")
	if err != nil {
		core.Error(w, r, err)
		return
	}

	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: checkoutResponse{URL: portalURL}})
}
