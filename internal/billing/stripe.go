package billing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/sony/gobreaker/v2"
	stripe "github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/client"

	"dmcaguard/internal/types"
)

// CustomerStore is the minimal persistence access the Stripe gateway needs:
// resolving and recording the Stripe customer ID for a user.
type CustomerStore interface {
	GetStripeCustomerID(ctx context.Context, userID string) (string, error)
	SetStripeCustomerID(ctx context.Context, userID, customerID string) error
}

// Gateway wraps the Stripe operations the platform performs. Handlers depend
// on this interface so tests can substitute a fake without network access.
type Gateway interface {
	// EnsureCustomer returns the Stripe customer ID for the user, creating
	// the customer on first use and persisting the mapping.
	EnsureCustomer(ctx context.Context, userID, email string) (string, error)

	// CreateCheckoutSession starts a subscription checkout for the given
	// tier and returns the hosted checkout URL.
	CreateCheckoutSession(ctx context.Context, customerID string, tier types.PlanTier, successURL, cancelURL string) (string, error)

	// CreatePortalSession returns a billing portal URL for self-service
	// subscription management.
	CreatePortalSession(ctx context.Context, customerID, returnURL string) (string, error)
}

// PriceTable maps purchasable tiers to Stripe price IDs. The Free and
// Super User tiers have no price and are absent.
type PriceTable map[types.PlanTier]string

// stripeGateway implements Gateway against the Stripe API client. All API
// calls route through a circuit breaker so a degraded Stripe sheds billing
// traffic quickly instead of stacking timeouts.
type stripeGateway struct {
	api     *client.API
	store   CustomerStore
	prices  PriceTable
	breaker *gobreaker.CircuitBreaker[string]
	logger  *slog.Logger
}

func newStripeBreaker() *gobreaker.CircuitBreaker[string] {
	return gobreaker.NewCircuitBreaker[string](gobreaker.Settings{
		Name:        "stripe-api",
		MaxRequests: 3,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
	})
}

// NewStripeGateway creates a Gateway backed by the Stripe API.
func NewStripeGateway(secretKey string, store CustomerStore, prices PriceTable, logger *slog.Logger) Gateway {
	if logger == nil {
		logger = slog.Default()
	}
	api := &client.API{}
	api.Init(secretKey, nil)
	return &stripeGateway{
		api:     api,
		store:   store,
		prices:  prices,
		breaker: newStripeBreaker(),
		logger:  logger,
	}
}

// callStripe runs one Stripe API call through the circuit breaker and wraps
// any failure, including an open breaker rejecting the call outright, as an
// upstream error.
func (g *stripeGateway) callStripe(msg string, fn func() (string, error)) (string, error) {
	out, err := g.breaker.Execute(fn)
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			g.logger.Warn("stripe call rejected by open circuit", slog.String("op", msg))
		}
		return "", types.NewAppError(types.ErrCodeUpstreamStripe, msg, err)
	}
	return out, nil
}

func (g *stripeGateway) EnsureCustomer(ctx context.Context, userID, email string) (string, error) {
	existing, err := g.store.GetStripeCustomerID(ctx, userID)
	if err != nil {
		return "", err
	}
	if existing != "" {
		return existing, nil
	}

	custID, err := g.callStripe("failed to create stripe customer", func() (string, error) {
		cust, err := g.api.Customers.New(&stripe.CustomerParams{
			Params: stripe.Params{Context: ctx},
			Email:  stripe.String(email),
			Metadata: map[string]string{
				"user_id": userID,
			},
		})
		if err != nil {
			return "", err
		}
		return cust.ID, nil
	})
	if err != nil {
		return "", err
	}

	if err := g.store.SetStripeCustomerID(ctx, userID, custID); err != nil {
		// The customer exists in Stripe but not locally. Surface the error;
		// the next EnsureCustomer call will create a duplicate, which the
		// webhook reconciler tolerates by matching on metadata.user_id.
		return "", err
	}

	g.logger.Info("stripe customer created",
		slog.String("user_id", userID),
		slog.String("customer_id", custID),
	)
	return custID, nil
}

func (g *stripeGateway) CreateCheckoutSession(ctx context.Context, customerID string, tier types.PlanTier, successURL, cancelURL string) (string, error) {
	priceID, ok := g.prices[tier]
	if !ok {
		return "", types.NewAppError(types.ErrCodeValidationInvalidPlan,
			fmt.Sprintf("plan %q is not purchasable", tier), nil)
	}

	return g.callStripe("failed to create checkout session", func() (string, error) {
		sess, err := g.api.CheckoutSessions.New(&stripe.CheckoutSessionParams{
			Params:     stripe.Params{Context: ctx},
			Customer:   stripe.String(customerID),
			Mode:       stripe.String(string(stripe.CheckoutSessionModeSubscription)),
			SuccessURL: stripe.String(successURL),
			CancelURL:  stripe.String(cancelURL),
			LineItems: []*stripe.CheckoutSessionLineItemParams{
				{Price: stripe.String(priceID), Quantity: stripe.Int64(1)},
			},
			SubscriptionData: &stripe.CheckoutSessionSubscriptionDataParams{
				Metadata: map[string]string{"plan_tier": string(tier)},
			},
		})
		if err != nil {
			return "", err
		}
		return sess.URL, nil
	})
}

func (g *stripeGateway) CreatePortalSession(ctx context.Context, customerID, returnURL string) (string, error) {
	return g.callStripe("failed to create portal session", func() (string, error) {
		sess, err := g.api.BillingPortalSessions.New(&stripe.BillingPortalSessionParams{
			Params:    stripe.Params{Context: ctx},
			Customer:  stripe.String(customerID),
			ReturnURL: stripe.String(returnURL),
		})
		if err != nil {
			return "", err
		}
		return sess.URL, nil
	})
}
