package billing

import (
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dmcaguard/internal/types"
)

func newBreakerGateway() *stripeGateway {
	return &stripeGateway{
		breaker: newStripeBreaker(),
		logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}

func TestCallStripe_PassesResultThrough(t *testing.T) {
	g := newBreakerGateway()

	out, err := g.callStripe("failed to create stripe customer", func() (string, error) {
		return "cus_123", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "cus_123", out)
}

func TestCallStripe_WrapsAPIErrorAsUpstream(t *testing.T) {
	g := newBreakerGateway()

	_, err := g.callStripe("failed to create checkout session", func() (string, error) {
		return "", errors.New("connection reset")
	})
	require.Error(t, err)

	var appErr *types.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, types.ErrCodeUpstreamStripe, appErr.Code)
}

func TestCallStripe_BreakerOpensAfterConsecutiveFailures(t *testing.T) {
	g := newBreakerGateway()
	boom := errors.New("connection reset")

	for i := 0; i < 6; i++ {
		_, err := g.callStripe("failed to create stripe customer", func() (string, error) {
			return "", boom
		})
		require.Error(t, err, "failure %d", i+1)
	}

	// With the circuit open the call is rejected before reaching Stripe.
	calls := 0
	_, err := g.callStripe("failed to create stripe customer", func() (string, error) {
		calls++
		return "cus_123", nil
	})
	require.Error(t, err)
	assert.Zero(t, calls, "open circuit must not invoke the API")

	var appErr *types.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, types.ErrCodeUpstreamStripe, appErr.Code)
}
