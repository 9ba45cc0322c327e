package core

import (
	"context"

	"dmcaguard/internal/types"
)

// Authenticator decouples the HTTP layer from the API key lookup (DB
// queries), allowing for easy mocking in tests.
type Authenticator interface {
	// ResolveAPIKey resolves a raw API key to its Actor.
	//
	// Resolution Strategy:
	// 1. Hash the raw key (SHA-256); raw keys are never stored or logged.
	// 2. Query the key record with WHERE clause: revoked_at IS NULL.
	// 3. Populate the Actor from the owning user row: plan tier, account
	//    status, and the super-user bypass flag. The bypass capability is
	//    resolved here, once, at authentication time.
	//
	// Returns ErrCodeAuthTokenInvalid if the key is malformed, not found,
	// or revoked.
	ResolveAPIKey(ctx context.Context, rawKey string) (*types.Actor, error)
}
