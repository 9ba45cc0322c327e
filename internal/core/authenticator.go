package core

import (
	"context"
	"crypto/sha256"
	"encoding/hex"

	"dmcaguard/internal/types"
)

// UserSource is the persistence lookup the API key authenticator depends on.
// Implemented by db.UserRepository.
type UserSource interface {
	GetByAPIKeyHash(ctx context.Context, keyHash string) (*types.User, error)
}

// APIKeyAuthenticator resolves raw API keys to Actors. Keys are stored as
// SHA-256 hashes; the raw key never touches the database or the logs.
type APIKeyAuthenticator struct {
	users UserSource
}

// NewAPIKeyAuthenticator creates an Authenticator backed by the user store.
func NewAPIKeyAuthenticator(users UserSource) *APIKeyAuthenticator {
	return &APIKeyAuthenticator{users: users}
}

// ResolveAPIKey hashes the raw key and resolves the owning user. The Actor
// carries the plan tier, account status, and the super-user bypass flag so
// downstream policy code never re-derives them.
func (a *APIKeyAuthenticator) ResolveAPIKey(ctx context.Context, rawKey string) (*types.Actor, error) {
	if rawKey == "" {
		return nil, types.NewAppError(types.ErrCodeAuthTokenInvalid, "API key is empty", nil)
	}

	sum := sha256.Sum256([]byte(rawKey))
	keyHash := hex.EncodeToString(sum[:])

	user, err := a.users.GetByAPIKeyHash(ctx, keyHash)
	if err != nil {
		return nil, err
	}

	return &types.Actor{
		ID:          user.ID,
		Email:       user.Email,
		Type:        types.ActorTypeUser,
		Plan:        user.Plan,
		Status:      user.Status,
		IsSuperUser: user.IsSuperUser,
	}, nil
}
