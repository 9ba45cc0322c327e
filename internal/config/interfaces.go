package config

import "context"

// SecretProvider resolves secret values by key. Production uses SSM
// Parameter Store; local development and tests use the environment.
type SecretProvider interface {
	// GetParametersBatch resolves the given keys (SSM parameter paths or
	// environment variable names) to plaintext values. Implementations own
	// their batching and throttling; many replicas may start at once.
	GetParametersBatch(ctx context.Context, keys []string) (map[string]string, error)
}
