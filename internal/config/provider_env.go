package config

import (
	"context"
	"os"
)

// EnvVarProvider resolves secrets straight from the process environment. It
// stands in for SSM during local development and in tests, where secrets
// arrive via the shell or a .env file.
type EnvVarProvider struct{}

// NewEnvVarProvider creates an EnvVarProvider.
func NewEnvVarProvider() *EnvVarProvider {
	return &EnvVarProvider{}
}

// GetParametersBatch looks each key up with os.LookupEnv. Keys absent from
// the environment are omitted from the result rather than erroring; the
// loader's required-field validation catches anything that matters.
func (p *EnvVarProvider) GetParametersBatch(_ context.Context, keys []string) (map[string]string, error) {
	result := make(map[string]string, len(keys))
	for _, key := range keys {
		if val, ok := os.LookupEnv(key); ok {
			result[key] = val
		}
	}
	return result, nil
}
