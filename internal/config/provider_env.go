package config

import (
	"context"
	"os"
)

// EnvVarProvider resolves "secrets" straight from the process environment.
// It exists for local development and tests, where the .env file already
// holds real values and a round trip to SSM would only add an AWS
// dependency to a laptop run.
type EnvVarProvider struct{}

// NewEnvVarProvider creates an EnvVarProvider.
func NewEnvVarProvider() *EnvVarProvider {
	return &EnvVarProvider{}
}

// GetParametersBatch looks each key up as an environment variable. Unset
// keys are omitted from the result; the loader is the one that decides
// whether an omission is fatal. The context is unused: environment lookups
// cannot block.
func (p *EnvVarProvider) GetParametersBatch(_ context.Context, keys []string) (map[string]string, error) {
	result := make(map[string]string, len(keys))
	for _, key := range keys {
		if value, ok := os.LookupEnv(key); ok {
			result[key] = value
		}
	}
	return result, nil
}
