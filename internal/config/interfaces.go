package config

import "context"

// SecretProvider resolves the values behind *_SSM_PARAM indirections. The
// deployed environments use AWS SSM Parameter Store; local development and
// tests inject fakes or skip resolution entirely (APP_ENV=local reads the
// .env file as-is).
type SecretProvider interface {
	// GetParametersBatch resolves the given parameter paths to plaintext
	// values. Implementations own batching and retry: several Lambda
	// containers cold-starting at once must not trip SSM throttling.
	// Unresolvable keys are omitted from the result rather than erroring;
	// the loader compares the result against its bindings and reports the
	// missing ones by their target variable names.
	GetParametersBatch(ctx context.Context, keys []string) (map[string]string, error)
}
