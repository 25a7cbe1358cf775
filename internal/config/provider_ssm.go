package config

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
)

// ssmMaxBatchSize is the AWS service limit on names per GetParameters call.
const ssmMaxBatchSize = 10

// ssmClient is the slice of the SSM SDK the provider needs, kept narrow so
// tests can substitute a mock.
type ssmClient interface {
	GetParameters(ctx context.Context, params *ssm.GetParametersInput, optFns ...func(*ssm.Options)) (*ssm.GetParametersOutput, error)
}

// SSMProvider resolves configuration secrets from AWS Systems Manager
// Parameter Store. The deployed environments store their secrets under
// /{env}/wxarchive/ as SecureStrings (written by the bootstrap tool), and
// the *_SSM_PARAM variables in the task definition point at those paths.
//
// Parameters are fetched with decryption in batches of ten, the API limit.
// Context cancellation is honored between batches so a Lambda nearing its
// deadline fails promptly instead of burning the remaining budget on SSM
// round trips.
type SSMProvider struct {
	// region must match where the parameters live; the archive keeps its
	// parameters in the same region as the workloads that read them.
	region string

	// client is built lazily on first use unless a test injected one.
	client ssmClient
}

// NewSSMProvider creates a provider for the given AWS region.
func NewSSMProvider(region string) *SSMProvider {
	return &SSMProvider{region: region}
}

// newSSMProviderWithClient injects a pre-built client. Test constructor.
func newSSMProviderWithClient(region string, client ssmClient) *SSMProvider {
	return &SSMProvider{region: region, client: client}
}

// ensureClient builds the SSM client from the default AWS config chain on
// first use. Lazy construction keeps NewSSMProvider infallible, which lets
// entry points build the provider before deciding whether SSM resolution is
// even needed.
func (p *SSMProvider) ensureClient(ctx context.Context) error {
	if p.client != nil {
		return nil
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(p.region))
	if err != nil {
		return fmt.Errorf("loading AWS config for SSM (region=%s): %w", p.region, err)
	}
	p.client = ssm.NewFromConfig(cfg)
	return nil
}

// GetParametersBatch resolves the given SSM parameter paths to decrypted
// plaintext values. Parameters SSM flags as invalid (typically: not found,
// or the caller lacks kms:Decrypt) fail the whole call with their names, so
// a misconfigured environment is diagnosed from the first log line.
func (p *SSMProvider) GetParametersBatch(ctx context.Context, keys []string) (map[string]string, error) {
	result := make(map[string]string, len(keys))
	if len(keys) == 0 {
		return result, nil
	}

	if err := p.ensureClient(ctx); err != nil {
		return nil, err
	}

	for start := 0; start < len(keys); start += ssmMaxBatchSize {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("context cancelled during SSM parameter retrieval: %w", err)
		}

		end := min(start+ssmMaxBatchSize, len(keys))
		if err := p.resolveBatch(ctx, keys[start:end], result); err != nil {
			return nil, err
		}
	}

	return result, nil
}

// resolveBatch fetches one batch of at most ssmMaxBatchSize names into out.
func (p *SSMProvider) resolveBatch(ctx context.Context, names []string, out map[string]string) error {
	output, err := p.client.GetParameters(ctx, &ssm.GetParametersInput{
		Names:          names,
		WithDecryption: aws.Bool(true),
	})
	if err != nil {
		return fmt.Errorf("SSM GetParameters failed for batch of %d: %w", len(names), err)
	}

	if len(output.InvalidParameters) > 0 {
		return fmt.Errorf("SSM parameters not found: %v", output.InvalidParameters)
	}

	for _, param := range output.Parameters {
		if param.Name != nil && param.Value != nil {
			out[*param.Name] = *param.Value
		}
	}
	return nil
}
