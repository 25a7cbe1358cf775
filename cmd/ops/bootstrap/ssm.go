package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	ssmtypes "github.com/aws/aws-sdk-go-v2/service/ssm/types"
)

// SSMClient is the subset of the AWS SSM API the bootstrap tool uses. The
// interface exists so tests run against a mock instead of live AWS.
type SSMClient interface {
	GetParameter(ctx context.Context, params *ssm.GetParameterInput, optFns ...func(*ssm.Options)) (*ssm.GetParameterOutput, error)
	PutParameter(ctx context.Context, params *ssm.PutParameterInput, optFns ...func(*ssm.Options)) (*ssm.PutParameterOutput, error)
}

// SSMManager wraps the SSM client with environment-aware path construction,
// redacted logging, and per-operation timeouts. All parameters this tool
// manages live under the /{env}/wxarchive/ hierarchy that the service's
// *_SSM_PARAM configuration indirection reads at startup.
type SSMManager struct {
	client SSMClient
	prefix string
	logger *slog.Logger
}

// ssmOperationTimeout is the per-call timeout for SSM API operations. It is
// generous on purpose: initial setup can hit cross-region latency and IAM
// permission propagation delays.
const ssmOperationTimeout = 15 * time.Second

// NewSSMManager creates an SSMManager from the established bootstrap
// session.
func NewSSMManager(bctx *BootstrapContext) *SSMManager {
	return NewSSMManagerWithClient(ssm.NewFromConfig(bctx.AWSConfig), bctx.Environment, bctx.Logger)
}

// NewSSMManagerWithClient creates an SSMManager with an injected client,
// for testing.
func NewSSMManagerWithClient(client SSMClient, env string, logger *slog.Logger) *SSMManager {
	return &SSMManager{
		client: client,
		prefix: fmt.Sprintf("/%s/wxarchive", env),
		logger: logger,
	}
}

// SSMPath builds the absolute parameter path for a category/key. Passing
// "database/url" with env "dev" produces "/dev/wxarchive/database/url".
func (m *SSMManager) SSMPath(categoryAndKey string) string {
	return m.prefix + "/" + categoryAndKey
}

// ParameterExists probes whether a parameter is already present at the
// given absolute path. Existing parameters are never silently overwritten;
// the runner asks the operator first.
func (m *SSMManager) ParameterExists(ctx context.Context, path string) (bool, error) {
	opCtx, cancel := context.WithTimeout(ctx, ssmOperationTimeout)
	defer cancel()

	// The probe leaves WithDecryption off: learning that a parameter is
	// there must not require kms:Decrypt.
	_, err := m.client.GetParameter(opCtx, &ssm.GetParameterInput{
		Name:           aws.String(path),
		WithDecryption: aws.Bool(false),
	})

	var notFound *ssmtypes.ParameterNotFound
	switch {
	case err == nil:
		return true, nil
	case errors.As(err, &notFound):
		return false, nil
	default:
		return false, fmt.Errorf("checking SSM parameter %q: %w", path, err)
	}
}

// GetParameterValue reads a parameter's value. With decrypt set,
// SecureString parameters come back in plaintext; the caller is responsible
// for handling the value securely (the --export-env path writes it to a
// 0600 file and never logs it).
func (m *SSMManager) GetParameterValue(ctx context.Context, path string, decrypt bool) (string, error) {
	opCtx, cancel := context.WithTimeout(ctx, ssmOperationTimeout)
	defer cancel()

	output, err := m.client.GetParameter(opCtx, &ssm.GetParameterInput{
		Name:           aws.String(path),
		WithDecryption: aws.Bool(decrypt),
	})
	if err != nil {
		return "", fmt.Errorf("reading SSM parameter %q: %w", path, err)
	}

	if output.Parameter == nil || output.Parameter.Value == nil {
		return "", fmt.Errorf("SSM parameter %q has no value", path)
	}

	value := aws.ToString(output.Parameter.Value)

	// Decrypted reads are secrets: log the length, never the value.
	valueAttr := slog.String("value", value)
	if decrypt {
		valueAttr = slog.Int("value_length", len(value))
	}
	m.logger.Info("SSM parameter read", slog.String("path", path), valueAttr)

	return value, nil
}

// PutSecret writes a SecureString parameter, encrypted at rest with the
// default KMS key. With overwrite false the call fails if the parameter
// already exists. The value itself is never logged.
func (m *SSMManager) PutSecret(ctx context.Context, path string, value string, overwrite bool) error {
	return m.putParameter(ctx, path, value, ssmtypes.ParameterTypeSecureString, overwrite)
}

// PutString writes a plain String parameter. Strings hold non-sensitive
// values that may need updating later (the queue URL placeholder is
// replaced after the infrastructure deploy), so overwrite is always on.
func (m *SSMManager) PutString(ctx context.Context, path string, value string) error {
	return m.putParameter(ctx, path, value, ssmtypes.ParameterTypeString, true)
}

func (m *SSMManager) putParameter(ctx context.Context, path, value string, paramType ssmtypes.ParameterType, overwrite bool) error {
	switch {
	case path == "":
		return errors.New("SSM parameter path must not be empty")
	case value == "":
		return fmt.Errorf("SSM parameter value must not be empty for path %q", path)
	}

	opCtx, cancel := context.WithTimeout(ctx, ssmOperationTimeout)
	defer cancel()

	_, err := m.client.PutParameter(opCtx, &ssm.PutParameterInput{
		Name:      aws.String(path),
		Value:     aws.String(value),
		Type:      paramType,
		Overwrite: aws.Bool(overwrite),
	})
	if err != nil {
		var exists *ssmtypes.ParameterAlreadyExists
		if !errors.As(err, &exists) {
			return fmt.Errorf("writing SSM parameter %q: %w", path, err)
		}
		m.logger.Warn("SSM parameter already exists (use overwrite to replace)",
			slog.String("path", path), slog.String("type", string(paramType)))
		return fmt.Errorf("SSM parameter %q already exists: %w", path, err)
	}

	// SecureStrings are logged by length only; plain strings by value.
	valueAttr := slog.String("value", value)
	if paramType == ssmtypes.ParameterTypeSecureString {
		valueAttr = slog.Int("value_length", len(value))
	}
	m.logger.Info("SSM parameter written",
		slog.String("path", path), slog.String("type", string(paramType)), valueAttr)

	return nil
}
