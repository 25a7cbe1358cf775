// Package main implements wxarchive's one-time environment bootstrap.
//
// Each deployed environment resolves its configuration at startup through
// the *_SSM_PARAM indirection in internal/config. Before the first deploy
// those parameters do not exist, so an operator runs this tool once per
// environment to create them: the database connection string as a
// SecureString and a placeholder for the stats refresh queue URL.
// Re-running is safe; existing parameters are never overwritten without
// asking.
//
//	go run ./cmd/ops/bootstrap --env=dev
//	go run ./cmd/ops/bootstrap --env=dev --export-env
//	go run ./cmd/ops/bootstrap --env=prod --profile=wxarchive-prod --region=us-east-1
//
// The tool authenticates through the standard AWS credential chain, proves
// the identity with STS before writing anything, and demands an interactive
// "yes" when the target is prod. With --export-env it reads the finished
// parameters back and writes a .env file for local development.
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sts"
)

// validEnvironments lists the environments the tool may target. "local" is
// deliberately absent: local development reads a .env file, not SSM.
var validEnvironments = map[string]bool{
	"dev":     true,
	"staging": true,
	"prod":    true,
}

// identityCheckTimeout bounds the STS call so bad credentials fail fast
// instead of hanging the session.
const identityCheckTimeout = 10 * time.Second

// BootstrapContext is the verified session every later phase builds on:
// which environment is being set up, and the AWS identity doing it.
type BootstrapContext struct {
	Environment string // dev, staging, or prod
	AWSProfile  string // shared-config profile, empty for the default chain
	AWSRegion   string
	AccountID   string // resolved via STS GetCallerIdentity
	CallerARN   string
	AWSConfig   aws.Config
	Logger      *slog.Logger
}

// cliOptions carries the parsed command line.
type cliOptions struct {
	env           string
	profile       string
	region        string
	exportEnv     bool
	exportEnvPath string
}

func main() {
	opts, err := parseCLI(os.Args[1:], os.Stderr)
	if err != nil {
		if !errors.Is(err, flag.ErrHelp) {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
		}
		os.Exit(1)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, opts, logger); err != nil {
		logger.Error("bootstrap failed", "error", err)
		os.Exit(1)
	}
}

// parseCLI parses and validates the command line. Usage and flag errors are
// written to stderr.
func parseCLI(args []string, stderr io.Writer) (cliOptions, error) {
	var opts cliOptions

	fs := flag.NewFlagSet("bootstrap", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&opts.env, "env", "", "Target environment (dev/staging/prod) [required]")
	fs.StringVar(&opts.profile, "profile", "", "AWS CLI profile (default: uses default credential chain)")
	fs.StringVar(&opts.region, "region", "us-east-1", "AWS region")
	fs.BoolVar(&opts.exportEnv, "export-env", false, "After bootstrap, export SSM parameters to a .env file for local development")
	fs.StringVar(&opts.exportEnvPath, "export-env-path", ".env", "Path for the exported .env file")

	fs.Usage = func() {
		fmt.Fprintf(stderr, "Weather Archive Bootstrap Tool\n\n")
		fmt.Fprintf(stderr, "Populates the AWS SSM parameters the service resolves at startup.\n\n")
		fmt.Fprintf(stderr, "Usage:\n")
		fmt.Fprintf(stderr, "  bootstrap --env=dev [--profile=NAME] [--region=REGION] [--export-env]\n\n")
		fmt.Fprintf(stderr, "Flags:\n")
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		return opts, err
	}

	if opts.env == "" {
		fs.Usage()
		return opts, errors.New("--env is required")
	}
	if !validEnvironments[opts.env] {
		return opts, fmt.Errorf("invalid environment %q (must be dev, staging, or prod)", opts.env)
	}

	return opts, nil
}

// run executes one bootstrap session end to end. A production target the
// operator declines to confirm returns nil: nothing was written and nothing
// failed.
func run(ctx context.Context, opts cliOptions, logger *slog.Logger) error {
	bctx, err := establishSession(ctx, opts, logger)
	if err != nil {
		return err
	}

	if bctx.Environment == "prod" && !confirmProduction(bctx) {
		fmt.Fprintln(os.Stderr, "Aborted. No changes were made.")
		return nil
	}

	printBanner(bctx)

	runner := NewBootstrapRunner(bctx)
	if err := runner.Run(ctx); err != nil {
		return err
	}

	logger.Info("bootstrap completed successfully",
		"env", bctx.Environment,
		"account", bctx.AccountID,
		"region", bctx.AWSRegion,
	)

	if !opts.exportEnv {
		return nil
	}

	logger.Info("exporting SSM parameters to .env file", "path", opts.exportEnvPath)

	exportCfg := ExportEnvConfig{
		OutputPath:           opts.exportEnvPath,
		Environment:          bctx.Environment,
		SSM:                  runner.SSM,
		Stderr:               os.Stderr,
		IncludeLocalDefaults: true,
	}
	if err := ExportEnvFile(ctx, exportCfg); err != nil {
		return fmt.Errorf("exporting .env file: %w", err)
	}

	logger.Info(".env file exported successfully", "path", opts.exportEnvPath)
	return nil
}

// establishSession resolves AWS credentials and proves they work with an
// STS GetCallerIdentity call before the tool touches any parameter.
func establishSession(ctx context.Context, opts cliOptions, logger *slog.Logger) (*BootstrapContext, error) {
	var loadOpts []func(*awsconfig.LoadOptions) error
	if opts.region != "" {
		loadOpts = append(loadOpts, awsconfig.WithRegion(opts.region))
	}
	if opts.profile != "" {
		loadOpts = append(loadOpts, awsconfig.WithSharedConfigProfile(opts.profile))
	}

	// Credentials resolve from the default chain: environment, shared
	// config, IMDS.
	cfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("loading AWS config: %w", err)
	}

	idCtx, cancel := context.WithTimeout(ctx, identityCheckTimeout)
	defer cancel()

	identity, err := sts.NewFromConfig(cfg).GetCallerIdentity(idCtx, &sts.GetCallerIdentityInput{})
	if err != nil {
		return nil, fmt.Errorf("verifying AWS identity (STS GetCallerIdentity): %w\n"+
			"  Check that your AWS credentials are configured correctly.\n"+
			"  Profile: %q, Region: %q", err, opts.profile, opts.region)
	}

	bctx := &BootstrapContext{
		Environment: opts.env,
		AWSProfile:  opts.profile,
		AWSRegion:   opts.region,
		AccountID:   aws.ToString(identity.Account),
		CallerARN:   aws.ToString(identity.Arn),
		AWSConfig:   cfg,
		Logger:      logger,
	}

	logger.Info("AWS identity verified",
		"account_id", bctx.AccountID,
		"arn", bctx.CallerARN,
		"region", bctx.AWSRegion,
	)

	return bctx, nil
}

// confirmProduction shows which account and identity are about to receive
// production writes, then reads one line from stdin. Only an explicit yes
// proceeds.
func confirmProduction(bctx *BootstrapContext) bool {
	divider := strings.Repeat("=", 60)
	fmt.Fprintf(os.Stderr, "\n%s\n", divider)
	fmt.Fprintln(os.Stderr, "  WARNING: You are targeting the PRODUCTION environment")
	fmt.Fprintln(os.Stderr, divider)
	fmt.Fprintf(os.Stderr, "  Account: %s\n", bctx.AccountID)
	fmt.Fprintf(os.Stderr, "  Region:  %s\n", bctx.AWSRegion)
	fmt.Fprintf(os.Stderr, "  ARN:     %s\n", bctx.CallerARN)
	fmt.Fprintf(os.Stderr, "%s\n\n", divider)
	fmt.Fprint(os.Stderr, "Type 'yes' to continue: ")

	scanner := bufio.NewScanner(os.Stdin)
	if !scanner.Scan() {
		return false
	}
	return confirmedYes(scanner.Text())
}

// confirmedYes reports whether a response line counts as explicit
// confirmation: "yes" in any case, surrounding whitespace ignored.
func confirmedYes(response string) bool {
	return strings.EqualFold(strings.TrimSpace(response), "yes")
}

// printBanner summarizes the session before the first prompt so the
// operator can catch a wrong account or region early.
func printBanner(bctx *BootstrapContext) {
	rows := []struct {
		label string
		value string
	}{
		{"Environment", bctx.Environment},
		{"AWS Account", bctx.AccountID},
		{"AWS Region", bctx.AWSRegion},
		{"Identity", bctx.CallerARN},
		{"Profile", bctx.AWSProfile},
		{"SSM Prefix", fmt.Sprintf("/%s/wxarchive/", bctx.Environment)},
	}

	divider := strings.Repeat("-", 60)
	fmt.Fprintf(os.Stderr, "\n%s\n", divider)
	fmt.Fprintln(os.Stderr, "  Weather Archive Bootstrap")
	fmt.Fprintln(os.Stderr, divider)
	for _, row := range rows {
		if row.value == "" {
			continue
		}
		fmt.Fprintf(os.Stderr, "  %-13s%s\n", row.label+":", row.value)
	}
	fmt.Fprintf(os.Stderr, "%s\n\n", divider)
}
