package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// ssmToEnvMapping maps each bootstrap inventory key to the environment
// variable the service reads. This must stay in sync with the envconfig
// tags in internal/config.
var ssmToEnvMapping = map[string]string{
	"database/url":        "DATABASE_URL",
	"queue/stats_refresh": "SQS_STATS_REFRESH",
}

// localDefault is one non-secret entry appended to the exported .env when
// IncludeLocalDefaults is set. These mirror the local-development values
// from the configuration surface; entries whose variable was already
// exported from SSM are skipped.
type localDefault struct {
	key   string
	value string
}

var localDefaults = []localDefault{
	{"APP_ENV", "local"},
	{"LOG_LEVEL", "debug"},
	{"DATA_DIR", "wx_data"},
	{"PORT", "8080"},
	{"COMMIT_EVERY", "20000"},
	{"INGEST_WORKERS", "1"},
	{"FORCE_INGEST", "false"},
	{"ENABLE_METRICS", "false"},
	{"AWS_REGION", "us-east-1"},
	// LocalStack endpoint for exercising the SQS trigger locally.
	{"AWS_ENDPOINT_URL", "http://localhost:4566"},
}

// ExportEnvConfig holds the inputs for ExportEnvFile.
type ExportEnvConfig struct {
	// OutputPath is where the .env file is written. Parent directories are
	// created as needed.
	OutputPath string

	// Environment is the SSM environment segment being exported (dev/...).
	Environment string

	// SSM reads the parameters back, decrypting SecureStrings.
	SSM *SSMManager

	// Stderr receives progress and warning output.
	Stderr io.Writer

	// IncludeLocalDefaults appends the local-development defaults section.
	IncludeLocalDefaults bool
}

// ExportEnvFile reads the bootstrap inventory back from SSM and writes a
// .env file for local development. SecureString values land in the file in
// plaintext, so the file is written 0600 and must never be committed.
//
// Parameters missing from SSM are warned about and skipped; the export
// fails only when nothing could be read at all.
func ExportEnvFile(ctx context.Context, cfg ExportEnvConfig) error {
	var b strings.Builder

	b.WriteString("# Auto-generated by bootstrap --export-env\n")
	fmt.Fprintf(&b, "# Environment: %s\n", cfg.Environment)
	fmt.Fprintf(&b, "# Generated: %s\n", time.Now().UTC().Format(time.RFC3339))
	b.WriteString("#\n")
	b.WriteString("# SECURITY WARNING: this file contains decrypted secrets.\n")
	b.WriteString("# Do not commit it. Keep permissions at 0600.\n")
	b.WriteString("\n")

	exported := make(map[string]bool)
	written := 0

	// Walk the inventory in its defined order so the file is deterministic.
	// The validator is never invoked during export.
	for _, step := range BuildInventory(NewValidatorWithConnector(nil)) {
		envVar, ok := ssmToEnvMapping[step.SSMCategoryKey]
		if !ok {
			fmt.Fprintf(cfg.Stderr, "  warning: no env var mapping for %s, skipping\n", step.SSMCategoryKey)
			continue
		}

		path := cfg.SSM.SSMPath(step.SSMCategoryKey)
		decrypt := step.ParamType == ParamSecureString

		value, err := cfg.SSM.GetParameterValue(ctx, path, decrypt)
		if err != nil {
			fmt.Fprintf(cfg.Stderr, "  warning: could not read %s: %v\n", path, err)
			continue
		}

		b.WriteString(formatEnvLine(envVar, value))
		b.WriteString("\n")
		exported[envVar] = true
		written++
	}

	if written == 0 {
		return fmt.Errorf("no parameters could be read from SSM for environment %q", cfg.Environment)
	}

	if cfg.IncludeLocalDefaults {
		b.WriteString("\n# Local Development Defaults\n")
		for _, d := range localDefaults {
			if exported[d.key] {
				continue
			}
			b.WriteString(formatEnvLine(d.key, d.value))
			b.WriteString("\n")
		}
	}

	if dir := filepath.Dir(cfg.OutputPath); dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return fmt.Errorf("creating output directory %q: %w", dir, err)
		}
	}

	// 0600: the file holds decrypted secrets.
	if err := os.WriteFile(cfg.OutputPath, []byte(b.String()), 0o600); err != nil {
		return fmt.Errorf("writing env file %q: %w", cfg.OutputPath, err)
	}

	fmt.Fprintf(cfg.Stderr, "\n  Environment file exported: %s\n", cfg.OutputPath)
	fmt.Fprintf(cfg.Stderr, "  Parameters written: %d\n", written)
	return nil
}

// formatEnvLine renders one KEY=value line. Values made only of characters
// that dotenv parsers read literally stay unquoted; anything else is
// double-quoted with backslash, quote, and newline escaping.
func formatEnvLine(key, value string) string {
	if value != "" && !needsQuoting(value) {
		return key + "=" + value
	}

	escaped := strings.NewReplacer(
		`\`, `\\`,
		`"`, `\"`,
		"\n", `\n`,
	).Replace(value)
	return key + `="` + escaped + `"`
}

// needsQuoting reports whether the value contains characters outside the
// conservative set safe for unquoted dotenv values.
func needsQuoting(value string) bool {
	for _, r := range value {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		case strings.ContainsRune("-_./:@+=?&%,", r):
		default:
			return true
		}
	}
	return false
}
