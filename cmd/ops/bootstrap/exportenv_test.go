package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	ssmtypes "github.com/aws/aws-sdk-go-v2/service/ssm/types"
)

// mockSSMWithValues builds a GetParameter handler serving the given
// path->value map; anything else is ParameterNotFound.
func mockSSMWithValues(values map[string]string) *scriptedSSM {
	return &scriptedSSM{
		onGet: func(_ context.Context, input *ssm.GetParameterInput) (*ssm.GetParameterOutput, error) {
			name := aws.ToString(input.Name)
			if v, ok := values[name]; ok {
				return &ssm.GetParameterOutput{
					Parameter: &ssmtypes.Parameter{
						Name:  input.Name,
						Value: aws.String(v),
					},
				}, nil
			}
			return nil, &ssmtypes.ParameterNotFound{Message: aws.String("not found")}
		},
	}
}

func devExportConfig(t *testing.T, mock *scriptedSSM) (ExportEnvConfig, *bytes.Buffer) {
	t.Helper()
	stderr := &bytes.Buffer{}
	return ExportEnvConfig{
		OutputPath:  filepath.Join(t.TempDir(), ".env"),
		Environment: "dev",
		SSM:         newManager(mock, "dev"),
		Stderr:      stderr,
	}, stderr
}

func TestSSMToEnvMapping_CoversInventory(t *testing.T) {
	for _, step := range BuildInventory(NewValidatorWithConnector(nil)) {
		envVar, ok := ssmToEnvMapping[step.SSMCategoryKey]
		if !ok {
			t.Errorf("inventory key %q has no env var mapping", step.SSMCategoryKey)
			continue
		}
		if envVar == "" {
			t.Errorf("inventory key %q maps to an empty env var", step.SSMCategoryKey)
		}
	}
}

func TestSSMToEnvMapping_MatchesConfigSurface(t *testing.T) {
	// These names must match the envconfig tags in internal/config; the
	// exported .env is read by the same LoadConfig path the services use.
	expected := map[string]string{
		"database/url":        "DATABASE_URL",
		"queue/stats_refresh": "SQS_STATS_REFRESH",
	}

	if len(ssmToEnvMapping) != len(expected) {
		t.Fatalf("mapping has %d entries, want %d", len(ssmToEnvMapping), len(expected))
	}
	for key, envVar := range expected {
		if got := ssmToEnvMapping[key]; got != envVar {
			t.Errorf("mapping[%q] = %q, want %q", key, got, envVar)
		}
	}
}

func TestSSMToEnvMapping_NoDuplicateEnvVars(t *testing.T) {
	seen := make(map[string]string)
	for key, envVar := range ssmToEnvMapping {
		if prev, dup := seen[envVar]; dup {
			t.Errorf("env var %q mapped from both %q and %q", envVar, prev, key)
		}
		seen[envVar] = key
	}
}

func TestFormatEnvLine(t *testing.T) {
	tests := []struct {
		name     string
		key      string
		value    string
		expected string
	}{
		{"simple", "PORT", "8080", "PORT=8080"},
		{"url", "DATABASE_URL", "postgres://u:p@h:5432/wx", "DATABASE_URL=postgres://u:p@h:5432/wx"},
		{"spaces", "KEY", "two words", `KEY="two words"`},
		{"quotes", "KEY", `say "hello"`, `KEY="say \"hello\""`},
		{"hash", "KEY", "a#b", `KEY="a#b"`},
		{"empty", "KEY", "", `KEY=""`},
		{"newline", "KEY", "line1\nline2", `KEY="line1\nline2"`},
		{"backslash", "KEY", `path\to\file`, `KEY="path\\to\\file"`},
		{"dollar", "KEY", "pa$$word", `KEY="pa$$word"`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := formatEnvLine(tt.key, tt.value); got != tt.expected {
				t.Errorf("formatEnvLine(%q, %q) = %s, want %s", tt.key, tt.value, got, tt.expected)
			}
		})
	}
}

func TestExportEnvFile_WritesAllParameters(t *testing.T) {
	mock := mockSSMWithValues(map[string]string{
		"/dev/wxarchive/database/url":        "postgres://archive:pw@db:5432/wx",
		"/dev/wxarchive/queue/stats_refresh": "pending_setup",
	})
	cfg, stderr := devExportConfig(t, mock)

	if err := ExportEnvFile(context.Background(), cfg); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	content, err := os.ReadFile(cfg.OutputPath)
	if err != nil {
		t.Fatalf("reading exported file: %v", err)
	}
	text := string(content)

	for _, want := range []string{
		"# Auto-generated by bootstrap --export-env",
		"# Environment: dev",
		"# SECURITY WARNING",
		"DATABASE_URL=postgres://archive:pw@db:5432/wx",
		"SQS_STATS_REFRESH=pending_setup",
	} {
		if !strings.Contains(text, want) {
			t.Errorf("exported file missing %q", want)
		}
	}

	if !strings.Contains(stderr.String(), "Parameters written: 2") {
		t.Errorf("stderr = %q, want parameters-written count", stderr.String())
	}

	// Only the SecureString read may request decryption.
	for _, call := range mock.gets {
		name := aws.ToString(call.Name)
		decrypted := aws.ToBool(call.WithDecryption)
		if name == "/dev/wxarchive/database/url" && !decrypted {
			t.Error("database URL must be read with decryption")
		}
		if name == "/dev/wxarchive/queue/stats_refresh" && decrypted {
			t.Error("plain String must not request decryption")
		}
	}
}

func TestExportEnvFile_IncludesLocalDefaults(t *testing.T) {
	mock := mockSSMWithValues(map[string]string{
		"/dev/wxarchive/database/url":        "postgres://u:p@h/wx",
		"/dev/wxarchive/queue/stats_refresh": "pending_setup",
	})
	cfg, _ := devExportConfig(t, mock)
	cfg.IncludeLocalDefaults = true

	if err := ExportEnvFile(context.Background(), cfg); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	content, _ := os.ReadFile(cfg.OutputPath)
	text := string(content)

	for _, want := range []string{
		"# Local Development Defaults",
		"APP_ENV=local",
		"LOG_LEVEL=debug",
		"DATA_DIR=wx_data",
		"AWS_ENDPOINT_URL=http://localhost:4566",
	} {
		if !strings.Contains(text, want) {
			t.Errorf("exported file missing %q", want)
		}
	}

	// No variable may appear twice.
	if strings.Count(text, "DATABASE_URL=") != 1 {
		t.Error("DATABASE_URL exported more than once")
	}
	if strings.Count(text, "APP_ENV=") != 1 {
		t.Error("APP_ENV exported more than once")
	}
}

func TestExportEnvFile_WithoutLocalDefaults(t *testing.T) {
	mock := mockSSMWithValues(map[string]string{
		"/dev/wxarchive/database/url":        "postgres://u:p@h/wx",
		"/dev/wxarchive/queue/stats_refresh": "pending_setup",
	})
	cfg, _ := devExportConfig(t, mock)

	if err := ExportEnvFile(context.Background(), cfg); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	content, _ := os.ReadFile(cfg.OutputPath)
	if strings.Contains(string(content), "Local Development Defaults") {
		t.Error("defaults section should be absent without IncludeLocalDefaults")
	}
}

func TestExportEnvFile_Permissions(t *testing.T) {
	mock := mockSSMWithValues(map[string]string{
		"/dev/wxarchive/database/url":        "postgres://u:p@h/wx",
		"/dev/wxarchive/queue/stats_refresh": "pending_setup",
	})
	cfg, _ := devExportConfig(t, mock)

	if err := ExportEnvFile(context.Background(), cfg); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	info, err := os.Stat(cfg.OutputPath)
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0o600 {
		t.Errorf("file mode = %o, want 0600", perm)
	}
}

func TestExportEnvFile_PartialFailure(t *testing.T) {
	// Database URL is missing; the queue placeholder is still readable.
	mock := mockSSMWithValues(map[string]string{
		"/dev/wxarchive/queue/stats_refresh": "pending_setup",
	})
	cfg, stderr := devExportConfig(t, mock)

	if err := ExportEnvFile(context.Background(), cfg); err != nil {
		t.Fatalf("partial failure should not abort the export: %v", err)
	}

	content, _ := os.ReadFile(cfg.OutputPath)
	text := string(content)
	if strings.Contains(text, "DATABASE_URL=") {
		t.Error("unreadable parameter must not appear in the file")
	}
	if !strings.Contains(text, "SQS_STATS_REFRESH=pending_setup") {
		t.Error("readable parameter missing from the file")
	}

	out := stderr.String()
	if !strings.Contains(out, "warning: could not read") {
		t.Error("expected a warning for the unreadable parameter")
	}
	if !strings.Contains(out, "Parameters written: 1") {
		t.Errorf("stderr = %q", out)
	}
}

func TestExportEnvFile_AllMissing(t *testing.T) {
	mock := mockSSMWithValues(nil)
	cfg, _ := devExportConfig(t, mock)

	err := ExportEnvFile(context.Background(), cfg)
	if err == nil {
		t.Fatal("expected error when nothing could be read")
	}
	if !strings.Contains(err.Error(), "no parameters could be read") {
		t.Errorf("error = %q", err)
	}
	if _, statErr := os.Stat(cfg.OutputPath); !os.IsNotExist(statErr) {
		t.Error("no file should be written when the export fails")
	}
}

func TestExportEnvFile_CreatesParentDirs(t *testing.T) {
	mock := mockSSMWithValues(map[string]string{
		"/dev/wxarchive/database/url":        "postgres://u:p@h/wx",
		"/dev/wxarchive/queue/stats_refresh": "pending_setup",
	})
	cfg, _ := devExportConfig(t, mock)
	cfg.OutputPath = filepath.Join(t.TempDir(), "nested", "env", ".env.dev")

	if err := ExportEnvFile(context.Background(), cfg); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := os.Stat(cfg.OutputPath); err != nil {
		t.Errorf("exported file not found: %v", err)
	}
}

func TestExportEnvFile_StagingPaths(t *testing.T) {
	mock := mockSSMWithValues(map[string]string{
		"/staging/wxarchive/database/url":        "postgres://u:p@h/wx",
		"/staging/wxarchive/queue/stats_refresh": "pending_setup",
	})
	stderr := &bytes.Buffer{}
	cfg := ExportEnvConfig{
		OutputPath:  filepath.Join(t.TempDir(), ".env"),
		Environment: "staging",
		SSM:         newManager(mock, "staging"),
		Stderr:      stderr,
	}

	if err := ExportEnvFile(context.Background(), cfg); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	content, _ := os.ReadFile(cfg.OutputPath)
	if !strings.Contains(string(content), "# Environment: staging") {
		t.Error("header should carry the environment name")
	}

	for _, call := range mock.gets {
		if !strings.HasPrefix(aws.ToString(call.Name), "/staging/wxarchive/") {
			t.Errorf("read from %q, want /staging/wxarchive/ prefix", aws.ToString(call.Name))
		}
	}
}

func TestExportEnvFile_ContextCancelled(t *testing.T) {
	mock := &scriptedSSM{
		onGet: func(ctx context.Context, _ *ssm.GetParameterInput) (*ssm.GetParameterOutput, error) {
			return nil, ctx.Err()
		},
	}
	cfg, _ := devExportConfig(t, mock)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := ExportEnvFile(ctx, cfg); err == nil {
		t.Fatal("expected error with cancelled context")
	}
}
