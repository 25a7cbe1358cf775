// loader.go wires the configuration sources together. Values flow in with
// the priority OS environment > .env file > SSM Parameter Store: godotenv
// never overrides variables that are already set, and SSM resolution skips
// any target variable the environment already provides.
//
// Secrets are referenced indirectly: DATABASE_URL_SSM_PARAM holds the
// Parameter Store path whose value becomes DATABASE_URL. Outside APP_ENV=
// local the loader resolves every such pointer before envconfig runs, so
// the rest of the program only ever sees plain environment variables.
package config

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// ssmParamSuffix marks an environment variable as an SSM pointer. Stripping
// the suffix yields the variable the resolved secret is injected as.
const ssmParamSuffix = "_SSM_PARAM"

// localEnv disables SSM resolution entirely; local runs read .env only.
const localEnv = "local"

// ssmResolveTimeout bounds the Parameter Store round trips during startup.
const ssmResolveTimeout = 30 * time.Second

// LoadConfig assembles and validates the full Config.
//
// The sequence: force UTC, load a .env file when one exists, resolve
// *_SSM_PARAM pointers through the provider (skipped when APP_ENV=local),
// run envconfig over the result, attach build metadata, validate.
//
// provider may be nil for local development. In any other environment a nil
// provider is an error as soon as an unresolved *_SSM_PARAM pointer exists.
func LoadConfig(provider SecretProvider) (*Config, error) {
	return load(provider, osDeps())
}

func load(provider SecretProvider, deps loaderDeps) (*Config, error) {
	// Observation dates are calendar dates. A process-local timezone would
	// shift them when formatted, so the whole process runs in UTC.
	time.Local = time.UTC

	// Missing .env is the normal case everywhere but a developer checkout.
	_ = godotenv.Load()

	if env, _ := deps.lookupEnv("APP_ENV"); env != localEnv {
		if err := resolveSSMParams(provider, deps); err != nil {
			return nil, err
		}
	}

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, &ConfigError{
			Type:    ErrParsing,
			Message: "parsing environment variables into Config",
			Err:     err,
		}
	}

	cfg.Build = NewBuildInfo()

	if err := validator.New().Struct(cfg); err != nil {
		return nil, &ConfigError{
			Type:    ErrValidation,
			Message: "invalid configuration",
			Err:     err,
		}
	}

	return &cfg, nil
}

// ResolveSecrets runs only the SSM pointer resolution, for entry points that
// read individual variables with os.Getenv instead of building a Config (the
// stats worker Lambda). Call it before the first os.Getenv that may depend
// on a resolved value. No-op when APP_ENV=local or no pointers are set.
func ResolveSecrets(provider SecretProvider) error {
	if env, _ := os.LookupEnv("APP_ENV"); env == localEnv {
		return nil
	}
	return resolveSSMParams(provider, osDeps())
}

// ssmBinding pairs one *_SSM_PARAM pointer with the variable it feeds.
type ssmBinding struct {
	target string // env var to inject, e.g. DATABASE_URL
	path   string // Parameter Store path, e.g. /prod/wxarchive/database/url
}

// pendingBindings scans the environment for *_SSM_PARAM pointers whose
// target variable is not already set. Pointers with an empty path and
// targets satisfied by the environment (or .env, loaded by now) are left
// alone — that is what gives direct variables priority over SSM.
func pendingBindings(deps loaderDeps) []ssmBinding {
	var bindings []ssmBinding
	for _, entry := range deps.environ() {
		name, path, ok := strings.Cut(entry, "=")
		if !ok || !strings.HasSuffix(name, ssmParamSuffix) || path == "" {
			continue
		}
		target := strings.TrimSuffix(name, ssmParamSuffix)
		if _, set := deps.lookupEnv(target); set {
			continue
		}
		bindings = append(bindings, ssmBinding{target: target, path: path})
	}
	return bindings
}

// resolveSSMParams fetches every pending *_SSM_PARAM pointer in one batch
// and injects the values into the environment under the target names. Every
// pending pointer must resolve; a parameter the store does not return is a
// startup failure, reported by the name of the variable it should have fed.
func resolveSSMParams(provider SecretProvider, deps loaderDeps) error {
	bindings := pendingBindings(deps)
	if len(bindings) == 0 {
		return nil
	}

	targets := make([]string, len(bindings))
	paths := make([]string, len(bindings))
	for i, b := range bindings {
		targets[i] = b.target
		paths[i] = b.path
	}

	if provider == nil {
		return &ConfigError{
			Type:    ErrSSMResolution,
			Message: fmt.Sprintf("no SecretProvider wired outside local; unresolved: %s", strings.Join(targets, ", ")),
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), ssmResolveTimeout)
	defer cancel()

	resolved, err := provider.GetParametersBatch(ctx, paths)
	if err != nil {
		return &ConfigError{
			Type:    ErrSSMResolution,
			Message: fmt.Sprintf("batch read of %d SSM parameters failed", len(paths)),
			Err:     err,
		}
	}

	var missing []string
	for _, b := range bindings {
		value, ok := resolved[b.path]
		if !ok {
			missing = append(missing, b.target)
			continue
		}
		if err := deps.setEnv(b.target, value); err != nil {
			return &ConfigError{
				Type:    ErrSSMResolution,
				Message: fmt.Sprintf("setting %s from its resolved parameter", b.target),
				Err:     err,
			}
		}
	}
	if len(missing) > 0 {
		return &ConfigError{
			Type:    ErrSSMResolution,
			Message: fmt.Sprintf("parameter store returned no value for: %s", strings.Join(missing, ", ")),
		}
	}

	return nil
}

// loaderDeps carries the process-environment operations the loader mutates,
// injectable so tests can run against a synthetic environment.
type loaderDeps struct {
	lookupEnv func(key string) (string, bool)
	setEnv    func(key, value string) error
	environ   func() []string
}

func osDeps() loaderDeps {
	return loaderDeps{
		lookupEnv: os.LookupEnv,
		setEnv:    os.Setenv,
		environ:   os.Environ,
	}
}

// ConfigErrorType names the stage a configuration failure happened in.
type ConfigErrorType string

const (
	// ErrSSMResolution covers Parameter Store failures: unreachable store,
	// missing parameters, or a missing provider.
	ErrSSMResolution ConfigErrorType = "SSM_FAILURE"
	// ErrParsing covers envconfig failures, including absent required
	// variables and values that do not fit their field type.
	ErrParsing ConfigErrorType = "PARSING_FAILED"
	// ErrValidation covers values that parsed but violate a validate tag.
	ErrValidation ConfigErrorType = "VALIDATION_FAILED"
)

// ConfigError classifies a configuration failure so startup logs can tell a
// bad variable value from an unreachable Parameter Store.
type ConfigError struct {
	Type    ConfigErrorType
	Message string
	Err     error
}

func (e *ConfigError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Type, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Type, e.Message)
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}
