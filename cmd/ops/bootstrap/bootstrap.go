package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"
)

// ParameterType selects the SSM storage class a parameter is written with.
type ParameterType int

const (
	ParamSecureString ParameterType = iota // encrypted at rest
	ParamString                            // plaintext
)

// InputSource says where a step's value comes from.
type InputSource int

const (
	SourcePrompt InputSource = iota // the operator types it in
	SourceFixed                     // a hardcoded placeholder, no prompt
)

// BootstrapStep defines a single parameter to be populated during
// bootstrap. Each step maps to one entry the service's *_SSM_PARAM
// configuration chain can resolve at startup.
type BootstrapStep struct {
	// HumanLabel names the step in operator-facing output.
	HumanLabel string

	// SSMCategoryKey is the category/key portion of the SSM path:
	// "database/url" becomes "/{env}/wxarchive/database/url".
	SSMCategoryKey string

	ParamType ParameterType
	Source    InputSource

	// FixedValue is written verbatim when Source is SourceFixed.
	FixedValue string

	// Prompt is the instructional text shown when Source is SourcePrompt.
	Prompt string

	// ValidateFn validates operator input. Nil accepts the value as-is.
	ValidateFn func(ctx context.Context, input string) ValidationResult

	// IsSecret masks the input during entry: the value is read without
	// echoing to the terminal and only its length is acknowledged.
	IsSecret bool

	// Phase groups steps under a shared section header.
	Phase string
}

// maxRetries is how many times the operator can retry entering a value
// before the bootstrap aborts for that step.
const maxRetries = 5

// errSkipped is a sentinel returned by promptAndValidate when the operator
// chooses to skip a parameter. processStep records the step as "skipped"
// without writing to SSM.
var errSkipped = errors.New("parameter skipped by operator")

// BuildInventory constructs the ordered list of bootstrap steps. The
// archive needs exactly two parameters: the database connection string
// (the only externally-issued secret) and the stats refresh queue URL,
// which starts as a placeholder because the queue is created by the
// infrastructure deploy that follows bootstrap.
func BuildInventory(v *Validator) []BootstrapStep {
	return []BootstrapStep{
		{
			HumanLabel:     "Database URL",
			SSMCategoryKey: "database/url",
			Phase:          "External Services",
			ParamType:      ParamSecureString,
			Source:         SourcePrompt,
			Prompt: `1. Provision a PostgreSQL instance (RDS, Supabase, or self-hosted).
   2. Create the application database and a role with DDL rights
      (the jobs run CREATE TABLE IF NOT EXISTS on startup).
   3. Paste the full postgres://... connection string here:`,
			ValidateFn: v.ValidateDatabaseURL,
			IsSecret:   true,
		},
		{
			HumanLabel:     "Stats Refresh Queue URL",
			SSMCategoryKey: "queue/stats_refresh",
			Phase:          "Infrastructure Placeholders",
			ParamType:      ParamString,
			Source:         SourceFixed,
			FixedValue:     "pending_setup",
		},
	}
}

// BootstrapRunner orchestrates the main bootstrap loop. It is separated
// from main() so tests can inject dependencies.
type BootstrapRunner struct {
	SSM       *SSMManager
	Validator *Validator
	Stdin     io.Reader
	Stderr    io.Writer

	// scanner is the shared line scanner for stdin, lazily initialized on
	// first use. A single scanner avoids the problem where multiple
	// bufio.Scanner instances read ahead and lose data from the underlying
	// reader.
	scanner *bufio.Scanner

	// stepsOverride lets tests swap in a modified inventory (e.g. with
	// lenient validators). Nil means BuildInventory.
	stepsOverride []BootstrapStep
}

// NewBootstrapRunner assembles the production runner: live SSM, live
// validators, and the operator's terminal.
func NewBootstrapRunner(bctx *BootstrapContext) *BootstrapRunner {
	return &BootstrapRunner{
		SSM:       NewSSMManager(bctx),
		Validator: NewValidator(),
		Stdin:     os.Stdin,
		Stderr:    os.Stderr,
	}
}

// inventory returns the steps to run: the test override when set, otherwise
// the production inventory.
func (r *BootstrapRunner) inventory() []BootstrapStep {
	if r.stepsOverride != nil {
		return r.stepsOverride
	}
	return BuildInventory(r.Validator)
}

// Run executes the bootstrap protocol: walk the ordered inventory, probe
// SSM for existing values, prompt and validate where needed, write, and
// print a final summary.
func (r *BootstrapRunner) Run(ctx context.Context) error {
	inv := r.inventory()

	var phase string
	results := make([]stepResult, 0, len(inv))

	for i, step := range inv {
		if step.Phase != phase {
			phase = step.Phase
			r.printPhaseHeader(phase)
		}
		fmt.Fprintf(r.Stderr, "\n[%d/%d] %s\n", i+1, len(inv), step.HumanLabel)

		result, err := r.processStep(ctx, step)
		if err != nil {
			return fmt.Errorf("step %q: %w", step.HumanLabel, err)
		}
		results = append(results, result)
	}

	r.printSummary(results)
	return nil
}

// stepResult records the outcome of one bootstrap step.
type stepResult struct {
	Label  string
	Action string // "written", "skipped", "overwritten"
	Path   string
}

// processStep handles a single step: existence probe, value acquisition,
// validation, SSM write.
func (r *BootstrapRunner) processStep(ctx context.Context, step BootstrapStep) (stepResult, error) {
	path := r.SSM.SSMPath(step.SSMCategoryKey)
	result := stepResult{Label: step.HumanLabel, Path: path}

	// Probe first: re-running bootstrap must never clobber values without
	// asking.
	exists, err := r.SSM.ParameterExists(ctx, path)
	if err != nil {
		return result, fmt.Errorf("checking existence of %s: %w", path, err)
	}
	if exists {
		fmt.Fprintf(r.Stderr, "  Parameter already exists: %s\n", path)
		choice, err := r.promptSkipOrOverwrite()
		if err != nil {
			return result, fmt.Errorf("reading skip/overwrite choice: %w", err)
		}
		if choice == "skip" {
			fmt.Fprintln(r.Stderr, "  Skipped.")
			result.Action = "skipped"
			return result, nil
		}
	}

	value, err := r.resolveValue(ctx, step)
	if errors.Is(err, errSkipped) {
		fmt.Fprintln(r.Stderr, "  Skipped.")
		result.Action = "skipped"
		return result, nil
	}
	if err != nil {
		return result, err
	}

	if step.ParamType == ParamSecureString {
		err = r.SSM.PutSecret(ctx, path, value, exists)
	} else {
		// PutString always overwrites internally.
		err = r.SSM.PutString(ctx, path, value)
	}
	if err != nil {
		return result, fmt.Errorf("writing SSM parameter %s: %w", path, err)
	}

	result.Action = "written"
	if exists {
		result.Action = "overwritten"
	}
	fmt.Fprintf(r.Stderr, "  Stored: %s\n", path)
	return result, nil
}

// resolveValue obtains the value for a step, either from its fixed
// placeholder or by prompting the operator.
func (r *BootstrapRunner) resolveValue(ctx context.Context, step BootstrapStep) (string, error) {
	if step.Source == SourceFixed {
		fmt.Fprintf(r.Stderr, "  Using fixed value: %s\n", step.FixedValue)
		return step.FixedValue, nil
	}
	return r.promptAndValidate(ctx, step)
}

// promptAndValidate prompts the operator for input, validates it, and
// retries up to maxRetries times on validation failure. Empty input does
// not consume an attempt; it offers a skip instead.
func (r *BootstrapRunner) promptAndValidate(ctx context.Context, step BootstrapStep) (string, error) {
	fmt.Fprintf(r.Stderr, "\n  %s\n\n", step.Prompt)

	attempt := 0
	for attempt < maxRetries {
		input, err := r.readStepValue(step)
		if err != nil {
			return "", fmt.Errorf("reading input for %s: %w", step.HumanLabel, err)
		}

		input = strings.TrimSpace(input)
		if input == "" {
			choice, err := r.promptSkipOrRetry()
			if err != nil {
				return "", fmt.Errorf("reading skip/retry choice for %s: %w", step.HumanLabel, err)
			}
			if choice == "skip" {
				return "", errSkipped
			}
			continue
		}
		attempt++

		// Acknowledge secret input by length only; never echo the value.
		if step.IsSecret {
			fmt.Fprintf(r.Stderr, "  Received %d chars.\n", len(input))
		}

		if step.ValidateFn == nil {
			return input, nil
		}

		vr := step.ValidateFn(ctx, input)
		if vr.Valid {
			fmt.Fprintf(r.Stderr, "  Validated: %s\n", vr.Message)
			return input, nil
		}

		fmt.Fprintf(r.Stderr, "  Validation failed: %s\n", vr.Message)
		if attempt < maxRetries {
			fmt.Fprintf(r.Stderr, "  Try again (%d/%d).\n", attempt, maxRetries)
		}
	}

	return "", fmt.Errorf("maximum retries (%d) exceeded for %s", maxRetries, step.HumanLabel)
}

// scanLine reads one line from stdin through a single shared scanner.
// Multiple scanners over the same reader would buffer ahead of each other
// and drop input. Returns io.EOF when input runs out.
func (r *BootstrapRunner) scanLine() (string, error) {
	if r.scanner == nil {
		r.scanner = bufio.NewScanner(r.Stdin)
	}
	if !r.scanner.Scan() {
		if err := r.scanner.Err(); err != nil {
			return "", err
		}
		return "", io.EOF
	}
	return r.scanner.Text(), nil
}

// readStepValue reads one value for a step, masking the input for secrets.
func (r *BootstrapRunner) readStepValue(step BootstrapStep) (string, error) {
	if step.IsSecret {
		return r.readSecretInput("  > ")
	}
	fmt.Fprint(r.Stderr, "  > ")
	return r.scanLine()
}

// readSecretInput reads input without echoing it to the terminal. When
// stdin is not a terminal (tests, piped input), it falls back to regular
// line reading.
func (r *BootstrapRunner) readSecretInput(prompt string) (string, error) {
	fmt.Fprint(r.Stderr, prompt)

	f, ok := r.Stdin.(*os.File)
	if !ok || !term.IsTerminal(int(f.Fd())) {
		return r.scanLine()
	}

	secret, err := term.ReadPassword(int(f.Fd()))
	fmt.Fprintln(r.Stderr) // newline after hidden input
	if err != nil {
		return "", fmt.Errorf("reading secret input: %w", err)
	}
	return string(secret), nil
}

// choose re-prompts until the operator picks one of the offered options.
// An option matches on its full word or its first letter, case-insensitively.
func (r *BootstrapRunner) choose(question, help string, options ...string) (string, error) {
	for {
		fmt.Fprint(r.Stderr, question)

		line, err := r.scanLine()
		if err != nil {
			return "", err
		}

		answer := strings.ToLower(strings.TrimSpace(line))
		for _, opt := range options {
			if answer == opt || answer == opt[:1] {
				return opt, nil
			}
		}
		fmt.Fprintln(r.Stderr, help)
	}
}

// promptSkipOrOverwrite asks the operator what to do with an existing SSM
// parameter. Returns "skip" or "overwrite".
func (r *BootstrapRunner) promptSkipOrOverwrite() (string, error) {
	return r.choose(
		"  [S]kip or [O]verwrite? ",
		"  Please enter 'S' to skip or 'O' to overwrite.",
		"skip", "overwrite",
	)
}

// promptSkipOrRetry asks the operator what to do after empty input;
// the answer is "skip" or "retry".
func (r *BootstrapRunner) promptSkipOrRetry() (string, error) {
	return r.choose(
		"  No input received. [S]kip this parameter or [R]etry? ",
		"  Please enter 'S' to skip or 'R' to retry.",
		"skip", "retry",
	)
}

// printRule writes a horizontal divider of the given character.
func (r *BootstrapRunner) printRule(ch string) {
	fmt.Fprintln(r.Stderr, strings.Repeat(ch, 60))
}

// printPhaseHeader opens a new section of related steps.
func (r *BootstrapRunner) printPhaseHeader(phase string) {
	fmt.Fprintln(r.Stderr)
	r.printRule("=")
	fmt.Fprintf(r.Stderr, "  Phase: %s\n", phase)
	r.printRule("=")
}

// printSummary displays the actions taken during the bootstrap run.
func (r *BootstrapRunner) printSummary(results []stepResult) {
	fmt.Fprintln(r.Stderr)
	r.printRule("=")
	fmt.Fprintln(r.Stderr, "  Bootstrap Summary")
	r.printRule("=")

	tally := make(map[string]int)
	for _, res := range results {
		tally[res.Action]++
		fmt.Fprintf(r.Stderr, "  %-13s %s\n", "["+strings.ToUpper(res.Action)+"]", res.Label)
	}

	r.printRule("-")
	fmt.Fprintf(r.Stderr, "  Total: %d parameters\n", len(results))
	fmt.Fprintf(r.Stderr, "  Written: %d | Overwritten: %d | Skipped: %d\n",
		tally["written"], tally["overwritten"], tally["skipped"])
	r.printRule("=")
	fmt.Fprintln(r.Stderr)
	fmt.Fprintln(r.Stderr, "  Next step: deploy the infrastructure stack.")
	fmt.Fprintln(r.Stderr, "  After the stats refresh queue exists, update")
	fmt.Fprintf(r.Stderr, "  %s with its URL.\n", r.SSM.SSMPath("queue/stats_refresh"))
	fmt.Fprintln(r.Stderr)
}
