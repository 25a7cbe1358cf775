package types

import (
	"encoding/json"
	"log/slog"
)

// redactedPlaceholder replaces secret values in logs and serialization.
const redactedPlaceholder = "***REDACTED***"

// SecretString is a string type that prevents accidental logging or
// serialization of sensitive values such as database connection strings.
// It overrides String(), LogValue(), and MarshalJSON() to return a redacted
// placeholder, so secrets never leak through fmt functions, config dumps,
// or structured log entries.
//
// Use Unmask() to retrieve the raw plaintext value when it is genuinely
// needed (e.g., opening a connection pool).
type SecretString string

// String satisfies fmt.Stringer with the placeholder, so %v, %s, and
// Println all print redacted.
func (s SecretString) String() string {
	return redactedPlaceholder
}

// LogValue implements slog.LogValuer, covering handlers that resolve
// attribute values without going through fmt.Stringer.
func (s SecretString) LogValue() slog.Value {
	return slog.StringValue(redactedPlaceholder)
}

// MarshalJSON emits the placeholder, so config dumps stay safe to share.
func (s SecretString) MarshalJSON() ([]byte, error) {
	return json.Marshal(redactedPlaceholder)
}

// Unmask returns the raw plaintext value of the secret. Usage should be
// limited to the call sites that actually hand the value to a driver or
// client.
func (s SecretString) Unmask() string {
	return string(s)
}
