package core

import (
	"log/slog"

	"github.com/go-playground/validator/v10"
)

// Validator wraps go-playground/validator for request parameter structs.
// Handlers parse raw query values into small tagged structs and run them
// through FieldErrors to enforce range constraints.
type Validator struct {
	validate *validator.Validate
	logger   *slog.Logger
}

// NewValidator creates a new Validator. Custom domain tags would be
// registered here; the query surface currently only needs the builtin
// min/max/oneof rules.
func NewValidator(logger *slog.Logger) *Validator {
	return &Validator{
		validate: validator.New(),
		logger:   logger,
	}
}

// FieldErrors validates s and reports constraint violations keyed by struct
// field name, with the failed tag as the value (e.g., "PageSize" -> "max").
// A nil map means s is valid.
//
// Non-constraint failures (e.g., passing a non-struct) are logged and
// reported under the pseudo-field "_input" so callers still surface a 4xx
// instead of silently accepting bad input.
func (v *Validator) FieldErrors(s any) map[string]string {
	err := v.validate.Struct(s)
	if err == nil {
		return nil
	}

	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		if v.logger != nil {
			v.logger.Error("validator invoked with invalid input", "error", err)
		}
		return map[string]string{"_input": "invalid"}
	}

	fields := make(map[string]string, len(verrs))
	for _, fe := range verrs {
		fields[fe.Field()] = fe.Tag()
	}
	return fields
}
