/*
errors.go - Centralized error types for the incentive engine

ERROR CATEGORIES:
  1. Validation - bad policy input; the write is aborted with no side effects
  2. Not found  - update/delete target missing; no side effects
  3. Calculation - a tier lookup that matched nothing

FALLBACK OVER FAILURE:
  CalculationError exists so the calculator can describe why a bonus was
  skipped. It is recorded in the breakdown and never returned: a structurally
  valid contribution always yields a number, possibly zero.

USAGE:
  if errors.Is(err, incentive.ErrValidation) { ... 400 ... }
  var ve *incentive.ValidationError
  if errors.As(err, &ve) { for _, f := range ve.Fields { ... } }
*/
package incentive

import (
	"errors"
	"fmt"
	"strings"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	ErrValidation = errors.New("validation failed")

	ErrNotFound = errors.New("policy not found")

	ErrCalculation = errors.New("calculation lookup failed")

	// ErrUnknownDomain is wrapped by ValidationError for unsupported domains.
	ErrUnknownDomain = errors.New("unknown domain")
)

// =============================================================================
// STRUCTURED ERRORS
// =============================================================================

// FieldError describes a problem with one input field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationError carries every field-level problem found in one pass.
type ValidationError struct {
	Fields []FieldError
}

func (e *ValidationError) Error() string {
	if len(e.Fields) == 0 {
		return ErrValidation.Error()
	}
	parts := make([]string, len(e.Fields))
	for i, f := range e.Fields {
		parts[i] = f.Field + ": " + f.Message
	}
	return ErrValidation.Error() + ": " + strings.Join(parts, "; ")
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// Add appends a field problem.
func (e *ValidationError) Add(field, format string, args ...any) {
	e.Fields = append(e.Fields, FieldError{Field: field, Message: fmt.Sprintf(format, args...)})
}

// OrNil returns e when it holds problems, nil otherwise.
func (e *ValidationError) OrNil() error {
	if len(e.Fields) == 0 {
		return nil
	}
	return e
}

// NewValidationError builds a single-field validation error.
func NewValidationError(field, format string, args ...any) *ValidationError {
	ve := &ValidationError{}
	ve.Add(field, format, args...)
	return ve
}

// NotFoundError names the policy that does not exist.
type NotFoundError struct {
	ID PolicyID
}

func (e *NotFoundError) Error() string { return fmt.Sprintf("policy not found: %s", e.ID) }

func (e *NotFoundError) Unwrap() error { return ErrNotFound }

// CalculationError describes a tier lookup that matched nothing.
type CalculationError struct {
	Table string
	Value string
}

func (e *CalculationError) Error() string {
	return fmt.Sprintf("no %s tier matches %s", e.Table, e.Value)
}

func (e *CalculationError) Unwrap() error { return ErrCalculation }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsClientError returns true if the error is due to invalid client input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrValidation)
}

// IsNotFound returns true if the error indicates a missing policy.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
