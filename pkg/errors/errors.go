package errors

import (
	"fmt"
)

// ErrorType defines different categories of errors
type ErrorType string

const (
	ErrorTypeValidation  ErrorType = "VALIDATION"
	ErrorTypeTierIO      ErrorType = "TIER_IO"
	ErrorTypeFetchFailed ErrorType = "FETCH_FAILED"
)

// AppError is the custom error type for the cache engine
type AppError struct {
	Type    ErrorType
	Message string
	Err     error
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Type, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap allows errors.Is and errors.As to work
func (e *AppError) Unwrap() error {
	return e.Err
}

// Constructor functions for different error types

// NewValidation creates a validation error
func NewValidation(message string) error {
	return &AppError{
		Type:    ErrorTypeValidation,
		Message: message,
	}
}

// NewTierIO creates an error for a failed read/write against a single tier.
// Tier I/O errors are advisory: callers log them and proceed as if the tier
// had returned absent.
func NewTierIO(tier, message string, err error) error {
	return &AppError{
		Type:    ErrorTypeTierIO,
		Message: fmt.Sprintf("%s tier: %s", tier, message),
		Err:     err,
	}
}

// NewFetchFailed creates the error surfaced when the expensive fetch failed
// and no stale fallback existed in any tier. The underlying cause is
// preserved for errors.Is / errors.As.
func NewFetchFailed(key string, err error) error {
	return &AppError{
		Type:    ErrorTypeFetchFailed,
		Message: fmt.Sprintf("fetch failed for %q with no stale fallback", key),
		Err:     err,
	}
}

// Wrap wraps an error with additional context
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}

	// If it's already an AppError, preserve the type
	if appErr, ok := err.(*AppError); ok {
		return &AppError{
			Type:    appErr.Type,
			Message: fmt.Sprintf("%s: %s", message, appErr.Message),
			Err:     appErr.Err,
		}
	}

	return &AppError{
		Type:    ErrorTypeTierIO,
		Message: message,
		Err:     err,
	}
}

// Type checking functions

// IsValidation checks if an error is a validation error
func IsValidation(err error) bool {
	appErr, ok := err.(*AppError)
	return ok && appErr.Type == ErrorTypeValidation
}

// IsTierIO checks if an error is a tier I/O error
func IsTierIO(err error) bool {
	appErr, ok := err.(*AppError)
	return ok && appErr.Type == ErrorTypeTierIO
}

// IsFetchFailed checks if an error is a fetch failure
func IsFetchFailed(err error) bool {
	appErr, ok := err.(*AppError)
	return ok && appErr.Type == ErrorTypeFetchFailed
}
