package errors

import (
	"fmt"
)

// ReporterError is the structured error type for govreporter.
// It provides rich context for error handling, logging, and user presentation.
type ReporterError struct {
	// Code is the unique error code (e.g., "ERR_301_NETWORK_TIMEOUT").
	Code string

	// Message is the human-readable error message.
	Message string

	// Category is the error category (Config, Storage, Network, etc.).
	Category Category

	// Severity is the error severity level.
	Severity Severity

	// Details contains additional context as key-value pairs.
	Details map[string]string

	// Cause is the underlying error that caused this error.
	Cause error

	// Retryable indicates if the operation can be retried.
	Retryable bool

	// Suggestion is an actionable suggestion for the user.
	Suggestion string
}

// Error implements the error interface.
func (e *ReporterError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for error chain support.
func (e *ReporterError) Unwrap() error {
	return e.Cause
}

// Is checks if this error matches the target error by code.
// This enables errors.Is() to work with ReporterError.
func (e *ReporterError) Is(target error) bool {
	if t, ok := target.(*ReporterError); ok {
		return e.Code == t.Code
	}
	return false
}

// WithDetail adds a key-value detail to the error.
// Returns the error for method chaining.
func (e *ReporterError) WithDetail(key, value string) *ReporterError {
	if e.Details == nil {
		e.Details = make(map[string]string)
	}
	e.Details[key] = value
	return e
}

// WithSuggestion adds an actionable suggestion for the user.
// Returns the error for method chaining.
func (e *ReporterError) WithSuggestion(suggestion string) *ReporterError {
	e.Suggestion = suggestion
	return e
}

// New creates a new ReporterError with the given code and message.
// Category, severity, and retryable flag are derived from the code.
func New(code string, message string, cause error) *ReporterError {
	return &ReporterError{
		Code:      code,
		Message:   message,
		Category:  categoryFromCode(code),
		Severity:  severityFromCode(code),
		Cause:     cause,
		Retryable: isRetryableCode(code),
	}
}

// Wrap creates a ReporterError from an existing error.
// The error's message becomes the ReporterError message.
func Wrap(code string, err error) *ReporterError {
	if err == nil {
		return nil
	}
	return New(code, err.Error(), err)
}

// ConfigError creates a configuration-related error.
func ConfigError(message string, cause error) *ReporterError {
	return New(ErrCodeConfigInvalid, message, cause)
}

// StorageError creates a progress-DB or vector-store error.
func StorageError(message string, cause error) *ReporterError {
	return New(ErrCodeProgressDB, message, cause)
}

// NetworkError creates a network-related error.
// Network errors are typically retryable.
func NetworkError(message string, cause error) *ReporterError {
	return New(ErrCodeNetworkTimeout, message, cause)
}

// RateLimitError creates a rate-limited upstream error.
func RateLimitError(message string, cause error) *ReporterError {
	return New(ErrCodeRateLimited, message, cause)
}

// ValidationError creates a validation-related error.
func ValidationError(message string, cause error) *ReporterError {
	return New(ErrCodeInvalidInput, message, cause)
}

// InternalError creates an internal error.
func InternalError(message string, cause error) *ReporterError {
	return New(ErrCodeInternal, message, cause)
}

// IsRetryable checks if an error is retryable.
// Returns true if the error is a ReporterError with Retryable flag set.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if re, ok := err.(*ReporterError); ok {
		return re.Retryable
	}
	return false
}

// IsFatal checks if an error has fatal severity.
// Fatal errors should abort the current operation.
func IsFatal(err error) bool {
	if err == nil {
		return false
	}
	if re, ok := err.(*ReporterError); ok {
		return re.Severity == SeverityFatal
	}
	return false
}

// GetCode extracts the error code from a ReporterError.
// Returns empty string if not a ReporterError.
func GetCode(err error) string {
	if re, ok := err.(*ReporterError); ok {
		return re.Code
	}
	return ""
}

// GetCategory extracts the category from a ReporterError.
// Returns empty string if not a ReporterError.
func GetCategory(err error) Category {
	if re, ok := err.(*ReporterError); ok {
		return re.Category
	}
	return ""
}
