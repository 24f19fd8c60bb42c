// Package errors provides a lightweight structured error type (DocHostError)
// for category-based classification in the build task, HTTP adapters and CLI.
package errors

import (
	stdErrors "errors"
	"fmt"
)

// ErrorCategory represents the category of a DocHost error for classification
type ErrorCategory string

const (
	// User-facing configuration and input errors
	CategoryConfig     ErrorCategory = "config"
	CategoryValidation ErrorCategory = "validation"
	CategoryNotFound   ErrorCategory = "not_found"

	// External system integration errors
	CategoryNetwork      ErrorCategory = "network"
	CategoryVCS          ErrorCategory = "vcs"
	CategoryNotification ErrorCategory = "notification"

	// Build and processing errors
	CategoryBuild      ErrorCategory = "build"
	CategoryFileSystem ErrorCategory = "filesystem"

	// Runtime and infrastructure errors
	CategoryStorage  ErrorCategory = "storage"
	CategoryTask     ErrorCategory = "task"
	CategoryInternal ErrorCategory = "internal"
)

// ErrorSeverity indicates how critical an error is
type ErrorSeverity string

const (
	SeverityFatal   ErrorSeverity = "fatal"   // Stops execution
	SeverityError   ErrorSeverity = "error"   // Error, but not fatal
	SeverityWarning ErrorSeverity = "warning" // Continues with degraded functionality
	SeverityInfo    ErrorSeverity = "info"    // Informational, no impact
)

// DocHostError is a structured error with category, retryability, and context
type DocHostError struct {
	Category  ErrorCategory `json:"category"`
	Severity  ErrorSeverity `json:"severity"`
	Message   string        `json:"message"`
	Cause     error         `json:"cause,omitempty"`
	Retryable bool          `json:"retryable"`
	Context   ContextFields `json:"context,omitempty"`
}

// ContextFields carries structured context for DocHostError
type ContextFields map[string]any

// Error implements the error interface
func (e *DocHostError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s (%s): %s: %v", e.Category, e.Severity, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s (%s): %s", e.Category, e.Severity, e.Message)
}

// Unwrap implements error unwrapping for Go 1.13+ error handling
func (e *DocHostError) Unwrap() error {
	return e.Cause
}

// WithContext adds context information to the error
func (e *DocHostError) WithContext(key string, value any) *DocHostError {
	if e.Context == nil {
		e.Context = make(ContextFields)
	}
	e.Context[key] = value
	return e
}

// New creates a new DocHostError
func New(category ErrorCategory, severity ErrorSeverity, message string) *DocHostError {
	return &DocHostError{
		Category: category,
		Severity: severity,
		Message:  message,
	}
}

// Wrap creates a new DocHostError that wraps an existing error
func Wrap(err error, category ErrorCategory, severity ErrorSeverity, message string) *DocHostError {
	return &DocHostError{
		Category: category,
		Severity: severity,
		Message:  message,
		Cause:    err,
	}
}

// WrapRetryable creates a new retryable DocHostError that wraps an existing error
func WrapRetryable(err error, category ErrorCategory, severity ErrorSeverity, message string) *DocHostError {
	return &DocHostError{
		Category:  category,
		Severity:  severity,
		Message:   message,
		Cause:     err,
		Retryable: true,
	}
}

// As returns the first DocHostError in err's chain.
func As(err error) (*DocHostError, bool) {
	var dhe *DocHostError
	if stdErrors.As(err, &dhe) {
		return dhe, true
	}
	return nil, false
}

// IsCategory checks if an error belongs to a specific category
func IsCategory(err error, category ErrorCategory) bool {
	if dhe, ok := As(err); ok {
		return dhe.Category == category
	}
	return false
}

// IsRetryable checks if an error is retryable
func IsRetryable(err error) bool {
	if dhe, ok := As(err); ok {
		return dhe.Retryable
	}
	return false
}

// GetCategory extracts the category from an error, or returns CategoryInternal if not a DocHostError
func GetCategory(err error) ErrorCategory {
	if dhe, ok := As(err); ok {
		return dhe.Category
	}
	return CategoryInternal
}
