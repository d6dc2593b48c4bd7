package errors

import (
	"fmt"
	"strings"
)

// ErrorCategory classifies engine failures by how the engine reacts to them.
type ErrorCategory string

const (
	// Rejected immediately, never retried.
	ErrorCategoryValidation ErrorCategory = "VALIDATION"

	// The signal for that symbol/tick is skipped, the engine continues.
	ErrorCategoryDataInsufficient ErrorCategory = "DATA_INSUFFICIENT"

	// Retried per policy; surfaced as a skipped tick only after exhaustion.
	ErrorCategoryTransientNetwork ErrorCategory = "TRANSIENT_NETWORK"

	// Intentional non-execution, emitted as an event rather than an error.
	ErrorCategoryRiskRejected ErrorCategory = "RISK_REJECTED"

	// New entries blocked; open positions keep being managed.
	ErrorCategoryCircuitBreaker ErrorCategory = "CIRCUIT_BREAKER"

	// The offending position is flagged and excluded from automated
	// management; other positions are unaffected.
	ErrorCategoryFatalState ErrorCategory = "FATAL_STATE"
)

// EngineError is a categorized error with component/operation context.
type EngineError struct {
	Category   ErrorCategory
	Component  string
	Operation  string
	Message    string
	Underlying error
}

func (e *EngineError) Error() string {
	if e.Underlying != nil {
		return fmt.Sprintf("[%s:%s] %s: %s: %v", e.Category, e.Component, e.Operation, e.Message, e.Underlying)
	}
	return fmt.Sprintf("[%s:%s] %s: %s", e.Category, e.Component, e.Operation, e.Message)
}

func (e *EngineError) Unwrap() error {
	return e.Underlying
}

// IsRetryable reports whether the retry policy may re-attempt the
// operation that produced this error.
func (e *EngineError) IsRetryable() bool {
	return e.Category == ErrorCategoryTransientNetwork
}

// New creates a categorized engine error.
func New(category ErrorCategory, component, operation, format string, args ...interface{}) *EngineError {
	return &EngineError{
		Category:  category,
		Component: component,
		Operation: operation,
		Message:   fmt.Sprintf(format, args...),
	}
}

// Wrap attaches category and context to an existing error.
func Wrap(err error, category ErrorCategory, component, operation string) *EngineError {
	if err == nil {
		return nil
	}
	return &EngineError{
		Category:   category,
		Component:  component,
		Operation:  operation,
		Message:    "operation failed",
		Underlying: err,
	}
}

// IsTransient reports whether err should be retried by the retry policy.
// Categorized errors answer from their category; everything else falls back
// to message sniffing the way exchange client errors surface.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if ee, ok := err.(*EngineError); ok {
		return ee.IsRetryable()
	}
	msg := strings.ToLower(err.Error())
	for _, marker := range []string{
		"timeout",
		"context deadline exceeded",
		"connection",
		"rate limit",
		"too many requests",
		"status 500",
		"status 502",
		"status 503",
		"status 504",
		"server error",
		"temporarily",
		"eof",
	} {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}

// CategoryOf extracts the category of an error, or empty when uncategorized.
func CategoryOf(err error) ErrorCategory {
	if ee, ok := err.(*EngineError); ok {
		return ee.Category
	}
	return ""
}
