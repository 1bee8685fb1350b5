package finance

import (
	"errors"
	"fmt"
)

// ErrorCode identifies a class of analytics failure.
type ErrorCode string

const (
	CodeInsufficientHistory ErrorCode = "INSUFFICIENT_HISTORY"
	CodeSchemaMismatch      ErrorCode = "SCHEMA_MISMATCH"
	CodeInvalidParameter    ErrorCode = "INVALID_PARAMETER"
	CodeNotFound            ErrorCode = "NOT_FOUND"
	CodeStorage             ErrorCode = "STORAGE"
	CodeNotTrained          ErrorCode = "NOT_TRAINED"
)

// Sentinels for errors.Is matching against an *Error of the same code.
var (
	ErrInsufficientHistory = &Error{Code: CodeInsufficientHistory}
	ErrSchemaMismatch      = &Error{Code: CodeSchemaMismatch}
	ErrInvalidParameter    = &Error{Code: CodeInvalidParameter}
	ErrNotFound            = &Error{Code: CodeNotFound}
	ErrNotTrained          = &Error{Code: CodeNotTrained}
)

// Error is the structured error returned by every analytics package.
type Error struct {
	Code      ErrorCode
	Message   string
	Retryable bool
	Cause     error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Is matches any *Error carrying the same code.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// IsRetryable returns whether this error is retryable.
func (e *Error) IsRetryable() bool {
	return e.Retryable
}

// CodeOf returns the code of the first *Error in err's chain, or "".
func CodeOf(err error) ErrorCode {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Code
	}
	return ""
}

// InsufficientHistory reports that op needed more periods than were supplied.
func InsufficientHistory(op string, have, need int) *Error {
	return &Error{
		Code:    CodeInsufficientHistory,
		Message: fmt.Sprintf("%s requires at least %d periods, got %d", op, need, have),
	}
}

// SchemaMismatch reports feature columns that differ from the trained ordering.
func SchemaMismatch(expected, got []string) *Error {
	return &Error{
		Code:    CodeSchemaMismatch,
		Message: fmt.Sprintf("feature columns %v do not match trained columns %v", got, expected),
	}
}

// InvalidParameter reports an out-of-range argument.
func InvalidParameter(name string, value any, reason string) *Error {
	return &Error{
		Code:    CodeInvalidParameter,
		Message: fmt.Sprintf("invalid %s %v: %s", name, value, reason),
	}
}

// NotFound reports a missing entity.
func NotFound(kind, id string) *Error {
	return &Error{Code: CodeNotFound, Message: fmt.Sprintf("%s %q not found", kind, id)}
}

// Storage wraps a persistence failure; these are retryable.
func Storage(op string, cause error) *Error {
	return &Error{Code: CodeStorage, Message: op, Retryable: true, Cause: cause}
}

// ValidateConfidence checks that c lies strictly between 0 and 1.
func ValidateConfidence(c float64) error {
	if !(c > 0 && c < 1) {
		return InvalidParameter("confidence", c, "must be in (0, 1)")
	}
	return nil
}

// ValidateHorizon checks 1 <= h <= 24.
func ValidateHorizon(h int) error {
	if h < 1 || h > 24 {
		return InvalidParameter("horizon", h, "must be between 1 and 24 months")
	}
	return nil
}
