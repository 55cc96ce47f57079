package common

import (
	"errors"
	"fmt"
)

// AppError represents application-specific errors
type AppError struct {
	Code    string
	Message string
	Cause   error
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

// Error taxonomy. Per-document kinds are recorded in the progress store;
// ErrFatalConfig aborts the run before any work is dispatched.
var (
	ErrTransientFetch = errors.New("transient fetch error")
	ErrPermanentFetch = errors.New("permanent fetch error")
	ErrExtraction     = errors.New("extraction error")
	ErrFatalConfig    = errors.New("fatal configuration error")
	ErrInvalidInput   = errors.New("invalid input")
	ErrDatabase       = errors.New("database error")
)

// Error codes carried by AppError.
const (
	CodeTransientFetch = "TRANSIENT_FETCH"
	CodePermanentFetch = "PERMANENT_FETCH"
	CodeExtraction     = "EXTRACTION"
	CodeConfig         = "CONFIG_ERROR"
	CodeDatabase       = "DB_ERROR"
)

// Error constructors
func NewAppError(code, message string, cause error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

func WrapError(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// TransientFetchError wraps cause so that errors.Is(err, ErrTransientFetch) holds.
func TransientFetchError(message string, cause error) error {
	return NewAppError(CodeTransientFetch, message, joinCause(ErrTransientFetch, cause))
}

func PermanentFetchError(message string, cause error) error {
	return NewAppError(CodePermanentFetch, message, joinCause(ErrPermanentFetch, cause))
}

func ExtractionError(message string, cause error) error {
	return NewAppError(CodeExtraction, message, joinCause(ErrExtraction, cause))
}

func FatalConfigError(message string, cause error) error {
	return NewAppError(CodeConfig, message, joinCause(ErrFatalConfig, cause))
}

func DatabaseError(message string, cause error) error {
	return NewAppError(CodeDatabase, message, joinCause(ErrDatabase, cause))
}

func FatalConfigErrorf(format string, args ...any) error {
	return FatalConfigError(fmt.Sprintf(format, args...), nil)
}

func joinCause(kind, cause error) error {
	if cause == nil {
		return kind
	}
	return errors.Join(kind, cause)
}

// IsRetryable reports whether err belongs to the transient class.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrTransientFetch)
}
