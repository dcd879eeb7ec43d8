package errors

import (
	"errors"
	"fmt"
)

// ErrorCode represents a unique error identifier
type ErrorCode string

const (
	// Startup
	ErrCodeConfig       ErrorCode = "CONFIG_ERROR"
	ErrCodeConnectivity ErrorCode = "CONNECTIVITY_ERROR"

	// Event processing
	ErrCodeHandler ErrorCode = "HANDLER_ERROR"
	ErrCodeDecode  ErrorCode = "DECODE_ERROR"

	// Best-effort paths, never fatal
	ErrCodeEnrichment ErrorCode = "ENRICHMENT_ERROR"
	ErrCodeSweepItem  ErrorCode = "SWEEP_ITEM_ERROR"

	// Resource
	ErrCodeNotFound ErrorCode = "NOT_FOUND"

	// Internal
	ErrCodeInternal ErrorCode = "INTERNAL_ERROR"
	ErrCodeDatabase ErrorCode = "DATABASE_ERROR"
)

// AppError is a structured error carrying a classification code
type AppError struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
	Details any       `json:"details,omitempty"`
	cause   error
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s (cause: %v)", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error
func (e *AppError) Unwrap() error {
	return e.cause
}

// WithCause adds a cause to the error
func (e *AppError) WithCause(err error) *AppError {
	e.cause = err
	return e
}

// WithDetails adds details to the error
func (e *AppError) WithDetails(details any) *AppError {
	e.Details = details
	return e
}

// New creates a new AppError
func New(code ErrorCode, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
	}
}

// Wrap wraps an existing error with an AppError
func Wrap(code ErrorCode, message string, cause error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		cause:   cause,
	}
}

// Common error constructors

func Config(message string) *AppError {
	return New(ErrCodeConfig, message)
}

func Connectivity(target string, cause error) *AppError {
	return Wrap(ErrCodeConnectivity, fmt.Sprintf("%s unreachable", target), cause)
}

func Handler(topic string, cause error) *AppError {
	return Wrap(ErrCodeHandler, fmt.Sprintf("handle %s", topic), cause)
}

func Decode(topic string, cause error) *AppError {
	return Wrap(ErrCodeDecode, fmt.Sprintf("decode %s payload", topic), cause)
}

func Enrichment(service string, cause error) *AppError {
	return Wrap(ErrCodeEnrichment, fmt.Sprintf("enrichment failed: %s", service), cause)
}

func SweepItem(key string, cause error) *AppError {
	return Wrap(ErrCodeSweepItem, fmt.Sprintf("sweep key %s", key), cause)
}

func NotFound(resource string) *AppError {
	return New(ErrCodeNotFound, fmt.Sprintf("%s not found", resource))
}

func Internal(message string) *AppError {
	return New(ErrCodeInternal, message)
}

func Database(cause error) *AppError {
	return Wrap(ErrCodeDatabase, "Database error", cause)
}

// IsAppError checks if an error is an AppError
func IsAppError(err error) bool {
	var appErr *AppError
	return errors.As(err, &appErr)
}

// AsAppError converts an error to an AppError if possible
func AsAppError(err error) (*AppError, bool) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// GetCode returns the error code if the error is an AppError, otherwise returns ErrCodeInternal
func GetCode(err error) ErrorCode {
	if appErr, ok := AsAppError(err); ok {
		return appErr.Code
	}
	return ErrCodeInternal
}

// HasCode reports whether any AppError in err's chain carries code.
func HasCode(err error, code ErrorCode) bool {
	for err != nil {
		var appErr *AppError
		if !errors.As(err, &appErr) {
			return false
		}
		if appErr.Code == code {
			return true
		}
		err = appErr.cause
	}
	return false
}
