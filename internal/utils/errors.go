package utils

import (
	"fmt"

	"github.com/dl-alexandre/idxmirror/internal/types"
)

// Exit codes
const (
	ExitSuccess = 0
	// Any failed file, listing failure or invalid invocation
	ExitFailure = 1
	// Operator-initiated interrupt
	ExitAborted = 1
)

// Error codes (tool-owned, stable)
const (
	ErrCodeListingFailed   = "LISTING_FAILED"
	ErrCodeTransferFailed  = "TRANSFER_FAILED"
	ErrCodeNetworkError    = "NETWORK_ERROR"
	ErrCodeInvalidPattern  = "INVALID_PATTERN"
	ErrCodeInvalidArgument = "INVALID_ARGUMENT"
	ErrCodeLocalIO         = "LOCAL_IO"
	ErrCodePartialFailure  = "PARTIAL_FAILURE"
	ErrCodeCancelled       = "CANCELLED"
	ErrCodeUnknown         = "UNKNOWN"
)

// CLIErrorBuilder helps construct CLIError instances
type CLIErrorBuilder struct {
	err types.CLIError
}

// NewCLIError creates a new error builder
func NewCLIError(code, message string) *CLIErrorBuilder {
	return &CLIErrorBuilder{
		err: types.CLIError{
			Code:    code,
			Message: message,
		},
	}
}

func (b *CLIErrorBuilder) WithHTTPStatus(status int) *CLIErrorBuilder {
	b.err.HTTPStatus = status
	return b
}

func (b *CLIErrorBuilder) WithRetryable(retryable bool) *CLIErrorBuilder {
	b.err.Retryable = retryable
	return b
}

func (b *CLIErrorBuilder) WithContext(key string, value interface{}) *CLIErrorBuilder {
	if b.err.Context == nil {
		b.err.Context = make(map[string]interface{})
	}
	b.err.Context[key] = value
	return b
}

func (b *CLIErrorBuilder) Build() types.CLIError {
	return b.err
}

// GetExitCode returns the exit code for an error code
func GetExitCode(errorCode string) int {
	mapping := map[string]int{
		ErrCodeListingFailed:   ExitFailure,
		ErrCodeTransferFailed:  ExitFailure,
		ErrCodeNetworkError:    ExitFailure,
		ErrCodeInvalidPattern:  ExitFailure,
		ErrCodeInvalidArgument: ExitFailure,
		ErrCodeLocalIO:         ExitFailure,
		ErrCodePartialFailure:  ExitFailure,
		ErrCodeCancelled:       ExitAborted,
	}
	if code, ok := mapping[errorCode]; ok {
		return code
	}
	return ExitFailure
}

// AppError is a custom error type that carries CLI error info
type AppError struct {
	CLIError types.CLIError
	cause    error
}

func (e *AppError) Error() string {
	return fmt.Sprintf("%s: %s", e.CLIError.Code, e.CLIError.Message)
}

// Unwrap exposes the underlying cause, if any
func (e *AppError) Unwrap() error {
	return e.cause
}

// Retryable reports whether the failed operation may be attempted again
func (e *AppError) Retryable() bool {
	return e.CLIError.Retryable
}

// NewAppError creates an AppError from a CLIError
func NewAppError(cliErr types.CLIError) *AppError {
	return &AppError{CLIError: cliErr}
}

// WrapAppError creates an AppError that keeps err as its cause
func WrapAppError(cliErr types.CLIError, err error) *AppError {
	return &AppError{CLIError: cliErr, cause: err}
}
