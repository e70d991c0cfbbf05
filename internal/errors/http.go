package errors

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/dl-alexandre/idxmirror/internal/logging"
	"github.com/dl-alexandre/idxmirror/internal/utils"
)

// Operation names used to pick error codes
const (
	OpList  = "list"
	OpFetch = "fetch"
)

// ClassifyHTTPStatus converts an unexpected response status into an AppError.
// Listing failures are never retryable; fetch failures always are.
func ClassifyHTTPStatus(op, remotePath string, status int, logger logging.Logger) error {
	code := utils.ErrCodeTransferFailed
	retryable := true
	if op == OpList {
		code = utils.ErrCodeListingFailed
		retryable = false
	}

	logger.Debug("HTTP status classified",
		logging.F("op", op),
		logging.F("path", remotePath),
		logging.F("httpStatus", status),
		logging.F("errorCode", code),
		logging.F("retryable", retryable),
	)

	return utils.NewAppError(utils.NewCLIError(code,
		fmt.Sprintf("unexpected status %d %s for %s", status, http.StatusText(status), remotePath)).
		WithHTTPStatus(status).
		WithRetryable(retryable).
		WithContext("path", remotePath).
		WithContext("op", op).
		Build())
}

// ClassifyTransportError converts a network or local I/O error into an
// AppError. Cancellation keeps context.Canceled reachable through Unwrap
// and is never retryable.
func ClassifyTransportError(op, remotePath string, err error, logger logging.Logger) error {
	if err == nil {
		return nil
	}

	var appErr *utils.AppError
	if errors.As(err, &appErr) {
		return err
	}

	if errors.Is(err, context.Canceled) {
		return utils.WrapAppError(utils.NewCLIError(utils.ErrCodeCancelled, "operation cancelled").
			WithContext("path", remotePath).
			Build(), err)
	}

	code := utils.ErrCodeNetworkError
	retryable := op == OpFetch
	if op == OpList {
		code = utils.ErrCodeListingFailed
	}

	logger.Debug("Transport error classified",
		logging.F("op", op),
		logging.F("path", remotePath),
		logging.F("errorCode", code),
		logging.F("error", err.Error()),
	)

	return utils.WrapAppError(utils.NewCLIError(code, err.Error()).
		WithRetryable(retryable).
		WithContext("path", remotePath).
		WithContext("op", op).
		Build(), err)
}

// LocalIOError wraps a destination filesystem failure. It is retryable so a
// transient disk problem gets the same attempts as a network one.
func LocalIOError(remotePath, localPath string, err error) error {
	if errors.Is(err, context.Canceled) {
		return utils.WrapAppError(utils.NewCLIError(utils.ErrCodeCancelled, "operation cancelled").
			WithContext("path", remotePath).
			Build(), err)
	}
	return utils.WrapAppError(utils.NewCLIError(utils.ErrCodeLocalIO, err.Error()).
		WithRetryable(true).
		WithContext("path", remotePath).
		WithContext("localPath", localPath).
		Build(), err)
}

// IsRetryable reports whether err marks an attempt that may be repeated
func IsRetryable(err error) bool {
	var appErr *utils.AppError
	if errors.As(err, &appErr) {
		return appErr.Retryable()
	}
	return false
}

// IsCancelled reports whether err stems from context cancellation
func IsCancelled(err error) bool {
	if errors.Is(err, context.Canceled) {
		return true
	}
	var appErr *utils.AppError
	return errors.As(err, &appErr) && appErr.CLIError.Code == utils.ErrCodeCancelled
}

// Code returns the CLI error code carried by err, or UNKNOWN
func Code(err error) string {
	var appErr *utils.AppError
	if errors.As(err, &appErr) {
		return appErr.CLIError.Code
	}
	if errors.Is(err, context.Canceled) {
		return utils.ErrCodeCancelled
	}
	return utils.ErrCodeUnknown
}
