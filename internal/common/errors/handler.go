package errors

import (
	"context"
	stderrors "errors"
	"time"
)

// Logger is the subset of logger.Logger the handler needs.
type Logger interface {
	Error(msg string, fields map[string]interface{})
	Warn(msg string, fields map[string]interface{})
}

// ErrorHandler normalizes errors raised while serving a request and logs
// them with full detail before they are reduced to a client message.
type ErrorHandler struct {
	logger Logger
}

func NewErrorHandler(logger Logger) *ErrorHandler {
	return &ErrorHandler{logger: logger}
}

// Handle returns the StandardError to respond with, logging server faults.
// Client errors (4xx) are logged at warn level at most.
func (h *ErrorHandler) Handle(ctx context.Context, err error, fields map[string]interface{}) *StandardError {
	stdErr := Normalize(err)

	logFields := map[string]interface{}{
		"errorCode": string(stdErr.Code),
		"category":  GetErrorCategory(stdErr.Code),
		"retryable": stdErr.Retryable,
	}
	if stdErr.Details != "" {
		logFields["details"] = stdErr.Details
	}
	for k, v := range stdErr.Metadata {
		logFields[k] = v
	}
	for k, v := range fields {
		logFields[k] = v
	}
	if ctx.Err() != nil {
		logFields["contextError"] = ctx.Err().Error()
	}

	switch {
	case HTTPStatus(stdErr.Code) >= 500:
		h.logger.Error(stdErr.Message, logFields)
	case stdErr.Code != ErrCodeValidationFailed:
		h.logger.Warn(stdErr.Message, logFields)
	}
	return stdErr
}

// Normalize ensures we always have a StandardError. Deadline errors become
// UPSTREAM_TIMEOUT, everything unknown becomes INTERNAL_ERROR.
func Normalize(err error) *StandardError {
	if err == nil {
		return nil
	}
	var stdErr *StandardError
	if stderrors.As(err, &stdErr) {
		return stdErr
	}
	if stderrors.Is(err, context.DeadlineExceeded) {
		return NewTimeoutError("collaborator", err)
	}
	return &StandardError{
		Code:      ErrCodeInternal,
		Message:   "Unexpected error",
		Details:   err.Error(),
		Retryable: false,
		Timestamp: time.Now().UTC(),
		cause:     err,
	}
}
