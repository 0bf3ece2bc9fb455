// Package errors provides the standardized error type used at the HTTP boundary
// of the form submission pipeline.
package errors

import (
	"fmt"
	"net/http"
	"strings"
	"time"
)

// ==========================
// 1. Standard Error Types
// ==========================

// ErrorCode represents standardized internal error codes.
type ErrorCode string

const (
	ErrCodeValidationFailed  ErrorCode = "VALIDATION_FAILED"
	ErrCodeMalformedRequest  ErrorCode = "MALFORMED_REQUEST"
	ErrCodePayloadTooLarge   ErrorCode = "PAYLOAD_TOO_LARGE"
	ErrCodeUnsupportedMedia  ErrorCode = "UNSUPPORTED_MEDIA_TYPE"
	ErrCodeFormNotFound      ErrorCode = "FORM_NOT_FOUND"
	ErrCodeDuplicate         ErrorCode = "DUPLICATE_SUBMISSION"
	ErrCodeRateLimited       ErrorCode = "RATE_LIMITED"

	ErrCodeStorageFailed          ErrorCode = "STORAGE_FAILED"
	ErrCodeNotificationSendFailed ErrorCode = "NOTIFICATION_SEND_FAILED"
	ErrCodeUpstreamTimeout        ErrorCode = "UPSTREAM_TIMEOUT"
	ErrCodeDatabaseInsertFailed   ErrorCode = "DATABASE_INSERT_FAILED"

	ErrCodeInternal ErrorCode = "INTERNAL_ERROR"
)

// StandardError represents a structured application error. Details and
// Metadata are for logs only and are never written to a client.
type StandardError struct {
	Code      ErrorCode              `json:"code"`
	Message   string                 `json:"message"`
	Details   string                 `json:"details,omitempty"`
	Retryable bool                   `json:"retryable"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	Timestamp time.Time              `json:"timestamp"`

	cause error
}

func (e *StandardError) Error() string {
	return fmt.Sprintf("StandardError[%s]: %s", e.Code, e.Message)
}

func (e *StandardError) Unwrap() error {
	return e.cause
}

// WithMetadata attaches a log-only key/value pair.
func (e *StandardError) WithMetadata(key string, value interface{}) *StandardError {
	if e.Metadata == nil {
		e.Metadata = map[string]interface{}{}
	}
	e.Metadata[key] = value
	return e
}

func newError(code ErrorCode, message string, cause error, retryable bool) *StandardError {
	details := ""
	if cause != nil {
		details = cause.Error()
	}
	return &StandardError{
		Code:      code,
		Message:   message,
		Details:   details,
		Retryable: retryable,
		Timestamp: time.Now().UTC(),
		cause:     cause,
	}
}

// ==========================
// 2. Error Constructors
// ==========================

func NewValidationFailedError(fieldCount int) *StandardError {
	return newError(ErrCodeValidationFailed, "Validation failed", nil, false).
		WithMetadata("fieldErrors", fieldCount)
}

func NewMalformedRequestError(err error) *StandardError {
	return newError(ErrCodeMalformedRequest, "Request body could not be parsed", err, false)
}

func NewPayloadTooLargeError(limit int64) *StandardError {
	return newError(ErrCodePayloadTooLarge, "Request body is too large", nil, false).
		WithMetadata("limitBytes", limit)
}

func NewUnsupportedMediaTypeError(contentType string) *StandardError {
	return newError(ErrCodeUnsupportedMedia, "Unsupported content type", nil, false).
		WithMetadata("contentType", contentType)
}

func NewFormNotFoundError(form string) *StandardError {
	return newError(ErrCodeFormNotFound, fmt.Sprintf("Unknown form '%s'", form), nil, false)
}

func NewDuplicateSubmissionError(form string) *StandardError {
	return newError(ErrCodeDuplicate, "Duplicate submission", nil, false).
		WithMetadata("form", form)
}

func NewRateLimitedError() *StandardError {
	return newError(ErrCodeRateLimited, "Too many requests. Please try again later.", nil, true)
}

// NewStorageFailedError wraps an object store failure for one asset.
func NewStorageFailedError(key string, err error) *StandardError {
	return newError(ErrCodeStorageFailed, "Failed to store uploaded files", err, true).
		WithMetadata("storageKey", key)
}

func NewNotificationSendFailedError(provider string, err error) *StandardError {
	return newError(ErrCodeNotificationSendFailed, fmt.Sprintf("Notification via %s failed", provider), err, true)
}

func NewTimeoutError(service string, err error) *StandardError {
	return newError(ErrCodeUpstreamTimeout, fmt.Sprintf("Service '%s' timeout", service), err, true)
}

func NewDatabaseInsertFailedError(err error) *StandardError {
	return newError(ErrCodeDatabaseInsertFailed, "Failed to insert record", err, true)
}

func NewInternalError(err error) *StandardError {
	return newError(ErrCodeInternal, "Unexpected error", err, false)
}

// ==========================
// 3. HTTP Mapping
// ==========================

var httpStatus = map[ErrorCode]int{
	ErrCodeValidationFailed:       http.StatusBadRequest,
	ErrCodeMalformedRequest:       http.StatusBadRequest,
	ErrCodePayloadTooLarge:        http.StatusRequestEntityTooLarge,
	ErrCodeUnsupportedMedia:       http.StatusUnsupportedMediaType,
	ErrCodeFormNotFound:           http.StatusNotFound,
	ErrCodeDuplicate:              http.StatusConflict,
	ErrCodeRateLimited:            http.StatusTooManyRequests,
	ErrCodeStorageFailed:          http.StatusInternalServerError,
	ErrCodeNotificationSendFailed: http.StatusInternalServerError,
	ErrCodeUpstreamTimeout:        http.StatusInternalServerError,
	ErrCodeDatabaseInsertFailed:   http.StatusInternalServerError,
	ErrCodeInternal:               http.StatusInternalServerError,
}

// HTTPStatus returns the response status for a code, 500 when unknown.
func HTTPStatus(code ErrorCode) int {
	if status, ok := httpStatus[code]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// ClientMessage is the text a client may see for a code. Server side faults
// all collapse to one generic message.
func ClientMessage(e *StandardError) string {
	if HTTPStatus(e.Code) >= http.StatusInternalServerError {
		return "Something went wrong while processing your submission. Please try again later."
	}
	return e.Message
}

// ==========================
// 4. Utility Functions
// ==========================

// IsRetryableErrorCode reports whether resubmitting may succeed.
func IsRetryableErrorCode(code ErrorCode) bool {
	switch code {
	case ErrCodeStorageFailed, ErrCodeNotificationSendFailed, ErrCodeUpstreamTimeout,
		ErrCodeDatabaseInsertFailed, ErrCodeRateLimited:
		return true
	default:
		return false
	}
}

// GetErrorCategory returns the log category of the error code.
func GetErrorCategory(code ErrorCode) string {
	codeStr := string(code)
	switch {
	case strings.Contains(codeStr, "VALIDATION") || strings.Contains(codeStr, "MALFORMED"):
		return "VALIDATION"
	case strings.Contains(codeStr, "STORAGE"):
		return "STORAGE"
	case strings.Contains(codeStr, "NOTIFICATION"):
		return "NOTIFICATION"
	case strings.Contains(codeStr, "DATABASE"):
		return "DATABASE"
	case strings.Contains(codeStr, "TIMEOUT"):
		return "UPSTREAM"
	case code == ErrCodeRateLimited || code == ErrCodeDuplicate || code == ErrCodePayloadTooLarge:
		return "ABUSE"
	default:
		return "OTHER"
	}
}
