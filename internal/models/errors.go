package models

import (
	"errors"
	"fmt"
)

// Error codes carried by AppError.
const (
	CodeNotFound         = "NOT_FOUND"
	CodeForbidden        = "FORBIDDEN"
	CodeValidation       = "VALIDATION_ERROR"
	CodeInvalidDirection = "INVALID_DIRECTION"
	CodeInvalidParent    = "INVALID_PARENT"
	CodeConflict         = "CONFLICT"
	CodeStoreUnavailable = "STORE_UNAVAILABLE"
	CodeInternal         = "INTERNAL_ERROR"
)

// CodeRateLimited marks 429 responses from the HTTP layer.
const CodeRateLimited = "RATE_LIMITED"

// ErrorKind groups error codes into the categories callers branch on.
type ErrorKind string

const (
	KindNotFound         ErrorKind = "not_found"
	KindForbidden        ErrorKind = "forbidden"
	KindInvalidInput     ErrorKind = "invalid_input"
	KindInvalidParent    ErrorKind = "invalid_parent"
	KindConflict         ErrorKind = "conflict"
	KindStoreUnavailable ErrorKind = "store_unavailable"
	KindInternal         ErrorKind = "internal"
)

// ErrorResponse represents a standardized API error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details string `json:"details,omitempty"`
}

// AppError represents a custom application error
type AppError struct {
	Code    string
	Message string
	Err     error
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// Is matches any AppError with the same code, so sentinel comparisons work
// through wrapping.
func (e *AppError) Is(target error) bool {
	var other *AppError
	if errors.As(target, &other) {
		return other.Code == e.Code
	}
	return false
}

// Kind maps the code onto the error taxonomy.
func (e *AppError) Kind() ErrorKind {
	switch e.Code {
	case CodeNotFound:
		return KindNotFound
	case CodeForbidden:
		return KindForbidden
	case CodeValidation, CodeInvalidDirection:
		return KindInvalidInput
	case CodeInvalidParent:
		return KindInvalidParent
	case CodeConflict:
		return KindConflict
	case CodeStoreUnavailable:
		return KindStoreUnavailable
	default:
		return KindInternal
	}
}

// Sentinels for errors.Is checks. They compare by code only.
var (
	ErrNotFound         = &AppError{Code: CodeNotFound, Message: "not found"}
	ErrInvalidInput     = &AppError{Code: CodeValidation, Message: "invalid input"}
	ErrConflict         = &AppError{Code: CodeConflict, Message: "concurrent update conflict"}
	ErrStoreUnavailable = &AppError{Code: CodeStoreUnavailable, Message: "store unavailable"}
)

// KindOf returns the taxonomy kind of err, or KindInternal for foreign errors.
func KindOf(err error) ErrorKind {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Kind()
	}
	return KindInternal
}

func newErr(code, msg string, cause error) *AppError {
	return &AppError{Code: code, Message: msg, Err: cause}
}

func NewNotFoundError(resource string, id any) *AppError {
	return newErr(CodeNotFound, fmt.Sprintf("%s with ID %v not found", resource, id), nil)
}

func NewValidationError(msg string) *AppError { return newErr(CodeValidation, msg, nil) }

func NewForbiddenError(msg string) *AppError { return newErr(CodeForbidden, msg, nil) }

func NewInvalidParentError(msg string) *AppError { return newErr(CodeInvalidParent, msg, nil) }

// NewInvalidDirectionError rejects a direction the content's style does not accept.
func NewInvalidDirectionError(d Direction, style Style) *AppError {
	return newErr(CodeInvalidDirection, fmt.Sprintf("direction %q is not supported by %s-style content", d, style), nil)
}

// NewConflictError reports a lost optimistic race; callers may retry.
func NewConflictError(msg string, cause error) *AppError { return newErr(CodeConflict, msg, cause) }

func NewStoreUnavailableError(cause error) *AppError {
	return newErr(CodeStoreUnavailable, "content store unavailable", cause)
}

func NewInternalError(cause error) *AppError {
	return newErr(CodeInternal, "internal server error", cause)
}
