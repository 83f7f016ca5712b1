package apperror

import (
	"fmt"
	"net/http"
)

// Code is a stable, machine-readable error code surfaced to API callers.
type Code string

const (
	CodeUnauthorized           Code = "Unauthorized"
	CodeTenantIDMissing        Code = "TenantIdMissing"
	CodeTenantIDMismatch       Code = "TenantIdMismatch"
	CodeInvalidTenant          Code = "InvalidTenant"
	CodeForbidden              Code = "Forbidden"
	CodeValidationError        Code = "ValidationError"
	CodeNotFound               Code = "NotFound"
	CodeConflict               Code = "Conflict"
	CodeInvalidStateTransition Code = "InvalidStateTransition"
	CodeInternalServerError    Code = "InternalServerError"
)

// Error is the application error carried from handlers and middleware to the
// HTTP error handler, which renders it as the JSON error envelope.
type Error struct {
	Code    Code              `json:"code"`
	Message string            `json:"message"`
	Status  int               `json:"-"`
	Fields  map[string]string `json:"fields,omitempty"`
	// Internal holds the underlying cause. Logged, never sent to callers.
	Internal error `json:"-"`
}

func (e *Error) Error() string {
	if e.Internal != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Internal)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Internal
}

// Unauthorized reports a missing or unusable authentication token.
func Unauthorized(message string) *Error {
	if message == "" {
		message = "authentication required"
	}
	return &Error{Code: CodeUnauthorized, Message: message, Status: http.StatusUnauthorized}
}

// TenantIDMissing reports an absent tenant cookie or token claim.
func TenantIDMissing() *Error {
	return &Error{
		Code:    CodeTenantIDMissing,
		Message: "tenant id is missing from the request",
		Status:  http.StatusUnauthorized,
	}
}

// TenantIDMismatch reports disagreeing tenant cookie and token claim.
func TenantIDMismatch() *Error {
	return &Error{
		Code:    CodeTenantIDMismatch,
		Message: "tenant id in cookie does not match token claim",
		Status:  http.StatusForbidden,
	}
}

// InvalidTenant reports a tenant id that does not resolve to a live tenant.
func InvalidTenant(code string) *Error {
	return &Error{
		Code:    CodeInvalidTenant,
		Message: fmt.Sprintf("tenant %q does not exist or is not active", code),
		Status:  http.StatusForbidden,
	}
}

// Forbidden reports an authorization denial.
func Forbidden(message string) *Error {
	if message == "" {
		message = "you do not have permission to perform this operation"
	}
	return &Error{Code: CodeForbidden, Message: message, Status: http.StatusForbidden}
}

// Validation reports one or more invalid fields. The fields map carries the
// full set of offending fields, not just the first.
func Validation(fields map[string]string) *Error {
	return &Error{
		Code:    CodeValidationError,
		Message: "request validation failed",
		Status:  http.StatusBadRequest,
		Fields:  fields,
	}
}

// NotFound reports a missing (or soft-deleted, or foreign-tenant) entity.
func NotFound(entity string) *Error {
	return &Error{
		Code:    CodeNotFound,
		Message: fmt.Sprintf("%s not found", entity),
		Status:  http.StatusNotFound,
	}
}

// Conflict reports a uniqueness violation.
func Conflict(message string) *Error {
	return &Error{Code: CodeConflict, Message: message, Status: http.StatusConflict}
}

// InvalidTransition reports a state change the workflow does not allow.
func InvalidTransition(from, to string) *Error {
	return &Error{
		Code:    CodeInvalidStateTransition,
		Message: fmt.Sprintf("transition from %q to %q is not allowed", from, to),
		Status:  http.StatusBadRequest,
	}
}

// Internal wraps an unexpected failure. The cause is kept for logging only;
// callers always see the same generic message.
func Internal(err error) *Error {
	return &Error{
		Code:     CodeInternalServerError,
		Message:  "an internal error occurred",
		Status:   http.StatusInternalServerError,
		Internal: err,
	}
}
