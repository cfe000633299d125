// Package apierr defines the error taxonomy shared by every component of the
// engine. Each error carries a kind, an HTTP status, and a sanitized public
// message; internal detail is kept separate so it can be logged server-side
// without ever reaching a response body.
package apierr

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Kind identifies a category in the error taxonomy.
type Kind string

const (
	KindNotFound        Kind = "NOT_FOUND"
	KindValidation      Kind = "VALIDATION_ERROR"
	KindSecurity        Kind = "SECURITY_ERROR"
	KindExecution       Kind = "EXECUTION_ERROR"
	KindTimeout         Kind = "TIMEOUT_ERROR"
	KindImmutablePolicy Kind = "IMMUTABLE_POLICY_ERROR"
	KindDuplicate       Kind = "DUPLICATE_ERROR"
	KindUnauthorized    Kind = "UNAUTHORIZED"
	KindRateLimited     Kind = "RATE_LIMITED"
	KindInternal        Kind = "INTERNAL_ERROR"
)

// FieldViolation describes one failed constraint on one request parameter.
type FieldViolation struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Error is the taxonomy error type. Message is safe to return to callers;
// Detail is server-side only.
type Error struct {
	Kind    Kind
	Message string
	Detail  string
	Fields  []FieldViolation
	cause   error
}

func (e *Error) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Kind, e.Message, e.Detail)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

// Is reports kind equality so errors.Is works against kind sentinels.
func (e *Error) Is(target error) bool {
	var t *Error
	if errors.As(target, &t) {
		return e.Kind == t.Kind
	}
	return false
}

// HTTPStatus maps the kind to its HTTP status code.
func (e *Error) HTTPStatus() int {
	switch e.Kind {
	case KindNotFound:
		return http.StatusNotFound
	case KindValidation:
		return http.StatusBadRequest
	case KindSecurity:
		return http.StatusBadRequest
	case KindTimeout:
		return http.StatusGatewayTimeout
	case KindDuplicate:
		return http.StatusConflict
	case KindImmutablePolicy:
		return http.StatusConflict
	case KindUnauthorized:
		return http.StatusUnauthorized
	case KindRateLimited:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// Public returns the response body for this error. Detail and cause are
// deliberately excluded.
func (e *Error) Public() map[string]any {
	body := map[string]any{
		"success": false,
		"error":   string(e.Kind),
		"message": e.Message,
	}
	if len(e.Fields) > 0 {
		body["fields"] = e.Fields
	}
	return body
}

// Kind sentinels for errors.Is checks.
var (
	ErrNotFound        = &Error{Kind: KindNotFound}
	ErrValidation      = &Error{Kind: KindValidation}
	ErrSecurity        = &Error{Kind: KindSecurity}
	ErrExecution       = &Error{Kind: KindExecution}
	ErrTimeout         = &Error{Kind: KindTimeout}
	ErrImmutablePolicy = &Error{Kind: KindImmutablePolicy}
	ErrDuplicate       = &Error{Kind: KindDuplicate}
	ErrUnauthorized    = &Error{Kind: KindUnauthorized}
	ErrRateLimited     = &Error{Kind: KindRateLimited}
)

// NotFound reports a missing resource by kind and identifier.
func NotFound(resource, id string) *Error {
	msg := resource + " not found"
	if id != "" {
		msg = fmt.Sprintf("%s %q not found", resource, id)
	}
	return &Error{Kind: KindNotFound, Message: msg}
}

// Validation reports one or more failed parameter constraints. The public
// message lists every violating field, not just the first.
func Validation(fields ...FieldViolation) *Error {
	names := make([]string, 0, len(fields))
	for _, f := range fields {
		names = append(names, f.Field)
	}
	return &Error{
		Kind:    KindValidation,
		Message: "invalid parameters: " + strings.Join(names, ", "),
		Fields:  fields,
	}
}

// Security reports a rejected definition or payload. The public message is
// generic; threat detail goes in Detail and is logged, never returned.
func Security(detail string) *Error {
	return &Error{
		Kind:    KindSecurity,
		Message: "request rejected",
		Detail:  detail,
	}
}

// Execution reports an underlying query or call failure with a sanitized
// message; the raw driver error is kept as cause/detail.
func Execution(msg string, cause error) *Error {
	e := &Error{Kind: KindExecution, Message: msg, cause: cause}
	if cause != nil {
		e.Detail = cause.Error()
	}
	return e
}

// Timeout reports an exceeded step or pipeline budget. Distinguishable from
// Execution so callers can retry idempotent reads.
func Timeout(scope string) *Error {
	return &Error{Kind: KindTimeout, Message: scope + " deadline exceeded"}
}

// Immutable reports an attempted update or delete of persisted route/version
// state outside the sanctioned lifecycle operations.
func Immutable(what string) *Error {
	return &Error{Kind: KindImmutablePolicy, Message: what + " is immutable once persisted"}
}

// Duplicate reports a uniqueness conflict with the conflicting identifier.
func Duplicate(resource, id string) *Error {
	return &Error{Kind: KindDuplicate, Message: fmt.Sprintf("%s %q already exists", resource, id)}
}

// Unauthorized reports a failed authentication check.
func Unauthorized(msg string) *Error {
	if msg == "" {
		msg = "authentication required"
	}
	return &Error{Kind: KindUnauthorized, Message: msg}
}

// RateLimited reports an exhausted request quota.
func RateLimited() *Error {
	return &Error{Kind: KindRateLimited, Message: "rate limit exceeded"}
}

// Internal wraps an unexpected failure with a generic public message.
func Internal(cause error) *Error {
	e := &Error{Kind: KindInternal, Message: "internal error", cause: cause}
	if cause != nil {
		e.Detail = cause.Error()
	}
	return e
}

// KindOf extracts the taxonomy kind from any error, defaulting to internal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// From returns err as a taxonomy error, wrapping unknown errors as internal.
func From(err error) *Error {
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return Internal(err)
}
