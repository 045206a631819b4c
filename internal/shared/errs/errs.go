package errs

import (
	"errors"
	"fmt"
	"net/http"
)

// Code classifies a registry failure. Every error that crosses a component
// boundary carries exactly one code; the HTTP layer owns the status mapping.
type Code string

const (
	// Unauthorized means the token is missing, malformed, or expired.
	Unauthorized Code = "UNAUTHORIZED"
	// Forbidden means the caller is authenticated but lacks the required role.
	Forbidden Code = "FORBIDDEN"
	// Conflict means a uniqueness constraint was violated (username, email,
	// namespace name, or version tuple).
	Conflict Code = "CONFLICT"
	// NotFound means a namespace, package, version, or user is absent.
	NotFound Code = "NOT_FOUND"
	// InvalidFormat means the request itself is malformed.
	InvalidFormat Code = "INVALID_FORMAT"
	// InvalidPackage means the uploaded artifact is malformed.
	InvalidPackage Code = "INVALID_PACKAGE"
	// MetadataMismatch means the artifact manifest disagrees with the request.
	MetadataMismatch Code = "METADATA_MISMATCH"
	// InvalidOperation means an illegal state transition was attempted.
	InvalidOperation Code = "INVALID_OPERATION"
	// Gone means the artifact was intentionally withdrawn via deprecation.
	Gone Code = "GONE"
	// Unavailable means a transient infrastructure failure exhausted its
	// retry budget; the caller may retry.
	Unavailable Code = "UNAVAILABLE"
)

// E is a coded registry error.
type E struct {
	Code    Code
	Message string
	Err     error
}

// Error implements the error interface.
func (e *E) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap exposes the underlying cause.
func (e *E) Unwrap() error {
	return e.Err
}

// New creates a coded error.
func New(code Code, message string) error {
	return &E{Code: code, Message: message}
}

// Newf creates a coded error with a formatted message.
func Newf(code Code, format string, args ...any) error {
	return &E{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a code and message to an underlying error.
func Wrap(code Code, message string, err error) error {
	return &E{Code: code, Message: message, Err: err}
}

// CodeOf returns the code carried by err, or "" when err is not coded.
func CodeOf(err error) Code {
	var e *E
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// Is reports whether err carries the given code.
func Is(err error, code Code) bool {
	return CodeOf(err) == code
}

// MessageOf returns the human-readable message of a coded error, or the
// plain error string otherwise.
func MessageOf(err error) string {
	var e *E
	if errors.As(err, &e) {
		return e.Message
	}
	if err != nil {
		return err.Error()
	}
	return ""
}

// HTTPStatus maps a code to its response status. Uncoded errors map to 500.
func HTTPStatus(code Code) int {
	switch code {
	case Unauthorized:
		return http.StatusUnauthorized
	case Forbidden:
		return http.StatusForbidden
	case Conflict:
		return http.StatusConflict
	case NotFound:
		return http.StatusNotFound
	case InvalidFormat, InvalidPackage, MetadataMismatch:
		return http.StatusBadRequest
	case InvalidOperation:
		return http.StatusUnprocessableEntity
	case Gone:
		return http.StatusGone
	case Unavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
