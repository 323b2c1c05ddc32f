package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Code identifies the class of failure that crossed a module boundary.
type Code string

const (
	CodeNotFound         Code = "NOT_FOUND"         // 404
	CodeInvalidRequest   Code = "INVALID_REQUEST"   // 400
	CodeExtractionFailed Code = "EXTRACTION_FAILED" // 422
	CodeRateLimited      Code = "RATE_LIMITED"      // 429
	CodePersistFailed    Code = "PERSIST_FAILED"    // 500
	CodeInternal         Code = "INTERNAL"          // 500
)

// Error is a structured error with a code, an HTTP status and optional details.
type Error struct {
	Code    Code
	Status  int
	Message string
	Details map[string]any
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// NotFound reports a missing resource, or one not owned by the caller.
func NotFound(kind, id string) *Error {
	return &Error{
		Code:    CodeNotFound,
		Status:  http.StatusNotFound,
		Message: fmt.Sprintf("%s not found: %s", kind, id),
		Details: map[string]any{"kind": kind, "id": id},
	}
}

func InvalidRequest(msg string) *Error {
	return &Error{Code: CodeInvalidRequest, Status: http.StatusBadRequest, Message: msg}
}

// ExtractionFailed reports that a contribution's text could not be obtained.
// reason is a short machine-readable classification.
func ExtractionFailed(reason string, err error) *Error {
	return &Error{
		Code:    CodeExtractionFailed,
		Status:  http.StatusUnprocessableEntity,
		Message: "extraction failed",
		Details: map[string]any{"reason": reason},
		Err:     err,
	}
}

func PersistFailed(err error) *Error {
	return &Error{Code: CodePersistFailed, Status: http.StatusInternalServerError, Message: "persist failed", Err: err}
}

// RateLimited reports that class was rejected for the current window.
func RateLimited(class string, retryAfterSeconds int) *Error {
	return &Error{
		Code:    CodeRateLimited,
		Status:  http.StatusTooManyRequests,
		Message: fmt.Sprintf("rate limit exceeded for %s", class),
		Details: map[string]any{"class": class, "retry_after": retryAfterSeconds},
	}
}

func Internal(err error) *Error {
	return &Error{Code: CodeInternal, Status: http.StatusInternalServerError, Message: "internal error", Err: err}
}

// As extracts an *Error from err's chain.
func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// Is reports whether err's chain holds an *Error with the given code.
func Is(err error, code Code) bool {
	e, ok := As(err)
	return ok && e.Code == code
}
