// Package apperr defines the closed error taxonomy the core raises
// (spec.md §7). HTTP handlers translate an *Error into a response; queue
// consumers translate a *QueueError into a retry/no-retry decision.
package apperr

import (
	"fmt"
	"net/http"
)

// Code is the closed set of API error codes from spec.md §7, plus
// ENTITY_ALREADY_EXISTS (SPEC_FULL.md §C) which never escapes the store
// layer as-is — it is folded into INVALID_REQUEST at the HTTP boundary.
type Code string

const (
	CodeInvalidRequest     Code = "INVALID_REQUEST"
	CodeEntityNotFound     Code = "ENTITY_NOT_FOUND"
	CodeInsufficientFunds  Code = "INSUFFICIENT_FUNDS"
	CodeJobAlreadyStarted  Code = "JOB_ALREADY_STARTED"
	CodeJobAlreadyCancelled Code = "JOB_ALREADY_CANCELLED"
	CodeEntityAlreadyExists Code = "ENTITY_ALREADY_EXISTS"
)

// httpStatus is the HTTP status New assigns to each code (spec.md §7).
var httpStatus = map[Code]int{
	CodeInvalidRequest:      http.StatusBadRequest,
	CodeEntityNotFound:      http.StatusNotFound,
	CodeInsufficientFunds:   http.StatusPaymentRequired,
	CodeJobAlreadyStarted:   http.StatusBadRequest,
	CodeJobAlreadyCancelled: http.StatusBadRequest,
	CodeEntityAlreadyExists: http.StatusBadRequest,
}

// Error is a typed, taggable API error. It is built and passed around as an
// *Error, so call sites can attach Details in one expression via
// WithDetails.
type Error struct {
	Code       Code
	Message    string
	Details    map[string]any
	HTTPStatus int
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// New builds an Error using the default HTTP status for code.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message, HTTPStatus: httpStatus[code]}
}

// Newf builds an Error with a formatted message.
func Newf(code Code, format string, args ...any) *Error {
	return New(code, fmt.Sprintf(format, args...))
}

// WithDetails attaches structured details (e.g. requested_amount for
// INSUFFICIENT_FUNDS, spec.md §7) and returns the same error for chaining.
func (e *Error) WithDetails(details map[string]any) *Error {
	e.Details = details
	return e
}

// NotFound is a convenience constructor for the most common case.
func NotFound(what string) *Error {
	return New(CodeEntityNotFound, what+" not found")
}

// AsError reports whether err itself is an *Error and returns it. Wrapped
// errors are not unwrapped.
func AsError(err error) (*Error, bool) {
	e, ok := err.(*Error)
	return e, ok
}
