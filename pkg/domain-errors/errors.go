// Package domainerrors defines the coded error type services return to
// transports. Codes are stable strings so handlers can map them to HTTP
// statuses without inspecting messages.
package domainerrors

import (
	"errors"
	"net/http"
)

// Code classifies a domain failure.
type Code string

const (
	CodeNotFound             Code = "not_found"
	CodeValidation           Code = "validation_error"
	CodeBadRequest           Code = "bad_request"
	CodeConflict             Code = "conflict"
	CodePartialFanOut        Code = "partial_fan_out"
	CodeConcurrentUpdateLost Code = "concurrent_update_lost"
	CodeInvalidState         Code = "invalid_state"
	CodeStoreUnavailable     Code = "store_unavailable"
	CodeUnauthorized         Code = "unauthorized"
	CodeForbidden            Code = "forbidden"
	CodeRateLimited          Code = "rate_limited"
	CodeInternal             Code = "internal_error"
)

// Coder is implemented by any error that carries a domain code. Errors other
// than *Error (for example the fan-out report) implement it so HasCode works
// uniformly through wrapping.
type Coder interface {
	error
	ErrorCode() Code
}

// Error is the default coded error.
type Error struct {
	Code    Code
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil && e.Message != "" {
		return e.Message + ": " + e.Err.Error()
	}
	if e.Message != "" {
		return e.Message
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return string(e.Code)
}

func (e *Error) Unwrap() error { return e.Err }

// ErrorCode implements Coder.
func (e *Error) ErrorCode() Code { return e.Code }

// New builds a coded error with a client-safe message.
func New(code Code, message string) error {
	return &Error{Code: code, Message: message}
}

// Wrap attaches a code and message to an underlying error. A nil err yields nil.
func Wrap(err error, code Code, message string) error {
	if err == nil {
		return nil
	}
	return &Error{Code: code, Message: message, Err: err}
}

// CodeOf returns the outermost code in the chain, or CodeInternal.
func CodeOf(err error) Code {
	var c Coder
	if errors.As(err, &c) {
		return c.ErrorCode()
	}
	return CodeInternal
}

// HasCode reports whether the outermost coded error in the chain has code.
func HasCode(err error, code Code) bool {
	if err == nil {
		return false
	}
	return CodeOf(err) == code
}

// Message returns the client-facing message of a coded error.
func Message(err error) string {
	var c Coder
	if !errors.As(err, &c) {
		return ""
	}
	if e, ok := c.(*Error); ok {
		return e.Message
	}
	return c.Error()
}

// ToHTTPStatus maps a code onto its transport status.
func ToHTTPStatus(code Code) int {
	switch code {
	case CodeNotFound:
		return http.StatusNotFound
	case CodeValidation, CodeBadRequest:
		return http.StatusBadRequest
	case CodeConflict, CodeConcurrentUpdateLost, CodeInvalidState:
		return http.StatusConflict
	case CodePartialFanOut:
		return http.StatusBadGateway
	case CodeStoreUnavailable:
		return http.StatusServiceUnavailable
	case CodeUnauthorized:
		return http.StatusUnauthorized
	case CodeForbidden:
		return http.StatusForbidden
	case CodeRateLimited:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}
