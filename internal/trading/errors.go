package trading

import (
	"errors"
	"fmt"
)

// Code is the stable error code surfaced to the API layer.
type Code string

const (
	CodeNotFound          Code = "NOT_FOUND"
	CodeInvalidState      Code = "INVALID_STATE"
	CodeInvalidArgument   Code = "INVALID_ARGUMENT"
	CodeInsufficientFunds Code = "INSUFFICIENT_FUNDS"
	CodeRateLimit         Code = "RATE_LIMIT"
	CodeConflict          Code = "CONFLICT"
	CodeInternal          Code = "INTERNAL"
)

// Error carries a stable code alongside the message.
type Error struct {
	Code    Code
	Message string
}

func (e *Error) Error() string {
	return string(e.Code) + ": " + e.Message
}

// E builds a coded error.
func E(code Code, format string, args ...any) error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// CodeOf extracts the code from err, defaulting to INTERNAL.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeInternal
}

// IsCode reports whether err carries the given code.
func IsCode(err error, code Code) bool {
	return CodeOf(err) == code
}
