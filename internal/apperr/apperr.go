package apperr

import (
	"errors"
	"fmt"
)

const (
	CodeValidation     = "VALIDATION"
	CodeNotFound       = "NOT_FOUND"
	CodeStorage        = "STORAGE"
	CodeCDPUnavailable = "CDP_UNAVAILABLE"
	CodeCDPFailure     = "CDP_FAILURE"
	CodeTimeout        = "TIMEOUT"
)

// CodedError is a typed error used for stable API mapping.
type CodedError struct {
	Code    string
	Message string
	Cause   error
}

func (e *CodedError) Error() string {
	if e.Cause == nil {
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
}

func (e *CodedError) Unwrap() error { return e.Cause }

// New builds a CodedError.
func New(code, msg string, cause error) error {
	return &CodedError{Code: code, Message: msg, Cause: cause}
}

// Validation is shorthand for a VALIDATION error without a cause.
func Validation(msg string) error {
	return &CodedError{Code: CodeValidation, Message: msg}
}

// HasCode reports whether err carries the given code.
func HasCode(err error, code string) bool {
	var coded *CodedError
	if !errors.As(err, &coded) {
		return false
	}
	return coded.Code == code
}
