package domain

import (
	"errors"
	"fmt"
)

// Code classifies a domain error for transport mapping.
type Code int

const (
	CodeInternal Code = iota
	CodeNotFound
	CodeConflict
	CodeValidation
)

func (c Code) String() string {
	switch c {
	case CodeNotFound:
		return "not_found"
	case CodeConflict:
		return "conflict"
	case CodeValidation:
		return "validation"
	case CodeInternal:
		return "internal"
	}
	return fmt.Sprintf("code(%d)", int(c))
}

// Error is the domain error type. Two errors are equal under errors.Is when
// their codes match, so callers can test against the Err* sentinels.
type Error struct {
	Code    Code
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause == nil {
		return e.Message
	}
	if e.Message == "" {
		return e.Cause.Error()
	}
	return e.Message + ": " + e.Cause.Error()
}

func (e *Error) Unwrap() error {
	return e.Cause
}

func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && e.Code == t.Code
}

var (
	ErrNotFound   = &Error{Code: CodeNotFound, Message: "not found"}
	ErrConflict   = &Error{Code: CodeConflict, Message: "conflict"}
	ErrValidation = &Error{Code: CodeValidation, Message: "validation failed"}
)

func NotFound(format string, args ...any) *Error {
	return &Error{Code: CodeNotFound, Message: fmt.Sprintf(format, args...)}
}

func Conflict(format string, args ...any) *Error {
	return &Error{Code: CodeConflict, Message: fmt.Sprintf(format, args...)}
}

func Invalid(format string, args ...any) *Error {
	return &Error{Code: CodeValidation, Message: fmt.Sprintf(format, args...)}
}

// WrapInvalid marks cause as a validation failure.
func WrapInvalid(message string, cause error) *Error {
	return &Error{Code: CodeValidation, Message: message, Cause: cause}
}

// CodeOf reports the code of the first domain error in err's chain.
func CodeOf(err error) Code {
	var de *Error
	if errors.As(err, &de) {
		return de.Code
	}
	return CodeInternal
}
