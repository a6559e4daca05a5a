package tpxa

import (
	"errors"
	"fmt"
)

// Code classifies export and import failures.
type Code string

// Error codes.
const (
	CodeFormat             Code = "FORMAT"
	CodeUnsupportedVariant Code = "UNSUPPORTED_VARIANT"
	CodeReference          Code = "REFERENCE"
	CodePayloadDecode      Code = "PAYLOAD_DECODE"
	CodeValidation         Code = "VALIDATION"
	CodeSerialization      Code = "SERIALIZATION"
)

// Error is a coded export or import error.
type Error struct {
	Code    Code   `json:"code"`
	Message string `json:"message"`
	cause   error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.cause)
	}
	return e.Message
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.cause
}

// Is reports whether target is an *Error with the same code.
func (e *Error) Is(target error) bool {
	var t *Error
	if errors.As(target, &t) {
		return e.Code == t.Code
	}
	return false
}

// Sentinel errors for use with errors.Is.
var (
	ErrFormat             = &Error{Code: CodeFormat, Message: "unknown feed uploaded"}
	ErrUnsupportedVariant = &Error{Code: CodeUnsupportedVariant, Message: "importing of this variant is not possible"}
	ErrReference          = &Error{Code: CodeReference, Message: "unresolved reference"}
	ErrPayloadDecode      = &Error{Code: CodePayloadDecode, Message: "invalid payload"}
	ErrValidation         = &Error{Code: CodeValidation, Message: "validation error"}
	ErrSerialization      = &Error{Code: CodeSerialization, Message: "serialization error"}
)

// ErrAlreadyGenerated is returned when an export sequence is consumed twice.
var ErrAlreadyGenerated = errors.New("export has already been generated")

// ErrTableFlushed is returned when registering into a flushed dependency table.
var ErrTableFlushed = errors.New("dependency table already flushed")

// NewError returns a coded error wrapping cause, which may be nil.
func NewError(code Code, cause error, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...), cause: cause}
}

func formatErrorf(format string, args ...any) *Error {
	return NewError(CodeFormat, nil, format, args...)
}

func referenceErrorf(format string, args ...any) *Error {
	return NewError(CodeReference, nil, format, args...)
}
