package queryir

import (
	"errors"
	"fmt"
)

// Error is returned when a condition or action cannot be compiled.
//
// Errors include:
//   - Malformed condition/action: an unknown tag reached a compiler
//   - Invalid usage: a well-formed tag used in an ambiguous way, such as
//     Equals wrapping an empty array
//   - Unsupported: a backend cannot express the request
//
// All of them are fatal for the request; compilers never recover.
type Error struct {
	// Code identifies the error category.
	Code ErrorCode

	// Tag is the name of the offending condition or action.
	Tag string

	// Message is a human-readable description.
	Message string
}

// ErrorCode categorizes algebra errors.
type ErrorCode string

const (
	// ErrCodeMalformedCondition indicates an unknown or zero condition kind.
	ErrCodeMalformedCondition ErrorCode = "MALFORMED_CONDITION"

	// ErrCodeMalformedAction indicates an unknown or zero action kind.
	ErrCodeMalformedAction ErrorCode = "MALFORMED_ACTION"

	// ErrCodeInvalidUsage indicates a condition that is well-formed but
	// ambiguous or carries the wrong payload shape.
	ErrCodeInvalidUsage ErrorCode = "INVALID_USAGE"

	// ErrCodeUnsupported indicates a request the target backend cannot express.
	ErrCodeUnsupported ErrorCode = "UNSUPPORTED"
)

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Tag != "" {
		return fmt.Sprintf("%s: %s (tag=%s)", e.Code, e.Message, e.Tag)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// IsMalformed returns true if err is a malformed condition or action error.
// Uses errors.As to handle wrapped errors.
func IsMalformed(err error) bool {
	var qe *Error
	if errors.As(err, &qe) {
		return qe.Code == ErrCodeMalformedCondition || qe.Code == ErrCodeMalformedAction
	}
	return false
}

// IsInvalidUsage returns true if err is an invalid usage error.
func IsInvalidUsage(err error) bool {
	var qe *Error
	if errors.As(err, &qe) {
		return qe.Code == ErrCodeInvalidUsage
	}
	return false
}

// IsUnsupported returns true if err reports a request the backend cannot
// express.
func IsUnsupported(err error) bool {
	var qe *Error
	if errors.As(err, &qe) {
		return qe.Code == ErrCodeUnsupported
	}
	return false
}

// NewMalformedConditionError creates an Error for an unknown condition tag.
func NewMalformedConditionError(tag string) *Error {
	return &Error{
		Code:    ErrCodeMalformedCondition,
		Tag:     tag,
		Message: "unknown search condition: " + tag,
	}
}

// NewMalformedActionError creates an Error for an unknown action tag.
func NewMalformedActionError(tag string) *Error {
	return &Error{
		Code:    ErrCodeMalformedAction,
		Tag:     tag,
		Message: "unknown update action: " + tag,
	}
}

// NewInvalidUsageError creates an Error for a misused tag.
func NewInvalidUsageError(tag, format string, args ...any) *Error {
	return &Error{
		Code:    ErrCodeInvalidUsage,
		Tag:     tag,
		Message: fmt.Sprintf(format, args...),
	}
}

// NewUnsupportedError creates an Error for a request a backend cannot express.
func NewUnsupportedError(tag, format string, args ...any) *Error {
	return &Error{
		Code:    ErrCodeUnsupported,
		Tag:     tag,
		Message: fmt.Sprintf(format, args...),
	}
}
