// Package compileerr defines the failures raised while translating
// expressions. Every one of them signals a caller programming error: none is
// transient and none should be retried.
package compileerr

import (
	"errors"
	"fmt"
)

// Code categorizes compile errors.
type Code string

const (
	// CodeUnsupportedShape indicates an expression node no rule covers.
	CodeUnsupportedShape Code = "UNSUPPORTED_EXPRESSION_SHAPE"

	// CodeInvalidTopLevel indicates arithmetic or a non-boolean value used as
	// a whole predicate.
	CodeInvalidTopLevel Code = "INVALID_TOP_LEVEL_FORM"

	// CodePathDepthExceeded indicates a member chain deeper than the policy allows.
	CodePathDepthExceeded Code = "PATH_DEPTH_EXCEEDED"

	// CodeUnknownFunction indicates an unrecognized aggregate or window call.
	CodeUnknownFunction Code = "UNKNOWN_AGGREGATE_OR_WINDOW_FUNCTION"
)

// Error is a translation failure.
//
// Node names the offending expression (its kind and rendered text). Path and
// Limit are set for depth failures.
type Error struct {
	Code    Code
	Message string
	Node    string
	Path    string
	Limit   int
}

// Error implements the error interface.
func (e *Error) Error() string {
	switch {
	case e.Code == CodePathDepthExceeded:
		return fmt.Sprintf("%s: %s (path=%s, limit=%d)", e.Code, e.Message, e.Path, e.Limit)
	case e.Node != "":
		return fmt.Sprintf("%s: %s: %s", e.Code, e.Message, e.Node)
	default:
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	}
}

// Unsupported creates an UNSUPPORTED_EXPRESSION_SHAPE error.
func Unsupported(node, format string, args ...any) *Error {
	return &Error{Code: CodeUnsupportedShape, Message: fmt.Sprintf(format, args...), Node: node}
}

// InvalidTopLevel creates an INVALID_TOP_LEVEL_FORM error.
func InvalidTopLevel(node, format string, args ...any) *Error {
	return &Error{Code: CodeInvalidTopLevel, Message: fmt.Sprintf(format, args...), Node: node}
}

// PathDepthExceeded creates a PATH_DEPTH_EXCEEDED error.
func PathDepthExceeded(path string, depth, limit int) *Error {
	return &Error{
		Code:    CodePathDepthExceeded,
		Message: fmt.Sprintf("path has %d segments", depth),
		Path:    path,
		Limit:   limit,
	}
}

// UnknownFunction creates an UNKNOWN_AGGREGATE_OR_WINDOW_FUNCTION error.
func UnknownFunction(node, format string, args ...any) *Error {
	return &Error{Code: CodeUnknownFunction, Message: fmt.Sprintf(format, args...), Node: node}
}

func hasCode(err error, code Code) bool {
	var ce *Error
	if errors.As(err, &ce) {
		return ce.Code == code
	}
	return false
}

// IsUnsupportedShape reports whether err is an UNSUPPORTED_EXPRESSION_SHAPE error.
func IsUnsupportedShape(err error) bool { return hasCode(err, CodeUnsupportedShape) }

// IsInvalidTopLevel reports whether err is an INVALID_TOP_LEVEL_FORM error.
func IsInvalidTopLevel(err error) bool { return hasCode(err, CodeInvalidTopLevel) }

// IsPathDepthExceeded reports whether err is a PATH_DEPTH_EXCEEDED error.
func IsPathDepthExceeded(err error) bool { return hasCode(err, CodePathDepthExceeded) }

// IsUnknownFunction reports whether err is an UNKNOWN_AGGREGATE_OR_WINDOW_FUNCTION error.
func IsUnknownFunction(err error) bool { return hasCode(err, CodeUnknownFunction) }
