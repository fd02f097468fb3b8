// Package engineerr defines the flat error taxonomy shared across the
// engine's components.
package engineerr

import (
	"errors"
	"fmt"
)

// Kind classifies an Error. Kinds are flat by design — no nested
// hierarchies, matching the taxonomy the engine exposes to callers.
type Kind int

const (
	Unknown Kind = iota
	NotFound
	AlreadyExists
	NotSupported
	PermissionDenied
	IoError
	SchemaError
	FormatError
	CompressionError
	DomainError
	LayoutError
	BufferOverflow
	Cancelled
	InternalError
)

func (k Kind) String() string {
	switch k {
	case NotFound:
		return "NotFound"
	case AlreadyExists:
		return "AlreadyExists"
	case NotSupported:
		return "NotSupported"
	case PermissionDenied:
		return "PermissionDenied"
	case IoError:
		return "IoError"
	case SchemaError:
		return "SchemaError"
	case FormatError:
		return "FormatError"
	case CompressionError:
		return "CompressionError"
	case DomainError:
		return "DomainError"
	case LayoutError:
		return "LayoutError"
	case BufferOverflow:
		return "BufferOverflow"
	case Cancelled:
		return "Cancelled"
	case InternalError:
		return "InternalError"
	default:
		return "Unknown"
	}
}

// Error is the concrete error type produced by every engine component.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// Is supports errors.Is(err, engineerr.New(engineerr.NotFound, ""))-style
// comparisons: any *Error target matches when its Kind is equal.
func (e *Error) Is(target error) bool {
	var te *Error
	if errors.As(target, &te) {
		return e.Kind == te.Kind
	}
	return false
}

// New builds an Error of the given kind with a formatted message.
func New(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap builds an Error of the given kind, preserving cause for %w-style
// unwrapping and verbose detail reporting.
func Wrap(kind Kind, cause error, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Cause: cause}
}

// KindOf returns the Kind of err if it is (or wraps) an *Error, else Unknown.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Unknown
}
