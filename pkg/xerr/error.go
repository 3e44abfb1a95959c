// Package xerr defines the error-kind discipline used across the core:
// every public entry point returns either a success value or an *Error
// carrying one of the three kinds spec.md §7 enumerates. There is no
// exception-based control flow and no sentinel pointers.
package xerr

import "fmt"

// Kind classifies why a core operation failed.
type Kind int

const (
	// InvalidArgument: decoded instruction conflicts with its specification,
	// a byte stream is truncated, encoder validation fails, or a register
	// index is out of range for a setter.
	InvalidArgument Kind = iota
	// NotFound: the parser cannot match prefixes+opcode to any specification.
	NotFound
	// Internal: the solver returns a non-optimal status, or the retired
	// µop count exceeds the hard cap.
	Internal
)

// String names the kind, used in error messages and CLI diagnostics.
func (k Kind) String() string {
	switch k {
	case InvalidArgument:
		return "invalid-argument"
	case NotFound:
		return "not-found"
	case Internal:
		return "internal-error"
	default:
		return "unknown"
	}
}

// Error is the error value returned by every core entry point.
type Error struct {
	Kind Kind
	Msg  string
	Err  error // optional wrapped cause
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

// Unwrap exposes the wrapped cause, if any, to errors.Is/As.
func (e *Error) Unwrap() error { return e.Err }

// New builds an *Error with no wrapped cause.
func New(k Kind, format string, args ...any) *Error {
	return &Error{Kind: k, Msg: fmt.Sprintf(format, args...)}
}

// Wrap builds an *Error around an existing cause.
func Wrap(k Kind, err error, format string, args ...any) *Error {
	return &Error{Kind: k, Msg: fmt.Sprintf(format, args...), Err: err}
}

// KindOf reports the Kind of err, if err is (or wraps) an *Error.
func KindOf(err error) (Kind, bool) {
	for err != nil {
		if e, ok := err.(*Error); ok {
			return e.Kind, true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			break
		}
		err = u.Unwrap()
	}
	return 0, false
}
