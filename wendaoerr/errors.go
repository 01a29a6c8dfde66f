// Package wendaoerr classifies failures across the kernel into the six
// error kinds that drive recovery policy: Configuration and Fatal errors
// always escape; Resource errors degrade reads and fail writes;
// Validation and Transient errors are what the auto-fix loop recovers
// from; Cancelled errors propagate without wrapping.
package wendaoerr

import "fmt"

// Kind classifies an error for propagation/retry policy purposes.
type Kind int

const (
	// Configuration covers missing settings, invalid option values, and
	// malformed query operators. Never retried.
	Configuration Kind = iota
	// Resource covers an unreachable cache store, a missing notebook
	// root, or an uninitialized engine. Reads degrade, writes fail.
	Resource
	// Validation covers output that failed a caller-supplied validator.
	// Recoverable by the auto-fix loop.
	Validation
	// Transient covers a graph invocation failure not matching the
	// fatal list. Recoverable by the auto-fix loop.
	Transient
	// Fatal covers permission denial, identity verification failure,
	// history-too-short on fork, and envelope parse errors. Never
	// retried.
	Fatal
	// Cancelled covers cooperative cancellation. Propagates unwrapped.
	Cancelled
)

func (k Kind) String() string {
	switch k {
	case Configuration:
		return "configuration"
	case Resource:
		return "resource"
	case Validation:
		return "validation"
	case Transient:
		return "transient"
	case Fatal:
		return "fatal"
	case Cancelled:
		return "cancelled"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Recoverable reports whether the auto-fix loop should attempt recovery
// for an error of this kind. Only Validation and Transient are
// recoverable; every other kind escapes immediately.
func (k Kind) Recoverable() bool {
	return k == Validation || k == Transient
}

// Error wraps an underlying error with a Kind and the operation that
// produced it.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Op == "" {
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %s: %v", e.Kind, e.Op, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// New wraps err with the given kind and operation name. Returns nil if
// err is nil.
func New(kind Kind, op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Op: op, Err: err}
}

// KindOf extracts the Kind from err, defaulting to Transient when err
// was not produced by this package (matching the propagation policy:
// unclassified errors from a graph invocation are treated as
// recoverable Transient failures by the auto-fix loop).
func KindOf(err error) Kind {
	var e *Error
	if ok := asError(err, &e); ok {
		return e.Kind
	}
	return Transient
}

func asError(err error, target **Error) bool {
	for err != nil {
		if e, ok := err.(*Error); ok {
			*target = e
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}
