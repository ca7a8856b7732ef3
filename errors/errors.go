// Package errors defines the error kinds surfaced by the FAT engine and the
// small amount of machinery needed to attach context to them.
package errors

import "fmt"

// DriverError is the interface implemented by every error the engine returns.
// The sentinel kinds in kinds.go are the roots; WithMessage and WrapError
// produce derived errors that still match their root via [errors.Is], and
// WrapError additionally records a cause reachable through Unwrap.
type DriverError interface {
	error
	WithMessage(message string) DriverError
	WrapError(err error) DriverError
}

// -----------------------------------------------------------------------------

type wrappedDriverError struct {
	message string

	// kind is the sentinel this error descends from.
	kind error

	// cause is the next error in the unwrap chain: either the error this one
	// was derived from or an external error recorded by WrapError.
	cause error
}

// Error implements the `error` object interface. When called, it returns a
// string describing the error.
func (e wrappedDriverError) Error() string {
	return e.message
}

// WithMessage returns a copy of this error with the given message appended to
// its own.
func (e wrappedDriverError) WithMessage(message string) DriverError {
	return wrappedDriverError{
		message: fmt.Sprintf("%s: %s", e.message, message),
		kind:    e.kind,
		cause:   e,
	}
}

// WrapError returns a copy of this error recording `err` as its cause.
func (e wrappedDriverError) WrapError(err error) DriverError {
	return wrappedDriverError{
		message: fmt.Sprintf("%s: %s", e.Error(), err.Error()),
		kind:    e.kind,
		cause:   err,
	}
}

// Is keeps [errors.Is] matching the root kind no matter how many layers of
// context have been piled on top of it.
func (e wrappedDriverError) Is(target error) bool {
	return e.kind != nil && target == e.kind
}

func (e wrappedDriverError) Unwrap() error {
	return e.cause
}
