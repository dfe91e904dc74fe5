package core

import (
	"errors"
	"fmt"
)

// Error kinds. Use errors.Is to classify a failure returned by any package of
// the dispatcher.
var (
	// ErrNotFound is returned when a module, method, handle or session is missing.
	ErrNotFound = errors.New("not found")
	// ErrArity is returned when an argument array has fewer elements than parameters.
	ErrArity = errors.New("arity mismatch")
	// ErrMalformedPayload is returned for structurally invalid argument or completion data.
	ErrMalformedPayload = errors.New("malformed payload")
	// ErrTypeMismatch is returned when a handle is passed for a plain parameter or vice versa.
	ErrTypeMismatch = errors.New("type mismatch")
	// ErrDuplicateRegistration is a fatal configuration error: two methods of one
	// module share an identifier.
	ErrDuplicateRegistration = errors.New("duplicate registration")
	// ErrInvalidSignature is a fatal configuration error: an opted-in method
	// cannot be invoked across the boundary.
	ErrInvalidSignature = errors.New("invalid signature")
	// ErrRegistrationClosed is returned when registering into a module whose
	// method table has already been built.
	ErrRegistrationClosed = errors.New("registration closed")
	// ErrInvalidCall is returned for inbound calls that address a method inconsistently.
	ErrInvalidCall = errors.New("invalid call")
	// ErrInvocationFault marks a failure raised by the invoked method itself.
	ErrInvocationFault = errors.New("invocation fault")
	// ErrSessionClosed is returned once a dispatcher session has been torn down.
	ErrSessionClosed = errors.New("session closed")
)

// Error is the typed failure produced by the dispatcher. Its message is the
// exact diagnostic text reported across the boundary; Kind classifies it.
type Error struct {
	Kind    error
	Message string
	Cause   error
}

// Errorf builds an *Error of the given kind.
func Errorf(kind error, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

// Unwrap exposes both the kind and the optional cause to errors.Is / errors.As.
func (e *Error) Unwrap() []error {
	if e.Cause == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Cause}
}

// WithCause returns a copy of e carrying cause.
func (e *Error) WithCause(cause error) *Error {
	ne := *e
	ne.Cause = cause
	return &ne
}

// InvocationError wraps a failure raised by an invoked method (a returned
// error or a recovered panic). It is stripped by UnwrapInvocation before a
// failure is reported so the other side sees the original diagnostic text.
type InvocationError struct {
	Method string
	Cause  error
}

// Error implements the error interface.
func (e *InvocationError) Error() string {
	return fmt.Sprintf("invocation of '%s' failed: %v", e.Method, e.Cause)
}

// Unwrap returns the inner cause.
func (e *InvocationError) Unwrap() error { return e.Cause }

// Is reports whether target is ErrInvocationFault.
func (e *InvocationError) Is(target error) bool { return target == ErrInvocationFault }

// UnwrapInvocation strips every InvocationError layer from err and returns the
// inner cause. Other errors are returned unchanged.
func UnwrapInvocation(err error) error {
	for {
		ie, ok := err.(*InvocationError)
		if !ok || ie.Cause == nil {
			return err
		}
		err = ie.Cause
	}
}

// RemoteError carries the error text of a failed completion report received
// from the other side of the boundary.
type RemoteError struct {
	Identifier string
	Message    string
}

// Error implements the error interface.
func (e *RemoteError) Error() string { return e.Message }

// Is reports whether target is ErrInvocationFault.
func (e *RemoteError) Is(target error) bool { return target == ErrInvocationFault }
