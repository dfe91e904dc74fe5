package core

import (
	"reflect"
	"sync"
)

// DefaultHandleKey is the reserved object key of the handle-wrapper payload
// shape: {"__interopObject": 7}.
const DefaultHandleKey = "__interopObject"

// Handle is the opaque integer reference exposed across the call boundary in
// place of an object's state. The zero Handle never refers to a tracked object.
type Handle int64

// Handled is implemented by handle-wrapper types (*Ref[T]). The marshaller
// and the reference table use it to recognise, bind and unbind wrappers
// without knowing their type parameter.
type Handled interface {
	// RefHandle returns the bound handle, or 0 when the wrapper is not tracked.
	RefHandle() Handle
	// RefTarget returns the wrapped object.
	RefTarget() any
	// BindRef binds the wrapper to handle h and target. It fails with
	// ErrTypeMismatch when target is not assignable to the wrapped type.
	BindRef(h Handle, target any) error
	// Unbind clears the handle after the reference table released it.
	Unbind()
}

// Ref wraps a value that travels across the boundary by reference. Declaring
// a parameter or result as *Ref[T] selects handle semantics for it: the other
// side sees only {"<handle-key>": N} and the object stays in this process.
type Ref[T any] struct {
	mu     sync.RWMutex
	handle Handle
	value  T
}

var _ Handled = (*Ref[any])(nil)

// NewRef wraps value. The wrapper receives a handle the first time it is
// exposed across the boundary.
func NewRef[T any](value T) *Ref[T] {
	return &Ref[T]{value: value}
}

// Value returns the wrapped object.
func (r *Ref[T]) Value() T {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.value
}

// Handle returns the bound handle (0 when untracked).
func (r *Ref[T]) Handle() Handle { return r.RefHandle() }

// RefHandle implements Handled.
func (r *Ref[T]) RefHandle() Handle {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.handle
}

// RefTarget implements Handled.
func (r *Ref[T]) RefTarget() any { return r.Value() }

// BindRef implements Handled.
func (r *Ref[T]) BindRef(h Handle, target any) error {
	var v T
	if target != nil {
		tv, ok := target.(T)
		if !ok {
			return Errorf(ErrTypeMismatch, "handle %d refers to an object of type '%T', which is not assignable to '%s'",
				h, target, TypeName(reflect.TypeFor[T]()))
		}
		v = tv
	}
	r.mu.Lock()
	r.handle = h
	r.value = v
	r.mu.Unlock()
	return nil
}

// Unbind implements Handled.
func (r *Ref[T]) Unbind() {
	r.mu.Lock()
	r.handle = 0
	r.mu.Unlock()
}

var handledType = reflect.TypeFor[Handled]()

// IsHandleWrapper reports whether t is a handle-wrapper type such as *Ref[T].
func IsHandleWrapper(t reflect.Type) bool {
	return t != nil && t.Kind() == reflect.Pointer && t.Implements(handledType)
}

// TypeName renders t for diagnostics.
func TypeName(t reflect.Type) string {
	if t == nil {
		return "<nil>"
	}
	return t.String()
}

// WrapperName renders the handle-wrapper type a parameter of type t would
// need to be declared as to receive a handle.
func WrapperName(t reflect.Type) string {
	if IsHandleWrapper(t) {
		return TypeName(t)
	}
	return "*core.Ref[" + TypeName(t) + "]"
}
