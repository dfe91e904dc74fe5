package registry

import (
	"context"
	"fmt"
	"reflect"
	"runtime/debug"

	"github.com/hupe1980/interopmesh/core"
)

var (
	contextType = reflect.TypeFor[context.Context]()
	errorType   = reflect.TypeFor[error]()
	futureType  = reflect.TypeFor[*core.Future]()
)

// Method is the registration of one invokable callable.
type Method struct {
	// Module is the key of the module the method belongs to.
	Module core.ModuleKey
	// ID is the identifier callers use; it defaults to the Go name.
	ID string
	// Name is the Go method or function name, for diagnostics.
	Name string
	// Params lists the declared parameter types in order, excluding a
	// leading context.Context and the receiver of instance methods.
	Params []reflect.Type
	// Result is the declared result type, or nil for void methods.
	Result reflect.Type

	fn          reflect.Value
	withContext bool
	withError   bool
	instance    bool
}

// Async reports whether the method returns a pending operation.
func (m *Method) Async() bool { return m.Result == futureType }

// Instance reports whether the method expects a receiver.
func (m *Method) Instance() bool { return m.instance }

// Call invokes the method. receiver must be valid exactly for instance
// methods. Errors returned by the callable and recovered panics are wrapped
// in *core.InvocationError. For void methods the returned Value is invalid.
func (m *Method) Call(ctx context.Context, receiver reflect.Value, args []reflect.Value) (out reflect.Value, err error) {
	if len(args) != len(m.Params) {
		return reflect.Value{}, core.Errorf(core.ErrArity, "in call to '%s': expects %d, received %d", m.ID, len(m.Params), len(args))
	}
	if m.instance != receiver.IsValid() {
		return reflect.Value{}, core.Errorf(core.ErrInvalidCall, "method '%s' called with mismatched receiver", m.ID)
	}
	if ctx == nil {
		ctx = context.Background()
	}

	in := make([]reflect.Value, 0, len(args)+2)
	if m.instance {
		in = append(in, receiver)
	}
	if m.withContext {
		in = append(in, reflect.ValueOf(ctx))
	}
	in = append(in, args...)

	defer func() {
		if r := recover(); r != nil {
			out = reflect.Value{}
			err = &core.InvocationError{Method: m.ID, Cause: &PanicError{Value: r, Stack: debug.Stack()}}
		}
	}()

	results := m.fn.Call(in)

	if m.withError {
		if e := results[len(results)-1]; !e.IsNil() {
			return reflect.Value{}, &core.InvocationError{Method: m.ID, Cause: e.Interface().(error)}
		}
	}
	if m.Result == nil {
		return reflect.Value{}, nil
	}
	return results[0], nil
}

// PanicError carries a panic recovered from an invoked method.
type PanicError struct {
	Value any
	Stack []byte
}

// Error implements the error interface.
func (e *PanicError) Error() string { return fmt.Sprintf("panic: %v", e.Value) }

// Unwrap returns the panic value when it is an error.
func (e *PanicError) Unwrap() error {
	err, _ := e.Value.(error)
	return err
}

// newMethod analyses fn's signature. For instance methods fn is a method
// expression whose first parameter is the receiver.
func newMethod(key core.ModuleKey, id, name string, fn reflect.Value, instance bool) (*Method, error) {
	if !fn.IsValid() || fn.Kind() != reflect.Func || fn.IsNil() {
		return nil, core.Errorf(core.ErrInvalidSignature, "invokable '%s' in module '%s' is not a function", name, key)
	}
	ft := fn.Type()
	if ft.IsVariadic() {
		return nil, core.Errorf(core.ErrInvalidSignature, "invokable '%s' in module '%s' must not be variadic", name, key)
	}

	m := &Method{Module: key, ID: id, Name: name, fn: fn, instance: instance}

	i := 0
	if instance {
		i = 1
	}
	if i < ft.NumIn() && ft.In(i) == contextType {
		m.withContext = true
		i++
	}
	for ; i < ft.NumIn(); i++ {
		pt := ft.In(i)
		switch pt.Kind() {
		case reflect.Func, reflect.Chan, reflect.UnsafePointer:
			return nil, core.Errorf(core.ErrInvalidSignature, "invokable '%s' in module '%s' has a parameter of type '%s' that cannot cross the boundary",
				name, key, core.TypeName(pt))
		}
		if pt == contextType {
			return nil, core.Errorf(core.ErrInvalidSignature, "invokable '%s' in module '%s' accepts context.Context only as its first parameter", name, key)
		}
		m.Params = append(m.Params, pt)
	}

	switch ft.NumOut() {
	case 0:
	case 1:
		if ft.Out(0) == errorType {
			m.withError = true
		} else {
			m.Result = ft.Out(0)
		}
	case 2:
		if ft.Out(1) != errorType {
			return nil, core.Errorf(core.ErrInvalidSignature, "invokable '%s' in module '%s' must return error as its second result", name, key)
		}
		m.Result = ft.Out(0)
		m.withError = true
	default:
		return nil, core.Errorf(core.ErrInvalidSignature, "invokable '%s' in module '%s' returns too many results", name, key)
	}

	return m, nil
}
