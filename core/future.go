package core

import (
	"context"
	"sync"
)

// Result is the tagged outcome of an invocation: either a value or a cause.
type Result struct {
	Value any
	Err   error
}

// Ok returns a successful Result.
func Ok(v any) Result { return Result{Value: v} }

// Fail returns a failed Result.
func Fail(err error) Result { return Result{Err: err} }

// Failed reports whether the result carries an error.
func (r Result) Failed() bool { return r.Err != nil }

// Unwrapped returns r with any InvocationError layers removed from its cause.
func (r Result) Unwrapped() Result {
	if r.Err == nil {
		return r
	}
	return Result{Value: r.Value, Err: UnwrapInvocation(r.Err)}
}

// Future is a single-assignment container for the eventual Result of an
// asynchronous operation. It settles at most once; later Resolve/Reject calls
// are ignored and report false. Continuations registered with OnSettle run
// exactly once, after settlement.
//
// A method exposed across the boundary returns *Future to mark itself
// asynchronous; the dispatcher attaches a continuation instead of waiting.
type Future struct {
	mu        sync.Mutex
	done      chan struct{}
	settled   bool
	result    Result
	callbacks []func(Result)
}

// NewFuture returns an unsettled Future.
func NewFuture() *Future {
	return &Future{done: make(chan struct{})}
}

// Resolved returns a Future already settled with v.
func Resolved(v any) *Future {
	f := NewFuture()
	f.Resolve(v)
	return f
}

// Rejected returns a Future already settled with err.
func Rejected(err error) *Future {
	f := NewFuture()
	f.Reject(err)
	return f
}

// Go runs fn on a new goroutine and returns a Future settled with its outcome.
func Go(fn func() (any, error)) *Future {
	f := NewFuture()
	go func() {
		v, err := fn()
		if err != nil {
			f.Reject(err)
			return
		}
		f.Resolve(v)
	}()
	return f
}

// Resolve settles the future with v.
func (f *Future) Resolve(v any) bool { return f.settle(Ok(v)) }

// Reject settles the future with err. A nil err still rejects, with an
// ErrInvocationFault "unknown error".
func (f *Future) Reject(err error) bool {
	if err == nil {
		err = Errorf(ErrInvocationFault, "unknown error")
	}
	return f.settle(Fail(err))
}

func (f *Future) settle(r Result) bool {
	f.mu.Lock()
	if f.settled {
		f.mu.Unlock()
		return false
	}
	f.settled = true
	f.result = r
	cbs := f.callbacks
	f.callbacks = nil
	close(f.done)
	f.mu.Unlock()

	for _, cb := range cbs {
		cb(r)
	}
	return true
}

// Done returns a channel closed once the future settles.
func (f *Future) Done() <-chan struct{} { return f.done }

// Result returns the outcome and whether the future has settled.
func (f *Future) Result() (Result, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.result, f.settled
}

// OnSettle registers fn to run with the outcome. When the future has already
// settled fn runs immediately on the calling goroutine, otherwise on the
// goroutine that settles it.
func (f *Future) OnSettle(fn func(Result)) {
	f.mu.Lock()
	if !f.settled {
		f.callbacks = append(f.callbacks, fn)
		f.mu.Unlock()
		return
	}
	r := f.result
	f.mu.Unlock()
	fn(r)
}

// Wait blocks until the future settles or ctx is done.
func (f *Future) Wait(ctx context.Context) (any, error) {
	select {
	case <-f.done:
		r, _ := f.Result()
		return r.Value, r.Err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
