package dispatch

import (
	"context"
	"reflect"
	"sync/atomic"
	"time"

	"github.com/hupe1980/interopmesh/completion"
	"github.com/hupe1980/interopmesh/core"
	"github.com/hupe1980/interopmesh/logging"
	"github.com/hupe1980/interopmesh/marshal"
	"github.com/hupe1980/interopmesh/objref"
	"github.com/hupe1980/interopmesh/registry"
)

// Options configures a Dispatcher.
type Options struct {
	// HandleKey is the reserved key of the handle-wrapper payload shape.
	// Defaults to core.DefaultHandleKey.
	HandleKey string

	// CallTimeout bounds InvokeAs when the caller's context carries no
	// deadline. Zero waits for the context only.
	CallTimeout time.Duration

	// SessionID is attached to every log record of this dispatcher.
	SessionID string

	// Logger defaults to NoOp logger if nil.
	Logger logging.Logger
}

// Request addresses an inbound call. Static calls name a module; instance
// calls name a TargetHandle and must leave ModuleID empty.
type Request struct {
	// ModuleID is the module name; empty means absent.
	ModuleID string
	// MethodID is the method identifier.
	MethodID string
	// TargetHandle is the handle of the receiver; 0 for static calls.
	TargetHandle int64
	// Args is the JSON argument array; empty means no arguments.
	Args string
}

// Dispatcher is the per-session context object. It owns the session's
// reference table and pending outbound calls, and shares the process-wide
// method registry. Safe for concurrent use; calls are not serialized.
type Dispatcher struct {
	registry   *registry.Registry
	host       Host
	refs       *objref.Table
	pending    *completion.Table
	marshaller *marshal.Marshaller

	callTimeout time.Duration
	logger      logging.Logger

	closed atomic.Bool
}

// New creates a Dispatcher resolving methods in reg and talking to host.
func New(reg *registry.Registry, host Host, optFns ...func(o *Options)) *Dispatcher {
	opts := Options{
		HandleKey: core.DefaultHandleKey,
		Logger:    logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Logger == nil {
		opts.Logger = logging.NoOpLogger{}
	}

	refs := objref.NewTable()
	return &Dispatcher{
		registry:    reg,
		host:        host,
		refs:        refs,
		pending:     completion.NewTable(),
		marshaller:  marshal.New(opts.HandleKey, refs),
		callTimeout: opts.CallTimeout,
		logger:      logging.Scoped(opts.Logger, "dispatch", opts.SessionID),
	}
}

// Refs returns the session's reference table.
func (d *Dispatcher) Refs() *objref.Table { return d.refs }

// Marshaller returns the session's marshaller.
func (d *Dispatcher) Marshaller() *marshal.Marshaller { return d.marshaller }

// PendingCalls returns the number of outbound calls awaiting a report.
func (d *Dispatcher) PendingCalls() int { return d.pending.Len() }

// Invoke runs an inbound synchronous call and returns its JSON encoded
// result, or "" for void methods. Failures of the invoked method are
// returned with their invocation wrapper removed. A method returning a
// pending operation is awaited with ctx.
func (d *Dispatcher) Invoke(ctx context.Context, req Request) (string, error) {
	start := time.Now()
	d.logger.Debug("dispatch.invoke.start", "module", req.ModuleID, "method", req.MethodID, "target", req.TargetHandle)

	text, err := d.invoke(ctx, req)
	if err != nil {
		err = core.UnwrapInvocation(err)
	}
	logging.RecordInvocation(d.logger, req.MethodID, time.Since(start), err)
	return text, err
}

func (d *Dispatcher) invoke(ctx context.Context, req Request) (string, error) {
	m, out, err := d.call(ctx, req)
	if err != nil {
		return "", err
	}
	if m.Result == nil {
		return "", nil
	}

	val, declared := out, m.Result
	if m.Async() {
		v, err := futureOf(out).Wait(ctx)
		if err != nil {
			return "", err
		}
		val, declared = reflect.ValueOf(v), nil
	}
	return d.marshaller.EncodeResult(val, declared)
}

// BeginInvoke runs an inbound asynchronous call. The outcome is reported
// through Host.EndInvoke under correlationID: immediately for synchronous
// results and failures, or once a returned pending operation settles. An
// empty correlationID marks a fire-and-forget call whose outcome is only
// logged. BeginInvoke never waits for a pending operation.
func (d *Dispatcher) BeginInvoke(ctx context.Context, req Request, correlationID string) {
	start := time.Now()
	d.logger.Debug("dispatch.begin_invoke.start", "module", req.ModuleID, "method", req.MethodID, "call_id", correlationID)

	m, out, err := d.call(ctx, req)
	if err != nil {
		d.complete(ctx, correlationID, req.MethodID, start, reflect.Value{}, nil, err)
		return
	}

	if m.Async() {
		rctx := context.WithoutCancel(ctx)
		futureOf(out).OnSettle(func(r core.Result) {
			d.complete(rctx, correlationID, m.ID, start, reflect.ValueOf(r.Value), nil, r.Err)
		})
		return
	}

	d.complete(ctx, correlationID, m.ID, start, out, m.Result, nil)
}

// EndInvoke accepts the completion report of an outbound call. The report
// shape is validated before any state changes; a malformed report is
// returned as an error since it cannot be reported back. Reports for unknown
// or already completed calls are ignored.
func (d *Dispatcher) EndInvoke(report string) error {
	rep, err := completion.Parse(report)
	if err != nil {
		d.logger.Error("completion.malformed", "error", err)
		return err
	}
	id, err := rep.ID()
	if err != nil {
		return err
	}

	p, ok := d.pending.Take(id)
	logging.RecordCompletion(d.logger, rep.CallID, rep.Success, !ok)
	if !ok {
		return nil
	}

	if !rep.Success {
		p.Future.Reject(&core.RemoteError{Identifier: p.Identifier, Message: rep.Error})
		return nil
	}

	v, err := d.marshaller.DecodeValue(rep.Result, p.ResultType)
	if err != nil {
		d.logger.Warn("completion.decode_failed", "call_id", id, "identifier", p.Identifier, "error", err)
		p.Future.Reject(err)
		return nil
	}
	p.Future.Resolve(v)
	return nil
}

// Release drops the object tracked under handle.
func (d *Dispatcher) Release(handle int64) error {
	if err := d.refs.Release(core.Handle(handle)); err != nil {
		d.logger.Warn("dispatch.release.failed", "handle", handle, "error", err)
		return err
	}
	d.logger.Debug("dispatch.release", "handle", handle)
	return nil
}

// Close tears the session down: every tracked object is released and every
// pending outbound call fails with core.ErrSessionClosed. Later calls fail
// with the same error. Close is idempotent.
func (d *Dispatcher) Close() error {
	if !d.closed.CompareAndSwap(false, true) {
		return nil
	}
	released := d.refs.ReleaseAll()
	failed := d.pending.FailAll(sessionClosed())
	d.logger.Info("dispatch.closed", "released_handles", released, "failed_calls", failed)
	return nil
}

// Closed reports whether Close has been called.
func (d *Dispatcher) Closed() bool { return d.closed.Load() }

func (d *Dispatcher) call(ctx context.Context, req Request) (*registry.Method, reflect.Value, error) {
	if d.closed.Load() {
		return nil, reflect.Value{}, sessionClosed()
	}

	m, receiver, err := d.resolve(req)
	if err != nil {
		return nil, reflect.Value{}, err
	}

	args, err := d.marshaller.Parse(m.ID, req.Args, m.Params)
	if err != nil {
		return nil, reflect.Value{}, err
	}

	out, err := m.Call(ctx, receiver, args)
	return m, out, err
}

func (d *Dispatcher) resolve(req Request) (*registry.Method, reflect.Value, error) {
	if req.TargetHandle != 0 {
		if req.ModuleID != "" {
			return nil, reflect.Value{}, core.Errorf(core.ErrInvalidCall, "module should be null for instance calls")
		}
		obj, err := d.refs.Find(core.Handle(req.TargetHandle))
		if err != nil {
			return nil, reflect.Value{}, err
		}
		target := obj
		if ref, ok := obj.(core.Handled); ok {
			target = ref.RefTarget()
		}
		m, err := d.registry.ResolveInstance(target, req.MethodID)
		if err != nil {
			return nil, reflect.Value{}, err
		}
		return m, reflect.ValueOf(target), nil
	}

	if req.ModuleID == "" {
		return nil, reflect.Value{}, core.Errorf(core.ErrInvalidCall, "module is required for static calls to '%s'", req.MethodID)
	}
	m, err := d.registry.Resolve(req.ModuleID, req.MethodID)
	return m, reflect.Value{}, err
}

// complete reports the outcome of an asynchronous inbound call.
func (d *Dispatcher) complete(ctx context.Context, correlationID, method string, start time.Time, val reflect.Value, declared reflect.Type, err error) {
	var text string
	if err == nil {
		text, err = d.marshaller.EncodeResult(val, declared)
	}
	if err != nil {
		err = core.UnwrapInvocation(err)
	}
	logging.RecordInvocation(d.logger, method, time.Since(start), err)

	if correlationID == "" {
		if err != nil {
			d.logger.Warn("dispatch.begin_invoke.unreported", "method", method, "error", err)
		}
		return
	}
	if d.closed.Load() {
		d.logger.Debug("dispatch.begin_invoke.dropped", "method", method, "call_id", correlationID)
		return
	}

	rep := completion.Success(correlationID, text)
	if err != nil {
		rep = completion.Failure(correlationID, err)
	}

	text, encErr := completion.Encode(rep)
	if encErr != nil {
		text, _ = completion.Encode(completion.Failure(correlationID, encErr))
	}
	d.host.EndInvoke(ctx, correlationID, text)
}

func futureOf(out reflect.Value) *core.Future {
	if !out.IsValid() || out.IsNil() {
		return core.Resolved(nil)
	}
	return out.Interface().(*core.Future)
}

func sessionClosed() error {
	return core.Errorf(core.ErrSessionClosed, "the dispatcher session has been closed")
}
