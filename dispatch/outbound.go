package dispatch

import (
	"context"
	"errors"
	"fmt"
	"reflect"

	"github.com/hupe1980/interopmesh/completion"
	"github.com/hupe1980/interopmesh/core"
)

// InvokeRemote starts an outbound call of identifier on the host. The
// returned future settles when the matching completion report arrives
// through EndInvoke; a successful result is decoded against resultType (a
// nil resultType yields json.RawMessage). Handle wrappers among args are
// tracked and sent as handles.
func (d *Dispatcher) InvokeRemote(ctx context.Context, identifier string, resultType reflect.Type, args ...any) (*core.Future, error) {
	p, err := d.beginRemote(ctx, identifier, resultType, args)
	if err != nil {
		return nil, err
	}
	return p.Future, nil
}

// InvokeAs calls identifier on the host and waits for a result of type T.
// When ctx has no deadline the dispatcher's CallTimeout applies. A call
// abandoned by cancellation or timeout is forgotten; its late completion
// report is ignored.
func InvokeAs[T any](ctx context.Context, d *Dispatcher, identifier string, args ...any) (T, error) {
	var zero T

	p, err := d.beginRemote(ctx, identifier, reflect.TypeFor[T](), args)
	if err != nil {
		return zero, err
	}

	if _, ok := ctx.Deadline(); !ok && d.callTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.callTimeout)
		defer cancel()
	}

	v, err := p.Future.Wait(ctx)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil && errors.Is(err, ctxErr) {
			d.abandon(p)
		}
		return zero, err
	}
	if v == nil {
		return zero, nil
	}
	t, ok := v.(T)
	if !ok {
		return zero, core.Errorf(core.ErrTypeMismatch, "result of '%s' has type '%T', expected '%s'", identifier, v, core.TypeName(reflect.TypeFor[T]()))
	}
	return t, nil
}

// InvokeVoid calls identifier on the host and waits for it to complete,
// discarding any result.
func InvokeVoid(ctx context.Context, d *Dispatcher, identifier string, args ...any) error {
	_, err := InvokeAs[any](ctx, d, identifier, args...)
	return err
}

func (d *Dispatcher) beginRemote(ctx context.Context, identifier string, resultType reflect.Type, args []any) (*completion.Pending, error) {
	if d.closed.Load() {
		return nil, sessionClosed()
	}

	argsJSON, err := d.marshaller.EncodeArgs(args)
	if err != nil {
		return nil, fmt.Errorf("encode arguments of '%s': %w", identifier, err)
	}

	p := d.pending.Add(identifier, resultType)
	d.logger.Debug("dispatch.remote.start", "identifier", identifier, "call_id", p.ID)

	if err := d.host.BeginInvoke(ctx, p.ID, identifier, argsJSON); err != nil {
		d.pending.Take(p.ID)
		d.logger.Error("dispatch.remote.undeliverable", "identifier", identifier, "call_id", p.ID, "error", err)
		return nil, fmt.Errorf("%w: '%s': %w", completion.ErrUndeliverable, identifier, err)
	}
	return p, nil
}

func (d *Dispatcher) abandon(p *completion.Pending) {
	if _, ok := d.pending.Take(p.ID); ok {
		d.logger.Debug("dispatch.remote.abandoned", "identifier", p.Identifier, "call_id", p.ID)
	}
}
