package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/interopmesh/completion"
	"github.com/hupe1980/interopmesh/core"
	"github.com/hupe1980/interopmesh/internal/testutil"
	"github.com/hupe1980/interopmesh/registry"
)

// loopback answers every outbound call by feeding a report back into d.
func loopback(d **Dispatcher, answer func(identifier, args string) (bool, string)) func(int64, string, string) error {
	return func(callID int64, identifier, args string) error {
		ok, payload := answer(identifier, args)
		var report string
		if ok {
			report = fmt.Sprintf("[%d,true,%s]", callID, payload)
		} else {
			msg, _ := json.Marshal(payload)
			report = fmt.Sprintf("[%d,false,%s]", callID, msg)
		}
		go func() { _ = (*d).EndInvoke(report) }()
		return nil
	}
}

func TestInvokeAs_Success(t *testing.T) {
	host := testutil.NewRecordingHost()
	var d *Dispatcher
	host.OnBeginInvoke = loopback(&d, func(identifier, args string) (bool, string) {
		assert.Equal(t, "host.sum", identifier)
		assert.JSONEq(t, "[1,2,3]", args)
		return true, "6"
	})
	d = New(registry.New(), host)

	n, err := InvokeAs[int](context.Background(), d, "host.sum", 1, 2, 3)
	require.NoError(t, err)
	assert.Equal(t, 6, n)
	assert.Equal(t, 0, d.PendingCalls())
}

func TestInvokeAs_RemoteFailure(t *testing.T) {
	host := testutil.NewRecordingHost()
	var d *Dispatcher
	host.OnBeginInvoke = loopback(&d, func(string, string) (bool, string) {
		return false, "quota exceeded"
	})
	d = New(registry.New(), host)

	_, err := InvokeAs[string](context.Background(), d, "host.fetch")
	require.Error(t, err)
	var remote *core.RemoteError
	require.True(t, errors.As(err, &remote))
	assert.Equal(t, "host.fetch", remote.Identifier)
	assert.Equal(t, "quota exceeded", err.Error())
}

func TestInvokeAs_HandleArgumentsAndResults(t *testing.T) {
	host := testutil.NewRecordingHost()
	var d *Dispatcher
	host.OnBeginInvoke = loopback(&d, func(_ string, args string) (bool, string) {
		// Echo the handle back.
		var parts []json.RawMessage
		require.NoError(t, json.Unmarshal([]byte(args), &parts))
		return true, string(parts[0])
	})
	d = New(registry.New(), host)

	acct := core.NewRef(&account{Owner: "grace"})
	got, err := InvokeAs[*core.Ref[*account]](context.Background(), d, "host.echo", acct)
	require.NoError(t, err)
	assert.Same(t, acct, got)
	assert.Equal(t, core.Handle(1), acct.Handle())
	assert.Equal(t, 1, d.Refs().Len())
}

func TestInvokeAs_TimeoutAbandonsCall(t *testing.T) {
	host := testutil.NewRecordingHost()
	d := New(registry.New(), host, func(o *Options) { o.CallTimeout = 20 * time.Millisecond })

	_, err := InvokeAs[int](context.Background(), d, "host.slow")
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 0, d.PendingCalls())

	calls := host.Calls()
	require.Len(t, calls, 1)

	// A late report is ignored.
	require.NoError(t, d.EndInvoke(fmt.Sprintf("[%d,true,1]", calls[0].CallID)))
}

func TestInvokeAs_Undeliverable(t *testing.T) {
	host := testutil.NewRecordingHost()
	host.OnBeginInvoke = func(int64, string, string) error { return errors.New("pipe closed") }
	d := New(registry.New(), host)

	_, err := InvokeAs[int](context.Background(), d, "host.any")
	require.Error(t, err)
	assert.ErrorIs(t, err, completion.ErrUndeliverable)
	assert.Contains(t, err.Error(), "pipe closed")
	assert.Equal(t, 0, d.PendingCalls())
}

func TestInvokeVoid(t *testing.T) {
	host := testutil.NewRecordingHost()
	var d *Dispatcher
	host.OnBeginInvoke = loopback(&d, func(string, string) (bool, string) { return true, "null" })
	d = New(registry.New(), host)

	require.NoError(t, InvokeVoid(context.Background(), d, "host.log", "hello"))
	assert.Equal(t, `["hello"]`, host.Calls()[0].Args)
}

func TestEndInvoke(t *testing.T) {
	host := testutil.NewRecordingHost()
	d := New(registry.New(), host)
	ctx := context.Background()

	t.Run("malformed reports are rejected before any state change", func(t *testing.T) {
		fut, err := d.InvokeRemote(ctx, "host.a", reflect.TypeFor[int]())
		require.NoError(t, err)

		for _, bad := range []string{"", "{}", "[1,true]", `["x",true,1]`, `[1,"yes",1]`, "[1,true,1,2]"} {
			assert.Error(t, d.EndInvoke(bad), bad)
		}
		assert.Equal(t, 1, d.PendingCalls())

		require.NoError(t, d.EndInvoke("[1,true,7]"))
		v, err := fut.Wait(ctx)
		require.NoError(t, err)
		assert.Equal(t, 7, v)
	})

	t.Run("orphan report is a no-op", func(t *testing.T) {
		assert.NoError(t, d.EndInvoke("[999,true,1]"))
		assert.NoError(t, d.EndInvoke(`[1,false,"again"]`))
	})

	t.Run("failure rejects the pending call", func(t *testing.T) {
		fut, err := d.InvokeRemote(ctx, "host.b", nil)
		require.NoError(t, err)
		id := host.Calls()[len(host.Calls())-1].CallID

		require.NoError(t, d.EndInvoke(fmt.Sprintf(`[%d,false,"boom"]`, id)))
		_, err = fut.Wait(ctx)
		assert.EqualError(t, err, "boom")
	})

	t.Run("undecodable result rejects the pending call", func(t *testing.T) {
		fut, err := d.InvokeRemote(ctx, "host.c", reflect.TypeFor[int]())
		require.NoError(t, err)
		id := host.Calls()[len(host.Calls())-1].CallID

		require.NoError(t, d.EndInvoke(fmt.Sprintf(`[%d,true,"seven"]`, id)))
		_, err = fut.Wait(ctx)
		assert.Error(t, err)
	})

	t.Run("untyped result is raw JSON", func(t *testing.T) {
		fut, err := d.InvokeRemote(ctx, "host.d", nil)
		require.NoError(t, err)
		id := host.Calls()[len(host.Calls())-1].CallID

		require.NoError(t, d.EndInvoke(fmt.Sprintf(`[%d,true,{"a":1}]`, id)))
		v, err := fut.Wait(ctx)
		require.NoError(t, err)
		assert.JSONEq(t, `{"a":1}`, string(v.(json.RawMessage)))
	})
}

func TestInvokeRemote_ClosedSession(t *testing.T) {
	d := New(registry.New(), testutil.NewRecordingHost())
	require.NoError(t, d.Close())

	_, err := d.InvokeRemote(context.Background(), "host.a", nil)
	assert.ErrorIs(t, err, core.ErrSessionClosed)
}
