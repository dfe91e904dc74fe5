package testutil

import (
	"context"
	"sync"
	"time"
)

// RemoteCall is an outbound call observed by a RecordingHost.
type RemoteCall struct {
	CallID     int64
	Identifier string
	Args       string
}

// RecordingHost is an in-memory dispatch.Host for tests. It records inbound
// completion reports by correlation id and outbound calls in order. Set
// OnBeginInvoke to answer outbound calls (for example by feeding a report
// back into the dispatcher) or to simulate delivery failures.
//
//	host := testutil.NewRecordingHost()
//	d := dispatch.New(reg, host)
//	d.BeginInvoke(ctx, req, "1")
//	report, ok := host.WaitReport("1", time.Second)
type RecordingHost struct {
	OnBeginInvoke func(callID int64, identifier, args string) error

	mu      sync.Mutex
	calls   []RemoteCall
	reports map[string]string
	waiters map[string][]chan string
}

// NewRecordingHost creates an empty RecordingHost.
func NewRecordingHost() *RecordingHost {
	return &RecordingHost{
		reports: map[string]string{},
		waiters: map[string][]chan string{},
	}
}

// BeginInvoke records the call and delegates to OnBeginInvoke when set.
func (h *RecordingHost) BeginInvoke(_ context.Context, callID int64, identifier, args string) error {
	h.mu.Lock()
	h.calls = append(h.calls, RemoteCall{CallID: callID, Identifier: identifier, Args: args})
	fn := h.OnBeginInvoke
	h.mu.Unlock()

	if fn != nil {
		return fn(callID, identifier, args)
	}
	return nil
}

// EndInvoke records the report and wakes waiters.
func (h *RecordingHost) EndInvoke(_ context.Context, correlationID, report string) {
	h.mu.Lock()
	h.reports[correlationID] = report
	waiters := h.waiters[correlationID]
	delete(h.waiters, correlationID)
	h.mu.Unlock()

	for _, w := range waiters {
		w <- report
	}
}

// Report returns the report recorded for correlationID, if any.
func (h *RecordingHost) Report(correlationID string) (string, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	r, ok := h.reports[correlationID]
	return r, ok
}

// Reports returns the number of reports recorded.
func (h *RecordingHost) Reports() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.reports)
}

// WaitReport blocks until a report for correlationID arrives or timeout elapses.
func (h *RecordingHost) WaitReport(correlationID string, timeout time.Duration) (string, bool) {
	h.mu.Lock()
	if r, ok := h.reports[correlationID]; ok {
		h.mu.Unlock()
		return r, true
	}
	ch := make(chan string, 1)
	h.waiters[correlationID] = append(h.waiters[correlationID], ch)
	h.mu.Unlock()

	select {
	case r := <-ch:
		return r, true
	case <-time.After(timeout):
		return "", false
	}
}

// Calls returns the outbound calls recorded so far.
func (h *RecordingHost) Calls() []RemoteCall {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]RemoteCall(nil), h.calls...)
}
