package logging

import "time"

// Log events shared by every Logger implementation.
const (
	EventInvokeSuccess       = "dispatch.invoke.success"
	EventInvokeError         = "dispatch.invoke.error"
	EventCompletionDelivered = "completion.delivered"
	EventCompletionOrphan    = "completion.orphan"
)

// CallRecorder is implemented by loggers with dedicated invocation and
// completion records (InteropLogger).
type CallRecorder interface {
	LogInvocation(identifier string, dur time.Duration, err error)
	LogCompletion(callID string, success, orphan bool)
}

// Scoped returns l bound to component and, when non-empty, sessionID.
// InteropLogger carries them as fixed fields; adapters with a With method
// derive a child logger; any other Logger gets them prepended to each record.
func Scoped(l Logger, component, sessionID string) Logger {
	if l == nil {
		return NoOpLogger{}
	}
	switch v := l.(type) {
	case NoOpLogger:
		return v
	case *InteropLogger:
		nl := v.WithComponent(component)
		if sessionID != "" {
			nl = nl.WithSession(sessionID)
		}
		return nl
	}

	args := []any{"component", component}
	if sessionID != "" {
		args = append(args, "session_id", sessionID)
	}
	if w, ok := l.(interface{ With(args ...any) Logger }); ok {
		return w.With(args...)
	}
	return &scopedLogger{next: l, args: args}
}

// RecordInvocation logs the outcome of one dispatched call on l.
func RecordInvocation(l Logger, identifier string, dur time.Duration, err error) {
	if r, ok := l.(CallRecorder); ok {
		r.LogInvocation(identifier, dur, err)
		return
	}
	if err != nil {
		l.Error(EventInvokeError, "identifier", identifier, "duration", dur, "error", err)
		return
	}
	l.Info(EventInvokeSuccess, "identifier", identifier, "duration", dur)
}

// RecordCompletion logs an inbound completion report on l.
func RecordCompletion(l Logger, callID string, success, orphan bool) {
	if r, ok := l.(CallRecorder); ok {
		r.LogCompletion(callID, success, orphan)
		return
	}
	msg := EventCompletionDelivered
	if orphan {
		msg = EventCompletionOrphan
	}
	l.Debug(msg, "call_id", callID, "success", success)
}

type scopedLogger struct {
	next Logger
	args []any
}

func (s *scopedLogger) with(args []any) []any {
	return append(append(make([]any, 0, len(s.args)+len(args)), s.args...), args...)
}

func (s *scopedLogger) Debug(msg string, args ...any) { s.next.Debug(msg, s.with(args)...) }
func (s *scopedLogger) Info(msg string, args ...any)  { s.next.Info(msg, s.with(args)...) }
func (s *scopedLogger) Warn(msg string, args ...any)  { s.next.Warn(msg, s.with(args)...) }
func (s *scopedLogger) Error(msg string, args ...any) { s.next.Error(msg, s.with(args)...) }
