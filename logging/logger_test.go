package logging

import (
	"bytes"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	lvl, err := ParseLevel("DEBUG")
	require.NoError(t, err)
	assert.Equal(t, LogLevelDebug, lvl)

	lvl, err = ParseLevel("warning")
	require.NoError(t, err)
	assert.Equal(t, LogLevelWarn, lvl)

	lvl, err = ParseLevel("")
	require.NoError(t, err)
	assert.Equal(t, LogLevelInfo, lvl)

	_, err = ParseLevel("loud")
	assert.Error(t, err)
}

func TestInteropLogger_KeyValueAttrs(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogger(&LoggerConfig{Level: LogLevelDebug, Format: "json", Output: &buf}).
		WithComponent("dispatch").
		WithSession("s-1")

	l.Info("dispatch.invoke.start", "identifier", "Add", "args", 2)

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "dispatch.invoke.start", rec["msg"])
	assert.Equal(t, "dispatch", rec["component"])
	assert.Equal(t, "s-1", rec["session_id"])
	assert.Equal(t, "Add", rec["identifier"])
	assert.Equal(t, float64(2), rec["args"])
}

func TestInteropLogger_LevelFilter(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogger(&LoggerConfig{Level: LogLevelWarn, Format: "text", Output: &buf})
	l.Info("hidden")
	l.Debug("hidden")
	assert.Empty(t, buf.String())

	l.Warn("shown", "k", "v")
	assert.Contains(t, buf.String(), "shown")
	assert.Contains(t, buf.String(), "k=v")
}

func TestInteropLogger_LogInvocation(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogger(&LoggerConfig{Level: LogLevelInfo, Format: "text", Output: &buf})
	l.LogInvocation("Add", 5*time.Millisecond, errors.New("boom"))
	out := buf.String()
	assert.Contains(t, out, "level=ERROR")
	assert.Contains(t, out, EventInvokeError)
	assert.Contains(t, out, "identifier=Add")
	assert.Contains(t, out, "error=boom")
}

func TestZerologAdapter(t *testing.T) {
	var buf bytes.Buffer
	l := NewZerologLogger(&buf, LogLevelInfo, "json")
	l.Debug("hidden")
	l.Info("registry.module.built", "module", "M", "methods", 2)
	l.Error("dispatch.invoke.error", "error", errors.New("boom"), "dangling")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)

	var rec map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &rec))
	assert.Equal(t, "registry.module.built", rec["message"])
	assert.Equal(t, "M", rec["module"])
	assert.Equal(t, float64(2), rec["methods"])

	require.NoError(t, json.Unmarshal([]byte(lines[1]), &rec))
	assert.Equal(t, "boom", rec["error"])
	assert.Equal(t, "dangling", rec["!BADKEY"])
}

func TestNoOpLogger(t *testing.T) {
	var l Logger = NoOpLogger{}
	l.Info("nothing", "k", "v")
}

func TestScoped(t *testing.T) {
	decode := func(t *testing.T, buf *bytes.Buffer) map[string]any {
		t.Helper()
		var rec map[string]any
		require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
		buf.Reset()
		return rec
	}

	t.Run("interop logger", func(t *testing.T) {
		var buf bytes.Buffer
		l := Scoped(NewSlogLogger(&buf, LogLevelDebug, "json", false), "dispatch", "s-1")
		l.Info("dispatch.release", "handle", 3)
		rec := decode(t, &buf)
		assert.Equal(t, "dispatch", rec["component"])
		assert.Equal(t, "s-1", rec["session_id"])
		assert.Equal(t, float64(3), rec["handle"])
	})

	t.Run("slog adapter", func(t *testing.T) {
		var buf bytes.Buffer
		l := Scoped(NewSlogAdapter(slog.New(slog.NewJSONHandler(&buf, nil))), "registry", "")
		l.Info("registry.module.built")
		rec := decode(t, &buf)
		assert.Equal(t, "registry", rec["component"])
		assert.NotContains(t, rec, "session_id")
	})

	t.Run("zerolog adapter", func(t *testing.T) {
		var buf bytes.Buffer
		l := Scoped(NewZerologLogger(&buf, LogLevelInfo, "json"), "session", "s-2")
		l.Info("session.opened")
		rec := decode(t, &buf)
		assert.Equal(t, "session", rec["component"])
		assert.Equal(t, "s-2", rec["session_id"])
	})

	t.Run("foreign logger", func(t *testing.T) {
		rec := &recordingLogger{}
		Scoped(rec, "dispatch", "s-3").Warn("dispatch.release.failed", "handle", 9)
		assert.Equal(t, []any{"component", "dispatch", "session_id", "s-3", "handle", 9}, rec.args)
	})

	assert.Equal(t, NoOpLogger{}, Scoped(nil, "x", ""))
}

func TestRecordInvocationAndCompletion(t *testing.T) {
	var buf bytes.Buffer
	l := Scoped(NewSlogLogger(&buf, LogLevelDebug, "text", false), "dispatch", "s-1")

	RecordInvocation(l, "Add", time.Millisecond, nil)
	RecordCompletion(l, "4", true, false)
	RecordCompletion(l, "5", false, true)
	out := buf.String()
	assert.Contains(t, out, "msg="+EventInvokeSuccess)
	assert.Contains(t, out, "msg="+EventCompletionDelivered+" component=dispatch session_id=s-1 call_id=4")
	assert.Contains(t, out, "msg="+EventCompletionOrphan)

	rec := &recordingLogger{}
	RecordInvocation(rec, "Div", time.Millisecond, errors.New("boom"))
	assert.Equal(t, EventInvokeError, rec.msg)
	RecordCompletion(rec, "7", true, true)
	assert.Equal(t, EventCompletionOrphan, rec.msg)
}

type recordingLogger struct {
	msg  string
	args []any
}

func (r *recordingLogger) record(msg string, args []any) { r.msg, r.args = msg, args }

func (r *recordingLogger) Debug(msg string, args ...any) { r.record(msg, args) }
func (r *recordingLogger) Info(msg string, args ...any)  { r.record(msg, args) }
func (r *recordingLogger) Warn(msg string, args ...any)  { r.record(msg, args) }
func (r *recordingLogger) Error(msg string, args ...any) { r.record(msg, args) }
