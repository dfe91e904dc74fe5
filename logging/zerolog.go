package logging

import (
	"fmt"
	"io"
	"time"

	"github.com/rs/zerolog"
)

// ZerologAdapter wraps a zerolog.Logger to implement the Logger interface.
// Alternating key/value args become zerolog fields.
type ZerologAdapter struct {
	logger zerolog.Logger
}

// NewZerologAdapter creates a Logger from a zerolog.Logger.
func NewZerologAdapter(logger zerolog.Logger) Logger {
	return &ZerologAdapter{logger: logger}
}

// NewZerologLogger builds a zerolog-backed Logger writing to w at the given
// level. The "text" format renders through zerolog.ConsoleWriter, anything
// else as JSON lines.
func NewZerologLogger(w io.Writer, level LogLevel, format string) Logger {
	if format == "text" {
		w = zerolog.ConsoleWriter{Out: w, NoColor: true, TimeFormat: time.RFC3339}
	}
	return NewZerologAdapter(zerolog.New(w).Level(zerologLevel(level)).With().Timestamp().Logger())
}

// With returns an adapter whose records carry args as fields.
func (z *ZerologAdapter) With(args ...any) Logger {
	ctx := z.logger.With()
	for i := 0; i+1 < len(args); i += 2 {
		if key, ok := args[i].(string); ok {
			ctx = ctx.Interface(key, args[i+1])
		}
	}
	return &ZerologAdapter{logger: ctx.Logger()}
}

// Debug logs a debug message.
func (z *ZerologAdapter) Debug(msg string, args ...any) { z.emit(z.logger.Debug(), msg, args) }

// Info logs an informational message.
func (z *ZerologAdapter) Info(msg string, args ...any) { z.emit(z.logger.Info(), msg, args) }

// Warn logs a warning message.
func (z *ZerologAdapter) Warn(msg string, args ...any) { z.emit(z.logger.Warn(), msg, args) }

// Error logs an error message.
func (z *ZerologAdapter) Error(msg string, args ...any) { z.emit(z.logger.Error(), msg, args) }

func (z *ZerologAdapter) emit(ev *zerolog.Event, msg string, args []any) {
	if ev == nil {
		return
	}
	for i := 0; i < len(args); {
		key, ok := args[i].(string)
		if !ok || i+1 >= len(args) {
			ev = ev.Str("!BADKEY", fmt.Sprint(args[i]))
			i++
			continue
		}
		if err, isErr := args[i+1].(error); isErr {
			ev = ev.AnErr(key, err)
		} else {
			ev = ev.Interface(key, args[i+1])
		}
		i += 2
	}
	ev.Msg(msg)
}

func zerologLevel(l LogLevel) zerolog.Level {
	switch l {
	case LogLevelDebug:
		return zerolog.DebugLevel
	case LogLevelInfo:
		return zerolog.InfoLevel
	case LogLevelWarn:
		return zerolog.WarnLevel
	case LogLevelError:
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}
