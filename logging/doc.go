// Package logging provides a minimal logging interface and adapters for the
// interop dispatcher.
//
// The Logger interface defines the standard logging methods (Debug, Info, Warn, Error)
// that the registry, dispatcher and session manager use for observability. This package includes:
//
//   - Logger interface for dependency injection
//   - SlogAdapter wrapping Go's structured logging
//   - ZerologAdapter wrapping a zerolog.Logger
//   - InteropLogger, the slog-backed default with component/session fields
//   - NoOpLogger for silent operation (testing, minimal setups)
//
// Scoped binds a logger to a component and session; RecordInvocation and
// RecordCompletion write the per-call records.
//
// Usage:
//
//	logger := logging.NewSlogLogger(os.Stderr, logging.LogLevelInfo, "json", false)
//	mesh, err := interopmesh.New(func(o *interopmesh.Options) { o.Logger = logger })
//
// Messages are short dotted event names (dispatch.invoke.success) followed by
// alternating key/value pairs.
package logging
