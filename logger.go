package mockup

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
)

// nopHandler is a slog.Handler that silently discards all log records.
// The Enabled method returns false so the caller skips message formatting
// entirely, making disabled logging effectively zero-cost.
type nopHandler struct{}

func (nopHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (nopHandler) Handle(context.Context, slog.Record) error { return nil }
func (nopHandler) WithAttrs([]slog.Attr) slog.Handler        { return nopHandler{} }
func (nopHandler) WithGroup(string) slog.Handler             { return nopHandler{} }

// newNopLogger creates a logger that silently discards all output.
func newNopLogger() *slog.Logger { return slog.New(nopHandler{}) }

// loggerPtr stores the active logger. Accessed atomically so that
// SetLogger can be called concurrently with logging from any goroutine.
var loggerPtr atomic.Pointer[slog.Logger]

// loggerSinks receive every logger passed to SetLogger.
var (
	sinksMu     sync.RWMutex
	loggerSinks []func(*slog.Logger)
)

func init() {
	l := newNopLogger()
	loggerPtr.Store(l)
}

// SetLogger configures the logger for mockup and all its sub-packages.
// By default, mockup produces no log output. Call SetLogger to enable
// logging.
//
// SetLogger is safe for concurrent use: it stores the new logger atomically.
// Pass nil to disable logging (restore default silent behavior).
//
// Log levels used by mockup:
//   - [slog.LevelDebug]: internal diagnostics (cache hits, pipeline reuse, duplicate requests)
//   - [slog.LevelInfo]: lifecycle events (scene loaded, GPU adapter selected)
//   - [slog.LevelWarn]: non-fatal issues (CPU fallback, context loss, reinit retries)
//
// Example:
//
//	// Enable debug-level logging for full diagnostics:
//	mockup.SetLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
//	    Level: slog.LevelDebug,
//	})))
func SetLogger(l *slog.Logger) {
	if l == nil {
		l = newNopLogger()
	}
	loggerPtr.Store(l)

	sinksMu.RLock()
	sinks := loggerSinks
	sinksMu.RUnlock()
	for _, fn := range sinks {
		fn(l)
	}
}

// Logger returns the current logger used by mockup.
// Sub-packages (twodee, threedee, gpu) call this to share the same
// logger configuration without introducing import cycles.
//
// Logger is safe for concurrent use.
func Logger() *slog.Logger {
	return loggerPtr.Load()
}

// RegisterLoggerSink registers fn to receive the logger on every
// SetLogger call. fn is called once immediately with the current logger.
// Packages keeping a logger of their own (the GPU compositor) use it.
func RegisterLoggerSink(fn func(*slog.Logger)) {
	if fn == nil {
		return
	}
	sinksMu.Lock()
	loggerSinks = append(loggerSinks, fn)
	sinksMu.Unlock()
	fn(Logger())
}
