package depthfx

import (
	"context"
	"log/slog"
	"sync/atomic"

	"github.com/gogpu/depthfx/backend"
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

func init() {
	l := newNopLogger()
	loggerPtr.Store(l)
}

// SetLogger configures the logger for depthfx and its sub-packages.
// By default, depthfx produces no log output. Call SetLogger to enable
// logging.
//
// SetLogger is safe for concurrent use: it stores the new logger
// atomically. Pass nil to restore the default silent behavior. Backends
// created after the call pick up the new logger; running renderers keep
// the logger they were built with.
//
// Log levels used by depthfx:
//   - [slog.LevelDebug]: internal diagnostics (pipeline state, buffer sizes)
//   - [slog.LevelInfo]: important lifecycle events (backend selected, device opened)
//   - [slog.LevelWarn]: non-fatal issues (skipped frames, dropped inferences, CPU fallback)
//
// Example:
//
//	// Enable info-level logging to stderr:
//	depthfx.SetLogger(slog.Default())
//
//	// Enable debug-level logging for full diagnostics:
//	depthfx.SetLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
//	    Level: slog.LevelDebug,
//	})))
func SetLogger(l *slog.Logger) {
	if l == nil {
		l = newNopLogger()
	}
	loggerPtr.Store(l)
}

// Logger returns the current logger used by depthfx. Sub-packages and
// backends share the same logger configuration through injection, so
// there is exactly one place to enable output.
//
// Logger is safe for concurrent use.
func Logger() *slog.Logger {
	return loggerPtr.Load()
}

// loggerSetter is implemented by backends that accept a logger.
type loggerSetter interface {
	SetLogger(*slog.Logger)
}

// propagateLogger hands the current logger to a backend if it supports
// one. Called when a renderer acquires its backend so backend-side
// diagnostics land in the same stream.
func propagateLogger(b backend.PipelineBackend) {
	if ls, ok := b.(loggerSetter); ok {
		ls.SetLogger(Logger())
	}
}
