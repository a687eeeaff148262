package sparsevolume

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/gogpu/sparsevolume/backend"
	"github.com/gogpu/sparsevolume/gpucore"
	"github.com/gogpu/sparsevolume/mesh"
	"github.com/gogpu/sparsevolume/pipeline"
	"github.com/gogpu/sparsevolume/resource"
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

// device is the most recent device handed to New, kept so SetLogger can
// reach it.
var (
	deviceMu sync.RWMutex
	device   gpucore.Device
)

func init() {
	l := newNopLogger()
	loggerPtr.Store(l)
}

// SetLogger configures the logger for sparsevolume and all its
// sub-packages. By default, sparsevolume produces no log output.
//
// SetLogger is safe for concurrent use: it stores the new logger atomically.
// Pass nil to disable logging (restore default silent behavior).
//
// Log levels used by sparsevolume:
//   - [slog.LevelDebug]: resource sizes, pass boundaries, layout cache misses
//   - [slog.LevelInfo]: Init summary, backend selection
//   - [slog.LevelWarn]: mesh import failure, release errors
//
// Example:
//
//	sparsevolume.SetLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
//	    Level: slog.LevelDebug,
//	})))
func SetLogger(l *slog.Logger) {
	if l == nil {
		l = newNopLogger()
	}
	loggerPtr.Store(l)

	resource.SetLogger(l)
	pipeline.SetLogger(l)
	mesh.SetLogger(l)
	backend.SetLogger(l)

	deviceMu.RLock()
	d := device
	deviceMu.RUnlock()
	if d != nil {
		propagateLogger(d, l)
	}
}

// Logger returns the current logger used by sparsevolume.
//
// Logger is safe for concurrent use.
func Logger() *slog.Logger {
	return loggerPtr.Load()
}

// loggerSetter is implemented by devices that accept a logger.
type loggerSetter interface {
	SetLogger(*slog.Logger)
}

// propagateLogger passes the logger to a device if it implements the
// loggerSetter interface.
func propagateLogger(d gpucore.Device, l *slog.Logger) {
	if ls, ok := d.(loggerSetter); ok {
		ls.SetLogger(l)
	}
}

// trackDevice remembers d for later SetLogger calls and hands it the
// current logger.
func trackDevice(d gpucore.Device) {
	deviceMu.Lock()
	device = d
	deviceMu.Unlock()
	propagateLogger(d, Logger())
}
