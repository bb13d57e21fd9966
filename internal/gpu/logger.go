//go:build !nogpu

package gpu

import (
	"log/slog"
	"sync/atomic"
)

// loggerPtr holds the logger of mappers created without Config.Logger.
var loggerPtr atomic.Pointer[slog.Logger]

func init() { SetLogger(nil) }

func slogger() *slog.Logger { return loggerPtr.Load() }

// SetLogger updates the package-level logger. Mappers created afterwards
// without their own logger use it. Nil restores the silent default.
func SetLogger(l *slog.Logger) {
	if l == nil {
		l = slog.New(slog.DiscardHandler)
	}
	loggerPtr.Store(l)
}
