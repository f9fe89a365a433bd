// Package logger provides structured logging setup for desbank.
package logger

import (
	"log/slog"
	"os"
	"strings"

	"github.com/formulab/desbank/internal/config"
)

const (
	asyncQueueSize = 1024
	asyncWorkers   = 1
)

// New builds a *slog.Logger from the Logging config: JSON records to
// stdout, a "service" attribute on every record, and optional async
// buffering (see AsyncHandler). Callers must Close the returned Closer
// on shutdown to flush buffered records; in synchronous mode it is a
// no-op.
func New(cfg config.Logging) (*slog.Logger, Closer) {
	var (
		handler slog.Handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: parseLevel(cfg.Level),
		})
		closer Closer = nopCloser{}
	)
	if cfg.Async {
		async := NewAsyncHandler(handler, asyncQueueSize, asyncWorkers)
		handler, closer = async, async
	}
	return slog.New(handler).With("service", cfg.Service), closer
}

// parseLevel maps a config string to a slog.Level, defaulting to info.
func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
