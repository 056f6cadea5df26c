package logging

import (
	"fmt"
	"io"
	"log/slog"
	"strings"
)

// CriticalError is the panic value raised by Critical. Neither Spin nor the
// pool recovers it; the spin drivers convert it into a fatal-class error only
// when a user callable raises it.
type CriticalError struct {
	Message string
}

// Error implements the error interface
func (e *CriticalError) Error() string {
	return e.Message
}

// ParseLevel converts a config-file level string into a slog.Level.
// Trace has no slog equivalent and maps onto debug.
func ParseLevel(level string) (slog.Level, error) {
	switch strings.ToLower(level) {
	case "trace", "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error", "critical":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown log level %q", level)
	}
}

// NewLogger builds a text-handler slog.Logger writing to w at the given level.
func NewLogger(w io.Writer, level slog.Level) *slog.Logger {
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

// Default returns logger if non-nil, otherwise slog.Default().
func Default(logger *slog.Logger) *slog.Logger {
	if logger != nil {
		return logger
	}
	return slog.Default()
}

// Critical logs msg at error level with the given attrs and panics with a
// *CriticalError. Callers do not return from Critical.
func Critical(logger *slog.Logger, msg string, args ...any) {
	Default(logger).Error(msg, args...)
	panic(&CriticalError{Message: msg})
}

// Criticalf is Critical with fmt-style formatting.
func Criticalf(logger *slog.Logger, format string, a ...any) {
	Critical(logger, fmt.Sprintf(format, a...))
}
