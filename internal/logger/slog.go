package logger

import (
	"context"
	"fmt"
	"io"
	"log"
	"log/slog"
)

// JSON mode swaps the prefixed text lines for slog JSON records on the
// same stderr and file sinks. The audit trail keeps its own handler for
// tool-call events; this covers process diagnostics when logging.json
// is set.

// newJSONLogger builds the structured handler for JSON mode. Debug
// filtering happens in the level functions, so the handler passes every
// level through.
func newJSONLogger(w io.Writer) *slog.Logger {
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))
}

// logf writes one record through the active backend. Callers hold mu.
func (l *Logger) logf(level slog.Level, plain *log.Logger, format string, v ...interface{}) {
	if l.slogger != nil {
		l.slogger.Log(context.Background(), level, fmt.Sprintf(format, v...))
		return
	}
	plain.Printf(format, v...)
}
