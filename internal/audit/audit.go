// Package audit provides structured audit logging for tool invocations
// and other security-relevant operations. Events are emitted as JSON
// lines on stderr and optionally persisted to a SQLite store for later
// inspection. Audit logging is best-effort: failures to record an event
// never fail the operation being audited.
package audit

import (
	"log/slog"
	"os"
	"sync"
	"time"
)

// Operation identifies the kind of action being audited.
type Operation string

const (
	OpToolCall     Operation = "tool.call"
	OpToolAuth     Operation = "tool.auth"
	OpWorkerInvoke Operation = "worker.invoke"
	OpResourceRead Operation = "resource.read"
	OpPromptGet    Operation = "prompt.get"
	OpSessionOpen  Operation = "session.open"
	OpSessionClose Operation = "session.close"
	OpRetention    Operation = "retention.sweep"
)

// Event is a single audit record.
type Event struct {
	Timestamp  time.Time      `json:"timestamp"`
	Operation  Operation      `json:"operation"`
	Tool       string         `json:"tool,omitempty"`
	SessionID  string         `json:"session_id,omitempty"`
	UserID     string         `json:"user_id,omitempty"`
	RequestID  string         `json:"request_id,omitempty"`
	DurationMs int64          `json:"duration_ms,omitempty"`
	Success    bool           `json:"success"`
	Error      string         `json:"error,omitempty"`
	Details    map[string]any `json:"details,omitempty"`
}

// Logger emits audit events as structured JSON.
type Logger struct {
	slog *slog.Logger
}

var (
	defaultLogger *Logger
	defaultOnce   sync.Once
)

// Default returns the process-wide audit logger, creating it on first
// use. Events go to stderr so they never interleave with protocol
// traffic on stdout.
func Default() *Logger {
	defaultOnce.Do(func() {
		defaultLogger = New(os.Stderr)
	})
	return defaultLogger
}

// New creates an audit logger writing JSON lines to w.
func New(w *os.File) *Logger {
	handler := slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	})
	return &Logger{slog: slog.New(handler)}
}

// Log writes an audit event. A zero timestamp is filled with the
// current time.
func (l *Logger) Log(event Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	attrs := []slog.Attr{
		slog.String("operation", string(event.Operation)),
		slog.Bool("success", event.Success),
	}
	if event.Tool != "" {
		attrs = append(attrs, slog.String("tool", event.Tool))
	}
	if event.SessionID != "" {
		attrs = append(attrs, slog.String("session_id", event.SessionID))
	}
	if event.UserID != "" {
		attrs = append(attrs, slog.String("user_id", event.UserID))
	}
	if event.RequestID != "" {
		attrs = append(attrs, slog.String("request_id", event.RequestID))
	}
	if event.DurationMs > 0 {
		attrs = append(attrs, slog.Int64("duration_ms", event.DurationMs))
	}
	if event.Error != "" {
		attrs = append(attrs, slog.String("error", event.Error))
	}
	for k, v := range event.Details {
		attrs = append(attrs, slog.Any(k, maskSensitive(k, v)))
	}

	l.slog.LogAttrs(nil, slog.LevelInfo, "audit", attrs...)
}

// LogSuccess records a successful operation.
func (l *Logger) LogSuccess(op Operation, tool, sessionID, userID string, duration time.Duration) {
	l.Log(Event{
		Operation:  op,
		Tool:       tool,
		SessionID:  sessionID,
		UserID:     userID,
		DurationMs: duration.Milliseconds(),
		Success:    true,
	})
}

// LogFailure records a failed operation with its error text.
func (l *Logger) LogFailure(op Operation, tool, sessionID, userID string, duration time.Duration, errText string) {
	l.Log(Event{
		Operation:  op,
		Tool:       tool,
		SessionID:  sessionID,
		UserID:     userID,
		DurationMs: duration.Milliseconds(),
		Success:    false,
		Error:      errText,
	})
}

// maskSensitive redacts values for detail keys that look like
// credentials. Tokens keep a short prefix so operators can correlate
// them without exposing the full value.
func maskSensitive(key string, value any) any {
	switch key {
	case "token", "secret", "api_key", "authorization", "password":
		s, ok := value.(string)
		if !ok {
			return "***"
		}
		return maskToken(s)
	}
	return value
}

func maskToken(token string) string {
	if len(token) <= 12 {
		return "***"
	}
	return token[:8] + "..."
}

// Log writes an event to the default logger.
func Log(event Event) {
	Default().Log(event)
}

// LogSuccess records a successful operation on the default logger.
func LogSuccess(op Operation, tool, sessionID, userID string, duration time.Duration) {
	Default().LogSuccess(op, tool, sessionID, userID, duration)
}

// LogFailure records a failed operation on the default logger.
func LogFailure(op Operation, tool, sessionID, userID string, duration time.Duration, errText string) {
	Default().LogFailure(op, tool, sessionID, userID, duration, errText)
}
