package server

import "sync"

// LogEntry is one tool log line captured during a call.
type LogEntry struct {
	Level   string `json:"level"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
	Logger  string `json:"logger,omitempty"`
}

// LogCapture collects tool log output for transports that cannot push
// notifications mid-call. Captured entries ride back on the result
// under _meta.logs.
type LogCapture struct {
	mu      sync.Mutex
	entries []LogEntry
}

// NewLogCapture creates an empty capture buffer.
func NewLogCapture() *LogCapture {
	return &LogCapture{}
}

// Log records one entry.
func (c *LogCapture) Log(level, message string) {
	c.mu.Lock()
	c.entries = append(c.entries, LogEntry{Level: level, Message: message})
	c.mu.Unlock()
}

// Report drops progress updates. Single-shot transports have nowhere
// to deliver them.
func (c *LogCapture) Report(progress, total float64, message string) {}

// Entries returns a copy of everything captured so far.
func (c *LogCapture) Entries() []LogEntry {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]LogEntry, len(c.entries))
	copy(out, c.entries)
	return out
}

// sessionToolLogger streams tool log lines to the calling client as
// notifications/message, subject to the client's log level floor.
type sessionToolLogger struct {
	nm       *NotificationManager
	clientID string
	toolName string
}

func (l *sessionToolLogger) Log(level, message string) {
	l.nm.NotifyMessage(level, message, l.toolName, []string{l.clientID})
}

// sessionProgressReporter streams progress updates to the calling
// client. Updates are sent immediately so ordering is preserved.
type sessionProgressReporter struct {
	nm       *NotificationManager
	clientID string
	token    any
}

func (r *sessionProgressReporter) Report(progress, total float64, message string) {
	if r.token == nil {
		return
	}
	r.nm.NotifyProgress(r.token, progress, total, message, []string{r.clientID}, "", 0)
}
