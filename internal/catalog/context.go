package catalog

// ToolContext carries per-invocation state into tool handlers: the
// resolved user identity, requested secrets and metadata, the
// authorization outcome, and server capabilities for logging and
// progress. Handlers receive it explicitly; there is no hidden global.
type ToolContext struct {
	UserID    string
	UserEmail string

	Metadata map[string]string
	Secrets  map[string]string

	Authorization *AuthorizationContext

	Logger   ToolLogger
	Progress ProgressReporter

	// ProgressToken is the client-supplied token for progress
	// notifications, nil when the client did not ask for progress.
	ProgressToken any
}

// AuthorizationContext is the outcome of a completed authorization.
type AuthorizationContext struct {
	Token      string
	UserID     string
	ProviderID string
	Scopes     []string
}

// ToolLogger forwards tool log output to the connected client. Sends are
// best effort; failures never surface into the tool.
type ToolLogger interface {
	Log(level, message string)
}

// ProgressReporter forwards progress updates to the connected client.
// Sends are best effort; failures never surface into the tool.
type ProgressReporter interface {
	Report(progress, total float64, message string)
}

// Secret returns a secret by key.
func (tc *ToolContext) Secret(key string) (string, bool) {
	v, ok := tc.Secrets[key]
	return v, ok
}

// Meta returns a metadata value by key.
func (tc *ToolContext) Meta(key string) (string, bool) {
	v, ok := tc.Metadata[key]
	return v, ok
}

// Log emits a log line toward the client. Safe on a nil logger.
func (tc *ToolContext) Log(level, message string) {
	if tc.Logger != nil {
		tc.Logger.Log(level, message)
	}
}

// ReportProgress emits a progress update toward the client. Safe on a
// nil reporter.
func (tc *ToolContext) ReportProgress(progress, total float64, message string) {
	if tc.Progress != nil {
		tc.Progress.Report(progress, total, message)
	}
}
