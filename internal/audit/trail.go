package audit

import (
	"time"

	"github.com/ArcadeAI/arcade-mcp-go/internal/logger"
)

// Trail combines structured audit logging with optional persistence.
// A nil Trail is valid and records nothing.
type Trail struct {
	logger *Logger
	store  *Store
}

// NewTrail creates a trail backed by the default audit logger. store
// may be nil to disable persistence.
func NewTrail(store *Store) *Trail {
	return &Trail{logger: Default(), store: store}
}

// Record logs the event and, when a store is configured, persists it.
// Persistence failures are logged but never propagated.
func (t *Trail) Record(event Event) {
	if t == nil {
		return
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	t.logger.Log(event)
	if t.store != nil {
		if err := t.store.Insert(event); err != nil {
			logger.Warn("Failed to persist audit event: %v", err)
		}
	}
}

// Close releases the underlying store, if any.
func (t *Trail) Close() error {
	if t == nil || t.store == nil {
		return nil
	}
	return t.store.Close()
}
