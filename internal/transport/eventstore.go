package transport

import (
	"sync"

	"github.com/ArcadeAI/arcade-mcp-go/internal/metrics"
)

// Event is one stored outbound payload with its stream-local id.
type Event struct {
	ID      int64
	Payload []byte
}

// EventStore keeps outbound payloads per stream so SSE clients can
// resume after a disconnect with Last-Event-ID. Implementations must be
// safe for concurrent use.
type EventStore interface {
	// CreateStream prepares a stream. Streams are also created lazily on
	// first store, so this is optional bookkeeping.
	CreateStream(streamID string)

	// StoreEvent appends a payload and returns its assigned event id.
	// Ids start at 1 and increase by one per stream.
	StoreEvent(streamID string, payload []byte) int64

	// ReplayEventsAfter returns events with id > lastID in order. A
	// negative lastID replays everything retained; limit 0 means no
	// limit.
	ReplayEventsAfter(streamID string, lastID int64, limit int) []Event

	// GetTailID returns the highest retained event id, 0 when the
	// stream is empty.
	GetTailID(streamID string) int64

	// DeleteStream drops the stream and its counter.
	DeleteStream(streamID string)
}

// MemoryEventStore is the in-process EventStore. Streams are trimmed
// FIFO once they exceed maxPerStream, so replay reaches at most that
// far back.
type MemoryEventStore struct {
	mu           sync.Mutex
	events       map[string][]Event
	counters     map[string]int64
	maxPerStream int
}

// NewMemoryEventStore creates a store retaining up to maxPerStream
// events per stream. Non-positive values fall back to 1000.
func NewMemoryEventStore(maxPerStream int) *MemoryEventStore {
	if maxPerStream <= 0 {
		maxPerStream = 1000
	}
	return &MemoryEventStore{
		events:       make(map[string][]Event),
		counters:     make(map[string]int64),
		maxPerStream: maxPerStream,
	}
}

func (s *MemoryEventStore) CreateStream(streamID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.events[streamID]; !ok {
		s.events[streamID] = nil
	}
}

func (s *MemoryEventStore) StoreEvent(streamID string, payload []byte) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.counters[streamID] + 1
	s.counters[streamID] = id
	stream := append(s.events[streamID], Event{ID: id, Payload: payload})
	if excess := len(stream) - s.maxPerStream; excess > 0 {
		stream = stream[excess:]
		for i := 0; i < excess; i++ {
			metrics.RecordEventTrim()
		}
	}
	s.events[streamID] = stream
	return id
}

func (s *MemoryEventStore) ReplayEventsAfter(streamID string, lastID int64, limit int) []Event {
	s.mu.Lock()
	defer s.mu.Unlock()

	stream := s.events[streamID]
	start := -1
	for i, ev := range stream {
		if ev.ID > lastID {
			start = i
			break
		}
	}
	if start < 0 {
		return nil
	}

	items := stream[start:]
	if limit > 0 && len(items) > limit {
		items = items[:limit]
	}
	out := make([]Event, len(items))
	copy(out, items)
	return out
}

func (s *MemoryEventStore) GetTailID(streamID string) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	stream := s.events[streamID]
	if len(stream) == 0 {
		return 0
	}
	return stream[len(stream)-1].ID
}

func (s *MemoryEventStore) DeleteStream(streamID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.events, streamID)
	delete(s.counters, streamID)
}
