package transport

import (
	"fmt"
	"testing"
)

func TestStoreEventAssignsSequentialIDs(t *testing.T) {
	store := NewMemoryEventStore(100)
	store.CreateStream("s1")

	for want := int64(1); want <= 3; want++ {
		got := store.StoreEvent("s1", []byte(fmt.Sprintf("event-%d", want)))
		if got != want {
			t.Errorf("StoreEvent() id = %d, want %d", got, want)
		}
	}
	if got := store.GetTailID("s1"); got != 3 {
		t.Errorf("GetTailID() = %d, want 3", got)
	}
}

func TestStreamsCountIndependently(t *testing.T) {
	store := NewMemoryEventStore(100)

	store.StoreEvent("a", []byte("x"))
	store.StoreEvent("a", []byte("y"))
	if got := store.StoreEvent("b", []byte("z")); got != 1 {
		t.Errorf("StoreEvent() on fresh stream id = %d, want 1", got)
	}
}

func TestReplayEventsAfter(t *testing.T) {
	store := NewMemoryEventStore(100)
	for i := 1; i <= 5; i++ {
		store.StoreEvent("s1", []byte(fmt.Sprintf("event-%d", i)))
	}

	events := store.ReplayEventsAfter("s1", 2, 0)
	if len(events) != 3 {
		t.Fatalf("ReplayEventsAfter(2) returned %d events, want 3", len(events))
	}
	if events[0].ID != 3 || string(events[0].Payload) != "event-3" {
		t.Errorf("first replayed event = %d %q, want 3 \"event-3\"", events[0].ID, events[0].Payload)
	}

	if events := store.ReplayEventsAfter("s1", 5, 0); len(events) != 0 {
		t.Errorf("ReplayEventsAfter(tail) returned %d events, want 0", len(events))
	}
	if events := store.ReplayEventsAfter("s1", 0, 0); len(events) != 5 {
		t.Errorf("ReplayEventsAfter(0) returned %d events, want 5", len(events))
	}
	if events := store.ReplayEventsAfter("missing", 0, 0); len(events) != 0 {
		t.Errorf("ReplayEventsAfter on unknown stream returned %d events, want 0", len(events))
	}
}

func TestReplayEventsAfterLimit(t *testing.T) {
	store := NewMemoryEventStore(100)
	for i := 1; i <= 5; i++ {
		store.StoreEvent("s1", []byte("e"))
	}

	events := store.ReplayEventsAfter("s1", 0, 2)
	if len(events) != 2 {
		t.Fatalf("ReplayEventsAfter(0, limit 2) returned %d events, want 2", len(events))
	}
	if events[0].ID != 1 || events[1].ID != 2 {
		t.Errorf("replayed ids = %d, %d, want 1, 2", events[0].ID, events[1].ID)
	}
}

func TestStoreEventTrimsOldest(t *testing.T) {
	store := NewMemoryEventStore(3)
	for i := 1; i <= 5; i++ {
		store.StoreEvent("s1", []byte(fmt.Sprintf("event-%d", i)))
	}

	events := store.ReplayEventsAfter("s1", 0, 0)
	if len(events) != 3 {
		t.Fatalf("retained %d events, want 3", len(events))
	}
	if events[0].ID != 3 {
		t.Errorf("oldest retained id = %d, want 3", events[0].ID)
	}
	// Trimming never rewinds the counter.
	if got := store.StoreEvent("s1", []byte("event-6")); got != 6 {
		t.Errorf("StoreEvent() after trim id = %d, want 6", got)
	}
}

func TestGetTailIDEmptyStream(t *testing.T) {
	store := NewMemoryEventStore(100)
	if got := store.GetTailID("nope"); got != 0 {
		t.Errorf("GetTailID() = %d, want 0", got)
	}
}

func TestDeleteStreamResetsCounter(t *testing.T) {
	store := NewMemoryEventStore(100)
	store.StoreEvent("s1", []byte("x"))
	store.StoreEvent("s1", []byte("y"))

	store.DeleteStream("s1")
	if events := store.ReplayEventsAfter("s1", 0, 0); len(events) != 0 {
		t.Errorf("ReplayEventsAfter after delete returned %d events, want 0", len(events))
	}
	if got := store.StoreEvent("s1", []byte("z")); got != 1 {
		t.Errorf("StoreEvent() after delete id = %d, want 1", got)
	}
}
