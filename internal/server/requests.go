package server

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ArcadeAI/arcade-mcp-go/internal/logger"
	"github.com/ArcadeAI/arcade-mcp-go/internal/protocol"
)

const defaultRequestTimeout = 60 * time.Second

// RequestManager issues server-to-client requests and pairs each
// response back to its caller by id.
type RequestManager struct {
	write   func(payload []byte) error
	timeout time.Duration

	mu      sync.Mutex
	pending map[string]chan *protocol.Message
}

// NewRequestManager creates a manager writing through write. A
// non-positive timeout falls back to 60 seconds.
func NewRequestManager(write func(payload []byte) error, timeout time.Duration) *RequestManager {
	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}
	return &RequestManager{
		write:   write,
		timeout: timeout,
		pending: make(map[string]chan *protocol.Message),
	}
}

// SetTimeout adjusts the response deadline for subsequent requests.
// Non-positive values are ignored.
func (m *RequestManager) SetTimeout(d time.Duration) {
	if d <= 0 {
		return
	}
	m.mu.Lock()
	m.timeout = d
	m.mu.Unlock()
}

// SendRequest writes a request to the client and blocks until the
// matching response arrives, the timeout elapses, or ctx is done.
func (m *RequestManager) SendRequest(ctx context.Context, method string, params any) (json.RawMessage, error) {
	id := uuid.New().String()
	payload, err := json.Marshal(protocol.NewRequest(id, method, params))
	if err != nil {
		return nil, fmt.Errorf("encoding %s request: %w", method, err)
	}

	ch := make(chan *protocol.Message, 1)
	m.mu.Lock()
	m.pending[id] = ch
	timeout := m.timeout
	m.mu.Unlock()
	defer func() {
		m.mu.Lock()
		delete(m.pending, id)
		m.mu.Unlock()
	}()

	if err := m.write(payload); err != nil {
		return nil, fmt.Errorf("sending %s request: %w", method, err)
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case msg := <-ch:
		if msg.Error != nil {
			return nil, msg.Error
		}
		return msg.Result, nil
	case <-timer.C:
		return nil, fmt.Errorf("%w: no response to %s within %s", ErrTimeout, method, timeout)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// ResolveResponse routes an incoming response to the waiting caller.
// It reports whether the id matched a pending request.
func (m *RequestManager) ResolveResponse(msg *protocol.Message) bool {
	id := fmt.Sprint(msg.ID)

	m.mu.Lock()
	ch, ok := m.pending[id]
	m.mu.Unlock()

	if !ok {
		logger.Debug("Received response for unknown request id %s", id)
		return false
	}
	ch <- msg
	return true
}

// PendingCount returns the number of in-flight requests.
func (m *RequestManager) PendingCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.pending)
}
