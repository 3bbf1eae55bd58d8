package server

import (
	"fmt"
	"sync"
	"time"

	"github.com/ArcadeAI/arcade-mcp-go/internal/protocol"
)

const defaultQueueSize = 1000

// InitState tracks where a session is in the MCP initialization
// handshake.
type InitState int

const (
	StateNotInitialized InitState = iota
	StateInitializing
	StateInitialized
)

func (s InitState) String() string {
	switch s {
	case StateNotInitialized:
		return "not_initialized"
	case StateInitializing:
		return "initializing"
	case StateInitialized:
		return "initialized"
	default:
		return fmt.Sprintf("InitState(%d)", int(s))
	}
}

// Session is one client connection. It owns the outbound notification
// queue and the handshake state; transports drain Outbound and feed
// incoming messages to the dispatcher.
type Session struct {
	ID        string
	Transport string
	UserID    string

	mu              sync.Mutex
	state           InitState
	clientInfo      *protocol.Implementation
	clientCaps      *protocol.ClientCapabilities
	protocolVersion string
	lastActive      time.Time

	outbound  chan []byte
	done      chan struct{}
	closeOnce sync.Once
	stateless bool

	requests *RequestManager
}

// NewSession creates a session with a bounded outbound queue. A
// non-positive queueSize falls back to 1000.
func NewSession(id, transport string, queueSize int) *Session {
	if queueSize <= 0 {
		queueSize = defaultQueueSize
	}
	s := &Session{
		ID:         id,
		Transport:  transport,
		state:      StateNotInitialized,
		lastActive: time.Now(),
		outbound:   make(chan []byte, queueSize),
		done:       make(chan struct{}),
	}
	s.requests = NewRequestManager(s.Enqueue, 0)
	return s
}

// NewStatelessSession creates a session that skips the initialization
// handshake. Single-shot HTTP requests use these.
func NewStatelessSession(id, transport string, queueSize int) *Session {
	s := NewSession(id, transport, queueSize)
	s.state = StateInitialized
	s.stateless = true
	return s
}

// Stateless reports whether the session bypasses the handshake.
func (s *Session) Stateless() bool {
	return s.stateless
}

// State returns the current initialization state.
func (s *Session) State() InitState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Initialized reports whether the handshake has completed.
func (s *Session) Initialized() bool {
	return s.State() == StateInitialized
}

// SetClientParams records the client's initialize parameters and moves
// the session to the initializing state.
func (s *Session) SetClientParams(params *protocol.InitializeParams) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clientInfo = &params.ClientInfo
	s.clientCaps = &params.Capabilities
	s.protocolVersion = params.ProtocolVersion
	if s.state == StateNotInitialized {
		s.state = StateInitializing
	}
}

// MarkInitialized completes the handshake after the client's
// notifications/initialized arrives.
func (s *Session) MarkInitialized() {
	s.mu.Lock()
	s.state = StateInitialized
	s.mu.Unlock()
}

// ClientInfo returns the client implementation info, or nil before
// initialize.
func (s *Session) ClientInfo() *protocol.Implementation {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.clientInfo
}

// ProtocolVersion returns the version the client requested.
func (s *Session) ProtocolVersion() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.protocolVersion
}

// CheckClientCapability reports whether the client declared the
// capability. Known keys are roots.listChanged, sampling, elicitation,
// and experimental.<name>; unknown keys report false.
func (s *Session) CheckClientCapability(capability string) bool {
	s.mu.Lock()
	caps := s.clientCaps
	s.mu.Unlock()
	if caps == nil {
		return false
	}

	switch capability {
	case "roots":
		return caps.Roots != nil
	case "roots.listChanged":
		return caps.Roots != nil && caps.Roots.ListChanged
	case "sampling":
		return caps.Sampling != nil
	case "elicitation":
		return caps.Elicitation != nil
	case "experimental":
		return caps.Experimental != nil
	default:
		const prefix = "experimental."
		if len(capability) > len(prefix) && capability[:len(prefix)] == prefix {
			_, ok := caps.Experimental[capability[len(prefix):]]
			return ok
		}
		return false
	}
}

// Enqueue places a payload on the outbound queue, blocking while the
// queue is full. It fails once the session is closed.
func (s *Session) Enqueue(payload []byte) error {
	select {
	case <-s.done:
		return fmt.Errorf("%w: session %s is closed", ErrSession, s.ID)
	default:
	}

	select {
	case s.outbound <- payload:
		return nil
	case <-s.done:
		return fmt.Errorf("%w: session %s is closed", ErrSession, s.ID)
	}
}

// Outbound is the queue a transport drains to deliver notifications
// and server requests.
func (s *Session) Outbound() <-chan []byte {
	return s.outbound
}

// Done is closed when the session shuts down.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Close shuts the session down. A nil sentinel is pushed so a blocked
// transport reader wakes up.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		close(s.done)
		select {
		case s.outbound <- nil:
		default:
		}
	})
}

// Touch records activity for idle cleanup.
func (s *Session) Touch() {
	s.mu.Lock()
	s.lastActive = time.Now()
	s.mu.Unlock()
}

// LastActive returns the time of the most recent activity.
func (s *Session) LastActive() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastActive
}

// Requests returns the manager for server-to-client requests on this
// session.
func (s *Session) Requests() *RequestManager {
	return s.requests
}
