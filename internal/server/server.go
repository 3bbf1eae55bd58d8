// Package server implements the MCP server core: session handshake and
// lifecycle, the JSON-RPC dispatch table, tool execution, and
// notification fan-out. Transports hand it raw messages and deliver
// whatever it returns or enqueues.
package server

import (
	"fmt"
	"sync"
	"time"

	"github.com/ArcadeAI/arcade-mcp-go/internal/audit"
	"github.com/ArcadeAI/arcade-mcp-go/internal/auth"
	"github.com/ArcadeAI/arcade-mcp-go/internal/catalog"
	"github.com/ArcadeAI/arcade-mcp-go/internal/config"
	"github.com/ArcadeAI/arcade-mcp-go/internal/logger"
	"github.com/ArcadeAI/arcade-mcp-go/internal/metrics"
	"github.com/ArcadeAI/arcade-mcp-go/internal/protocol"
)

// serverNotificationMethods lists every notification a client may
// subscribe to. Sessions are registered with the full set.
var serverNotificationMethods = []string{
	protocol.NotificationMessage,
	protocol.NotificationProgress,
	protocol.NotificationResourceUpdated,
	protocol.NotificationResourcesListChanged,
	protocol.NotificationToolsListChanged,
	protocol.NotificationPromptsListChanged,
	protocol.NotificationCancelled,
}

// Server owns the protocol state shared by every transport.
type Server struct {
	cfg     *config.Config
	catalog *catalog.Catalog

	tools     *ToolManager
	resources *ResourceManager
	prompts   *PromptManager

	notifications *NotificationManager
	authorizer    auth.Authorizer
	trail         *audit.Trail

	mu       sync.Mutex
	sessions map[string]*Session

	middlewares []Middleware
	handlers    map[string]Handler
}

// New wires a server from its configuration and tool catalog. The
// authorizer and trail may be nil; tools that require authorization
// then fail with a setup hint and auditing is skipped.
func New(cfg *config.Config, cat *catalog.Catalog, authorizer auth.Authorizer, trail *audit.Trail) *Server {
	s := &Server{
		cfg:        cfg,
		catalog:    cat,
		authorizer: authorizer,
		trail:      trail,
		sessions:   make(map[string]*Session),
	}
	s.notifications = NewNotificationManager(s, cfg.Notifications.RateLimitPerMinute, cfg.Notifications.DebounceMs)
	s.tools = NewToolManager(cat, func(string) { s.notifications.NotifyToolListChanged(nil) })
	s.resources = NewResourceManager(func(string) { s.notifications.NotifyResourceListChanged(nil) })
	s.prompts = NewPromptManager(func(string) { s.notifications.NotifyPromptListChanged(nil) })

	s.handlers = map[string]Handler{
		protocol.MethodInitialize:             s.handleInitialize,
		protocol.MethodPing:                   s.handlePing,
		protocol.MethodToolsList:              s.handleToolsList,
		protocol.MethodToolsCall:              s.handleToolsCall,
		protocol.MethodResourcesList:          s.handleResourcesList,
		protocol.MethodResourcesTemplatesList: s.handleResourcesTemplatesList,
		protocol.MethodResourcesRead:          s.handleResourcesRead,
		protocol.MethodPromptsList:            s.handlePromptsList,
		protocol.MethodPromptsGet:             s.handlePromptsGet,
		protocol.MethodLoggingSetLevel:        s.handleLoggingSetLevel,
		protocol.MethodSubscribe:              s.handleNotificationsSubscribe,
		protocol.MethodUnsubscribe:            s.handleNotificationsUnsubscribe,
	}
	return s
}

// Start launches the notification manager's background loops.
func (s *Server) Start() {
	s.notifications.Start()
	logger.Info("MCP server %s v%s ready with %d tools", s.cfg.Server.Name, s.cfg.Server.Version, s.catalog.Len())
}

// Stop shuts down background loops and closes every session.
func (s *Server) Stop() {
	s.notifications.Stop()

	s.mu.Lock()
	sessions := make([]*Session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		sessions = append(sessions, sess)
	}
	s.sessions = make(map[string]*Session)
	s.mu.Unlock()

	for _, sess := range sessions {
		s.notifications.UnregisterClient(sess.ID)
		sess.Close()
		metrics.RecordSessionEnd(sess.Transport)
	}
	logger.Info("MCP server stopped")
}

// Use appends middleware to the dispatch chain. The first registered
// middleware runs outermost. Register before serving traffic.
func (s *Server) Use(mw Middleware) {
	s.middlewares = append(s.middlewares, mw)
}

// Catalog returns the tool catalog backing this server.
func (s *Server) Catalog() *catalog.Catalog {
	return s.catalog
}

// Config returns the server configuration.
func (s *Server) Config() *config.Config {
	return s.cfg
}

// Notifications returns the notification manager.
func (s *Server) Notifications() *NotificationManager {
	return s.notifications
}

// AttachSession registers a session for dispatch and notifications.
func (s *Server) AttachSession(sess *Session) {
	sess.Requests().SetTimeout(time.Duration(s.cfg.Requests.TimeoutSeconds) * time.Second)

	s.mu.Lock()
	s.sessions[sess.ID] = sess
	s.mu.Unlock()

	s.notifications.RegisterClient(sess.ID, serverNotificationMethods)
	metrics.RecordSessionStart(sess.Transport)
	s.trail.Record(audit.Event{
		Operation: audit.OpSessionOpen,
		SessionID: sess.ID,
		UserID:    sess.UserID,
		Success:   true,
		Details:   map[string]any{"transport": sess.Transport},
	})
	logger.Info("Session %s attached via %s", sess.ID, sess.Transport)
}

// DetachSession closes a session and drops its notification state.
func (s *Server) DetachSession(sessionID string) {
	s.mu.Lock()
	sess, ok := s.sessions[sessionID]
	delete(s.sessions, sessionID)
	s.mu.Unlock()
	if !ok {
		return
	}

	s.notifications.UnregisterClient(sessionID)
	sess.Close()
	metrics.RecordSessionEnd(sess.Transport)
	s.trail.Record(audit.Event{
		Operation: audit.OpSessionClose,
		SessionID: sessionID,
		UserID:    sess.UserID,
		Success:   true,
	})
	logger.Info("Session %s detached", sessionID)
}

// GetSession returns a registered session by id.
func (s *Server) GetSession(sessionID string) (*Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[sessionID]
	return sess, ok
}

// SessionCount returns the number of attached sessions.
func (s *Server) SessionCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// Sessions returns a snapshot of the attached sessions. Transports use
// it to evict idle sessions.
func (s *Server) Sessions() []*Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*Session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		out = append(out, sess)
	}
	return out
}

// SendNotification implements Sender by enqueueing onto the session's
// outbound queue.
func (s *Server) SendNotification(clientID string, payload []byte) error {
	s.mu.Lock()
	sess, ok := s.sessions[clientID]
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: no session %s", ErrSession, clientID)
	}
	return sess.Enqueue(payload)
}

// AddTool registers a tool in the catalog and announces the change.
func (s *Server) AddTool(tool *catalog.MaterializedTool) error {
	return s.tools.Add(tool)
}

// RemoveTool drops a tool by fully qualified name.
func (s *Server) RemoveTool(fqn string) error {
	_, err := s.tools.Remove(fqn)
	return err
}

// AddResource registers a resource with an optional content handler.
func (s *Server) AddResource(res protocol.Resource, handler ResourceHandler) {
	s.resources.AddResource(res, handler)
}

// AddResourceTemplate registers a URI template.
func (s *Server) AddResourceTemplate(tpl protocol.ResourceTemplate) {
	s.resources.AddTemplate(tpl)
}

// AddPrompt registers a prompt with an optional message handler.
func (s *Server) AddPrompt(prompt protocol.Prompt, handler PromptHandlerFunc) {
	s.prompts.AddPrompt(prompt, handler)
}

// NotifyResourceUpdated announces new content for a resource to its
// subscribers, debounced by URI.
func (s *Server) NotifyResourceUpdated(uri string) {
	s.notifications.NotifyResourceUpdated(uri, nil, "", -1)
}
