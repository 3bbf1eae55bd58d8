package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/ArcadeAI/arcade-mcp-go/internal/logger"
	"github.com/ArcadeAI/arcade-mcp-go/internal/metrics"
	"github.com/ArcadeAI/arcade-mcp-go/internal/protocol"
	"github.com/ArcadeAI/arcade-mcp-go/internal/validation"
)

// HandleMessage processes one raw message from a session and returns
// the serialized response, or nil when no response is due (client
// notifications and responses to server-initiated requests).
func (s *Server) HandleMessage(ctx context.Context, sess *Session, raw []byte) []byte {
	if sess != nil {
		sess.Touch()
	}

	var msg protocol.Message
	if err := json.Unmarshal(raw, &msg); err != nil {
		var syn *json.SyntaxError
		if errors.As(err, &syn) {
			return marshalResponse(protocol.NewErrorResponse(nil, protocol.CodeParseError, "Parse error", nil))
		}
		return marshalResponse(protocol.NewErrorResponse(nil, protocol.CodeInvalidRequest, "Invalid request", nil))
	}

	switch {
	case msg.IsResponse():
		if sess != nil {
			sess.Requests().ResolveResponse(&msg)
		}
		return nil

	case msg.IsNotification():
		if strings.HasPrefix(msg.Method, "notifications/") {
			s.handleClientNotification(sess, &msg)
		} else {
			logger.Debug("Ignoring notification %s", msg.Method)
		}
		return nil

	case msg.IsRequest():
		return s.dispatchRequest(ctx, sess, &msg)

	default:
		return marshalResponse(protocol.NewErrorResponse(msg.ID, protocol.CodeInvalidRequest, "Invalid request", nil))
	}
}

// dispatchRequest routes a request through the middleware chain to its
// method handler and serializes the outcome.
func (s *Server) dispatchRequest(ctx context.Context, sess *Session, msg *protocol.Message) []byte {
	if sess != nil && !sess.Initialized() &&
		msg.Method != protocol.MethodInitialize && msg.Method != protocol.MethodPing {
		metrics.RecordRPC(msg.Method, "rejected")
		return marshalResponse(protocol.NewErrorResponse(msg.ID, protocol.CodeInvalidRequest,
			fmt.Sprintf("Request not allowed before initialization: %s", msg.Method), nil))
	}

	handler, ok := s.handlers[msg.Method]
	if !ok {
		metrics.RecordRPC(msg.Method, "not_found")
		return marshalResponse(protocol.NewErrorResponse(msg.ID, protocol.CodeMethodNotFound,
			fmt.Sprintf("Method not found: %s", msg.Method), nil))
	}

	mctx := &MiddlewareContext{
		Context:   ctx,
		Session:   sess,
		Method:    msg.Method,
		RequestID: msg.ID,
		Params:    msg.Params,
	}
	chain := buildChain(handler, s.cfg.Server.MaskErrorDetails, s.middlewares)
	result, err := chain(mctx)
	if err != nil {
		perr := mapError(err, s.cfg.Server.MaskErrorDetails)
		metrics.RecordRPC(msg.Method, "error")
		return marshalResponse(protocol.NewErrorResponse(msg.ID, perr.Code, perr.Message, perr.Data))
	}
	metrics.RecordRPC(msg.Method, "ok")
	return marshalResponse(protocol.NewResponse(msg.ID, result))
}

// handleClientNotification reacts to fire-and-forget messages from the
// client. Only the initialized notification changes server state.
func (s *Server) handleClientNotification(sess *Session, msg *protocol.Message) {
	switch msg.Method {
	case protocol.NotificationInitialized:
		if sess != nil {
			sess.MarkInitialized()
			logger.Debug("Session %s completed initialization", sess.ID)
		}
	case protocol.NotificationCancelled:
		var params protocol.CancelledParams
		if err := json.Unmarshal(msg.Params, &params); err == nil {
			logger.Debug("Client cancelled request %v: %s", params.RequestID, params.Reason)
		}
	case protocol.NotificationProgress:
		logger.Debug("Client progress notification received")
	default:
		logger.Debug("Unhandled notification %s", msg.Method)
	}
}

func marshalResponse(resp *protocol.Response) []byte {
	payload, err := json.Marshal(resp)
	if err != nil {
		logger.Error("Failed to encode response: %v", err)
		return []byte(`{"jsonrpc":"2.0","id":null,"error":{"code":-32603,"message":"Internal server error"}}`)
	}
	return payload
}

func (s *Server) handleInitialize(mctx *MiddlewareContext) (any, error) {
	var params protocol.InitializeParams
	if len(mctx.Params) > 0 {
		if err := json.Unmarshal(mctx.Params, &params); err != nil {
			return nil, fmt.Errorf("%w: invalid initialize params: %v", ErrValidation, err)
		}
	}

	version := params.ProtocolVersion
	supported := false
	for _, v := range protocol.SupportedProtocolVersions {
		if v == version {
			supported = true
			break
		}
	}
	if !supported {
		logger.Debug("Client requested protocol version %q, answering with %s", version, protocol.LatestProtocolVersion)
		version = protocol.LatestProtocolVersion
	}

	if mctx.Session != nil {
		mctx.Session.SetClientParams(&params)
		logger.Info("Session %s initializing: client %s %s", mctx.Session.ID, params.ClientInfo.Name, params.ClientInfo.Version)
	}

	return &protocol.InitializeResult{
		ProtocolVersion: version,
		Capabilities: protocol.ServerCapabilities{
			Tools:   &protocol.ToolsCapability{ListChanged: true},
			Logging: map[string]any{},
			Prompts: &protocol.PromptsCapability{ListChanged: true},
			Resources: &protocol.ResourcesCapability{
				ListChanged: true,
				Subscribe:   true,
			},
		},
		ServerInfo: protocol.Implementation{
			Name:    s.cfg.Server.Name,
			Title:   s.cfg.Server.Title,
			Version: s.cfg.Server.Version,
		},
		Instructions: s.cfg.Server.Instructions,
	}, nil
}

func (s *Server) handlePing(mctx *MiddlewareContext) (any, error) {
	return map[string]any{}, nil
}

func (s *Server) handleToolsList(mctx *MiddlewareContext) (any, error) {
	tools := s.tools.List()
	listed := make([]protocol.Tool, 0, len(tools))
	for _, tool := range tools {
		listed = append(listed, ToolToProtocol(&tool.Definition))
	}
	return &protocol.ListToolsResult{Tools: listed}, nil
}

func (s *Server) handleResourcesList(mctx *MiddlewareContext) (any, error) {
	resources := s.resources.ListResources()
	if resources == nil {
		resources = []protocol.Resource{}
	}
	return &protocol.ListResourcesResult{Resources: resources}, nil
}

func (s *Server) handleResourcesTemplatesList(mctx *MiddlewareContext) (any, error) {
	templates := s.resources.ListTemplates()
	if templates == nil {
		templates = []protocol.ResourceTemplate{}
	}
	return &protocol.ListResourceTemplatesResult{ResourceTemplates: templates}, nil
}

func (s *Server) handleResourcesRead(mctx *MiddlewareContext) (any, error) {
	var params protocol.ReadResourceParams
	if err := json.Unmarshal(mctx.Params, &params); err != nil {
		return nil, fmt.Errorf("%w: invalid resources/read params: %v", ErrValidation, err)
	}
	if err := validation.ValidateResourceURI(params.URI); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidation, err)
	}

	contents, err := s.resources.ReadResource(mctx.Context, params.URI)
	if err != nil {
		return nil, err
	}
	return &protocol.ReadResourceResult{Contents: contents}, nil
}

func (s *Server) handlePromptsList(mctx *MiddlewareContext) (any, error) {
	prompts := s.prompts.ListPrompts()
	if prompts == nil {
		prompts = []protocol.Prompt{}
	}
	return &protocol.ListPromptsResult{Prompts: prompts}, nil
}

func (s *Server) handlePromptsGet(mctx *MiddlewareContext) (any, error) {
	var params protocol.GetPromptParams
	if err := json.Unmarshal(mctx.Params, &params); err != nil {
		return nil, fmt.Errorf("%w: invalid prompts/get params: %v", ErrValidation, err)
	}
	return s.prompts.GetPrompt(mctx.Context, params.Name, params.Arguments)
}

// handleLoggingSetLevel adjusts the per-session log floor. Debug level
// also raises server log verbosity, matching the serve --debug flag.
func (s *Server) handleLoggingSetLevel(mctx *MiddlewareContext) (any, error) {
	var params protocol.SetLevelParams
	if err := json.Unmarshal(mctx.Params, &params); err != nil {
		return nil, fmt.Errorf("%w: invalid logging/setLevel params: %v", ErrValidation, err)
	}
	if _, ok := protocol.LogLevelPriority[params.Level]; !ok {
		return nil, fmt.Errorf("%w: unknown log level %q", ErrValidation, params.Level)
	}

	if mctx.Session != nil {
		s.notifications.SetClientLogLevel(mctx.Session.ID, params.Level)
	}
	if params.Level == "debug" {
		logger.SetDebug(true)
	}
	return map[string]any{}, nil
}

func (s *Server) handleNotificationsSubscribe(mctx *MiddlewareContext) (any, error) {
	var params protocol.SubscribeParams
	if err := json.Unmarshal(mctx.Params, &params); err != nil {
		return nil, fmt.Errorf("%w: invalid subscribe params: %v", ErrValidation, err)
	}
	if mctx.Session == nil {
		return nil, fmt.Errorf("%w: subscribe requires a session", ErrSession)
	}

	subs, err := s.notifications.Subscribe(mctx.Session.ID, params.Methods, params.Filters)
	if err != nil {
		return nil, err
	}
	return &protocol.SubscribeResult{Subscriptions: subs}, nil
}

func (s *Server) handleNotificationsUnsubscribe(mctx *MiddlewareContext) (any, error) {
	var params protocol.UnsubscribeParams
	if err := json.Unmarshal(mctx.Params, &params); err != nil {
		return nil, fmt.Errorf("%w: invalid unsubscribe params: %v", ErrValidation, err)
	}
	if mctx.Session == nil {
		return nil, fmt.Errorf("%w: unsubscribe requires a session", ErrSession)
	}

	success := s.notifications.Unsubscribe(mctx.Session.ID, params.SubscriptionIDs)
	return &protocol.UnsubscribeResult{Success: success}, nil
}
