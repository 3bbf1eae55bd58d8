package server

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/ArcadeAI/arcade-mcp-go/internal/audit"
	"github.com/ArcadeAI/arcade-mcp-go/internal/auth"
	"github.com/ArcadeAI/arcade-mcp-go/internal/catalog"
	"github.com/ArcadeAI/arcade-mcp-go/internal/logger"
	"github.com/ArcadeAI/arcade-mcp-go/internal/metrics"
	"github.com/ArcadeAI/arcade-mcp-go/internal/protocol"
	"github.com/ArcadeAI/arcade-mcp-go/internal/validation"
)

const authSetupHint = "Authorization required but Arcade is not configured. " +
	"Run 'arcade login' or set ARCADE_API_KEY to enable auth-required tools."

// handleToolsCall parses tools/call and runs the tool pipeline. Tool
// failures become isError results, not protocol errors.
func (s *Server) handleToolsCall(mctx *MiddlewareContext) (any, error) {
	var params protocol.CallToolParams
	if err := json.Unmarshal(mctx.Params, &params); err != nil {
		return nil, fmt.Errorf("%w: invalid tools/call params: %v", ErrValidation, err)
	}
	if err := validation.ValidateToolName(params.Name); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidation, err)
	}
	return s.callTool(mctx, &params), nil
}

// callTool resolves, authorizes, validates, and executes one tool call.
func (s *Server) callTool(mctx *MiddlewareContext, params *protocol.CallToolParams) *protocol.CallToolResult {
	tool, ok := s.catalog.Resolve(params.Name)
	if !ok {
		return errorResult(fmt.Sprintf("Unknown tool: %s", params.Name))
	}
	fqn := tool.Definition.FQN()

	tctx, capture := s.buildToolContext(mctx, params, tool)

	if result := s.authorizeCall(mctx, tctx, params.Name, tool); result != nil {
		return result
	}

	if err := validation.ValidateArguments(tool.Definition.InputSchema, params.Arguments); err != nil {
		return errorResult(fmt.Sprintf("Invalid arguments for tool %s: %v", params.Name, err))
	}

	argsJSON := json.RawMessage("{}")
	if params.Arguments != nil {
		encoded, err := json.Marshal(params.Arguments)
		if err != nil {
			return errorResult(fmt.Sprintf("Error executing tool %s: %v", params.Name, err))
		}
		argsJSON = encoded
	}

	start := time.Now()
	value, err := s.executeTool(mctx.Context, tool, tctx, argsJSON)
	duration := time.Since(start)

	event := audit.Event{
		Operation:  audit.OpToolCall,
		Tool:       fqn,
		SessionID:  sessionID(mctx),
		UserID:     tctx.UserID,
		RequestID:  fmt.Sprint(mctx.RequestID),
		DurationMs: duration.Milliseconds(),
	}
	if err != nil {
		metrics.RecordToolCall(fqn, "error", duration)
		event.Error = err.Error()
		s.trail.Record(event)
		logger.Warn("Tool %s failed after %s: %v", fqn, duration, err)
		return errorResult(fmt.Sprintf("Error executing tool %s: %v", params.Name, err))
	}

	metrics.RecordToolCall(fqn, "ok", duration)
	event.Success = true
	s.trail.Record(event)
	logger.Debug("Tool %s completed in %s", fqn, duration)

	var logs []LogEntry
	if capture != nil {
		logs = capture.Entries()
	}
	return buildCallResult(tool, value, logs)
}

// InvokeTool executes a catalog tool outside MCP framing. The worker
// surface calls it directly: authorization, secrets, validation, and
// audit behave exactly as tools/call, but failures come back as errors
// instead of isError results.
func (s *Server) InvokeTool(ctx context.Context, name string, inputs map[string]any, userID string) (any, error) {
	tool, ok := s.catalog.Resolve(name)
	if !ok {
		return nil, fmt.Errorf("%w: unknown tool %s", ErrNotFound, name)
	}
	fqn := tool.Definition.FQN()

	sess := NewStatelessSession(uuid.New().String(), "worker", 1)
	sess.UserID = userID
	mctx := &MiddlewareContext{
		Context:   ctx,
		Session:   sess,
		Method:    "worker/tools/invoke",
		RequestID: uuid.New().String(),
	}
	params := &protocol.CallToolParams{Name: name, Arguments: inputs}

	tctx, _ := s.buildToolContext(mctx, params, tool)
	if result := s.authorizeCall(mctx, tctx, name, tool); result != nil {
		return nil, fmt.Errorf("%w: %s", ErrAuthorization, result.Content[0].Text)
	}
	if err := validation.ValidateArguments(tool.Definition.InputSchema, inputs); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidation, err)
	}

	argsJSON := json.RawMessage("{}")
	if inputs != nil {
		encoded, err := json.Marshal(inputs)
		if err != nil {
			return nil, fmt.Errorf("encoding inputs for %s: %w", name, err)
		}
		argsJSON = encoded
	}

	start := time.Now()
	value, err := s.executeTool(ctx, tool, tctx, argsJSON)
	duration := time.Since(start)

	event := audit.Event{
		Operation:  audit.OpWorkerInvoke,
		Tool:       fqn,
		SessionID:  sess.ID,
		UserID:     tctx.UserID,
		RequestID:  fmt.Sprint(mctx.RequestID),
		DurationMs: duration.Milliseconds(),
	}
	if err != nil {
		metrics.RecordToolCall(fqn, "error", duration)
		event.Error = err.Error()
		s.trail.Record(event)
		logger.Warn("Tool %s failed after %s: %v", fqn, duration, err)
		return nil, fmt.Errorf("%w: %v", ErrTool, err)
	}

	metrics.RecordToolCall(fqn, "ok", duration)
	event.Success = true
	s.trail.Record(event)
	logger.Debug("Tool %s completed in %s", fqn, duration)
	return value, nil
}

// authorizeCall resolves the tool's authorization requirement. It
// returns nil when the call may proceed; a non-nil result terminates
// the call (setup hint, authorizer failure, or a pending URL the user
// must visit).
func (s *Server) authorizeCall(mctx *MiddlewareContext, tctx *catalog.ToolContext, wireName string, tool *catalog.MaterializedTool) *protocol.CallToolResult {
	req := tool.Definition.Requirements.Authorization
	if req == nil || s.cfg.Auth.Disabled {
		return nil
	}
	if s.authorizer == nil {
		return errorResult(authSetupHint)
	}
	fqn := tool.Definition.FQN()

	start := time.Now()
	resp, err := s.authorizer.Authorize(mctx.Context, auth.AuthorizationRequest{
		ProviderID:   req.ProviderID,
		ProviderType: req.ProviderType,
		UserID:       tctx.UserID,
		Scopes:       req.Scopes,
	})
	event := audit.Event{
		Operation:  audit.OpToolAuth,
		Tool:       fqn,
		SessionID:  sessionID(mctx),
		UserID:     tctx.UserID,
		RequestID:  fmt.Sprint(mctx.RequestID),
		DurationMs: time.Since(start).Milliseconds(),
	}
	if err != nil {
		event.Error = err.Error()
		s.trail.Record(event)
		return errorResult(fmt.Sprintf("Error executing tool %s: %v", wireName, err))
	}
	event.Success = true
	event.Details = map[string]any{"status": resp.Status, "provider": req.ProviderID}
	s.trail.Record(event)

	if resp.Status != auth.StatusCompleted {
		logger.Info("Tool %s requires authorization, returning URL for user %s", fqn, tctx.UserID)
		return &protocol.CallToolResult{
			Content: []protocol.Content{protocol.NewTextContent(resp.URL)},
			IsError: false,
		}
	}

	tctx.Authorization = &catalog.AuthorizationContext{
		Token:      resp.Token,
		UserID:     tctx.UserID,
		ProviderID: req.ProviderID,
		Scopes:     resp.Scopes,
	}
	return nil
}

// executeTool runs the handler with panic isolation.
func (s *Server) executeTool(ctx context.Context, tool *catalog.MaterializedTool, tctx *catalog.ToolContext, args json.RawMessage) (value any, err error) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("Tool %s panicked: %v", tool.Definition.FQN(), r)
			err = fmt.Errorf("tool panicked: %v", r)
		}
	}()
	return tool.Handler(ctx, tctx, args)
}

// buildToolContext assembles the per-call context: the resolved user
// identity, required secrets, metadata, and the log and progress sinks.
// The capture buffer is non-nil only when the call cannot stream
// notifications and logs must ride back on the result.
func (s *Server) buildToolContext(mctx *MiddlewareContext, params *protocol.CallToolParams, tool *catalog.MaterializedTool) (*catalog.ToolContext, *LogCapture) {
	userID := ""
	if mctx.Session != nil {
		userID = mctx.Session.UserID
	}
	if userID == "" {
		userID = s.cfg.Env.UserID
	}
	if userID == "" {
		userID = s.cfg.Tools.DefaultUserID
	}
	if userID == "" {
		userID = uuid.New().String()
	}

	metadata := make(map[string]string, len(s.cfg.Tools.Metadata)+1)
	for k, v := range s.cfg.Tools.Metadata {
		metadata[k] = v
	}
	if s.cfg.Env.UserEmail != "" {
		if _, ok := metadata["user_email"]; !ok {
			metadata["user_email"] = s.cfg.Env.UserEmail
		}
	}

	secrets := make(map[string]string)
	for _, req := range tool.Definition.Requirements.Secrets {
		if v, ok := s.cfg.Secrets[req.Key]; ok && v != "" {
			secrets[req.Key] = v
			continue
		}
		if v := os.Getenv(req.Key); v != "" {
			secrets[req.Key] = v
			continue
		}
		logger.Warn("Secret %s required by tool %s is not set", req.Key, tool.Definition.FQN())
	}

	var progressToken any
	if params.Meta != nil {
		progressToken = params.Meta.ProgressToken
	}

	tctx := &catalog.ToolContext{
		UserID:        userID,
		UserEmail:     s.cfg.Env.UserEmail,
		Metadata:      metadata,
		Secrets:       secrets,
		ProgressToken: progressToken,
	}

	if mctx.Session != nil && !mctx.Session.Stateless() {
		tctx.Logger = &sessionToolLogger{nm: s.notifications, clientID: mctx.Session.ID, toolName: tool.Definition.FQN()}
		tctx.Progress = &sessionProgressReporter{nm: s.notifications, clientID: mctx.Session.ID, token: progressToken}
		return tctx, nil
	}

	capture := NewLogCapture()
	tctx.Logger = capture
	tctx.Progress = capture
	return tctx, capture
}

func sessionID(mctx *MiddlewareContext) string {
	if mctx.Session == nil {
		return ""
	}
	return mctx.Session.ID
}

func errorResult(message string) *protocol.CallToolResult {
	return &protocol.CallToolResult{
		Content: []protocol.Content{protocol.NewTextContent(message)},
		IsError: true,
	}
}
