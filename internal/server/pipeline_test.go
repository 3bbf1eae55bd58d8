package server

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/ArcadeAI/arcade-mcp-go/internal/auth"
	"github.com/ArcadeAI/arcade-mcp-go/internal/catalog"
	"github.com/ArcadeAI/arcade-mcp-go/internal/protocol"
	"github.com/ArcadeAI/arcade-mcp-go/internal/testutil"
)

func callParams(name string, args map[string]any) *protocol.CallToolParams {
	return &protocol.CallToolParams{Name: name, Arguments: args}
}

func testMctx() *MiddlewareContext {
	return &MiddlewareContext{Context: context.Background(), Method: protocol.MethodToolsCall, RequestID: 1}
}

func TestCallToolSuccess(t *testing.T) {
	s := newTestServer(t, testutil.MathAddTool())

	result := s.callTool(testMctx(), callParams("math_add", map[string]any{"a": 2.0, "b": 3.0}))
	if result.IsError {
		t.Fatalf("IsError = true, content = %+v", result.Content)
	}
	if got := result.StructuredContent["result"]; got != 5.0 {
		t.Errorf("structuredContent.result = %v, want 5", got)
	}
	if len(result.Content) != 1 || result.Content[0].Text != `{"result":5}` {
		t.Errorf("content = %+v, want JSON text {\"result\":5}", result.Content)
	}
}

func TestCallToolResolvesDottedName(t *testing.T) {
	s := newTestServer(t, testutil.MathAddTool())

	result := s.callTool(testMctx(), callParams("math.add", map[string]any{"a": 1.0, "b": 1.0}))
	if result.IsError {
		t.Fatalf("IsError = true, content = %+v", result.Content)
	}
}

func TestCallToolUnknown(t *testing.T) {
	s := newTestServer(t)

	result := s.callTool(testMctx(), callParams("nope", nil))
	if !result.IsError {
		t.Fatal("IsError = false, want true")
	}
	if want := "Unknown tool: nope"; result.Content[0].Text != want {
		t.Errorf("text = %q, want %q", result.Content[0].Text, want)
	}
}

func TestCallToolInvalidArguments(t *testing.T) {
	s := newTestServer(t, testutil.MathAddTool())

	result := s.callTool(testMctx(), callParams("math_add", map[string]any{"a": "two"}))
	if !result.IsError {
		t.Fatal("IsError = false, want true")
	}
	if !strings.HasPrefix(result.Content[0].Text, "Invalid arguments for tool math_add:") {
		t.Errorf("text = %q", result.Content[0].Text)
	}
}

func TestCallToolHandlerError(t *testing.T) {
	tool := &catalog.MaterializedTool{
		Definition: catalog.Definition{Name: "always", Toolkit: "fail"},
		Handler: func(ctx context.Context, tctx *catalog.ToolContext, args json.RawMessage) (any, error) {
			return nil, errors.New("boom")
		},
	}
	s := newTestServer(t, tool)

	result := s.callTool(testMctx(), callParams("fail_always", nil))
	if !result.IsError {
		t.Fatal("IsError = false, want true")
	}
	if want := "Error executing tool fail_always: boom"; result.Content[0].Text != want {
		t.Errorf("text = %q, want %q", result.Content[0].Text, want)
	}
}

func TestCallToolPanicIsolated(t *testing.T) {
	tool := &catalog.MaterializedTool{
		Definition: catalog.Definition{Name: "panics", Toolkit: "fail"},
		Handler: func(ctx context.Context, tctx *catalog.ToolContext, args json.RawMessage) (any, error) {
			panic("unexpected nil")
		},
	}
	s := newTestServer(t, tool)

	result := s.callTool(testMctx(), callParams("fail_panics", nil))
	if !result.IsError {
		t.Fatal("IsError = false, want true")
	}
	if !strings.Contains(result.Content[0].Text, "tool panicked: unexpected nil") {
		t.Errorf("text = %q", result.Content[0].Text)
	}
}

func authTool() *catalog.MaterializedTool {
	return &catalog.MaterializedTool{
		Definition: catalog.Definition{
			Name:    "send",
			Toolkit: "gmail",
			Requirements: catalog.Requirements{
				Authorization: &catalog.AuthRequirement{
					ProviderID: "google",
					Scopes:     []string{"gmail.send"},
				},
			},
		},
		Handler: func(ctx context.Context, tctx *catalog.ToolContext, args json.RawMessage) (any, error) {
			if tctx.Authorization == nil {
				return "no token", nil
			}
			return "token " + tctx.Authorization.Token, nil
		},
	}
}

func TestCallToolAuthSetupHint(t *testing.T) {
	s := newTestServer(t, authTool())

	result := s.callTool(testMctx(), callParams("gmail_send", nil))
	if !result.IsError {
		t.Fatal("IsError = false, want true")
	}
	if !strings.Contains(result.Content[0].Text, "Run 'arcade login' or set ARCADE_API_KEY") {
		t.Errorf("text = %q, want setup hint", result.Content[0].Text)
	}
}

func TestCallToolAuthPending(t *testing.T) {
	cat := catalog.New()
	if err := cat.Add(authTool()); err != nil {
		t.Fatal(err)
	}
	authorizer := testutil.NewRecordingAuthorizer(t)
	authorizer.Response = &auth.AuthorizationResponse{
		Status: auth.StatusPending,
		URL:    "https://auth.example.com/authorize?flow=abc",
	}
	s := New(testutil.NewTestConfig(t), cat, authorizer, nil)

	result := s.callTool(testMctx(), callParams("gmail_send", nil))
	if result.IsError {
		t.Fatal("IsError = true, want false for pending authorization")
	}
	if got := result.Content[0].Text; got != "https://auth.example.com/authorize?flow=abc" {
		t.Errorf("text = %q, want the authorization URL", got)
	}
	req, ok := authorizer.LastCall()
	if !ok || req.ProviderID != "google" || len(req.Scopes) != 1 {
		t.Errorf("authorize request = %+v", req)
	}
}

func TestCallToolAuthCompleted(t *testing.T) {
	cat := catalog.New()
	if err := cat.Add(authTool()); err != nil {
		t.Fatal(err)
	}
	authorizer := testutil.NewRecordingAuthorizer(t)
	authorizer.Response = &auth.AuthorizationResponse{
		Status: auth.StatusCompleted,
		Token:  "ya29.secret",
	}
	s := New(testutil.NewTestConfig(t), cat, authorizer, nil)

	result := s.callTool(testMctx(), callParams("gmail_send", nil))
	if result.IsError {
		t.Fatalf("IsError = true, content = %+v", result.Content)
	}
	if got := result.Content[0].Text; got != "token ya29.secret" {
		t.Errorf("text = %q, want the tool to see the token", got)
	}
}

func TestCallToolAuthDisabled(t *testing.T) {
	cat := catalog.New()
	if err := cat.Add(authTool()); err != nil {
		t.Fatal(err)
	}
	s := New(testutil.NewTestConfig(t, testutil.WithAuthDisabled()), cat, nil, nil)

	result := s.callTool(testMctx(), callParams("gmail_send", nil))
	if result.IsError {
		t.Fatalf("IsError = true, content = %+v", result.Content)
	}
	if got := result.Content[0].Text; got != "no token" {
		t.Errorf("text = %q, want the tool to run without authorization", got)
	}
}

func TestCallToolSecretsInjected(t *testing.T) {
	tool := &catalog.MaterializedTool{
		Definition: catalog.Definition{
			Name:    "fetch",
			Toolkit: "api",
			Requirements: catalog.Requirements{
				Secrets: []catalog.SecretRequirement{{Key: "SERVICE_KEY"}, {Key: "MISSING_KEY"}},
			},
		},
		Handler: func(ctx context.Context, tctx *catalog.ToolContext, args json.RawMessage) (any, error) {
			v, ok := tctx.Secret("SERVICE_KEY")
			if !ok {
				return nil, errors.New("secret not injected")
			}
			if _, ok := tctx.Secret("MISSING_KEY"); ok {
				return nil, errors.New("phantom secret injected")
			}
			return v, nil
		},
	}

	cat := catalog.New()
	if err := cat.Add(tool); err != nil {
		t.Fatal(err)
	}
	s := New(testutil.NewTestConfig(t, testutil.WithSecret("SERVICE_KEY", "sk-123")), cat, nil, nil)

	result := s.callTool(testMctx(), callParams("api_fetch", nil))
	if result.IsError {
		t.Fatalf("IsError = true, content = %+v", result.Content)
	}
	if got := result.Content[0].Text; got != "sk-123" {
		t.Errorf("text = %q, want sk-123", got)
	}
}

func TestCallToolUserIDChain(t *testing.T) {
	var seen string
	tool := &catalog.MaterializedTool{
		Definition: catalog.Definition{Name: "whoami", Toolkit: "id"},
		Handler: func(ctx context.Context, tctx *catalog.ToolContext, args json.RawMessage) (any, error) {
			seen = tctx.UserID
			return seen, nil
		},
	}

	t.Run("session user wins", func(t *testing.T) {
		cat := catalog.New()
		if err := cat.Add(tool); err != nil {
			t.Fatal(err)
		}
		cfg := testutil.NewTestConfig(t)
		cfg.Tools.DefaultUserID = "config-user"
		s := New(cfg, cat, nil, nil)

		sess := NewStatelessSession("s1", "test", 8)
		sess.UserID = "session-user"
		mctx := testMctx()
		mctx.Session = sess

		s.callTool(mctx, callParams("id_whoami", nil))
		if seen != "session-user" {
			t.Errorf("user id = %q, want session-user", seen)
		}
	})

	t.Run("config default fills in", func(t *testing.T) {
		cat := catalog.New()
		if err := cat.Add(tool); err != nil {
			t.Fatal(err)
		}
		cfg := testutil.NewTestConfig(t)
		cfg.Tools.DefaultUserID = "config-user"
		s := New(cfg, cat, nil, nil)

		s.callTool(testMctx(), callParams("id_whoami", nil))
		if seen != "config-user" {
			t.Errorf("user id = %q, want config-user", seen)
		}
	})

	t.Run("generated when nothing set", func(t *testing.T) {
		cat := catalog.New()
		if err := cat.Add(tool); err != nil {
			t.Fatal(err)
		}
		cfg := testutil.NewTestConfig(t)
		cfg.Env.UserID = ""
		s := New(cfg, cat, nil, nil)

		s.callTool(testMctx(), callParams("id_whoami", nil))
		if len(seen) != 36 {
			t.Errorf("user id = %q, want a generated UUID", seen)
		}
	})
}

func TestCallToolCapturedLogs(t *testing.T) {
	tool := &catalog.MaterializedTool{
		Definition: catalog.Definition{Name: "chatty", Toolkit: "logsrc"},
		Handler: func(ctx context.Context, tctx *catalog.ToolContext, args json.RawMessage) (any, error) {
			tctx.Log("info", "step one")
			tctx.Log("warning", "step two")
			return map[string]any{"done": true}, nil
		},
	}
	s := newTestServer(t, tool)

	// No session: logs are captured and ride back on the result.
	result := s.callTool(testMctx(), callParams("logsrc_chatty", nil))
	if result.IsError {
		t.Fatalf("IsError = true, content = %+v", result.Content)
	}

	logs, ok := result.StructuredContent["logs"].([]LogEntry)
	if !ok || len(logs) != 2 {
		t.Fatalf("structuredContent.logs = %#v, want 2 entries", result.StructuredContent["logs"])
	}
	if logs[0].Message != "step one" || logs[1].Level != "warning" {
		t.Errorf("logs = %+v", logs)
	}
	meta, ok := result.Meta["logs"].([]LogEntry)
	if !ok || len(meta) != 2 {
		t.Fatalf("_meta.logs = %#v, want 2 entries", result.Meta["logs"])
	}
}

func TestCallToolStreamsLogsToSession(t *testing.T) {
	tool := &catalog.MaterializedTool{
		Definition: catalog.Definition{Name: "chatty", Toolkit: "logsrc"},
		Handler: func(ctx context.Context, tctx *catalog.ToolContext, args json.RawMessage) (any, error) {
			tctx.Log("error", "live line")
			return "ok", nil
		},
	}
	s := newTestServer(t, tool)
	sess := initializedSession(t, s, "sess-logs")

	mctx := testMctx()
	mctx.Session = sess
	result := s.callTool(mctx, callParams("logsrc_chatty", nil))
	if result.IsError {
		t.Fatalf("IsError = true, content = %+v", result.Content)
	}
	if _, ok := result.Meta["logs"]; ok {
		t.Error("_meta.logs present for live session, want streamed instead")
	}

	select {
	case payload := <-sess.Outbound():
		var note struct {
			Method string                        `json:"method"`
			Params protocol.LoggingMessageParams `json:"params"`
		}
		if err := json.Unmarshal(payload, &note); err != nil {
			t.Fatalf("invalid notification: %v", err)
		}
		if note.Method != protocol.NotificationMessage || note.Params.Data != "live line" {
			t.Errorf("notification = %+v", note)
		}
		if note.Params.Logger != "logsrc.chatty" {
			t.Errorf("logger = %q, want logsrc.chatty", note.Params.Logger)
		}
	default:
		t.Fatal("no log notification enqueued")
	}
}

func TestHandleToolsCallOverDispatcher(t *testing.T) {
	s := newTestServer(t, testutil.MathAddTool())
	sess := initializedSession(t, s, "sess-1")

	raw := s.HandleMessage(context.Background(), sess,
		[]byte(`{"jsonrpc":"2.0","id":30,"method":"tools/call","params":{"name":"math_add","arguments":{"a":2,"b":3}}}`))
	resp := decodeResponse(t, raw)
	if resp.Error != nil {
		t.Fatalf("tools/call error = %v", resp.Error)
	}

	var result protocol.CallToolResult
	if err := json.Unmarshal(resp.Result, &result); err != nil {
		t.Fatalf("decoding result: %v", err)
	}
	if result.IsError {
		t.Fatalf("isError = true, content = %+v", result.Content)
	}
	if !strings.Contains(string(resp.Result), `"isError":false`) {
		t.Error("isError not serialized explicitly")
	}
	if got := result.StructuredContent["result"]; got != 5.0 {
		t.Errorf("structuredContent.result = %v, want 5", got)
	}
}
