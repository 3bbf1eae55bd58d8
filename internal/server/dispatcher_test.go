package server

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/ArcadeAI/arcade-mcp-go/internal/protocol"
	"github.com/ArcadeAI/arcade-mcp-go/internal/testutil"
)

func TestInitializeHandshake(t *testing.T) {
	s := newTestServer(t, testutil.MathAddTool())
	sess := NewSession("sess-1", "test", 16)
	s.AttachSession(sess)

	raw := s.HandleMessage(context.Background(), sess,
		[]byte(`{"jsonrpc":"2.0","id":1,"method":"initialize","params":{"protocolVersion":"2025-06-18","capabilities":{"roots":{"listChanged":true}},"clientInfo":{"name":"inspector","version":"0.5"}}}`))
	resp := decodeResponse(t, raw)
	if resp.Error != nil {
		t.Fatalf("initialize error = %v", resp.Error)
	}

	var result protocol.InitializeResult
	if err := json.Unmarshal(resp.Result, &result); err != nil {
		t.Fatalf("decoding result: %v", err)
	}
	if result.ProtocolVersion != "2025-06-18" {
		t.Errorf("protocolVersion = %q, want 2025-06-18", result.ProtocolVersion)
	}
	if result.ServerInfo.Name != "arcade-mcp" || result.ServerInfo.Version != "test" {
		t.Errorf("serverInfo = %+v", result.ServerInfo)
	}
	if result.Capabilities.Tools == nil || !result.Capabilities.Tools.ListChanged {
		t.Error("tools capability missing listChanged")
	}
	if result.Capabilities.Resources == nil || !result.Capabilities.Resources.Subscribe {
		t.Error("resources capability missing subscribe")
	}
	if result.Capabilities.Logging == nil {
		t.Error("logging capability missing")
	}
	if result.Instructions != "Test server." {
		t.Errorf("instructions = %q", result.Instructions)
	}

	if sess.State() != StateInitializing {
		t.Fatalf("state after initialize = %v, want initializing", sess.State())
	}
	s.HandleMessage(context.Background(), sess, []byte(`{"jsonrpc":"2.0","method":"notifications/initialized"}`))
	if !sess.Initialized() {
		t.Fatal("session not initialized after notifications/initialized")
	}
}

func TestInitializeVersionNegotiation(t *testing.T) {
	s := newTestServer(t)

	tests := []struct {
		name      string
		requested string
		want      string
	}{
		{"latest echoed", "2025-06-18", "2025-06-18"},
		{"older supported echoed", "2024-11-05", "2024-11-05"},
		{"unknown answered with latest", "1999-01-01", "2025-06-18"},
		{"empty answered with latest", "", "2025-06-18"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sess := NewSession("sess-"+tt.name, "test", 16)
			s.AttachSession(sess)
			defer s.DetachSession(sess.ID)

			raw := s.HandleMessage(context.Background(), sess,
				[]byte(`{"jsonrpc":"2.0","id":1,"method":"initialize","params":{"protocolVersion":"`+tt.requested+`","capabilities":{},"clientInfo":{"name":"c","version":"1"}}}`))
			resp := decodeResponse(t, raw)
			var result protocol.InitializeResult
			if err := json.Unmarshal(resp.Result, &result); err != nil {
				t.Fatalf("decoding result: %v", err)
			}
			if result.ProtocolVersion != tt.want {
				t.Errorf("protocolVersion = %q, want %q", result.ProtocolVersion, tt.want)
			}
		})
	}
}

func TestRequestsGatedBeforeInitialization(t *testing.T) {
	s := newTestServer(t, testutil.MathAddTool())
	sess := NewSession("sess-1", "test", 16)
	s.AttachSession(sess)

	raw := s.HandleMessage(context.Background(), sess, []byte(`{"jsonrpc":"2.0","id":7,"method":"tools/list"}`))
	resp := decodeResponse(t, raw)
	if resp.Error == nil || resp.Error.Code != protocol.CodeInvalidRequest {
		t.Fatalf("error = %+v, want -32600", resp.Error)
	}
	if want := "Request not allowed before initialization: tools/list"; resp.Error.Message != want {
		t.Errorf("message = %q, want %q", resp.Error.Message, want)
	}

	// Ping is exempt from the gate.
	raw = s.HandleMessage(context.Background(), sess, []byte(`{"jsonrpc":"2.0","id":8,"method":"ping"}`))
	resp = decodeResponse(t, raw)
	if resp.Error != nil {
		t.Errorf("ping before init error = %v, want success", resp.Error)
	}
}

func TestMethodNotFound(t *testing.T) {
	s := newTestServer(t)
	sess := initializedSession(t, s, "sess-1")

	raw := s.HandleMessage(context.Background(), sess, []byte(`{"jsonrpc":"2.0","id":2,"method":"bogus/method"}`))
	resp := decodeResponse(t, raw)
	if resp.Error == nil || resp.Error.Code != protocol.CodeMethodNotFound {
		t.Fatalf("error = %+v, want -32601", resp.Error)
	}
	if want := "Method not found: bogus/method"; resp.Error.Message != want {
		t.Errorf("message = %q, want %q", resp.Error.Message, want)
	}
}

func TestParseAndShapeErrors(t *testing.T) {
	s := newTestServer(t)
	sess := initializedSession(t, s, "sess-1")

	t.Run("malformed JSON", func(t *testing.T) {
		raw := s.HandleMessage(context.Background(), sess, []byte(`{"jsonrpc":"2.0",`))
		resp := decodeResponse(t, raw)
		if resp.Error == nil || resp.Error.Code != protocol.CodeParseError {
			t.Fatalf("error = %+v, want -32700", resp.Error)
		}
		if resp.ID != nil {
			t.Errorf("id = %v, want null", resp.ID)
		}
	})

	t.Run("wrong field types", func(t *testing.T) {
		raw := s.HandleMessage(context.Background(), sess, []byte(`{"jsonrpc":"2.0","id":1,"method":123}`))
		resp := decodeResponse(t, raw)
		if resp.Error == nil || resp.Error.Code != protocol.CodeInvalidRequest {
			t.Fatalf("error = %+v, want -32600", resp.Error)
		}
	})

	t.Run("no method no result", func(t *testing.T) {
		raw := s.HandleMessage(context.Background(), sess, []byte(`{"jsonrpc":"2.0","id":4}`))
		resp := decodeResponse(t, raw)
		if resp.Error == nil || resp.Error.Code != protocol.CodeInvalidRequest {
			t.Fatalf("error = %+v, want -32600", resp.Error)
		}
	})
}

func TestNullIDIsNotification(t *testing.T) {
	s := newTestServer(t, testutil.MathAddTool())
	sess := initializedSession(t, s, "sess-1")

	raw := s.HandleMessage(context.Background(), sess, []byte(`{"jsonrpc":"2.0","id":null,"method":"tools/list"}`))
	if raw != nil {
		t.Errorf("response to id:null message = %s, want none", raw)
	}
}

func TestToolsList(t *testing.T) {
	s := newTestServer(t, testutil.MathAddTool())
	sess := initializedSession(t, s, "sess-1")

	raw := s.HandleMessage(context.Background(), sess, []byte(`{"jsonrpc":"2.0","id":3,"method":"tools/list"}`))
	resp := decodeResponse(t, raw)
	if resp.Error != nil {
		t.Fatalf("tools/list error = %v", resp.Error)
	}

	var result protocol.ListToolsResult
	if err := json.Unmarshal(resp.Result, &result); err != nil {
		t.Fatalf("decoding result: %v", err)
	}
	if len(result.Tools) != 1 {
		t.Fatalf("tools = %d, want 1", len(result.Tools))
	}
	tool := result.Tools[0]
	if tool.Name != "math_add" {
		t.Errorf("wire name = %q, want math_add", tool.Name)
	}
	if tool.Title != "add" {
		t.Errorf("title = %q, want add", tool.Title)
	}
	if tool.InputSchema == nil {
		t.Error("inputSchema missing")
	}
}

func TestToolsListEmpty(t *testing.T) {
	s := newTestServer(t)
	sess := initializedSession(t, s, "sess-1")

	raw := s.HandleMessage(context.Background(), sess, []byte(`{"jsonrpc":"2.0","id":3,"method":"tools/list"}`))
	var envelope map[string]json.RawMessage
	if err := json.Unmarshal(raw, &envelope); err != nil {
		t.Fatalf("invalid response: %v", err)
	}
	if !strings.Contains(string(envelope["result"]), `"tools":[]`) {
		t.Errorf("result = %s, want empty tools array", envelope["result"])
	}
}

func TestResourcesEndpoints(t *testing.T) {
	s := newTestServer(t)
	s.AddResource(protocol.Resource{URI: "resource://readme", Name: "readme", MimeType: "text/markdown"},
		func(ctx context.Context, uri string) (any, error) {
			return "# Readme", nil
		})
	s.AddResourceTemplate(protocol.ResourceTemplate{URITemplate: "resource://users/{id}", Name: "user"})
	sess := initializedSession(t, s, "sess-1")

	t.Run("list", func(t *testing.T) {
		raw := s.HandleMessage(context.Background(), sess, []byte(`{"jsonrpc":"2.0","id":5,"method":"resources/list"}`))
		resp := decodeResponse(t, raw)
		var result protocol.ListResourcesResult
		if err := json.Unmarshal(resp.Result, &result); err != nil {
			t.Fatalf("decoding result: %v", err)
		}
		if len(result.Resources) != 1 || result.Resources[0].URI != "resource://readme" {
			t.Errorf("resources = %+v", result.Resources)
		}
	})

	t.Run("templates list", func(t *testing.T) {
		raw := s.HandleMessage(context.Background(), sess, []byte(`{"jsonrpc":"2.0","id":6,"method":"resources/templates/list"}`))
		resp := decodeResponse(t, raw)
		var result protocol.ListResourceTemplatesResult
		if err := json.Unmarshal(resp.Result, &result); err != nil {
			t.Fatalf("decoding result: %v", err)
		}
		if len(result.ResourceTemplates) != 1 {
			t.Errorf("templates = %+v", result.ResourceTemplates)
		}
	})

	t.Run("read", func(t *testing.T) {
		raw := s.HandleMessage(context.Background(), sess, []byte(`{"jsonrpc":"2.0","id":7,"method":"resources/read","params":{"uri":"resource://readme"}}`))
		resp := decodeResponse(t, raw)
		var result protocol.ReadResourceResult
		if err := json.Unmarshal(resp.Result, &result); err != nil {
			t.Fatalf("decoding result: %v", err)
		}
		if len(result.Contents) != 1 || result.Contents[0].Text != "# Readme" {
			t.Errorf("contents = %+v", result.Contents)
		}
	})

	t.Run("read missing is -32002", func(t *testing.T) {
		raw := s.HandleMessage(context.Background(), sess, []byte(`{"jsonrpc":"2.0","id":8,"method":"resources/read","params":{"uri":"resource://missing"}}`))
		resp := decodeResponse(t, raw)
		if resp.Error == nil || resp.Error.Code != protocol.CodeResourceNotFound {
			t.Errorf("error = %+v, want -32002", resp.Error)
		}
	})

	t.Run("read invalid uri is -32602", func(t *testing.T) {
		raw := s.HandleMessage(context.Background(), sess, []byte(`{"jsonrpc":"2.0","id":9,"method":"resources/read","params":{"uri":""}}`))
		resp := decodeResponse(t, raw)
		if resp.Error == nil || resp.Error.Code != protocol.CodeInvalidParams {
			t.Errorf("error = %+v, want -32602", resp.Error)
		}
	})
}

func TestPromptsEndpoints(t *testing.T) {
	s := newTestServer(t)
	s.AddPrompt(protocol.Prompt{
		Name:        "review",
		Description: "Review code.",
		Arguments:   []protocol.PromptArgument{{Name: "file", Required: true}},
	}, nil)
	sess := initializedSession(t, s, "sess-1")

	t.Run("list", func(t *testing.T) {
		raw := s.HandleMessage(context.Background(), sess, []byte(`{"jsonrpc":"2.0","id":10,"method":"prompts/list"}`))
		resp := decodeResponse(t, raw)
		var result protocol.ListPromptsResult
		if err := json.Unmarshal(resp.Result, &result); err != nil {
			t.Fatalf("decoding result: %v", err)
		}
		if len(result.Prompts) != 1 || result.Prompts[0].Name != "review" {
			t.Errorf("prompts = %+v", result.Prompts)
		}
	})

	t.Run("get", func(t *testing.T) {
		raw := s.HandleMessage(context.Background(), sess, []byte(`{"jsonrpc":"2.0","id":11,"method":"prompts/get","params":{"name":"review","arguments":{"file":"main.go"}}}`))
		resp := decodeResponse(t, raw)
		if resp.Error != nil {
			t.Fatalf("prompts/get error = %v", resp.Error)
		}
		var result protocol.GetPromptResult
		if err := json.Unmarshal(resp.Result, &result); err != nil {
			t.Fatalf("decoding result: %v", err)
		}
		if len(result.Messages) != 1 {
			t.Errorf("messages = %+v", result.Messages)
		}
	})

	t.Run("get missing required arg", func(t *testing.T) {
		raw := s.HandleMessage(context.Background(), sess, []byte(`{"jsonrpc":"2.0","id":12,"method":"prompts/get","params":{"name":"review"}}`))
		resp := decodeResponse(t, raw)
		if resp.Error == nil || resp.Error.Code != protocol.CodeInternalError {
			t.Errorf("error = %+v, want -32603", resp.Error)
		}
	})

	t.Run("get unknown prompt", func(t *testing.T) {
		raw := s.HandleMessage(context.Background(), sess, []byte(`{"jsonrpc":"2.0","id":13,"method":"prompts/get","params":{"name":"ghost"}}`))
		resp := decodeResponse(t, raw)
		if resp.Error == nil || resp.Error.Code != protocol.CodeMethodNotFound {
			t.Errorf("error = %+v, want -32601 mapping for not found", resp.Error)
		}
	})
}

func TestLoggingSetLevel(t *testing.T) {
	s := newTestServer(t)
	sess := initializedSession(t, s, "sess-1")

	raw := s.HandleMessage(context.Background(), sess, []byte(`{"jsonrpc":"2.0","id":14,"method":"logging/setLevel","params":{"level":"warning"}}`))
	resp := decodeResponse(t, raw)
	if resp.Error != nil {
		t.Fatalf("setLevel error = %v", resp.Error)
	}
	if string(resp.Result) != "{}" {
		t.Errorf("result = %s, want {}", resp.Result)
	}

	raw = s.HandleMessage(context.Background(), sess, []byte(`{"jsonrpc":"2.0","id":15,"method":"logging/setLevel","params":{"level":"loud"}}`))
	resp = decodeResponse(t, raw)
	if resp.Error == nil || resp.Error.Code != protocol.CodeInvalidParams {
		t.Errorf("error = %+v, want -32602 for unknown level", resp.Error)
	}
}

func TestSubscribeUnsubscribeFlow(t *testing.T) {
	s := newTestServer(t)
	sess := initializedSession(t, s, "sess-1")

	raw := s.HandleMessage(context.Background(), sess,
		[]byte(`{"jsonrpc":"2.0","id":16,"method":"notifications/subscribe","params":{"methods":["notifications/tools/list_changed","notifications/message"]}}`))
	resp := decodeResponse(t, raw)
	if resp.Error != nil {
		t.Fatalf("subscribe error = %v", resp.Error)
	}
	var result protocol.SubscribeResult
	if err := json.Unmarshal(resp.Result, &result); err != nil {
		t.Fatalf("decoding result: %v", err)
	}
	if len(result.Subscriptions) != 2 {
		t.Fatalf("subscriptions = %d, want 2", len(result.Subscriptions))
	}

	ids := []string{result.Subscriptions[0].SubscriptionID, result.Subscriptions[1].SubscriptionID}
	payload, _ := json.Marshal(map[string]any{"subscription_ids": ids})
	raw = s.HandleMessage(context.Background(), sess,
		[]byte(`{"jsonrpc":"2.0","id":17,"method":"notifications/unsubscribe","params":`+string(payload)+`}`))
	resp = decodeResponse(t, raw)
	var unsub protocol.UnsubscribeResult
	if err := json.Unmarshal(resp.Result, &unsub); err != nil {
		t.Fatalf("decoding result: %v", err)
	}
	if !unsub.Success {
		t.Error("unsubscribe success = false, want true")
	}

	raw = s.HandleMessage(context.Background(), sess,
		[]byte(`{"jsonrpc":"2.0","id":18,"method":"notifications/unsubscribe","params":{"subscription_ids":["nope"]}}`))
	resp = decodeResponse(t, raw)
	if err := json.Unmarshal(resp.Result, &unsub); err != nil {
		t.Fatalf("decoding result: %v", err)
	}
	if unsub.Success {
		t.Error("unsubscribe of unknown id success = true, want false")
	}
}

func TestListChangedNotificationFlow(t *testing.T) {
	s := newTestServer(t, testutil.MathAddTool())
	sess := initializedSession(t, s, "sess-1")

	raw := s.HandleMessage(context.Background(), sess,
		[]byte(`{"jsonrpc":"2.0","id":20,"method":"notifications/subscribe","params":{"methods":["notifications/tools/list_changed"]}}`))
	if resp := decodeResponse(t, raw); resp.Error != nil {
		t.Fatalf("subscribe error = %v", resp.Error)
	}

	multiply := testutil.MathAddTool()
	multiply.Definition.Name = "multiply"
	if err := s.AddTool(multiply); err != nil {
		t.Fatalf("AddTool() error = %v", err)
	}

	select {
	case payload := <-sess.Outbound():
		var note struct {
			Method string `json:"method"`
		}
		if err := json.Unmarshal(payload, &note); err != nil {
			t.Fatalf("invalid notification: %v", err)
		}
		if note.Method != protocol.NotificationToolsListChanged {
			t.Errorf("method = %q, want tools/list_changed", note.Method)
		}
	default:
		t.Fatal("no list_changed notification enqueued")
	}
}

func TestClientResponseResolution(t *testing.T) {
	s := newTestServer(t)
	sess := initializedSession(t, s, "sess-1")

	got := make(chan error, 1)
	go func() {
		_, err := sess.Requests().SendRequest(context.Background(), "roots/list", nil)
		got <- err
	}()

	// Drain the outbound request and answer it through the dispatcher.
	var sent protocol.Message
	select {
	case payload := <-sess.Outbound():
		if err := json.Unmarshal(payload, &sent); err != nil {
			t.Fatalf("invalid outbound request: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no outbound request")
	}

	idJSON, _ := json.Marshal(sent.ID)
	response := []byte(`{"jsonrpc":"2.0","id":` + string(idJSON) + `,"result":{"roots":[]}}`)
	if raw := s.HandleMessage(context.Background(), sess, response); raw != nil {
		t.Errorf("response to a response = %s, want none", raw)
	}

	select {
	case err := <-got:
		if err != nil {
			t.Errorf("SendRequest() error = %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("SendRequest did not resolve")
	}
}
