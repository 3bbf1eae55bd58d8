package transport

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/ArcadeAI/arcade-mcp-go/internal/catalog"
	"github.com/ArcadeAI/arcade-mcp-go/internal/protocol"
	"github.com/ArcadeAI/arcade-mcp-go/internal/server"
	"github.com/ArcadeAI/arcade-mcp-go/internal/testutil"
)

// newTestTransport builds an HTTP transport around an httptest server.
func newTestTransport(t *testing.T, variant Variant, workerSecret string, tools ...*catalog.MaterializedTool) (*HTTP, *httptest.Server) {
	t.Helper()
	cat := catalog.New()
	for _, tool := range tools {
		if err := cat.Add(tool); err != nil {
			t.Fatalf("catalog.Add() error = %v", err)
		}
	}
	srv := server.New(testutil.NewTestConfig(t, testutil.WithWorkerSecret(workerSecret)), cat, nil, nil)
	tr := NewHTTP(srv, variant)
	ts := httptest.NewServer(tr.buildMux())
	t.Cleanup(ts.Close)
	return tr, ts
}

func postJSON(t *testing.T, url, body string, headers map[string]string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(http.MethodPost, url, strings.NewReader(body))
	if err != nil {
		t.Fatalf("NewRequest() error = %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("POST %s error = %v", url, err)
	}
	return resp
}

func readAll(t *testing.T, resp *http.Response) string {
	t.Helper()
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("reading response body: %v", err)
	}
	return string(body)
}

func TestHealthAndReadyEndpoints(t *testing.T) {
	_, ts := newTestTransport(t, VariantStreamable, "")

	for path, want := range map[string]string{
		"/health": `{"status":"ok"}`,
		"/ready":  `{"status":"ready"}`,
	} {
		resp, err := http.Get(ts.URL + path)
		if err != nil {
			t.Fatalf("GET %s error = %v", path, err)
		}
		body := readAll(t, resp)
		if resp.StatusCode != http.StatusOK {
			t.Errorf("GET %s status = %d, want 200", path, resp.StatusCode)
		}
		if body != want {
			t.Errorf("GET %s body = %q, want %q", path, body, want)
		}
	}
}

func TestMetricsEndpoint(t *testing.T) {
	_, ts := newTestTransport(t, VariantStreamable, "")

	resp, err := http.Get(ts.URL + "/metrics")
	if err != nil {
		t.Fatalf("GET /metrics error = %v", err)
	}
	body := readAll(t, resp)
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}
	if !strings.Contains(body, "go_goroutines") {
		t.Error("metrics output missing go_goroutines")
	}
}

func TestStreamablePostToolCall(t *testing.T) {
	_, ts := newTestTransport(t, VariantStreamable, "", testutil.MathAddTool())

	resp := postJSON(t, ts.URL+"/mcp",
		`{"jsonrpc":"2.0","id":1,"method":"tools/call","params":{"name":"math_add","arguments":{"a":2,"b":3}}}`, nil)
	body := readAll(t, resp)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, body = %s", resp.StatusCode, body)
	}

	var envelope struct {
		Result struct {
			StructuredContent map[string]any `json:"structuredContent"`
			IsError           bool           `json:"isError"`
		} `json:"result"`
	}
	if err := json.Unmarshal([]byte(body), &envelope); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if envelope.Result.IsError {
		t.Fatalf("isError = true, body = %s", body)
	}
	if got := envelope.Result.StructuredContent["result"]; got != 5.0 {
		t.Errorf("result = %v, want 5", got)
	}
}

func TestStreamablePostNotificationAccepted(t *testing.T) {
	_, ts := newTestTransport(t, VariantStreamable, "")

	resp := postJSON(t, ts.URL+"/mcp", `{"jsonrpc":"2.0","method":"notifications/initialized"}`, nil)
	body := readAll(t, resp)
	if resp.StatusCode != http.StatusAccepted {
		t.Errorf("status = %d, want 202", resp.StatusCode)
	}
	if !strings.Contains(body, `"status":"ok"`) {
		t.Errorf("body = %q", body)
	}
}

func TestStreamablePostParseError(t *testing.T) {
	_, ts := newTestTransport(t, VariantStreamable, "")

	resp := postJSON(t, ts.URL+"/mcp", `{not json`, nil)
	body := readAll(t, resp)
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}
	if !strings.Contains(body, fmt.Sprint(protocol.CodeParseError)) {
		t.Errorf("body = %q, want parse error code", body)
	}
}

func TestStreamablePostRejectsContentType(t *testing.T) {
	_, ts := newTestTransport(t, VariantStreamable, "")

	req, _ := http.NewRequest(http.MethodPost, ts.URL+"/mcp", strings.NewReader(`{}`))
	req.Header.Set("Content-Type", "text/plain")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("POST error = %v", err)
	}
	body := readAll(t, resp)
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}
	if !strings.Contains(body, "Content-Type must be application/json") {
		t.Errorf("body = %q", body)
	}
}

func TestStreamablePostBodyTooLarge(t *testing.T) {
	_, ts := newTestTransport(t, VariantStreamable, "")

	huge := bytes.Repeat([]byte("a"), maxBodyBytes+1)
	resp := postJSON(t, ts.URL+"/mcp", string(huge), nil)
	readAll(t, resp)
	if resp.StatusCode != http.StatusRequestEntityTooLarge {
		t.Errorf("status = %d, want 413", resp.StatusCode)
	}
}

func TestMCPProtocolVersionHeader(t *testing.T) {
	_, ts := newTestTransport(t, VariantStreamable, "")

	resp := postJSON(t, ts.URL+"/mcp", `{"jsonrpc":"2.0","id":1,"method":"ping"}`,
		map[string]string{"mcp-protocol-version": "1999-01-01"})
	body := readAll(t, resp)
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}
	if !strings.Contains(body, "Unsupported protocol version: 1999-01-01") {
		t.Errorf("body = %q", body)
	}

	for _, v := range protocol.SupportedProtocolVersions {
		resp := postJSON(t, ts.URL+"/mcp", `{"jsonrpc":"2.0","id":1,"method":"ping"}`,
			map[string]string{"mcp-protocol-version": v})
		readAll(t, resp)
		if resp.StatusCode != http.StatusOK {
			t.Errorf("version %s: status = %d, want 200", v, resp.StatusCode)
		}
	}
}

func TestWorkerHealth(t *testing.T) {
	_, ts := newTestTransport(t, VariantStreamable, "", testutil.MathAddTool())

	resp, err := http.Get(ts.URL + "/worker/health")
	if err != nil {
		t.Fatalf("GET /worker/health error = %v", err)
	}
	body := readAll(t, resp)
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}

	var health struct {
		Status    string `json:"status"`
		ToolCount int    `json:"tool_count"`
	}
	if err := json.Unmarshal([]byte(body), &health); err != nil {
		t.Fatalf("decoding body: %v", err)
	}
	if health.Status != "ok" || health.ToolCount != 1 {
		t.Errorf("health = %+v, want ok with 1 tool", health)
	}
}

func TestWorkerEndpointsRequireBearer(t *testing.T) {
	_, ts := newTestTransport(t, VariantStreamable, "test-secret", testutil.MathAddTool())

	resp, err := http.Get(ts.URL + "/worker/catalog")
	if err != nil {
		t.Fatalf("GET error = %v", err)
	}
	body := readAll(t, resp)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("no token: status = %d, want 401", resp.StatusCode)
	}
	if !strings.Contains(body, "Authentication required") {
		t.Errorf("body = %q", body)
	}

	req, _ := http.NewRequest(http.MethodGet, ts.URL+"/worker/catalog", nil)
	req.Header.Set("Authorization", "Bearer wrong")
	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("GET error = %v", err)
	}
	body = readAll(t, resp)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("bad token: status = %d, want 401", resp.StatusCode)
	}
	if !strings.Contains(body, "Invalid or expired token") {
		t.Errorf("body = %q", body)
	}

	// Worker health stays open; engines probe it before authenticating.
	resp, err = http.Get(ts.URL + "/worker/health")
	if err != nil {
		t.Fatalf("GET error = %v", err)
	}
	readAll(t, resp)
	if resp.StatusCode != http.StatusOK {
		t.Errorf("health with auth enabled: status = %d, want 200", resp.StatusCode)
	}
}

func TestWorkerCatalog(t *testing.T) {
	_, ts := newTestTransport(t, VariantStreamable, "test-secret", testutil.MathAddTool())

	req, _ := http.NewRequest(http.MethodGet, ts.URL+"/worker/catalog", nil)
	req.Header.Set("Authorization", "Bearer test-secret")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("GET error = %v", err)
	}
	body := readAll(t, resp)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, body = %s", resp.StatusCode, body)
	}

	var tools []struct {
		Name               string `json:"name"`
		FullyQualifiedName string `json:"fully_qualified_name"`
		RequiresAuth       bool   `json:"requires_auth"`
		Toolkit            struct {
			Name string `json:"name"`
		} `json:"toolkit"`
	}
	if err := json.Unmarshal([]byte(body), &tools); err != nil {
		t.Fatalf("decoding catalog: %v", err)
	}
	if len(tools) != 1 {
		t.Fatalf("catalog has %d tools, want 1", len(tools))
	}
	if tools[0].FullyQualifiedName != "math.add" || tools[0].Toolkit.Name != "math" {
		t.Errorf("entry = %+v", tools[0])
	}
	if tools[0].RequiresAuth {
		t.Error("requires_auth = true for requirement-free tool")
	}
}

func TestWorkerInvoke(t *testing.T) {
	_, ts := newTestTransport(t, VariantStreamable, "test-secret", testutil.MathAddTool())

	resp := postJSON(t, ts.URL+"/worker/tools/invoke",
		`{"tool":{"toolkit":"math","name":"add"},"inputs":{"a":2,"b":3},"context":{"user_id":"dev@example.com"}}`,
		map[string]string{"Authorization": "Bearer test-secret"})
	body := readAll(t, resp)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, body = %s", resp.StatusCode, body)
	}

	var result struct {
		Success      bool   `json:"success"`
		InvocationID string `json:"invocation_id"`
		FinishedAt   string `json:"finished_at"`
		Output       *struct {
			Value map[string]any `json:"value"`
		} `json:"output"`
	}
	if err := json.Unmarshal([]byte(body), &result); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if !result.Success {
		t.Fatalf("success = false, body = %s", body)
	}
	if result.Output == nil || result.Output.Value["result"] != 5.0 {
		t.Errorf("output = %+v, want result 5", result.Output)
	}
	if result.InvocationID == "" || result.FinishedAt == "" {
		t.Errorf("missing invocation metadata: %s", body)
	}
}

func TestWorkerInvokeUnknownTool(t *testing.T) {
	_, ts := newTestTransport(t, VariantStreamable, "test-secret")

	resp := postJSON(t, ts.URL+"/worker/tools/invoke",
		`{"tool":{"toolkit":"nope","name":"missing"},"inputs":{}}`,
		map[string]string{"Authorization": "Bearer test-secret"})
	body := readAll(t, resp)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200 with error payload", resp.StatusCode)
	}

	var result struct {
		Success bool `json:"success"`
		Error   *struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal([]byte(body), &result); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if result.Success {
		t.Fatal("success = true for unknown tool")
	}
	if result.Error == nil || !strings.Contains(result.Error.Message, "unknown tool") {
		t.Errorf("error = %+v", result.Error)
	}
}

func TestWorkerInvokeMissingToolName(t *testing.T) {
	_, ts := newTestTransport(t, VariantStreamable, "test-secret")

	resp := postJSON(t, ts.URL+"/worker/tools/invoke",
		`{"inputs":{"a":1}}`,
		map[string]string{"Authorization": "Bearer test-secret"})
	body := readAll(t, resp)
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}
	if !strings.Contains(body, "Missing tool.toolkit or tool.name") {
		t.Errorf("body = %q", body)
	}
}

func TestEvictSessionsTimeout(t *testing.T) {
	srv := server.New(testutil.NewTestConfig(t), catalog.New(), nil, nil)
	tr := NewHTTP(srv, VariantSSE)

	sess := server.NewSession("stale", "sse", 8)
	srv.AttachSession(sess)
	tr.store.StoreEvent("stale", []byte("x"))

	tr.evictSessions(time.Now().Add(6 * time.Minute))
	if srv.SessionCount() != 0 {
		t.Errorf("SessionCount() = %d, want 0", srv.SessionCount())
	}
	if events := tr.store.ReplayEventsAfter("stale", 0, 0); len(events) != 0 {
		t.Errorf("event stream survived eviction: %d events", len(events))
	}
}

func TestEvictSessionsOverCap(t *testing.T) {
	cfg := testutil.NewTestConfig(t, testutil.WithMaxSessions(1))
	srv := server.New(cfg, catalog.New(), nil, nil)
	tr := NewHTTP(srv, VariantSSE)

	older := server.NewSession("older", "sse", 8)
	srv.AttachSession(older)
	time.Sleep(5 * time.Millisecond)
	newer := server.NewSession("newer", "sse", 8)
	srv.AttachSession(newer)

	tr.evictSessions(time.Now())
	if _, ok := srv.GetSession("older"); ok {
		t.Error("oldest session survived the cap")
	}
	if _, ok := srv.GetSession("newer"); !ok {
		t.Error("newest session was evicted")
	}
}
