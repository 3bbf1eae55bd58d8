package client

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// WorkerClient exercises the engine-facing worker endpoints and the
// ops endpoints with plain HTTP, outside any MCP session.
type WorkerClient struct {
	baseURL string
	secret  string
	client  *http.Client
}

// WorkerHealth is the /worker/health response body.
type WorkerHealth struct {
	Status    string `json:"status"`
	ToolCount int    `json:"tool_count"`
}

// WorkerTool is one /worker/catalog entry.
type WorkerTool struct {
	Name               string   `json:"name"`
	FullyQualifiedName string   `json:"fully_qualified_name"`
	Description        string   `json:"description"`
	RequiresAuth       bool     `json:"requires_auth"`
	RequiredSecrets    []string `json:"required_secrets"`
}

// InvokeResult is the /worker/tools/invoke response body. Tool
// failures arrive as Success=false, not as HTTP errors.
type InvokeResult struct {
	InvocationID string        `json:"invocation_id"`
	Success      bool          `json:"success"`
	Output       *InvokeOutput `json:"output,omitempty"`
	Error        *InvokeError  `json:"error,omitempty"`
	DurationMs   int64         `json:"duration_ms"`
	FinishedAt   string        `json:"finished_at"`
}

// InvokeOutput wraps the tool's return value.
type InvokeOutput struct {
	Value interface{} `json:"value"`
}

// InvokeError carries the failure message of an unsuccessful call.
type InvokeError struct {
	Message string `json:"message"`
}

// NewWorkerClient creates a worker client for the server root URL
// (for example http://localhost:7777).
func NewWorkerClient(baseURL, secret string) *WorkerClient {
	return &WorkerClient{
		baseURL: baseURL,
		secret:  secret,
		client:  &http.Client{Timeout: 30 * time.Second},
	}
}

// BaseURL returns the server root this client talks to.
func (w *WorkerClient) BaseURL() string {
	return w.baseURL
}

// WithSecret returns a copy of the client using a different bearer
// secret. An empty secret sends no Authorization header at all.
func (w *WorkerClient) WithSecret(secret string) *WorkerClient {
	return &WorkerClient{baseURL: w.baseURL, secret: secret, client: w.client}
}

// Health checks /worker/health, which is open even when the secured
// worker endpoints require a bearer secret.
func (w *WorkerClient) Health() (*WorkerHealth, error) {
	status, body, err := w.Raw(http.MethodGet, "/worker/health", nil)
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, fmt.Errorf("worker health returned HTTP %d: %s", status, body)
	}

	var health WorkerHealth
	if err := json.Unmarshal([]byte(body), &health); err != nil {
		return nil, fmt.Errorf("decoding worker health: %w", err)
	}
	return &health, nil
}

// Catalog fetches the full tool catalog from /worker/catalog.
func (w *WorkerClient) Catalog() ([]WorkerTool, error) {
	status, body, err := w.Raw(http.MethodGet, "/worker/catalog", nil)
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, fmt.Errorf("worker catalog returned HTTP %d: %s", status, body)
	}

	var tools []WorkerTool
	if err := json.Unmarshal([]byte(body), &tools); err != nil {
		return nil, fmt.Errorf("decoding worker catalog: %w", err)
	}
	return tools, nil
}

// Invoke runs one tool through /worker/tools/invoke.
func (w *WorkerClient) Invoke(toolkit, name string, inputs map[string]interface{}, userID string) (*InvokeResult, error) {
	payload := map[string]interface{}{
		"tool": map[string]string{
			"toolkit": toolkit,
			"name":    name,
		},
		"inputs": inputs,
		"context": map[string]string{
			"user_id": userID,
		},
	}
	encoded, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encoding invoke request: %w", err)
	}

	status, body, err := w.Raw(http.MethodPost, "/worker/tools/invoke", encoded)
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, fmt.Errorf("worker invoke returned HTTP %d: %s", status, body)
	}

	var result InvokeResult
	if err := json.Unmarshal([]byte(body), &result); err != nil {
		return nil, fmt.Errorf("decoding invoke response: %w", err)
	}
	return &result, nil
}

// Raw issues a single HTTP request against the server and returns the
// status code and body. Suites use it directly for the cases where the
// HTTP status itself is the behavior under test.
func (w *WorkerClient) Raw(method, path string, body []byte) (int, string, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequest(method, w.baseURL+path, reader)
	if err != nil {
		return 0, "", err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if w.secret != "" {
		req.Header.Set("Authorization", "Bearer "+w.secret)
	}

	resp, err := w.client.Do(req)
	if err != nil {
		return 0, "", err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, "", err
	}
	return resp.StatusCode, string(respBody), nil
}
