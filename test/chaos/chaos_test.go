// Package chaos provides chaos testing for the Arcade MCP server.
//
// These tests verify graceful degradation under hostile input: garbage
// payloads, oversized bodies, rate limit exhaustion, slow clients.
// They need a running server and are skipped in short mode.
//
// Run with: go test -v ./test/chaos/... -timeout 10m
package chaos

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"sync"
	"testing"
	"time"
)

// Config for chaos tests
type Config struct {
	ServerURL string
}

func getConfig() Config {
	serverURL := os.Getenv("ARCADE_SERVER_URL")
	if serverURL == "" {
		serverURL = "http://localhost:7777"
	}

	return Config{ServerURL: serverURL}
}

// postMCP sends one raw POST to /mcp and returns the status code, the
// Retry-After header, and the body.
func postMCP(ctx context.Context, cfg Config, sessionID string, body []byte) (int, string, []byte, error) {
	client := &http.Client{Timeout: 10 * time.Second}

	req, err := http.NewRequestWithContext(ctx, "POST", cfg.ServerURL+"/mcp", bytes.NewReader(body))
	if err != nil {
		return 0, "", nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if sessionID != "" {
		req.Header.Set("Mcp-Session-Id", sessionID)
	}

	resp, err := client.Do(req)
	if err != nil {
		return 0, "", nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, "", nil, err
	}
	return resp.StatusCode, resp.Header.Get("Retry-After"), respBody, nil
}

// rpcBody builds a JSON-RPC request body.
func rpcBody(method string, params interface{}) []byte {
	body, _ := json.Marshal(map[string]interface{}{
		"jsonrpc": "2.0",
		"id":      time.Now().UnixNano(),
		"method":  method,
		"params":  params,
	})
	return body
}

// requireHealthy fails the test when the server stops answering /health.
func requireHealthy(t *testing.T, cfg Config, after string) {
	t.Helper()

	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Get(cfg.ServerURL + "/health")
	if err != nil {
		t.Fatalf("Server unresponsive after %s: %v", after, err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Server unhealthy after %s: %d", after, resp.StatusCode)
	}
	t.Logf("Server remained healthy after %s", after)
}

// TestMalformedJSON verifies garbage input gets a parse error envelope,
// not a dropped connection.
func TestMalformedJSON(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping chaos test in short mode")
	}

	cfg := getConfig()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	payloads := [][]byte{
		[]byte("{ invalid json }}}"),
		[]byte("not json at all"),
		[]byte(`{"jsonrpc":"2.0","id":1`),
		{0xff, 0xfe, 0x00},
	}

	for _, payload := range payloads {
		status, _, body, err := postMCP(ctx, cfg, "chaos-malformed", payload)
		if err != nil {
			t.Fatalf("Request failed outright: %v", err)
		}

		// Parse failures come back as a JSON-RPC error envelope on 200.
		if status != http.StatusOK {
			t.Errorf("Malformed payload %q: status = %d, want %d", payload, status, http.StatusOK)
			continue
		}
		if !strings.Contains(string(body), "-32700") {
			t.Errorf("Malformed payload %q: body missing parse error code: %s", payload, body)
		}
	}

	requireHealthy(t, cfg, "malformed JSON test")
}

// TestOversizedBody verifies the request body cap.
func TestOversizedBody(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping chaos test in short mode")
	}

	cfg := getConfig()
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// Just past the 1 MiB body limit.
	huge := bytes.Repeat([]byte("x"), 1<<20+1)
	status, _, _, err := postMCP(ctx, cfg, "chaos-oversized", huge)
	if err != nil {
		t.Fatalf("Request failed outright: %v", err)
	}
	if status != http.StatusRequestEntityTooLarge {
		t.Errorf("Oversized body: status = %d, want %d", status, http.StatusRequestEntityTooLarge)
	}

	requireHealthy(t, cfg, "oversized body test")
}

// TestRateLimitExhaustion floods one session key past its burst and
// verifies throttling kicks in and wears off.
func TestRateLimitExhaustion(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping chaos test in short mode")
	}

	cfg := getConfig()
	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	sessionID := fmt.Sprintf("chaos-flood-%d", time.Now().UnixNano())
	listBody := rpcBody("tools/list", map[string]interface{}{})

	// Burst is 20; double it with no pacing to guarantee throttling.
	throttled := 0
	for i := 0; i < 40; i++ {
		status, retryAfter, body, err := postMCP(ctx, cfg, sessionID, listBody)
		if err != nil {
			t.Fatalf("Flood request %d failed outright: %v", i, err)
		}
		if status == http.StatusTooManyRequests {
			throttled++
			if retryAfter != "1" {
				t.Errorf("Retry-After = %q, want %q", retryAfter, "1")
			}
			if !strings.Contains(string(body), "-32029") {
				t.Errorf("429 body missing rate limit code: %s", body)
			}
		}
	}

	if throttled == 0 {
		t.Fatal("No requests throttled after 40 unpaced requests")
	}
	t.Logf("Throttled %d/40 requests", throttled)

	// Tokens refill at 10/s, so the key recovers quickly.
	time.Sleep(2 * time.Second)
	status, _, _, err := postMCP(ctx, cfg, sessionID, listBody)
	if err != nil {
		t.Fatalf("Recovery request failed outright: %v", err)
	}
	if status != http.StatusOK {
		t.Errorf("Recovery request: status = %d, want %d", status, http.StatusOK)
	}

	requireHealthy(t, cfg, "rate limit exhaustion test")
}

// TestUnsupportedProtocolVersion verifies the version header gate.
func TestUnsupportedProtocolVersion(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping chaos test in short mode")
	}

	cfg := getConfig()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client := &http.Client{Timeout: 10 * time.Second}
	req, err := http.NewRequestWithContext(ctx, "POST", cfg.ServerURL+"/mcp", bytes.NewReader(rpcBody("tools/list", map[string]interface{}{})))
	if err != nil {
		t.Fatal(err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Mcp-Session-Id", "chaos-version")
	req.Header.Set("mcp-protocol-version", "1999-01-01")

	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("Request failed outright: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)

	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("Unsupported version: status = %d, want %d", resp.StatusCode, http.StatusBadRequest)
	}
	if !strings.Contains(string(body), "Unsupported protocol version") {
		t.Errorf("Body missing version error: %s", body)
	}

	requireHealthy(t, cfg, "unsupported protocol version test")
}

// TestNetworkTimeout verifies server handles slow clients
func TestNetworkTimeout(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping chaos test in short mode")
	}

	cfg := getConfig()

	// Use very short timeout
	client := &http.Client{Timeout: 1 * time.Millisecond}

	// This should timeout, not crash server
	_, err := client.Get(cfg.ServerURL + "/health")
	if err == nil {
		t.Log("Request succeeded despite short timeout")
	} else {
		t.Logf("Expected timeout: %v", err)
	}

	requireHealthy(t, cfg, "network timeout test")
}

// TestConcurrentStatelessChurn hammers /mcp from many sessions at once.
// Every POST creates and discards a stateless session, so this stresses
// the session setup path.
func TestConcurrentStatelessChurn(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping chaos test in short mode")
	}

	cfg := getConfig()
	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	const users = 10
	const callsPerUser = 5

	var wg sync.WaitGroup
	errCh := make(chan error, users*callsPerUser)

	for i := 0; i < users; i++ {
		wg.Add(1)
		go func(userID int) {
			defer wg.Done()
			sessionID := fmt.Sprintf("chaos-churn-%d", userID)

			for j := 0; j < callsPerUser; j++ {
				status, _, _, err := postMCP(ctx, cfg, sessionID, rpcBody("tools/list", map[string]interface{}{}))
				if err != nil {
					errCh <- err
				} else if status != http.StatusOK {
					errCh <- fmt.Errorf("status %d", status)
				}
				time.Sleep(150 * time.Millisecond)
			}
		}(i)
	}

	wg.Wait()
	close(errCh)

	errors := 0
	for err := range errCh {
		errors++
		t.Logf("Churn error: %v", err)
	}
	if errors > 2 {
		t.Errorf("Too many errors in concurrent churn: %d/%d", errors, users*callsPerUser)
	}

	requireHealthy(t, cfg, "concurrent churn test")
}

// TestGracefulShutdown verifies clean shutdown behavior
func TestGracefulShutdown(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping chaos test in short mode")
	}

	t.Log("Graceful shutdown test requires manual verification:")
	t.Log("1. Start server: go run ./cmd/arcade-mcp serve")
	t.Log("2. Open an SSE stream: curl -N http://localhost:7777/mcp (with --sse variant)")
	t.Log("3. Send SIGTERM: kill -TERM <pid>")
	t.Log("4. Verify the stream closes and logs show clean shutdown")
	t.Log("5. Verify exit code 0")
	t.Skip("Manual test - see instructions above")
}
