// arcade-relay bridges a stdio MCP client to a remote arcade-mcp server.
//
// Desktop MCP hosts launch a local command and speak newline-delimited
// JSON-RPC over its stdin/stdout. The relay forwards each line as one
// streamable HTTP POST to the remote /mcp endpoint and writes the
// response line back to stdout. Notifications are forwarded and their
// acknowledgements discarded, since the client expects no reply.
//
// All diagnostics go to stderr; stdout carries only protocol lines.
package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/ArcadeAI/arcade-mcp-go/internal/protocol"
)

const (
	relayInitialBuffer = 64 * 1024
	relayMaxLine       = 1 << 20
)

func main() {
	serverURL := flag.String("server", "http://localhost:7777/mcp", "Remote arcade-mcp endpoint URL")
	secret := flag.String("secret", "", "Bearer secret for secured deployments (or set ARCADE_WORKER_SECRET)")
	timeout := flag.Duration("timeout", 0, "Per-request timeout, 0 waits indefinitely")
	flag.Parse()

	bearer := *secret
	if bearer == "" {
		bearer = os.Getenv("ARCADE_WORKER_SECRET")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	b := &bridge{
		endpoint:  *serverURL,
		secret:    bearer,
		sessionID: uuid.New().String(),
		client:    &http.Client{Timeout: *timeout},
		out:       os.Stdout,
	}

	fmt.Fprintf(os.Stderr, "arcade-relay: forwarding stdio to %s (session %s)\n", b.endpoint, b.sessionID)

	if err := b.run(ctx, os.Stdin); err != nil {
		fmt.Fprintf(os.Stderr, "arcade-relay: %v\n", err)
		os.Exit(1)
	}
}

// bridge pumps stdin lines to the remote endpoint and responses back to
// stdout. One session id spans the bridge's lifetime so the remote's
// rate limiter and logs see a single client.
type bridge struct {
	endpoint  string
	secret    string
	sessionID string
	client    *http.Client
	out       io.Writer

	outMu sync.Mutex
}

// run reads stdin until EOF or cancellation. Each line is forwarded in
// its own goroutine so a slow tool call does not block later requests;
// JSON-RPC ids keep responses correlated regardless of completion order.
func (b *bridge) run(ctx context.Context, in io.Reader) error {
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, relayInitialBuffer), relayMaxLine)

	var wg sync.WaitGroup
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}

		msg := make([]byte, len(line))
		copy(msg, line)

		wg.Add(1)
		go func() {
			defer wg.Done()
			b.forward(ctx, msg)
		}()

		select {
		case <-ctx.Done():
			wg.Wait()
			return nil
		default:
		}
	}
	wg.Wait()

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("reading stdin: %w", err)
	}
	fmt.Fprintln(os.Stderr, "arcade-relay: stdin closed")
	return nil
}

// forward posts one message. Responses go to stdout; notification
// acknowledgements are dropped. A throttled request is retried once
// after the server-advised wait. Transport failures become a
// synthesized error envelope so the client is not left waiting on a
// dead request.
func (b *bridge) forward(ctx context.Context, line []byte) {
	var msg protocol.Message
	parseErr := json.Unmarshal(line, &msg)
	isNotification := parseErr == nil && msg.IsNotification()

	body, status, retry, err := b.post(ctx, line)
	if err == nil && status == http.StatusTooManyRequests && retry > 0 {
		fmt.Fprintf(os.Stderr, "arcade-relay: throttled, retrying in %s\n", retry)
		select {
		case <-time.After(retry):
			body, status, _, err = b.post(ctx, line)
		case <-ctx.Done():
			return
		}
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "arcade-relay: forward failed: %v\n", err)
		if parseErr == nil && msg.IsRequest() {
			b.writeError(msg.ID, fmt.Sprintf("relay: %v", err))
		}
		return
	}

	if isNotification {
		// 202 with {"status":"ok"}; nothing the client wants.
		return
	}

	if status != http.StatusOK {
		fmt.Fprintf(os.Stderr, "arcade-relay: HTTP %d: %s\n", status, body)
		if parseErr == nil && msg.IsRequest() {
			b.writeError(msg.ID, fmt.Sprintf("relay: HTTP %d from server", status))
		}
		return
	}

	b.writeLine(body)
}

func (b *bridge) post(ctx context.Context, line []byte) ([]byte, int, time.Duration, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.endpoint, bytes.NewReader(line))
	if err != nil {
		return nil, 0, 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Mcp-Session-Id", b.sessionID)
	if b.secret != "" {
		req.Header.Set("Authorization", "Bearer "+b.secret)
	}

	resp, err := b.client.Do(req)
	if err != nil {
		return nil, 0, 0, err
	}
	defer resp.Body.Close()

	retry, _ := retryAfter(resp)
	body, err := io.ReadAll(io.LimitReader(resp.Body, relayMaxLine))
	if err != nil {
		return nil, resp.StatusCode, retry, err
	}
	return body, resp.StatusCode, retry, nil
}

func (b *bridge) writeError(id any, message string) {
	payload, err := json.Marshal(protocol.NewErrorResponse(id, protocol.CodeInternalError, message, nil))
	if err != nil {
		fmt.Fprintf(os.Stderr, "arcade-relay: marshal error response: %v\n", err)
		return
	}
	b.writeLine(payload)
}

// writeLine serializes stdout access across forwarding goroutines.
func (b *bridge) writeLine(payload []byte) {
	b.outMu.Lock()
	defer b.outMu.Unlock()

	if _, err := b.out.Write(payload); err != nil {
		fmt.Fprintf(os.Stderr, "arcade-relay: stdout write failed: %v\n", err)
		return
	}
	if _, err := b.out.Write([]byte{'\n'}); err != nil {
		fmt.Fprintf(os.Stderr, "arcade-relay: stdout write failed: %v\n", err)
	}
}

// retryAfter reports the server-advised wait before retrying, when the
// response carried one.
func retryAfter(resp *http.Response) (time.Duration, bool) {
	v := resp.Header.Get("Retry-After")
	if v == "" {
		return 0, false
	}
	var seconds int
	if _, err := fmt.Sscanf(v, "%d", &seconds); err != nil || seconds < 0 {
		return 0, false
	}
	return time.Duration(seconds) * time.Second, true
}
