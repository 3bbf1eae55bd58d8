package transport

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/google/uuid"

	"github.com/ArcadeAI/arcade-mcp-go/internal/logger"
	"github.com/ArcadeAI/arcade-mcp-go/internal/server"
)

const (
	stdioInitialBuffer = 64 * 1024
	stdioMaxLine       = 1 << 20
)

// Stdio speaks newline-delimited JSON-RPC over stdin and stdout. All
// diagnostics go to stderr so stdout stays a clean protocol stream.
// The transport carries exactly one session.
type Stdio struct {
	srv *server.Server
	in  io.Reader
	out io.Writer

	mu      sync.Mutex
	started bool
}

// NewStdio creates a stdio transport bound to the process streams.
func NewStdio(srv *server.Server) *Stdio {
	return &Stdio{srv: srv, in: os.Stdin, out: os.Stdout}
}

// Run serves until stdin closes, the context ends, or the process
// receives SIGINT or SIGTERM.
func (t *Stdio) Run(ctx context.Context) error {
	t.mu.Lock()
	if t.started {
		t.mu.Unlock()
		return fmt.Errorf("stdio transport supports only one session")
	}
	t.started = true
	t.mu.Unlock()

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	sess := server.NewSession(uuid.New().String(), "stdio", t.srv.Config().Sessions.MaxQueue)
	t.srv.AttachSession(sess)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		t.writeLoop(sess)
	}()

	readErr := make(chan error, 1)
	go func() { readErr <- t.readLoop(ctx, sess) }()

	var err error
	select {
	case err = <-readErr:
	case <-ctx.Done():
		logger.Info("Shutting down stdio transport")
	}

	// Detach closes the session, which stops the writer.
	t.srv.DetachSession(sess.ID)
	wg.Wait()
	return err
}

// readLoop dispatches one message per stdin line until EOF. Responses
// join the outbound queue so notifications and replies interleave in
// enqueue order.
func (t *Stdio) readLoop(ctx context.Context, sess *server.Session) error {
	scanner := bufio.NewScanner(t.in)
	scanner.Buffer(make([]byte, stdioInitialBuffer), stdioMaxLine)

	for scanner.Scan() {
		line := scanner.Bytes()
		if len(bytes.TrimSpace(line)) == 0 {
			continue
		}
		if resp := t.srv.HandleMessage(ctx, sess, line); resp != nil {
			if err := sess.Enqueue(resp); err != nil {
				return nil
			}
		}

		select {
		case <-ctx.Done():
			return nil
		default:
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("reading stdin: %w", err)
	}
	logger.Debug("stdin closed")
	return nil
}

// writeLoop drains the outbound queue onto stdout, one message per
// line. A nil payload is the close sentinel.
func (t *Stdio) writeLoop(sess *server.Session) {
	w := bufio.NewWriter(t.out)
	write := func(payload []byte) bool {
		if _, err := w.Write(payload); err != nil {
			logger.Error("stdout write failed: %v", err)
			return false
		}
		if err := w.WriteByte('\n'); err != nil {
			logger.Error("stdout write failed: %v", err)
			return false
		}
		if err := w.Flush(); err != nil {
			logger.Error("stdout flush failed: %v", err)
			return false
		}
		return true
	}

	for {
		select {
		case payload := <-sess.Outbound():
			if payload == nil || !write(payload) {
				return
			}
		case <-sess.Done():
			// Flush whatever is already queued, then stop.
			for {
				select {
				case payload := <-sess.Outbound():
					if payload == nil || !write(payload) {
						return
					}
				default:
					return
				}
			}
		}
	}
}
