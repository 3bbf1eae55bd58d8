package transport

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ArcadeAI/arcade-mcp-go/internal/auth"
	"github.com/ArcadeAI/arcade-mcp-go/internal/config"
	"github.com/ArcadeAI/arcade-mcp-go/internal/logger"
	"github.com/ArcadeAI/arcade-mcp-go/internal/metrics"
	"github.com/ArcadeAI/arcade-mcp-go/internal/protocol"
	"github.com/ArcadeAI/arcade-mcp-go/internal/server"
)

// Variant selects how /mcp behaves.
type Variant int

const (
	// VariantStreamable answers each POST with a single JSON envelope.
	VariantStreamable Variant = iota
	// VariantSSE pairs POSTed requests with a server-sent event stream.
	VariantSSE
	// VariantStream answers each POST with newline-delimited JSON.
	VariantStream
)

func (v Variant) String() string {
	switch v {
	case VariantSSE:
		return "sse"
	case VariantStream:
		return "stream"
	default:
		return "streamable"
	}
}

// HTTP serves MCP over HTTP along with the worker and ops endpoints.
// SSE and NDJSON sessions live in the server's session table; a
// janitor loop evicts the idle ones.
type HTTP struct {
	srv     *server.Server
	cfg     *config.Config
	store   EventStore
	variant Variant
	secret  string
	limiter *auth.RateLimiter

	httpSrv *http.Server
}

// NewHTTP creates an HTTP transport for the given variant. Worker
// bearer auth is enabled iff ARCADE_WORKER_SECRET is set.
func NewHTTP(srv *server.Server, variant Variant) *HTTP {
	cfg := srv.Config()
	return &HTTP{
		srv:     srv,
		cfg:     cfg,
		store:   NewMemoryEventStore(cfg.Events.MaxPerStream),
		variant: variant,
		secret:  cfg.Env.WorkerSecret,
		limiter: auth.DefaultRateLimiter(),
	}
}

// Run serves until the context ends, then shuts down gracefully.
func (t *HTTP) Run(ctx context.Context) error {
	addr := net.JoinHostPort(t.cfg.Server.Host, strconv.Itoa(t.cfg.Server.Port))
	t.httpSrv = &http.Server{
		Addr:              addr,
		Handler:           t.buildMux(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	janitorCtx, stopJanitor := context.WithCancel(context.Background())
	defer stopJanitor()
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		t.cleanupLoop(janitorCtx)
	}()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("MCP %s transport listening on http://%s/mcp", t.variant, addr)
		logger.Info("Health check: http://%s/health", addr)
		logger.Info("Metrics: http://%s/metrics", addr)
		errCh <- t.httpSrv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		stopJanitor()
		wg.Wait()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	// Closing sessions first ends the SSE and NDJSON streams so
	// Shutdown is not stuck behind them.
	for _, sess := range t.srv.Sessions() {
		t.srv.DetachSession(sess.ID)
		t.store.DeleteStream(sess.ID)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := t.httpSrv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("HTTP shutdown incomplete: %v", err)
	}
	stopJanitor()
	wg.Wait()
	<-errCh
	return nil
}

// buildMux composes the endpoint tree. Ops endpoints are open; the MCP
// endpoint is rate limited; worker endpoints additionally require the
// bearer secret.
func (t *HTTP) buildMux() *http.ServeMux {
	chain := func(h http.Handler, secured bool) http.Handler {
		wrapped := loggingMiddleware(h)
		if secured {
			wrapped = auth.Middleware(t.secret)(wrapped)
		}
		wrapped = auth.RateLimitMiddleware(t.limiter)(wrapped)
		return metrics.Middleware(wrapped)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/health", t.handleHealth)
	mux.HandleFunc("/ready", t.handleReady)
	mux.Handle("/metrics", metrics.Handler())

	mux.HandleFunc("/worker/health", t.handleWorkerHealth)
	mux.Handle("/worker/catalog", chain(http.HandlerFunc(t.handleWorkerCatalog), true))
	mux.Handle("/worker/tools/invoke", chain(http.HandlerFunc(t.handleWorkerInvoke), true))

	mux.Handle("/mcp", chain(http.HandlerFunc(t.handleMCP), false))
	return mux
}

func (t *HTTP) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}

func (t *HTTP) handleReady(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"ready"}`))
}

// handleMCP validates the protocol version header and routes to the
// active variant.
func (t *HTTP) handleMCP(w http.ResponseWriter, r *http.Request) {
	if v := r.Header.Get("mcp-protocol-version"); v != "" && !protocolVersionSupported(v) {
		writeStatusError(w, http.StatusBadRequest, fmt.Sprintf("Unsupported protocol version: %s", v))
		return
	}

	switch t.variant {
	case VariantSSE:
		switch r.Method {
		case http.MethodGet:
			t.handleSSEGet(w, r)
		case http.MethodPost:
			t.handleSSEPost(w, r)
		default:
			writeStatusError(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
	case VariantStream:
		if r.Method != http.MethodPost {
			writeStatusError(w, http.StatusMethodNotAllowed, "Method not allowed")
			return
		}
		t.handleStreamPost(w, r)
	default:
		if r.Method != http.MethodPost {
			writeStatusError(w, http.StatusMethodNotAllowed, "Method not allowed")
			return
		}
		t.handleStreamablePost(w, r)
	}
}

// handleStreamablePost answers one JSON-RPC envelope per POST. Each
// request runs in a throwaway stateless session, so tool logs come back
// in the result's _meta.logs instead of a notification stream.
func (t *HTTP) handleStreamablePost(w http.ResponseWriter, r *http.Request) {
	if !hasJSONContentType(r) {
		writeStatusError(w, http.StatusBadRequest, "Content-Type must be application/json")
		return
	}
	body, err := readBody(w, r)
	if err != nil {
		if errors.Is(err, errBodyTooLarge) {
			writeStatusError(w, http.StatusRequestEntityTooLarge, err.Error())
			return
		}
		writeStatusError(w, http.StatusBadRequest, "Failed to read request body")
		return
	}

	sess := server.NewStatelessSession(uuid.New().String(), "http", t.cfg.Sessions.MaxQueue)
	resp := t.srv.HandleMessage(r.Context(), sess, body)
	if resp == nil {
		writeJSON(w, http.StatusAccepted, map[string]string{"status": "ok"})
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(resp)
}

func protocolVersionSupported(v string) bool {
	for _, supported := range protocol.SupportedProtocolVersions {
		if v == supported {
			return true
		}
	}
	return false
}

// cleanupLoop evicts idle sessions and enforces the session cap. It
// also resets the rate limiter table hourly; keys include remote hosts,
// so churning clients would otherwise grow it forever.
func (t *HTTP) cleanupLoop(ctx context.Context) {
	interval := time.Duration(t.cfg.Sessions.CleanupIntervalSeconds) * time.Second
	if interval <= 0 {
		interval = 10 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	limiterSweep := time.NewTicker(time.Hour)
	defer limiterSweep.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			t.evictSessions(time.Now())
		case <-limiterSweep.C:
			t.limiter.Cleanup(time.Hour)
		}
	}
}

// evictSessions removes sessions inactive beyond the timeout and, when
// the table exceeds the cap, the oldest by last activity.
func (t *HTTP) evictSessions(now time.Time) {
	sessions := t.srv.Sessions()
	timeout := time.Duration(t.cfg.Sessions.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 300 * time.Second
	}

	evict := make(map[string]bool)
	if max := t.cfg.Sessions.MaxSessions; max > 0 && len(sessions) > max {
		sort.Slice(sessions, func(i, j int) bool {
			return sessions[i].LastActive().Before(sessions[j].LastActive())
		})
		for _, sess := range sessions[:len(sessions)-max] {
			evict[sess.ID] = true
		}
	}
	for _, sess := range sessions {
		if now.Sub(sess.LastActive()) > timeout {
			evict[sess.ID] = true
		}
	}

	for id := range evict {
		logger.Info("Evicting inactive session %s", id)
		t.srv.DetachSession(id)
		t.store.DeleteStream(id)
	}
}
