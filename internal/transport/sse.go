package transport

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/ArcadeAI/arcade-mcp-go/internal/logger"
	"github.com/ArcadeAI/arcade-mcp-go/internal/protocol"
	"github.com/ArcadeAI/arcade-mcp-go/internal/server"
)

const ssePingInterval = 30 * time.Second

// handleSSEGet opens the event stream. The first event carries the
// session id; a Last-Event-ID header replays stored events before the
// live queue takes over. Without an Mcp-Session-Id header the stream
// owns a fresh session and removes it on disconnect; with one it views
// a POST-created session, which survives reconnects until the janitor
// evicts it.
func (t *HTTP) handleSSEGet(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeStatusError(w, http.StatusInternalServerError, "Streaming unsupported")
		return
	}

	var sess *server.Session
	ownsSession := false
	if sid := r.Header.Get("Mcp-Session-Id"); sid != "" {
		existing, found := t.srv.GetSession(sid)
		if !found {
			writeStatusError(w, http.StatusNotFound, "Invalid or expired session ID")
			return
		}
		sess = existing
	} else {
		sess = server.NewSession(uuid.New().String(), "sse", t.cfg.Sessions.MaxQueue)
		t.srv.AttachSession(sess)
		ownsSession = true
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("Mcp-Session-Id", sess.ID)
	w.WriteHeader(http.StatusOK)

	fmt.Fprintf(w, "event: session_id\ndata: {\"session_id\":%q}\n\n", sess.ID)
	flusher.Flush()

	if leid := r.Header.Get("Last-Event-ID"); leid != "" {
		lastID, err := strconv.ParseInt(leid, 10, 64)
		if err != nil {
			lastID = 0 // replay everything retained
		}
		for _, ev := range t.store.ReplayEventsAfter(sess.ID, lastID, 0) {
			fmt.Fprintf(w, "id: %d\ndata: %s\n\n", ev.ID, ev.Payload)
		}
		flusher.Flush()
	}

	ticker := time.NewTicker(ssePingInterval)
	defer ticker.Stop()

	for {
		select {
		case payload := <-sess.Outbound():
			if payload == nil {
				// Session closed elsewhere; its stream goes with it.
				t.store.DeleteStream(sess.ID)
				return
			}
			id := t.store.StoreEvent(sess.ID, payload)
			fmt.Fprintf(w, "id: %d\ndata: %s\n\n", id, payload)
			flusher.Flush()
		case <-ticker.C:
			fmt.Fprint(w, "event: ping\ndata: {}\n\n")
			flusher.Flush()
		case <-r.Context().Done():
			logger.Debug("SSE client for session %s disconnected", sess.ID)
			if ownsSession {
				t.srv.DetachSession(sess.ID)
				t.store.DeleteStream(sess.ID)
			}
			return
		}
	}
}

// handleSSEPost accepts JSON-RPC messages. initialize creates the
// session and returns its id; later requests name it with the
// Mcp-Session-Id header, and their responses ride the event stream.
func (t *HTTP) handleSSEPost(w http.ResponseWriter, r *http.Request) {
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

	var probe struct {
		Method string          `json:"method"`
		Params json.RawMessage `json:"params"`
	}
	if err := json.Unmarshal(body, &probe); err != nil {
		writeStatusError(w, http.StatusBadRequest, fmt.Sprintf("Invalid JSON: %v", err))
		return
	}

	if probe.Method == protocol.MethodInitialize {
		body, err = ensureInitializeParams(body, probe.Params)
		if err != nil {
			writeStatusError(w, http.StatusBadRequest, fmt.Sprintf("Invalid JSON: %v", err))
			return
		}

		sess := server.NewSession(uuid.New().String(), "sse", t.cfg.Sessions.MaxQueue)
		t.srv.AttachSession(sess)
		if resp := t.srv.HandleMessage(r.Context(), sess, body); resp != nil {
			_ = sess.Enqueue(resp)
		}

		w.Header().Set("Mcp-Session-Id", sess.ID)
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "session_id": sess.ID})
		return
	}

	sid := r.Header.Get("Mcp-Session-Id")
	sess, found := t.srv.GetSession(sid)
	if sid == "" || !found {
		writeStatusError(w, http.StatusNotFound, "Invalid or expired session ID")
		return
	}
	sess.Touch()

	if resp := t.srv.HandleMessage(r.Context(), sess, body); resp != nil {
		_ = sess.Enqueue(resp)
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// ensureInitializeParams backfills minimal initialize params when a
// client omits them, so bare {"method":"initialize"} probes still get a
// handshake.
func ensureInitializeParams(body []byte, params json.RawMessage) ([]byte, error) {
	trimmed := bytes.TrimSpace(params)
	if len(trimmed) > 0 && trimmed[0] == '{' {
		return body, nil
	}

	var envelope map[string]any
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, err
	}
	envelope["params"] = map[string]any{
		"protocolVersion": protocol.LatestProtocolVersion,
		"capabilities":    map[string]any{},
		"clientInfo":      map[string]any{"name": "client", "version": "1.0.0"},
	}
	return json.Marshal(envelope)
}
