package transport

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/ArcadeAI/arcade-mcp-go/internal/logger"
	"github.com/ArcadeAI/arcade-mcp-go/internal/server"
)

const streamPingInterval = 60 * time.Second

// handleStreamPost answers one JSON-RPC request as a newline-delimited
// JSON stream. Notifications queued for the session are flushed as
// their own lines before the response line. The X-Session-ID header
// reattaches to an earlier session so the initialize handshake carries
// across requests; without it each request gets a fresh session.
func (t *HTTP) handleStreamPost(w http.ResponseWriter, r *http.Request) {
	if !hasJSONContentType(r) {
		writeStatusError(w, http.StatusBadRequest, "Content-Type must be application/json")
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeStatusError(w, http.StatusInternalServerError, "Streaming unsupported")
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

	var sess *server.Session
	if sid := r.Header.Get("X-Session-ID"); sid != "" {
		existing, found := t.srv.GetSession(sid)
		if !found {
			writeStatusError(w, http.StatusNotFound, "Invalid or expired session ID")
			return
		}
		sess = existing
	} else {
		sess = server.NewSession(uuid.New().String(), "stream", t.cfg.Sessions.MaxQueue)
		t.srv.AttachSession(sess)
	}
	sess.Touch()

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("X-Session-ID", sess.ID)
	w.WriteHeader(http.StatusOK)

	if line, bad := streamPrecheck(body); bad {
		w.Write(line)
		fmt.Fprint(w, "\n")
		flusher.Flush()
		return
	}

	respCh := make(chan []byte, 1)
	go func() {
		respCh <- t.srv.HandleMessage(r.Context(), sess, body)
	}()

	ticker := time.NewTicker(streamPingInterval)
	defer ticker.Stop()

	for {
		select {
		case payload := <-sess.Outbound():
			if payload == nil {
				return
			}
			w.Write(payload)
			fmt.Fprint(w, "\n")
			flusher.Flush()
		case resp := <-respCh:
			// Notifications produced during handling go out first.
			for {
				select {
				case payload := <-sess.Outbound():
					if payload == nil {
						return
					}
					w.Write(payload)
					fmt.Fprint(w, "\n")
				default:
					if resp != nil {
						w.Write(resp)
						fmt.Fprint(w, "\n")
					}
					flusher.Flush()
					return
				}
			}
		case <-ticker.C:
			fmt.Fprintf(w, "{\"type\":\"ping\",\"timestamp\":%d}\n", time.Now().Unix())
			flusher.Flush()
		case <-r.Context().Done():
			logger.Debug("Stream client for session %s disconnected", sess.ID)
			return
		}
	}
}

// streamPrecheck validates the envelope before dispatch. Failures are
// reported as error lines on the already-open stream rather than HTTP
// status codes.
func streamPrecheck(body []byte) ([]byte, bool) {
	var probe struct {
		Method *string `json:"method"`
	}
	if err := json.Unmarshal(body, &probe); err != nil {
		line, _ := json.Marshal(map[string]string{
			"error":  fmt.Sprintf("Invalid JSON: %v", err),
			"status": "error",
		})
		return line, true
	}
	if probe.Method == nil {
		line, _ := json.Marshal(map[string]string{
			"error":  "Missing 'method' field in request",
			"status": "error",
		})
		return line, true
	}
	return nil, false
}
