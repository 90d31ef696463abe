package transport

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"notebridge/pkg/logging"
)

const (
	// HeaderSessionID carries the MCP session id. Header names are
	// case-insensitive; net/http canonicalises on both sides.
	HeaderSessionID = "Mcp-Session-Id"

	// HeaderProtocolVersion carries the client's protocol revision, echoed
	// back opaquely.
	HeaderProtocolVersion = "Mcp-Protocol-Version"

	contentTypeJSON = "application/json"
	contentTypeSSE  = "text/event-stream"

	// maxRequestBody bounds a single JSON-RPC request body.
	maxRequestBody = 4 << 20

	// sseKeepAliveInterval spaces keep-alive comments on idle SSE streams.
	sseKeepAliveInterval = 30 * time.Second
)

// HandlerOptions configures tier-specific transport behavior.
type HandlerOptions struct {
	// UnknownSessionStatus is the HTTP status for requests naming a session
	// id the table does not know: 404 on the bridge, 400 on the gateway.
	UnknownSessionStatus int

	// ResolveUser extracts the authenticated user from the request, when an
	// auth middleware runs in front of the transport. Sessions are bound to
	// the user that created them.
	ResolveUser func(*http.Request) string
}

// Handler is the Streamable-HTTP endpoint for one MCP server: POST carries
// JSON-RPC requests, GET opens the SSE notification stream, DELETE tears
// the session down.
type Handler struct {
	sessions             *SessionTable
	core                 *ServerCore
	unknownSessionStatus int
	resolveUser          func(*http.Request) string
}

// NewHandler creates the /mcp endpoint handler.
func NewHandler(sessions *SessionTable, core *ServerCore, opts HandlerOptions) *Handler {
	status := opts.UnknownSessionStatus
	if status == 0 {
		status = http.StatusNotFound
	}
	return &Handler{
		sessions:             sessions,
		core:                 core,
		unknownSessionStatus: status,
		resolveUser:          opts.ResolveUser,
	}
}

// ServeHTTP implements http.Handler.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if v := r.Header.Get(HeaderProtocolVersion); v != "" {
		w.Header().Set(HeaderProtocolVersion, v)
	}

	switch r.Method {
	case http.MethodPost:
		h.handlePost(w, r)
	case http.MethodGet:
		h.handleGet(w, r)
	case http.MethodDelete:
		h.handleDelete(w, r)
	default:
		w.Header().Set("Allow", "POST, GET, DELETE")
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (h *Handler) handlePost(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxRequestBody))
	if err != nil {
		h.writeError(w, r, http.StatusBadRequest, nil, CodeParseError, "failed to read request body")
		return
	}

	var req Request
	if err := json.Unmarshal(body, &req); err != nil {
		h.writeError(w, r, http.StatusBadRequest, nil, CodeParseError, "invalid JSON-RPC request")
		return
	}
	if req.JSONRPC != "2.0" || req.Method == "" {
		h.writeError(w, r, http.StatusBadRequest, req.ID, CodeInvalidRequest, "invalid JSON-RPC request")
		return
	}

	sessionID := r.Header.Get(HeaderSessionID)
	var sess *Session

	switch {
	case sessionID == "" && req.Method == "initialize":
		// The first initialize without a session header creates the session.
		var user string
		if h.resolveUser != nil {
			user = h.resolveUser(r)
		}
		sess = h.sessions.Create(user)
		w.Header().Set(HeaderSessionID, sess.ID)

	case sessionID == "":
		h.writeError(w, r, http.StatusBadRequest, req.ID, CodeSessionError,
			"missing session id: initialize must be the first request")
		return

	default:
		var ok bool
		sess, ok = h.sessions.Get(sessionID)
		if !ok {
			h.writeError(w, r, h.unknownSessionStatus, req.ID, CodeSessionError,
				fmt.Sprintf("unknown session id: %s", sessionID))
			return
		}
		if h.resolveUser != nil {
			if user := h.resolveUser(r); sess.UserID != "" && user != sess.UserID {
				h.writeError(w, r, http.StatusBadRequest, req.ID, CodeSessionError,
					"session does not belong to the authenticated user")
				return
			}
		}
	}

	// Serialise request handling within the session; cross-session handling
	// stays concurrent.
	sess.Lock()
	resp := h.core.HandleRequest(r.Context(), sess, &req)
	sess.Unlock()

	if resp == nil {
		// Notification: acknowledged without a body.
		w.WriteHeader(http.StatusAccepted)
		return
	}
	h.writeResponse(w, r, http.StatusOK, resp)
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	sessionID := r.Header.Get(HeaderSessionID)
	if sessionID == "" {
		h.writeError(w, r, http.StatusBadRequest, nil, CodeSessionError, "missing session id")
		return
	}
	sess, ok := h.sessions.Get(sessionID)
	if !ok {
		h.writeError(w, r, h.unknownSessionStatus, nil, CodeSessionError,
			fmt.Sprintf("unknown session id: %s", sessionID))
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", contentTypeSSE)
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	logging.Debug("Transport", "SSE stream opened for session %s", sess.ID)
	keepAlive := time.NewTicker(sseKeepAliveInterval)
	defer keepAlive.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-sess.Done():
			// Session torn down underneath the stream.
			return
		case n := <-sess.Notifications():
			data, err := json.Marshal(n)
			if err != nil {
				logging.Error("Transport", err, "Failed to marshal notification")
				continue
			}
			writeSSEEvent(w, "message", data)
			flusher.Flush()
			sess.Touch()
		case <-keepAlive.C:
			fmt.Fprint(w, ": keep-alive\n\n")
			flusher.Flush()
		}
	}
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	sessionID := r.Header.Get(HeaderSessionID)
	if sessionID == "" {
		h.writeError(w, r, http.StatusBadRequest, nil, CodeSessionError, "missing session id")
		return
	}
	if !h.sessions.Remove(sessionID) {
		h.writeError(w, r, h.unknownSessionStatus, nil, CodeSessionError,
			fmt.Sprintf("unknown session id: %s", sessionID))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// writeResponse emits a single JSON-RPC response, framed as one SSE message
// event when the client's Accept header lists text/event-stream.
func (h *Handler) writeResponse(w http.ResponseWriter, r *http.Request, status int, resp *Response) {
	data, err := json.Marshal(resp)
	if err != nil {
		logging.Error("Transport", err, "Failed to marshal response")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	if acceptsSSE(r) {
		w.Header().Set("Content-Type", contentTypeSSE)
		w.WriteHeader(status)
		writeSSEEvent(w, "message", data)
		return
	}

	w.Header().Set("Content-Type", contentTypeJSON)
	w.WriteHeader(status)
	w.Write(data)
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, status int, id json.RawMessage, code int, message string) {
	h.writeResponse(w, r, status, NewErrorResponse(id, code, message))
}

// acceptsSSE reports whether the request opted into event-stream framing.
func acceptsSSE(r *http.Request) bool {
	return strings.Contains(r.Header.Get("Accept"), contentTypeSSE)
}

// writeSSEEvent writes one SSE frame: "event: <name>\ndata: <data>\n\n".
func writeSSEEvent(w io.Writer, event string, data []byte) {
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data)
}
