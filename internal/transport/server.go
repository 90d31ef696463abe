package transport

import (
	"context"
	"encoding/json"
	"fmt"

	"notebridge/pkg/logging"

	"github.com/mark3labs/mcp-go/mcp"
)

// ProtocolVersion is the MCP protocol revision this server speaks. Clients
// sending a different MCP-Protocol-Version header get their value echoed;
// the negotiated version in the initialize result is always this one.
const ProtocolVersion = "2025-03-26"

// MethodToolsListChanged is the notification emitted when the tool set
// changes.
const MethodToolsListChanged = "notifications/tools/list_changed"

// ToolBackend supplies the tool surface behind a server core. The bridge
// backs it with its local registry; the gateway backs it with the upstream
// router.
type ToolBackend interface {
	// ListTools returns the current tools and, when cheaply available, the
	// fingerprint of the set (empty string otherwise).
	ListTools(ctx context.Context, sess *Session) ([]mcp.Tool, string, error)

	// CallTool executes a tool. Tool-level failures are reported in-band
	// via the result; a returned error is a transport-level failure.
	CallTool(ctx context.Context, sess *Session, name string, args map[string]any) (*mcp.CallToolResult, error)
}

// InitializeResult is the result payload of the initialize method.
type InitializeResult struct {
	ProtocolVersion string             `json:"protocolVersion"`
	Capabilities    ServerCapabilities `json:"capabilities"`
	ServerInfo      ServerInfo         `json:"serverInfo"`
}

// ServerCapabilities declares what the server supports. Only tools with
// listChanged notifications are offered.
type ServerCapabilities struct {
	Tools ToolsCapability `json:"tools"`
}

// ToolsCapability advertises tool support.
type ToolsCapability struct {
	ListChanged bool `json:"listChanged"`
}

// ServerInfo identifies the server implementation.
type ServerInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// ListToolsResult is the result payload of tools/list. The fingerprint
// travels in _meta so pollers can detect changes without diffing schemas.
type ListToolsResult struct {
	Tools []mcp.Tool     `json:"tools"`
	Meta  map[string]any `json:"_meta,omitempty"`
}

// callToolParams is the params shape of tools/call.
type callToolParams struct {
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
}

// ServerCore binds MCP method handlers to sessions. One core serves all
// sessions of a listener; per-session serialisation happens in the HTTP
// handler before requests reach the core.
type ServerCore struct {
	serverName    string
	serverVersion string
	backend       ToolBackend
	sessions      *SessionTable
}

// NewServerCore creates a server core over the given backend and table.
func NewServerCore(name, version string, backend ToolBackend, sessions *SessionTable) *ServerCore {
	return &ServerCore{
		serverName:    name,
		serverVersion: version,
		backend:       backend,
		sessions:      sessions,
	}
}

// HandleRequest dispatches one JSON-RPC request for a session. A nil
// return means the request was a notification and gets no response body.
func (c *ServerCore) HandleRequest(ctx context.Context, sess *Session, req *Request) *Response {
	if req.IsNotification() {
		// Client notifications (notifications/initialized and friends) are
		// acknowledged at the HTTP layer; nothing to dispatch.
		return nil
	}

	switch req.Method {
	case "initialize":
		return c.handleInitialize(sess, req)
	case "ping":
		return NewResponse(req.ID, struct{}{})
	}

	if !sess.Initialized() {
		return NewErrorResponse(req.ID, CodeSessionError,
			"invalid request: initialize must be the first request on a session")
	}

	switch req.Method {
	case "tools/list":
		return c.handleToolsList(ctx, sess, req)
	case "tools/call":
		return c.handleToolsCall(ctx, sess, req)
	default:
		return NewErrorResponse(req.ID, CodeMethodNotFound,
			fmt.Sprintf("method not found: %s", req.Method))
	}
}

func (c *ServerCore) handleInitialize(sess *Session, req *Request) *Response {
	if !sess.MarkInitialized() {
		return NewErrorResponse(req.ID, CodeSessionError,
			"invalid request: session already initialized")
	}

	logging.Debug("Transport", "Session %s initialized", sess.ID)
	return NewResponse(req.ID, InitializeResult{
		ProtocolVersion: ProtocolVersion,
		Capabilities:    ServerCapabilities{Tools: ToolsCapability{ListChanged: true}},
		ServerInfo:      ServerInfo{Name: c.serverName, Version: c.serverVersion},
	})
}

func (c *ServerCore) handleToolsList(ctx context.Context, sess *Session, req *Request) *Response {
	toolList, hash, err := c.backend.ListTools(ctx, sess)
	if err != nil {
		return NewErrorResponse(req.ID, CodeInternalError, fmt.Sprintf("failed to list tools: %v", err))
	}
	if toolList == nil {
		toolList = []mcp.Tool{}
	}

	result := ListToolsResult{Tools: toolList}
	if hash != "" {
		result.Meta = map[string]any{"toolsHash": hash}
	}
	return NewResponse(req.ID, result)
}

func (c *ServerCore) handleToolsCall(ctx context.Context, sess *Session, req *Request) *Response {
	var params callToolParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return NewErrorResponse(req.ID, CodeInvalidParams, "invalid tools/call params")
	}
	if params.Name == "" {
		return NewErrorResponse(req.ID, CodeInvalidParams, "tools/call requires a tool name")
	}

	result, err := c.backend.CallTool(ctx, sess, params.Name, params.Arguments)
	if err != nil {
		// Transport-level failures surface in-band so the session stays
		// usable; HTTP status remains 200.
		result = mcp.NewToolResultError(fmt.Sprintf("Error: %v", err))
	}
	return NewResponse(req.ID, result)
}

// NotifyToolsListChanged queues a tools/list_changed notification on every
// live session.
func (c *ServerCore) NotifyToolsListChanged() {
	logging.Debug("Transport", "Broadcasting %s to %d sessions", MethodToolsListChanged, c.sessions.Len())
	c.sessions.Broadcast(NewNotification(MethodToolsListChanged, nil))
}
