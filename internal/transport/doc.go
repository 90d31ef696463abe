// Package transport implements the MCP Streamable-HTTP transport shared by
// both notebridge tiers.
//
// One Handler serves a single /mcp endpoint: POST carries JSON-RPC
// requests, GET opens the server-push SSE stream, DELETE tears a session
// down. Sessions are allocated on the first initialize request, identified
// by a cryptographically random URL-safe id in the MCP-Session-Id header,
// and reclaimed on DELETE, transport close, or idle timeout.
//
// The ServerCore binds the MCP method set (initialize, tools/list,
// tools/call, list-changed notifications) to a ToolBackend. The bridge
// backs it with its local registry and executor; the gateway backs it with
// the per-user upstream router, so both tiers share identical protocol
// semantics.
//
// Request handling is serialised per session and concurrent across
// sessions. Responses use plain JSON bodies unless the client's Accept
// header lists text/event-stream, in which case a single
// "event: message" frame carries the JSON-RPC payload.
package transport
