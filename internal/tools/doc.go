// Package tools holds the shared tool registry and executor backing both of
// the plugin bridge's surfaces.
//
// The registry maps tool names to immutable definitions tagged with their
// source (builtin or script) and maintains a SHA-256 fingerprint over the
// canonical JSON form of the tool set. The fingerprint changes exactly when
// the observable tool set changes, which lets remote pollers detect updates
// without diffing schemas.
//
// The executor dispatches named invocations to handlers, passing an explicit
// HostContext instead of globals, and reports tool-level failures in-band
// via CallToolResult.IsError. Per-session prerequisites (read_note before
// edit_note) are enforced here against state supplied by the caller.
package tools
