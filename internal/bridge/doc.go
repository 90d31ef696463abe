// Package bridge implements tier A of notebridge: the plugin bridge that
// runs co-located with the note vault.
//
// One HTTP listener, bound to the loopback interface by default, exposes
// two surfaces backed by a single tool registry:
//
//   - /mcp serves the MCP Streamable-HTTP transport, guarded by an
//     optional shared API key.
//   - /bridge/v1/* serves the legacy REST surface (health, tool listing
//     with fingerprint, tool invocation) used by local integrations and
//     by the remote gateway's poller.
//
// Both surfaces observe the same tool set at all times; whenever the
// registry fingerprint changes, open MCP sessions receive a
// tools/list_changed notification.
package bridge
