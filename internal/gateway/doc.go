// Package gateway implements the remote tier: a bearer-protected MCP
// endpoint that routes each authenticated user's traffic to that user's
// registered plugin bridge, plus the admin API for managing those
// registrations.
//
// Every local MCP session is bound to exactly one session on the upstream
// bridge. When the bridge restarts and forgets the upstream session, the
// router re-initializes the binding once and retries; a second failure
// surfaces to the client in-band.
package gateway
