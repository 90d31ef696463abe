// Package oauth implements the gateway's OAuth 2.1 authorization server and
// the bearer middleware protecting the MCP endpoint.
//
// The server supports RFC 7591 dynamic client registration, a
// PKCE-protected (S256 only) authorization-code flow that round-trips
// through an upstream identity provider, refresh-token rotation, RFC 7009
// revocation, and the RFC 8414 / RFC 9728 discovery documents.
//
// All state lives in the in-memory Store: registered clients, one-time
// authorization codes, access and refresh tokens, pending authorizations
// spanning the IdP redirect, and the per-user plugin bindings the gateway
// routes by. One-time records (codes, refresh tokens, pending auths) are
// consumed atomically so exactly one caller can redeem each, even under
// concurrent requests.
package oauth
