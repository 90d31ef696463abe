package oauth

import (
	"crypto/rand"
	"encoding/base64"
	"time"
)

// Token endpoint auth methods supported by registration.
const (
	AuthMethodNone             = "none"
	AuthMethodClientSecretPost = "client_secret_post"
)

// Default lifetimes. Access tokens live at most one hour, authorization
// codes and pending authorizations at most ten minutes.
const (
	DefaultAccessTokenTTL = time.Hour
	DefaultCodeTTL        = 10 * time.Minute
)

// Client is a dynamically registered OAuth client. Created via
// POST /oauth/register and never mutated.
type Client struct {
	ClientID                string    `json:"client_id"`
	ClientSecret            string    `json:"client_secret,omitempty"`
	ClientIDIssuedAt        int64     `json:"client_id_issued_at"`
	RedirectURIs            []string  `json:"redirect_uris"`
	TokenEndpointAuthMethod string    `json:"token_endpoint_auth_method"`
	GrantTypes              []string  `json:"grant_types"`
	ResponseTypes           []string  `json:"response_types"`
	ClientName              string    `json:"client_name,omitempty"`
	Scope                   string    `json:"scope,omitempty"`
	CreatedAt               time.Time `json:"-"`
}

// HasRedirectURI reports whether uri exactly matches a registered value.
func (c *Client) HasRedirectURI(uri string) bool {
	for _, registered := range c.RedirectURIs {
		if registered == uri {
			return true
		}
	}
	return false
}

// IsConfidential reports whether the client authenticates with a secret.
func (c *Client) IsConfidential() bool {
	return c.TokenEndpointAuthMethod == AuthMethodClientSecretPost
}

// AuthorizationCode is a single-use code minted after the upstream IdP
// round trip completes. Consumed atomically on token exchange.
type AuthorizationCode struct {
	Code          string
	ClientID      string
	RedirectURI   string
	Scope         string
	CodeChallenge string

	// UpstreamToken is the IdP access token obtained during the flow.
	UpstreamToken string
	// User is the identity resolved from the IdP profile.
	User string

	ExpiresAt time.Time
}

// AccessToken is a bearer token for the MCP endpoint. Looked up on every
// protected request; removed on expiry or revocation.
type AccessToken struct {
	Token     string
	ClientID  string
	Scope     string
	User      string
	ExpiresAt time.Time
}

// Expired reports whether the token is past its lifetime.
func (t *AccessToken) Expired() bool {
	return time.Now().After(t.ExpiresAt)
}

// RefreshToken is single-use: consumed on refresh and replaced together
// with the access token it minted (token rotation).
type RefreshToken struct {
	Token    string
	ClientID string
	Scope    string
	User     string

	// AccessToken is the access token this refresh token last minted; it is
	// revoked when the refresh token rotates.
	AccessToken string
}

// PluginToken binds a user to their plugin bridge: where it listens and the
// shared secret it expects. A user has at most one active binding.
type PluginToken struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Secret      string    `json:"-"`
	Host        string    `json:"host"`
	Port        int       `json:"port"`
	UserID      string    `json:"userId"`
	AuthEnabled bool      `json:"authEnabled"`
	CreatedAt   time.Time `json:"createdAt"`
}

// PendingAuth carries the original authorize request parameters across the
// upstream IdP redirect, keyed by the upstream state token. Same TTL as
// authorization codes.
type PendingAuth struct {
	State         string
	ClientID      string
	RedirectURI   string
	Scope         string
	ClientState   string
	CodeChallenge string
	CreatedAt     time.Time
	ExpiresAt     time.Time
}

// TokenResponse is the JSON body of a successful token grant.
type TokenResponse struct {
	AccessToken  string `json:"access_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int    `json:"expires_in"`
	RefreshToken string `json:"refresh_token,omitempty"`
	Scope        string `json:"scope,omitempty"`
}

// ErrorResponse is the JSON body of a failed OAuth request per RFC 6749.
type ErrorResponse struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description,omitempty"`
}

// ServerMetadata is the RFC 8414 authorization server metadata document.
type ServerMetadata struct {
	Issuer                            string   `json:"issuer"`
	AuthorizationEndpoint             string   `json:"authorization_endpoint"`
	TokenEndpoint                     string   `json:"token_endpoint"`
	RegistrationEndpoint              string   `json:"registration_endpoint"`
	RevocationEndpoint                string   `json:"revocation_endpoint"`
	ScopesSupported                   []string `json:"scopes_supported,omitempty"`
	ResponseTypesSupported            []string `json:"response_types_supported"`
	GrantTypesSupported               []string `json:"grant_types_supported"`
	TokenEndpointAuthMethodsSupported []string `json:"token_endpoint_auth_methods_supported"`
	CodeChallengeMethodsSupported     []string `json:"code_challenge_methods_supported"`
}

// ResourceMetadata is the RFC 9728 protected resource metadata document.
type ResourceMetadata struct {
	Resource               string   `json:"resource"`
	AuthorizationServers   []string `json:"authorization_servers"`
	ScopesSupported        []string `json:"scopes_supported,omitempty"`
	BearerMethodsSupported []string `json:"bearer_methods_supported"`
}

// newOpaqueToken returns a URL-safe random token with at least 256 bits of
// entropy.
func newOpaqueToken() string {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		panic("oauth: failed to read random bytes: " + err.Error())
	}
	return base64.RawURLEncoding.EncodeToString(buf)
}
