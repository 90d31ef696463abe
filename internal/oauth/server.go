package oauth

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
	"time"

	"notebridge/pkg/logging"

	"github.com/google/uuid"
)

// ServerConfig holds the authorization server settings.
type ServerConfig struct {
	// ExternalURL is the public base URL of the gateway, used as issuer and
	// resource identifier in the discovery documents.
	ExternalURL string

	// Scopes are the scopes this server advertises and grants.
	Scopes []string

	AccessTokenTTL time.Duration
	CodeTTL        time.Duration
}

// Server is the OAuth 2.1 authorization server fronting the gateway.
type Server struct {
	config ServerConfig
	store  *Store
	idp    *IdPClient
}

// NewServer creates the authorization server.
func NewServer(cfg ServerConfig, store *Store, idp *IdPClient) *Server {
	if cfg.AccessTokenTTL <= 0 || cfg.AccessTokenTTL > DefaultAccessTokenTTL {
		cfg.AccessTokenTTL = DefaultAccessTokenTTL
	}
	if cfg.CodeTTL <= 0 || cfg.CodeTTL > DefaultCodeTTL {
		cfg.CodeTTL = DefaultCodeTTL
	}
	return &Server{config: cfg, store: store, idp: idp}
}

// Store exposes the backing token store for the router and admin API.
func (s *Server) Store() *Store {
	return s.store
}

// ResourceMetadataURL is the absolute URL of the protected resource
// metadata document, advertised in WWW-Authenticate challenges.
func (s *Server) ResourceMetadataURL() string {
	return s.config.ExternalURL + "/.well-known/oauth-protected-resource"
}

// RegisterRoutes mounts all OAuth endpoints on the mux.
func (s *Server) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /.well-known/oauth-protected-resource", s.handleResourceMetadata)
	mux.HandleFunc("GET /.well-known/oauth-authorization-server", s.handleServerMetadata)
	mux.HandleFunc("POST /oauth/register", s.handleRegister)
	mux.HandleFunc("GET /oauth/authorize", s.handleAuthorize)
	mux.HandleFunc("GET /oauth/"+s.idp.Name()+"/callback", s.handleCallback)
	mux.HandleFunc("POST /oauth/token", s.handleToken)
	mux.HandleFunc("POST /oauth/revoke", s.handleRevoke)
}

func (s *Server) handleResourceMetadata(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, ResourceMetadata{
		Resource:               s.config.ExternalURL,
		AuthorizationServers:   []string{s.config.ExternalURL},
		ScopesSupported:        s.config.Scopes,
		BearerMethodsSupported: []string{"header"},
	})
}

func (s *Server) handleServerMetadata(w http.ResponseWriter, r *http.Request) {
	base := s.config.ExternalURL
	writeJSON(w, http.StatusOK, ServerMetadata{
		Issuer:                            base,
		AuthorizationEndpoint:             base + "/oauth/authorize",
		TokenEndpoint:                     base + "/oauth/token",
		RegistrationEndpoint:              base + "/oauth/register",
		RevocationEndpoint:                base + "/oauth/revoke",
		ScopesSupported:                   s.config.Scopes,
		ResponseTypesSupported:            []string{"code"},
		GrantTypesSupported:               []string{"authorization_code", "refresh_token"},
		TokenEndpointAuthMethodsSupported: []string{AuthMethodNone, AuthMethodClientSecretPost},
		CodeChallengeMethodsSupported:     []string{"S256"},
	})
}

// registrationRequest is the RFC 7591 client metadata accepted by the
// registration endpoint.
type registrationRequest struct {
	RedirectURIs            []string `json:"redirect_uris"`
	TokenEndpointAuthMethod string   `json:"token_endpoint_auth_method"`
	GrantTypes              []string `json:"grant_types"`
	ResponseTypes           []string `json:"response_types"`
	ClientName              string   `json:"client_name"`
	Scope                   string   `json:"scope"`
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registrationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeOAuthError(w, http.StatusBadRequest, "invalid_client_metadata", "request body must be a JSON object")
		return
	}

	if len(req.RedirectURIs) == 0 {
		writeOAuthError(w, http.StatusBadRequest, "invalid_redirect_uri", "redirect_uris is required and must be a non-empty array")
		return
	}
	for _, uri := range req.RedirectURIs {
		parsed, err := url.Parse(uri)
		if err != nil || parsed.Scheme == "" {
			writeOAuthError(w, http.StatusBadRequest, "invalid_redirect_uri", "redirect_uris entries must be absolute URIs")
			return
		}
	}

	authMethod := req.TokenEndpointAuthMethod
	switch authMethod {
	case "":
		authMethod = AuthMethodNone
	case AuthMethodNone, AuthMethodClientSecretPost:
	default:
		writeOAuthError(w, http.StatusBadRequest, "invalid_client_metadata", "unsupported token_endpoint_auth_method")
		return
	}

	grantTypes := req.GrantTypes
	if len(grantTypes) == 0 {
		grantTypes = []string{"authorization_code", "refresh_token"}
	}
	responseTypes := req.ResponseTypes
	if len(responseTypes) == 0 {
		responseTypes = []string{"code"}
	}

	client := &Client{
		ClientID:                uuid.NewString(),
		ClientIDIssuedAt:        time.Now().Unix(),
		RedirectURIs:            req.RedirectURIs,
		TokenEndpointAuthMethod: authMethod,
		GrantTypes:              grantTypes,
		ResponseTypes:           responseTypes,
		ClientName:              req.ClientName,
		Scope:                   req.Scope,
		CreatedAt:               time.Now(),
	}
	if authMethod == AuthMethodClientSecretPost {
		client.ClientSecret = newOpaqueToken()
	}

	s.store.SaveClient(client)
	logging.Info("OAuth", "Registered client %s (%s)", client.ClientID, client.ClientName)
	writeJSON(w, http.StatusCreated, client)
}

func (s *Server) handleAuthorize(w http.ResponseWriter, r *http.Request) {
	s.store.SweepPendingAuths()

	q := r.URL.Query()
	clientID := q.Get("client_id")
	redirectURI := q.Get("redirect_uri")

	client, ok := s.store.GetClient(clientID)
	if !ok {
		writeOAuthError(w, http.StatusBadRequest, "invalid_request", "unknown client_id")
		return
	}
	if !client.HasRedirectURI(redirectURI) {
		// Never redirect to an unregistered URI.
		writeOAuthError(w, http.StatusBadRequest, "invalid_request", "redirect_uri does not match a registered value")
		return
	}

	redirectError := func(code, description string) {
		target, _ := url.Parse(redirectURI)
		values := target.Query()
		values.Set("error", code)
		values.Set("error_description", description)
		if state := q.Get("state"); state != "" {
			values.Set("state", state)
		}
		target.RawQuery = values.Encode()
		http.Redirect(w, r, target.String(), http.StatusFound)
	}

	if q.Get("response_type") != "code" {
		redirectError("unsupported_response_type", "response_type must be code")
		return
	}
	if q.Get("code_challenge") == "" {
		redirectError("invalid_request", "code_challenge is required")
		return
	}
	if q.Get("code_challenge_method") != "S256" {
		redirectError("invalid_request", "code_challenge_method must be S256")
		return
	}

	now := time.Now()
	pending := &PendingAuth{
		State:         newOpaqueToken(),
		ClientID:      clientID,
		RedirectURI:   redirectURI,
		Scope:         q.Get("scope"),
		ClientState:   q.Get("state"),
		CodeChallenge: q.Get("code_challenge"),
		CreatedAt:     now,
		ExpiresAt:     now.Add(s.config.CodeTTL),
	}
	s.store.SavePendingAuth(pending)

	logging.Debug("OAuth", "Redirecting client %s to upstream IdP", clientID)
	http.Redirect(w, r, s.idp.AuthCodeURL(pending.State), http.StatusFound)
}

func (s *Server) handleCallback(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	code := q.Get("code")
	state := q.Get("state")
	if code == "" || state == "" {
		writeOAuthError(w, http.StatusBadRequest, "invalid_request", "code and state are required")
		return
	}

	pending, ok := s.store.ConsumePendingAuth(state)
	if !ok {
		writeOAuthError(w, http.StatusBadRequest, "invalid_request", "unknown or expired state")
		return
	}

	redirectTo := func(values url.Values) {
		target, _ := url.Parse(pending.RedirectURI)
		merged := target.Query()
		for k, vs := range values {
			for _, v := range vs {
				merged.Set(k, v)
			}
		}
		if pending.ClientState != "" {
			merged.Set("state", pending.ClientState)
		}
		target.RawQuery = merged.Encode()
		http.Redirect(w, r, target.String(), http.StatusFound)
	}

	upstreamToken, err := s.idp.Exchange(r.Context(), code)
	if err != nil {
		logging.Error("OAuth", err, "Upstream code exchange failed")
		redirectTo(url.Values{"error": {"server_error"}})
		return
	}

	profile, err := s.idp.FetchUser(r.Context(), upstreamToken)
	if err != nil {
		logging.Error("OAuth", err, "Failed to fetch user profile")
		redirectTo(url.Values{"error": {"server_error"}})
		return
	}

	authCode := &AuthorizationCode{
		Code:          newOpaqueToken(),
		ClientID:      pending.ClientID,
		RedirectURI:   pending.RedirectURI,
		Scope:         pending.Scope,
		CodeChallenge: pending.CodeChallenge,
		UpstreamToken: upstreamToken.AccessToken,
		User:          profile.ID,
		ExpiresAt:     time.Now().Add(s.config.CodeTTL),
	}
	s.store.SaveAuthorizationCode(authCode)

	logging.Info("OAuth", "Authorization completed for user %s (client %s)", profile.ID, pending.ClientID)
	redirectTo(url.Values{"code": {authCode.Code}})
}

// tokenRequest carries the token endpoint parameters, accepted as JSON or
// form encoding.
type tokenRequest struct {
	GrantType    string `json:"grant_type"`
	Code         string `json:"code"`
	RedirectURI  string `json:"redirect_uri"`
	ClientID     string `json:"client_id"`
	ClientSecret string `json:"client_secret"`
	CodeVerifier string `json:"code_verifier"`
	RefreshToken string `json:"refresh_token"`
}

func parseTokenRequest(r *http.Request) (*tokenRequest, error) {
	contentType := r.Header.Get("Content-Type")
	if strings.HasPrefix(contentType, "application/json") {
		var req tokenRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			return nil, err
		}
		return &req, nil
	}

	if err := r.ParseForm(); err != nil {
		return nil, err
	}
	return &tokenRequest{
		GrantType:    r.PostFormValue("grant_type"),
		Code:         r.PostFormValue("code"),
		RedirectURI:  r.PostFormValue("redirect_uri"),
		ClientID:     r.PostFormValue("client_id"),
		ClientSecret: r.PostFormValue("client_secret"),
		CodeVerifier: r.PostFormValue("code_verifier"),
		RefreshToken: r.PostFormValue("refresh_token"),
	}, nil
}

func (s *Server) handleToken(w http.ResponseWriter, r *http.Request) {
	req, err := parseTokenRequest(r)
	if err != nil {
		writeOAuthError(w, http.StatusBadRequest, "invalid_request", "failed to parse token request")
		return
	}

	switch req.GrantType {
	case "authorization_code":
		s.handleAuthorizationCodeGrant(w, req)
	case "refresh_token":
		s.handleRefreshTokenGrant(w, req)
	default:
		writeOAuthError(w, http.StatusBadRequest, "unsupported_grant_type", "grant_type must be authorization_code or refresh_token")
	}
}

func (s *Server) handleAuthorizationCodeGrant(w http.ResponseWriter, req *tokenRequest) {
	if req.Code == "" || req.RedirectURI == "" || req.ClientID == "" || req.CodeVerifier == "" {
		writeOAuthError(w, http.StatusBadRequest, "invalid_request", "code, redirect_uri, client_id and code_verifier are required")
		return
	}

	client, ok := s.store.GetClient(req.ClientID)
	if !ok {
		writeOAuthError(w, http.StatusUnauthorized, "invalid_client", "unknown client")
		return
	}
	if client.IsConfidential() {
		if subtle.ConstantTimeCompare([]byte(req.ClientSecret), []byte(client.ClientSecret)) != 1 {
			writeOAuthError(w, http.StatusUnauthorized, "invalid_client", "client authentication failed")
			return
		}
	}

	// Consumption is atomic: a concurrent replay of the same code misses.
	code, ok := s.store.ConsumeAuthorizationCode(req.Code)
	if !ok {
		writeOAuthError(w, http.StatusBadRequest, "invalid_grant", "authorization code is invalid, expired, or already used")
		return
	}
	if code.ClientID != req.ClientID || code.RedirectURI != req.RedirectURI {
		writeOAuthError(w, http.StatusBadRequest, "invalid_grant", "code was issued to a different client or redirect_uri")
		return
	}
	if !verifyPKCE(req.CodeVerifier, code.CodeChallenge) {
		writeOAuthError(w, http.StatusBadRequest, "invalid_grant", "PKCE verification failed")
		return
	}

	s.issueTokenPair(w, code.ClientID, code.Scope, code.User)
}

func (s *Server) handleRefreshTokenGrant(w http.ResponseWriter, req *tokenRequest) {
	if req.RefreshToken == "" {
		writeOAuthError(w, http.StatusBadRequest, "invalid_request", "refresh_token is required")
		return
	}

	// Consuming the refresh token also revokes its access token, so the old
	// pair is dead before the new one exists.
	old, ok := s.store.ConsumeRefreshToken(req.RefreshToken)
	if !ok {
		writeOAuthError(w, http.StatusBadRequest, "invalid_grant", "refresh token is invalid or already used")
		return
	}
	if req.ClientID != "" && req.ClientID != old.ClientID {
		writeOAuthError(w, http.StatusBadRequest, "invalid_grant", "refresh token was issued to a different client")
		return
	}

	s.issueTokenPair(w, old.ClientID, old.Scope, old.User)
}

func (s *Server) issueTokenPair(w http.ResponseWriter, clientID, scope, user string) {
	access := &AccessToken{
		Token:     newOpaqueToken(),
		ClientID:  clientID,
		Scope:     scope,
		User:      user,
		ExpiresAt: time.Now().Add(s.config.AccessTokenTTL),
	}
	refresh := &RefreshToken{
		Token:       newOpaqueToken(),
		ClientID:    clientID,
		Scope:       scope,
		User:        user,
		AccessToken: access.Token,
	}
	s.store.SaveAccessToken(access)
	s.store.SaveRefreshToken(refresh)

	writeJSON(w, http.StatusOK, TokenResponse{
		AccessToken:  access.Token,
		TokenType:    "Bearer",
		ExpiresIn:    int(s.config.AccessTokenTTL.Seconds()),
		RefreshToken: refresh.Token,
		Scope:        scope,
	})
}

func (s *Server) handleRevoke(w http.ResponseWriter, r *http.Request) {
	token := ""
	if strings.HasPrefix(r.Header.Get("Content-Type"), "application/json") {
		var body struct {
			Token string `json:"token"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err == nil {
			token = body.Token
		}
	} else if err := r.ParseForm(); err == nil {
		token = r.PostFormValue("token")
	}
	if token != "" {
		s.store.RevokeAccessToken(token)
	}

	// Always 200 with an empty body: revocation never discloses whether the
	// token existed.
	writeJSON(w, http.StatusOK, struct{}{})
}

// verifyPKCE checks BASE64URL(SHA256(verifier)) against the stored S256
// challenge.
func verifyPKCE(verifier, challenge string) bool {
	sum := sha256.Sum256([]byte(verifier))
	computed := base64.RawURLEncoding.EncodeToString(sum[:])
	return subtle.ConstantTimeCompare([]byte(computed), []byte(challenge)) == 1
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		logging.Error("OAuth", err, "Failed to encode response")
	}
}

func writeOAuthError(w http.ResponseWriter, status int, code, description string) {
	writeJSON(w, status, ErrorResponse{Error: code, ErrorDescription: description})
}
