package oauth

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"notebridge/pkg/logging"
)

type contextKey string

const (
	accessTokenContextKey contextKey = "oauth.accessToken"
	userContextKey        contextKey = "oauth.user"
)

// AuthMiddleware enforces bearer authentication on protected endpoints and
// advertises the protected resource metadata in its challenges, so clients
// can discover the authorization server per RFC 9728.
type AuthMiddleware struct {
	store               *Store
	resourceMetadataURL string
}

// NewAuthMiddleware creates the middleware backed by the token store.
func NewAuthMiddleware(store *Store, resourceMetadataURL string) *AuthMiddleware {
	return &AuthMiddleware{store: store, resourceMetadataURL: resourceMetadataURL}
}

// Wrap returns a handler that rejects requests without a valid bearer token
// and otherwise forwards with the token and user attached to the context.
func (m *AuthMiddleware) Wrap(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw := bearerToken(r)
		if raw == "" {
			m.challenge(w, "")
			return
		}

		token, ok := m.store.GetAccessToken(raw)
		if !ok {
			logging.Debug("OAuth", "Rejected invalid or expired bearer token")
			m.challenge(w, "invalid_token")
			return
		}

		ctx := context.WithValue(r.Context(), accessTokenContextKey, token)
		ctx = context.WithValue(ctx, userContextKey, token.User)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// challenge writes a 401 with a WWW-Authenticate header pointing at the
// resource metadata document. errorCode is empty when no token was sent.
func (m *AuthMiddleware) challenge(w http.ResponseWriter, errorCode string) {
	value := fmt.Sprintf("Bearer resource_metadata=%q", m.resourceMetadataURL)
	if errorCode != "" {
		value = fmt.Sprintf("Bearer error=%q, resource_metadata=%q", errorCode, m.resourceMetadataURL)
	}
	w.Header().Set("WWW-Authenticate", value)
	writeOAuthError(w, http.StatusUnauthorized, "invalid_token", "a valid bearer token is required")
}

// bearerToken extracts the token from the Authorization header, accepting
// any case for the Bearer scheme.
func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

// UserFromContext returns the authenticated user id attached by the
// middleware.
func UserFromContext(ctx context.Context) (string, bool) {
	user, ok := ctx.Value(userContextKey).(string)
	return user, ok
}

// TokenFromContext returns the access token attached by the middleware.
func TokenFromContext(ctx context.Context) (*AccessToken, bool) {
	token, ok := ctx.Value(accessTokenContextKey).(*AccessToken)
	return token, ok
}
