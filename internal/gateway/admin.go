package gateway

import (
	"crypto/subtle"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"notebridge/internal/oauth"
	"notebridge/pkg/logging"

	"github.com/google/uuid"
)

// AdminAPI manages plugin bridge registrations. It authenticates with a
// static shared secret, separate from the OAuth surface, so operators can
// provision bindings without a browser flow.
type AdminAPI struct {
	secret string
	store  *oauth.Store
	cache  *toolCache
}

// NewAdminAPI creates the admin surface over the plugin binding store.
func NewAdminAPI(secret string, store *oauth.Store, cache *toolCache) *AdminAPI {
	return &AdminAPI{secret: secret, store: store, cache: cache}
}

// RegisterRoutes mounts the admin endpoints on the mux.
func (a *AdminAPI) RegisterRoutes(mux *http.ServeMux) {
	mux.Handle("GET /admin/plugins", a.requireSecret(http.HandlerFunc(a.handleList)))
	mux.Handle("POST /admin/plugins", a.requireSecret(http.HandlerFunc(a.handleCreate)))
	mux.Handle("DELETE /admin/plugins/{id}", a.requireSecret(http.HandlerFunc(a.handleDelete)))
}

// requireSecret distinguishes a missing credential (401) from a wrong one
// (403).
func (a *AdminAPI) requireSecret(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		if header == "" {
			writeAdminError(w, http.StatusUnauthorized, "missing admin credential")
			return
		}
		presented, ok := strings.CutPrefix(header, "Bearer ")
		if !ok {
			writeAdminError(w, http.StatusUnauthorized, "admin credential must be a bearer secret")
			return
		}
		if subtle.ConstantTimeCompare([]byte(presented), []byte(a.secret)) != 1 {
			writeAdminError(w, http.StatusForbidden, "invalid admin credential")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (a *AdminAPI) handleList(w http.ResponseWriter, r *http.Request) {
	writeAdminJSON(w, http.StatusOK, map[string]any{
		"plugins": a.store.ListPluginTokens(),
	})
}

// adminCreateRequest is the body of POST /admin/plugins.
type adminCreateRequest struct {
	Name        string `json:"name"`
	Host        string `json:"host"`
	Port        int    `json:"port"`
	UserID      string `json:"userId"`
	Secret      string `json:"secret"`
	AuthEnabled bool   `json:"authEnabled"`
}

func (a *AdminAPI) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req adminCreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeAdminError(w, http.StatusBadRequest, "request body must be a JSON object")
		return
	}
	if req.Host == "" || req.Port <= 0 || req.Port > 65535 {
		writeAdminError(w, http.StatusBadRequest, "host and a valid port are required")
		return
	}
	if req.UserID == "" {
		writeAdminError(w, http.StatusBadRequest, "userId is required")
		return
	}
	if req.AuthEnabled && req.Secret == "" {
		writeAdminError(w, http.StatusBadRequest, "secret is required when authEnabled is set")
		return
	}

	token := &oauth.PluginToken{
		ID:          uuid.NewString(),
		Name:        req.Name,
		Secret:      req.Secret,
		Host:        req.Host,
		Port:        req.Port,
		UserID:      req.UserID,
		AuthEnabled: req.AuthEnabled,
		CreatedAt:   time.Now(),
	}
	a.store.SavePluginToken(token)

	logging.Info("Gateway", "Registered plugin %s for user %s at %s:%d", token.ID, token.UserID, token.Host, token.Port)
	writeAdminJSON(w, http.StatusCreated, token)
}

func (a *AdminAPI) handleDelete(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if !a.store.DeletePluginToken(id) {
		writeAdminError(w, http.StatusNotFound, "unknown plugin id")
		return
	}
	a.cache.Delete(id)
	logging.Info("Gateway", "Deleted plugin %s", id)
	w.WriteHeader(http.StatusNoContent)
}

func writeAdminJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		logging.Error("Gateway", err, "Failed to encode admin response")
	}
}

func writeAdminError(w http.ResponseWriter, status int, message string) {
	writeAdminJSON(w, status, map[string]string{"error": message})
}
