package bridge

import (
	"crypto/subtle"
	"encoding/json"
	"net/http"
)

// apiKeyHeader is the shared-key header guarding /mcp, matching the local
// REST convention of the host. Header lookup is case-insensitive.
const apiKeyHeader = "X-Api-Key"

// requireAPIKey rejects requests missing or mismatching the configured
// shared key with 401. An empty configured key disables the check.
func requireAPIKey(key string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if key != "" {
			presented := r.Header.Get(apiKeyHeader)
			if subtle.ConstantTimeCompare([]byte(presented), []byte(key)) != 1 {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusUnauthorized)
				json.NewEncoder(w).Encode(map[string]string{
					"error":   "unauthorized",
					"message": "missing or invalid API key",
				})
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}
