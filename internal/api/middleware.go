/**
 * @description
 * This file contains custom middleware for the HTTP router. The sync-service
 * is an internal service; its management API is protected by a shared API
 * key carried by the gateway rather than end-user authentication.
 */

package api

import (
	"crypto/subtle"
	"net/http"
)

const apiKeyHeader = "X-Internal-Api-Key"

// InternalAPIKeyMiddleware rejects requests that do not carry the shared
// internal API key. An empty configured key disables the API entirely
// rather than leaving it open.
func InternalAPIKeyMiddleware(apiKey string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if apiKey == "" {
				http.Error(w, "api key not configured", http.StatusServiceUnavailable)
				return
			}
			provided := r.Header.Get(apiKeyHeader)
			if subtle.ConstantTimeCompare([]byte(provided), []byte(apiKey)) != 1 {
				http.Error(w, "invalid api key", http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
