/**
 * @description
 * This file sets up the HTTP router for the sync-service. It defines the API
 * endpoints, associates them with their corresponding handlers, and applies
 * any necessary middleware, such as for authentication.
 *
 * @dependencies
 * - net/http: Standard Go library for HTTP functionality.
 * - github.com/go-chi/chi/v5: A lightweight and idiomatic router for Go.
 */

package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// SyncRoutes creates and returns the router for the sync service.
func SyncRoutes(h *SyncHandlers, wh *WebhookHandler, internalAPIKey string) http.Handler {
	r := chi.NewRouter()

	// Add standard middleware for logging, panic recovery, and timeouts.
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	// Health check endpoint
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("healthy"))
	})

	// Provider webhooks authenticate with their own HMAC signature.
	r.Post("/webhooks/provider", wh.HandleWebhook)

	// Group routes that require the internal API key.
	r.Group(func(r chi.Router) {
		r.Use(InternalAPIKeyMiddleware(internalAPIKey))

		r.Post("/connections", h.CreateConnectionHandler)
		r.Get("/connections/{connectionID}", h.GetConnectionHandler)
		r.Delete("/connections/{connectionID}", h.DeleteConnectionHandler)
		r.Post("/connections/{connectionID}/sync", h.TriggerSyncHandler)
		r.Get("/connections/{connectionID}/syncs", h.ListSyncsHandler)

		r.Get("/syncs/{syncID}", h.GetSyncHandler)

		r.Post("/provider-accounts/{providerAccountID}/link", h.LinkProviderAccountHandler)
	})

	return r
}
