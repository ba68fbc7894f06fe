/**
 * @description
 * This file contains the HTTP handlers for the sync-service's API endpoints.
 * Handlers are responsible for parsing incoming requests, calling the
 * appropriate store or queue operations, and writing the HTTP response. They
 * act as the bridge between the web layer and the sync pipeline, which runs
 * asynchronously off the jobs queue.
 *
 * @dependencies
 * - encoding/json, net/http: Standard Go libraries.
 * - internal/app, internal/domain, internal/store: For queue payloads, models, and custom errors.
 */

package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/ledgerhub/sync-service/internal/app"
	"github.com/ledgerhub/sync-service/internal/config"
	"github.com/ledgerhub/sync-service/internal/domain"
	"github.com/ledgerhub/sync-service/internal/store"
)

// SyncHandlers holds the dependencies the HTTP handlers use.
type SyncHandlers struct {
	repo      store.Repository
	publisher app.JobPublisher
	config    config.Config
	logger    *slog.Logger
}

// NewSyncHandlers creates the handler set for the sync API.
func NewSyncHandlers(repo store.Repository, publisher app.JobPublisher, cfg config.Config, logger *slog.Logger) *SyncHandlers {
	return &SyncHandlers{repo: repo, publisher: publisher, config: cfg, logger: logger}
}

type createConnectionRequest struct {
	UserID       uuid.UUID       `json:"user_id"`
	ProviderKind string          `json:"provider_kind"`
	Credentials  json.RawMessage `json:"credentials"`
}

type connectionResponse struct {
	ID           uuid.UUID  `json:"id"`
	UserID       uuid.UUID  `json:"user_id"`
	ProviderKind string     `json:"provider_kind"`
	Status       string     `json:"status"`
	LastSyncedAt *time.Time `json:"last_synced_at,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
}

func buildConnectionResponse(conn *domain.Connection) connectionResponse {
	return connectionResponse{
		ID:           conn.ID,
		UserID:       conn.UserID,
		ProviderKind: conn.ProviderKind,
		Status:       string(conn.Status),
		LastSyncedAt: conn.LastSyncedAt,
		CreatedAt:    conn.CreatedAt,
	}
}

// CreateConnectionHandler registers a new provider connection and queues its
// first sync.
func (h *SyncHandlers) CreateConnectionHandler(w http.ResponseWriter, r *http.Request) {
	var req createConnectionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.UserID == uuid.Nil || req.ProviderKind == "" || len(req.Credentials) == 0 {
		h.writeError(w, http.StatusBadRequest, "user_id, provider_kind and credentials are required")
		return
	}

	conn := &domain.Connection{
		ID:           uuid.New(),
		UserID:       req.UserID,
		ProviderKind: req.ProviderKind,
		Credentials:  req.Credentials,
		Status:       domain.ConnectionGood,
	}
	if err := h.repo.CreateConnection(r.Context(), conn); err != nil {
		h.logger.Error("failed to create connection", "error", err)
		h.writeError(w, http.StatusInternalServerError, "failed to create connection")
		return
	}

	if err := h.enqueueSync(r, conn.ID); err != nil {
		// The connection exists; the scheduled sweep will pick it up.
		h.logger.Error("failed to queue initial sync", "connection_id", conn.ID, "error", err)
	}

	h.writeJSON(w, http.StatusCreated, buildConnectionResponse(conn))
}

// GetConnectionHandler returns one connection with its provider accounts.
func (h *SyncHandlers) GetConnectionHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := h.parseID(w, r, "connectionID")
	if !ok {
		return
	}

	conn, err := h.repo.GetConnectionByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrConnectionNotFound) {
			h.writeError(w, http.StatusNotFound, "connection not found")
			return
		}
		h.logger.Error("failed to load connection", "connection_id", id, "error", err)
		h.writeError(w, http.StatusInternalServerError, "failed to load connection")
		return
	}

	accounts, err := h.repo.ListProviderAccountsByConnection(r.Context(), id)
	if err != nil {
		h.logger.Error("failed to load provider accounts", "connection_id", id, "error", err)
		h.writeError(w, http.StatusInternalServerError, "failed to load provider accounts")
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"connection":        buildConnectionResponse(conn),
		"provider_accounts": accounts,
	})
}

// DeleteConnectionHandler removes a connection. Provider accounts and cached
// payloads go with it; canonical ledger entries stay.
func (h *SyncHandlers) DeleteConnectionHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := h.parseID(w, r, "connectionID")
	if !ok {
		return
	}

	if err := h.repo.DeleteConnection(r.Context(), id); err != nil {
		if errors.Is(err, store.ErrConnectionNotFound) {
			h.writeError(w, http.StatusNotFound, "connection not found")
			return
		}
		h.logger.Error("failed to delete connection", "connection_id", id, "error", err)
		h.writeError(w, http.StatusInternalServerError, "failed to delete connection")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// TriggerSyncHandler queues a sync for one connection.
func (h *SyncHandlers) TriggerSyncHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := h.parseID(w, r, "connectionID")
	if !ok {
		return
	}

	conn, err := h.repo.GetConnectionByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrConnectionNotFound) {
			h.writeError(w, http.StatusNotFound, "connection not found")
			return
		}
		h.logger.Error("failed to load connection", "connection_id", id, "error", err)
		h.writeError(w, http.StatusInternalServerError, "failed to load connection")
		return
	}
	if conn.Status == domain.ConnectionRequiresUpdate {
		h.writeError(w, http.StatusConflict, "connection requires re-authentication before it can sync")
		return
	}

	if err := h.enqueueSync(r, conn.ID); err != nil {
		h.logger.Error("failed to queue sync", "connection_id", conn.ID, "error", err)
		h.writeError(w, http.StatusInternalServerError, "failed to queue sync")
		return
	}

	h.writeJSON(w, http.StatusAccepted, map[string]string{"status": "queued"})
}

// ListSyncsHandler returns recent sync runs for a connection, newest first.
func (h *SyncHandlers) ListSyncsHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := h.parseID(w, r, "connectionID")
	if !ok {
		return
	}

	syncs, err := h.repo.ListSyncsByConnection(r.Context(), id, 50)
	if err != nil {
		h.logger.Error("failed to list syncs", "connection_id", id, "error", err)
		h.writeError(w, http.StatusInternalServerError, "failed to list syncs")
		return
	}

	h.writeJSON(w, http.StatusOK, syncs)
}

// GetSyncHandler returns one sync run.
func (h *SyncHandlers) GetSyncHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := h.parseID(w, r, "syncID")
	if !ok {
		return
	}

	sync, err := h.repo.GetSyncByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrSyncNotFound) {
			h.writeError(w, http.StatusNotFound, "sync not found")
			return
		}
		h.logger.Error("failed to load sync", "sync_id", id, "error", err)
		h.writeError(w, http.StatusInternalServerError, "failed to load sync")
		return
	}

	h.writeJSON(w, http.StatusOK, sync)
}

type linkAccountRequest struct {
	AccountID uuid.UUID `json:"account_id"`
}

// LinkProviderAccountHandler links a provider account to a ledger account.
// When that was the last unlinked account on the connection, the halted sync
// is resumed by queuing a fresh run.
func (h *SyncHandlers) LinkProviderAccountHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := h.parseID(w, r, "providerAccountID")
	if !ok {
		return
	}

	var req linkAccountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.AccountID == uuid.Nil {
		h.writeError(w, http.StatusBadRequest, "account_id is required")
		return
	}

	acct, err := h.repo.GetProviderAccountByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrProviderAccountNotFound) {
			h.writeError(w, http.StatusNotFound, "provider account not found")
			return
		}
		h.logger.Error("failed to load provider account", "provider_account_id", id, "error", err)
		h.writeError(w, http.StatusInternalServerError, "failed to load provider account")
		return
	}

	if _, err := h.repo.GetAccountByID(r.Context(), req.AccountID); err != nil {
		if errors.Is(err, store.ErrAccountNotFound) {
			h.writeError(w, http.StatusNotFound, "ledger account not found")
			return
		}
		h.logger.Error("failed to load ledger account", "account_id", req.AccountID, "error", err)
		h.writeError(w, http.StatusInternalServerError, "failed to load ledger account")
		return
	}

	if err := h.repo.LinkProviderAccount(r.Context(), id, req.AccountID); err != nil {
		h.logger.Error("failed to link provider account", "provider_account_id", id, "error", err)
		h.writeError(w, http.StatusInternalServerError, "failed to link provider account")
		return
	}

	// If every sibling is now linked, clear the setup gate and resume.
	siblings, err := h.repo.ListProviderAccountsByConnection(r.Context(), acct.ConnectionID)
	if err != nil {
		h.logger.Error("failed to check sibling links", "connection_id", acct.ConnectionID, "error", err)
		h.writeJSON(w, http.StatusOK, map[string]string{"status": "linked"})
		return
	}
	allLinked := true
	for i := range siblings {
		if siblings[i].ID != id && !siblings[i].Linked() {
			allLinked = false
			break
		}
	}
	if allLinked {
		if err := h.repo.UpdateConnectionStatus(r.Context(), acct.ConnectionID, domain.ConnectionGood); err != nil {
			h.logger.Error("failed to clear account setup gate", "connection_id", acct.ConnectionID, "error", err)
		} else if err := h.enqueueSync(r, acct.ConnectionID); err != nil {
			h.logger.Error("failed to queue resume sync", "connection_id", acct.ConnectionID, "error", err)
		}
	}

	h.writeJSON(w, http.StatusOK, map[string]string{"status": "linked"})
}

func (h *SyncHandlers) enqueueSync(r *http.Request, connectionID uuid.UUID) error {
	end := time.Now().UTC()
	payload := domain.SyncRequestedPayload{
		ConnectionID:    connectionID,
		WindowStartDate: end.AddDate(0, 0, -h.config.SyncWindowDays),
		WindowEndDate:   end,
	}
	return h.publisher.Publish(r.Context(), domain.RoutingSyncRequested, payload)
}

func (h *SyncHandlers) parseID(w http.ResponseWriter, r *http.Request, param string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, param))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid "+param)
		return uuid.Nil, false
	}
	return id, true
}

// writeJSON is a helper for writing JSON responses.
func (h *SyncHandlers) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

// writeError is a helper for writing JSON error responses.
func (h *SyncHandlers) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
