/**
 * @description
 * Webhook entry point for provider push notifications. A provider can tell
 * us that new activity is available before the scheduled sweep would find
 * it; the handler verifies the request and queues a sync for the affected
 * connection.
 *
 * Key features:
 * - Security: Validates a timestamped HMAC-SHA256 signature so neither a
 *   forged body nor a replayed old request is accepted.
 * - Event Publishing: Publishes a sync job to RabbitMQ; the webhook itself
 *   never touches the pipeline synchronously.
 */

package api

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/ledgerhub/sync-service/internal/app"
	"github.com/ledgerhub/sync-service/internal/config"
	"github.com/ledgerhub/sync-service/internal/domain"
)

const (
	signatureHeader = "X-Webhook-Signature"
	timestampHeader = "X-Webhook-Timestamp"
)

// WebhookHandler processes incoming provider webhooks.
type WebhookHandler struct {
	publisher app.JobPublisher
	secret    string
	tolerance time.Duration
	config    config.Config
	logger    *slog.Logger
	now       func() time.Time
}

// NewWebhookHandler creates a new handler for the webhook endpoint.
func NewWebhookHandler(publisher app.JobPublisher, cfg config.Config, logger *slog.Logger) *WebhookHandler {
	return &WebhookHandler{
		publisher: publisher,
		secret:    cfg.WebhookSecret,
		tolerance: time.Duration(cfg.WebhookToleranceSeconds) * time.Second,
		config:    cfg,
		logger:    logger,
		now:       time.Now,
	}
}

type webhookEvent struct {
	EventType    string    `json:"event_type"`
	ConnectionID uuid.UUID `json:"connection_id"`
}

// HandleWebhook verifies and processes one provider notification.
func (h *WebhookHandler) HandleWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		http.Error(w, "failed to read body", http.StatusBadRequest)
		return
	}

	if !h.verifySignature(r.Header.Get(signatureHeader), r.Header.Get(timestampHeader), body) {
		h.logger.Warn("rejected webhook with bad signature", "remote", r.RemoteAddr)
		http.Error(w, "invalid signature", http.StatusUnauthorized)
		return
	}

	var event webhookEvent
	if err := json.Unmarshal(body, &event); err != nil {
		http.Error(w, "invalid payload", http.StatusBadRequest)
		return
	}
	if event.ConnectionID == uuid.Nil {
		http.Error(w, "connection_id is required", http.StatusBadRequest)
		return
	}

	end := h.now().UTC()
	payload := domain.SyncRequestedPayload{
		ConnectionID:    event.ConnectionID,
		WindowStartDate: end.AddDate(0, 0, -h.config.SyncWindowDays),
		WindowEndDate:   end,
	}
	if err := h.publisher.Publish(r.Context(), domain.RoutingSyncRequested, payload); err != nil {
		h.logger.Error("failed to queue webhook sync", "connection_id", event.ConnectionID, "error", err)
		http.Error(w, "failed to queue sync", http.StatusInternalServerError)
		return
	}

	h.logger.Info("webhook accepted", "event_type", event.EventType, "connection_id", event.ConnectionID)
	w.WriteHeader(http.StatusOK)
}

// verifySignature checks a timestamped HMAC-SHA256 signature. The signed
// message is "<unix timestamp>.<raw body>"; binding the timestamp into the
// MAC is what makes replay rejection trustworthy. Hex and base64 encodings
// are both accepted since providers differ.
func (h *WebhookHandler) verifySignature(signature, timestamp string, body []byte) bool {
	if h.secret == "" {
		// No secret configured means webhooks are disabled, not open.
		return false
	}
	if signature == "" || timestamp == "" {
		return false
	}

	ts, err := strconv.ParseInt(timestamp, 10, 64)
	if err != nil {
		return false
	}
	age := h.now().UTC().Sub(time.Unix(ts, 0).UTC())
	if age > h.tolerance || age < -h.tolerance {
		return false
	}

	mac := hmac.New(sha256.New, []byte(h.secret))
	mac.Write([]byte(timestamp))
	mac.Write([]byte("."))
	mac.Write(body)
	expected := mac.Sum(nil)

	if decoded, err := hex.DecodeString(signature); err == nil {
		if hmac.Equal(decoded, expected) {
			return true
		}
	}
	if decoded, err := base64.StdEncoding.DecodeString(signature); err == nil {
		if hmac.Equal(decoded, expected) {
			return true
		}
	}
	return false
}
