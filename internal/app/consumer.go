/**
 * @description
 * Job consumer for the sync queue. Translates raw deliveries into typed
 * payloads and hands them to the orchestrator.
 *
 * @notes
 * - Malformed payloads and references to rows that no longer exist are
 *   acked and dropped: requeueing them would loop forever. Everything else
 *   requeues so a restart or transient outage does not lose work.
 */

package app

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/ledgerhub/sync-service/internal/domain"
	"github.com/ledgerhub/sync-service/internal/store"
	"github.com/ledgerhub/sync-service/pkg/rabbitmq"
)

const jobTimeout = 5 * time.Minute

// JobConsumer dispatches sync job deliveries to the orchestrator.
type JobConsumer struct {
	orchestrator *Orchestrator
	logger       *slog.Logger
}

func NewJobConsumer(orchestrator *Orchestrator, logger *slog.Logger) *JobConsumer {
	return &JobConsumer{orchestrator: orchestrator, logger: logger}
}

// Bindings returns the routing-key handler map for the jobs queue.
func (c *JobConsumer) Bindings() map[string]func([]byte) rabbitmq.HandlerOutcome {
	return map[string]func([]byte) rabbitmq.HandlerOutcome{
		domain.RoutingSyncRequested: c.handleSyncRequested,
		domain.RoutingFetchActivity: c.handleFetchActivities,
	}
}

func (c *JobConsumer) handleSyncRequested(body []byte) rabbitmq.HandlerOutcome {
	var payload domain.SyncRequestedPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		c.logger.Error("sync job payload unreadable; dropping", "error", err)
		return rabbitmq.Ack
	}
	if payload.ConnectionID == uuid.Nil {
		c.logger.Error("sync job missing connection id; dropping")
		return rabbitmq.Ack
	}

	ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
	defer cancel()

	if err := c.orchestrator.SyncConnection(ctx, payload); err != nil {
		if errors.Is(err, store.ErrConnectionNotFound) {
			c.logger.Warn("sync job references deleted connection; dropping", "connection_id", payload.ConnectionID)
			return rabbitmq.Ack
		}
		c.logger.Error("sync job failed", "connection_id", payload.ConnectionID, "error", err)
		return rabbitmq.Requeue
	}
	return rabbitmq.Ack
}

func (c *JobConsumer) handleFetchActivities(body []byte) rabbitmq.HandlerOutcome {
	var payload domain.FetchActivitiesPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		c.logger.Error("fetch job payload unreadable; dropping", "error", err)
		return rabbitmq.Ack
	}
	if payload.ProviderAccountID == uuid.Nil {
		c.logger.Error("fetch job missing provider account id; dropping")
		return rabbitmq.Ack
	}

	ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
	defer cancel()

	if err := c.orchestrator.FetchAccountActivities(ctx, payload); err != nil {
		if errors.Is(err, store.ErrProviderAccountNotFound) || errors.Is(err, store.ErrConnectionNotFound) {
			c.logger.Warn("fetch job references deleted rows; dropping", "provider_account_id", payload.ProviderAccountID)
			return rabbitmq.Ack
		}
		c.logger.Error("fetch job failed", "provider_account_id", payload.ProviderAccountID, "error", err)
		return rabbitmq.Requeue
	}
	return rabbitmq.Ack
}
