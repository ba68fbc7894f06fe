/**
 * @description
 * Scheduled job implementations for the sync-service.
 */
package app

import (
	"context"
	"log/slog"
	"time"

	"github.com/ledgerhub/sync-service/internal/config"
	"github.com/ledgerhub/sync-service/internal/domain"
)

// JobsRepository defines database operations needed by the jobs.
type JobsRepository interface {
	ListConnectionsByStatus(ctx context.Context, status domain.ConnectionStatus) ([]domain.Connection, error)
}

// JobPublisher enqueues sync work onto the jobs exchange.
type JobPublisher interface {
	Publish(ctx context.Context, routingKey string, body interface{}) error
}

// Jobs contains the logic for all scheduled tasks.
type Jobs struct {
	repo      JobsRepository
	publisher JobPublisher
	logger    *slog.Logger
	config    config.Config
}

// NewJobs creates a new Jobs runner.
func NewJobs(repo JobsRepository, publisher JobPublisher, logger *slog.Logger, cfg config.Config) *Jobs {
	return &Jobs{
		repo:      repo,
		publisher: publisher,
		logger:    logger,
		config:    cfg,
	}
}

// EnqueueScheduledSyncs finds every healthy connection and queues a sync
// for it. Connections awaiting re-authentication or account setup are left
// alone until their state is resolved.
func (j *Jobs) EnqueueScheduledSyncs() {
	j.logger.Info("starting scheduled sync sweep")
	ctx := context.Background()

	connections, err := j.repo.ListConnectionsByStatus(ctx, domain.ConnectionGood)
	if err != nil {
		j.logger.Error("failed to list syncable connections", "error", err)
		return
	}

	if len(connections) == 0 {
		j.logger.Info("no connections due for sync")
		return
	}

	end := time.Now().UTC()
	start := end.AddDate(0, 0, -j.config.SyncWindowDays)

	enqueued := 0
	for _, conn := range connections {
		payload := domain.SyncRequestedPayload{
			ConnectionID:    conn.ID,
			WindowStartDate: start,
			WindowEndDate:   end,
		}
		if err := j.publisher.Publish(ctx, domain.RoutingSyncRequested, payload); err != nil {
			j.logger.Error("failed to enqueue sync", "connection_id", conn.ID, "error", err)
			continue
		}
		enqueued++
	}

	j.logger.Info("scheduled sync sweep finished", "connections", len(connections), "enqueued", enqueued)
}
