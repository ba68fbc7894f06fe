package app

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/ledgerhub/sync-service/internal/config"
	"github.com/ledgerhub/sync-service/internal/domain"
)

type jobsRepoStub struct {
	connections []domain.Connection
	listErr     error
	requested   []domain.ConnectionStatus
}

func (s *jobsRepoStub) ListConnectionsByStatus(ctx context.Context, status domain.ConnectionStatus) ([]domain.Connection, error) {
	s.requested = append(s.requested, status)
	if s.listErr != nil {
		return nil, s.listErr
	}
	out := make([]domain.Connection, 0, len(s.connections))
	for _, conn := range s.connections {
		if conn.Status == status {
			out = append(out, conn)
		}
	}
	return out, nil
}

type jobPublisherStub struct {
	keys       []string
	bodies     []interface{}
	publishErr error
}

func (s *jobPublisherStub) Publish(ctx context.Context, routingKey string, body interface{}) error {
	if s.publishErr != nil {
		return s.publishErr
	}
	s.keys = append(s.keys, routingKey)
	s.bodies = append(s.bodies, body)
	return nil
}

func newTestJobs(repo JobsRepository, publisher JobPublisher) *Jobs {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewJobs(repo, publisher, logger, config.Config{SyncWindowDays: 90})
}

func TestEnqueueScheduledSyncs_EnqueuesOnlyGoodConnections(t *testing.T) {
	good1 := domain.Connection{ID: uuid.New(), Status: domain.ConnectionGood}
	good2 := domain.Connection{ID: uuid.New(), Status: domain.ConnectionGood}
	repo := &jobsRepoStub{connections: []domain.Connection{
		good1,
		{ID: uuid.New(), Status: domain.ConnectionRequiresUpdate},
		good2,
		{ID: uuid.New(), Status: domain.ConnectionPendingAccountSetup},
	}}
	publisher := &jobPublisherStub{}

	newTestJobs(repo, publisher).EnqueueScheduledSyncs()

	if len(repo.requested) != 1 || repo.requested[0] != domain.ConnectionGood {
		t.Fatalf("expected a single sweep over good connections, got %v", repo.requested)
	}
	if len(publisher.keys) != 2 {
		t.Fatalf("expected 2 syncs enqueued, got %d", len(publisher.keys))
	}
	wantIDs := map[uuid.UUID]bool{good1.ID: true, good2.ID: true}
	for i, key := range publisher.keys {
		if key != domain.RoutingSyncRequested {
			t.Fatalf("expected routing key %s, got %s", domain.RoutingSyncRequested, key)
		}
		payload, ok := publisher.bodies[i].(domain.SyncRequestedPayload)
		if !ok {
			t.Fatalf("unexpected body type %T", publisher.bodies[i])
		}
		if !wantIDs[payload.ConnectionID] {
			t.Fatalf("unexpected connection enqueued: %s", payload.ConnectionID)
		}
		delete(wantIDs, payload.ConnectionID)
		if got := payload.WindowEndDate.Sub(payload.WindowStartDate); got != 90*24*time.Hour {
			t.Fatalf("expected a 90-day window, got %s", got)
		}
	}
}

func TestEnqueueScheduledSyncs_ListFailureEnqueuesNothing(t *testing.T) {
	repo := &jobsRepoStub{listErr: errors.New("db down")}
	publisher := &jobPublisherStub{}

	newTestJobs(repo, publisher).EnqueueScheduledSyncs()

	if len(publisher.keys) != 0 {
		t.Fatalf("expected no syncs enqueued after a list failure, got %d", len(publisher.keys))
	}
}
