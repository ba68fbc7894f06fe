package app

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/ledgerhub/sync-service/internal/domain"
)

type delayedPublisherStub struct {
	published  []string
	delays     []time.Duration
	bodies     []interface{}
	publishErr error
}

func (s *delayedPublisherStub) PublishWithDelay(ctx context.Context, routingKey string, body interface{}, delay time.Duration) error {
	if s.publishErr != nil {
		return s.publishErr
	}
	s.published = append(s.published, routingKey)
	s.delays = append(s.delays, delay)
	s.bodies = append(s.bodies, body)
	return nil
}

func TestScheduleIfEmptyIncrementsAttempt(t *testing.T) {
	pub := &delayedPublisherStub{}
	scheduler := NewRetryScheduler(pub, 3, 45*time.Second, slog.New(slog.NewTextHandler(io.Discard, nil)))

	payload := domain.FetchActivitiesPayload{ProviderAccountID: uuid.New(), StartDate: day("2026-01-01"), RetryCount: 1}
	scheduled, err := scheduler.ScheduleIfEmpty(context.Background(), payload)
	if err != nil {
		t.Fatalf("schedule failed: %v", err)
	}
	if !scheduled {
		t.Fatal("expected a retry below the bound to schedule")
	}
	if len(pub.published) != 1 || pub.published[0] != domain.RoutingFetchActivity {
		t.Fatalf("expected one fetch job published, got %v", pub.published)
	}
	if pub.delays[0] != 45*time.Second {
		t.Fatalf("expected configured delay, got %s", pub.delays[0])
	}
	next, ok := pub.bodies[0].(domain.FetchActivitiesPayload)
	if !ok {
		t.Fatalf("unexpected body type %T", pub.bodies[0])
	}
	if next.RetryCount != 2 {
		t.Fatalf("expected attempt counter incremented to 2, got %d", next.RetryCount)
	}
	if next.ProviderAccountID != payload.ProviderAccountID {
		t.Fatal("expected payload identity preserved")
	}
}

func TestScheduleIfEmptyStopsAtBound(t *testing.T) {
	pub := &delayedPublisherStub{}
	scheduler := NewRetryScheduler(pub, 3, time.Second, slog.New(slog.NewTextHandler(io.Discard, nil)))

	payload := domain.FetchActivitiesPayload{ProviderAccountID: uuid.New(), RetryCount: 3}
	scheduled, err := scheduler.ScheduleIfEmpty(context.Background(), payload)
	if err != nil {
		t.Fatalf("expected giving up to be terminal but not an error, got %v", err)
	}
	if scheduled {
		t.Fatal("expected no retry at the bound")
	}
	if len(pub.published) != 0 {
		t.Fatal("expected nothing published at the bound")
	}
}

func TestScheduleIfEmptyPropagatesPublishFailure(t *testing.T) {
	pub := &delayedPublisherStub{publishErr: errors.New("broker unavailable")}
	scheduler := NewRetryScheduler(pub, 3, time.Second, slog.New(slog.NewTextHandler(io.Discard, nil)))

	scheduled, err := scheduler.ScheduleIfEmpty(context.Background(), domain.FetchActivitiesPayload{ProviderAccountID: uuid.New()})
	if err == nil {
		t.Fatal("expected publish failure to propagate")
	}
	if scheduled {
		t.Fatal("expected scheduled=false on publish failure")
	}
}
