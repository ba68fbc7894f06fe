/**
 * @description
 * Retry scheduling for accounts whose fetch came back empty. Brokerages
 * commonly need 30-60 seconds to index a freshly linked connection, so an
 * empty first fetch is re-dispatched after a fixed delay with an
 * incremented attempt counter. Once the bound is reached the scheduler
 * gives up with a warning rather than failing the sync: a brand-new empty
 * account is indistinguishable from a genuinely empty one, so stopping is
 * safe.
 */

package app

import (
	"context"
	"log/slog"
	"time"

	"github.com/ledgerhub/sync-service/internal/domain"
)

// DelayedPublisher re-dispatches a job payload after a delay.
type DelayedPublisher interface {
	PublishWithDelay(ctx context.Context, routingKey string, body interface{}, delay time.Duration) error
}

// RetryScheduler re-enqueues empty fetches with a bounded attempt counter.
type RetryScheduler struct {
	publisher   DelayedPublisher
	maxAttempts int
	delay       time.Duration
	logger      *slog.Logger
}

// NewRetryScheduler creates a RetryScheduler with the given bound and delay.
func NewRetryScheduler(publisher DelayedPublisher, maxAttempts int, delay time.Duration, logger *slog.Logger) *RetryScheduler {
	return &RetryScheduler{
		publisher:   publisher,
		maxAttempts: maxAttempts,
		delay:       delay,
		logger:      logger,
	}
}

// ScheduleIfEmpty re-enqueues a fetch for the account with attempt+1, or
// gives up once attempt reaches the bound. Returns whether a retry was
// scheduled.
func (s *RetryScheduler) ScheduleIfEmpty(ctx context.Context, payload domain.FetchActivitiesPayload) (bool, error) {
	if payload.RetryCount >= s.maxAttempts {
		s.logger.Warn("giving up on empty account after max fetch attempts",
			"provider_account_id", payload.ProviderAccountID,
			"attempts", payload.RetryCount,
		)
		return false, nil
	}

	next := payload
	next.RetryCount++
	if err := s.publisher.PublishWithDelay(ctx, domain.RoutingFetchActivity, next, s.delay); err != nil {
		return false, err
	}
	s.logger.Info("scheduled fetch retry for empty account",
		"provider_account_id", payload.ProviderAccountID,
		"attempt", next.RetryCount,
		"delay", s.delay,
	)
	return true, nil
}
