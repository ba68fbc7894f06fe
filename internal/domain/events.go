/**
 * @description
 * Job payloads carried on the sync job queue. Each orchestration phase and
 * each retry attempt is an independently dispatchable unit of work; delay is
 * expressed as "deliver this message at time T", never as an in-process
 * sleep.
 */

package domain

import (
	"time"

	"github.com/google/uuid"
)

// Routing keys on the sync jobs exchange.
const (
	RoutingSyncRequested = "sync.connection.requested"
	RoutingFetchActivity = "sync.account.fetch"
)

// SyncRequestedPayload asks the orchestrator to run a full sync for one
// connection.
type SyncRequestedPayload struct {
	ConnectionID    uuid.UUID `json:"connection_id"`
	WindowStartDate time.Time `json:"window_start_date"`
	WindowEndDate   time.Time `json:"window_end_date"`
}

// FetchActivitiesPayload asks for a (re-)fetch of one provider account's
// activity. RetryCount is incremented on every delayed re-dispatch; the
// retry scheduler stops once it reaches the configured bound.
type FetchActivitiesPayload struct {
	ProviderAccountID uuid.UUID  `json:"provider_account_id"`
	StartDate         time.Time  `json:"start_date"`
	EndDate           *time.Time `json:"end_date,omitempty"`
	RetryCount        int        `json:"retry_count"`
}
