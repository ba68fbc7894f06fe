/**
 * @description
 * This file defines the Sync execution record and its state machine. One
 * Sync row exists per orchestration run; many exist historically per
 * connection. The status text is the only failure surface shown to users,
 * never a raw error chain.
 */

package domain

import (
	"time"

	"github.com/google/uuid"
)

// SyncStatus is one phase of the orchestration pipeline.
type SyncStatus string

const (
	SyncPending    SyncStatus = "pending"
	SyncImporting  SyncStatus = "importing"
	SyncProcessing SyncStatus = "processing"
	// SyncRequiresAccountSetup means import finished but at least one
	// provider account is unlinked; the run halts here until a human links
	// it and the sync is re-enqueued.
	SyncRequiresAccountSetup SyncStatus = "requires_account_setup"
	SyncCalculating          SyncStatus = "calculating"
	SyncCompleted            SyncStatus = "completed"
	SyncFailed               SyncStatus = "failed"
)

// syncTransitions enumerates the legal status moves. Any status may move to
// failed; that edge is handled in CanTransition rather than listed here.
var syncTransitions = map[SyncStatus][]SyncStatus{
	SyncPending:              {SyncImporting},
	SyncImporting:            {SyncRequiresAccountSetup, SyncProcessing},
	SyncRequiresAccountSetup: {SyncProcessing},
	SyncProcessing:           {SyncCalculating},
	SyncCalculating:          {SyncCompleted},
}

// CanTransition reports whether a sync may move from one status to another.
func CanTransition(from, to SyncStatus) bool {
	if to == SyncFailed {
		return from != SyncCompleted && from != SyncFailed
	}
	for _, next := range syncTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// SyncStats is the free-form counters persisted on a completed sync.
type SyncStats struct {
	AccountsProcessed  int      `json:"accounts_processed"`
	ActivitiesImported int      `json:"activities_imported"`
	EntriesCreated     int      `json:"entries_created"`
	EntriesUpdated     int      `json:"entries_updated"`
	Errors             []string `json:"errors,omitempty"`
}

// Sync is a single execution record of the orchestration pipeline.
type Sync struct {
	ID           uuid.UUID  `json:"id"`
	ConnectionID uuid.UUID  `json:"connection_id"`
	Status       SyncStatus `json:"status"`
	// StatusText is a human-readable description of the current phase or
	// terminal outcome.
	StatusText      string     `json:"status_text"`
	WindowStartDate time.Time  `json:"window_start_date"`
	WindowEndDate   time.Time  `json:"window_end_date"`
	Stats           SyncStats  `json:"stats"`
	StartedAt       time.Time  `json:"started_at"`
	CompletedAt     *time.Time `json:"completed_at,omitempty"`
}
