/**
 * @description
 * This file defines the connection-side domain models for the sync-service:
 * the credentialed link to an external data provider, and the provider-side
 * accounts discovered under it. These structs map directly to the
 * `connections` and `provider_accounts` tables.
 *
 * @notes
 * - Credentials are an opaque blob; this service never interprets them, it
 *   only hands them to the provider client.
 * - The raw activity payload cached on a ProviderAccount is the merge base
 *   for the next sync and the audit trail for reprocessing without a refetch.
 */

package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ConnectionStatus is the lifecycle state of a provider connection.
type ConnectionStatus string

const (
	// ConnectionGood means credentials are valid and syncs may run.
	ConnectionGood ConnectionStatus = "good"
	// ConnectionRequiresUpdate means the provider rejected the stored
	// credentials; syncs are short-circuited until the user re-authenticates.
	ConnectionRequiresUpdate ConnectionStatus = "requires_update"
	// ConnectionPendingAccountSetup means at least one provider account has
	// no linked ledger account; processing is halted until a human links it.
	ConnectionPendingAccountSetup ConnectionStatus = "pending_account_setup"
)

// Connection is a credentialed link to one external provider for one user.
type Connection struct {
	ID           uuid.UUID        `json:"id"`
	UserID       uuid.UUID        `json:"user_id"`
	ProviderKind string           `json:"provider_kind"`
	Credentials  []byte           `json:"-"` // opaque blob, passed through to the provider client
	Status       ConnectionStatus `json:"status"`
	LastSyncedAt *time.Time       `json:"last_synced_at,omitempty"`
	CreatedAt    time.Time        `json:"created_at"`
	UpdatedAt    time.Time        `json:"updated_at"`
}

// ProviderAccount is one provider-side account, wallet or brokerage account
// discovered under a Connection. It is linked to at most one ledger account.
type ProviderAccount struct {
	ID            uuid.UUID `json:"id"`
	ConnectionID  uuid.UUID `json:"connection_id"`
	ExternalID    string    `json:"external_id"`
	Name          string    `json:"name"`
	InstitutionID string    `json:"institution_id"`
	AccountType   string    `json:"account_type"`
	Currency      string    `json:"currency"`
	// RawBalance is the provider's last reported balance, stored untouched.
	RawBalance decimal.Decimal `json:"raw_balance"`
	// RawPayload is the full locally cached activity history as returned by
	// (and merged across) provider fetches.
	RawPayload json.RawMessage `json:"raw_payload,omitempty"`
	// LinkedAccountID points at the ledger account this provider account
	// feeds. Nil while the connection is pending account setup.
	LinkedAccountID *uuid.UUID `json:"linked_account_id,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// Linked reports whether this provider account feeds a ledger account.
func (p *ProviderAccount) Linked() bool {
	return p.LinkedAccountID != nil
}

// Account is the user-facing ledger account. It may be fed by zero or more
// provider accounts, or be purely manual.
type Account struct {
	ID       uuid.UUID `json:"id"`
	UserID   uuid.UUID `json:"user_id"`
	Name     string    `json:"name"`
	Currency string    `json:"currency"`
	// Balance is the live current balance, written only by balance updates
	// from providers or the user, never by the balance materializer.
	Balance decimal.Decimal `json:"balance"`
	// CashBalance is the uninvested portion for brokerage-style accounts.
	CashBalance decimal.Decimal `json:"cash_balance"`
	// StartBalance anchors the forward daily balance replay.
	StartBalance decimal.Decimal `json:"start_balance"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}
