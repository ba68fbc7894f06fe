/**
 * @description
 * This file defines the `Repository` interface, which specifies the contract
 * for all data access operations required by the sync-service. By defining an
 * interface, we decouple the sync pipeline's business logic from the specific
 * database implementation (PostgreSQL), making the code more modular and
 * easier to test.
 *
 * @dependencies
 * - context, time: Standard Go libraries.
 * - github.com/google/uuid: For UUID handling.
 * - internal/domain: For the service's domain models.
 */

package store

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/ledgerhub/sync-service/internal/domain"
	"github.com/shopspring/decimal"
)

// Repository defines the set of methods for interacting with the database.
type Repository interface {
	// Connection methods
	CreateConnection(ctx context.Context, conn *domain.Connection) error
	GetConnectionByID(ctx context.Context, id uuid.UUID) (*domain.Connection, error)
	ListConnectionsByStatus(ctx context.Context, status domain.ConnectionStatus) ([]domain.Connection, error)
	UpdateConnectionStatus(ctx context.Context, id uuid.UUID, status domain.ConnectionStatus) error
	TouchConnectionLastSynced(ctx context.Context, id uuid.UUID, at time.Time) error
	DeleteConnection(ctx context.Context, id uuid.UUID) error

	// Provider account methods
	UpsertProviderAccount(ctx context.Context, acct *domain.ProviderAccount) error
	UpdateProviderAccountExternalID(ctx context.Context, id uuid.UUID, externalID string) error
	GetProviderAccountByID(ctx context.Context, id uuid.UUID) (*domain.ProviderAccount, error)
	ListProviderAccountsByConnection(ctx context.Context, connectionID uuid.UUID) ([]domain.ProviderAccount, error)
	LinkProviderAccount(ctx context.Context, providerAccountID, accountID uuid.UUID) error
	UpdateProviderAccountPayload(ctx context.Context, id uuid.UUID, payload json.RawMessage) error

	// Ledger account methods
	GetAccountByID(ctx context.Context, id uuid.UUID) (*domain.Account, error)
	UpdateAccountBalance(ctx context.Context, id uuid.UUID, balance decimal.Decimal, cashBalance *decimal.Decimal) error

	// Entry methods
	FindEntryByExternalID(ctx context.Context, accountID uuid.UUID, externalID, source string) (*domain.Entry, error)
	CreateEntry(ctx context.Context, entry *domain.Entry) error
	UpdateEntry(ctx context.Context, entry *domain.Entry) error
	ListTradesByAccount(ctx context.Context, accountID uuid.UUID) ([]domain.Entry, error)
	ListCashEntriesByAccount(ctx context.Context, accountID uuid.UUID) ([]domain.Entry, error)

	// Security and merchant methods
	FindOrCreateSecurity(ctx context.Context, symbol, name string) (*domain.Security, error)
	FindOrCreateMerchant(ctx context.Context, merchant *domain.Merchant) (*domain.Merchant, error)

	// Snapshot methods
	UpsertHoldings(ctx context.Context, holdings []domain.Holding) error
	UpsertBalances(ctx context.Context, balances []domain.Balance) error

	// Sync methods
	CreateSync(ctx context.Context, sync *domain.Sync) error
	GetSyncByID(ctx context.Context, id uuid.UUID) (*domain.Sync, error)
	ListSyncsByConnection(ctx context.Context, connectionID uuid.UUID, limit int) ([]domain.Sync, error)
	UpdateSyncStatus(ctx context.Context, id uuid.UUID, status domain.SyncStatus, statusText string) error
	CompleteSync(ctx context.Context, id uuid.UUID, status domain.SyncStatus, statusText string, stats domain.SyncStats) error
}
