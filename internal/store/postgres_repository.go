/**
 * @description
 * This file provides the PostgreSQL implementation of the `Repository`
 * interface. It contains all the SQL needed to persist connections, provider
 * accounts, canonical ledger entries, derived snapshots and sync records.
 *
 * @dependencies
 * - context, time, errors: Standard Go libraries.
 * - github.com/jackc/pgx/v5: The PostgreSQL driver for database operations.
 * - internal/domain: Contains the domain models used for data transfer.
 *
 * @notes
 * - Entry writes that carry a payload (transaction, trade, valuation) run
 *   inside one pgx transaction; the entry and its payload either both land
 *   or both roll back.
 * - Holding and balance snapshot writes are upsert-on-conflict on their
 *   natural keys, so re-running a materializer is always safe.
 */

package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/ledgerhub/sync-service/internal/domain"
	"github.com/shopspring/decimal"
)

var (
	ErrConnectionNotFound      = errors.New("connection not found")
	ErrProviderAccountNotFound = errors.New("provider account not found")
	ErrAccountNotFound         = errors.New("account not found")
	ErrEntryNotFound           = errors.New("entry not found")
	ErrSyncNotFound            = errors.New("sync not found")
)

// PostgresRepository is a concrete implementation of the Repository interface for PostgreSQL.
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository creates a new instance of PostgresRepository.
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// CreateConnection inserts a new provider connection.
func (r *PostgresRepository) CreateConnection(ctx context.Context, conn *domain.Connection) error {
	query := `
		INSERT INTO connections (id, user_id, provider_kind, credentials, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, NOW(), NOW())
	`
	_, err := r.db.Exec(ctx, query, conn.ID, conn.UserID, conn.ProviderKind, conn.Credentials, conn.Status)
	return err
}

// GetConnectionByID retrieves a connection by its id.
func (r *PostgresRepository) GetConnectionByID(ctx context.Context, id uuid.UUID) (*domain.Connection, error) {
	var conn domain.Connection
	query := `
		SELECT id, user_id, provider_kind, credentials, status, last_synced_at, created_at, updated_at
		FROM connections WHERE id = $1
	`
	err := r.db.QueryRow(ctx, query, id).Scan(
		&conn.ID, &conn.UserID, &conn.ProviderKind, &conn.Credentials,
		&conn.Status, &conn.LastSyncedAt, &conn.CreatedAt, &conn.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrConnectionNotFound
		}
		return nil, err
	}
	return &conn, nil
}

// ListConnectionsByStatus returns every connection currently in the given status.
func (r *PostgresRepository) ListConnectionsByStatus(ctx context.Context, status domain.ConnectionStatus) ([]domain.Connection, error) {
	query := `
		SELECT id, user_id, provider_kind, credentials, status, last_synced_at, created_at, updated_at
		FROM connections WHERE status = $1 ORDER BY created_at
	`
	rows, err := r.db.Query(ctx, query, status)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var conns []domain.Connection
	for rows.Next() {
		var conn domain.Connection
		if err := rows.Scan(
			&conn.ID, &conn.UserID, &conn.ProviderKind, &conn.Credentials,
			&conn.Status, &conn.LastSyncedAt, &conn.CreatedAt, &conn.UpdatedAt,
		); err != nil {
			return nil, err
		}
		conns = append(conns, conn)
	}
	return conns, rows.Err()
}

// UpdateConnectionStatus flips a connection's lifecycle status.
func (r *PostgresRepository) UpdateConnectionStatus(ctx context.Context, id uuid.UUID, status domain.ConnectionStatus) error {
	tag, err := r.db.Exec(ctx, `UPDATE connections SET status = $2, updated_at = NOW() WHERE id = $1`, id, status)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrConnectionNotFound
	}
	return nil
}

// TouchConnectionLastSynced records the completion time of the latest sync.
func (r *PostgresRepository) TouchConnectionLastSynced(ctx context.Context, id uuid.UUID, at time.Time) error {
	_, err := r.db.Exec(ctx, `UPDATE connections SET last_synced_at = $2, updated_at = NOW() WHERE id = $1`, id, at)
	return err
}

// DeleteConnection removes a connection and cascades to its provider accounts.
func (r *PostgresRepository) DeleteConnection(ctx context.Context, id uuid.UUID) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM connections WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrConnectionNotFound
	}
	return nil
}

// UpsertProviderAccount inserts a provider account or refreshes its
// provider-reported attributes, keyed on (connection_id, external_id).
// The link to a ledger account is never touched here.
func (r *PostgresRepository) UpsertProviderAccount(ctx context.Context, acct *domain.ProviderAccount) error {
	query := `
		INSERT INTO provider_accounts
			(id, connection_id, external_id, name, institution_id, account_type, currency, raw_balance, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW(), NOW())
		ON CONFLICT (connection_id, external_id) DO UPDATE SET
			name = EXCLUDED.name,
			institution_id = EXCLUDED.institution_id,
			account_type = EXCLUDED.account_type,
			currency = EXCLUDED.currency,
			raw_balance = EXCLUDED.raw_balance,
			updated_at = NOW()
		RETURNING id, linked_account_id
	`
	return r.db.QueryRow(ctx, query,
		acct.ID, acct.ConnectionID, acct.ExternalID, acct.Name, acct.InstitutionID,
		acct.AccountType, acct.Currency, acct.RawBalance,
	).Scan(&acct.ID, &acct.LinkedAccountID)
}

// UpdateProviderAccountExternalID replaces a provider account's external id
// after the provider rotates it. The row keeps its link and cached payload.
func (r *PostgresRepository) UpdateProviderAccountExternalID(ctx context.Context, id uuid.UUID, externalID string) error {
	query := `UPDATE provider_accounts SET external_id = $1, updated_at = NOW() WHERE id = $2`
	tag, err := r.db.Exec(ctx, query, externalID, id)
	if err != nil {
		return fmt.Errorf("failed to update provider account external id: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrProviderAccountNotFound
	}
	return nil
}

// GetProviderAccountByID retrieves a provider account by its id.
func (r *PostgresRepository) GetProviderAccountByID(ctx context.Context, id uuid.UUID) (*domain.ProviderAccount, error) {
	var acct domain.ProviderAccount
	query := `
		SELECT id, connection_id, external_id, name, institution_id, account_type, currency,
		       raw_balance, raw_payload, linked_account_id, created_at, updated_at
		FROM provider_accounts WHERE id = $1
	`
	err := r.db.QueryRow(ctx, query, id).Scan(
		&acct.ID, &acct.ConnectionID, &acct.ExternalID, &acct.Name, &acct.InstitutionID,
		&acct.AccountType, &acct.Currency, &acct.RawBalance, &acct.RawPayload,
		&acct.LinkedAccountID, &acct.CreatedAt, &acct.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrProviderAccountNotFound
		}
		return nil, err
	}
	return &acct, nil
}

// ListProviderAccountsByConnection returns every provider account under a connection.
func (r *PostgresRepository) ListProviderAccountsByConnection(ctx context.Context, connectionID uuid.UUID) ([]domain.ProviderAccount, error) {
	query := `
		SELECT id, connection_id, external_id, name, institution_id, account_type, currency,
		       raw_balance, raw_payload, linked_account_id, created_at, updated_at
		FROM provider_accounts WHERE connection_id = $1 ORDER BY created_at
	`
	rows, err := r.db.Query(ctx, query, connectionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var accts []domain.ProviderAccount
	for rows.Next() {
		var acct domain.ProviderAccount
		if err := rows.Scan(
			&acct.ID, &acct.ConnectionID, &acct.ExternalID, &acct.Name, &acct.InstitutionID,
			&acct.AccountType, &acct.Currency, &acct.RawBalance, &acct.RawPayload,
			&acct.LinkedAccountID, &acct.CreatedAt, &acct.UpdatedAt,
		); err != nil {
			return nil, err
		}
		accts = append(accts, acct)
	}
	return accts, rows.Err()
}

// LinkProviderAccount points a provider account at a ledger account.
func (r *PostgresRepository) LinkProviderAccount(ctx context.Context, providerAccountID, accountID uuid.UUID) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE provider_accounts SET linked_account_id = $2, updated_at = NOW() WHERE id = $1`,
		providerAccountID, accountID,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrProviderAccountNotFound
	}
	return nil
}

// UpdateProviderAccountPayload replaces the cached raw activity payload.
func (r *PostgresRepository) UpdateProviderAccountPayload(ctx context.Context, id uuid.UUID, payload json.RawMessage) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE provider_accounts SET raw_payload = $2, updated_at = NOW() WHERE id = $1`,
		id, payload,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrProviderAccountNotFound
	}
	return nil
}

// GetAccountByID retrieves a ledger account by its id.
func (r *PostgresRepository) GetAccountByID(ctx context.Context, id uuid.UUID) (*domain.Account, error) {
	var acct domain.Account
	query := `
		SELECT id, user_id, name, currency, balance, cash_balance, start_balance, created_at, updated_at
		FROM accounts WHERE id = $1
	`
	err := r.db.QueryRow(ctx, query, id).Scan(
		&acct.ID, &acct.UserID, &acct.Name, &acct.Currency,
		&acct.Balance, &acct.CashBalance, &acct.StartBalance,
		&acct.CreatedAt, &acct.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAccountNotFound
		}
		return nil, err
	}
	return &acct, nil
}

// UpdateAccountBalance overwrites the live balance fields. Cash balance is
// only touched when provided.
func (r *PostgresRepository) UpdateAccountBalance(ctx context.Context, id uuid.UUID, balance decimal.Decimal, cashBalance *decimal.Decimal) error {
	query := `
		UPDATE accounts
		SET balance = $2,
		    cash_balance = COALESCE($3, cash_balance),
		    updated_at = NOW()
		WHERE id = $1
	`
	tag, err := r.db.Exec(ctx, query, id, balance, cashBalance)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrAccountNotFound
	}
	return nil
}

// FindEntryByExternalID looks up a provider-sourced entry by its upsert key.
func (r *PostgresRepository) FindEntryByExternalID(ctx context.Context, accountID uuid.UUID, externalID, source string) (*domain.Entry, error) {
	query := `
		SELECT e.id, e.account_id, e.external_id, e.source, e.kind, e.date, e.amount, e.currency,
		       e.name, e.notes, e.locked_attributes, e.created_at, e.updated_at
		FROM entries e
		WHERE e.account_id = $1 AND e.external_id = $2 AND e.source = $3
	`
	var entry domain.Entry
	err := r.db.QueryRow(ctx, query, accountID, externalID, source).Scan(
		&entry.ID, &entry.AccountID, &entry.ExternalID, &entry.Source, &entry.Kind,
		&entry.Date, &entry.Amount, &entry.Currency, &entry.Name, &entry.Notes,
		&entry.LockedAttributes, &entry.CreatedAt, &entry.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrEntryNotFound
		}
		return nil, err
	}
	if err := r.attachPayload(ctx, &entry); err != nil {
		return nil, err
	}
	return &entry, nil
}

// attachPayload loads the entryable row matching entry.Kind.
func (r *PostgresRepository) attachPayload(ctx context.Context, entry *domain.Entry) error {
	switch entry.Kind {
	case domain.EntryTransaction:
		var txn domain.Transaction
		err := r.db.QueryRow(ctx,
			`SELECT id, entry_id, category_id, merchant_id, pending FROM transactions WHERE entry_id = $1`,
			entry.ID,
		).Scan(&txn.ID, &txn.EntryID, &txn.CategoryID, &txn.MerchantID, &txn.Pending)
		if err != nil {
			return fmt.Errorf("load transaction payload for entry %s: %w", entry.ID, err)
		}
		entry.Transaction = &txn
	case domain.EntryTrade:
		var trade domain.Trade
		err := r.db.QueryRow(ctx,
			`SELECT id, entry_id, security_id, qty, price, currency FROM trades WHERE entry_id = $1`,
			entry.ID,
		).Scan(&trade.ID, &trade.EntryID, &trade.SecurityID, &trade.Quantity, &trade.Price, &trade.Currency)
		if err != nil {
			return fmt.Errorf("load trade payload for entry %s: %w", entry.ID, err)
		}
		entry.Trade = &trade
	case domain.EntryValuation:
		var val domain.Valuation
		err := r.db.QueryRow(ctx,
			`SELECT id, entry_id FROM valuations WHERE entry_id = $1`,
			entry.ID,
		).Scan(&val.ID, &val.EntryID)
		if err != nil {
			return fmt.Errorf("load valuation payload for entry %s: %w", entry.ID, err)
		}
		entry.Valuation = &val
	}
	return nil
}

// CreateEntry inserts an entry and its payload atomically.
func (r *PostgresRepository) CreateEntry(ctx context.Context, entry *domain.Entry) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
		INSERT INTO entries (id, account_id, external_id, source, kind, date, amount, currency, name, notes, locked_attributes, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, NOW(), NOW())
	`,
		entry.ID, entry.AccountID, entry.ExternalID, entry.Source, entry.Kind,
		entry.Date, entry.Amount, entry.Currency, entry.Name, entry.Notes, entry.LockedAttributes,
	)
	if err != nil {
		return err
	}

	if err := writePayload(ctx, tx, entry); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// UpdateEntry rewrites an entry's mutable attributes and payload atomically.
func (r *PostgresRepository) UpdateEntry(ctx context.Context, entry *domain.Entry) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `
		UPDATE entries
		SET date = $2, amount = $3, currency = $4, name = $5, notes = $6, locked_attributes = $7, updated_at = NOW()
		WHERE id = $1
	`,
		entry.ID, entry.Date, entry.Amount, entry.Currency, entry.Name, entry.Notes, entry.LockedAttributes,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrEntryNotFound
	}

	switch {
	case entry.Transaction != nil:
		_, err = tx.Exec(ctx, `
			UPDATE transactions SET category_id = $2, merchant_id = $3, pending = $4 WHERE entry_id = $1
		`, entry.ID, entry.Transaction.CategoryID, entry.Transaction.MerchantID, entry.Transaction.Pending)
	case entry.Trade != nil:
		_, err = tx.Exec(ctx, `
			UPDATE trades SET security_id = $2, qty = $3, price = $4, currency = $5 WHERE entry_id = $1
		`, entry.ID, entry.Trade.SecurityID, entry.Trade.Quantity, entry.Trade.Price, entry.Trade.Currency)
	}
	if err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func writePayload(ctx context.Context, tx pgx.Tx, entry *domain.Entry) error {
	switch {
	case entry.Transaction != nil:
		_, err := tx.Exec(ctx, `
			INSERT INTO transactions (id, entry_id, category_id, merchant_id, pending)
			VALUES ($1, $2, $3, $4, $5)
		`, entry.Transaction.ID, entry.ID, entry.Transaction.CategoryID, entry.Transaction.MerchantID, entry.Transaction.Pending)
		return err
	case entry.Trade != nil:
		_, err := tx.Exec(ctx, `
			INSERT INTO trades (id, entry_id, security_id, qty, price, currency)
			VALUES ($1, $2, $3, $4, $5, $6)
		`, entry.Trade.ID, entry.ID, entry.Trade.SecurityID, entry.Trade.Quantity, entry.Trade.Price, entry.Trade.Currency)
		return err
	case entry.Valuation != nil:
		_, err := tx.Exec(ctx, `
			INSERT INTO valuations (id, entry_id) VALUES ($1, $2)
		`, entry.Valuation.ID, entry.ID)
		return err
	}
	return fmt.Errorf("entry %s has no payload for kind %s", entry.ID, entry.Kind)
}

// ListTradesByAccount returns the account's trade entries in ascending date
// order, the order the holdings materializer replays them in.
func (r *PostgresRepository) ListTradesByAccount(ctx context.Context, accountID uuid.UUID) ([]domain.Entry, error) {
	query := `
		SELECT e.id, e.account_id, e.external_id, e.source, e.kind, e.date, e.amount, e.currency,
		       e.name, e.notes, e.locked_attributes, e.created_at, e.updated_at,
		       t.id, t.entry_id, t.security_id, t.qty, t.price, t.currency
		FROM entries e
		JOIN trades t ON t.entry_id = e.id
		WHERE e.account_id = $1
		ORDER BY e.date ASC, e.created_at ASC
	`
	rows, err := r.db.Query(ctx, query, accountID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []domain.Entry
	for rows.Next() {
		var entry domain.Entry
		var trade domain.Trade
		if err := rows.Scan(
			&entry.ID, &entry.AccountID, &entry.ExternalID, &entry.Source, &entry.Kind,
			&entry.Date, &entry.Amount, &entry.Currency, &entry.Name, &entry.Notes,
			&entry.LockedAttributes, &entry.CreatedAt, &entry.UpdatedAt,
			&trade.ID, &trade.EntryID, &trade.SecurityID, &trade.Quantity, &trade.Price, &trade.Currency,
		); err != nil {
			return nil, err
		}
		entry.Trade = &trade
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

// ListCashEntriesByAccount returns the account's cash-affecting entries
// (transactions only) in ascending date order for the balance replay.
func (r *PostgresRepository) ListCashEntriesByAccount(ctx context.Context, accountID uuid.UUID) ([]domain.Entry, error) {
	query := `
		SELECT e.id, e.account_id, e.external_id, e.source, e.kind, e.date, e.amount, e.currency,
		       e.name, e.notes, e.locked_attributes, e.created_at, e.updated_at
		FROM entries e
		WHERE e.account_id = $1 AND e.kind = $2
		ORDER BY e.date ASC, e.created_at ASC
	`
	rows, err := r.db.Query(ctx, query, accountID, domain.EntryTransaction)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []domain.Entry
	for rows.Next() {
		var entry domain.Entry
		if err := rows.Scan(
			&entry.ID, &entry.AccountID, &entry.ExternalID, &entry.Source, &entry.Kind,
			&entry.Date, &entry.Amount, &entry.Currency, &entry.Name, &entry.Notes,
			&entry.LockedAttributes, &entry.CreatedAt, &entry.UpdatedAt,
		); err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

// FindOrCreateSecurity resolves a security by symbol, creating it on first sight.
func (r *PostgresRepository) FindOrCreateSecurity(ctx context.Context, symbol, name string) (*domain.Security, error) {
	var sec domain.Security
	query := `
		INSERT INTO securities (id, symbol, name, created_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (symbol) DO UPDATE SET symbol = EXCLUDED.symbol
		RETURNING id, symbol, name, created_at
	`
	err := r.db.QueryRow(ctx, query, uuid.New(), symbol, name).Scan(
		&sec.ID, &sec.Symbol, &sec.Name, &sec.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &sec, nil
}

// FindOrCreateMerchant is idempotent on (source, name).
func (r *PostgresRepository) FindOrCreateMerchant(ctx context.Context, merchant *domain.Merchant) (*domain.Merchant, error) {
	var out domain.Merchant
	query := `
		INSERT INTO merchants (id, source, name, provider_merchant_id, website_url, logo_url, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, NOW())
		ON CONFLICT (source, name) DO UPDATE SET
			provider_merchant_id = COALESCE(merchants.provider_merchant_id, EXCLUDED.provider_merchant_id),
			website_url = COALESCE(merchants.website_url, EXCLUDED.website_url),
			logo_url = COALESCE(merchants.logo_url, EXCLUDED.logo_url)
		RETURNING id, source, name, provider_merchant_id, website_url, logo_url, created_at
	`
	err := r.db.QueryRow(ctx, query,
		uuid.New(), merchant.Source, merchant.Name, merchant.ProviderMerchantID,
		merchant.WebsiteURL, merchant.LogoURL,
	).Scan(&out.ID, &out.Source, &out.Name, &out.ProviderMerchantID, &out.WebsiteURL, &out.LogoURL, &out.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// UpsertHoldings writes holding snapshots, replacing any prior snapshot for
// the same (account, security, date, currency).
func (r *PostgresRepository) UpsertHoldings(ctx context.Context, holdings []domain.Holding) error {
	if len(holdings) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	query := `
		INSERT INTO holdings (id, account_id, security_id, date, qty, price, amount, currency)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (account_id, security_id, date, currency) DO UPDATE SET
			qty = EXCLUDED.qty,
			price = EXCLUDED.price,
			amount = EXCLUDED.amount
	`
	for _, h := range holdings {
		id := h.ID
		if id == uuid.Nil {
			id = uuid.New()
		}
		batch.Queue(query, id, h.AccountID, h.SecurityID, h.Date, h.Quantity, h.Price, h.Amount, h.Currency)
	}
	results := r.db.SendBatch(ctx, batch)
	defer results.Close()
	for range holdings {
		if _, err := results.Exec(); err != nil {
			return err
		}
	}
	return nil
}

// UpsertBalances writes daily balance snapshots, replacing any prior
// snapshot for the same (account, date, currency).
func (r *PostgresRepository) UpsertBalances(ctx context.Context, balances []domain.Balance) error {
	if len(balances) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	query := `
		INSERT INTO balances (id, account_id, date, amount, currency)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (account_id, date, currency) DO UPDATE SET
			amount = EXCLUDED.amount
	`
	for _, b := range balances {
		id := b.ID
		if id == uuid.Nil {
			id = uuid.New()
		}
		batch.Queue(query, id, b.AccountID, b.Date, b.Amount, b.Currency)
	}
	results := r.db.SendBatch(ctx, batch)
	defer results.Close()
	for range balances {
		if _, err := results.Exec(); err != nil {
			return err
		}
	}
	return nil
}

// CreateSync inserts a new sync run record.
func (r *PostgresRepository) CreateSync(ctx context.Context, sync *domain.Sync) error {
	stats, err := json.Marshal(sync.Stats)
	if err != nil {
		return err
	}
	query := `
		INSERT INTO syncs (id, connection_id, status, status_text, window_start_date, window_end_date, stats, started_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NOW())
	`
	_, err = r.db.Exec(ctx, query,
		sync.ID, sync.ConnectionID, sync.Status, sync.StatusText,
		sync.WindowStartDate, sync.WindowEndDate, stats,
	)
	return err
}

// GetSyncByID retrieves a sync run by its id.
func (r *PostgresRepository) GetSyncByID(ctx context.Context, id uuid.UUID) (*domain.Sync, error) {
	var sync domain.Sync
	var stats []byte
	query := `
		SELECT id, connection_id, status, status_text, window_start_date, window_end_date, stats, started_at, completed_at
		FROM syncs WHERE id = $1
	`
	err := r.db.QueryRow(ctx, query, id).Scan(
		&sync.ID, &sync.ConnectionID, &sync.Status, &sync.StatusText,
		&sync.WindowStartDate, &sync.WindowEndDate, &stats, &sync.StartedAt, &sync.CompletedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrSyncNotFound
		}
		return nil, err
	}
	if len(stats) > 0 {
		if err := json.Unmarshal(stats, &sync.Stats); err != nil {
			return nil, fmt.Errorf("decode stats for sync %s: %w", sync.ID, err)
		}
	}
	return &sync, nil
}

// ListSyncsByConnection returns the most recent sync runs for a connection.
func (r *PostgresRepository) ListSyncsByConnection(ctx context.Context, connectionID uuid.UUID, limit int) ([]domain.Sync, error) {
	if limit <= 0 {
		limit = 20
	}
	query := `
		SELECT id, connection_id, status, status_text, window_start_date, window_end_date, stats, started_at, completed_at
		FROM syncs WHERE connection_id = $1 ORDER BY started_at DESC LIMIT $2
	`
	rows, err := r.db.Query(ctx, query, connectionID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var syncs []domain.Sync
	for rows.Next() {
		var sync domain.Sync
		var stats []byte
		if err := rows.Scan(
			&sync.ID, &sync.ConnectionID, &sync.Status, &sync.StatusText,
			&sync.WindowStartDate, &sync.WindowEndDate, &stats, &sync.StartedAt, &sync.CompletedAt,
		); err != nil {
			return nil, err
		}
		if len(stats) > 0 {
			if err := json.Unmarshal(stats, &sync.Stats); err != nil {
				return nil, fmt.Errorf("decode stats for sync %s: %w", sync.ID, err)
			}
		}
		syncs = append(syncs, sync)
	}
	return syncs, rows.Err()
}

// UpdateSyncStatus moves a sync to a new phase with a human-readable status line.
func (r *PostgresRepository) UpdateSyncStatus(ctx context.Context, id uuid.UUID, status domain.SyncStatus, statusText string) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE syncs SET status = $2, status_text = $3 WHERE id = $1`,
		id, status, statusText,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrSyncNotFound
	}
	return nil
}

// CompleteSync records the terminal status, status text and stats in one write.
func (r *PostgresRepository) CompleteSync(ctx context.Context, id uuid.UUID, status domain.SyncStatus, statusText string, stats domain.SyncStats) error {
	encoded, err := json.Marshal(stats)
	if err != nil {
		return err
	}
	tag, err := r.db.Exec(ctx,
		`UPDATE syncs SET status = $2, status_text = $3, stats = $4, completed_at = NOW() WHERE id = $1`,
		id, status, statusText, encoded,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrSyncNotFound
	}
	return nil
}
