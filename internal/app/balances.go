/**
 * @description
 * Forward balance materializer. Recomputes daily balance snapshots for an
 * account from its cash-affecting entry history, by the same
 * upsert-on-conflict discipline as holdings. These snapshots back historical
 * balance charts; the account's live balance field is owned by balance
 * updates from the provider and is never written here.
 *
 * Sign convention: a negative entry amount is an inflow, so the running
 * balance subtracts entry amounts from the account's start balance.
 */

package app

import (
	"context"
	"log/slog"

	"github.com/google/uuid"
	"github.com/ledgerhub/sync-service/internal/domain"
	"github.com/shopspring/decimal"
)

// BalancesRepository is the slice of the store the balance materializer needs.
type BalancesRepository interface {
	GetAccountByID(ctx context.Context, id uuid.UUID) (*domain.Account, error)
	ListCashEntriesByAccount(ctx context.Context, accountID uuid.UUID) ([]domain.Entry, error)
	UpsertBalances(ctx context.Context, balances []domain.Balance) error
}

// BalanceMaterializer derives dated account-balance snapshots from the
// ordered entry history of an account.
type BalanceMaterializer struct {
	repo   BalancesRepository
	logger *slog.Logger
}

// NewBalanceMaterializer creates a new BalanceMaterializer.
func NewBalanceMaterializer(repo BalancesRepository, logger *slog.Logger) *BalanceMaterializer {
	return &BalanceMaterializer{repo: repo, logger: logger}
}

// MaterializeBalances recomputes and persists daily balance snapshots for
// one account. Errors abort only this account's balance pass.
func (m *BalanceMaterializer) MaterializeBalances(ctx context.Context, accountID uuid.UUID) error {
	account, err := m.repo.GetAccountByID(ctx, accountID)
	if err != nil {
		m.logger.Error("balance replay failed to load account", "account_id", accountID, "error", err)
		return err
	}
	entries, err := m.repo.ListCashEntriesByAccount(ctx, accountID)
	if err != nil {
		m.logger.Error("balance replay failed to load entries", "account_id", accountID, "error", err)
		return err
	}
	if len(entries) == 0 {
		return nil
	}

	snapshots := ReplayBalances(account, entries)
	if err := m.repo.UpsertBalances(ctx, snapshots); err != nil {
		m.logger.Error("balance snapshot write failed", "account_id", accountID, "error", err)
		return err
	}
	return nil
}

// ReplayBalances computes daily closing balances from cash entries ordered
// by ascending date. Pure function. Each currency replays independently:
// the start balance seeds only the account's own currency, and entries in
// another currency run from zero.
func ReplayBalances(account *domain.Account, entries []domain.Entry) []domain.Balance {
	running := make(map[string]decimal.Decimal)
	type snapKey struct {
		date     string
		currency string
	}
	snaps := make(map[snapKey]domain.Balance)
	order := make([]snapKey, 0, len(entries))

	for _, entry := range entries {
		currency := entry.Currency
		if currency == "" {
			currency = account.Currency
		}
		bal, seeded := running[currency]
		if !seeded && currency == account.Currency {
			bal = account.StartBalance
		}
		// Negative = inflow, so the balance grows by the negated amount.
		bal = bal.Sub(entry.Amount)
		running[currency] = bal

		key := snapKey{date: entry.Date.Format("2006-01-02"), currency: currency}
		if _, seen := snaps[key]; !seen {
			order = append(order, key)
		}
		snaps[key] = domain.Balance{
			AccountID: account.ID,
			Date:      entry.Date,
			Amount:    bal,
			Currency:  currency,
		}
	}

	balances := make([]domain.Balance, 0, len(snaps))
	for _, key := range order {
		balances = append(balances, snaps[key])
	}
	return balances
}
