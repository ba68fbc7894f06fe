/**
 * @description
 * Forward holdings materializer. Recomputes the full holdings table for an
 * account by replaying its trade history in ascending date order, per
 * security: running quantity accumulates signed trade quantities, and every
 * day with at least one trade emits a snapshot at the day's closing
 * quantity, valued at that day's last reported trade price.
 *
 * A position that closes emits a qty = 0 snapshot rather than no row, so a
 * stale nonzero snapshot from an earlier sync is always invalidated.
 *
 * The replay is deliberately a full recomputation on every sync; it is
 * simple, correct, and safe to re-run because persistence is
 * upsert-on-conflict.
 */

package app

import (
	"context"
	"log/slog"

	"github.com/google/uuid"
	"github.com/ledgerhub/sync-service/internal/domain"
	"github.com/shopspring/decimal"
)

// HoldingsRepository is the slice of the store the holdings materializer needs.
type HoldingsRepository interface {
	ListTradesByAccount(ctx context.Context, accountID uuid.UUID) ([]domain.Entry, error)
	UpsertHoldings(ctx context.Context, holdings []domain.Holding) error
}

// HoldingsMaterializer derives dated security-holding snapshots from the
// ordered trade history of an account.
type HoldingsMaterializer struct {
	repo   HoldingsRepository
	logger *slog.Logger
}

// NewHoldingsMaterializer creates a new HoldingsMaterializer.
func NewHoldingsMaterializer(repo HoldingsRepository, logger *slog.Logger) *HoldingsMaterializer {
	return &HoldingsMaterializer{repo: repo, logger: logger}
}

// MaterializeHoldings recomputes and persists the holdings table for one
// account. Errors abort only this account's holdings pass; callers keep
// processing other accounts.
func (m *HoldingsMaterializer) MaterializeHoldings(ctx context.Context, accountID uuid.UUID) error {
	trades, err := m.repo.ListTradesByAccount(ctx, accountID)
	if err != nil {
		m.logger.Error("holdings replay failed to load trades", "account_id", accountID, "error", err)
		return err
	}
	if len(trades) == 0 {
		return nil
	}

	snapshots := ReplayHoldings(accountID, trades)
	if err := m.repo.UpsertHoldings(ctx, snapshots); err != nil {
		m.logger.Error("holdings snapshot write failed", "account_id", accountID, "error", err)
		return err
	}
	return nil
}

// ReplayHoldings computes holding snapshots from trade entries, which must
// be ordered by ascending date. Pure function, exported for the orchestrator
// tests and any backfill tooling.
func ReplayHoldings(accountID uuid.UUID, trades []domain.Entry) []domain.Holding {
	type position struct {
		qty      decimal.Decimal
		price    decimal.Decimal
		currency string
	}

	positions := make(map[uuid.UUID]*position)
	// snapshot key: security + date + currency; later trades on the same day
	// overwrite earlier ones so only the closing quantity survives.
	type snapKey struct {
		security uuid.UUID
		date     string
		currency string
	}
	snaps := make(map[snapKey]domain.Holding)
	order := make([]snapKey, 0, len(trades))

	for _, entry := range trades {
		trade := entry.Trade
		if trade == nil {
			continue
		}
		pos, ok := positions[trade.SecurityID]
		if !ok {
			pos = &position{qty: decimal.Zero, currency: trade.Currency}
			positions[trade.SecurityID] = pos
		}
		pos.qty = pos.qty.Add(trade.Quantity)
		pos.price = trade.Price
		if trade.Currency != "" {
			pos.currency = trade.Currency
		}

		key := snapKey{security: trade.SecurityID, date: entry.Date.Format("2006-01-02"), currency: pos.currency}
		if _, seen := snaps[key]; !seen {
			order = append(order, key)
		}
		snaps[key] = domain.Holding{
			AccountID:  accountID,
			SecurityID: trade.SecurityID,
			Date:       entry.Date,
			Quantity:   pos.qty,
			Price:      pos.price,
			Amount:     pos.qty.Mul(pos.price),
			Currency:   pos.currency,
		}
	}

	holdings := make([]domain.Holding, 0, len(snaps))
	for _, key := range order {
		holdings = append(holdings, snaps[key])
	}
	return holdings
}
