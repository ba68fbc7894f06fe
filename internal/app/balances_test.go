package app

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/ledgerhub/sync-service/internal/domain"
	"github.com/shopspring/decimal"
)

func cashEntry(date time.Time, amount int64, currency string) domain.Entry {
	return domain.Entry{
		ID:       uuid.New(),
		Kind:     domain.EntryTransaction,
		Date:     date,
		Amount:   decimal.NewFromInt(amount),
		Currency: currency,
	}
}

func TestReplayBalancesRunningFromStartBalance(t *testing.T) {
	account := &domain.Account{
		ID:           uuid.New(),
		Currency:     "USD",
		StartBalance: decimal.NewFromInt(1000),
	}
	entries := []domain.Entry{
		cashEntry(day("2026-01-01"), 200, "USD"),  // outflow
		cashEntry(day("2026-01-02"), -500, "USD"), // inflow
		cashEntry(day("2026-01-05"), 100, "USD"),  // outflow
	}

	balances := ReplayBalances(account, entries)
	if len(balances) != 3 {
		t.Fatalf("expected 3 daily snapshots, got %d", len(balances))
	}

	want := []int64{800, 1300, 1200}
	for i, b := range balances {
		if !b.Amount.Equal(decimal.NewFromInt(want[i])) {
			t.Fatalf("snapshot %d: expected %d, got %s", i, want[i], b.Amount)
		}
	}
}

func TestReplayBalancesSameDayCollapsesToClosing(t *testing.T) {
	account := &domain.Account{ID: uuid.New(), Currency: "USD", StartBalance: decimal.NewFromInt(100)}
	entries := []domain.Entry{
		cashEntry(day("2026-01-01"), 30, "USD"),
		cashEntry(day("2026-01-01"), 20, "USD"),
	}

	balances := ReplayBalances(account, entries)
	if len(balances) != 1 {
		t.Fatalf("expected 1 snapshot for same-day entries, got %d", len(balances))
	}
	if !balances[0].Amount.Equal(decimal.NewFromInt(50)) {
		t.Fatalf("expected closing balance 50, got %s", balances[0].Amount)
	}
}

func TestReplayBalancesKeepsCurrenciesIndependent(t *testing.T) {
	account := &domain.Account{ID: uuid.New(), Currency: "USD", StartBalance: decimal.NewFromInt(1000)}
	entries := []domain.Entry{
		cashEntry(day("2026-01-01"), -200, "USD"), // inflow
		cashEntry(day("2026-01-01"), -50, "EUR"),  // inflow, separate replay
		cashEntry(day("2026-01-02"), 100, "USD"),  // outflow
	}

	balances := ReplayBalances(account, entries)
	if len(balances) != 3 {
		t.Fatalf("expected 3 snapshots, got %d", len(balances))
	}

	want := map[string]int64{
		"2026-01-01|USD": 1200,
		"2026-01-01|EUR": 50,
		"2026-01-02|USD": 1100,
	}
	for _, b := range balances {
		key := b.Date.Format("2006-01-02") + "|" + b.Currency
		expected, ok := want[key]
		if !ok {
			t.Fatalf("unexpected snapshot %s", key)
		}
		if !b.Amount.Equal(decimal.NewFromInt(expected)) {
			t.Fatalf("snapshot %s: expected %d, got %s", key, expected, b.Amount)
		}
	}
}

func TestReplayBalancesFallsBackToAccountCurrency(t *testing.T) {
	account := &domain.Account{ID: uuid.New(), Currency: "EUR", StartBalance: decimal.Zero}
	entries := []domain.Entry{cashEntry(day("2026-01-01"), 10, "")}

	balances := ReplayBalances(account, entries)
	if len(balances) != 1 || balances[0].Currency != "EUR" {
		t.Fatalf("expected account currency fallback, got %+v", balances)
	}
}

type balancesRepoStub struct {
	account  *domain.Account
	entries  []domain.Entry
	upserted []domain.Balance
}

func (s *balancesRepoStub) GetAccountByID(ctx context.Context, id uuid.UUID) (*domain.Account, error) {
	return s.account, nil
}

func (s *balancesRepoStub) ListCashEntriesByAccount(ctx context.Context, accountID uuid.UUID) ([]domain.Entry, error) {
	return s.entries, nil
}

func (s *balancesRepoStub) UpsertBalances(ctx context.Context, balances []domain.Balance) error {
	s.upserted = balances
	return nil
}

func TestMaterializeBalances(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	account := &domain.Account{ID: uuid.New(), Currency: "USD", StartBalance: decimal.NewFromInt(500)}

	repo := &balancesRepoStub{
		account: account,
		entries: []domain.Entry{cashEntry(day("2026-01-01"), 100, "USD")},
	}
	m := NewBalanceMaterializer(repo, logger)
	if err := m.MaterializeBalances(context.Background(), account.ID); err != nil {
		t.Fatalf("materialize failed: %v", err)
	}
	if len(repo.upserted) != 1 || !repo.upserted[0].Amount.Equal(decimal.NewFromInt(400)) {
		t.Fatalf("expected one snapshot at 400, got %+v", repo.upserted)
	}

	empty := &balancesRepoStub{account: account}
	if err := NewBalanceMaterializer(empty, logger).MaterializeBalances(context.Background(), account.ID); err != nil {
		t.Fatalf("materialize failed: %v", err)
	}
	if empty.upserted != nil {
		t.Fatal("expected no upsert for an account with no entries")
	}
}
