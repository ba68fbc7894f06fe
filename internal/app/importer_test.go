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
	"github.com/ledgerhub/sync-service/internal/store"
	"github.com/shopspring/decimal"
)

type importerRepoStub struct {
	entries   map[string]*domain.Entry
	merchants map[string]*domain.Merchant

	createCalled            bool
	updateCalled            bool
	findOrCreateMerchantErr error
}

func newImporterRepoStub() *importerRepoStub {
	return &importerRepoStub{
		entries:   make(map[string]*domain.Entry),
		merchants: make(map[string]*domain.Merchant),
	}
}

func (s *importerRepoStub) key(accountID uuid.UUID, externalID, source string) string {
	return accountID.String() + "|" + externalID + "|" + source
}

func (s *importerRepoStub) FindEntryByExternalID(ctx context.Context, accountID uuid.UUID, externalID, source string) (*domain.Entry, error) {
	if e, ok := s.entries[s.key(accountID, externalID, source)]; ok {
		return e, nil
	}
	return nil, store.ErrEntryNotFound
}

func (s *importerRepoStub) CreateEntry(ctx context.Context, entry *domain.Entry) error {
	s.createCalled = true
	s.entries[s.key(entry.AccountID, *entry.ExternalID, entry.Source)] = entry
	return nil
}

func (s *importerRepoStub) UpdateEntry(ctx context.Context, entry *domain.Entry) error {
	s.updateCalled = true
	return nil
}

func (s *importerRepoStub) FindOrCreateSecurity(ctx context.Context, symbol, name string) (*domain.Security, error) {
	return &domain.Security{ID: uuid.NewSHA1(uuid.NameSpaceOID, []byte(symbol)), Symbol: symbol, Name: name}, nil
}

func (s *importerRepoStub) FindOrCreateMerchant(ctx context.Context, merchant *domain.Merchant) (*domain.Merchant, error) {
	if s.findOrCreateMerchantErr != nil {
		return nil, s.findOrCreateMerchantErr
	}
	k := merchant.Source + "|" + merchant.Name
	if m, ok := s.merchants[k]; ok {
		return m, nil
	}
	merchant.ID = uuid.New()
	s.merchants[k] = merchant
	return merchant, nil
}

func (s *importerRepoStub) UpdateAccountBalance(ctx context.Context, id uuid.UUID, balance decimal.Decimal, cashBalance *decimal.Decimal) error {
	return nil
}

func testImporter(repo ImporterRepository) *Importer {
	return NewImporter(repo, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestImportTransactionCreatesThenIdempotent(t *testing.T) {
	repo := newImporterRepoStub()
	importer := testImporter(repo)
	accountID := uuid.New()

	in := TransactionImport{
		ExternalID: "txn-1",
		Amount:     decimal.NewFromFloat(42.50),
		Currency:   "USD",
		Date:       time.Date(2026, 3, 1, 14, 30, 0, 0, time.UTC),
		Name:       "Coffee",
		Source:     "mercury",
		Merchant:   "Blue Bottle",
	}

	first, err := importer.ImportTransaction(context.Background(), accountID, in)
	if err != nil {
		t.Fatalf("first import failed: %v", err)
	}
	if !first.Created || !first.Modified {
		t.Fatalf("expected created+modified on first import, got %+v", first)
	}
	if first.Entry.Date.Hour() != 0 {
		t.Fatalf("expected date truncated to midnight, got %s", first.Entry.Date)
	}
	if first.Entry.Transaction == nil || first.Entry.Transaction.MerchantID == nil {
		t.Fatal("expected merchant resolved on the transaction payload")
	}

	repo.updateCalled = false
	second, err := importer.ImportTransaction(context.Background(), accountID, in)
	if err != nil {
		t.Fatalf("second import failed: %v", err)
	}
	if second.Created || second.Modified {
		t.Fatalf("expected re-import to be a no-op, got %+v", second)
	}
	if repo.updateCalled {
		t.Fatal("no-op import must not write")
	}
}

func TestImportTransactionEnrichment(t *testing.T) {
	repo := newImporterRepoStub()
	importer := testImporter(repo)
	accountID := uuid.New()

	pending := TransactionImport{
		ExternalID: "txn-1",
		Amount:     decimal.NewFromInt(40),
		Currency:   "USD",
		Date:       time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
		Name:       "COFFEE SHOP (PENDING)",
		Source:     "mercury",
		Pending:    true,
	}
	if _, err := importer.ImportTransaction(context.Background(), accountID, pending); err != nil {
		t.Fatalf("pending import failed: %v", err)
	}

	// The user annotates the entry before the transaction posts.
	entry := repo.entries[repo.key(accountID, "txn-1", "mercury")]
	userNotes := "team offsite"
	entry.Notes = &userNotes

	posted := pending
	posted.Amount = decimal.NewFromFloat(42.50)
	posted.Name = "Coffee Shop"
	posted.Date = time.Date(2026, 3, 3, 0, 0, 0, 0, time.UTC)
	posted.Notes = "provider memo"
	posted.Pending = false

	result, err := importer.ImportTransaction(context.Background(), accountID, posted)
	if err != nil {
		t.Fatalf("posted import failed: %v", err)
	}
	if result.Created || !result.Modified {
		t.Fatalf("expected enrichment, got %+v", result)
	}
	if !entry.Amount.Equal(decimal.NewFromFloat(42.50)) {
		t.Fatalf("identity attribute should follow the provider, got amount %s", entry.Amount)
	}
	if entry.Name != "Coffee Shop" {
		t.Fatalf("identity attribute should follow the provider, got name %q", entry.Name)
	}
	if entry.Notes == nil || *entry.Notes != "team offsite" {
		t.Fatal("descriptive attribute must not clobber a user-set value")
	}
	if entry.Transaction.Pending {
		t.Fatal("expected pending flag cleared after posting")
	}
}

func TestImportTransactionRespectsLocks(t *testing.T) {
	repo := newImporterRepoStub()
	importer := testImporter(repo)
	accountID := uuid.New()

	in := TransactionImport{
		ExternalID: "txn-1",
		Amount:     decimal.NewFromInt(40),
		Currency:   "USD",
		Date:       time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
		Name:       "Original",
		Source:     "mercury",
	}
	if _, err := importer.ImportTransaction(context.Background(), accountID, in); err != nil {
		t.Fatalf("import failed: %v", err)
	}

	entry := repo.entries[repo.key(accountID, "txn-1", "mercury")]
	entry.Name = "User Renamed"
	entry.LockAttribute(domain.AttrName)
	entry.LockAttribute(domain.AttrAmount)

	updated := in
	updated.Name = "Provider Renamed"
	updated.Amount = decimal.NewFromInt(99)

	result, err := importer.ImportTransaction(context.Background(), accountID, updated)
	if err != nil {
		t.Fatalf("re-import failed: %v", err)
	}
	if result.Modified {
		t.Fatalf("locked attributes only; expected no modification, got %+v", result)
	}
	if entry.Name != "User Renamed" {
		t.Fatalf("locked name was overwritten to %q", entry.Name)
	}
	if !entry.Amount.Equal(decimal.NewFromInt(40)) {
		t.Fatalf("locked amount was overwritten to %s", entry.Amount)
	}
}

func TestImportTransactionValidation(t *testing.T) {
	importer := testImporter(newImporterRepoStub())
	accountID := uuid.New()

	tests := []struct {
		name string
		in   TransactionImport
	}{
		{
			name: "missing external id",
			in:   TransactionImport{Source: "mercury", Amount: decimal.NewFromInt(1), Currency: "USD", Date: time.Now()},
		},
		{
			name: "missing source",
			in:   TransactionImport{ExternalID: "x", Amount: decimal.NewFromInt(1), Currency: "USD", Date: time.Now()},
		},
		{
			name: "unknown currency",
			in:   TransactionImport{ExternalID: "x", Source: "mercury", Amount: decimal.NewFromInt(1), Currency: "NOPE", Date: time.Now()},
		},
		{
			name: "zero date",
			in:   TransactionImport{ExternalID: "x", Source: "mercury", Amount: decimal.NewFromInt(1), Currency: "USD"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := importer.ImportTransaction(context.Background(), accountID, tt.in)
			var vErr *domain.ValidationError
			if !errors.As(err, &vErr) {
				t.Fatalf("expected validation error, got %v", err)
			}
		})
	}
}

func TestImportTransactionMerchantFailureDoesNotBlock(t *testing.T) {
	repo := newImporterRepoStub()
	repo.findOrCreateMerchantErr = errors.New("merchant table unavailable")
	importer := testImporter(repo)

	result, err := importer.ImportTransaction(context.Background(), uuid.New(), TransactionImport{
		ExternalID: "txn-1",
		Amount:     decimal.NewFromInt(10),
		Currency:   "USD",
		Date:       time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
		Name:       "Coffee",
		Source:     "mercury",
		Merchant:   "Blue Bottle",
	})
	if err != nil {
		t.Fatalf("expected import to proceed without merchant, got %v", err)
	}
	if !result.Created {
		t.Fatal("expected entry created")
	}
	if result.Entry.Transaction.MerchantID != nil {
		t.Fatal("expected merchant left unset after resolution failure")
	}
}

func TestImportTradeComputesAmountAndName(t *testing.T) {
	repo := newImporterRepoStub()
	importer := testImporter(repo)
	accountID := uuid.New()

	result, err := importer.ImportTrade(context.Background(), accountID, TradeImport{
		ExternalID: "trade-1",
		Symbol:     "VTI",
		Quantity:   decimal.NewFromInt(-4),
		Price:      decimal.NewFromInt(250),
		Currency:   "USD",
		Date:       time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
		Source:     "snaptrade",
	})
	if err != nil {
		t.Fatalf("trade import failed: %v", err)
	}
	if !result.Entry.Amount.Equal(decimal.NewFromInt(-1000)) {
		t.Fatalf("expected amount qty*price = -1000, got %s", result.Entry.Amount)
	}
	if result.Entry.Name != "Sell 4 VTI" {
		t.Fatalf("expected generated sell name, got %q", result.Entry.Name)
	}
	if result.Entry.Trade == nil || result.Entry.Trade.SecurityID == uuid.Nil {
		t.Fatal("expected trade payload with resolved security")
	}
}

func TestImportTradeRejectsZeroQuantity(t *testing.T) {
	importer := testImporter(newImporterRepoStub())
	_, err := importer.ImportTrade(context.Background(), uuid.New(), TradeImport{
		ExternalID: "trade-1",
		Symbol:     "VTI",
		Quantity:   decimal.Zero,
		Price:      decimal.NewFromInt(250),
		Currency:   "USD",
		Date:       time.Now(),
		Source:     "snaptrade",
	})
	var vErr *domain.ValidationError
	if !errors.As(err, &vErr) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestImportValuationUpsert(t *testing.T) {
	repo := newImporterRepoStub()
	importer := testImporter(repo)
	accountID := uuid.New()

	in := ValuationImport{
		ExternalID: "val-2026-03-01",
		Amount:     decimal.NewFromInt(150000),
		Currency:   "USD",
		Date:       time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
		Source:     "kraken",
	}
	first, err := importer.ImportValuation(context.Background(), accountID, in)
	if err != nil {
		t.Fatalf("valuation import failed: %v", err)
	}
	if !first.Created || first.Entry.Valuation == nil {
		t.Fatalf("expected created valuation entry, got %+v", first)
	}

	in.Amount = decimal.NewFromInt(151000)
	second, err := importer.ImportValuation(context.Background(), accountID, in)
	if err != nil {
		t.Fatalf("valuation re-import failed: %v", err)
	}
	if second.Created || !second.Modified {
		t.Fatalf("expected corrected valuation to modify in place, got %+v", second)
	}
	if !second.Entry.Amount.Equal(decimal.NewFromInt(151000)) {
		t.Fatalf("expected corrected amount, got %s", second.Entry.Amount)
	}
}

func TestUpdateBalanceValidatesCurrency(t *testing.T) {
	importer := testImporter(newImporterRepoStub())
	err := importer.UpdateBalance(context.Background(), uuid.New(), decimal.NewFromInt(100), nil, "WAT")
	var vErr *domain.ValidationError
	if !errors.As(err, &vErr) {
		t.Fatalf("expected validation error for unknown currency, got %v", err)
	}
}
