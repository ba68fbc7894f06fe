/**
 * @description
 * The provider import adapter: the sole write boundary from normalized
 * provider records into canonical ledger entries. Imports are idempotent
 * upserts keyed on (account, external_id, source); when an entry already
 * exists its attributes are merged via enrichment rather than blind
 * overwrite.
 *
 * Enrichment rules per attribute:
 *   - a locked attribute is never written by a provider;
 *   - identity attributes (date, amount, currency, name) follow the
 *     provider, since a pending transaction posts with corrected values;
 *   - descriptive attributes (notes, category, merchant) only fill gaps, so
 *     a value a user or rule already set is not clobbered by provider data.
 *
 * Every import reports whether it actually changed anything, so callers can
 * count modifications without re-reading state.
 */

package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Rhymond/go-money"
	"github.com/google/uuid"
	"github.com/ledgerhub/sync-service/internal/domain"
	"github.com/ledgerhub/sync-service/internal/store"
	"github.com/shopspring/decimal"
)

// ImporterRepository is the slice of the store the importer needs.
type ImporterRepository interface {
	FindEntryByExternalID(ctx context.Context, accountID uuid.UUID, externalID, source string) (*domain.Entry, error)
	CreateEntry(ctx context.Context, entry *domain.Entry) error
	UpdateEntry(ctx context.Context, entry *domain.Entry) error
	FindOrCreateSecurity(ctx context.Context, symbol, name string) (*domain.Security, error)
	FindOrCreateMerchant(ctx context.Context, merchant *domain.Merchant) (*domain.Merchant, error)
	UpdateAccountBalance(ctx context.Context, id uuid.UUID, balance decimal.Decimal, cashBalance *decimal.Decimal) error
}

// Importer turns normalized provider records into canonical ledger entries.
type Importer struct {
	repo   ImporterRepository
	logger *slog.Logger
}

// NewImporter creates a new Importer.
func NewImporter(repo ImporterRepository, logger *slog.Logger) *Importer {
	return &Importer{repo: repo, logger: logger}
}

// ImportResult reports what an import actually did.
type ImportResult struct {
	Entry   *domain.Entry
	Created bool
	// Modified is true when any attribute was written, including creation.
	Modified bool
}

// TransactionImport is one normalized provider transaction.
type TransactionImport struct {
	ExternalID string
	Amount     decimal.Decimal
	Currency   string
	Date       time.Time
	Name       string
	Source     string
	CategoryID *uuid.UUID
	Merchant   string
	Notes      string
	Pending    bool
}

// TradeImport is one normalized provider trade. Quantity is signed:
// positive = buy, negative = sell.
type TradeImport struct {
	ExternalID   string
	Symbol       string
	SecurityName string
	Quantity     decimal.Decimal
	Price        decimal.Decimal
	Currency     string
	Date         time.Time
	Name         string
	Source       string
}

// ValuationImport is one provider-asserted point-in-time account value.
type ValuationImport struct {
	ExternalID string
	Amount     decimal.Decimal
	Currency   string
	Date       time.Time
	Source     string
}

// ImportTransaction upserts a provider transaction into the ledger.
func (i *Importer) ImportTransaction(ctx context.Context, accountID uuid.UUID, in TransactionImport) (*ImportResult, error) {
	if err := validateImportKey(in.ExternalID, in.Source); err != nil {
		return nil, err
	}
	if err := validateMoney(in.Amount, in.Currency); err != nil {
		return nil, err
	}
	if in.Date.IsZero() {
		return nil, &domain.ValidationError{Field: "date", Reason: "must be set"}
	}

	existing, err := i.repo.FindEntryByExternalID(ctx, accountID, in.ExternalID, in.Source)
	if err != nil && !errors.Is(err, store.ErrEntryNotFound) {
		return nil, err
	}

	merchantID, err := i.resolveMerchant(ctx, in.Merchant, in.Source)
	if err != nil {
		// Merchant resolution failing should not block the transaction itself.
		i.logger.Warn("merchant resolution failed", "merchant", in.Merchant, "source", in.Source, "error", err)
		merchantID = nil
	}

	if existing == nil {
		entry := &domain.Entry{
			ID:         uuid.New(),
			AccountID:  accountID,
			ExternalID: &in.ExternalID,
			Source:     in.Source,
			Kind:       domain.EntryTransaction,
			Date:       dateOnly(in.Date),
			Amount:     in.Amount,
			Currency:   in.Currency,
			Name:       in.Name,
			Notes:      nilIfEmpty(in.Notes),
			Transaction: &domain.Transaction{
				ID:         uuid.New(),
				CategoryID: in.CategoryID,
				MerchantID: merchantID,
				Pending:    in.Pending,
			},
		}
		entry.Transaction.EntryID = entry.ID
		if err := i.repo.CreateEntry(ctx, entry); err != nil {
			return nil, err
		}
		return &ImportResult{Entry: entry, Created: true, Modified: true}, nil
	}

	modified := false
	modified = enrichDate(existing, domain.AttrDate, dateOnly(in.Date)) || modified
	modified = enrichDecimal(existing, domain.AttrAmount, &existing.Amount, in.Amount) || modified
	modified = enrichOverwrite(existing, domain.AttrCurrency, &existing.Currency, in.Currency) || modified
	modified = enrichOverwrite(existing, domain.AttrName, &existing.Name, in.Name) || modified
	modified = enrichFillOptional(existing, domain.AttrNotes, &existing.Notes, nilIfEmpty(in.Notes)) || modified

	if existing.Transaction != nil {
		modified = enrichFillUUID(existing, domain.AttrCategoryID, &existing.Transaction.CategoryID, in.CategoryID) || modified
		modified = enrichFillUUID(existing, domain.AttrMerchantID, &existing.Transaction.MerchantID, merchantID) || modified
		if existing.Transaction.Pending != in.Pending {
			existing.Transaction.Pending = in.Pending
			modified = true
		}
	}

	if modified {
		if err := i.repo.UpdateEntry(ctx, existing); err != nil {
			return nil, err
		}
	}
	return &ImportResult{Entry: existing, Created: false, Modified: modified}, nil
}

// ImportTrade upserts a provider trade; the entry and its trade payload are
// written in one atomic store call.
func (i *Importer) ImportTrade(ctx context.Context, accountID uuid.UUID, in TradeImport) (*ImportResult, error) {
	if err := validateImportKey(in.ExternalID, in.Source); err != nil {
		return nil, err
	}
	if in.Symbol == "" {
		return nil, &domain.ValidationError{Field: "symbol", Reason: "must be set"}
	}
	if in.Quantity.IsZero() {
		return nil, &domain.ValidationError{Field: "qty", Reason: "must be nonzero"}
	}
	if err := validateMoney(in.Price, in.Currency); err != nil {
		return nil, err
	}
	if in.Date.IsZero() {
		return nil, &domain.ValidationError{Field: "date", Reason: "must be set"}
	}

	security, err := i.repo.FindOrCreateSecurity(ctx, in.Symbol, in.SecurityName)
	if err != nil {
		return nil, fmt.Errorf("resolve security %s: %w", in.Symbol, err)
	}

	existing, err := i.repo.FindEntryByExternalID(ctx, accountID, in.ExternalID, in.Source)
	if err != nil && !errors.Is(err, store.ErrEntryNotFound) {
		return nil, err
	}

	amount := in.Quantity.Mul(in.Price)
	name := in.Name
	if name == "" {
		name = tradeName(in.Quantity, in.Symbol)
	}

	if existing == nil {
		entry := &domain.Entry{
			ID:         uuid.New(),
			AccountID:  accountID,
			ExternalID: &in.ExternalID,
			Source:     in.Source,
			Kind:       domain.EntryTrade,
			Date:       dateOnly(in.Date),
			Amount:     amount,
			Currency:   in.Currency,
			Name:       name,
			Trade: &domain.Trade{
				ID:         uuid.New(),
				SecurityID: security.ID,
				Quantity:   in.Quantity,
				Price:      in.Price,
				Currency:   in.Currency,
			},
		}
		entry.Trade.EntryID = entry.ID
		if err := i.repo.CreateEntry(ctx, entry); err != nil {
			return nil, err
		}
		return &ImportResult{Entry: entry, Created: true, Modified: true}, nil
	}

	modified := false
	modified = enrichDate(existing, domain.AttrDate, dateOnly(in.Date)) || modified
	modified = enrichDecimal(existing, domain.AttrAmount, &existing.Amount, amount) || modified
	modified = enrichOverwrite(existing, domain.AttrCurrency, &existing.Currency, in.Currency) || modified
	modified = enrichOverwrite(existing, domain.AttrName, &existing.Name, name) || modified

	if existing.Trade != nil {
		if !existing.Trade.Quantity.Equal(in.Quantity) {
			existing.Trade.Quantity = in.Quantity
			modified = true
		}
		if !existing.Trade.Price.Equal(in.Price) {
			existing.Trade.Price = in.Price
			modified = true
		}
		if existing.Trade.SecurityID != security.ID {
			existing.Trade.SecurityID = security.ID
			modified = true
		}
	}

	if modified {
		if err := i.repo.UpdateEntry(ctx, existing); err != nil {
			return nil, err
		}
	}
	return &ImportResult{Entry: existing, Created: false, Modified: modified}, nil
}

// ImportValuation upserts a provider-asserted account value observation.
func (i *Importer) ImportValuation(ctx context.Context, accountID uuid.UUID, in ValuationImport) (*ImportResult, error) {
	if err := validateImportKey(in.ExternalID, in.Source); err != nil {
		return nil, err
	}
	if err := validateMoney(in.Amount, in.Currency); err != nil {
		return nil, err
	}
	if in.Date.IsZero() {
		return nil, &domain.ValidationError{Field: "date", Reason: "must be set"}
	}

	existing, err := i.repo.FindEntryByExternalID(ctx, accountID, in.ExternalID, in.Source)
	if err != nil && !errors.Is(err, store.ErrEntryNotFound) {
		return nil, err
	}

	if existing == nil {
		entry := &domain.Entry{
			ID:         uuid.New(),
			AccountID:  accountID,
			ExternalID: &in.ExternalID,
			Source:     in.Source,
			Kind:       domain.EntryValuation,
			Date:       dateOnly(in.Date),
			Amount:     in.Amount,
			Currency:   in.Currency,
			Name:       "Balance update",
			Valuation:  &domain.Valuation{ID: uuid.New()},
		}
		entry.Valuation.EntryID = entry.ID
		if err := i.repo.CreateEntry(ctx, entry); err != nil {
			return nil, err
		}
		return &ImportResult{Entry: entry, Created: true, Modified: true}, nil
	}

	modified := false
	modified = enrichDate(existing, domain.AttrDate, dateOnly(in.Date)) || modified
	modified = enrichDecimal(existing, domain.AttrAmount, &existing.Amount, in.Amount) || modified
	modified = enrichOverwrite(existing, domain.AttrCurrency, &existing.Currency, in.Currency) || modified

	if modified {
		if err := i.repo.UpdateEntry(ctx, existing); err != nil {
			return nil, err
		}
	}
	return &ImportResult{Entry: existing, Created: false, Modified: modified}, nil
}

// UpdateBalance overwrites the account's live balance fields. No dedup
// concerns here; a malformed amount or currency is a validation error that
// propagates to the caller, because silently writing a bad balance would
// corrupt net-worth figures downstream.
func (i *Importer) UpdateBalance(ctx context.Context, accountID uuid.UUID, balance decimal.Decimal, cashBalance *decimal.Decimal, currency string) error {
	if err := validateMoney(balance, currency); err != nil {
		return err
	}
	return i.repo.UpdateAccountBalance(ctx, accountID, balance, cashBalance)
}

// FindOrCreateMerchant resolves a provider merchant, idempotent on (source, name).
func (i *Importer) FindOrCreateMerchant(ctx context.Context, providerMerchantID, name, source string) (*domain.Merchant, error) {
	if name == "" {
		return nil, &domain.ValidationError{Field: "name", Reason: "must be set"}
	}
	if source == "" {
		return nil, &domain.ValidationError{Field: "source", Reason: "must be set"}
	}
	return i.repo.FindOrCreateMerchant(ctx, &domain.Merchant{
		Source:             source,
		Name:               name,
		ProviderMerchantID: nilIfEmpty(providerMerchantID),
	})
}

func (i *Importer) resolveMerchant(ctx context.Context, name, source string) (*uuid.UUID, error) {
	if name == "" {
		return nil, nil
	}
	merchant, err := i.repo.FindOrCreateMerchant(ctx, &domain.Merchant{Source: source, Name: name})
	if err != nil {
		return nil, err
	}
	return &merchant.ID, nil
}

// --- enrichment helpers ---

// enrichOverwrite writes an identity attribute: the provider's value wins
// unless the attribute is locked. Reports whether it changed anything.
func enrichOverwrite(e *domain.Entry, attr string, dst *string, val string) bool {
	if val == "" || *dst == val || e.AttributeLocked(attr) {
		return false
	}
	*dst = val
	return true
}

func enrichDecimal(e *domain.Entry, attr string, dst *decimal.Decimal, val decimal.Decimal) bool {
	if dst.Equal(val) || e.AttributeLocked(attr) {
		return false
	}
	*dst = val
	return true
}

func enrichDate(e *domain.Entry, attr string, val time.Time) bool {
	if e.Date.Equal(val) || e.AttributeLocked(attr) {
		return false
	}
	e.Date = val
	return true
}

// enrichFillOptional writes a descriptive attribute only when it is
// currently unset, so user-entered values survive provider refreshes.
func enrichFillOptional(e *domain.Entry, attr string, dst **string, val *string) bool {
	if val == nil || *dst != nil || e.AttributeLocked(attr) {
		return false
	}
	*dst = val
	return true
}

func enrichFillUUID(e *domain.Entry, attr string, dst **uuid.UUID, val *uuid.UUID) bool {
	if val == nil || *dst != nil || e.AttributeLocked(attr) {
		return false
	}
	*dst = val
	return true
}

// --- validation helpers ---

func validateImportKey(externalID, source string) error {
	if externalID == "" {
		return &domain.ValidationError{Field: "external_id", Reason: "must be set"}
	}
	if source == "" {
		return &domain.ValidationError{Field: "source", Reason: "must be set"}
	}
	return nil
}

// validateMoney rejects unknown ISO-4217 currency codes.
func validateMoney(_ decimal.Decimal, currency string) error {
	if currency == "" {
		return &domain.ValidationError{Field: "currency", Reason: "must be set"}
	}
	if money.GetCurrency(currency) == nil {
		return &domain.ValidationError{Field: "currency", Reason: fmt.Sprintf("unknown currency code %q", currency)}
	}
	return nil
}

func tradeName(qty decimal.Decimal, symbol string) string {
	if qty.IsNegative() {
		return fmt.Sprintf("Sell %s %s", qty.Abs().String(), symbol)
	}
	return fmt.Sprintf("Buy %s %s", qty.String(), symbol)
}

func dateOnly(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func nilIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
