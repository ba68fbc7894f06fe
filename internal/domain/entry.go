/**
 * @description
 * This file defines the canonical ledger entry model and its payloads. An
 * Entry is one dated ledger event carrying exactly one of a Transaction,
 * Trade or Valuation payload. Provider-sourced entries are uniquely
 * identified by (account, external_id, source).
 *
 * @notes
 * - Sign convention: negative amount = inflow (income), positive = outflow
 *   (expense).
 * - Individual attributes can be locked once a user or rule overrides them;
 *   a locked attribute is never overwritten by provider enrichment.
 * - Amounts and quantities use shopspring/decimal to avoid float drift in
 *   financial arithmetic.
 */

package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// EntryKind discriminates the payload attached to an Entry.
type EntryKind string

const (
	EntryTransaction EntryKind = "transaction"
	EntryTrade       EntryKind = "trade"
	EntryValuation   EntryKind = "valuation"
)

// Lockable attribute names, as stored in Entry.LockedAttributes.
const (
	AttrName       = "name"
	AttrDate       = "date"
	AttrAmount     = "amount"
	AttrCurrency   = "currency"
	AttrNotes      = "notes"
	AttrCategoryID = "category_id"
	AttrMerchantID = "merchant_id"
)

// Entry is one event in the canonical ledger.
type Entry struct {
	ID        uuid.UUID `json:"id"`
	AccountID uuid.UUID `json:"account_id"`
	// ExternalID is the provider-native identifier. Nil for manual entries.
	ExternalID *string `json:"external_id,omitempty"`
	// Source names where this entry came from: a provider kind, "manual",
	// or an import batch identifier.
	Source   string          `json:"source"`
	Kind     EntryKind       `json:"kind"`
	Date     time.Time       `json:"date"`
	Amount   decimal.Decimal `json:"amount"`
	Currency string          `json:"currency"`
	Name     string          `json:"name"`
	Notes    *string         `json:"notes,omitempty"`
	// LockedAttributes lists attribute names frozen by a user or rule
	// override. Enrichment must leave them untouched.
	LockedAttributes []string  `json:"locked_attributes,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`

	// Exactly one of the following is non-nil, matching Kind.
	Transaction *Transaction `json:"transaction,omitempty"`
	Trade       *Trade       `json:"trade,omitempty"`
	Valuation   *Valuation   `json:"valuation,omitempty"`
}

// AttributeLocked reports whether the named attribute is frozen against
// provider enrichment.
func (e *Entry) AttributeLocked(attr string) bool {
	for _, locked := range e.LockedAttributes {
		if locked == attr {
			return true
		}
	}
	return false
}

// LockAttribute freezes the named attribute. Idempotent.
func (e *Entry) LockAttribute(attr string) {
	if e.AttributeLocked(attr) {
		return
	}
	e.LockedAttributes = append(e.LockedAttributes, attr)
}

// Transaction is the payload for a cash movement entry.
type Transaction struct {
	ID         uuid.UUID  `json:"id"`
	EntryID    uuid.UUID  `json:"entry_id"`
	CategoryID *uuid.UUID `json:"category_id,omitempty"`
	MerchantID *uuid.UUID `json:"merchant_id,omitempty"`
	Pending    bool       `json:"pending"`
}

// Trade is the payload for a security buy or sell. Quantity is signed:
// positive = buy, negative = sell.
type Trade struct {
	ID         uuid.UUID       `json:"id"`
	EntryID    uuid.UUID       `json:"entry_id"`
	SecurityID uuid.UUID       `json:"security_id"`
	Quantity   decimal.Decimal `json:"qty"`
	Price      decimal.Decimal `json:"price"`
	Currency   string          `json:"currency"`
}

// Valuation is the payload for a point-in-time account value assertion,
// used by providers that report balances without transaction detail.
type Valuation struct {
	ID      uuid.UUID `json:"id"`
	EntryID uuid.UUID `json:"entry_id"`
}

// Security identifies a tradable instrument.
type Security struct {
	ID        uuid.UUID `json:"id"`
	Symbol    string    `json:"symbol"`
	Name      string    `json:"name"`
	Exchange  string    `json:"exchange,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Merchant is a normalized counterparty, deduplicated on (source, name).
type Merchant struct {
	ID                 uuid.UUID `json:"id"`
	Source             string    `json:"source"`
	Name               string    `json:"name"`
	ProviderMerchantID *string   `json:"provider_merchant_id,omitempty"`
	WebsiteURL         *string   `json:"website_url,omitempty"`
	LogoURL            *string   `json:"logo_url,omitempty"`
	CreatedAt          time.Time `json:"created_at"`
}
