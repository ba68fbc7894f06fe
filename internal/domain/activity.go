/**
 * @description
 * Activity is the normalized shape of one provider record as returned by a
 * provider client (or normalized from raw provider JSON by this service).
 * The merged activity list for a provider account is serialized as-is into
 * the account's raw payload column.
 */

package domain

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

// Activity is one normalized provider record: a transaction, a trade or a
// balance observation, depending on Type.
type Activity struct {
	// ExternalID is the provider-native unique id, when the provider has one.
	ExternalID string `json:"external_id,omitempty"`
	// InstitutionID identifies the upstream institution, used for
	// fingerprinting when no native id exists.
	InstitutionID string          `json:"institution_id,omitempty"`
	Type          string          `json:"type"`
	Date          time.Time       `json:"date"`
	Amount        decimal.Decimal `json:"amount"`
	Currency      string          `json:"currency,omitempty"`
	Description   string          `json:"description,omitempty"`
	Pending       bool            `json:"pending,omitempty"`
	Category      string          `json:"category,omitempty"`
	Merchant      string          `json:"merchant,omitempty"`

	// Trade fields, present when Type is a trade type.
	Symbol   string          `json:"symbol,omitempty"`
	Quantity decimal.Decimal `json:"qty,omitempty"`
	Price    decimal.Decimal `json:"price,omitempty"`

	// RawData preserves the untouched provider record for auditability.
	RawData json.RawMessage `json:"raw_data,omitempty"`
}

// Activity type values used across providers.
const (
	ActivityTransaction = "transaction"
	ActivityTrade       = "trade"
	ActivityValuation   = "valuation"
)
