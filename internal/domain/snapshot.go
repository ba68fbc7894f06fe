/**
 * @description
 * Derived snapshot models. Holdings and Balances are not user-editable;
 * they are recomputed wholesale by the materializers on every sync and
 * persisted with upsert-on-conflict so a partial retry never duplicates rows.
 */

package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Holding is a dated snapshot of (account, security) -> position.
// Uniqueness key is (account_id, security_id, date, currency).
type Holding struct {
	ID         uuid.UUID       `json:"id"`
	AccountID  uuid.UUID       `json:"account_id"`
	SecurityID uuid.UUID       `json:"security_id"`
	Date       time.Time       `json:"date"`
	Quantity   decimal.Decimal `json:"qty"`
	Price      decimal.Decimal `json:"price"`
	Amount     decimal.Decimal `json:"amount"`
	Currency   string          `json:"currency"`
}

// Balance is a dated snapshot of an account's cash balance.
// Uniqueness key is (account_id, date, currency).
type Balance struct {
	ID        uuid.UUID       `json:"id"`
	AccountID uuid.UUID       `json:"account_id"`
	Date      time.Time       `json:"date"`
	Amount    decimal.Decimal `json:"amount"`
	Currency  string          `json:"currency"`
}
