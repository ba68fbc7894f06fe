/**
 * @description
 * This package defines the provider client boundary: the interface every
 * concrete provider integration implements, the typed provider kind, and a
 * registry mapping kinds to client instances. The sync pipeline only ever
 * talks to providers through this boundary; per-provider HTTP details stay
 * behind it.
 */
package provider

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ledgerhub/sync-service/internal/domain"
	"github.com/shopspring/decimal"
)

// Kind is a typed provider identifier. Dispatch always goes through the
// registry keyed on Kind, never a string switch at call sites.
type Kind string

const (
	KindMercury   Kind = "mercury"
	KindWise      Kind = "wise"
	KindSnaptrade Kind = "snaptrade"
	KindKraken    Kind = "kraken"
)

// ParseKind validates a stored provider kind string.
func ParseKind(s string) (Kind, error) {
	switch Kind(s) {
	case KindMercury, KindWise, KindSnaptrade, KindKraken:
		return Kind(s), nil
	}
	return "", fmt.Errorf("unknown provider kind %q", s)
}

// AccountRecord is one provider-side account descriptor.
type AccountRecord struct {
	ExternalID    string          `json:"external_id"`
	Name          string          `json:"name"`
	InstitutionID string          `json:"institution_id"`
	AccountType   string          `json:"account_type"`
	Currency      string          `json:"currency"`
	Balance       decimal.Decimal `json:"balance"`
}

// BalanceRecord is the provider's current view of an account's balance.
type BalanceRecord struct {
	Balance     decimal.Decimal  `json:"balance"`
	CashBalance *decimal.Decimal `json:"cash_balance,omitempty"`
	Currency    string           `json:"currency"`
}

// Client is the contract every provider integration implements. Credentials
// are the connection's opaque blob; the client interprets them however the
// provider requires.
type Client interface {
	Kind() Kind
	GetAccounts(ctx context.Context, credentials []byte) ([]AccountRecord, error)
	GetTransactions(ctx context.Context, credentials []byte, accountID string, startDate time.Time, endDate *time.Time) ([]domain.Activity, error)
	GetBalance(ctx context.Context, credentials []byte, accountID string) (*BalanceRecord, error)
}

// Registry maps provider kinds to client instances.
type Registry struct {
	mu      sync.RWMutex
	clients map[Kind]Client
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{clients: make(map[Kind]Client)}
}

// Register adds a client for its kind, replacing any prior registration.
func (r *Registry) Register(c Client) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.clients[c.Kind()] = c
}

// Get returns the client for a kind.
func (r *Registry) Get(kind Kind) (Client, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.clients[kind]
	if !ok {
		return nil, fmt.Errorf("no client registered for provider kind %q", kind)
	}
	return c, nil
}
