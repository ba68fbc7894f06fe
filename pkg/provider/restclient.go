/**
 * @description
 * A generic REST implementation of the provider Client interface, for
 * aggregator-style providers that expose normalized records over HTTP. It
 * encapsulates authenticated request construction, response parsing and the
 * mapping of HTTP failures onto the sync error taxonomy.
 *
 * @dependencies
 * - net/http, encoding/json: Standard Go libraries.
 * - internal/domain: Error taxonomy and the normalized Activity shape.
 */
package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/ledgerhub/sync-service/internal/domain"
)

// RESTClient talks to a normalized-record aggregator API.
type RESTClient struct {
	kind       Kind
	BaseURL    string
	APIKey     string
	HTTPClient *http.Client
}

// NewRESTClient creates a provider client for the given kind and base URL.
func NewRESTClient(kind Kind, baseURL, apiKey string) *RESTClient {
	return &RESTClient{
		kind:    kind,
		BaseURL: baseURL,
		APIKey:  apiKey,
		HTTPClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// Kind returns the provider kind this client serves.
func (c *RESTClient) Kind() Kind { return c.kind }

type accountsResponse struct {
	Data []AccountRecord `json:"data"`
}

// wireActivity shadows the date field with the raw string form so that
// providers reporting date-only, slashed or unix-second dates still decode.
type wireActivity struct {
	domain.Activity
	Date string `json:"date"`
}

type transactionsResponse struct {
	Data   []wireActivity `json:"data"`
	Cursor string         `json:"next_cursor,omitempty"`
}

type balanceResponse struct {
	Data BalanceRecord `json:"data"`
}

// GetAccounts lists the provider-side accounts reachable with the given credentials.
func (c *RESTClient) GetAccounts(ctx context.Context, credentials []byte) ([]AccountRecord, error) {
	var out accountsResponse
	if err := c.get(ctx, credentials, "/v1/accounts", nil, &out); err != nil {
		return nil, err
	}
	return out.Data, nil
}

// GetTransactions pages through the provider's activity for one account
// within the date window.
func (c *RESTClient) GetTransactions(ctx context.Context, credentials []byte, accountID string, startDate time.Time, endDate *time.Time) ([]domain.Activity, error) {
	params := url.Values{}
	params.Set("account_id", accountID)
	params.Set("start_date", startDate.Format("2006-01-02"))
	if endDate != nil {
		params.Set("end_date", endDate.Format("2006-01-02"))
	}

	var activities []domain.Activity
	cursor := ""
	for {
		if cursor != "" {
			params.Set("cursor", cursor)
		}
		var page transactionsResponse
		if err := c.get(ctx, credentials, "/v1/transactions", params, &page); err != nil {
			return nil, err
		}
		for _, w := range page.Data {
			date, err := ParseDate(w.Date)
			if err != nil {
				return nil, &domain.TransientError{
					ProviderKind: string(c.kind),
					Err:          fmt.Errorf("record %s: %w", w.ExternalID, err),
				}
			}
			activity := w.Activity
			activity.Date = date
			activities = append(activities, activity)
		}
		if page.Cursor == "" {
			return activities, nil
		}
		cursor = page.Cursor
	}
}

// GetBalance fetches the provider's current balance view for one account.
func (c *RESTClient) GetBalance(ctx context.Context, credentials []byte, accountID string) (*BalanceRecord, error) {
	params := url.Values{}
	params.Set("account_id", accountID)
	var out balanceResponse
	if err := c.get(ctx, credentials, "/v1/balance", params, &out); err != nil {
		return nil, err
	}
	return &out.Data, nil
}

func (c *RESTClient) get(ctx context.Context, credentials []byte, path string, params url.Values, out interface{}) error {
	endpoint := c.BaseURL + path
	if len(params) > 0 {
		endpoint += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Api-Key", c.APIKey)
	if len(credentials) > 0 {
		req.Header.Set("Authorization", "Bearer "+string(credentials))
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return &domain.TransientError{ProviderKind: string(c.kind), Err: err}
	}
	defer resp.Body.Close()

	if err := c.checkStatus(resp); err != nil {
		return err
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return &domain.TransientError{ProviderKind: string(c.kind), Err: err}
	}
	if err := json.Unmarshal(body, out); err != nil {
		return &domain.TransientError{
			ProviderKind: string(c.kind),
			Err:          fmt.Errorf("malformed response from %s: %w", path, err),
		}
	}
	return nil
}

// checkStatus maps provider HTTP failures onto the sync error taxonomy.
func (c *RESTClient) checkStatus(resp *http.Response) error {
	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return &domain.AuthenticationError{
			ProviderKind: string(c.kind),
			Err:          fmt.Errorf("status %d", resp.StatusCode),
		}
	case resp.StatusCode == http.StatusTooManyRequests:
		retryAfter := 30 * time.Second
		if v := resp.Header.Get("Retry-After"); v != "" {
			if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
				retryAfter = time.Duration(secs) * time.Second
			}
		}
		return &domain.RateLimitError{ProviderKind: string(c.kind), RetryAfter: retryAfter}
	case resp.StatusCode >= 500:
		return &domain.TransientError{
			ProviderKind: string(c.kind),
			Err:          fmt.Errorf("status %d", resp.StatusCode),
		}
	case resp.StatusCode >= 400:
		return &domain.TransientError{
			ProviderKind: string(c.kind),
			Err:          fmt.Errorf("unexpected status %d", resp.StatusCode),
		}
	}
	return nil
}
