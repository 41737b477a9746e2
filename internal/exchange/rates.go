// Package exchange fetches and caches currency conversion rates.
//
// Rates come from an exchangerate-api.com compatible endpoint, are cached
// with a TTL (default 30 minutes), and degrade to a static fallback table on
// any fetch failure. The provider is best-effort, not authoritative: a rate
// lookup never fails hard, so ledger mutations are never aborted by an
// upstream outage.
package exchange

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/shopspring/decimal"
)

// ErrRateUnavailable is returned by Rates when the upstream fetch fails.
// Rate catches it internally and serves the fallback table instead.
var ErrRateUnavailable = errors.New("exchange rates unavailable")

// Provider is the ledger's view of the rate source. Implementations must be
// safe for concurrent use.
type Provider interface {
	// Rate returns the conversion rate from one currency to another
	// (1 from = rate to). It never fails: on upstream errors it falls back
	// to the static table.
	Rate(ctx context.Context, from, to string) decimal.Decimal

	// Rates returns the full rate table for a base currency. Unlike Rate it
	// surfaces fetch failures so callers can distinguish live from fallback
	// data.
	Rates(ctx context.Context, base string) (map[string]decimal.Decimal, error)
}

// Client fetches rates over HTTP with TTL caching and static fallback.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	cache      *Cache
}

// NewClient creates a rate client. cache is created once at process start
// and shared; the HTTP timeout is bounded so ledger reads degrade to the
// fallback table rather than hang.
func NewClient(baseURL, apiKey string, cache *Cache) *Client {
	return &Client{
		baseURL:    baseURL,
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		cache:      cache,
	}
}

type ratesResponse struct {
	Result          string                 `json:"result"`
	ErrorType       string                 `json:"error-type"`
	ConversionRates map[string]json.Number `json:"conversion_rates"`
}

// Rates returns the rate table for base, from cache when fresh.
func (c *Client) Rates(ctx context.Context, base string) (map[string]decimal.Decimal, error) {
	if rates := c.cache.Get(base); rates != nil {
		cacheHits.Inc()
		return rates, nil
	}
	cacheMisses.Inc()

	rates, err := c.fetch(ctx, base)
	if err != nil {
		fetchFailures.Inc()
		return nil, fmt.Errorf("%w: %v", ErrRateUnavailable, err)
	}

	c.cache.Set(base, rates)
	return rates, nil
}

func (c *Client) fetch(ctx context.Context, base string) (map[string]decimal.Decimal, error) {
	url := fmt.Sprintf("%s/%s/latest/%s", c.baseURL, c.apiKey, base)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	var body ratesResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("invalid response: %w", err)
	}
	if body.Result != "success" {
		return nil, fmt.Errorf("api error: %s", body.ErrorType)
	}

	// Parse via json.Number so rates keep full decimal precision.
	rates := make(map[string]decimal.Decimal, len(body.ConversionRates))
	for currency, raw := range body.ConversionRates {
		rate, err := decimal.NewFromString(raw.String())
		if err != nil {
			return nil, fmt.Errorf("invalid rate for %s: %w", currency, err)
		}
		rates[currency] = rate
	}
	return rates, nil
}

// Rate returns the conversion rate between two currencies, falling back to
// the static table when the upstream is unavailable or the currency is
// missing from the live table.
func (c *Client) Rate(ctx context.Context, from, to string) decimal.Decimal {
	if from == to {
		return decimal.NewFromInt(1)
	}

	rates, err := c.Rates(ctx, from)
	if err != nil {
		slog.Warn("exchange rate fetch failed, using fallback", "from", from, "to", to, "error", err)
		return FallbackRate(from, to)
	}

	rate, ok := rates[to]
	if !ok {
		slog.Warn("currency missing from live rates, using fallback", "from", from, "to", to)
		return FallbackRate(from, to)
	}
	return rate
}
