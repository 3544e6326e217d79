// Package pricing implements core.PriceSource adapters for the upstream
// market data providers and a short lived cache in front of them.
package pricing

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/samber/lo"

	"github.com/raykavin/pricewatch/pkg/core"
	"github.com/raykavin/pricewatch/pkg/logger"
	"github.com/raykavin/pricewatch/pkg/logger/zerolog"
)

// CoinGecko endpoints and limits
const (
	CoinGeckoURL      = "https://api.coingecko.com/api/v3"
	CoinGeckoProURL   = "https://pro-api.coingecko.com/api/v3"
	DefaultMaxBatch   = 250
	defaultTimeout    = 10 * time.Second
	defaultRetryCount = 2
)

// CoinGecko fetches USD prices from the CoinGecko simple price endpoint.
// Asset ids are CoinGecko coin ids such as "bitcoin" or "ethereum".
type CoinGecko struct {
	client    *resty.Client
	baseURL   string
	apiKey    string
	pro       bool
	maxBatch  int
	timeout   time.Duration
	retries   int
	retryWait time.Duration
	log       logger.Logger
}

var _ core.PriceSource = (*CoinGecko)(nil)

// CoinGeckoOption configures a CoinGecko source
type CoinGeckoOption func(*CoinGecko)

// WithBaseURL overrides the API root, e.g. for a proxy or a test server
func WithBaseURL(url string) CoinGeckoOption {
	return func(c *CoinGecko) {
		c.baseURL = strings.TrimRight(url, "/")
	}
}

// WithAPIKey authenticates requests. Pro keys use the pro header and, unless
// the base URL was overridden, the pro API root.
func WithAPIKey(key string, pro bool) CoinGeckoOption {
	return func(c *CoinGecko) {
		c.apiKey = key
		c.pro = pro
	}
}

// WithMaxBatch caps how many ids go into one request
func WithMaxBatch(n int) CoinGeckoOption {
	return func(c *CoinGecko) {
		if n > 0 {
			c.maxBatch = n
		}
	}
}

// WithTimeout sets the per request timeout
func WithTimeout(timeout time.Duration) CoinGeckoOption {
	return func(c *CoinGecko) {
		c.timeout = timeout
	}
}

// WithRetry sets how many times a request failing with a transport error or
// a 5xx status is retried, and the initial wait between attempts
func WithRetry(count int, wait time.Duration) CoinGeckoOption {
	return func(c *CoinGecko) {
		c.retries = count
		c.retryWait = wait
	}
}

// WithLogger sets the logger used for request diagnostics
func WithLogger(log logger.Logger) CoinGeckoOption {
	return func(c *CoinGecko) {
		c.log = log
	}
}

// NewCoinGecko creates a CoinGecko source
func NewCoinGecko(options ...CoinGeckoOption) *CoinGecko {
	c := &CoinGecko{
		baseURL:   CoinGeckoURL,
		maxBatch:  DefaultMaxBatch,
		timeout:   defaultTimeout,
		retries:   defaultRetryCount,
		retryWait: 500 * time.Millisecond,
		log:       zerolog.Nop(),
	}

	for _, option := range options {
		option(c)
	}

	if c.pro && c.baseURL == CoinGeckoURL {
		c.baseURL = CoinGeckoProURL
	}

	c.client = resty.New().
		SetBaseURL(c.baseURL).
		SetTimeout(c.timeout).
		SetHeader("Accept", "application/json").
		SetRetryCount(c.retries).
		SetRetryWaitTime(c.retryWait).
		SetRetryMaxWaitTime(4 * c.retryWait).
		AddRetryCondition(func(resp *resty.Response, err error) bool {
			if err != nil {
				return !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
			}
			return resp.StatusCode() >= http.StatusInternalServerError
		})

	if c.apiKey != "" {
		header := "x-cg-demo-api-key"
		if c.pro {
			header = "x-cg-pro-api-key"
		}
		c.client.SetHeader(header, c.apiKey)
	}

	return c
}

// NormalizeAsset implements core.AssetNormalizer. CoinGecko ids are lower case.
func (c *CoinGecko) NormalizeAsset(assetID string) string {
	return strings.ToLower(strings.TrimSpace(assetID))
}

// FetchPrices implements core.PriceSource. Ids are de-duplicated and queried
// in batches of at most maxBatch ids; a failed batch does not discard the
// prices obtained by the others.
func (c *CoinGecko) FetchPrices(ctx context.Context, assetIDs []string) (core.Prices, error) {
	ids := lo.Uniq(lo.Compact(lo.Map(assetIDs, func(id string, _ int) string {
		return c.NormalizeAsset(id)
	})))
	slices.Sort(ids)

	prices := make(core.Prices, len(ids))
	if len(ids) == 0 {
		return prices, nil
	}

	var errs []error
	for _, batch := range lo.Chunk(ids, c.maxBatch) {
		if err := c.fetchBatch(ctx, batch, prices); err != nil {
			errs = append(errs, err)
			if ctx.Err() != nil {
				break
			}
		}
	}

	return prices, errors.Join(errs...)
}

func (c *CoinGecko) fetchBatch(ctx context.Context, ids []string, prices core.Prices) error {
	started := time.Now()
	result := make(map[string]map[string]float64, len(ids))

	resp, err := c.client.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"ids":           strings.Join(ids, ","),
			"vs_currencies": "usd",
		}).
		SetResult(&result).
		Get("/simple/price")
	if err != nil {
		return fmt.Errorf("%w: coingecko request failed: %w", core.ErrUpstreamUnavailable, err)
	}

	c.log.WithFields(map[string]any{
		"ids":      len(ids),
		"status":   resp.StatusCode(),
		"duration": time.Since(started).String(),
	}).Debug("coingecko price request")

	if resp.IsError() {
		return fmt.Errorf("%w: coingecko responded %s", core.ErrUpstreamUnavailable, resp.Status())
	}

	for _, id := range ids {
		quote, ok := result[id]["usd"]
		if !ok || math.IsNaN(quote) || math.IsInf(quote, 0) || quote <= 0 {
			continue
		}
		prices[id] = quote
	}

	return nil
}
