package pricing

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/adshao/go-binance/v2"
	"github.com/adshao/go-binance/v2/common"
	"github.com/samber/lo"

	"github.com/raykavin/pricewatch/pkg/core"
	"github.com/raykavin/pricewatch/pkg/logger"
	"github.com/raykavin/pricewatch/pkg/logger/zerolog"
)

// codeInvalidSymbol is returned by Binance when any symbol of a batch is unknown
const codeInvalidSymbol = -1121

// Binance reads spot ticker prices. Asset ids are trading symbols quoted in
// a USD stable coin, e.g. BTCUSDT, and the quote is taken as the USD price.
type Binance struct {
	client  *binance.Client
	key     string
	secret  string
	baseURL string
	log     logger.Logger
}

var _ core.PriceSource = (*Binance)(nil)

// BinanceOption configures a Binance source
type BinanceOption func(*Binance)

// WithCredentials sets the API credentials. Ticker prices are public, keys
// only raise the rate limit.
func WithCredentials(key, secret string) BinanceOption {
	return func(b *Binance) {
		b.key = key
		b.secret = secret
	}
}

// WithBinanceURL overrides the REST endpoint
func WithBinanceURL(url string) BinanceOption {
	return func(b *Binance) {
		b.baseURL = strings.TrimRight(url, "/")
	}
}

// WithBinanceLogger sets the logger used for request diagnostics
func WithBinanceLogger(log logger.Logger) BinanceOption {
	return func(b *Binance) {
		b.log = log
	}
}

// NewBinance creates a Binance source
func NewBinance(options ...BinanceOption) *Binance {
	b := &Binance{log: zerolog.Nop()}
	for _, option := range options {
		option(b)
	}

	b.client = binance.NewClient(b.key, b.secret)
	if b.baseURL != "" {
		b.client.BaseURL = b.baseURL
	}

	return b
}

// NormalizeAsset implements core.AssetNormalizer. Symbols are upper case.
func (b *Binance) NormalizeAsset(assetID string) string {
	return strings.ToUpper(strings.TrimSpace(assetID))
}

// FetchPrices implements core.PriceSource with a single ticker request. When
// Binance rejects the batch because one symbol is unknown the symbols are
// looked up one by one so the valid ones still get a price.
func (b *Binance) FetchPrices(ctx context.Context, assetIDs []string) (core.Prices, error) {
	symbols := lo.Uniq(lo.Compact(lo.Map(assetIDs, func(id string, _ int) string {
		return b.NormalizeAsset(id)
	})))
	slices.Sort(symbols)

	prices := make(core.Prices, len(symbols))
	if len(symbols) == 0 {
		return prices, nil
	}

	list, err := b.client.NewListPricesService().Symbols(symbols).Do(ctx)
	if err != nil {
		if !isInvalidSymbol(err) {
			return prices, fmt.Errorf("%w: binance ticker request failed: %w", core.ErrUpstreamUnavailable, err)
		}
		if len(symbols) == 1 {
			return prices, nil
		}

		b.log.WithField("symbols", len(symbols)).Debug("binance rejected the batch, looking up symbols one by one")
		return b.fetchEach(ctx, symbols)
	}

	collect(prices, list)
	return prices, nil
}

func (b *Binance) fetchEach(ctx context.Context, symbols []string) (core.Prices, error) {
	prices := make(core.Prices, len(symbols))
	var errs []error

	for _, symbol := range symbols {
		list, err := b.client.NewListPricesService().Symbol(symbol).Do(ctx)
		if err != nil {
			if isInvalidSymbol(err) {
				continue
			}
			errs = append(errs, fmt.Errorf("%w: binance ticker %s: %w", core.ErrUpstreamUnavailable, symbol, err))
			if ctx.Err() != nil {
				break
			}
			continue
		}
		collect(prices, list)
	}

	return prices, errors.Join(errs...)
}

func collect(prices core.Prices, list []*binance.SymbolPrice) {
	for _, item := range list {
		price, err := strconv.ParseFloat(item.Price, 64)
		if err != nil || price <= 0 {
			continue
		}
		prices[item.Symbol] = price
	}
}

func isInvalidSymbol(err error) bool {
	var apiErr *common.APIError
	return errors.As(err, &apiErr) && apiErr.Code == codeInvalidSymbol
}
