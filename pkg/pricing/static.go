package pricing

import (
	"context"
	"maps"
	"slices"
	"sync"

	"github.com/raykavin/pricewatch/pkg/core"
)

// SourceFunc adapts a function to core.PriceSource
type SourceFunc func(ctx context.Context, assetIDs []string) (core.Prices, error)

// FetchPrices implements core.PriceSource
func (f SourceFunc) FetchPrices(ctx context.Context, assetIDs []string) (core.Prices, error) {
	return f(ctx, assetIDs)
}

// Static serves prices from a fixed table. It backs the dry-run mode and the
// tests, and records every request it receives.
type Static struct {
	mu       sync.RWMutex
	prices   core.Prices
	err      error
	requests [][]string
}

var _ core.PriceSource = (*Static)(nil)

// NewStatic creates a source answering from prices
func NewStatic(prices core.Prices) *Static {
	return &Static{prices: maps.Clone(prices)}
}

// Set updates the price of an asset
func (s *Static) Set(assetID string, price float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.prices == nil {
		s.prices = make(core.Prices)
	}
	s.prices[assetID] = price
}

// Delete forgets an asset
func (s *Static) Delete(assetID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.prices, assetID)
}

// SetError makes every following fetch also return err
func (s *Static) SetError(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = err
}

// Requests returns the id lists received so far
func (s *Static) Requests() [][]string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.requests)
}

// FetchPrices implements core.PriceSource
func (s *Static) FetchPrices(ctx context.Context, assetIDs []string) (core.Prices, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.requests = append(s.requests, slices.Clone(assetIDs))

	prices := make(core.Prices, len(assetIDs))
	if err := ctx.Err(); err != nil {
		return prices, err
	}

	for _, id := range assetIDs {
		if price, ok := s.prices[id]; ok {
			prices[id] = price
		}
	}

	return prices, s.err
}
