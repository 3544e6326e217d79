package pricing

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/tidwall/buntdb"

	"github.com/raykavin/pricewatch/pkg/core"
)

// DefaultCacheTTL is how long an interactive lookup reuses a fetched price
const DefaultCacheTTL = 60 * time.Second

const priceKeyPrefix = "price:"

// Cache keeps recently fetched prices in an in-memory BuntDB with a TTL so
// chat commands do not spend the upstream rate limit. Only the ids missing
// from the cache are requested upstream.
type Cache struct {
	source core.PriceSource
	db     *buntdb.DB
	ttl    time.Duration
}

var _ core.PriceSource = (*Cache)(nil)

// NewCache wraps source with a price cache
func NewCache(source core.PriceSource, ttl time.Duration) (*Cache, error) {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}

	db, err := buntdb.Open(":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to open price cache: %w", err)
	}

	return &Cache{source: source, db: db, ttl: ttl}, nil
}

// NormalizeAsset implements core.AssetNormalizer by delegating to the source
func (c *Cache) NormalizeAsset(assetID string) string {
	return core.NormalizeAsset(c.source, assetID)
}

// FetchPrices implements core.PriceSource
func (c *Cache) FetchPrices(ctx context.Context, assetIDs []string) (core.Prices, error) {
	prices := make(core.Prices, len(assetIDs))
	missing := make([]string, 0, len(assetIDs))

	err := c.db.View(func(tx *buntdb.Tx) error {
		for _, id := range assetIDs {
			if _, seen := prices[id]; seen {
				continue
			}

			value, err := tx.Get(priceKeyPrefix + id)
			if errors.Is(err, buntdb.ErrNotFound) {
				missing = append(missing, id)
				continue
			}
			if err != nil {
				return err
			}

			price, err := strconv.ParseFloat(value, 64)
			if err != nil {
				missing = append(missing, id)
				continue
			}
			prices[id] = price
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read price cache: %w", err)
	}

	if len(missing) == 0 {
		return prices, nil
	}

	fetched, fetchErr := c.source.FetchPrices(ctx, missing)

	err = c.db.Update(func(tx *buntdb.Tx) error {
		for id, price := range fetched {
			value := strconv.FormatFloat(price, 'f', -1, 64)
			_, _, err := tx.Set(priceKeyPrefix+id, value, &buntdb.SetOptions{Expires: true, TTL: c.ttl})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to write price cache: %w", err)
	}

	for id, price := range fetched {
		prices[id] = price
	}

	return prices, fetchErr
}

// Close releases the cache
func (c *Cache) Close() error {
	return c.db.Close()
}
