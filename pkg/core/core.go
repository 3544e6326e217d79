package core

import (
	"context"
)

// WatchStore is the registry of active watches. Implementations serialize
// every operation against each other and never hand out references to their
// internal state: list operations return copies.
type WatchStore interface {
	// Add inserts the watch unless the owner already watches the asset
	// (ErrDuplicateWatch) or has reached the per-owner limit (ErrWatchLimit)
	Add(watch Watch) error

	// Remove deletes the owner's watch for the asset, reporting whether it existed
	Remove(ownerID, assetID string) (bool, error)

	// Retire deletes the stored watch with the same key only when it is the
	// very same watch (same ID), so a replacement added later survives
	Retire(watch Watch) (bool, error)

	// ListFor returns a snapshot of the owner's watches
	ListFor(ownerID string) ([]Watch, error)

	// ListAll returns a snapshot of every watch
	ListAll() ([]Watch, error)

	// ClearFor deletes every watch of the owner and returns how many were removed
	ClearFor(ownerID string) (int, error)

	Count() (int, error)
	OwnerCount() (int, error)
	Stats() (Stats, error)
}

// Stats aggregates store diagnostics
type Stats struct {
	Watches int
	Owners  int
	Assets  int
}

// PriceSource fetches USD prices for a batch of asset ids in as few upstream
// requests as possible. The returned map is always usable: on routine
// upstream failures it is empty or partial and the error wraps
// ErrUpstreamUnavailable.
type PriceSource interface {
	FetchPrices(ctx context.Context, assetIDs []string) (Prices, error)
}

// AssetNormalizer is implemented by price sources whose asset ids have a
// canonical spelling (e.g. lower case CoinGecko ids)
type AssetNormalizer interface {
	NormalizeAsset(assetID string) string
}

// NormalizeAsset applies the source's normalization when it has one
func NormalizeAsset(source PriceSource, assetID string) string {
	if normalizer, ok := source.(AssetNormalizer); ok {
		return normalizer.NormalizeAsset(assetID)
	}
	return assetID
}

// Notifier delivers a formatted alert to a conversation
type Notifier interface {
	Notify(ctx context.Context, destinationID, text string) error
}

// NotifierWithStart is a notifier that also owns a long running transport,
// such as a chat bot poller
type NotifierWithStart interface {
	Notifier
	Start()
	Stop()
}
