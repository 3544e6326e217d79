package core

import (
	"fmt"
	"math"
	"strings"
	"time"
	"unicode"

	"github.com/google/uuid"
)

// Watch is one user's standing request to be alerted when an asset's USD
// price nears a target. Watches are immutable; changing the target means
// removing the watch and adding a new one.
type Watch struct {
	ID            string    `json:"id"`
	OwnerID       string    `json:"owner_id"`
	DestinationID string    `json:"destination_id"`
	AssetID       string    `json:"asset_id"`
	TargetPrice   float64   `json:"target_price"`
	CreatedAt     time.Time `json:"created_at"`
}

// WatchKey is the uniqueness key of a watch inside a store
type WatchKey struct {
	OwnerID string
	AssetID string
}

// NewWatch validates its arguments and returns a watch with a fresh ID
func NewWatch(ownerID, destinationID, assetID string, targetPrice float64) (Watch, error) {
	ownerID = strings.TrimSpace(ownerID)
	destinationID = strings.TrimSpace(destinationID)
	assetID = strings.TrimSpace(assetID)

	switch {
	case ownerID == "":
		return Watch{}, fmt.Errorf("%w: owner id is required", ErrInvalidWatch)
	case destinationID == "":
		return Watch{}, fmt.Errorf("%w: destination id is required", ErrInvalidWatch)
	case assetID == "":
		return Watch{}, fmt.Errorf("%w: asset id is required", ErrInvalidWatch)
	case strings.IndexFunc(assetID, unicode.IsSpace) >= 0:
		return Watch{}, fmt.Errorf("%w: asset id %q contains spaces", ErrInvalidWatch, assetID)
	case math.IsNaN(targetPrice) || math.IsInf(targetPrice, 0) || targetPrice <= 0:
		return Watch{}, fmt.Errorf("%w: target price must be a positive number, got %v", ErrInvalidWatch, targetPrice)
	}

	return Watch{
		ID:            uuid.NewString(),
		OwnerID:       ownerID,
		DestinationID: destinationID,
		AssetID:       assetID,
		TargetPrice:   targetPrice,
		CreatedAt:     time.Now().UTC(),
	}, nil
}

// Key returns the (owner, asset) pair that identifies the watch in a store
func (w Watch) Key() WatchKey {
	return WatchKey{OwnerID: w.OwnerID, AssetID: w.AssetID}
}

func (w Watch) String() string {
	return fmt.Sprintf("%s@%.8g (owner %s)", w.AssetID, w.TargetPrice, w.OwnerID)
}

// Prices maps asset ids to their current USD price. An id missing from the
// map means the price is unknown for now, not that the id is invalid.
type Prices map[string]float64

// Lookup returns the price for an asset and whether it is known
func (p Prices) Lookup(assetID string) (float64, bool) {
	price, ok := p[assetID]
	return price, ok
}

// Direction describes where the current price sits relative to a target
type Direction string

const (
	DirectionAbove Direction = "above"
	DirectionBelow Direction = "below"
	DirectionAt    Direction = "at"
)

// DirectionOf compares a current price with a target
func DirectionOf(current, target float64) Direction {
	switch {
	case current > target:
		return DirectionAbove
	case current < target:
		return DirectionBelow
	default:
		return DirectionAt
	}
}

// Trigger is a watch that reached its target together with the price that
// fired it
type Trigger struct {
	Watch Watch
	Price float64
}

// Difference is the signed distance between the price and the target, as a
// percentage of the target
func (t Trigger) Difference() float64 {
	return (t.Price - t.Watch.TargetPrice) / t.Watch.TargetPrice * 100
}

// Direction reports whether the price is above or below the target
func (t Trigger) Direction() Direction {
	return DirectionOf(t.Price, t.Watch.TargetPrice)
}
