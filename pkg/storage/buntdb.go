package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"

	"github.com/raykavin/pricewatch/pkg/core"
	"github.com/tidwall/buntdb"
)

const (
	watchKeyPrefix = "watch:"
	ownerIndex     = "owner_index"
)

// BuntStorage implements core.WatchStore on top of BuntDB. Every operation
// runs inside a single BuntDB transaction, which serializes writers against
// readers.
type BuntStorage struct {
	db          *buntdb.DB
	maxPerOwner int
}

var _ core.WatchStore = (*BuntStorage)(nil)

// FromMemory creates a volatile BuntDB store
func FromMemory(opts ...Option) (*BuntStorage, error) {
	return NewBuntStorage(":memory:", opts...)
}

// FromFile creates a BuntDB store persisted to the given file, so watches
// survive restarts
func FromFile(file string, opts ...Option) (*BuntStorage, error) {
	return NewBuntStorage(file, opts...)
}

// NewBuntStorage opens (or creates) a BuntDB database at sourceFile
func NewBuntStorage(sourceFile string, opts ...Option) (*BuntStorage, error) {
	db, err := buntdb.Open(sourceFile)
	if err != nil {
		return nil, fmt.Errorf("failed to open buntdb: %w", err)
	}

	err = db.CreateIndex(ownerIndex, watchKeyPrefix+"*", buntdb.IndexJSON("owner_id"))
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create index: %w", err)
	}

	o := buildOptions(opts)
	return &BuntStorage{db: db, maxPerOwner: o.maxPerOwner}, nil
}

// watchKey escapes both parts so ids containing ':' cannot collide
func watchKey(ownerID, assetID string) string {
	return watchKeyPrefix + url.QueryEscape(ownerID) + ":" + url.QueryEscape(assetID)
}

func ownerPivot(ownerID string) string {
	pivot, _ := json.Marshal(map[string]string{"owner_id": ownerID})
	return string(pivot)
}

// ownerWatches collects the owner's watches through the owner index
func ownerWatches(tx *buntdb.Tx, ownerID string) ([]core.Watch, error) {
	watches := make([]core.Watch, 0)
	var decodeErr error

	err := tx.AscendEqual(ownerIndex, ownerPivot(ownerID), func(_, value string) bool {
		var watch core.Watch
		if decodeErr = json.Unmarshal([]byte(value), &watch); decodeErr != nil {
			return false
		}
		watches = append(watches, watch)
		return true
	})
	if err != nil {
		return nil, fmt.Errorf("failed to iterate over owner watches: %w", err)
	}
	if decodeErr != nil {
		return nil, fmt.Errorf("failed to unmarshal watch: %w", decodeErr)
	}

	return watches, nil
}

// allWatches collects every stored watch
func allWatches(tx *buntdb.Tx) ([]core.Watch, error) {
	watches := make([]core.Watch, 0)
	var decodeErr error

	err := tx.AscendKeys(watchKeyPrefix+"*", func(_, value string) bool {
		var watch core.Watch
		if decodeErr = json.Unmarshal([]byte(value), &watch); decodeErr != nil {
			return false
		}
		watches = append(watches, watch)
		return true
	})
	if err != nil {
		return nil, fmt.Errorf("failed to iterate over watches: %w", err)
	}
	if decodeErr != nil {
		return nil, fmt.Errorf("failed to unmarshal watch: %w", decodeErr)
	}

	return watches, nil
}

// Add implements core.WatchStore
func (b *BuntStorage) Add(watch core.Watch) error {
	return b.db.Update(func(tx *buntdb.Tx) error {
		key := watchKey(watch.OwnerID, watch.AssetID)

		_, err := tx.Get(key)
		switch {
		case err == nil:
			return core.ErrDuplicateWatch
		case !errors.Is(err, buntdb.ErrNotFound):
			return fmt.Errorf("failed to read watch: %w", err)
		}

		if b.maxPerOwner > 0 {
			owned, err := ownerWatches(tx, watch.OwnerID)
			if err != nil {
				return err
			}
			if len(owned) >= b.maxPerOwner {
				return core.ErrWatchLimit
			}
		}

		content, err := json.Marshal(watch)
		if err != nil {
			return fmt.Errorf("failed to marshal watch: %w", err)
		}

		if _, _, err = tx.Set(key, string(content), nil); err != nil {
			return fmt.Errorf("failed to store watch: %w", err)
		}

		return nil
	})
}

// Remove implements core.WatchStore
func (b *BuntStorage) Remove(ownerID, assetID string) (bool, error) {
	return b.delete(ownerID, assetID, "")
}

// Retire implements core.WatchStore
func (b *BuntStorage) Retire(watch core.Watch) (bool, error) {
	return b.delete(watch.OwnerID, watch.AssetID, watch.ID)
}

func (b *BuntStorage) delete(ownerID, assetID, id string) (bool, error) {
	removed := false

	err := b.db.Update(func(tx *buntdb.Tx) error {
		key := watchKey(ownerID, assetID)

		value, err := tx.Get(key)
		if errors.Is(err, buntdb.ErrNotFound) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to read watch: %w", err)
		}

		if id != "" {
			var current core.Watch
			if err := json.Unmarshal([]byte(value), &current); err != nil {
				return fmt.Errorf("failed to unmarshal watch: %w", err)
			}
			if current.ID != id {
				return nil
			}
		}

		if _, err := tx.Delete(key); err != nil {
			return fmt.Errorf("failed to delete watch: %w", err)
		}

		removed = true
		return nil
	})

	return removed, err
}

// ListFor implements core.WatchStore
func (b *BuntStorage) ListFor(ownerID string) ([]core.Watch, error) {
	var watches []core.Watch

	err := b.db.View(func(tx *buntdb.Tx) error {
		var err error
		watches, err = ownerWatches(tx, ownerID)
		return err
	})
	if err != nil {
		return nil, err
	}

	return sortWatches(watches), nil
}

// ListAll implements core.WatchStore
func (b *BuntStorage) ListAll() ([]core.Watch, error) {
	var watches []core.Watch

	err := b.db.View(func(tx *buntdb.Tx) error {
		var err error
		watches, err = allWatches(tx)
		return err
	})
	if err != nil {
		return nil, err
	}

	return sortWatches(watches), nil
}

// ClearFor implements core.WatchStore
func (b *BuntStorage) ClearFor(ownerID string) (int, error) {
	removed := 0

	err := b.db.Update(func(tx *buntdb.Tx) error {
		owned, err := ownerWatches(tx, ownerID)
		if err != nil {
			return err
		}

		for _, watch := range owned {
			if _, err := tx.Delete(watchKey(watch.OwnerID, watch.AssetID)); err != nil {
				return fmt.Errorf("failed to delete watch: %w", err)
			}
			removed++
		}

		return nil
	})
	if err != nil {
		return 0, err
	}

	return removed, nil
}

// Count implements core.WatchStore
func (b *BuntStorage) Count() (int, error) {
	stats, err := b.Stats()
	return stats.Watches, err
}

// OwnerCount implements core.WatchStore
func (b *BuntStorage) OwnerCount() (int, error) {
	stats, err := b.Stats()
	return stats.Owners, err
}

// Stats implements core.WatchStore
func (b *BuntStorage) Stats() (core.Stats, error) {
	var watches []core.Watch

	err := b.db.View(func(tx *buntdb.Tx) error {
		var err error
		watches, err = allWatches(tx)
		return err
	})
	if err != nil {
		return core.Stats{}, err
	}

	return statsOf(watches), nil
}

// Close closes the database
func (b *BuntStorage) Close() error {
	if b.db != nil {
		return b.db.Close()
	}
	return nil
}
