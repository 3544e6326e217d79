// Package storage provides core.WatchStore implementations: a volatile
// in-process registry, a BuntDB store (in memory or file backed) and a SQL
// store on top of GORM.
package storage

import (
	"sync"

	"github.com/raykavin/pricewatch/pkg/core"
	"github.com/samber/lo"
)

// Option configures a store
type Option func(*options)

type options struct {
	maxPerOwner int
}

// WithMaxPerOwner caps how many watches a single owner may hold. Zero or a
// negative value disables the cap.
func WithMaxPerOwner(n int) Option {
	return func(o *options) {
		o.maxPerOwner = n
	}
}

func buildOptions(opts []Option) options {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// Memory is the default watch registry. One RWMutex guards the whole
// aggregate and no I/O ever happens while it is held.
type Memory struct {
	mu          sync.RWMutex
	watches     map[string]map[string]core.Watch // owner -> asset -> watch
	maxPerOwner int
}

var _ core.WatchStore = (*Memory)(nil)

// NewMemory creates an empty in-process store
func NewMemory(opts ...Option) *Memory {
	o := buildOptions(opts)
	return &Memory{
		watches:     make(map[string]map[string]core.Watch),
		maxPerOwner: o.maxPerOwner,
	}
}

// Add implements core.WatchStore
func (m *Memory) Add(watch core.Watch) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	owned := m.watches[watch.OwnerID]
	if _, ok := owned[watch.AssetID]; ok {
		return core.ErrDuplicateWatch
	}

	if m.maxPerOwner > 0 && len(owned) >= m.maxPerOwner {
		return core.ErrWatchLimit
	}

	if owned == nil {
		owned = make(map[string]core.Watch)
		m.watches[watch.OwnerID] = owned
	}
	owned[watch.AssetID] = watch

	return nil
}

// Remove implements core.WatchStore
func (m *Memory) Remove(ownerID, assetID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.delete(ownerID, assetID, ""), nil
}

// Retire implements core.WatchStore
func (m *Memory) Retire(watch core.Watch) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.delete(watch.OwnerID, watch.AssetID, watch.ID), nil
}

// delete must be called with the write lock held. An empty id matches any watch.
func (m *Memory) delete(ownerID, assetID, id string) bool {
	owned, ok := m.watches[ownerID]
	if !ok {
		return false
	}

	current, ok := owned[assetID]
	if !ok || (id != "" && current.ID != id) {
		return false
	}

	delete(owned, assetID)
	if len(owned) == 0 {
		delete(m.watches, ownerID)
	}

	return true
}

// ListFor implements core.WatchStore
func (m *Memory) ListFor(ownerID string) ([]core.Watch, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return sortWatches(lo.Values(m.watches[ownerID])), nil
}

// ListAll implements core.WatchStore
func (m *Memory) ListAll() ([]core.Watch, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	all := make([]core.Watch, 0, m.countLocked())
	for _, owned := range m.watches {
		for _, watch := range owned {
			all = append(all, watch)
		}
	}

	return sortWatches(all), nil
}

// ClearFor implements core.WatchStore
func (m *Memory) ClearFor(ownerID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	removed := len(m.watches[ownerID])
	delete(m.watches, ownerID)

	return removed, nil
}

// Count implements core.WatchStore
func (m *Memory) Count() (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.countLocked(), nil
}

func (m *Memory) countLocked() int {
	total := 0
	for _, owned := range m.watches {
		total += len(owned)
	}
	return total
}

// OwnerCount implements core.WatchStore
func (m *Memory) OwnerCount() (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return len(m.watches), nil
}

// Stats implements core.WatchStore
func (m *Memory) Stats() (core.Stats, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	assets := make(map[string]struct{})
	for _, owned := range m.watches {
		for assetID := range owned {
			assets[assetID] = struct{}{}
		}
	}

	return core.Stats{
		Watches: m.countLocked(),
		Owners:  len(m.watches),
		Assets:  len(assets),
	}, nil
}
