package storage

import (
	"cmp"
	"slices"

	"github.com/raykavin/pricewatch/pkg/core"
	"github.com/samber/lo"
)

// sortWatches orders snapshots by creation time so listings are stable
func sortWatches(watches []core.Watch) []core.Watch {
	slices.SortFunc(watches, func(a, b core.Watch) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		if c := cmp.Compare(a.OwnerID, b.OwnerID); c != 0 {
			return c
		}
		return cmp.Compare(a.AssetID, b.AssetID)
	})
	return watches
}

func statsOf(watches []core.Watch) core.Stats {
	return core.Stats{
		Watches: len(watches),
		Owners:  len(lo.UniqBy(watches, func(w core.Watch) string { return w.OwnerID })),
		Assets:  len(lo.UniqBy(watches, func(w core.Watch) string { return w.AssetID })),
	}
}
