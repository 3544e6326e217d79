// Package alert decides which watches fired for a set of observed prices and
// renders the notification text. Everything here is pure.
package alert

import (
	"math"

	"github.com/samber/lo"

	"github.com/raykavin/pricewatch/pkg/core"
)

// DefaultTolerance is the relative band around the target (1%) inside which
// a watch fires
const DefaultTolerance = core.DefaultTolerance

// Distance is the absolute distance between current and target, relative to
// the target. A non-positive target has no meaningful distance.
func Distance(current, target float64) float64 {
	if target <= 0 {
		return math.Inf(1)
	}
	return math.Abs(current-target) / target
}

// Reached reports whether current lies within tolerance of target, bounds
// included
func Reached(current, target, tolerance float64) bool {
	if math.IsNaN(current) || math.IsInf(current, 0) || current <= 0 {
		return false
	}
	return Distance(current, target) <= tolerance
}

// Evaluate returns a trigger for every watch whose asset has a price in
// prices that reached the target. Watches without a price are skipped. The
// output keeps the input order.
func Evaluate(watches []core.Watch, prices core.Prices, tolerance float64) []core.Trigger {
	return lo.FilterMap(watches, func(watch core.Watch, _ int) (core.Trigger, bool) {
		price, ok := prices.Lookup(watch.AssetID)
		if !ok || !Reached(price, watch.TargetPrice, tolerance) {
			return core.Trigger{}, false
		}
		return core.Trigger{Watch: watch, Price: price}, true
	})
}
