package alert

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/raykavin/pricewatch/pkg/core"
)

func watchFor(t *testing.T, asset string, target float64) core.Watch {
	t.Helper()
	watch, err := core.NewWatch("1", "1", asset, target)
	require.NoError(t, err)
	return watch
}

func TestEvaluate(t *testing.T) {
	btc := watchFor(t, "BTC", 50000)

	t.Run("within tolerance", func(t *testing.T) {
		triggers := Evaluate([]core.Watch{btc}, core.Prices{"BTC": 50050}, DefaultTolerance)
		require.Len(t, triggers, 1)
		assert.Equal(t, btc, triggers[0].Watch)
		assert.Equal(t, 50050.0, triggers[0].Price)
	})

	t.Run("outside tolerance", func(t *testing.T) {
		triggers := Evaluate([]core.Watch{btc}, core.Prices{"BTC": 53000}, DefaultTolerance)
		require.Empty(t, triggers)
	})

	t.Run("bounds are inclusive", func(t *testing.T) {
		eth := watchFor(t, "ETH", 1000)
		require.Len(t, Evaluate([]core.Watch{eth}, core.Prices{"ETH": 990}, DefaultTolerance), 1)
		require.Len(t, Evaluate([]core.Watch{eth}, core.Prices{"ETH": 1010}, DefaultTolerance), 1)
		require.Empty(t, Evaluate([]core.Watch{eth}, core.Prices{"ETH": 1010.5}, DefaultTolerance))
	})

	t.Run("absent asset is skipped", func(t *testing.T) {
		triggers := Evaluate([]core.Watch{btc}, core.Prices{"ETH": 50000}, DefaultTolerance)
		require.Empty(t, triggers)
	})

	t.Run("keeps input order", func(t *testing.T) {
		a := watchFor(t, "A", 10)
		b := watchFor(t, "B", 20)
		c := watchFor(t, "C", 30)
		triggers := Evaluate([]core.Watch{c, a, b}, core.Prices{"A": 10, "B": 100, "C": 30}, DefaultTolerance)
		require.Len(t, triggers, 2)
		assert.Equal(t, "C", triggers[0].Watch.AssetID)
		assert.Equal(t, "A", triggers[1].Watch.AssetID)
	})

	t.Run("does not touch its inputs", func(t *testing.T) {
		watches := []core.Watch{btc, watchFor(t, "ETH", 3000)}
		prices := core.Prices{"BTC": 50050, "ETH": 2995}
		watchesCopy := append([]core.Watch(nil), watches...)

		first := Evaluate(watches, prices, DefaultTolerance)
		second := Evaluate(watches, prices, DefaultTolerance)

		require.Equal(t, first, second)
		require.Equal(t, watchesCopy, watches)
		require.Equal(t, core.Prices{"BTC": 50050, "ETH": 2995}, prices)
	})
}

func TestReached(t *testing.T) {
	assert.True(t, Reached(100, 100, 0.01))
	assert.False(t, Reached(0, 100, 0.5))
	assert.False(t, Reached(math.NaN(), 100, 0.01))
	assert.False(t, Reached(100, 0, 0.01))
	assert.InDelta(t, 0.06, Distance(53000, 50000), 1e-9)
}

func TestMessage(t *testing.T) {
	watch := watchFor(t, "ethereum", 3000)

	text := Message(core.Trigger{Watch: watch, Price: 2995})
	assert.Contains(t, text, "*ETHEREUM* has reached your target!")
	assert.Contains(t, text, "*Current Price:* $2,995.00")
	assert.Contains(t, text, "*Target Price:* $3,000.00")
	assert.Contains(t, text, "📉 below by 0.2%")

	text = Message(core.Trigger{Watch: watchFor(t, "wrapped_btc", 50000), Price: 50050})
	assert.Contains(t, text, "*WRAPPED\\_BTC*")
	assert.Contains(t, text, "📈 above by 0.1%")
}

func TestFormatUSD(t *testing.T) {
	assert.Equal(t, "$1,234,567.89", FormatUSD(1234567.891))
	assert.Equal(t, "$0.00001234", FormatUSD(0.00001234))
	assert.Equal(t, "$0.00", FormatUSD(0))
}
