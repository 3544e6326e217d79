package core

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestNewWatch(t *testing.T) {
	watch, err := NewWatch(" 42 ", "100", "bitcoin", 50000)
	require.NoError(t, err)
	require.NotEmpty(t, watch.ID)
	require.Equal(t, "42", watch.OwnerID)
	require.Equal(t, "100", watch.DestinationID)
	require.Equal(t, "bitcoin", watch.AssetID)
	require.Equal(t, 50000.0, watch.TargetPrice)
	require.False(t, watch.CreatedAt.IsZero())
	require.Equal(t, WatchKey{OwnerID: "42", AssetID: "bitcoin"}, watch.Key())

	other, err := NewWatch("42", "100", "bitcoin", 50000)
	require.NoError(t, err)
	require.NotEqual(t, watch.ID, other.ID)
}

func TestNewWatch_Invalid(t *testing.T) {
	cases := map[string]struct {
		owner, dest, asset string
		price              float64
	}{
		"missing owner":  {"", "1", "bitcoin", 1},
		"missing dest":   {"1", " ", "bitcoin", 1},
		"missing asset":  {"1", "1", "", 1},
		"spaced asset":   {"1", "1", "bit coin", 1},
		"zero price":     {"1", "1", "bitcoin", 0},
		"negative price": {"1", "1", "bitcoin", -3},
		"nan price":      {"1", "1", "bitcoin", math.NaN()},
		"inf price":      {"1", "1", "bitcoin", math.Inf(1)},
	}

	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := NewWatch(tc.owner, tc.dest, tc.asset, tc.price)
			require.ErrorIs(t, err, ErrInvalidWatch)
		})
	}
}

func TestTrigger(t *testing.T) {
	watch, err := NewWatch("1", "1", "ethereum", 3000)
	require.NoError(t, err)

	below := Trigger{Watch: watch, Price: 2970}
	require.InDelta(t, -1.0, below.Difference(), 1e-9)
	require.Equal(t, DirectionBelow, below.Direction())

	above := Trigger{Watch: watch, Price: 3030}
	require.InDelta(t, 1.0, above.Difference(), 1e-9)
	require.Equal(t, DirectionAbove, above.Direction())

	require.Equal(t, DirectionAt, Trigger{Watch: watch, Price: 3000}.Direction())
}

func TestMonitorSettings_Validate(t *testing.T) {
	require.NoError(t, DefaultMonitorSettings().Validate())

	settings := DefaultMonitorSettings()
	settings.Tolerance = 1.5
	require.Error(t, settings.Validate())

	settings = DefaultMonitorSettings()
	settings.Interval = 0
	require.Error(t, settings.Validate())

	settings = DefaultMonitorSettings()
	settings.ErrorBackoff = settings.Interval
	require.Error(t, settings.Validate())

	settings = DefaultMonitorSettings()
	settings.Interval = 30 * time.Second
	require.Error(t, settings.Validate())
}
