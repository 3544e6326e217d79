package pricing

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/raykavin/pricewatch/pkg/core"
)

type fakeCoinGecko struct {
	mu       sync.Mutex
	prices   map[string]float64
	requests [][]string
	headers  []http.Header
}

func (f *fakeCoinGecko) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	ids := strings.Split(r.URL.Query().Get("ids"), ",")
	f.requests = append(f.requests, ids)
	f.headers = append(f.headers, r.Header.Clone())

	if r.URL.Path != "/simple/price" || r.URL.Query().Get("vs_currencies") != "usd" {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	body := make(map[string]map[string]float64)
	for _, id := range ids {
		if price, ok := f.prices[id]; ok {
			body[id] = map[string]float64{"usd": price}
		}
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(body)
}

func TestCoinGecko_FetchPrices(t *testing.T) {
	fake := &fakeCoinGecko{prices: map[string]float64{"bitcoin": 50050, "ethereum": 2995.5}}
	server := httptest.NewServer(fake)
	defer server.Close()

	source := NewCoinGecko(WithBaseURL(server.URL), WithAPIKey("demo-key", false))

	prices, err := source.FetchPrices(context.Background(), []string{"Bitcoin", "ethereum", "bitcoin", "no-such-coin"})
	require.NoError(t, err)
	require.Equal(t, core.Prices{"bitcoin": 50050, "ethereum": 2995.5}, prices)

	require.Len(t, fake.requests, 1)
	assert.Equal(t, []string{"bitcoin", "ethereum", "no-such-coin"}, fake.requests[0])
	assert.Equal(t, "demo-key", fake.headers[0].Get("x-cg-demo-api-key"))
	assert.Empty(t, fake.headers[0].Get("x-cg-pro-api-key"))
}

func TestCoinGecko_ProKey(t *testing.T) {
	fake := &fakeCoinGecko{prices: map[string]float64{"bitcoin": 1}}
	server := httptest.NewServer(fake)
	defer server.Close()

	source := NewCoinGecko(WithBaseURL(server.URL), WithAPIKey("pro-key", true))
	_, err := source.FetchPrices(context.Background(), []string{"bitcoin"})
	require.NoError(t, err)
	assert.Equal(t, "pro-key", fake.headers[0].Get("x-cg-pro-api-key"))

	assert.Equal(t, CoinGeckoProURL, NewCoinGecko(WithAPIKey("pro-key", true)).baseURL)
	assert.Equal(t, CoinGeckoURL, NewCoinGecko(WithAPIKey("demo-key", false)).baseURL)
}

func TestCoinGecko_Empty(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
	}))
	defer server.Close()

	source := NewCoinGecko(WithBaseURL(server.URL))
	prices, err := source.FetchPrices(context.Background(), []string{" ", ""})
	require.NoError(t, err)
	require.Empty(t, prices)
	require.Zero(t, calls.Load())
}

func TestCoinGecko_Batches(t *testing.T) {
	fake := &fakeCoinGecko{prices: map[string]float64{"a": 1, "b": 2, "c": 3, "d": 4, "e": 5}}
	server := httptest.NewServer(fake)
	defer server.Close()

	source := NewCoinGecko(WithBaseURL(server.URL), WithMaxBatch(2))
	prices, err := source.FetchPrices(context.Background(), []string{"e", "d", "c", "b", "a"})
	require.NoError(t, err)
	require.Len(t, prices, 5)

	require.Equal(t, [][]string{{"a", "b"}, {"c", "d"}, {"e"}}, fake.requests)
}

func TestCoinGecko_RateLimited(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// the first batch succeeds, the second one hits the rate limit
		if calls.Add(1) > 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"a":{"usd":10}}`))
	}))
	defer server.Close()

	source := NewCoinGecko(WithBaseURL(server.URL), WithMaxBatch(1), WithRetry(0, 0))
	prices, err := source.FetchPrices(context.Background(), []string{"a", "b"})
	require.ErrorIs(t, err, core.ErrUpstreamUnavailable)
	require.Contains(t, err.Error(), "429")
	require.Equal(t, core.Prices{"a": 10}, prices)
	require.EqualValues(t, 2, calls.Load())
}

func TestCoinGecko_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"bitcoin":{"usd":42000}}`))
	}))
	defer server.Close()

	source := NewCoinGecko(WithBaseURL(server.URL), WithRetry(2, time.Millisecond))
	prices, err := source.FetchPrices(context.Background(), []string{"bitcoin"})
	require.NoError(t, err)
	require.Equal(t, core.Prices{"bitcoin": 42000}, prices)
	require.EqualValues(t, 2, calls.Load())
}

func TestCoinGecko_Timeout(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer server.Close()
	defer close(release)

	source := NewCoinGecko(WithBaseURL(server.URL), WithTimeout(50*time.Millisecond), WithRetry(0, 0))
	prices, err := source.FetchPrices(context.Background(), []string{"bitcoin"})
	require.ErrorIs(t, err, core.ErrUpstreamUnavailable)
	require.NotNil(t, prices)
	require.Empty(t, prices)
}

func TestCoinGecko_NormalizeAsset(t *testing.T) {
	source := NewCoinGecko()
	require.Equal(t, "bitcoin", core.NormalizeAsset(source, "  BitCoin "))
}
