package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/raykavin/pricewatch/pkg/core"
)

var keys = []string{
	"TELEGRAM_ENABLED", "TELEGRAM_TOKEN", "TELEGRAM_USERS", "PRICE_SOURCE",
	"COINGECKO_BASE_URL", "COINGECKO_API_KEY", "COINGECKO_PRO",
	"BINANCE_API_KEY", "BINANCE_SECRET_KEY", "PRICE_CHECK_INTERVAL",
	"PRICE_TOLERANCE", "PRICE_ERROR_BACKOFF", "PRICE_CACHE_TTL",
	"MAX_WATCHES_PER_USER", "STORAGE_DRIVER", "STORAGE_PATH", "DATABASE_URL",
	"MAIL_ENABLED", "MAIL_SMTP_ADDRESS", "MAIL_SMTP_PORT", "MAIL_FROM",
	"MAIL_TO", "MAIL_PASSWORD",
}

// clearEnv blanks every variable Load reads; viper ignores empty values
func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range keys {
		t.Setenv(key, "")
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)

	config, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, core.DefaultMonitorSettings(), config.Settings.Monitor)
	assert.Equal(t, DefaultMaxWatches, config.Settings.MaxWatchesPerOwner)
	assert.False(t, config.Settings.Telegram.Enabled)
	assert.Empty(t, config.Settings.Telegram.Users)
	assert.Equal(t, SourceCoinGecko, config.Source.Name)
	assert.Equal(t, StorageMemory, config.Storage.Driver)
	assert.Equal(t, DefaultCacheTTL, config.CacheTTL)
	assert.Equal(t, 587, config.Mail.Port)
}

func TestLoad_Environment(t *testing.T) {
	clearEnv(t)
	t.Setenv("TELEGRAM_ENABLED", "true")
	t.Setenv("TELEGRAM_TOKEN", "123:abc")
	t.Setenv("TELEGRAM_USERS", "10, 20,,30")
	t.Setenv("PRICE_SOURCE", "Binance")
	t.Setenv("PRICE_CHECK_INTERVAL", "5m")
	t.Setenv("PRICE_ERROR_BACKOFF", "30")
	t.Setenv("PRICE_CACHE_TTL", "1.5")
	t.Setenv("PRICE_TOLERANCE", "0.02")
	t.Setenv("MAX_WATCHES_PER_USER", "0")
	t.Setenv("STORAGE_DRIVER", "buntdb")
	t.Setenv("STORAGE_PATH", "/tmp/watches.db")

	config, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, []int64{10, 20, 30}, config.Settings.Telegram.Users)
	assert.Equal(t, "123:abc", config.Settings.Telegram.Token)
	assert.Equal(t, SourceBinance, config.Source.Name)
	assert.Equal(t, 5*time.Minute, config.Settings.Monitor.Interval)
	assert.Equal(t, 30*time.Second, config.Settings.Monitor.ErrorBackoff)
	assert.Equal(t, 1500*time.Millisecond, config.CacheTTL)
	assert.InDelta(t, 0.02, config.Settings.Monitor.Tolerance, 1e-9)
	assert.Zero(t, config.Settings.MaxWatchesPerOwner)
	assert.Equal(t, StorageBuntDB, config.Storage.Driver)
}

func TestLoad_EnvFile(t *testing.T) {
	clearEnv(t)
	t.Setenv("COINGECKO_API_KEY", "from-env")
	// godotenv never overrides a variable that is present, even when empty
	require.NoError(t, os.Unsetenv("COINGECKO_PRO"))
	require.NoError(t, os.Unsetenv("PRICE_CHECK_INTERVAL"))

	path := filepath.Join(t.TempDir(), ".env")
	content := "COINGECKO_API_KEY=from-file\nCOINGECKO_PRO=true\nPRICE_CHECK_INTERVAL=45s\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	config, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "from-env", config.Source.CoinGeckoKey)
	assert.True(t, config.Source.CoinGeckoPro)
	assert.Equal(t, 45*time.Second, config.Settings.Monitor.Interval)

	_, err = Load(filepath.Join(t.TempDir(), "missing.env"))
	require.NoError(t, err)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"telegram without token", map[string]string{"TELEGRAM_ENABLED": "true"}},
		{"bad user id", map[string]string{"TELEGRAM_USERS": "12,abc"}},
		{"tolerance too large", map[string]string{"PRICE_TOLERANCE": "1"}},
		{"negative interval", map[string]string{"PRICE_CHECK_INTERVAL": "-5"}},
		{"garbage duration", map[string]string{"PRICE_ERROR_BACKOFF": "soon"}},
		{"backoff not shorter than interval", map[string]string{"PRICE_CHECK_INTERVAL": "60", "PRICE_ERROR_BACKOFF": "1m"}},
		{"zero cache ttl", map[string]string{"PRICE_CACHE_TTL": "0"}},
		{"unknown source", map[string]string{"PRICE_SOURCE": "kraken"}},
		{"unknown storage", map[string]string{"STORAGE_DRIVER": "redis"}},
		{"postgres without url", map[string]string{"STORAGE_DRIVER": "postgres"}},
		{"negative limit", map[string]string{"MAX_WATCHES_PER_USER": "-1"}},
		{"mail without address", map[string]string{"MAIL_ENABLED": "true"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			for key, value := range tt.env {
				t.Setenv(key, value)
			}

			_, err := Load("")
			require.Error(t, err)
		})
	}
}
