// Package config loads the pricewatch configuration from the environment
// (and an optional .env file) using Viper
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"github.com/xhit/go-str2duration/v2"

	"github.com/raykavin/pricewatch/pkg/core"
)

// Constants for configuration
const (
	DefaultEnvFile     = ".env"
	DefaultStoragePath = "./pricewatch.db"
	DefaultCacheTTL    = 60 * time.Second
	DefaultMaxWatches  = 10

	SourceCoinGecko = "coingecko"
	SourceBinance   = "binance"

	StorageMemory   = "memory"
	StorageBuntDB   = "buntdb"
	StoragePostgres = "postgres"
)

// AppConfig holds the application configuration
type AppConfig struct {
	Settings core.Settings
	Source   SourceConfig
	Storage  StorageConfig
	Mail     MailConfig
	CacheTTL time.Duration
}

// SourceConfig selects and configures the price source
type SourceConfig struct {
	Name             string
	CoinGeckoURL     string
	CoinGeckoKey     string
	CoinGeckoPro     bool
	BinanceAPIKey    string
	BinanceSecretKey string
}

// StorageConfig selects the watch store backend
type StorageConfig struct {
	Driver      string
	Path        string
	DatabaseURL string
}

// MailConfig holds the operator mail copy settings
type MailConfig struct {
	Enabled  bool
	Address  string
	Port     int
	From     string
	To       string
	Password string
}

// Load reads the configuration. envFile is loaded first when it exists, real
// environment variables win over its values.
func Load(envFile string) (*AppConfig, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("could not load %s: %w", envFile, err)
		}
	}

	v := viper.New()
	v.AutomaticEnv()

	// Set default values
	v.SetDefault("TELEGRAM_ENABLED", false)
	v.SetDefault("PRICE_SOURCE", SourceCoinGecko)
	v.SetDefault("COINGECKO_PRO", false)
	v.SetDefault("PRICE_CHECK_INTERVAL", "120")
	v.SetDefault("PRICE_TOLERANCE", core.DefaultTolerance)
	v.SetDefault("PRICE_ERROR_BACKOFF", "60")
	v.SetDefault("PRICE_CACHE_TTL", "60")
	v.SetDefault("MAX_WATCHES_PER_USER", DefaultMaxWatches)
	v.SetDefault("STORAGE_DRIVER", StorageMemory)
	v.SetDefault("STORAGE_PATH", DefaultStoragePath)
	v.SetDefault("MAIL_ENABLED", false)
	v.SetDefault("MAIL_SMTP_PORT", 587)

	users, err := parseUsers(v.GetString("TELEGRAM_USERS"))
	if err != nil {
		return nil, err
	}

	interval, err := parseDuration("PRICE_CHECK_INTERVAL", v.GetString("PRICE_CHECK_INTERVAL"))
	if err != nil {
		return nil, err
	}

	errorBackoff, err := parseDuration("PRICE_ERROR_BACKOFF", v.GetString("PRICE_ERROR_BACKOFF"))
	if err != nil {
		return nil, err
	}

	cacheTTL, err := parseDuration("PRICE_CACHE_TTL", v.GetString("PRICE_CACHE_TTL"))
	if err != nil {
		return nil, err
	}

	config := &AppConfig{
		Settings: core.Settings{
			Monitor: core.MonitorSettings{
				Interval:     interval,
				ErrorBackoff: errorBackoff,
				Tolerance:    v.GetFloat64("PRICE_TOLERANCE"),
			},
			Telegram: core.TelegramSettings{
				Enabled: v.GetBool("TELEGRAM_ENABLED"),
				Token:   v.GetString("TELEGRAM_TOKEN"),
				Users:   users,
			},
			MaxWatchesPerOwner: v.GetInt("MAX_WATCHES_PER_USER"),
		},
		Source: SourceConfig{
			Name:             strings.ToLower(v.GetString("PRICE_SOURCE")),
			CoinGeckoURL:     v.GetString("COINGECKO_BASE_URL"),
			CoinGeckoKey:     v.GetString("COINGECKO_API_KEY"),
			CoinGeckoPro:     v.GetBool("COINGECKO_PRO"),
			BinanceAPIKey:    v.GetString("BINANCE_API_KEY"),
			BinanceSecretKey: v.GetString("BINANCE_SECRET_KEY"),
		},
		Storage: StorageConfig{
			Driver:      strings.ToLower(v.GetString("STORAGE_DRIVER")),
			Path:        v.GetString("STORAGE_PATH"),
			DatabaseURL: v.GetString("DATABASE_URL"),
		},
		Mail: MailConfig{
			Enabled:  v.GetBool("MAIL_ENABLED"),
			Address:  v.GetString("MAIL_SMTP_ADDRESS"),
			Port:     v.GetInt("MAIL_SMTP_PORT"),
			From:     v.GetString("MAIL_FROM"),
			To:       v.GetString("MAIL_TO"),
			Password: v.GetString("MAIL_PASSWORD"),
		},
		CacheTTL: cacheTTL,
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// Validate checks the values that would otherwise fail late, at startup of
// the component using them
func (c *AppConfig) Validate() error {
	if err := c.Settings.Monitor.Validate(); err != nil {
		return err
	}

	if c.CacheTTL <= 0 {
		return fmt.Errorf("PRICE_CACHE_TTL must be positive, got %s", c.CacheTTL)
	}

	if c.Settings.MaxWatchesPerOwner < 0 {
		return fmt.Errorf("MAX_WATCHES_PER_USER must not be negative, got %d", c.Settings.MaxWatchesPerOwner)
	}

	if c.Settings.Telegram.Enabled && c.Settings.Telegram.Token == "" {
		return fmt.Errorf("TELEGRAM_TOKEN is required when TELEGRAM_ENABLED is set")
	}

	switch c.Source.Name {
	case SourceCoinGecko, SourceBinance:
	default:
		return fmt.Errorf("unknown PRICE_SOURCE %q", c.Source.Name)
	}

	switch c.Storage.Driver {
	case StorageMemory:
	case StorageBuntDB:
		if c.Storage.Path == "" {
			return fmt.Errorf("STORAGE_PATH is required for the buntdb driver")
		}
	case StoragePostgres:
		if c.Storage.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required for the postgres driver")
		}
	default:
		return fmt.Errorf("unknown STORAGE_DRIVER %q", c.Storage.Driver)
	}

	if c.Mail.Enabled && (c.Mail.Address == "" || c.Mail.To == "" || c.Mail.From == "") {
		return fmt.Errorf("MAIL_SMTP_ADDRESS, MAIL_FROM and MAIL_TO are required when MAIL_ENABLED is set")
	}

	return nil
}

// parseDuration accepts Go style durations ("90s", "2m", "1d") and plain
// numbers, which are seconds
func parseDuration(key, raw string) (time.Duration, error) {
	raw = strings.TrimSpace(raw)
	if seconds, err := strconv.ParseFloat(raw, 64); err == nil {
		return time.Duration(seconds * float64(time.Second)), nil
	}

	duration, err := str2duration.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, raw, err)
	}
	return duration, nil
}

// parseUsers reads the comma separated Telegram user allowlist
func parseUsers(raw string) ([]int64, error) {
	var users []int64
	for _, field := range strings.Split(raw, ",") {
		field = strings.TrimSpace(field)
		if field == "" {
			continue
		}

		id, err := strconv.ParseInt(field, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid TELEGRAM_USERS entry %q: %w", field, err)
		}
		users = append(users, id)
	}
	return users, nil
}
