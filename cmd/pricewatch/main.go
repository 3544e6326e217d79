package main

import (
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
	"gorm.io/driver/postgres"

	"github.com/raykavin/pricewatch"
	"github.com/raykavin/pricewatch/internal/config"
	"github.com/raykavin/pricewatch/pkg/alert"
	"github.com/raykavin/pricewatch/pkg/core"
	"github.com/raykavin/pricewatch/pkg/notification"
	"github.com/raykavin/pricewatch/pkg/pricing"
	"github.com/raykavin/pricewatch/pkg/storage"
)

// Command line flags
var (
	envFile      string
	dryRun       bool
	staticPrices map[string]string
)

func main() {
	// Create root command
	rootCmd := &cobra.Command{
		Use:     "pricewatch",
		Short:   "Telegram bot that alerts when a token reaches a target price",
		Version: "1.0.0",
	}
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", config.DefaultEnvFile, "Optional .env file loaded before the environment")

	// Add commands
	rootCmd.AddCommand(buildRunCmd(), buildPriceCmd())

	// Execute
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func buildRunCmd() *cobra.Command {
	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Run the bot and the price monitor until interrupted",
		RunE:  runBot,
	}

	// Add flags
	runCmd.Flags().BoolVar(&dryRun, "dry-run", false, "Use fixed prices instead of the configured source")
	runCmd.Flags().StringToStringVar(&staticPrices, "price", nil, "Fixed price for --dry-run (e.g. bitcoin=50000)")

	return runCmd
}

func buildPriceCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "price ASSET...",
		Short: "Look up the current USD price of one or more assets",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runPrice,
	}
}

func runBot(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(envFile)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	source, err := initializeSource(cfg)
	if err != nil {
		return err
	}

	store, closeStore, err := initializeStorage(cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	options := []pricewatch.Option{
		pricewatch.WithStorage(store),
		pricewatch.WithCacheTTL(cfg.CacheTTL),
	}
	if cfg.Mail.Enabled {
		options = append(options, pricewatch.WithNotifier(notification.NewMail(notification.MailParams{
			SMTPServerPort:    cfg.Mail.Port,
			SMTPServerAddress: cfg.Mail.Address,
			To:                cfg.Mail.To,
			From:              cfg.Mail.From,
			Password:          cfg.Mail.Password,
		})))
	}

	app, err := pricewatch.New(cfg.Settings, source, options...)
	if err != nil {
		return err
	}

	pricewatch.DefaultLog.WithFields(map[string]any{
		"source":  cfg.Source.Name,
		"storage": cfg.Storage.Driver,
		"dry_run": dryRun,
	}).Info("starting pricewatch")

	return app.Run(ctx)
}

func runPrice(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(envFile)
	if err != nil {
		return err
	}

	source, err := initializeSource(cfg)
	if err != nil {
		return err
	}

	assets := make([]string, 0, len(args))
	for _, arg := range args {
		assets = append(assets, core.NormalizeAsset(source, arg))
	}

	prices, fetchErr := source.FetchPrices(cmd.Context(), assets)

	table := tablewriter.NewWriter(cmd.OutOrStdout())
	table.SetHeader([]string{"Asset", "Price (USD)"})
	for _, asset := range assets {
		value := "not found"
		if price, ok := prices.Lookup(asset); ok {
			value = alert.FormatUSD(price)
		}
		table.Append([]string{asset, value})
	}
	table.Render()

	return fetchErr
}

func initializeSource(cfg *config.AppConfig) (core.PriceSource, error) {
	if dryRun {
		prices := make(core.Prices, len(staticPrices))
		for asset, raw := range staticPrices {
			price, err := strconv.ParseFloat(raw, 64)
			if err != nil {
				return nil, fmt.Errorf("invalid price for %s: %w", asset, err)
			}
			prices[asset] = price
		}
		return pricing.NewStatic(prices), nil
	}

	switch cfg.Source.Name {
	case config.SourceBinance:
		return pricing.NewBinance(
			pricing.WithCredentials(cfg.Source.BinanceAPIKey, cfg.Source.BinanceSecretKey),
			pricing.WithBinanceLogger(pricewatch.DefaultLog),
		), nil
	default:
		options := []pricing.CoinGeckoOption{
			pricing.WithAPIKey(cfg.Source.CoinGeckoKey, cfg.Source.CoinGeckoPro),
			pricing.WithLogger(pricewatch.DefaultLog),
		}
		if cfg.Source.CoinGeckoURL != "" {
			options = append(options, pricing.WithBaseURL(cfg.Source.CoinGeckoURL))
		}
		return pricing.NewCoinGecko(options...), nil
	}
}

func initializeStorage(cfg *config.AppConfig) (core.WatchStore, func(), error) {
	limit := storage.WithMaxPerOwner(cfg.Settings.MaxWatchesPerOwner)

	switch cfg.Storage.Driver {
	case config.StorageBuntDB:
		store, err := storage.FromFile(cfg.Storage.Path, limit)
		if err != nil {
			return nil, nil, fmt.Errorf("could not open watch file: %w", err)
		}
		return store, closer(store.Close), nil
	case config.StoragePostgres:
		store, err := storage.FromSQL(postgres.Open(cfg.Storage.DatabaseURL), limit)
		if err != nil {
			return nil, nil, fmt.Errorf("could not connect to database: %w", err)
		}
		return store, closer(store.Close), nil
	default:
		return storage.NewMemory(limit), func() {}, nil
	}
}

func closer(closeFn func() error) func() {
	return func() {
		if err := closeFn(); err != nil {
			pricewatch.DefaultLog.WithError(err).Error("failed to close watch store")
		}
	}
}

