// Package pricewatch assembles the price watch bot: a watch store, a price
// source, the chat commands, the notifiers and the monitor loop.
package pricewatch

import (
	"context"
	"fmt"
	"time"

	"github.com/raykavin/pricewatch/pkg/command"
	"github.com/raykavin/pricewatch/pkg/core"
	"github.com/raykavin/pricewatch/pkg/logger"
	"github.com/raykavin/pricewatch/pkg/monitor"
	"github.com/raykavin/pricewatch/pkg/notification"
	"github.com/raykavin/pricewatch/pkg/pricing"
	"github.com/raykavin/pricewatch/pkg/storage"
)

// DefaultLog is the default logger instance
var DefaultLog logger.Logger

// App wires every component around one shared watch store
type App struct {
	settings core.Settings
	source   core.PriceSource
	cache    *pricing.Cache
	cacheTTL time.Duration
	store    core.WatchStore
	log      logger.Logger

	notifiers []core.Notifier
	telegram  core.NotifierWithStart
	commands  *command.Handler
	monitor   *monitor.Monitor
}

// New builds the application. Without options the watches live in memory,
// alerts go to Telegram when enabled and to the log otherwise.
func New(settings core.Settings, source core.PriceSource, options ...Option) (*App, error) {
	if source == nil {
		return nil, fmt.Errorf("a price source is required")
	}

	if err := settings.Monitor.Validate(); err != nil {
		return nil, fmt.Errorf("invalid monitor settings: %w", err)
	}

	app := &App{
		settings: settings,
		source:   source,
		cacheTTL: pricing.DefaultCacheTTL,
		log:      DefaultLog,
	}

	for _, option := range options {
		option(app)
	}

	if app.store == nil {
		app.store = storage.NewMemory(storage.WithMaxPerOwner(settings.MaxWatchesPerOwner))
	}

	var err error
	app.cache, err = pricing.NewCache(source, app.cacheTTL)
	if err != nil {
		return nil, err
	}

	app.commands = command.NewHandler(app.store, app.cache,
		command.WithLogger(app.log),
		command.WithCheckInterval(settings.Monitor.Interval),
	)

	if err := app.initializeNotifications(); err != nil {
		_ = app.cache.Close()
		return nil, err
	}

	var notifier core.Notifier = notification.NewMulti(app.notifiers...)
	if len(app.notifiers) == 1 {
		notifier = app.notifiers[0]
	}

	app.monitor, err = monitor.New(app.store, source, notifier, settings.Monitor, monitor.WithLogger(app.log))
	if err != nil {
		_ = app.cache.Close()
		return nil, err
	}

	return app, nil
}

// initializeNotifications puts the chat transport in front of the extra
// notifiers registered with WithNotifier
func (a *App) initializeNotifications() error {
	var primary core.Notifier = notification.NewLog(a.log)

	if a.settings.Telegram.Enabled {
		telegram, err := notification.NewTelegram(a.commands, a.settings.Telegram, notification.WithLogger(a.log))
		if err != nil {
			return err
		}
		a.telegram = telegram
		primary = telegram
	}

	a.notifiers = append([]core.Notifier{primary}, a.notifiers...)
	return nil
}

// Commands returns the chat command handler
func (a *App) Commands() *command.Handler {
	return a.commands
}

// Monitor returns the monitor loop
func (a *App) Monitor() *monitor.Monitor {
	return a.monitor
}

// Store returns the shared watch store
func (a *App) Store() core.WatchStore {
	return a.store
}

// Run starts the bot and the monitor and blocks until ctx is done
func (a *App) Run(ctx context.Context) error {
	defer a.cache.Close()

	if a.telegram != nil {
		a.telegram.Start()
		defer a.telegram.Stop()
	}

	if err := a.monitor.Start(ctx); err != nil {
		return err
	}
	defer a.monitor.Stop()

	a.log.WithFields(map[string]any{
		"telegram":  a.telegram != nil,
		"notifiers": len(a.notifiers),
		"per_owner": a.settings.MaxWatchesPerOwner,
		"cache_ttl": a.cacheTTL.String(),
		"interval":  a.settings.Monitor.Interval.String(),
		"tolerance": a.settings.Monitor.Tolerance,
	}).Info("pricewatch running")

	<-ctx.Done()
	a.log.Info("shutting down")
	return nil
}
