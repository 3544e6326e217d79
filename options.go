package pricewatch

import (
	"time"

	"github.com/raykavin/pricewatch/pkg/core"
	"github.com/raykavin/pricewatch/pkg/logger"
)

// Option is a functional option for configuring an App
type Option func(*App)

// WithStorage sets the watch store, by default watches are kept in memory
func WithStorage(store core.WatchStore) Option {
	return func(app *App) {
		app.store = store
	}
}

// WithNotifier registers an extra notifier that receives every alert, e.g. the operator mail copy
func WithNotifier(notifier core.Notifier) Option {
	return func(app *App) {
		app.notifiers = append(app.notifiers, notifier)
	}
}

// WithLogger replaces DefaultLog for this app
func WithLogger(log logger.Logger) Option {
	return func(app *App) {
		app.log = log
	}
}

// WithCacheTTL sets how long chat commands reuse a fetched price
func WithCacheTTL(ttl time.Duration) Option {
	return func(app *App) {
		app.cacheTTL = ttl
	}
}
