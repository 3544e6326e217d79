// Package monitor runs the background loop that polls prices for every
// active watch, notifies the owners of the watches that fired and retires
// them.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/StudioSol/set"
	"github.com/jpillora/backoff"

	"github.com/raykavin/pricewatch/pkg/alert"
	"github.com/raykavin/pricewatch/pkg/core"
	"github.com/raykavin/pricewatch/pkg/logger"
	"github.com/raykavin/pricewatch/pkg/logger/zerolog"
)

// Status represents the lifecycle state of the monitor
type Status string

const (
	StatusIdle    Status = "idle"
	StatusRunning Status = "running"
	StatusStopped Status = "stopped"
)

var (
	ErrAlreadyStarted = errors.New("monitor already started")
	ErrStopped        = errors.New("monitor stopped")
)

// CycleReport summarizes one polling cycle
type CycleReport struct {
	Watches        int           // watches in the snapshot
	Assets         int           // distinct assets requested
	Priced         int           // assets the source returned a price for
	Triggered      int           // watches that reached their target
	Notified       int           // notifications delivered
	NotifyFailures int           // notifications that failed
	Retired        int           // watches removed after firing
	Duration       time.Duration // wall time of the cycle
}

// Monitor periodically evaluates every watch against fresh prices. Each
// triggered watch is notified at most once: it is retired whether or not the
// notification was delivered.
type Monitor struct {
	store    core.WatchStore
	source   core.PriceSource
	notifier core.Notifier
	settings core.MonitorSettings
	log      logger.Logger
	backoff  *backoff.Backoff

	mu     sync.Mutex
	status Status
	cancel context.CancelFunc
	done   chan struct{}

	cycles   int
	failures int
}

// Option configures a Monitor
type Option func(*Monitor)

// WithLogger sets the monitor logger
func WithLogger(log logger.Logger) Option {
	return func(m *Monitor) {
		m.log = log
	}
}

// New creates an idle monitor
func New(store core.WatchStore, source core.PriceSource, notifier core.Notifier,
	settings core.MonitorSettings, options ...Option) (*Monitor, error) {

	if store == nil || source == nil || notifier == nil {
		return nil, errors.New("monitor requires a store, a price source and a notifier")
	}

	if err := settings.Validate(); err != nil {
		return nil, err
	}

	m := &Monitor{
		store:    store,
		source:   source,
		notifier: notifier,
		settings: settings,
		log:      zerolog.Nop(),
		status:   StatusIdle,
		backoff: &backoff.Backoff{
			Min:    settings.ErrorBackoff,
			Max:    settings.ErrorBackoff,
			Factor: 1,
		},
	}

	for _, option := range options {
		option(m)
	}

	return m, nil
}

// Status returns the current monitor status
func (m *Monitor) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status
}

// Cycles returns how many cycles ran and how many of them failed
func (m *Monitor) Cycles() (total, failed int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cycles, m.failures
}

// Start launches the polling loop. The first cycle runs immediately. A
// monitor can only be started once.
func (m *Monitor) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch m.status {
	case StatusRunning:
		return ErrAlreadyStarted
	case StatusStopped:
		return ErrStopped
	}

	ctx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.done = make(chan struct{})
	m.status = StatusRunning

	go m.loop(ctx, m.done)

	m.log.WithFields(map[string]any{
		"interval":  m.settings.Interval.String(),
		"backoff":   m.settings.ErrorBackoff.String(),
		"tolerance": m.settings.Tolerance,
	}).Info("price monitor started")

	return nil
}

// Stop cancels the loop, aborting any in-flight request, and waits for it
// to exit. It is safe to call at any time and more than once.
func (m *Monitor) Stop() {
	m.mu.Lock()
	cancel, done := m.cancel, m.done
	wasRunning := m.status == StatusRunning
	m.status = StatusStopped
	m.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}

	if wasRunning {
		m.log.Info("price monitor stopped")
	}
}

func (m *Monitor) loop(ctx context.Context, done chan struct{}) {
	defer func() {
		m.mu.Lock()
		m.status = StatusStopped
		m.mu.Unlock()
		close(done)
	}()

	for ctx.Err() == nil {
		failed := m.safeCycle(ctx)

		timer := time.NewTimer(m.nextWait(failed))
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}

// nextWait returns the regular interval after a clean cycle and
// ErrorBackoff after every failed one
func (m *Monitor) nextWait(failed bool) time.Duration {
	if !failed {
		m.backoff.Reset()
		return m.settings.Interval
	}
	return m.backoff.Duration()
}

// safeCycle runs one cycle and contains any panic it raises
func (m *Monitor) safeCycle(ctx context.Context) (failed bool) {
	defer func() {
		if r := recover(); r != nil {
			m.log.WithFields(map[string]any{
				"panic": fmt.Sprint(r),
				"stack": string(debug.Stack()),
			}).Error("price monitor cycle panicked")
			failed = true
		}

		m.mu.Lock()
		m.cycles++
		if failed {
			m.failures++
		}
		m.mu.Unlock()
	}()

	report, err := m.RunCycle(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return false
		}
		m.log.WithError(err).Warn("price monitor cycle failed")
		return true
	}

	if report.Watches > 0 {
		m.log.WithFields(map[string]any{
			"watches":   report.Watches,
			"assets":    report.Assets,
			"priced":    report.Priced,
			"triggered": report.Triggered,
			"duration":  report.Duration.String(),
		}).Debug("price monitor cycle")
	}

	return false
}

// RunCycle performs one pass over the watch set: snapshot, one batched price
// request, evaluation, then notification and retirement of every triggered
// watch. Prices obtained before an upstream failure are still evaluated; the
// failure is returned once the cycle is complete.
func (m *Monitor) RunCycle(ctx context.Context) (CycleReport, error) {
	started := time.Now()
	var report CycleReport

	watches, err := m.store.ListAll()
	if err != nil {
		return report, fmt.Errorf("failed to list watches: %w", err)
	}

	report.Watches = len(watches)
	if len(watches) == 0 {
		report.Duration = time.Since(started)
		return report, nil
	}

	unique := set.NewLinkedHashSetString()
	for _, watch := range watches {
		unique.Add(watch.AssetID)
	}

	assets := make([]string, 0, len(watches))
	for asset := range unique.Iter() {
		assets = append(assets, asset)
	}
	report.Assets = len(assets)

	prices, fetchErr := m.source.FetchPrices(ctx, assets)
	report.Priced = len(prices)
	if fetchErr != nil {
		m.log.WithError(fetchErr).WithFields(map[string]any{
			"assets": len(assets),
			"priced": len(prices),
		}).Warn("price source returned an incomplete result")
	}

	triggers := alert.Evaluate(watches, prices, m.settings.Tolerance)
	report.Triggered = len(triggers)

	var storeErrs []error
	for _, trigger := range triggers {
		if ctx.Err() != nil {
			break
		}

		log := m.log.WithFields(map[string]any{
			"owner":  trigger.Watch.OwnerID,
			"asset":  trigger.Watch.AssetID,
			"target": trigger.Watch.TargetPrice,
			"price":  trigger.Price,
		})

		if err := m.notifier.Notify(ctx, trigger.Watch.DestinationID, alert.Message(trigger)); err != nil {
			report.NotifyFailures++
			log.WithError(err).Error("failed to deliver price alert")
		} else {
			report.Notified++
		}

		retired, err := m.store.Retire(trigger.Watch)
		if err != nil {
			storeErrs = append(storeErrs, fmt.Errorf("failed to retire watch %s: %w", trigger.Watch.ID, err))
			continue
		}
		if retired {
			report.Retired++
		}

		log.Info("price alert fired")
	}

	report.Duration = time.Since(started)
	return report, errors.Join(append([]error{fetchErr}, storeErrs...)...)
}
