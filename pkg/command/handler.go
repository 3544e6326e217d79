// Package command implements the chat commands users manage their watches
// with. It is transport agnostic: every command takes a Request and returns
// the Markdown reply to send back.
package command

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/samber/lo"
	"github.com/shopspring/decimal"

	"github.com/raykavin/pricewatch/pkg/alert"
	"github.com/raykavin/pricewatch/pkg/core"
	"github.com/raykavin/pricewatch/pkg/logger"
	"github.com/raykavin/pricewatch/pkg/logger/zerolog"
)

// Request is one inbound command
type Request struct {
	OwnerID       string   // who issued the command
	DestinationID string   // conversation the alerts go to
	Command       string   // command name without the leading slash
	Args          []string // whitespace separated arguments
}

// ParseRequest splits a raw chat line such as "/watch@pricebot add btc 1" into a Request
func ParseRequest(ownerID, destinationID, text string) Request {
	fields := strings.Fields(text)
	request := Request{OwnerID: ownerID, DestinationID: destinationID}
	if len(fields) == 0 {
		return request
	}

	name := strings.TrimPrefix(fields[0], "/")
	if at := strings.IndexByte(name, '@'); at >= 0 {
		name = name[:at]
	}

	request.Command = strings.ToLower(name)
	request.Args = fields[1:]
	return request
}

// ValidationError is a rejected command. Its reply explains what was wrong
// and how to use the command.
type ValidationError struct {
	Reason string
	Usage  string
}

func (e *ValidationError) Error() string {
	return e.Reason
}

// Reply renders the error for the user
func (e *ValidationError) Reply() string {
	if e.Usage == "" {
		return "❌ " + e.Reason
	}
	return "❌ " + e.Reason + "\n\n" + e.Usage
}

const (
	usageAdd = "*Usage:* `/watch add TOKEN PRICE`\n\n" +
		"*Examples:*\n" +
		"• `/watch add bitcoin 50000`\n" +
		"• `/watch add ethereum 3000`\n" +
		"• `/snipe cardano 1.5`"
	usageRemove = "*Usage:* `/watch remove TOKEN`\n\n*Example:* `/watch remove bitcoin`"
	usageWatch  = "*Usage:* `/watch add|list|remove|clear`"
)

// Handler executes the commands against the watch store. Lookups go through
// the given price source, normally a pricing.Cache.
type Handler struct {
	store    core.WatchStore
	source   core.PriceSource
	interval time.Duration
	log      logger.Logger
}

// Option configures a Handler
type Option func(*Handler)

// WithLogger sets the handler logger
func WithLogger(log logger.Logger) Option {
	return func(h *Handler) {
		h.log = log
	}
}

// WithCheckInterval sets the polling interval advertised by the help text
func WithCheckInterval(interval time.Duration) Option {
	return func(h *Handler) {
		h.interval = interval
	}
}

// NewHandler creates a command handler
func NewHandler(store core.WatchStore, source core.PriceSource, options ...Option) *Handler {
	h := &Handler{
		store:    store,
		source:   source,
		interval: core.DefaultInterval,
		log:      zerolog.Nop(),
	}

	for _, option := range options {
		option(h)
	}

	return h
}

// Dispatch routes a request to its command. Unknown commands get the help text.
func (h *Handler) Dispatch(ctx context.Context, req Request) string {
	switch req.Command {
	case "watch":
		if len(req.Args) == 0 {
			return (&ValidationError{Reason: "Missing sub-command.", Usage: usageWatch}).Reply()
		}

		sub := req
		sub.Args = req.Args[1:]
		switch strings.ToLower(req.Args[0]) {
		case "add":
			return h.Add(ctx, sub)
		case "list", "ls":
			return h.List(ctx, sub)
		case "remove", "rm", "del":
			return h.Remove(ctx, sub)
		case "clear":
			return h.Clear(ctx, sub)
		}

		return (&ValidationError{Reason: fmt.Sprintf("Unknown sub-command %q.", req.Args[0]), Usage: usageWatch}).Reply()
	case "snipe", "add":
		return h.Add(ctx, req)
	case "list":
		return h.List(ctx, req)
	case "remove":
		return h.Remove(ctx, req)
	case "clear":
		return h.Clear(ctx, req)
	case "stats":
		return h.Stats(ctx, req)
	case "start":
		return h.Start()
	case "help":
		return h.Help()
	}

	return "❓ I don't know that command.\n\n" + h.Help()
}

// parseTarget reads a target price. A leading "$" and thousands separators
// are accepted.
func parseTarget(raw string) (float64, error) {
	cleaned := strings.ReplaceAll(strings.TrimPrefix(strings.TrimSpace(raw), "$"), ",", "")

	value, err := decimal.NewFromString(cleaned)
	if err != nil {
		return 0, &ValidationError{Reason: "Invalid price format. Please enter a valid number.", Usage: usageAdd}
	}

	if !value.IsPositive() {
		return 0, &ValidationError{Reason: "Price must be greater than 0."}
	}

	target := value.InexactFloat64()
	if math.IsInf(target, 0) || target == 0 {
		return 0, &ValidationError{Reason: "Price is out of range."}
	}

	return target, nil
}

// Add registers a watch: `/watch add TOKEN PRICE`
func (h *Handler) Add(ctx context.Context, req Request) string {
	if len(req.Args) != 2 {
		return (&ValidationError{Reason: "Wrong number of arguments.", Usage: usageAdd}).Reply()
	}

	asset := core.NormalizeAsset(h.source, req.Args[0])
	target, err := parseTarget(req.Args[1])
	if err != nil {
		return replyError(err)
	}

	// reject duplicates before the upstream lookup
	existing, err := h.store.ListFor(req.OwnerID)
	if err != nil {
		return h.internalError(err, "failed to list watches")
	}
	if lo.ContainsBy(existing, func(w core.Watch) bool { return w.AssetID == asset }) {
		return duplicateReply(asset)
	}

	watch, err := core.NewWatch(req.OwnerID, req.DestinationID, asset, target)
	if err != nil {
		return (&ValidationError{Reason: strings.TrimPrefix(err.Error(), core.ErrInvalidWatch.Error()+": "), Usage: usageAdd}).Reply()
	}

	prices, fetchErr := h.source.FetchPrices(ctx, []string{asset})
	current, ok := prices.Lookup(asset)
	if !ok {
		if fetchErr != nil {
			h.log.WithError(fetchErr).WithField("asset", asset).Warn("price lookup failed")
			return "⚠️ The price source is not answering right now. Please try again in a minute."
		}
		return fmt.Sprintf("❌ Token `%s` not found.\nPlease use the exact token id (e.g. `bitcoin`, `ethereum`, `cardano`).", asset)
	}

	if err := h.store.Add(watch); err != nil {
		switch {
		case errors.Is(err, core.ErrDuplicateWatch):
			return duplicateReply(asset)
		case errors.Is(err, core.ErrWatchLimit):
			return "⚠️ You reached the maximum number of active watches.\nUse `/watch remove TOKEN` to free a slot first."
		}
		return h.internalError(err, "failed to add watch")
	}

	h.log.WithFields(map[string]any{
		"owner":  req.OwnerID,
		"asset":  asset,
		"target": target,
	}).Info("watch added")

	direction := "📉 below"
	if target > current {
		direction = "📈 above"
	}

	symbol := alert.EscapeMarkdown(strings.ToUpper(asset))
	return fmt.Sprintf("🎯 *Watch Added!*\n\n"+
		"*Token:* %s\n"+
		"*Current Price:* %s\n"+
		"*Target Price:* %s\n"+
		"*Target is:* %s the current price\n\n"+
		"I'll notify you when %s reaches %s! 🚀",
		symbol, alert.FormatUSD(current), alert.FormatUSD(target), direction, symbol, alert.FormatUSD(target))
}

// List shows the caller's watches with their current distance to the target
func (h *Handler) List(ctx context.Context, req Request) string {
	watches, err := h.store.ListFor(req.OwnerID)
	if err != nil {
		return h.internalError(err, "failed to list watches")
	}

	if len(watches) == 0 {
		return "📭 *No Active Watches*\n\nUse `/watch add TOKEN PRICE` to set up your first price alert!"
	}

	assets := lo.Uniq(lo.Map(watches, func(w core.Watch, _ int) string { return w.AssetID }))
	prices, err := h.source.FetchPrices(ctx, assets)
	if err != nil {
		h.log.WithError(err).Debug("some prices unavailable for list")
	}

	var sb strings.Builder
	sb.WriteString("📊 *Your Active Watches:*\n\n")

	for _, watch := range watches {
		symbol := alert.EscapeMarkdown(strings.ToUpper(watch.AssetID))
		current, ok := prices.Lookup(watch.AssetID)
		if !ok {
			fmt.Fprintf(&sb, "*%s*\nTarget: %s\nStatus: ⚠️ Price unavailable\n\n", symbol, alert.FormatUSD(watch.TargetPrice))
			continue
		}

		trigger := core.Trigger{Watch: watch, Price: current}
		arrow := "📉"
		if trigger.Direction() == core.DirectionAbove {
			arrow = "📈"
		}

		fmt.Fprintf(&sb, "*%s*\nCurrent: %s\nTarget: %s\nDifference: %s %.1f%%\n\n",
			symbol, alert.FormatUSD(current), alert.FormatUSD(watch.TargetPrice), arrow, math.Abs(trigger.Difference()))
	}

	sb.WriteString("Use `/watch remove TOKEN` to remove a watch.")
	return sb.String()
}

// Remove deletes one of the caller's watches
func (h *Handler) Remove(_ context.Context, req Request) string {
	if len(req.Args) != 1 {
		return (&ValidationError{Reason: "Wrong number of arguments.", Usage: usageRemove}).Reply()
	}

	asset := core.NormalizeAsset(h.source, req.Args[0])
	removed, err := h.store.Remove(req.OwnerID, asset)
	if err != nil {
		return h.internalError(err, "failed to remove watch")
	}

	symbol := alert.EscapeMarkdown(strings.ToUpper(asset))
	if !removed {
		return fmt.Sprintf("❌ No active watch found for %s.\nUse `/watch list` to see your active watches.", symbol)
	}

	h.log.WithFields(map[string]any{"owner": req.OwnerID, "asset": asset}).Info("watch removed")
	return fmt.Sprintf("✅ *Watch Removed*\n\nNo longer watching %s for price alerts.", symbol)
}

// Clear deletes every watch of the caller
func (h *Handler) Clear(_ context.Context, req Request) string {
	removed, err := h.store.ClearFor(req.OwnerID)
	if err != nil {
		return h.internalError(err, "failed to clear watches")
	}

	if removed == 0 {
		return "📭 You have no active watches."
	}

	h.log.WithFields(map[string]any{"owner": req.OwnerID, "removed": removed}).Info("watches cleared")
	return fmt.Sprintf("🧹 Removed %d watch(es).", removed)
}

// Stats renders the store totals as a table
func (h *Handler) Stats(_ context.Context, _ Request) string {
	stats, err := h.store.Stats()
	if err != nil {
		return h.internalError(err, "failed to read stats")
	}

	tableString := &strings.Builder{}
	table := tablewriter.NewWriter(tableString)
	table.AppendBulk([][]string{
		{"Watches", fmt.Sprint(stats.Watches)},
		{"Users", fmt.Sprint(stats.Owners)},
		{"Tokens", fmt.Sprint(stats.Assets)},
		{"Check every", humanInterval(h.interval)},
	})
	table.SetColumnAlignment([]int{tablewriter.ALIGN_LEFT, tablewriter.ALIGN_RIGHT})
	table.Render()

	return "📈 *Monitor Stats*\n```\n" + tableString.String() + "```"
}

// Start is the welcome message
func (h *Handler) Start() string {
	return "🟢 *Price watch bot* is ready!\n\n" +
		"🎯 *Commands:*\n" +
		"• `/watch add TOKEN PRICE` - Set a price alert for a token\n" +
		"• `/watch list` - Show your active watches\n" +
		"• `/watch remove TOKEN` - Remove a watch\n" +
		"• `/help` - Show detailed help\n\n" +
		"*Example:*\n" +
		"`/watch add bitcoin 50000` - Alert when Bitcoin reaches $50,000"
}

// Help is the detailed command reference
func (h *Handler) Help() string {
	return "🤖 *Help*\n\n" +
		"*Commands:*\n" +
		"• `/start` - Welcome message\n" +
		"• `/watch add TOKEN PRICE` - Set a price alert (alias `/snipe`)\n" +
		"• `/watch list` - Show your active watches (alias `/list`)\n" +
		"• `/watch remove TOKEN` - Remove a watch (alias `/remove`)\n" +
		"• `/watch clear` - Remove all your watches (alias `/clear`)\n" +
		"• `/stats` - Monitor statistics\n" +
		"• `/help` - Show this message\n\n" +
		"*Notes:*\n" +
		"• Prices are checked every " + humanInterval(h.interval) + "\n" +
		"• An alert fires once when the price gets close to the target, then the watch is removed\n" +
		"• One watch per token; remove it to change the target"
}

func (h *Handler) internalError(err error, message string) string {
	h.log.WithError(err).Error(message)
	return "❌ An error occurred. Please try again."
}

func replyError(err error) string {
	var validation *ValidationError
	if errors.As(err, &validation) {
		return validation.Reply()
	}
	return "❌ " + err.Error()
}

func duplicateReply(asset string) string {
	return fmt.Sprintf("⚠️ You already have a watch for %s.\nUse `/watch remove %s` to remove the existing watch first.",
		alert.EscapeMarkdown(strings.ToUpper(asset)), asset)
}

func humanInterval(interval time.Duration) string {
	switch {
	case interval >= time.Minute && interval%time.Minute == 0:
		minutes := int(interval / time.Minute)
		if minutes == 1 {
			return "minute"
		}
		return fmt.Sprintf("%d minutes", minutes)
	case interval >= time.Second && interval%time.Second == 0:
		return fmt.Sprintf("%d seconds", int(interval/time.Second))
	}
	return interval.String()
}
