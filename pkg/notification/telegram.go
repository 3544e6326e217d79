// Package notification provides core.Notifier implementations: a Telegram
// bot, an e-mail copy for the operator, a log sink and a fan-out.
package notification

import (
	"context"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	tb "gopkg.in/tucnak/telebot.v2"

	"github.com/raykavin/pricewatch/pkg/command"
	"github.com/raykavin/pricewatch/pkg/core"
	"github.com/raykavin/pricewatch/pkg/logger"
	"github.com/raykavin/pricewatch/pkg/logger/zerolog"
)

// Dispatcher answers a chat command, see command.Handler
type Dispatcher interface {
	Dispatch(ctx context.Context, req command.Request) string
}

// commandTimeout bounds how long a single chat command may take
const commandTimeout = 30 * time.Second

// botCommands are registered with Telegram and routed to the dispatcher
var botCommands = []tb.Command{
	{Text: "/watch", Description: "add | list | remove | clear your watches"},
	{Text: "/snipe", Description: "Set a price alert: /snipe TOKEN PRICE"},
	{Text: "/list", Description: "Show your active watches"},
	{Text: "/remove", Description: "Remove a watch: /remove TOKEN"},
	{Text: "/clear", Description: "Remove all your watches"},
	{Text: "/stats", Description: "Monitor statistics"},
	{Text: "/start", Description: "Welcome message"},
	{Text: "/help", Description: "Display help instructions"},
}

// chatRecipient addresses a chat by id or @username
type chatRecipient string

func (c chatRecipient) Recipient() string {
	return string(c)
}

// Telegram implements core.NotifierWithStart on top of a long polling bot
type Telegram struct {
	settings   core.TelegramSettings
	dispatcher Dispatcher
	client     *tb.Bot
	apiURL     string
	poll       time.Duration
	log        logger.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	running bool
}

var _ core.NotifierWithStart = (*Telegram)(nil)

// Option is a function that configures a Telegram instance
type Option func(*Telegram)

// WithLogger sets the bot logger
func WithLogger(log logger.Logger) Option {
	return func(t *Telegram) {
		t.log = log
	}
}

// WithAPIURL points the bot at another Bot API server
func WithAPIURL(url string) Option {
	return func(t *Telegram) {
		t.apiURL = url
	}
}

// WithPollTimeout sets the long polling timeout
func WithPollTimeout(timeout time.Duration) Option {
	return func(t *Telegram) {
		t.poll = timeout
	}
}

// NewTelegram creates the bot, registers the command menu and routes every
// command to dispatcher
func NewTelegram(dispatcher Dispatcher, settings core.TelegramSettings, options ...Option) (*Telegram, error) {
	if settings.Token == "" {
		return nil, fmt.Errorf("telegram token is required")
	}

	bot := &Telegram{
		settings:   settings,
		dispatcher: dispatcher,
		poll:       10 * time.Second,
		log:        zerolog.Nop(),
	}

	for _, option := range options {
		option(bot)
	}

	bot.ctx, bot.cancel = context.WithCancel(context.Background())

	client, err := tb.NewBot(tb.Settings{
		URL:       bot.apiURL,
		ParseMode: tb.ModeMarkdown,
		Token:     settings.Token,
		Poller:    tb.NewMiddlewarePoller(&tb.LongPoller{Timeout: bot.poll}, bot.allowed),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create telegram bot: %w", err)
	}

	if err := client.SetCommands(botCommands); err != nil {
		return nil, fmt.Errorf("failed to set commands: %w", err)
	}

	bot.client = client
	for _, cmd := range botCommands {
		client.Handle(cmd.Text, bot.handle)
	}
	client.Handle(tb.OnText, bot.handleText)

	return bot, nil
}

// allowed filters updates through the user allowlist. An empty allowlist
// lets everybody in.
func (t *Telegram) allowed(u *tb.Update) bool {
	if u.Message == nil || u.Message.Sender == nil {
		return false
	}

	if len(t.settings.Users) == 0 || slices.Contains(t.settings.Users, u.Message.Sender.ID) {
		return true
	}

	t.log.WithField("user", u.Message.Sender.ID).Warn("unauthorized telegram user")
	return false
}

// request maps a message onto a command request: the sender owns the
// watch and the chat receives the alerts
func request(m *tb.Message) command.Request {
	return command.ParseRequest(
		strconv.FormatInt(m.Sender.ID, 10),
		strconv.FormatInt(m.Chat.ID, 10),
		m.Text,
	)
}

func (t *Telegram) handle(m *tb.Message) {
	if m.Sender == nil || m.Chat == nil {
		return
	}

	ctx, cancel := context.WithTimeout(t.ctx, commandTimeout)
	defer cancel()

	reply := t.dispatcher.Dispatch(ctx, request(m))
	t.sendMessage(m.Chat, reply)
}

// handleText receives every message no registered command matched. Private
// chats always get an answer; in groups only mistyped commands do, plain
// conversation is left alone.
func (t *Telegram) handleText(m *tb.Message) {
	if !m.Private() && !strings.HasPrefix(strings.TrimSpace(m.Text), "/") {
		return
	}
	t.handle(m)
}

// Start begins polling for updates
func (t *Telegram) Start() {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.running {
		return
	}
	t.running = true

	go t.client.Start()
	t.log.Info("telegram bot started")
}

// Stop stops polling and aborts the commands in flight
func (t *Telegram) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.cancel()
	if !t.running {
		return
	}
	t.running = false

	t.client.Stop()
	t.log.Info("telegram bot stopped")
}

// Notify implements core.Notifier by sending text to the chat destinationID
func (t *Telegram) Notify(ctx context.Context, destinationID, text string) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %w", core.ErrNotifier, err)
	}

	if _, err := t.client.Send(chatRecipient(destinationID), text); err != nil {
		return fmt.Errorf("%w: telegram send to %s: %w", core.ErrNotifier, destinationID, err)
	}

	return nil
}

// sendMessage replies to a chat, logging failures
func (t *Telegram) sendMessage(to tb.Recipient, text string, options ...interface{}) {
	if _, err := t.client.Send(to, text, options...); err != nil {
		t.log.WithError(err).Error("failed to send message")
	}
}
