package notification

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tb "gopkg.in/tucnak/telebot.v2"

	"github.com/raykavin/pricewatch/pkg/command"
	"github.com/raykavin/pricewatch/pkg/core"
	"github.com/raykavin/pricewatch/pkg/logger/zerolog"
)

// fakeBotAPI answers the few Bot API methods the bot uses
type fakeBotAPI struct {
	mu       sync.Mutex
	sent     []map[string]any
	commands int
	fail     bool
}

func (f *fakeBotAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	method := r.URL.Path[strings.LastIndexByte(r.URL.Path, '/')+1:]
	w.Header().Set("Content-Type", "application/json")

	switch method {
	case "getMe":
		_, _ = fmt.Fprint(w, `{"ok":true,"result":{"id":1,"is_bot":true,"first_name":"pricewatch","username":"pricewatch_bot"}}`)
	case "setMyCommands":
		f.commands++
		_, _ = fmt.Fprint(w, `{"ok":true,"result":true}`)
	case "sendMessage":
		if f.fail {
			_, _ = fmt.Fprint(w, `{"ok":false,"error_code":400,"description":"Bad Request: chat not found"}`)
			return
		}
		payload := make(map[string]any)
		_ = json.NewDecoder(r.Body).Decode(&payload)
		f.sent = append(f.sent, payload)
		_, _ = fmt.Fprintf(w, `{"ok":true,"result":{"message_id":%d,"date":0,"chat":{"id":99,"type":"private"},"text":"ok"}}`, len(f.sent))
	default:
		_, _ = fmt.Fprint(w, `{"ok":true,"result":[]}`)
	}
}

func (f *fakeBotAPI) Sent() []map[string]any {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]map[string]any(nil), f.sent...)
}

type fakeDispatcher struct {
	mu       sync.Mutex
	requests []command.Request
}

func (f *fakeDispatcher) Dispatch(_ context.Context, req command.Request) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, req)
	return "reply to " + req.Command
}

func newTestTelegram(t *testing.T, users ...int64) (*Telegram, *fakeBotAPI, *fakeDispatcher) {
	t.Helper()
	api := &fakeBotAPI{}
	server := httptest.NewServer(api)
	t.Cleanup(server.Close)

	dispatcher := &fakeDispatcher{}
	bot, err := NewTelegram(dispatcher, core.TelegramSettings{Enabled: true, Token: "123:abc", Users: users},
		WithAPIURL(server.URL))
	require.NoError(t, err)
	t.Cleanup(bot.Stop)

	return bot, api, dispatcher
}

func TestTelegram_New(t *testing.T) {
	_, api, _ := newTestTelegram(t)
	require.Equal(t, 1, api.commands)

	_, err := NewTelegram(&fakeDispatcher{}, core.TelegramSettings{Enabled: true})
	require.Error(t, err)
}

func TestTelegram_Notify(t *testing.T) {
	bot, api, _ := newTestTelegram(t)

	require.NoError(t, bot.Notify(context.Background(), "99", "*PRICE ALERT!*"))

	sent := api.Sent()
	require.Len(t, sent, 1)
	assert.Equal(t, "99", sent[0]["chat_id"])
	assert.Equal(t, "*PRICE ALERT!*", sent[0]["text"])
	assert.Equal(t, string(tb.ModeMarkdown), sent[0]["parse_mode"])
}

func TestTelegram_NotifyFailure(t *testing.T) {
	bot, api, _ := newTestTelegram(t)
	api.fail = true

	err := bot.Notify(context.Background(), "99", "hello")
	require.ErrorIs(t, err, core.ErrNotifier)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.ErrorIs(t, bot.Notify(ctx, "99", "hello"), context.Canceled)
}

func TestTelegram_Handle(t *testing.T) {
	bot, api, dispatcher := newTestTelegram(t)

	bot.handle(&tb.Message{
		Sender: &tb.User{ID: 42},
		Chat:   &tb.Chat{ID: 99, Type: tb.ChatPrivate},
		Text:   "/watch add bitcoin 50000",
	})

	require.Len(t, dispatcher.requests, 1)
	assert.Equal(t, command.Request{
		OwnerID:       "42",
		DestinationID: "99",
		Command:       "watch",
		Args:          []string{"add", "bitcoin", "50000"},
	}, dispatcher.requests[0])

	sent := api.Sent()
	require.Len(t, sent, 1)
	assert.Equal(t, "99", sent[0]["chat_id"])
	assert.Equal(t, "reply to watch", sent[0]["text"])

	// free text in a group is ignored
	bot.handleText(&tb.Message{
		Sender: &tb.User{ID: 42},
		Chat:   &tb.Chat{ID: -5, Type: tb.ChatGroup},
		Text:   "hello everyone",
	})
	require.Len(t, dispatcher.requests, 1)

	// a mistyped command in a group still gets an answer
	bot.handleText(&tb.Message{
		Sender: &tb.User{ID: 42},
		Chat:   &tb.Chat{ID: -5, Type: tb.ChatGroup},
		Text:   "/wacth add bitcoin 50000",
	})
	require.Len(t, dispatcher.requests, 2)
	assert.Equal(t, "wacth", dispatcher.requests[1].Command)
	assert.Equal(t, "-5", dispatcher.requests[1].DestinationID)
	require.Len(t, api.Sent(), 2)
}

func TestTelegram_Allowed(t *testing.T) {
	open := &Telegram{log: zerolog.Nop()}
	restricted := &Telegram{settings: core.TelegramSettings{Users: []int64{42}}, log: zerolog.Nop()}

	update := func(id int64) *tb.Update {
		return &tb.Update{Message: &tb.Message{Sender: &tb.User{ID: id}}}
	}

	assert.True(t, open.allowed(update(7)))
	assert.True(t, restricted.allowed(update(42)))
	assert.False(t, restricted.allowed(update(7)))
	assert.False(t, open.allowed(&tb.Update{}))
}
