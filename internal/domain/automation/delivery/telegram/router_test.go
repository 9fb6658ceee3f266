package telegram

import (
	"context"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/dapen17/vps1/config"
	"github.com/dapen17/vps1/internal/domain"
	"github.com/dapen17/vps1/internal/domain/automation/repository/file"
	"github.com/dapen17/vps1/internal/domain/automation/scheduler"
	"github.com/dapen17/vps1/internal/domain/automation/store"
	"github.com/dapen17/vps1/internal/domain/automation/usecase/business"
	"github.com/dapen17/vps1/internal/infrastructure/metrics"
)

const (
	accountID = int64(42)
	ownerID   = int64(1001)
)

type reply struct {
	chatID int64
	text   string
}

type fakeMessenger struct {
	mu      sync.Mutex
	replies []reply
	sent    []int64
	read    []int64
}

func (f *fakeMessenger) AccountID() int64 { return accountID }

func (f *fakeMessenger) SendMessage(_ context.Context, chatID int64, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, chatID)
	return nil
}

func (f *fakeMessenger) Reply(_ context.Context, chatID int64, _ int, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.replies = append(f.replies, reply{chatID: chatID, text: text})
	return nil
}

func (f *fakeMessenger) IterChats(context.Context, func(domain.Chat) error) error { return nil }

func (f *fakeMessenger) MarkRead(_ context.Context, chatID int64, _ int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.read = append(f.read, chatID)
	return nil
}

func (f *fakeMessenger) lastReply(t *testing.T) string {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	require.NotEmpty(t, f.replies)
	return f.replies[len(f.replies)-1].text
}

func (f *fakeMessenger) replyCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.replies)
}

type fakeRegistry struct {
	m *fakeMessenger
}

func (r *fakeRegistry) ForEachActiveAccount(fn func(domain.Account, domain.Messenger)) {
	fn(domain.Account{ID: accountID, OwnerID: ownerID, Connected: true}, r.m)
}

func (r *fakeRegistry) Messenger(id int64) (domain.Messenger, bool) {
	if id != accountID {
		return nil, false
	}
	return r.m, true
}

func (r *fakeRegistry) OwnerOf(id int64) (int64, bool) {
	if id != accountID {
		return 0, false
	}
	return ownerID, true
}

type fixture struct {
	router *Router
	m      *fakeMessenger
	store  *store.Store
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	st := store.New(file.NewRepository(filepath.Join(t.TempDir(), "bot_state.json"), zerolog.Nop()), store.Policy{}, zerolog.Nop())
	runner := scheduler.NewRunner(zerolog.Nop())
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = runner.Shutdown(ctx)
	})

	uc := business.NewUseCase(st, runner, nil, metrics.GetDefaultMetrics(), business.Config{
		MaxSlots:  10,
		Scheduler: scheduler.Config{IntervalUnit: time.Millisecond},
	}, zerolog.Nop())

	cfg := &config.AutomationConfig{CommandPrefix: "cloe"}
	m := &fakeMessenger{}
	registry := &fakeRegistry{m: m}
	uc.SetRegistry(registry)

	handlers := NewHandlers(uc, cfg, metrics.GetDefaultMetrics(), zerolog.Nop())
	return &fixture{router: NewRouter(handlers, registry, cfg, zerolog.Nop()), m: m, store: st}
}

func (f *fixture) send(t *testing.T, text string) string {
	t.Helper()
	return f.sendMsg(t, domain.IncomingMessage{AccountID: accountID, ChatID: -100, MessageID: 1, Text: text, Out: true})
}

func (f *fixture) sendMsg(t *testing.T, msg domain.IncomingMessage) string {
	t.Helper()
	before := f.m.replyCount()
	require.NoError(t, f.router.HandleMessage(context.Background(), msg))
	if f.m.replyCount() == before {
		return ""
	}
	return f.m.lastReply(t)
}

func TestRouter_BroadcastSlotScenario(t *testing.T) {
	f := newFixture(t)

	got := f.send(t, "cloe bcstargr1 10s hi")
	require.Contains(t, got, "group1")
	require.True(t, f.store.IsBroadcastRunning(accountID, "group1"))

	got = f.send(t, "cloe bcstargr1 10s hi")
	require.Contains(t, got, "already running")

	got = f.send(t, "cloe stopbcstargr1")
	require.Contains(t, got, "stopped")
	require.False(t, f.store.IsBroadcastRunning(accountID, "group1"))

	got = f.send(t, "cloe stopbcstargr1")
	require.Contains(t, got, "not running")
}

func TestRouter_BroadcastSlotValidation(t *testing.T) {
	f := newFixture(t)

	require.Contains(t, f.send(t, "cloe bcstargr11 10s hi"), "out of range")
	require.Contains(t, f.send(t, "cloe bcstargr0 10s hi"), "out of range")
	require.Contains(t, f.send(t, "cloe bcstargr99999999999999999999 10s hi"), "out of range")
	require.Contains(t, f.send(t, "cloe bcstargr1 10 hi"), "Invalid interval")
	require.Contains(t, f.send(t, "cloe bcstargr1 0m hi"), "greater than zero")
	require.Empty(t, f.store.RunningBroadcasts(accountID))
}

func TestRouter_MultiLineBroadcastMessage(t *testing.T) {
	f := newFixture(t)

	f.send(t, "cloe bcstargr2 5m\nline one\nline two")
	params, ok := f.store.GetBroadcastParams(accountID, "group2")
	require.True(t, ok)
	require.Equal(t, "line one\nline two", params.Message)
	require.Equal(t, 300, params.Interval)
}

func TestRouter_Hastle(t *testing.T) {
	f := newFixture(t)

	got := f.send(t, "cloe hastle buy my stuff 1h")
	require.Contains(t, got, "3600 seconds")
	params, ok := f.store.GetChatSpamParams(-100, accountID)
	require.True(t, ok)
	require.Equal(t, "buy my stuff", params.Message)

	require.Contains(t, f.send(t, "cloe hastle again 1h"), "already running")
	require.Contains(t, f.send(t, "cloe stop"), "stopped")
	require.Contains(t, f.send(t, "cloe stop"), "No spam is running")
	require.Contains(t, f.send(t, "cloe hastle oops 5x"), "Invalid interval")
}

func TestRouter_BlacklistAndStatus(t *testing.T) {
	f := newFixture(t)

	require.Contains(t, f.send(t, "cloe unbl"), "not in the blacklist")
	require.Contains(t, f.send(t, "cloe bl"), "added")
	require.True(t, f.store.IsBlacklisted(accountID, -100))
	require.Contains(t, f.send(t, "cloe status"), "Blacklisted chats: 1")
	require.Contains(t, f.send(t, "cloe unbl"), "removed")
}

func TestRouter_SetReplyAndAutoReply(t *testing.T) {
	f := newFixture(t)

	require.Contains(t, f.send(t, "cloe setreply"), "line after the command")
	require.Contains(t, f.send(t, "cloe setreply\nBack soon\nthanks"), "saved")
	require.Equal(t, "Back soon\nthanks", f.store.GetAutoReply(accountID))

	got := f.sendMsg(t, domain.IncomingMessage{AccountID: accountID, ChatID: 555, SenderID: 555, MessageID: 9, Text: "hello", Private: true})
	require.Equal(t, "Back soon\nthanks", got)
	require.Equal(t, []int64{555}, f.m.read)

	// a group message gets no auto-reply
	require.Empty(t, f.sendMsg(t, domain.IncomingMessage{AccountID: accountID, ChatID: -7, SenderID: 555, Text: "hello"}))
}

func TestRouter_StopAll(t *testing.T) {
	f := newFixture(t)

	f.send(t, "cloe bcstargr1 1h a")
	f.send(t, "cloe bcstargr2 1h b")
	f.send(t, "cloe hastle x 1h")
	f.send(t, "cloe setreply\nbrb")
	f.send(t, "cloe bl")

	got := f.send(t, "cloe stopall")
	require.Contains(t, got, "2 broadcasts, 1 spams")
	require.Empty(t, f.store.RunningBroadcasts(accountID))
	require.Empty(t, f.store.RunningChatSpams(accountID))
	require.Equal(t, "", f.store.GetAutoReply(accountID))
	require.False(t, f.store.IsBlacklisted(accountID, -100))
}

func TestRouter_Authorization(t *testing.T) {
	f := newFixture(t)

	// the owner may command the account from another chat
	got := f.sendMsg(t, domain.IncomingMessage{AccountID: accountID, ChatID: -100, SenderID: ownerID, Text: "cloe ping"})
	require.Contains(t, got, "Pong")

	// strangers are ignored
	got = f.sendMsg(t, domain.IncomingMessage{AccountID: accountID, ChatID: -100, SenderID: 777, Text: "cloe bcstargr1 10s hi"})
	require.Empty(t, got)
	require.False(t, f.store.IsBroadcastRunning(accountID, "group1"))

	// unknown accounts are ignored
	require.NoError(t, f.router.HandleMessage(context.Background(), domain.IncomingMessage{AccountID: 9, Text: "cloe ping", Out: true}))
}

func TestRouter_PrefixAndUnknownCommands(t *testing.T) {
	f := newFixture(t)

	require.Empty(t, f.send(t, "other ping"))
	require.Empty(t, f.send(t, "cloe dance"))
	require.Empty(t, f.send(t, "cloe pingpong"))

	help := f.send(t, "cloe help")
	require.True(t, strings.HasPrefix(help, "📖 Commands"))
	require.Contains(t, help, "cloe bcstargr<N>")
	require.Contains(t, help, "N = 1..10")
}
