package business

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/dapen17/vps1/internal/domain"
	"github.com/dapen17/vps1/internal/domain/automation/deps"
	"github.com/dapen17/vps1/internal/domain/automation/entities"
	automationerrors "github.com/dapen17/vps1/internal/domain/automation/errors"
	"github.com/dapen17/vps1/internal/domain/automation/scheduler"
	"github.com/dapen17/vps1/internal/domain/automation/store"
	"github.com/dapen17/vps1/internal/infrastructure/metrics"
	pkgerrors "github.com/dapen17/vps1/pkg/errors"
)

// memoryRepo keeps the document in memory and counts saves
type memoryRepo struct {
	mu    sync.Mutex
	doc   *entities.Document
	saves int
}

func (r *memoryRepo) Load(context.Context) (*entities.Document, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.doc == nil {
		return nil, deps.ErrStateNotFound
	}
	return r.doc, nil
}

func (r *memoryRepo) Save(_ context.Context, doc *entities.Document) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.doc = doc
	r.saves++
	return nil
}

func (r *memoryRepo) saveCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.saves
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []entities.Event
}

func (p *recordingPublisher) Publish(_ context.Context, event entities.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return nil
}

func (p *recordingPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.Type)
	}
	return out
}

type fakeMessenger struct {
	id    int64
	chats []domain.Chat

	mu      sync.Mutex
	sent    map[int64][]string
	replies []string
	read    []int64
	sendErr error
}

func newMessenger(id int64, chats ...domain.Chat) *fakeMessenger {
	return &fakeMessenger{id: id, chats: chats, sent: make(map[int64][]string)}
}

func (f *fakeMessenger) AccountID() int64 { return f.id }

func (f *fakeMessenger) SendMessage(_ context.Context, chatID int64, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return f.sendErr
	}
	f.sent[chatID] = append(f.sent[chatID], text)
	return nil
}

func (f *fakeMessenger) Reply(_ context.Context, _ int64, _ int, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.replies = append(f.replies, text)
	return nil
}

func (f *fakeMessenger) IterChats(_ context.Context, fn func(domain.Chat) error) error {
	for _, c := range f.chats {
		if err := fn(c); err != nil {
			return err
		}
	}
	return nil
}

func (f *fakeMessenger) MarkRead(_ context.Context, chatID int64, _ int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.read = append(f.read, chatID)
	return nil
}

func (f *fakeMessenger) sentCount(chatID int64) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent[chatID])
}

type fakeRegistry struct {
	messengers map[int64]domain.Messenger
}

func (r *fakeRegistry) ForEachActiveAccount(fn func(domain.Account, domain.Messenger)) {
	for id, m := range r.messengers {
		fn(domain.Account{ID: id, Connected: true}, m)
	}
}

func (r *fakeRegistry) Messenger(accountID int64) (domain.Messenger, bool) {
	m, ok := r.messengers[accountID]
	return m, ok
}

func (r *fakeRegistry) OwnerOf(int64) (int64, bool) { return 0, false }

type fixture struct {
	uc        *UseCase
	repo      *memoryRepo
	store     *store.Store
	runner    *scheduler.Runner
	publisher *recordingPublisher
}

func newFixture(t *testing.T, policy store.Policy) *fixture {
	t.Helper()
	repo := &memoryRepo{}
	st := store.New(repo, policy, zerolog.Nop())
	runner := scheduler.NewRunner(zerolog.Nop())
	publisher := &recordingPublisher{}

	uc := NewUseCase(st, runner, publisher, metrics.GetDefaultMetrics(), Config{
		MaxSlots:  10,
		Scheduler: scheduler.Config{MaxFloodWait: 20 * time.Millisecond, IntervalUnit: time.Millisecond},
	}, zerolog.Nop())

	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = runner.Shutdown(ctx)
	})

	return &fixture{uc: uc, repo: repo, store: st, runner: runner, publisher: publisher}
}

func TestUseCase_StartBroadcastScenario(t *testing.T) {
	f := newFixture(t, store.Policy{})
	ctx := context.Background()
	m := newMessenger(42, domain.Chat{ID: -1, IsGroup: true})

	slot, seconds, err := f.uc.StartBroadcast(ctx, m, 1, "10s", "hi")
	require.NoError(t, err)
	require.Equal(t, "group1", slot)
	require.Equal(t, 10, seconds)

	require.True(t, f.store.IsBroadcastRunning(42, "group1"))
	params, ok := f.store.GetBroadcastParams(42, "group1")
	require.True(t, ok)
	require.Equal(t, entities.BroadcastParams{Message: "hi", Interval: 10}, params)

	before := f.uc.Snapshot()
	saves := f.repo.saveCount()

	_, _, err = f.uc.StartBroadcast(ctx, m, 1, "10s", "hi")
	require.ErrorIs(t, err, automationerrors.ErrBroadcastRunning)
	require.True(t, pkgerrors.IsConflict(err))
	require.Empty(t, cmp.Diff(before, f.uc.Snapshot()))
	require.Equal(t, saves, f.repo.saveCount())
	require.Equal(t, 1, f.runner.Count())
}

func TestUseCase_StartBroadcastValidation(t *testing.T) {
	f := newFixture(t, store.Policy{})
	ctx := context.Background()
	m := newMessenger(42)

	_, _, err := f.uc.StartBroadcast(ctx, m, 0, "10s", "hi")
	require.ErrorIs(t, err, automationerrors.ErrSlotOutOfRange)

	_, _, err = f.uc.StartBroadcast(ctx, m, 11, "10s", "hi")
	require.ErrorIs(t, err, automationerrors.ErrSlotOutOfRange)

	_, _, err = f.uc.StartBroadcast(ctx, m, 1, "10x", "hi")
	require.ErrorIs(t, err, automationerrors.ErrInvalidInterval)

	_, _, err = f.uc.StartBroadcast(ctx, m, 1, "0s", "hi")
	require.ErrorIs(t, err, automationerrors.ErrNonPositiveInterval)

	_, _, err = f.uc.StartBroadcast(ctx, m, 1, "10s", "   ")
	require.ErrorIs(t, err, automationerrors.ErrEmptyMessage)

	require.Empty(t, f.uc.Snapshot().Broadcasts)
	require.Zero(t, f.repo.saveCount())
}

func TestUseCase_StopBroadcast(t *testing.T) {
	f := newFixture(t, store.Policy{})
	ctx := context.Background()
	m := newMessenger(42, domain.Chat{ID: -1, IsGroup: true})

	_, err := f.uc.StopBroadcast(ctx, 42, 2)
	require.ErrorIs(t, err, automationerrors.ErrBroadcastNotRunning)

	_, _, err = f.uc.StartBroadcast(ctx, m, 2, "1h", "hi")
	require.NoError(t, err)
	require.Eventually(t, func() bool { return m.sentCount(-1) == 1 }, time.Second, time.Millisecond)

	slot, err := f.uc.StopBroadcast(ctx, 42, 2)
	require.NoError(t, err)
	require.Equal(t, "group2", slot)
	require.Eventually(t, func() bool { return f.runner.Count() == 0 }, time.Second, time.Millisecond)
	require.Equal(t, 1, m.sentCount(-1))

	require.Equal(t, []string{entities.EventBroadcastStarted, entities.EventBroadcastStopped}, f.publisher.types())
}

func TestUseCase_ChatSpam(t *testing.T) {
	f := newFixture(t, store.Policy{})
	ctx := context.Background()
	m := newMessenger(42)

	seconds, err := f.uc.StartChatSpam(ctx, m, -100, "buy now", "1s")
	require.NoError(t, err)
	require.Equal(t, 1, seconds)

	_, err = f.uc.StartChatSpam(ctx, m, -100, "buy now", "1s")
	require.ErrorIs(t, err, automationerrors.ErrSpamAlreadyRunning)

	require.Eventually(t, func() bool { return m.sentCount(-100) >= 2 }, time.Second, time.Millisecond)

	require.NoError(t, f.uc.StopChatSpam(ctx, 42, -100))
	require.ErrorIs(t, f.uc.StopChatSpam(ctx, 42, -100), automationerrors.ErrSpamNotRunning)
	require.Eventually(t, func() bool { return f.runner.Count() == 0 }, time.Second, time.Millisecond)
}

func TestUseCase_ChatSpamFailureReported(t *testing.T) {
	f := newFixture(t, store.Policy{})
	ctx := context.Background()
	m := newMessenger(42)
	m.sendErr = errors.New("CHAT_WRITE_FORBIDDEN")
	f.uc.SetRegistry(&fakeRegistry{messengers: map[int64]domain.Messenger{42: m}})

	_, err := f.uc.StartChatSpam(ctx, m, -100, "x", "1s")
	require.NoError(t, err)

	require.Eventually(t, func() bool { return !f.store.IsChatSpamRunning(-100, 42) }, time.Second, time.Millisecond)
	require.Eventually(t, func() bool {
		types := f.publisher.types()
		return len(types) == 2 && types[1] == entities.EventSpamFailed
	}, time.Second, time.Millisecond)

	stored, err := f.repo.Load(ctx)
	require.NoError(t, err)
	require.False(t, stored.ActiveChatSpams[-100][42])
}

func TestUseCase_StopAllPersistsOnce(t *testing.T) {
	f := newFixture(t, store.Policy{})
	ctx := context.Background()
	m := newMessenger(42)

	_, _, err := f.uc.StartBroadcast(ctx, m, 1, "1h", "hi")
	require.NoError(t, err)
	_, _, err = f.uc.StartBroadcast(ctx, m, 3, "1h", "yo")
	require.NoError(t, err)
	_, err = f.uc.StartChatSpam(ctx, m, -100, "x", "1h")
	require.NoError(t, err)
	require.NoError(t, f.uc.SetAutoReply(ctx, 42, "away"))
	f.uc.AddToBlacklist(ctx, 42, -5)

	saves := f.repo.saveCount()
	result := f.uc.StopAll(ctx, 42)
	require.Equal(t, saves+1, f.repo.saveCount())

	require.Equal(t, []string{"group1", "group3"}, result.Broadcasts)
	require.Equal(t, []int64{-100}, result.ChatSpams)

	status := f.uc.Status(42)
	require.Empty(t, status.Broadcasts)
	require.Empty(t, status.ChatSpams)
	require.False(t, status.AutoReplyActive)
	require.Zero(t, status.BlacklistSize)
	require.Equal(t, "", f.store.GetAutoReply(42))

	require.Eventually(t, func() bool { return f.runner.Count() == 0 }, time.Second, time.Millisecond)
	require.Equal(t, saves+1, f.repo.saveCount())
}

func TestUseCase_Blacklist(t *testing.T) {
	f := newFixture(t, store.Policy{})
	ctx := context.Background()

	require.ErrorIs(t, f.uc.RemoveFromBlacklist(ctx, 42, -5), automationerrors.ErrNotBlacklisted)
	f.uc.AddToBlacklist(ctx, 42, -5)
	require.Equal(t, 1, f.uc.Status(42).BlacklistSize)
	require.NoError(t, f.uc.RemoveFromBlacklist(ctx, 42, -5))
	require.Zero(t, f.uc.Status(42).BlacklistSize)
}

func TestUseCase_AutoReply(t *testing.T) {
	f := newFixture(t, store.Policy{})
	ctx := context.Background()
	m := newMessenger(42)

	msg := domain.IncomingMessage{AccountID: 42, ChatID: 1001, MessageID: 7, SenderID: 1001, Text: "hey", Private: true}

	require.False(t, f.uc.AutoReply(ctx, m, msg))
	require.ErrorIs(t, f.uc.SetAutoReply(ctx, 42, "  "), automationerrors.ErrMissingReplyText)
	require.NoError(t, f.uc.SetAutoReply(ctx, 42, "I am away"))

	require.True(t, f.uc.AutoReply(ctx, m, msg))
	require.Equal(t, []string{"I am away"}, m.replies)
	require.Equal(t, []int64{1001}, m.read)

	out := msg
	out.Out = true
	require.False(t, f.uc.AutoReply(ctx, m, out))

	group := msg
	group.Private = false
	require.False(t, f.uc.AutoReply(ctx, m, group))
	require.Len(t, m.replies, 1)
}

func TestUseCase_OnAccountAttachedResumes(t *testing.T) {
	f := newFixture(t, store.Policy{})
	ctx := context.Background()
	m := newMessenger(42, domain.Chat{ID: -1, IsGroup: true})

	require.NoError(t, f.store.StartBroadcast(42, "group1", entities.BroadcastParams{Message: "hi", Interval: 3600}))
	require.NoError(t, f.store.StartChatSpam(-100, 42, entities.SpamParams{Message: "x", Interval: 3600}))
	f.store.SetBroadcastRunning(42, "group2", true)

	f.uc.OnAccountAttached(ctx, domain.Account{ID: 42}, m)

	require.Eventually(t, func() bool { return m.sentCount(-1) == 1 && m.sentCount(-100) == 1 }, time.Second, time.Millisecond)
	require.Equal(t, 2, f.runner.Count())
	require.False(t, f.store.IsBroadcastRunning(42, "group2"))
	require.Equal(t, 1, f.repo.saveCount())

	f.uc.OnAccountDetached(ctx, domain.Account{ID: 42})
	require.Eventually(t, func() bool { return f.runner.Count() == 0 }, time.Second, time.Millisecond)
	require.True(t, f.store.IsBroadcastRunning(42, "group1"))
	require.True(t, f.store.IsChatSpamRunning(-100, 42))
}
