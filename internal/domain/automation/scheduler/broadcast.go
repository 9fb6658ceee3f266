package scheduler

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/dapen17/vps1/internal/domain"
	automationerrors "github.com/dapen17/vps1/internal/domain/automation/errors"
)

var errStopped = errors.New("broadcast stopped")

// BroadcastScheduler drives one loop per running (account, slot)
type BroadcastScheduler struct {
	runner   *Runner
	state    BroadcastState
	reporter Reporter
	cfg      Config
	logger   zerolog.Logger
}

// NewBroadcastScheduler creates a broadcast scheduler
func NewBroadcastScheduler(runner *Runner, state BroadcastState, reporter Reporter, cfg Config, logger zerolog.Logger) *BroadcastScheduler {
	return &BroadcastScheduler{
		runner:   runner,
		state:    state,
		reporter: reporter,
		cfg:      cfg.withDefaults(),
		logger:   logger.With().Str("component", "broadcast_scheduler").Logger(),
	}
}

// Start runs the slot loop for m unless one is already alive.
// The slot's running flag and params must already be stored.
func (s *BroadcastScheduler) Start(m domain.Messenger, slot string) bool {
	accountID := m.AccountID()
	return s.runner.Ensure(BroadcastKey(accountID, slot), func(ctx context.Context, t *Task) {
		s.loop(ctx, t, m, slot)
	})
}

// Wake makes a sleeping slot loop re-check its flag now
func (s *BroadcastScheduler) Wake(accountID int64, slot string) {
	s.runner.Wake(BroadcastKey(accountID, slot))
}

// Running reports whether a loop is alive for the slot
func (s *BroadcastScheduler) Running(accountID int64, slot string) bool {
	return s.runner.Running(BroadcastKey(accountID, slot))
}

func (s *BroadcastScheduler) loop(ctx context.Context, t *Task, m domain.Messenger, slot string) {
	accountID := m.AccountID()
	logger := s.logger.With().Int64("account_id", accountID).Str("slot", slot).Logger()
	logger.Info().Msg("Broadcast loop started")
	defer logger.Info().Msg("Broadcast loop finished")

	running := func() bool { return s.state.IsBroadcastRunning(accountID, slot) }

	for t.Continue(running) {
		params, ok := s.state.GetBroadcastParams(accountID, slot)
		if !ok || params.Interval <= 0 || params.Message == "" {
			if !running() {
				continue
			}
			s.state.SetBroadcastRunning(accountID, slot, false)
			s.reporter.BroadcastAborted(ctx, accountID, slot, automationerrors.ErrMissingScheduleParams)
			continue
		}

		stats := s.sendToChats(ctx, t, m, params.Message, true, running)
		if ctx.Err() != nil {
			return
		}
		s.reporter.BroadcastCycle(ctx, accountID, slot, stats)

		logger.Debug().
			Int("sent", stats.Sent).
			Int("skipped", stats.Skipped).
			Int("failed", stats.Failed).
			Int("interval", params.Interval).
			Msg("Broadcast cycle completed")

		if !t.Sleep(ctx, time.Duration(params.Interval)*s.cfg.IntervalUnit) {
			return
		}
	}
}

// BroadcastOnce sends message once to every chat of m that is not blacklisted,
// groups and private chats alike. It runs in the background and reports when done.
func (s *BroadcastScheduler) BroadcastOnce(m domain.Messenger, message string) {
	accountID := m.AccountID()
	key := AccountPrefix(accountID) + "once:" + uuid.NewString()

	s.runner.Ensure(key, func(ctx context.Context, t *Task) {
		stats := s.sendToChats(ctx, t, m, message, false, func() bool { return true })
		if ctx.Err() != nil {
			return
		}
		s.logger.Info().
			Int64("account_id", accountID).
			Int("sent", stats.Sent).
			Int("skipped", stats.Skipped).
			Int("failed", stats.Failed).
			Msg("One-shot broadcast completed")
		s.reporter.OneShotFinished(ctx, accountID, stats)
	})
}

// sendToChats walks the chats of m once. The blacklist and running are checked
// per chat at send time. Per-chat failures are counted and never abort the pass.
func (s *BroadcastScheduler) sendToChats(
	ctx context.Context,
	t *Task,
	m domain.Messenger,
	message string,
	groupsOnly bool,
	running func() bool,
) CycleStats {
	accountID := m.AccountID()
	var stats CycleStats

	err := m.IterChats(ctx, func(chat domain.Chat) error {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if !running() {
			return errStopped
		}
		if groupsOnly && !chat.IsGroup {
			return nil
		}
		if s.state.IsBlacklisted(s.state.BlacklistScopeKey(accountID), chat.ID) {
			stats.Skipped++
			return nil
		}

		if err := s.send(ctx, t, m, chat.ID, message, running); err != nil {
			if errors.Is(err, errStopped) || ctx.Err() != nil {
				return err
			}
			stats.Failed++
			s.logger.Debug().
				Err(err).
				Int64("account_id", accountID).
				Int64("chat_id", chat.ID).
				Msg("Broadcast send failed, skipping chat")
			return nil
		}

		stats.Sent++
		return nil
	})

	if err != nil && !errors.Is(err, errStopped) && ctx.Err() == nil {
		s.logger.Warn().Err(err).Int64("account_id", accountID).Msg("Failed to enumerate chats")
	}

	return stats
}

// send delivers one message, waiting out a single flood-wait and retrying once
func (s *BroadcastScheduler) send(ctx context.Context, t *Task, m domain.Messenger, chatID int64, text string, running func() bool) error {
	err := m.SendMessage(ctx, chatID, text)
	wait, limited := domain.AsRateLimited(err)
	if !limited {
		return err
	}

	s.reporter.RateLimited(ctx, m.AccountID(), wait)
	if !t.Sleep(ctx, capWait(wait, s.cfg.MaxFloodWait)) {
		return ctx.Err()
	}
	if !running() {
		return errStopped
	}

	return m.SendMessage(ctx, chatID, text)
}
