package scheduler

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/dapen17/vps1/internal/domain"
	automationerrors "github.com/dapen17/vps1/internal/domain/automation/errors"
)

// ChatSpamLoop drives one loop per running (chat, account)
type ChatSpamLoop struct {
	runner   *Runner
	state    SpamState
	reporter Reporter
	cfg      Config
	logger   zerolog.Logger
}

// NewChatSpamLoop creates a chat spam loop driver
func NewChatSpamLoop(runner *Runner, state SpamState, reporter Reporter, cfg Config, logger zerolog.Logger) *ChatSpamLoop {
	return &ChatSpamLoop{
		runner:   runner,
		state:    state,
		reporter: reporter,
		cfg:      cfg.withDefaults(),
		logger:   logger.With().Str("component", "chat_spam_loop").Logger(),
	}
}

// Start runs the spam loop for chatID unless one is already alive
func (l *ChatSpamLoop) Start(m domain.Messenger, chatID int64) bool {
	return l.runner.Ensure(SpamKey(m.AccountID(), chatID), func(ctx context.Context, t *Task) {
		l.loop(ctx, t, m, chatID)
	})
}

// Wake makes a sleeping spam loop re-check its flag now
func (l *ChatSpamLoop) Wake(accountID, chatID int64) {
	l.runner.Wake(SpamKey(accountID, chatID))
}

// Running reports whether a loop is alive for the pair
func (l *ChatSpamLoop) Running(accountID, chatID int64) bool {
	return l.runner.Running(SpamKey(accountID, chatID))
}

func (l *ChatSpamLoop) loop(ctx context.Context, t *Task, m domain.Messenger, chatID int64) {
	accountID := m.AccountID()
	logger := l.logger.With().Int64("account_id", accountID).Int64("chat_id", chatID).Logger()
	logger.Info().Msg("Spam loop started")
	defer logger.Info().Msg("Spam loop finished")

	running := func() bool { return l.state.IsChatSpamRunning(chatID, accountID) }

	for t.Continue(running) {
		params, ok := l.state.GetChatSpamParams(chatID, accountID)
		if !ok || params.Interval <= 0 || params.Message == "" {
			// stopall clears the params together with the flag
			if !running() {
				continue
			}
			l.state.SetChatSpamRunning(chatID, accountID, false)
			l.reporter.ChatSpamFailed(ctx, accountID, chatID, automationerrors.ErrMissingScheduleParams)
			continue
		}

		err := m.SendMessage(ctx, chatID, params.Message)
		if errors.Is(err, domain.ErrPeerNotFound) {
			err = l.resend(ctx, m, chatID, params.Message)
		}
		if ctx.Err() != nil {
			return
		}

		if wait, limited := domain.AsRateLimited(err); limited {
			logger.Warn().Dur("wait", wait).Msg("Flood wait, pausing spam loop")
			l.reporter.RateLimited(ctx, accountID, wait)
			if !t.Sleep(ctx, capWait(wait, l.cfg.MaxFloodWait)) {
				return
			}
			continue
		}

		if errors.Is(err, domain.ErrNotConnected) {
			// The account went away; the loop resumes when it is attached again
			logger.Info().Msg("Account disconnected, leaving spam loop")
			return
		}

		if err != nil {
			logger.Warn().Err(err).Msg("Spam send failed, stopping loop")
			l.state.SetChatSpamRunning(chatID, accountID, false)
			l.reporter.ChatSpamFailed(ctx, accountID, chatID, err)
			continue
		}

		l.reporter.ChatSpamSent(ctx, accountID, chatID)

		if !t.Sleep(ctx, time.Duration(params.Interval)*l.cfg.IntervalUnit) {
			return
		}
	}
}

// resend loads the account's dialogs once so the chat becomes resolvable, then
// sends again. Chats of a freshly connected account are unknown until then.
func (l *ChatSpamLoop) resend(ctx context.Context, m domain.Messenger, chatID int64, text string) error {
	if err := m.IterChats(ctx, func(domain.Chat) error { return nil }); err != nil {
		return err
	}
	return m.SendMessage(ctx, chatID, text)
}
