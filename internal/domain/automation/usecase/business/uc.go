// Package business contains the automation use cases driven by in-chat commands
package business

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/dapen17/vps1/internal/domain"
	"github.com/dapen17/vps1/internal/domain/automation/deps"
	"github.com/dapen17/vps1/internal/domain/automation/entities"
	automationerrors "github.com/dapen17/vps1/internal/domain/automation/errors"
	"github.com/dapen17/vps1/internal/domain/automation/interval"
	"github.com/dapen17/vps1/internal/domain/automation/scheduler"
	"github.com/dapen17/vps1/internal/domain/automation/store"
	"github.com/dapen17/vps1/internal/infrastructure/metrics"
)

// Config holds use case settings
type Config struct {
	MaxSlots  int
	Scheduler scheduler.Config
}

// UseCase contains business logic for account automations
type UseCase struct {
	store      *store.Store
	runner     *scheduler.Runner
	broadcasts *scheduler.BroadcastScheduler
	spams      *scheduler.ChatSpamLoop
	registry   domain.AccountRegistry
	publisher  deps.EventPublisher
	metrics    *metrics.Metrics
	maxSlots   int
	logger     zerolog.Logger
}

// NewUseCase creates a new UseCase instance.
// The account registry is set later with SetRegistry to break the cycle with the account manager.
func NewUseCase(
	st *store.Store,
	runner *scheduler.Runner,
	publisher deps.EventPublisher,
	m *metrics.Metrics,
	cfg Config,
	logger zerolog.Logger,
) *UseCase {
	if cfg.MaxSlots <= 0 {
		cfg.MaxSlots = 10
	}

	uc := &UseCase{
		store:     st,
		runner:    runner,
		publisher: publisher,
		metrics:   m,
		maxSlots:  cfg.MaxSlots,
		logger:    logger,
	}
	uc.broadcasts = scheduler.NewBroadcastScheduler(runner, st, uc, cfg.Scheduler, logger)
	uc.spams = scheduler.NewChatSpamLoop(runner, st, uc, cfg.Scheduler, logger)
	return uc
}

// SetRegistry sets the account registry after construction
func (uc *UseCase) SetRegistry(registry domain.AccountRegistry) {
	uc.registry = registry
}

// MaxSlots returns the highest accepted broadcast slot number
func (uc *UseCase) MaxSlots() int {
	return uc.maxSlots
}

// Restore loads the persisted state. Must run before any account is attached.
func (uc *UseCase) Restore(ctx context.Context) {
	uc.store.Restore(ctx)
	uc.refreshGauges()
}

// StartChatSpam starts repeating message in chatID every intervalToken
func (uc *UseCase) StartChatSpam(ctx context.Context, m domain.Messenger, chatID int64, message, intervalToken string) (int, error) {
	seconds, err := parsePositiveInterval(intervalToken)
	if err != nil {
		return 0, err
	}
	message = strings.TrimSpace(message)
	if message == "" {
		return 0, automationerrors.ErrEmptyMessage
	}

	accountID := m.AccountID()
	if err := uc.store.StartChatSpam(chatID, accountID, entities.SpamParams{Message: message, Interval: seconds}); err != nil {
		return 0, err
	}
	uc.persist(ctx)
	uc.spams.Start(m, chatID)

	uc.logger.Info().
		Int64("account_id", accountID).
		Int64("chat_id", chatID).
		Int("interval", seconds).
		Msg("Chat spam started")

	uc.publish(ctx, entities.Event{Type: entities.EventSpamStarted, AccountID: accountID, ChatID: chatID, Interval: seconds})
	uc.refreshGauges()
	return seconds, nil
}

// StopChatSpam stops the spam loop of the account in chatID
func (uc *UseCase) StopChatSpam(ctx context.Context, accountID, chatID int64) error {
	if !uc.store.StopChatSpam(chatID, accountID) {
		return automationerrors.ErrSpamNotRunning
	}
	uc.persist(ctx)
	uc.spams.Wake(accountID, chatID)

	uc.logger.Info().Int64("account_id", accountID).Int64("chat_id", chatID).Msg("Chat spam stopped")
	uc.publish(ctx, entities.Event{Type: entities.EventSpamStopped, AccountID: accountID, ChatID: chatID})
	uc.refreshGauges()
	return nil
}

// BroadcastAll sends message once to every chat of the account except blacklisted ones
func (uc *UseCase) BroadcastAll(ctx context.Context, m domain.Messenger, message string) error {
	message = strings.TrimSpace(message)
	if message == "" {
		return automationerrors.ErrEmptyMessage
	}

	uc.broadcasts.BroadcastOnce(m, message)
	uc.logger.Info().Int64("account_id", m.AccountID()).Msg("One-shot broadcast started")
	return nil
}

// StartBroadcast starts broadcast slot number to all groups of the account
func (uc *UseCase) StartBroadcast(ctx context.Context, m domain.Messenger, number int, intervalToken, message string) (string, int, error) {
	slot, err := uc.slotName(number)
	if err != nil {
		return "", 0, err
	}
	seconds, err := parsePositiveInterval(intervalToken)
	if err != nil {
		return "", 0, err
	}
	message = strings.TrimSpace(message)
	if message == "" {
		return "", 0, automationerrors.ErrEmptyMessage
	}

	accountID := m.AccountID()
	if err := uc.store.StartBroadcast(accountID, slot, entities.BroadcastParams{Message: message, Interval: seconds}); err != nil {
		return slot, 0, err
	}
	uc.persist(ctx)
	uc.broadcasts.Start(m, slot)

	uc.logger.Info().
		Int64("account_id", accountID).
		Str("slot", slot).
		Int("interval", seconds).
		Msg("Broadcast slot started")

	uc.publish(ctx, entities.Event{Type: entities.EventBroadcastStarted, AccountID: accountID, Slot: slot, Interval: seconds})
	uc.refreshGauges()
	return slot, seconds, nil
}

// StopBroadcast stops broadcast slot number of the account
func (uc *UseCase) StopBroadcast(ctx context.Context, accountID int64, number int) (string, error) {
	slot, err := uc.slotName(number)
	if err != nil {
		return "", err
	}
	if !uc.store.StopBroadcast(accountID, slot) {
		return slot, automationerrors.ErrBroadcastNotRunning
	}
	uc.persist(ctx)
	uc.broadcasts.Wake(accountID, slot)

	uc.logger.Info().Int64("account_id", accountID).Str("slot", slot).Msg("Broadcast slot stopped")
	uc.publish(ctx, entities.Event{Type: entities.EventBroadcastStopped, AccountID: accountID, Slot: slot})
	uc.refreshGauges()
	return slot, nil
}

// AddToBlacklist excludes chatID from the account's broadcasts
func (uc *UseCase) AddToBlacklist(ctx context.Context, accountID, chatID int64) {
	uc.store.AddToBlacklist(uc.store.BlacklistScopeKey(accountID), chatID)
	uc.persist(ctx)
	uc.logger.Info().Int64("account_id", accountID).Int64("chat_id", chatID).Msg("Chat blacklisted")
}

// RemoveFromBlacklist includes chatID in the account's broadcasts again
func (uc *UseCase) RemoveFromBlacklist(ctx context.Context, accountID, chatID int64) error {
	if !uc.store.RemoveFromBlacklist(uc.store.BlacklistScopeKey(accountID), chatID) {
		return automationerrors.ErrNotBlacklisted
	}
	uc.persist(ctx)
	uc.logger.Info().Int64("account_id", accountID).Int64("chat_id", chatID).Msg("Chat removed from blacklist")
	return nil
}

// SetAutoReply sets the private-message auto-reply of the account
func (uc *UseCase) SetAutoReply(ctx context.Context, accountID int64, text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return automationerrors.ErrMissingReplyText
	}

	uc.store.SetAutoReply(accountID, text)
	uc.persist(ctx)

	uc.logger.Info().Int64("account_id", accountID).Msg("Auto-reply set")
	uc.publish(ctx, entities.Event{Type: entities.EventAutoReplySet, AccountID: accountID})
	return nil
}

// AutoReply answers an incoming private message when the account has an auto-reply.
// Send and read-acknowledge failures are logged and dropped.
func (uc *UseCase) AutoReply(ctx context.Context, m domain.Messenger, msg domain.IncomingMessage) bool {
	if msg.Out || !msg.Private {
		return false
	}

	text := uc.store.GetAutoReply(m.AccountID())
	if text == "" {
		return false
	}

	if err := m.Reply(ctx, msg.ChatID, msg.MessageID, text); err != nil {
		uc.logger.Warn().
			Err(err).
			Int64("account_id", m.AccountID()).
			Int64("chat_id", msg.ChatID).
			Msg("Failed to send auto-reply")
		return false
	}
	uc.metrics.RecordAutoReply()

	if err := m.MarkRead(ctx, msg.ChatID, msg.MessageID); err != nil {
		uc.logger.Debug().Err(err).Int64("chat_id", msg.ChatID).Msg("Failed to mark chat as read")
	}
	return true
}

// StopAll switches off every automation of the account and persists once
func (uc *UseCase) StopAll(ctx context.Context, accountID int64) entities.StopAllResult {
	result := uc.store.StopAll(accountID)
	uc.persist(ctx)

	for _, slot := range result.Broadcasts {
		uc.broadcasts.Wake(accountID, slot)
	}
	for _, chatID := range result.ChatSpams {
		uc.spams.Wake(accountID, chatID)
	}

	uc.logger.Info().
		Int64("account_id", accountID).
		Strs("broadcasts", result.Broadcasts).
		Int("chat_spams", len(result.ChatSpams)).
		Msg("All automations stopped")

	uc.publish(ctx, entities.Event{Type: entities.EventStopAll, AccountID: accountID})
	uc.refreshGauges()
	return result
}

// Status summarizes the automations of an account
func (uc *UseCase) Status(accountID int64) entities.Status {
	return uc.store.Status(accountID)
}

// Snapshot returns a copy of the whole automation state
func (uc *UseCase) Snapshot() entities.State {
	return uc.store.Snapshot()
}

// OnAccountAttached restarts the persisted running automations of a connected account
func (uc *UseCase) OnAccountAttached(ctx context.Context, account domain.Account, m domain.Messenger) {
	accountID := m.AccountID()
	dirty := false
	restarted := 0

	for _, slot := range uc.store.RunningBroadcasts(accountID) {
		if params, ok := uc.store.GetBroadcastParams(accountID, slot); !ok || params.Interval <= 0 {
			uc.logger.Warn().Int64("account_id", accountID).Str("slot", slot).Msg("Running broadcast has no parameters, switching it off")
			uc.store.SetBroadcastRunning(accountID, slot, false)
			dirty = true
			continue
		}
		uc.broadcasts.Start(m, slot)
		restarted++
	}

	for _, chatID := range uc.store.RunningChatSpams(accountID) {
		if params, ok := uc.store.GetChatSpamParams(chatID, accountID); !ok || params.Interval <= 0 {
			uc.logger.Warn().Int64("account_id", accountID).Int64("chat_id", chatID).Msg("Running spam has no parameters, switching it off")
			uc.store.SetChatSpamRunning(chatID, accountID, false)
			dirty = true
			continue
		}
		uc.spams.Start(m, chatID)
		restarted++
	}

	if dirty {
		uc.persist(ctx)
	}

	uc.logger.Info().
		Int64("account_id", accountID).
		Str("phone", account.Phone).
		Int("restarted", restarted).
		Msg("Account automations resumed")
	uc.refreshGauges()
}

// OnAccountDetached stops the account's loops without touching their persisted flags
func (uc *UseCase) OnAccountDetached(_ context.Context, account domain.Account) {
	n := uc.runner.CancelPrefix(scheduler.AccountPrefix(account.ID))
	uc.logger.Info().Int64("account_id", account.ID).Int("tasks", n).Msg("Account automations suspended")
}

// Shutdown stops all loops and writes the final state
func (uc *UseCase) Shutdown(ctx context.Context) error {
	err := uc.runner.Shutdown(ctx)
	uc.persist(context.WithoutCancel(ctx))
	return err
}

// Persist writes the current state, used by control-bot restarts
func (uc *UseCase) Persist(ctx context.Context) {
	uc.persist(ctx)
}

// BroadcastCycle implements scheduler.Reporter
func (uc *UseCase) BroadcastCycle(_ context.Context, _ int64, _ string, stats scheduler.CycleStats) {
	uc.metrics.RecordBroadcastCycle(stats.Sent, stats.Skipped, stats.Failed)
}

// BroadcastAborted implements scheduler.Reporter
func (uc *UseCase) BroadcastAborted(ctx context.Context, accountID int64, slot string, reason error) {
	uc.persist(ctx)
	uc.logger.Warn().Err(reason).Int64("account_id", accountID).Str("slot", slot).Msg("Broadcast slot aborted")
	uc.publish(ctx, entities.Event{Type: entities.EventBroadcastStopped, AccountID: accountID, Slot: slot, Reason: reason.Error()})
	uc.refreshGauges()
}

// OneShotFinished implements scheduler.Reporter
func (uc *UseCase) OneShotFinished(ctx context.Context, accountID int64, stats scheduler.CycleStats) {
	uc.metrics.RecordBroadcastCycle(stats.Sent, stats.Skipped, stats.Failed)
	uc.publish(ctx, entities.Event{Type: entities.EventBroadcastOneShot, AccountID: accountID})
}

// ChatSpamSent implements scheduler.Reporter
func (uc *UseCase) ChatSpamSent(context.Context, int64, int64) {
	uc.metrics.RecordSpamSent()
}

// ChatSpamFailed implements scheduler.Reporter
func (uc *UseCase) ChatSpamFailed(ctx context.Context, accountID, chatID int64, reason error) {
	uc.metrics.RecordSpamFailure()
	uc.persist(ctx)
	uc.publish(ctx, entities.Event{Type: entities.EventSpamFailed, AccountID: accountID, ChatID: chatID, Reason: reason.Error()})
	uc.refreshGauges()

	if uc.registry == nil {
		return
	}
	m, ok := uc.registry.Messenger(accountID)
	if !ok {
		return
	}
	if err := m.SendMessage(ctx, chatID, "⚠️ Spam stopped: "+reason.Error()); err != nil {
		uc.logger.Debug().Err(err).Int64("chat_id", chatID).Msg("Failed to report stopped spam")
	}
}

// RateLimited implements scheduler.Reporter
func (uc *UseCase) RateLimited(_ context.Context, accountID int64, wait time.Duration) {
	uc.metrics.RecordAccountRateLimit(wait.Seconds())
	uc.logger.Warn().Int64("account_id", accountID).Dur("wait", wait).Msg("Flood wait received")
}

func (uc *UseCase) slotName(number int) (string, error) {
	if number < 1 || number > uc.maxSlots {
		return "", automationerrors.ErrSlotOutOfRange
	}
	return entities.SlotName(number), nil
}

func (uc *UseCase) persist(ctx context.Context) {
	err := uc.store.Persist(ctx)
	uc.metrics.RecordStatePersist(err)
}

func (uc *UseCase) publish(ctx context.Context, event entities.Event) {
	if uc.publisher == nil {
		return
	}
	event.ID = uuid.NewString()
	event.OccurredAt = time.Now().UTC()

	if err := uc.publisher.Publish(ctx, event); err != nil {
		uc.logger.Warn().Err(err).Str("event_type", event.Type).Msg("Failed to publish automation event")
	}
}

func (uc *UseCase) refreshGauges() {
	state := uc.store.Snapshot()

	broadcasts := 0
	for _, slots := range state.Broadcasts {
		for _, slot := range slots {
			if slot.Running {
				broadcasts++
			}
		}
	}
	spams := 0
	for _, accounts := range state.ChatSpams {
		for _, spam := range accounts {
			if spam.Running {
				spams++
			}
		}
	}
	uc.metrics.UpdateAutomations(broadcasts, spams)
}

func parsePositiveInterval(token string) (int, error) {
	seconds, ok := interval.Parse(token)
	if !ok {
		return 0, automationerrors.ErrInvalidInterval
	}
	if seconds <= 0 {
		return 0, automationerrors.ErrNonPositiveInterval
	}
	return seconds, nil
}
