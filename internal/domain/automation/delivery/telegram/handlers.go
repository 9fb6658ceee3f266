package telegram

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"github.com/dapen17/vps1/config"
	"github.com/dapen17/vps1/internal/domain"
	automationerrors "github.com/dapen17/vps1/internal/domain/automation/errors"
	"github.com/dapen17/vps1/internal/domain/automation/usecase/business"
	"github.com/dapen17/vps1/internal/infrastructure/metrics"
	pkgerrors "github.com/dapen17/vps1/pkg/errors"
)

// Handlers contains the in-chat command handlers
type Handlers struct {
	uc      *business.UseCase
	prefix  string
	metrics *metrics.Metrics
	logger  zerolog.Logger
}

// NewHandlers creates new command handlers
func NewHandlers(uc *business.UseCase, cfg *config.AutomationConfig, m *metrics.Metrics, logger zerolog.Logger) *Handlers {
	return &Handlers{
		uc:      uc,
		prefix:  strings.TrimSpace(cfg.CommandPrefix),
		metrics: m,
		logger:  logger.With().Str("component", "command_handlers").Logger(),
	}
}

// HandleHastle starts repeating a message in the current chat: <message> <interval>
func (h *Handlers) HandleHastle(ctx context.Context, m domain.Messenger, msg domain.IncomingMessage, args []string) string {
	seconds, err := h.uc.StartChatSpam(ctx, m, msg.ChatID, args[0], args[1])
	if err != nil {
		return h.fail("hastle", msg, err)
	}
	h.logCommand(msg, "hastle", "started")
	return fmt.Sprintf("✅ Spam started, every %s (%d seconds). Use \"%s stop\" to stop it.", args[1], seconds, h.prefix)
}

// HandleStop stops the spam of the account in the current chat
func (h *Handlers) HandleStop(ctx context.Context, m domain.Messenger, msg domain.IncomingMessage, _ []string) string {
	if err := h.uc.StopChatSpam(ctx, m.AccountID(), msg.ChatID); err != nil {
		return h.fail("stop", msg, err)
	}
	h.logCommand(msg, "stop", "stopped")
	return "🛑 Spam stopped in this chat."
}

// HandlePing answers a liveness check
func (h *Handlers) HandlePing(_ context.Context, _ domain.Messenger, msg domain.IncomingMessage, _ []string) string {
	h.logCommand(msg, "ping", "pong")
	return "🏓 Pong! The bot is active."
}

// HandleBroadcastAll sends a message once to every chat except blacklisted ones
func (h *Handlers) HandleBroadcastAll(ctx context.Context, m domain.Messenger, msg domain.IncomingMessage, args []string) string {
	if err := h.uc.BroadcastAll(ctx, m, args[0]); err != nil {
		return h.fail("bcstar", msg, err)
	}
	h.logCommand(msg, "bcstar", "started")
	return "📢 Broadcasting to all chats except the blacklist..."
}

// HandleBroadcastStart starts a numbered broadcast slot: bcstargr<N> <interval> <message>
func (h *Handlers) HandleBroadcastStart(ctx context.Context, m domain.Messenger, msg domain.IncomingMessage, args []string) string {
	number, ok := slotNumber(args[0])
	if !ok {
		return h.fail("bcstargr", msg, automationerrors.ErrSlotOutOfRange)
	}

	slot, seconds, err := h.uc.StartBroadcast(ctx, m, number, args[1], args[2])
	if err != nil {
		return h.fail("bcstargr", msg, err)
	}
	h.logCommand(msg, "bcstargr", "started")
	return fmt.Sprintf("✅ Broadcast %s started, every %s (%d seconds) to all groups.", slot, args[1], seconds)
}

// HandleBroadcastStop stops a numbered broadcast slot
func (h *Handlers) HandleBroadcastStop(ctx context.Context, m domain.Messenger, msg domain.IncomingMessage, args []string) string {
	number, ok := slotNumber(args[0])
	if !ok {
		return h.fail("stopbcstargr", msg, automationerrors.ErrSlotOutOfRange)
	}

	slot, err := h.uc.StopBroadcast(ctx, m.AccountID(), number)
	if err != nil {
		return h.fail("stopbcstargr", msg, err)
	}
	h.logCommand(msg, "stopbcstargr", "stopped")
	return fmt.Sprintf("🛑 Broadcast %s stopped.", slot)
}

// HandleBlacklistAdd excludes the current chat from broadcasts
func (h *Handlers) HandleBlacklistAdd(ctx context.Context, m domain.Messenger, msg domain.IncomingMessage, _ []string) string {
	h.uc.AddToBlacklist(ctx, m.AccountID(), msg.ChatID)
	h.logCommand(msg, "bl", "added")
	return "🚫 This chat was added to the blacklist."
}

// HandleBlacklistRemove includes the current chat in broadcasts again
func (h *Handlers) HandleBlacklistRemove(ctx context.Context, m domain.Messenger, msg domain.IncomingMessage, _ []string) string {
	if err := h.uc.RemoveFromBlacklist(ctx, m.AccountID(), msg.ChatID); err != nil {
		return h.fail("unbl", msg, err)
	}
	h.logCommand(msg, "unbl", "removed")
	return "✅ This chat was removed from the blacklist."
}

// HandleSetReply sets the auto-reply to the text after the first line
func (h *Handlers) HandleSetReply(ctx context.Context, m domain.Messenger, msg domain.IncomingMessage, args []string) string {
	text := ""
	if _, rest, found := strings.Cut(args[0], "\n"); found {
		text = rest
	}

	if err := h.uc.SetAutoReply(ctx, m.AccountID(), text); err != nil {
		return h.fail("setreply", msg, err)
	}
	h.logCommand(msg, "setreply", "set")
	return "✅ Auto-reply saved."
}

// HandleStopAll switches off every automation of the account
func (h *Handlers) HandleStopAll(ctx context.Context, m domain.Messenger, msg domain.IncomingMessage, _ []string) string {
	result := h.uc.StopAll(ctx, m.AccountID())
	h.logCommand(msg, "stopall", "stopped")
	return fmt.Sprintf("🛑 All automations stopped: %d broadcasts, %d spams. Auto-reply and blacklist cleared.",
		len(result.Broadcasts), len(result.ChatSpams))
}

// HandleStatus lists the running automations of the account
func (h *Handlers) HandleStatus(_ context.Context, m domain.Messenger, msg domain.IncomingMessage, _ []string) string {
	status := h.uc.Status(m.AccountID())
	h.logCommand(msg, "status", "listed")

	var b strings.Builder
	b.WriteString("📊 Status\n")
	if len(status.Broadcasts) == 0 {
		b.WriteString("Broadcasts: none\n")
	} else {
		fmt.Fprintf(&b, "Broadcasts: %s\n", strings.Join(status.Broadcasts, ", "))
	}
	fmt.Fprintf(&b, "Spam chats: %d\n", len(status.ChatSpams))
	fmt.Fprintf(&b, "Blacklisted chats: %d\n", status.BlacklistSize)
	if status.AutoReplyActive {
		b.WriteString("Auto-reply: on")
	} else {
		b.WriteString("Auto-reply: off")
	}
	return b.String()
}

// HandleHelp lists the commands
func (h *Handlers) HandleHelp(_ context.Context, _ domain.Messenger, msg domain.IncomingMessage, _ []string) string {
	h.logCommand(msg, "help", "shown")
	p := h.prefix
	return fmt.Sprintf(`📖 Commands

%[1]s hastle <message> <interval> - repeat a message in this chat
%[1]s stop - stop spam in this chat
%[1]s ping - check the bot
%[1]s bcstar <message> - send once to all chats
%[1]s bcstargr<N> <interval> <message> - broadcast to all groups, N = 1..%[2]d
%[1]s stopbcstargr<N> - stop broadcast N
%[1]s bl - blacklist this chat
%[1]s unbl - remove this chat from the blacklist
%[1]s setreply - auto-reply text on the next line
%[1]s stopall - stop everything
%[1]s status - show running automations
%[1]s help - this message

Intervals: 10s, 5m, 2h, 1d`, p, h.uc.MaxSlots())
}

// HandleIncoming answers private messages with the account's auto-reply
func (h *Handlers) HandleIncoming(ctx context.Context, m domain.Messenger, msg domain.IncomingMessage) {
	if h.uc.AutoReply(ctx, m, msg) {
		h.logger.Debug().Int64("account_id", msg.AccountID).Int64("chat_id", msg.ChatID).Msg("Auto-reply sent")
	}
}

// fail turns a use case error into the reply shown in the chat
func (h *Handlers) fail(command string, msg domain.IncomingMessage, err error) string {
	h.metrics.RecordCommandError(command, errorType(err))
	h.logger.Warn().
		Int64("account_id", msg.AccountID).
		Int64("chat_id", msg.ChatID).
		Str("command", command).
		Err(err).
		Msg("Automation command failed")

	switch {
	case pkgerrors.IsValidation(err), pkgerrors.IsConflict(err), pkgerrors.IsNotFound(err):
		return "⚠️ " + capitalize(err.Error()) + "."
	default:
		return "❌ Something went wrong, try again later."
	}
}

func (h *Handlers) logCommand(msg domain.IncomingMessage, command, result string) {
	h.metrics.RecordCommand(command)
	h.logger.Info().
		Int64("account_id", msg.AccountID).
		Int64("chat_id", msg.ChatID).
		Str("command", command).
		Str("result", result).
		Msg("Automation command processed")
}

func errorType(err error) string {
	switch {
	case pkgerrors.IsValidation(err):
		return "validation"
	case pkgerrors.IsConflict(err):
		return "conflict"
	case pkgerrors.IsNotFound(err):
		return "not_found"
	default:
		return "internal"
	}
}

func slotNumber(s string) (int, bool) {
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, false
	}
	return n, true
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
