// Package telegram contains the control bot delivery layer
package telegram

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	tgbot "github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"github.com/rs/zerolog"

	"github.com/dapen17/vps1/internal/domain"
	"github.com/dapen17/vps1/internal/domain/session/usecase/business"
	"github.com/dapen17/vps1/internal/infrastructure/metrics"
)

// RequestTimeout bounds every Bot API call
const RequestTimeout = 30 * time.Second

// Handlers contains control bot command handlers
type Handlers struct {
	uc      *business.UseCase
	metrics *metrics.Metrics
	logger  zerolog.Logger
}

// NewHandlers creates new control bot handlers
func NewHandlers(uc *business.UseCase, m *metrics.Metrics, logger zerolog.Logger) *Handlers {
	return &Handlers{
		uc:      uc,
		metrics: m,
		logger:  logger.With().Str("component", "control_bot_handlers").Logger(),
	}
}

// HandleStart handles /start command
func (h *Handlers) HandleStart(ctx context.Context, bot *tgbot.Bot, update *models.Update) {
	userID, chatID, ok := sender(update)
	if !ok {
		return
	}
	h.reply(ctx, bot, chatID, welcomeMessage)
	h.logCommand(userID, "/start", "success")
}

// HandleHelp handles /help command
func (h *Handlers) HandleHelp(ctx context.Context, bot *tgbot.Bot, update *models.Update) {
	userID, chatID, ok := sender(update)
	if !ok {
		return
	}
	h.reply(ctx, bot, chatID, formatHelp(h.uc.IsAdmin(userID)))
	h.logCommand(userID, "/help", "success")
}

// HandleLogin handles /login <phone>
func (h *Handlers) HandleLogin(ctx context.Context, bot *tgbot.Bot, update *models.Update) {
	userID, chatID, ok := sender(update)
	if !ok {
		return
	}

	phone := commandArgs(update.Message.Text)
	if phone == "" {
		h.reply(ctx, bot, chatID, "⚠️ Usage: /login &lt;phone&gt;, for example /login +628123456789")
		return
	}

	normalized, err := h.uc.Login(ctx, userID, phone)
	if err != nil {
		h.fail(ctx, bot, chatID, userID, "/login", err)
		return
	}

	h.reply(ctx, bot, chatID, fmt.Sprintf(
		"📨 A login code was sent to +%s.\nSend it with <code>/verify 1 2 3 4 5</code>. Spaces between the digits keep Telegram from expiring the code.",
		normalized,
	))
	h.logCommand(userID, "/login", "code_sent")
}

// HandleVerify handles /verify <code>
func (h *Handlers) HandleVerify(ctx context.Context, bot *tgbot.Bot, update *models.Update) {
	userID, chatID, ok := sender(update)
	if !ok {
		return
	}

	res, err := h.uc.Verify(ctx, userID, commandArgs(update.Message.Text))
	if err != nil {
		h.fail(ctx, bot, chatID, userID, "/verify", err)
		return
	}
	if res.PasswordRequired {
		h.reply(ctx, bot, chatID, "🔐 This account has two-step verification. Send <code>/password &lt;password&gt;</code>.")
		h.logCommand(userID, "/verify", "password_required")
		return
	}

	h.reply(ctx, bot, chatID, formatAttached(res.Account))
	h.logCommand(userID, "/verify", "success")
}

// HandlePassword handles /password <password>. The message is deleted afterwards.
func (h *Handlers) HandlePassword(ctx context.Context, bot *tgbot.Bot, update *models.Update) {
	userID, chatID, ok := sender(update)
	if !ok {
		return
	}
	defer h.deleteMessage(ctx, bot, chatID, update.Message.ID)

	res, err := h.uc.Password(ctx, userID, commandArgs(update.Message.Text))
	if err != nil {
		h.fail(ctx, bot, chatID, userID, "/password", err)
		return
	}

	h.reply(ctx, bot, chatID, formatAttached(res.Account))
	h.logCommand(userID, "/password", "success")
}

// HandleQRLogin handles /qrlogin
func (h *Handlers) HandleQRLogin(ctx context.Context, bot *tgbot.Bot, update *models.Update) {
	userID, chatID, ok := sender(update)
	if !ok {
		return
	}

	qr := &qrReply{bot: bot, chatID: chatID, logger: h.logger}
	if err := h.uc.QRLogin(ctx, userID, qr); err != nil {
		h.fail(ctx, bot, chatID, userID, "/qrlogin", err)
		return
	}
	h.logCommand(userID, "/qrlogin", "started")
}

// HandleLogout handles /logout <phone>
func (h *Handlers) HandleLogout(ctx context.Context, bot *tgbot.Bot, update *models.Update) {
	userID, chatID, ok := sender(update)
	if !ok {
		return
	}

	phone := commandArgs(update.Message.Text)
	if phone == "" {
		h.reply(ctx, bot, chatID, "⚠️ Usage: /logout &lt;phone&gt;")
		return
	}

	normalized, err := h.uc.Logout(ctx, userID, phone)
	if err != nil {
		h.fail(ctx, bot, chatID, userID, "/logout", err)
		return
	}

	h.reply(ctx, bot, chatID, fmt.Sprintf("✅ Logged out +%s.", normalized))
	h.logCommand(userID, "/logout", "success")
}

// HandleList handles /list
func (h *Handlers) HandleList(ctx context.Context, bot *tgbot.Bot, update *models.Update) {
	userID, chatID, ok := sender(update)
	if !ok {
		return
	}

	list, err := h.uc.List(ctx, userID)
	if err != nil {
		h.fail(ctx, bot, chatID, userID, "/list", err)
		return
	}

	h.reply(ctx, bot, chatID, formatList(list))
	h.logCommand(userID, "/list", "success")
}

// HandleResetAll handles /resetall
func (h *Handlers) HandleResetAll(ctx context.Context, bot *tgbot.Bot, update *models.Update) {
	userID, chatID, ok := sender(update)
	if !ok {
		return
	}

	removed, err := h.uc.ResetAll(ctx, userID)
	if err != nil {
		h.fail(ctx, bot, chatID, userID, "/resetall", err)
		return
	}

	if removed == 0 {
		h.reply(ctx, bot, chatID, "ℹ️ There were no sessions to reset.")
	} else {
		h.reply(ctx, bot, chatID, fmt.Sprintf("✅ %d session(s) have been reset.", removed))
	}
	h.logCommand(userID, "/resetall", "success")
}

// HandleRestart handles /restart
func (h *Handlers) HandleRestart(ctx context.Context, bot *tgbot.Bot, update *models.Update) {
	userID, chatID, ok := sender(update)
	if !ok {
		return
	}

	h.reply(ctx, bot, chatID, "🔄 Restarting your accounts...")
	restarted, err := h.uc.Restart(ctx, userID)

	text := fmt.Sprintf("✅ %d account(s) restarted.", restarted)
	if err != nil {
		text += "\n⚠️ Some accounts could not be reconnected, check /list."
	}
	h.reply(ctx, bot, chatID, text)
	h.logCommand(userID, "/restart", "success")
}

// HandleReconnect handles /reconnect
func (h *Handlers) HandleReconnect(ctx context.Context, bot *tgbot.Bot, update *models.Update) {
	userID, chatID, ok := sender(update)
	if !ok {
		return
	}

	reconnected, err := h.uc.Reconnect(ctx)
	switch {
	case reconnected > 0:
		h.reply(ctx, bot, chatID, fmt.Sprintf("✅ %d session(s) reconnected.", reconnected))
	case err != nil:
		h.fail(ctx, bot, chatID, userID, "/reconnect", err)
		return
	default:
		h.reply(ctx, bot, chatID, "ℹ️ No session needed reconnecting.")
	}
	h.logCommand(userID, "/reconnect", "success")
}

// HandleGetSession handles /getsession (admin only)
func (h *Handlers) HandleGetSession(ctx context.Context, bot *tgbot.Bot, update *models.Update) {
	userID, chatID, ok := sender(update)
	if !ok {
		return
	}

	archive, err := h.uc.ExportSessions(ctx, userID)
	if err != nil {
		h.fail(ctx, bot, chatID, userID, "/getsession", err)
		return
	}

	caption := fmt.Sprintf("📦 %d session file(s)", archive.Files)
	if archive.Link != "" {
		caption += fmt.Sprintf("\n🔗 <a href=\"%s\">Download link</a> (valid for a short time)", archive.Link)
	}

	msgCtx, cancel := context.WithTimeout(ctx, RequestTimeout)
	defer cancel()

	_, err = bot.SendDocument(msgCtx, &tgbot.SendDocumentParams{
		ChatID:    chatID,
		Document:  &models.InputFileUpload{Filename: archive.Name, Data: bytes.NewReader(archive.Data)},
		Caption:   caption,
		ParseMode: models.ParseModeHTML,
	})
	if err != nil {
		h.fail(ctx, bot, chatID, userID, "/getsession", err)
		return
	}
	h.logCommand(userID, "/getsession", "success")
}

func sender(update *models.Update) (userID, chatID int64, ok bool) {
	if update.Message == nil || update.Message.From == nil {
		return 0, 0, false
	}
	return update.Message.From.ID, update.Message.Chat.ID, true
}

func (h *Handlers) reply(ctx context.Context, bot *tgbot.Bot, chatID int64, text string) {
	msgCtx, cancel := context.WithTimeout(ctx, RequestTimeout)
	defer cancel()

	_, err := bot.SendMessage(msgCtx, &tgbot.SendMessageParams{
		ChatID:    chatID,
		Text:      text,
		ParseMode: models.ParseModeHTML,
	})
	if err != nil {
		h.logger.Error().Int64("chat_id", chatID).Err(err).Msg("Failed to send control bot response")
	}
}

func (h *Handlers) deleteMessage(ctx context.Context, bot *tgbot.Bot, chatID int64, messageID int) {
	msgCtx, cancel := context.WithTimeout(ctx, RequestTimeout)
	defer cancel()

	if _, err := bot.DeleteMessage(msgCtx, &tgbot.DeleteMessageParams{ChatID: chatID, MessageID: messageID}); err != nil {
		h.logger.Debug().Int64("chat_id", chatID).Err(err).Msg("Failed to delete password message")
	}
}

func (h *Handlers) fail(ctx context.Context, bot *tgbot.Bot, chatID, userID int64, command string, err error) {
	h.metrics.RecordCommandError(command, errorType(err))
	h.logger.Error().Int64("user_id", userID).Str("command", command).Err(err).Msg("Control bot command failed")
	h.reply(ctx, bot, chatID, errorMessage(err))
}

func (h *Handlers) logCommand(userID int64, command, result string) {
	h.metrics.RecordCommand(command)
	h.logger.Info().Int64("user_id", userID).Str("command", command).Str("result", result).Msg("Control bot command processed")
}

// qrReply sends QR login progress to the chat that asked for it
type qrReply struct {
	bot    *tgbot.Bot
	chatID int64
	logger zerolog.Logger
}

func (q *qrReply) OnQRCode(ctx context.Context, png []byte, expires time.Time) error {
	msgCtx, cancel := context.WithTimeout(ctx, RequestTimeout)
	defer cancel()

	_, err := q.bot.SendPhoto(msgCtx, &tgbot.SendPhotoParams{
		ChatID: q.chatID,
		Photo:  &models.InputFileUpload{Filename: "qrlogin.png", Data: bytes.NewReader(png)},
		Caption: fmt.Sprintf(
			"📷 Scan in Telegram: Settings > Devices > Link Desktop Device.\nThe code expires at %s UTC.",
			expires.UTC().Format("15:04:05"),
		),
	})
	return err
}

func (q *qrReply) OnQRLogin(ctx context.Context, account domain.Account, err error) {
	text := formatAttached(account)
	switch {
	case errors.Is(err, domain.ErrPasswordRequired):
		text = "🔐 This account has two-step verification. Send <code>/password &lt;password&gt;</code>."
	case err != nil:
		q.logger.Warn().Int64("chat_id", q.chatID).Err(err).Msg("QR login failed")
		text = "❌ QR login failed or expired. Send /qrlogin to try again."
	}

	msgCtx, cancel := context.WithTimeout(ctx, RequestTimeout)
	defer cancel()
	if _, sendErr := q.bot.SendMessage(msgCtx, &tgbot.SendMessageParams{
		ChatID:    q.chatID,
		Text:      text,
		ParseMode: models.ParseModeHTML,
	}); sendErr != nil {
		q.logger.Error().Int64("chat_id", q.chatID).Err(sendErr).Msg("Failed to send QR login result")
	}
}
