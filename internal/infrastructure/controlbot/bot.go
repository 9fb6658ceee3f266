// Package controlbot contains the Bot API control bot infrastructure
package controlbot

import (
	"context"
	"fmt"

	tgbot "github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"github.com/rs/zerolog"
)

// Bot wraps the control bot for the infrastructure layer
type Bot struct {
	bot    *tgbot.Bot
	logger zerolog.Logger
}

// NewBot creates a new control bot wrapper
func NewBot(token string, logger zerolog.Logger) (*Bot, error) {
	if token == "" {
		return nil, fmt.Errorf("control bot token is required")
	}

	logger = logger.With().Str("component", "control_bot").Logger()

	opts := []tgbot.Option{
		tgbot.WithDefaultHandler(defaultHandler),
		tgbot.WithErrorsHandler(func(err error) {
			logger.Warn().Err(err).Msg("Control bot polling error")
		}),
	}

	bot, err := tgbot.New(token, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create control bot: %w", err)
	}

	logger.Info().Msg("Control bot created successfully")

	return &Bot{
		bot:    bot,
		logger: logger,
	}, nil
}

// Raw returns the underlying bot for handler registration
func (b *Bot) Raw() *tgbot.Bot {
	return b.bot
}

// Start runs long polling until ctx is cancelled (blocking call)
func (b *Bot) Start(ctx context.Context) {
	b.logger.Info().Msg("Starting control bot...")
	b.bot.Start(ctx)
	b.logger.Info().Msg("Control bot stopped")
}

// defaultHandler answers plain text that is not a known command
func defaultHandler(ctx context.Context, bot *tgbot.Bot, update *models.Update) {
	if update.Message == nil || update.Message.Text == "" {
		return
	}

	_, _ = bot.SendMessage(ctx, &tgbot.SendMessageParams{
		ChatID: update.Message.Chat.ID,
		Text:   "🤖 Unknown command. Send /help for the list of commands.",
	})
}
