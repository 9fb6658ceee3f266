package telegram

import (
	tgbot "github.com/go-telegram/bot"
	"github.com/rs/zerolog"
)

// Router registers control bot handlers
type Router struct {
	handlers *Handlers
	logger   zerolog.Logger
}

// NewRouter creates new control bot router
func NewRouter(handlers *Handlers, logger zerolog.Logger) *Router {
	return &Router{
		handlers: handlers,
		logger:   logger,
	}
}

// RegisterRoutes registers all command handlers on the bot
func (r *Router) RegisterRoutes(bot *tgbot.Bot) {
	bot.RegisterHandler(tgbot.HandlerTypeMessageText, "/start", tgbot.MatchTypeExact, r.handlers.HandleStart)
	bot.RegisterHandler(tgbot.HandlerTypeMessageText, "/help", tgbot.MatchTypeExact, r.handlers.HandleHelp)
	bot.RegisterHandler(tgbot.HandlerTypeMessageText, "/login", tgbot.MatchTypePrefix, r.handlers.HandleLogin)
	bot.RegisterHandler(tgbot.HandlerTypeMessageText, "/verify", tgbot.MatchTypePrefix, r.handlers.HandleVerify)
	bot.RegisterHandler(tgbot.HandlerTypeMessageText, "/password", tgbot.MatchTypePrefix, r.handlers.HandlePassword)
	bot.RegisterHandler(tgbot.HandlerTypeMessageText, "/qrlogin", tgbot.MatchTypeExact, r.handlers.HandleQRLogin)
	bot.RegisterHandler(tgbot.HandlerTypeMessageText, "/logout", tgbot.MatchTypePrefix, r.handlers.HandleLogout)
	bot.RegisterHandler(tgbot.HandlerTypeMessageText, "/list", tgbot.MatchTypeExact, r.handlers.HandleList)
	bot.RegisterHandler(tgbot.HandlerTypeMessageText, "/resetall", tgbot.MatchTypeExact, r.handlers.HandleResetAll)
	bot.RegisterHandler(tgbot.HandlerTypeMessageText, "/restart", tgbot.MatchTypeExact, r.handlers.HandleRestart)
	bot.RegisterHandler(tgbot.HandlerTypeMessageText, "/reconnect", tgbot.MatchTypeExact, r.handlers.HandleReconnect)
	bot.RegisterHandler(tgbot.HandlerTypeMessageText, "/getsession", tgbot.MatchTypeExact, r.handlers.HandleGetSession)

	r.logger.Info().Msg("All control bot command handlers registered successfully")
}
