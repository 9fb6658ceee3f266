// Package telegram contains the in-chat command delivery layer of attached accounts
package telegram

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/rs/zerolog"

	"github.com/dapen17/vps1/config"
	"github.com/dapen17/vps1/internal/domain"
)

// handlerFunc answers one command. args are the regexp submatches without the full match.
type handlerFunc func(ctx context.Context, m domain.Messenger, msg domain.IncomingMessage, args []string) string

type route struct {
	name    string
	pattern *regexp.Regexp
	handle  handlerFunc
}

// Router dispatches messages seen by attached accounts to command handlers
type Router struct {
	handlers *Handlers
	registry domain.AccountRegistry
	prefix   string
	routes   []route
	logger   zerolog.Logger
}

// NewRouter creates the command router for prefix cfg.CommandPrefix
func NewRouter(handlers *Handlers, registry domain.AccountRegistry, cfg *config.AutomationConfig, logger zerolog.Logger) *Router {
	r := &Router{
		handlers: handlers,
		registry: registry,
		prefix:   strings.TrimSpace(cfg.CommandPrefix),
		logger:   logger.With().Str("component", "command_router").Logger(),
	}
	r.registerRoutes()
	return r
}

// registerRoutes builds the command table
func (r *Router) registerRoutes() {
	r.add("hastle", `(?s)^%s hastle (.+) (\S+)$`, r.handlers.HandleHastle)
	r.add("stop", `^%s stop$`, r.handlers.HandleStop)
	r.add("ping", `^%s ping$`, r.handlers.HandlePing)
	r.add("bcstar", `(?s)^%s bcstar (.+)$`, r.handlers.HandleBroadcastAll)
	r.add("bcstargr", `(?s)^%s bcstargr(\d+) (\S+)\s+(.+)$`, r.handlers.HandleBroadcastStart)
	r.add("stopbcstargr", `^%s stopbcstargr(\d+)$`, r.handlers.HandleBroadcastStop)
	r.add("bl", `^%s bl$`, r.handlers.HandleBlacklistAdd)
	r.add("unbl", `^%s unbl$`, r.handlers.HandleBlacklistRemove)
	r.add("setreply", `(?s)^%s setreply(\s.*)?$`, r.handlers.HandleSetReply)
	r.add("stopall", `^%s stopall$`, r.handlers.HandleStopAll)
	r.add("status", `^%s status$`, r.handlers.HandleStatus)
	r.add("help", `^%s help$`, r.handlers.HandleHelp)

	r.logger.Info().Str("prefix", r.prefix).Int("commands", len(r.routes)).Msg("Automation command handlers registered")
}

func (r *Router) add(name, pattern string, h handlerFunc) {
	r.routes = append(r.routes, route{
		name:    name,
		pattern: regexp.MustCompile(fmt.Sprintf(pattern, regexp.QuoteMeta(r.prefix))),
		handle:  h,
	})
}

// HandleMessage implements domain.MessageHandler. Failures are answered in the chat
// or logged, never returned.
func (r *Router) HandleMessage(ctx context.Context, msg domain.IncomingMessage) error {
	m, ok := r.registry.Messenger(msg.AccountID)
	if !ok {
		r.logger.Debug().Int64("account_id", msg.AccountID).Msg("Message for detached account ignored")
		return nil
	}

	text := strings.TrimSpace(msg.Text)
	if rt, args, ok := r.match(text); ok && r.authorized(msg) {
		r.dispatch(ctx, rt, m, msg, args)
		return nil
	}

	r.handlers.HandleIncoming(ctx, m, msg)
	return nil
}

func (r *Router) match(text string) (route, []string, bool) {
	if !strings.HasPrefix(text, r.prefix) {
		return route{}, nil, false
	}
	for _, rt := range r.routes {
		if sub := rt.pattern.FindStringSubmatch(text); sub != nil {
			return rt, sub[1:], true
		}
	}
	return route{}, nil, false
}

// authorized accepts commands the account sent itself and commands from its owner
func (r *Router) authorized(msg domain.IncomingMessage) bool {
	if msg.Out {
		return true
	}
	owner, ok := r.registry.OwnerOf(msg.AccountID)
	return ok && owner != 0 && owner == msg.SenderID
}

func (r *Router) dispatch(ctx context.Context, rt route, m domain.Messenger, msg domain.IncomingMessage, args []string) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error().Interface("panic", rec).Str("command", rt.name).Msg("Command handler panic recovered")
		}
	}()

	reply := rt.handle(ctx, m, msg, args)
	if reply == "" {
		return
	}

	if err := m.Reply(ctx, msg.ChatID, msg.MessageID, reply); err != nil {
		r.logger.Warn().
			Err(err).
			Int64("account_id", msg.AccountID).
			Int64("chat_id", msg.ChatID).
			Str("command", rt.name).
			Msg("Failed to send command reply")
	}
}
