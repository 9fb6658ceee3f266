package controlbot

import (
	"context"

	tgbot "github.com/go-telegram/bot"
	"github.com/rs/zerolog"
	"go.uber.org/fx"

	"github.com/dapen17/vps1/config"
)

// Module provides the control bot for fx dependency injection
var Module = fx.Module("controlbot",
	fx.Provide(provideBot),
	fx.Provide(func(b *Bot) *tgbot.Bot { return b.Raw() }),
	fx.Invoke(registerLifecycle),
)

// provideBot creates the control bot from config
func provideBot(cfg *config.ControlBotConfig, logger zerolog.Logger) (*Bot, error) {
	return NewBot(cfg.Token, logger)
}

// registerLifecycle runs long polling between start and stop
func registerLifecycle(lc fx.Lifecycle, bot *Bot) {
	var cancel context.CancelFunc
	done := make(chan struct{})

	lc.Append(fx.Hook{
		OnStart: func(_ context.Context) error {
			var ctx context.Context
			ctx, cancel = context.WithCancel(context.Background())

			// Start blocks until the context is cancelled
			go func() {
				defer close(done)
				bot.Start(ctx)
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			if cancel == nil {
				return nil
			}
			cancel()
			select {
			case <-done:
			case <-ctx.Done():
			}
			return nil
		},
	})
}
