package telegram

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"go.uber.org/fx"
	"gorm.io/gorm"

	"github.com/dapen17/vps1/config"
	"github.com/dapen17/vps1/internal/domain"
	"github.com/dapen17/vps1/internal/infrastructure/metrics"
)

// Module provides the Telegram account layer for fx DI
var Module = fx.Module("telegram",
	fx.Provide(
		NewSessionStoreFx,
		NewAccountManagerFx,
		NewLoginManagerFx,
		func(m *AccountManager) domain.AccountRegistry { return m },
	),
)

// NewSessionStoreFx selects the session backend from configuration
func NewSessionStoreFx(telegramCfg *config.TelegramConfig, db *gorm.DB, logger zerolog.Logger) (SessionStore, error) {
	switch telegramCfg.SessionBackend {
	case "postgres":
		store, err := NewPostgresSessionStore(db)
		if err != nil {
			return nil, fmt.Errorf("postgres session backend: %w", err)
		}
		logger.Info().Msg("Using PostgreSQL session storage")
		return store, nil
	default:
		store, err := NewFileSessionStore(telegramCfg.SessionDir)
		if err != nil {
			return nil, err
		}
		logger.Info().Str("dir", telegramCfg.SessionDir).Msg("Using file session storage")
		return store, nil
	}
}

// NewAccountManagerFx creates an account manager with lifecycle hooks for fx DI
func NewAccountManagerFx(
	lc fx.Lifecycle,
	telegramCfg *config.TelegramConfig,
	store SessionStore,
	m *metrics.Metrics,
	logger zerolog.Logger,
) *AccountManager {
	manager := NewAccountManager(AccountManagerConfig{
		APIID:          telegramCfg.APIID,
		APIHash:        telegramCfg.APIHash,
		RequestsPerSec: telegramCfg.RequestsPerSec,
		MaxSessions:    telegramCfg.MaxSessions,
		ConnectTimeout: telegramCfg.ConnectTimeout,
	}, store, m, logger)

	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			disconnected := manager.Shutdown(ctx)
			logger.Info().
				Int("disconnected", disconnected).
				Msg("Telegram accounts disconnected")
			return nil
		},
	})

	return manager
}

// NewLoginManagerFx creates the login manager used by the control bot
func NewLoginManagerFx(
	telegramCfg *config.TelegramConfig,
	manager *AccountManager,
	store SessionStore,
	logger zerolog.Logger,
) *LoginManager {
	return NewLoginManager(telegramCfg.APIID, telegramCfg.APIHash, manager, store, logger)
}

// StartAccounts restores stored sessions once the application has started.
// It must be invoked after every account listener has been registered.
func StartAccounts(lc fx.Lifecycle, manager *AccountManager, logger zerolog.Logger) {
	restoreCtx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			// Connecting many accounts can outlast the start timeout
			go func() {
				defer close(done)
				report := manager.RestoreSessions(restoreCtx)
				if report.TotalAccounts > 0 && report.SuccessfulAccounts == 0 {
					logger.Error().
						Int("total", report.TotalAccounts).
						Msg("No stored session could be restored")
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			cancel()
			select {
			case <-done:
			case <-ctx.Done():
			}
			return nil
		},
	})
}
