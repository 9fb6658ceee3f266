// Package automation contains the per-account automation domain module
package automation

import (
	"context"

	"github.com/rs/zerolog"
	"go.uber.org/fx"

	"github.com/dapen17/vps1/config"
	telegramDelivery "github.com/dapen17/vps1/internal/domain/automation/delivery/telegram"
	"github.com/dapen17/vps1/internal/domain/automation/deps"
	"github.com/dapen17/vps1/internal/domain/automation/entities"
	"github.com/dapen17/vps1/internal/domain/automation/repository/file"
	kafkaRepo "github.com/dapen17/vps1/internal/domain/automation/repository/kafka"
	"github.com/dapen17/vps1/internal/domain/automation/scheduler"
	"github.com/dapen17/vps1/internal/domain/automation/store"
	"github.com/dapen17/vps1/internal/domain/automation/usecase/business"
	"github.com/dapen17/vps1/internal/domain/automation/workers"
	"github.com/dapen17/vps1/internal/infrastructure/metrics"
	"github.com/dapen17/vps1/internal/infrastructure/s3"
	"github.com/dapen17/vps1/internal/infrastructure/telegram"
)

// Module provides automation domain components for fx dependency injection
var Module = fx.Module("automation",
	// Repository
	fx.Provide(provideFileRepository),
	fx.Provide(func(r *file.Repository) deps.StateRepository { return r }),
	fx.Provide(kafkaRepo.NewPublisher),

	// State and scheduling
	fx.Provide(provideStore),
	fx.Provide(scheduler.NewRunner),

	// UseCase
	fx.Provide(provideUseCase),

	// Delivery - in-chat commands of attached accounts
	fx.Provide(telegramDelivery.NewHandlers),
	fx.Provide(telegramDelivery.NewRouter),

	// Backups stop after the use case wrote its final state
	fx.Invoke(registerBackupWorker),

	// Wire the account manager and register lifecycle
	fx.Invoke(wireAndRegister),
)

func provideFileRepository(cfg *config.AutomationConfig, logger zerolog.Logger) *file.Repository {
	return file.NewRepository(cfg.StateFile, logger)
}

func provideStore(repo deps.StateRepository, cfg *config.AutomationConfig, logger zerolog.Logger) *store.Store {
	return store.New(repo, store.Policy{
		BlacklistScope: entities.Scope(cfg.BlacklistScope),
		SlotScope:      entities.Scope(cfg.SlotScope),
	}, logger)
}

func provideUseCase(
	st *store.Store,
	runner *scheduler.Runner,
	publisher deps.EventPublisher,
	m *metrics.Metrics,
	cfg *config.AutomationConfig,
	logger zerolog.Logger,
) *business.UseCase {
	return business.NewUseCase(st, runner, publisher, m, business.Config{
		MaxSlots:  cfg.MaxSlots,
		Scheduler: scheduler.Config{MaxFloodWait: cfg.MaxFloodWait},
	}, logger.With().Str("component", "automation").Logger())
}

// wireAndRegister connects the use case to the account manager.
// The state is restored on start before any account is attached.
func wireAndRegister(
	lc fx.Lifecycle,
	uc *business.UseCase,
	router *telegramDelivery.Router,
	manager *telegram.AccountManager,
	logger zerolog.Logger,
) {
	uc.SetRegistry(manager)
	manager.AddListener(uc)
	manager.SetMessageHandler(router.HandleMessage)

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			uc.Restore(ctx)
			logger.Info().Msg("Automation state restored")
			return nil
		},
		OnStop: func(ctx context.Context) error {
			if err := uc.Shutdown(ctx); err != nil {
				logger.Warn().Err(err).Msg("Automation tasks did not stop in time")
			}
			return nil
		},
	})
}

// registerBackupWorker starts periodic state backups when S3 is configured
func registerBackupWorker(
	lc fx.Lifecycle,
	repo *file.Repository,
	client *s3.Client,
	cfg *config.AutomationConfig,
	logger zerolog.Logger,
) {
	if client == nil {
		return
	}

	w := workers.NewBackupWorker(repo, client, cfg.BackupInterval, logger)
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			w.Start()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			w.Stop(ctx)
			return nil
		},
	})
}
