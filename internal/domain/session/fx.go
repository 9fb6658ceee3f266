// Package session contains the control bot domain module: account login and session management
package session

import (
	tgbot "github.com/go-telegram/bot"
	"github.com/rs/zerolog"
	"go.uber.org/fx"

	"github.com/dapen17/vps1/config"
	automation "github.com/dapen17/vps1/internal/domain/automation/usecase/business"
	telegramDelivery "github.com/dapen17/vps1/internal/domain/session/delivery/telegram"
	"github.com/dapen17/vps1/internal/domain/session/deps"
	kafkaRepo "github.com/dapen17/vps1/internal/domain/session/repository/kafka"
	"github.com/dapen17/vps1/internal/domain/session/usecase/business"
	"github.com/dapen17/vps1/internal/infrastructure/s3"
	"github.com/dapen17/vps1/internal/infrastructure/telegram"
)

// Module provides session domain components for fx dependency injection
var Module = fx.Module("session",
	// Repository
	fx.Provide(kafkaRepo.NewPublisher),

	// UseCase
	fx.Provide(provideUseCase),

	// Delivery - control bot commands
	fx.Provide(telegramDelivery.NewHandlers),
	fx.Provide(telegramDelivery.NewRouter),

	fx.Invoke(registerRoutes),
)

func provideUseCase(
	manager *telegram.AccountManager,
	logins *telegram.LoginManager,
	automationUC *automation.UseCase,
	s3Client *s3.Client,
	publisher deps.EventPublisher,
	cfg *config.ControlBotConfig,
	logger zerolog.Logger,
) *business.UseCase {
	// A nil *s3.Client must not become a non-nil interface
	var uploader deps.ArchiveUploader
	if s3Client != nil {
		uploader = s3Client
	}

	return business.NewUseCase(
		manager,
		logins,
		automationUC,
		uploader,
		publisher,
		cfg,
		logger.With().Str("component", "session").Logger(),
	)
}

func registerRoutes(router *telegramDelivery.Router, bot *tgbot.Bot) {
	router.RegisterRoutes(bot)
}
