// Package app contains application bootstrap
package app

import (
	"go.uber.org/fx"

	"github.com/dapen17/vps1/config"
	httpDelivery "github.com/dapen17/vps1/internal/delivery/http"
	"github.com/dapen17/vps1/internal/domain/automation"
	"github.com/dapen17/vps1/internal/domain/session"
	"github.com/dapen17/vps1/internal/infrastructure"
	"github.com/dapen17/vps1/internal/infrastructure/telegram"
)

// CreateApp creates fx application with all modules
func CreateApp() fx.Option {
	return fx.Options(
		// Configuration
		fx.Provide(config.Out),

		// Infrastructure (logger, metrics, storage, telegram, kafka, s3, http, control bot)
		infrastructure.Module,

		// Domain
		automation.Module,
		session.Module, // Must be after automation (restart persists automation state)

		// Admin HTTP endpoints
		httpDelivery.Module,

		// Sessions are restored last so every account listener is registered
		fx.Invoke(telegram.StartAccounts),
	)
}
