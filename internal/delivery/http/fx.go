package http

import (
	"go.uber.org/fx"

	"github.com/dapen17/vps1/internal/domain/automation/usecase/business"
	"github.com/dapen17/vps1/internal/infrastructure/telegram"
)

// Module provides the admin HTTP handlers for fx DI
var Module = fx.Module("http-delivery",
	fx.Provide(
		func(m *telegram.AccountManager) AccountLister { return m },
		func(uc *business.UseCase) AutomationReader { return uc },
		NewHealthHandler,
		NewAutomationHandler,
	),
	fx.Invoke(RegisterRoutes),
)
