package http

import (
	"github.com/rs/zerolog"

	"github.com/dapen17/vps1/internal/infrastructure/http/server"
	"github.com/dapen17/vps1/pkg/httputil"
)

// RegisterRoutes registers the admin endpoints on the server router
func RegisterRoutes(srv *server.Server, health *HealthHandler, automation *AutomationHandler, logger zerolog.Logger) {
	srv.Router.GET("/health", health.Handle)

	api := httputil.NewMiddlewareGroup(srv.Router.Group("/automation"), httputil.RequestLogger(logger))
	api.GET("/state", automation.State)
	api.GET("/status/{account_id}", automation.AccountStatus)
}
