// Package http contains the admin HTTP endpoints
package http

import (
	"time"

	"github.com/rs/zerolog"
	"github.com/valyala/fasthttp"

	"github.com/dapen17/vps1/internal/domain"
	"github.com/dapen17/vps1/pkg/httputil"
)

// AccountLister reports the attached accounts
type AccountLister interface {
	Accounts() []domain.Account
}

// HealthStatus represents the overall health status
type HealthStatus string

const (
	HealthStatusHealthy   HealthStatus = "healthy"
	HealthStatusDegraded  HealthStatus = "degraded"
	HealthStatusUnhealthy HealthStatus = "unhealthy"
)

// ComponentHealth represents health status of a single component
type ComponentHealth struct {
	Name    string `json:"name"`
	Healthy bool   `json:"healthy"`
	Message string `json:"message,omitempty"`
}

// HealthResponse represents the JSON response for health check
type HealthResponse struct {
	Status     HealthStatus      `json:"status"`
	Timestamp  time.Time         `json:"timestamp"`
	Accounts   int               `json:"accounts"`
	Connected  int               `json:"connected"`
	Components []ComponentHealth `json:"components"`
}

// HealthHandler handles health check requests
type HealthHandler struct {
	accounts AccountLister
	logger   zerolog.Logger
}

// NewHealthHandler creates a new health check handler
func NewHealthHandler(accounts AccountLister, logger zerolog.Logger) *HealthHandler {
	return &HealthHandler{accounts: accounts, logger: logger}
}

// Handle reports the service health. The service is healthy with no accounts
// attached; it is degraded when some attached accounts are disconnected.
func (h *HealthHandler) Handle(ctx *fasthttp.RequestCtx) {
	accounts := h.accounts.Accounts()
	connected := 0
	for _, a := range accounts {
		if a.Connected {
			connected++
		}
	}

	status := HealthStatusHealthy
	component := ComponentHealth{Name: "telegram_accounts", Healthy: true}
	switch {
	case len(accounts) > 0 && connected == 0:
		status = HealthStatusUnhealthy
		component.Healthy = false
		component.Message = "no attached account is connected"
	case connected < len(accounts):
		status = HealthStatusDegraded
		component.Message = "some accounts are reconnecting"
	}

	response := HealthResponse{
		Status:     status,
		Timestamp:  time.Now().UTC(),
		Accounts:   len(accounts),
		Connected:  connected,
		Components: []ComponentHealth{component},
	}

	h.logger.Debug().
		Str("status", string(status)).
		Int("accounts", len(accounts)).
		Int("connected", connected).
		Msg("Health check completed")

	httputil.WriteHealthResponse(ctx, response, status != HealthStatusUnhealthy)
}
