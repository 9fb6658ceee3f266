// Package infrastructure contains infrastructure layer components
package infrastructure

import (
	"go.uber.org/fx"

	"github.com/dapen17/vps1/internal/infrastructure/controlbot"
	"github.com/dapen17/vps1/internal/infrastructure/database"
	httpfx "github.com/dapen17/vps1/internal/infrastructure/http"
	"github.com/dapen17/vps1/internal/infrastructure/kafka"
	"github.com/dapen17/vps1/internal/infrastructure/logger"
	"github.com/dapen17/vps1/internal/infrastructure/metrics"
	"github.com/dapen17/vps1/internal/infrastructure/s3"
	"github.com/dapen17/vps1/internal/infrastructure/telegram"
)

// Module aggregates all infrastructure modules
var Module = fx.Module("infrastructure",
	logger.Module,
	metrics.Module,
	database.Module, // Must be before telegram (postgres session backend depends on *gorm.DB)
	telegram.Module,
	kafka.Module,
	s3.Module,
	httpfx.Module,
	controlbot.Module,
)
