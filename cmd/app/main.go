package main

import (
	"time"

	"go.uber.org/fx"

	"github.com/dapen17/vps1/config"
	"github.com/dapen17/vps1/internal/app"
)

const defaultStopTimeout = 15 * time.Second

func main() {
	fx.New(
		app.CreateApp(),
		fx.StopTimeout(stopTimeout()),
	).Run()
}

// stopTimeout reads the shutdown budget; config errors are reported by the app itself
func stopTimeout() time.Duration {
	cfg, err := config.Load()
	if err != nil || cfg.Service.ShutdownTimeout <= 0 {
		return defaultStopTimeout
	}
	return cfg.Service.ShutdownTimeout
}
