package app

import (
	"os"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/fx"
)

func TestCreateApp(t *testing.T) {
	// Set required environment variables for test
	env := map[string]string{
		"TELEGRAM_API_ID":   "12345",
		"TELEGRAM_API_HASH": "test-hash",
		"CONTROL_BOT_TOKEN": "123:test-token",
		"KAFKA_BROKERS":     "localhost:9093",
	}
	for k, v := range env {
		os.Setenv(k, v)
	}
	defer func() {
		for k := range env {
			os.Unsetenv(k)
		}
	}()

	// Validate fx dependency graph
	require.NoError(t, fx.ValidateApp(CreateApp()))
}
