package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setRequired(t *testing.T) {
	t.Helper()
	t.Setenv("TELEGRAM_API_ID", "12345")
	t.Setenv("TELEGRAM_API_HASH", "hash")
	t.Setenv("CONTROL_BOT_TOKEN", "123:token")
}

func TestLoad_Defaults(t *testing.T) {
	setRequired(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 12345, cfg.Telegram.APIID)
	assert.Equal(t, "file", cfg.Telegram.SessionBackend)
	assert.Equal(t, "./sessions", cfg.Telegram.SessionDir)
	assert.Equal(t, 10, cfg.Telegram.MaxSessions)
	assert.Equal(t, 30*time.Second, cfg.Telegram.ConnectTimeout)
	assert.Equal(t, "cloe", cfg.Automation.CommandPrefix)
	assert.Equal(t, "account", cfg.Automation.BlacklistScope)
	assert.Equal(t, 10*time.Minute, cfg.Automation.MaxFloodWait)
	assert.Equal(t, 15*time.Second, cfg.Service.ShutdownTimeout)
	assert.Empty(t, cfg.ControlBot.AdminIDs)
	assert.False(t, cfg.Kafka.Enabled())
	assert.False(t, cfg.S3.Enabled())
}

func TestLoad_Overrides(t *testing.T) {
	setRequired(t)
	t.Setenv("CONTROL_BOT_ADMIN_IDS", "1, 2,,3")
	t.Setenv("KAFKA_BROKERS", "kafka:9092,kafka2:9092")
	t.Setenv("SESSION_BACKEND", "POSTGRES")
	t.Setenv("AUTOMATION_SLOT_SCOPE", "Global")
	t.Setenv("S3_ENDPOINT", "minio:9000")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, []int64{1, 2, 3}, cfg.ControlBot.AdminIDs)
	assert.Equal(t, []string{"kafka:9092", "kafka2:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, "postgres", cfg.Telegram.SessionBackend)
	assert.Equal(t, "global", cfg.Automation.SlotScope)
	assert.True(t, cfg.Kafka.Enabled())
	assert.True(t, cfg.S3.Enabled())
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
		want string
	}{
		{name: "bad api id", env: map[string]string{"TELEGRAM_API_ID": "abc"}, want: "invalid TELEGRAM_API_ID"},
		{name: "missing hash", env: map[string]string{"TELEGRAM_API_HASH": ""}, want: "TELEGRAM_API_HASH is required"},
		{name: "bad admin ids", env: map[string]string{"CONTROL_BOT_ADMIN_IDS": "1,x"}, want: "invalid CONTROL_BOT_ADMIN_IDS"},
		{name: "bad backend", env: map[string]string{"SESSION_BACKEND": "redis"}, want: "SESSION_BACKEND must be file or postgres"},
		{name: "bad scope", env: map[string]string{"AUTOMATION_BLACKLIST_SCOPE": "chat"}, want: "AUTOMATION_BLACKLIST_SCOPE must be account or global"},
		{name: "zero sessions", env: map[string]string{"MAX_SESSIONS": "-1"}, want: "MAX_SESSIONS must be positive"},
		{name: "bad duration", env: map[string]string{"AUTOMATION_MAX_FLOOD_WAIT": "soon"}, want: "invalid AUTOMATION_MAX_FLOOD_WAIT"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			setRequired(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			_, err := Load()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestControlBotConfig_IsAdmin(t *testing.T) {
	cfg := &ControlBotConfig{AdminIDs: []int64{7, 42}}

	assert.True(t, cfg.IsAdmin(42))
	assert.False(t, cfg.IsAdmin(1))
	assert.False(t, (&ControlBotConfig{}).IsAdmin(7))
}

func TestSplitNonEmpty(t *testing.T) {
	assert.Equal(t, []string{}, splitNonEmpty(""))
	assert.Equal(t, []string{"a", "b"}, splitNonEmpty(" a ,, b ,"))
}
