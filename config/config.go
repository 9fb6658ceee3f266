package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/fx"
)

// Config holds all configuration for the automation service
type Config struct {
	Telegram   TelegramConfig
	ControlBot ControlBotConfig
	Automation AutomationConfig
	Database   DatabaseConfig
	Kafka      KafkaConfig
	S3         S3Config
	Logging    LoggingConfig
	Service    ServiceConfig
}

// TelegramConfig holds Telegram MTProto configuration for user accounts
type TelegramConfig struct {
	APIID          int
	APIHash        string
	SessionDir     string
	SessionBackend string // file | postgres
	MaxSessions    int
	ConnectTimeout time.Duration
	RequestsPerSec int
}

// ControlBotConfig holds configuration of the Bot API control bot
type ControlBotConfig struct {
	Token    string
	AdminIDs []int64
}

// AutomationConfig holds automation behaviour settings
type AutomationConfig struct {
	CommandPrefix  string
	StateFile      string
	BlacklistScope string // account | global
	SlotScope      string // account | global
	MaxSlots       int
	MaxFloodWait   time.Duration
	BackupInterval time.Duration
}

// DatabaseConfig holds PostgreSQL configuration for the postgres session backend
type DatabaseConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
}

// KafkaConfig holds Kafka configuration for automation events
type KafkaConfig struct {
	Brokers          []string
	TopicAutomation  string
	TopicAccountAuth string
}

// S3Config holds MinIO/S3 configuration for state and session backups
type S3Config struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level      string
	File       string
	MaxSizeMB  int
	MaxBackups int
}

// ServiceConfig holds service configuration
type ServiceConfig struct {
	Name            string
	Port            string
	ShutdownTimeout time.Duration
}

// Result provides config parts for fx dependency injection using fx.Out pattern
type Result struct {
	fx.Out

	Config     *Config
	Telegram   *TelegramConfig
	ControlBot *ControlBotConfig
	Automation *AutomationConfig
	Database   *DatabaseConfig
	Kafka      *KafkaConfig
	S3         *S3Config
	Logging    *LoggingConfig
	Service    *ServiceConfig
}

// Out loads configuration and returns Result for fx injection
func Out() (Result, error) {
	cfg, err := Load()
	if err != nil {
		return Result{}, err
	}

	return Result{
		Config:     cfg,
		Telegram:   &cfg.Telegram,
		ControlBot: &cfg.ControlBot,
		Automation: &cfg.Automation,
		Database:   &cfg.Database,
		Kafka:      &cfg.Kafka,
		S3:         &cfg.S3,
		Logging:    &cfg.Logging,
		Service:    &cfg.Service,
	}, nil
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if exists
	_ = godotenv.Load()

	apiID, err := strconv.Atoi(getEnv("TELEGRAM_API_ID", "0"))
	if err != nil {
		return nil, fmt.Errorf("invalid TELEGRAM_API_ID: %w", err)
	}

	maxSessions, err := strconv.Atoi(getEnv("MAX_SESSIONS", "10"))
	if err != nil {
		return nil, fmt.Errorf("invalid MAX_SESSIONS: %w", err)
	}

	requestsPerSec, err := strconv.Atoi(getEnv("TELEGRAM_REQUESTS_PER_SEC", "10"))
	if err != nil {
		return nil, fmt.Errorf("invalid TELEGRAM_REQUESTS_PER_SEC: %w", err)
	}

	connectTimeout, err := time.ParseDuration(getEnv("TELEGRAM_CONNECT_TIMEOUT", "30s"))
	if err != nil {
		return nil, fmt.Errorf("invalid TELEGRAM_CONNECT_TIMEOUT: %w", err)
	}

	adminIDs, err := parseIDs(getEnv("CONTROL_BOT_ADMIN_IDS", ""))
	if err != nil {
		return nil, fmt.Errorf("invalid CONTROL_BOT_ADMIN_IDS: %w", err)
	}

	maxSlots, err := strconv.Atoi(getEnv("AUTOMATION_MAX_SLOTS", "10"))
	if err != nil {
		return nil, fmt.Errorf("invalid AUTOMATION_MAX_SLOTS: %w", err)
	}

	maxFloodWait, err := time.ParseDuration(getEnv("AUTOMATION_MAX_FLOOD_WAIT", "10m"))
	if err != nil {
		return nil, fmt.Errorf("invalid AUTOMATION_MAX_FLOOD_WAIT: %w", err)
	}

	backupInterval, err := time.ParseDuration(getEnv("AUTOMATION_BACKUP_INTERVAL", "1h"))
	if err != nil {
		return nil, fmt.Errorf("invalid AUTOMATION_BACKUP_INTERVAL: %w", err)
	}

	shutdownTimeout, err := time.ParseDuration(getEnv("SERVICE_SHUTDOWN_TIMEOUT", "15s"))
	if err != nil {
		return nil, fmt.Errorf("invalid SERVICE_SHUTDOWN_TIMEOUT: %w", err)
	}

	logMaxSize, err := strconv.Atoi(getEnv("LOG_MAX_SIZE_MB", "50"))
	if err != nil {
		return nil, fmt.Errorf("invalid LOG_MAX_SIZE_MB: %w", err)
	}

	logMaxBackups, err := strconv.Atoi(getEnv("LOG_MAX_BACKUPS", "3"))
	if err != nil {
		return nil, fmt.Errorf("invalid LOG_MAX_BACKUPS: %w", err)
	}

	cfg := &Config{
		Telegram: TelegramConfig{
			APIID:          apiID,
			APIHash:        getEnv("TELEGRAM_API_HASH", ""),
			SessionDir:     getEnv("TELEGRAM_SESSION_DIR", "./sessions"),
			SessionBackend: strings.ToLower(getEnv("SESSION_BACKEND", "file")),
			MaxSessions:    maxSessions,
			ConnectTimeout: connectTimeout,
			RequestsPerSec: requestsPerSec,
		},
		ControlBot: ControlBotConfig{
			Token:    getEnv("CONTROL_BOT_TOKEN", ""),
			AdminIDs: adminIDs,
		},
		Automation: AutomationConfig{
			CommandPrefix:  getEnv("AUTOMATION_COMMAND_PREFIX", "cloe"),
			StateFile:      getEnv("AUTOMATION_STATE_FILE", "bot_state.json"),
			BlacklistScope: strings.ToLower(getEnv("AUTOMATION_BLACKLIST_SCOPE", "account")),
			SlotScope:      strings.ToLower(getEnv("AUTOMATION_SLOT_SCOPE", "account")),
			MaxSlots:       maxSlots,
			MaxFloodWait:   maxFloodWait,
			BackupInterval: backupInterval,
		},
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
			User:     getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", "postgres"),
			DBName:   getEnv("DB_NAME", "automation"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		Kafka: KafkaConfig{
			Brokers:          splitNonEmpty(getEnv("KAFKA_BROKERS", "")),
			TopicAutomation:  getEnv("KAFKA_TOPIC_AUTOMATION_EVENTS", "automation.events"),
			TopicAccountAuth: getEnv("KAFKA_TOPIC_ACCOUNT_EVENTS", "account.events"),
		},
		S3: S3Config{
			Endpoint:  getEnv("S3_ENDPOINT", ""),
			AccessKey: getEnv("S3_ACCESS_KEY", ""),
			SecretKey: getEnv("S3_SECRET_KEY", ""),
			Bucket:    getEnv("S3_BUCKET", "automation-backups"),
			UseSSL:    getEnv("S3_USE_SSL", "false") == "true",
		},
		Logging: LoggingConfig{
			Level:      getEnv("LOG_LEVEL", "info"),
			File:       getEnv("LOG_FILE", ""),
			MaxSizeMB:  logMaxSize,
			MaxBackups: logMaxBackups,
		},
		Service: ServiceConfig{
			Name:            getEnv("SERVICE_NAME", "automation-service"),
			Port:            getEnv("SERVICE_PORT", "8085"),
			ShutdownTimeout: shutdownTimeout,
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Telegram.APIID == 0 {
		return fmt.Errorf("TELEGRAM_API_ID is required")
	}

	if c.Telegram.APIHash == "" {
		return fmt.Errorf("TELEGRAM_API_HASH is required")
	}

	if c.ControlBot.Token == "" {
		return fmt.Errorf("CONTROL_BOT_TOKEN is required")
	}

	if c.Telegram.SessionBackend != "file" && c.Telegram.SessionBackend != "postgres" {
		return fmt.Errorf("SESSION_BACKEND must be file or postgres")
	}

	if c.Telegram.MaxSessions <= 0 {
		return fmt.Errorf("MAX_SESSIONS must be positive")
	}

	if strings.TrimSpace(c.Automation.CommandPrefix) == "" {
		return fmt.Errorf("AUTOMATION_COMMAND_PREFIX is required")
	}

	if !isScope(c.Automation.BlacklistScope) {
		return fmt.Errorf("AUTOMATION_BLACKLIST_SCOPE must be account or global")
	}

	if !isScope(c.Automation.SlotScope) {
		return fmt.Errorf("AUTOMATION_SLOT_SCOPE must be account or global")
	}

	if c.Automation.MaxSlots <= 0 {
		return fmt.Errorf("AUTOMATION_MAX_SLOTS must be positive")
	}

	return nil
}

// IsAdmin reports whether the control-bot user may use admin commands
func (c *ControlBotConfig) IsAdmin(userID int64) bool {
	for _, id := range c.AdminIDs {
		if id == userID {
			return true
		}
	}
	return false
}

// Enabled reports whether Kafka event publishing is configured
func (c *KafkaConfig) Enabled() bool {
	return len(c.Brokers) > 0
}

// Enabled reports whether S3 backups are configured
func (c *S3Config) Enabled() bool {
	return c.Endpoint != ""
}

func isScope(s string) bool {
	return s == "account" || s == "global"
}

func parseIDs(s string) ([]int64, error) {
	parts := splitNonEmpty(s)
	ids := make([]int64, 0, len(parts))
	for _, p := range parts {
		id, err := strconv.ParseInt(p, 10, 64)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func splitNonEmpty(s string) []string {
	out := []string{}
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// getEnv gets environment variable with default value
func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}
