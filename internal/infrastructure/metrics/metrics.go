package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the automation service
type Metrics struct {
	// Command metrics
	CommandsTotal *prometheus.CounterVec
	CommandErrors *prometheus.CounterVec

	// Broadcast metrics
	BroadcastCycles       prometheus.Counter
	BroadcastMessagesSent prometheus.Counter
	BroadcastSendErrors   prometheus.Counter
	BroadcastSkipped      prometheus.Counter
	ActiveBroadcasts      prometheus.Gauge

	// Spam metrics
	SpamMessagesSent prometheus.Counter
	SpamFailures     prometheus.Counter
	ActiveChatSpams  prometheus.Gauge

	// Auto-reply metrics
	AutoRepliesSent prometheus.Counter

	// Account metrics
	ActiveAccounts       prometheus.Gauge
	TotalAccounts        prometheus.Gauge
	AccountReconnections prometheus.Counter
	AccountRateLimits    prometheus.Counter
	FloodWaitSeconds     prometheus.Histogram

	// Persistence metrics
	StatePersists      prometheus.Counter
	StatePersistErrors prometheus.Counter

	// Kafka metrics
	KafkaMessagesProduced prometheus.Counter
	KafkaProduceErrors    *prometheus.CounterVec
	KafkaProduceDuration  prometheus.Histogram
}

var (
	// DefaultMetrics is the default metrics instance
	DefaultMetrics *Metrics
	once           sync.Once
)

// GetDefaultMetrics returns the singleton metrics instance
func GetDefaultMetrics() *Metrics {
	once.Do(func() {
		DefaultMetrics = NewMetrics()
	})
	return DefaultMetrics
}

func init() {
	GetDefaultMetrics()
}

// NewMetrics creates a new Metrics instance registered in the default registry
func NewMetrics() *Metrics {
	return &Metrics{
		CommandsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "automation_commands_total",
				Help: "Total number of in-chat commands handled",
			},
			[]string{"command"},
		),
		CommandErrors: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "automation_command_errors_total",
				Help: "Total number of in-chat commands that failed",
			},
			[]string{"command", "error_type"},
		),

		BroadcastCycles: promauto.NewCounter(prometheus.CounterOpts{
			Name: "automation_broadcast_cycles_total",
			Help: "Total number of completed broadcast cycles",
		}),
		BroadcastMessagesSent: promauto.NewCounter(prometheus.CounterOpts{
			Name: "automation_broadcast_messages_sent_total",
			Help: "Total number of broadcast messages delivered",
		}),
		BroadcastSendErrors: promauto.NewCounter(prometheus.CounterOpts{
			Name: "automation_broadcast_send_errors_total",
			Help: "Total number of broadcast sends that failed",
		}),
		BroadcastSkipped: promauto.NewCounter(prometheus.CounterOpts{
			Name: "automation_broadcast_skipped_total",
			Help: "Total number of chats skipped because they are blacklisted",
		}),
		ActiveBroadcasts: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "automation_active_broadcasts",
			Help: "Current number of running broadcast slots",
		}),

		SpamMessagesSent: promauto.NewCounter(prometheus.CounterOpts{
			Name: "automation_spam_messages_sent_total",
			Help: "Total number of chat spam messages delivered",
		}),
		SpamFailures: promauto.NewCounter(prometheus.CounterOpts{
			Name: "automation_spam_failures_total",
			Help: "Total number of chat spam loops stopped by an error",
		}),
		ActiveChatSpams: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "automation_active_chat_spams",
			Help: "Current number of running chat spam loops",
		}),

		AutoRepliesSent: promauto.NewCounter(prometheus.CounterOpts{
			Name: "automation_auto_replies_sent_total",
			Help: "Total number of auto-replies sent to private chats",
		}),

		ActiveAccounts: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "automation_active_accounts",
			Help: "Current number of connected Telegram accounts",
		}),
		TotalAccounts: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "automation_total_accounts",
			Help: "Total number of attached Telegram accounts",
		}),
		AccountReconnections: promauto.NewCounter(prometheus.CounterOpts{
			Name: "automation_account_reconnections_total",
			Help: "Total number of Telegram account reconnections",
		}),
		AccountRateLimits: promauto.NewCounter(prometheus.CounterOpts{
			Name: "automation_account_rate_limits_total",
			Help: "Total number of flood-wait responses from Telegram",
		}),
		FloodWaitSeconds: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "automation_flood_wait_seconds",
			Help:    "Flood-wait durations requested by Telegram in seconds",
			Buckets: []float64{1, 5, 15, 30, 60, 300, 900, 3600},
		}),

		StatePersists: promauto.NewCounter(prometheus.CounterOpts{
			Name: "automation_state_persists_total",
			Help: "Total number of state file writes",
		}),
		StatePersistErrors: promauto.NewCounter(prometheus.CounterOpts{
			Name: "automation_state_persist_errors_total",
			Help: "Total number of failed state file writes",
		}),

		KafkaMessagesProduced: promauto.NewCounter(prometheus.CounterOpts{
			Name: "automation_kafka_messages_produced_total",
			Help: "Total number of messages produced to Kafka",
		}),
		KafkaProduceErrors: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "automation_kafka_produce_errors_total",
				Help: "Total number of Kafka produce errors",
			},
			[]string{"error_type"},
		),
		KafkaProduceDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "automation_kafka_produce_duration_seconds",
			Help:    "Duration of Kafka produce operations in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}),
	}
}

// RecordCommand records a handled command
func (m *Metrics) RecordCommand(command string) {
	m.CommandsTotal.WithLabelValues(command).Inc()
}

// RecordCommandError records a failed command with error type
func (m *Metrics) RecordCommandError(command, errorType string) {
	if errorType == "" {
		errorType = "unknown"
	}
	m.CommandErrors.WithLabelValues(command, errorType).Inc()
}

// RecordBroadcastCycle records one pass of a broadcast loop
func (m *Metrics) RecordBroadcastCycle(sent, skipped, failed int) {
	m.BroadcastCycles.Inc()
	// Only add positive values to prevent counters from going backwards
	if sent > 0 {
		m.BroadcastMessagesSent.Add(float64(sent))
	}
	if skipped > 0 {
		m.BroadcastSkipped.Add(float64(skipped))
	}
	if failed > 0 {
		m.BroadcastSendErrors.Add(float64(failed))
	}
}

// RecordSpamSent records a delivered spam message
func (m *Metrics) RecordSpamSent() {
	m.SpamMessagesSent.Inc()
}

// RecordSpamFailure records a spam loop stopped by an error
func (m *Metrics) RecordSpamFailure() {
	m.SpamFailures.Inc()
}

// RecordAutoReply records a sent auto-reply
func (m *Metrics) RecordAutoReply() {
	m.AutoRepliesSent.Inc()
}

// UpdateAutomations updates the running automation gauges
func (m *Metrics) UpdateAutomations(broadcasts, chatSpams int) {
	m.ActiveBroadcasts.Set(float64(broadcasts))
	m.ActiveChatSpams.Set(float64(chatSpams))
}

// UpdateAccounts updates account metrics
func (m *Metrics) UpdateAccounts(active, total int) {
	m.ActiveAccounts.Set(float64(active))
	m.TotalAccounts.Set(float64(total))
}

// RecordAccountReconnection records a Telegram account reconnection
func (m *Metrics) RecordAccountReconnection() {
	m.AccountReconnections.Inc()
}

// RecordAccountRateLimit records a flood-wait from Telegram
func (m *Metrics) RecordAccountRateLimit(waitSeconds float64) {
	m.AccountRateLimits.Inc()
	m.FloodWaitSeconds.Observe(waitSeconds)
}

// RecordStatePersist records a state file write
func (m *Metrics) RecordStatePersist(err error) {
	if err != nil {
		m.StatePersistErrors.Inc()
		return
	}
	m.StatePersists.Inc()
}

// RecordKafkaMessage records a Kafka message production with duration
func (m *Metrics) RecordKafkaMessage(duration float64) {
	m.KafkaMessagesProduced.Inc()
	m.KafkaProduceDuration.Observe(duration)
}

// RecordKafkaError records a Kafka production error with error type
func (m *Metrics) RecordKafkaError(errorType string) {
	if errorType == "" {
		errorType = "unknown"
	}
	m.KafkaProduceErrors.WithLabelValues(errorType).Inc()
}
