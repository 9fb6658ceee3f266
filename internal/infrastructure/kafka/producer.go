// Package kafka publishes automation and account events to Kafka
package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/IBM/sarama"
	"github.com/rs/zerolog"

	"github.com/dapen17/vps1/internal/infrastructure/metrics"
)

// ErrProducerClosed is returned by Publish after Close
var ErrProducerClosed = errors.New("kafka producer is closed")

// Publisher sends JSON events to a topic
type Publisher interface {
	Publish(ctx context.Context, topic, key string, payload interface{}) error
	Close() error
}

// ProducerConfig holds configuration for the Kafka producer
type ProducerConfig struct {
	Brokers    []string
	ClientID   string
	MaxRetries int
	Logger     zerolog.Logger
	Metrics    *metrics.Metrics
}

// Producer is a Publisher on top of a sarama sync producer
type Producer struct {
	producer sarama.SyncProducer
	metrics  *metrics.Metrics
	logger   zerolog.Logger

	closeOnce sync.Once
	closeErr  error
	closed    bool
	closeMu   sync.RWMutex
}

// NewProducer connects a sync producer to the brokers
func NewProducer(cfg ProducerConfig) (*Producer, error) {
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("no kafka brokers specified")
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.ClientID == "" {
		cfg.ClientID = "automation-service-producer"
	}

	config := sarama.NewConfig()
	config.Producer.RequiredAcks = sarama.WaitForAll
	config.Producer.Retry.Max = cfg.MaxRetries
	config.Producer.Return.Successes = true
	config.Producer.Compression = sarama.CompressionSnappy
	config.Producer.Partitioner = sarama.NewHashPartitioner
	config.ClientID = cfg.ClientID
	config.Version = sarama.V2_6_0_0

	producer, err := sarama.NewSyncProducer(cfg.Brokers, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka producer: %w", err)
	}

	cfg.Logger.Info().Strs("brokers", cfg.Brokers).Msg("Kafka producer initialized successfully")

	return newProducer(producer, cfg.Metrics, cfg.Logger), nil
}

func newProducer(producer sarama.SyncProducer, m *metrics.Metrics, logger zerolog.Logger) *Producer {
	return &Producer{
		producer: producer,
		metrics:  m,
		logger:   logger.With().Str("component", "kafka_producer").Logger(),
	}
}

// Publish marshals payload to JSON and sends it, keyed by key for partitioning
func (p *Producer) Publish(ctx context.Context, topic, key string, payload interface{}) error {
	if topic == "" {
		return fmt.Errorf("kafka topic is required")
	}

	select {
	case <-ctx.Done():
		return fmt.Errorf("context cancelled before sending: %w", ctx.Err())
	default:
	}

	p.closeMu.RLock()
	defer p.closeMu.RUnlock()
	if p.closed {
		return ErrProducerClosed
	}

	value, err := json.Marshal(payload)
	if err != nil {
		p.recordError("marshal")
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	msg := &sarama.ProducerMessage{
		Topic:     topic,
		Value:     sarama.ByteEncoder(value),
		Timestamp: time.Now(),
	}
	if key != "" {
		msg.Key = sarama.StringEncoder(key)
	}

	start := time.Now()
	partition, offset, err := p.producer.SendMessage(msg)
	if err != nil {
		p.recordError("send")
		p.logger.Error().Err(err).Str("topic", topic).Msg("Failed to send Kafka message")
		return fmt.Errorf("failed to send message: %w", err)
	}
	if p.metrics != nil {
		p.metrics.RecordKafkaMessage(time.Since(start).Seconds())
	}

	p.logger.Debug().
		Str("topic", topic).
		Int32("partition", partition).
		Int64("offset", offset).
		Msg("Message sent to Kafka successfully")
	return nil
}

func (p *Producer) recordError(kind string) {
	if p.metrics != nil {
		p.metrics.RecordKafkaError(kind)
	}
}

// Close flushes and closes the producer. Close is idempotent.
func (p *Producer) Close() error {
	p.closeOnce.Do(func() {
		p.closeMu.Lock()
		p.closed = true
		p.closeMu.Unlock()

		if err := p.producer.Close(); err != nil {
			p.logger.Error().Err(err).Msg("Error closing Kafka producer")
			p.closeErr = fmt.Errorf("producer close failed: %w", err)
			return
		}
		p.logger.Info().Msg("Kafka producer closed")
	})
	return p.closeErr
}

// NoopPublisher drops every event. Used when no brokers are configured.
type NoopPublisher struct{}

// Publish implements Publisher
func (NoopPublisher) Publish(context.Context, string, string, interface{}) error { return nil }

// Close implements Publisher
func (NoopPublisher) Close() error { return nil }

var (
	_ Publisher = (*Producer)(nil)
	_ Publisher = NoopPublisher{}
)
