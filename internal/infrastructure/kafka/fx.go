package kafka

import (
	"context"

	"github.com/rs/zerolog"
	"go.uber.org/fx"

	"github.com/dapen17/vps1/config"
	"github.com/dapen17/vps1/internal/infrastructure/metrics"
)

// Module provides the Kafka event publisher for fx DI
var Module = fx.Module("kafka",
	fx.Provide(NewPublisherFx),
)

// NewPublisherFx creates a Kafka publisher, or a no-op one when Kafka is not configured
func NewPublisherFx(
	lc fx.Lifecycle,
	kafkaCfg *config.KafkaConfig,
	m *metrics.Metrics,
	logger zerolog.Logger,
) (Publisher, error) {
	if !kafkaCfg.Enabled() {
		logger.Info().Msg("Kafka brokers not configured, events are not published")
		return NoopPublisher{}, nil
	}

	producer, err := NewProducer(ProducerConfig{
		Brokers: kafkaCfg.Brokers,
		Logger:  logger,
		Metrics: m,
	})
	if err != nil {
		return nil, err
	}

	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			return producer.Close()
		},
	})

	return producer, nil
}
