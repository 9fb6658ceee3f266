// Package kafka publishes account events through the Kafka infrastructure
package kafka

import (
	"context"
	"strconv"

	"github.com/dapen17/vps1/config"
	"github.com/dapen17/vps1/internal/domain/session/deps"
	"github.com/dapen17/vps1/internal/domain/session/entities"
	infrakafka "github.com/dapen17/vps1/internal/infrastructure/kafka"
)

// Publisher implements deps.EventPublisher
type Publisher struct {
	publisher infrakafka.Publisher
	topic     string
}

// NewPublisher creates an account event publisher for the configured topic
func NewPublisher(p infrakafka.Publisher, cfg *config.KafkaConfig) deps.EventPublisher {
	return &Publisher{publisher: p, topic: cfg.TopicAccountAuth}
}

// Publish sends the event keyed by owner
func (p *Publisher) Publish(ctx context.Context, event entities.AccountEvent) error {
	return p.publisher.Publish(ctx, p.topic, strconv.FormatInt(event.OwnerID, 10), event)
}
