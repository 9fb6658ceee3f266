// Package kafka publishes automation events through the Kafka infrastructure
package kafka

import (
	"context"
	"strconv"

	"github.com/dapen17/vps1/config"
	"github.com/dapen17/vps1/internal/domain/automation/deps"
	"github.com/dapen17/vps1/internal/domain/automation/entities"
	infrakafka "github.com/dapen17/vps1/internal/infrastructure/kafka"
)

// Publisher implements deps.EventPublisher
type Publisher struct {
	publisher infrakafka.Publisher
	topic     string
}

// NewPublisher creates an automation event publisher for the configured topic
func NewPublisher(p infrakafka.Publisher, cfg *config.KafkaConfig) deps.EventPublisher {
	return &Publisher{publisher: p, topic: cfg.TopicAutomation}
}

// Publish sends the event keyed by account so one account's events stay ordered
func (p *Publisher) Publish(ctx context.Context, event entities.Event) error {
	return p.publisher.Publish(ctx, p.topic, strconv.FormatInt(event.AccountID, 10), event)
}
