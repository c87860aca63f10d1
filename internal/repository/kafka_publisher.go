package repository

import (
	"context"
	"fmt"

	"CoinCast/internal/domain/models"
	pkgkafka "CoinCast/pkg/kafka"
)

// KafkaEventPublisher emits domain events to Kafka, keyed by crypto
// id so per-asset ordering is preserved.
type KafkaEventPublisher struct {
	producer    *pkgkafka.Producer
	pricesTopic string
	eventsTopic string
}

func NewKafkaEventPublisher(producer *pkgkafka.Producer, pricesTopic, eventsTopic string) *KafkaEventPublisher {
	return &KafkaEventPublisher{
		producer:    producer,
		pricesTopic: pricesTopic,
		eventsTopic: eventsTopic,
	}
}

func (p *KafkaEventPublisher) PublishPricesUpdated(ctx context.Context, ev models.PricesUpdatedEvent) error {
	key := []byte(fmt.Sprintf("%d", ev.CryptoID))
	if err := p.producer.Publish(ctx, p.pricesTopic, key, ev); err != nil {
		return fmt.Errorf("publish prices updated: %w", err)
	}
	return nil
}

func (p *KafkaEventPublisher) PublishForecastCompleted(ctx context.Context, ev models.ForecastCompletedEvent) error {
	key := []byte(fmt.Sprintf("%d", ev.CryptoID))
	if err := p.producer.Publish(ctx, p.eventsTopic, key, ev); err != nil {
		return fmt.Errorf("publish forecast completed: %w", err)
	}
	return nil
}

// PublishMessage satisfies logger.Publisher so aggregated logs can be
// shipped through the same producer.
func (p *KafkaEventPublisher) PublishMessage(ctx context.Context, topic string, payload interface{}) error {
	return p.producer.Publish(ctx, topic, nil, payload)
}

func (p *KafkaEventPublisher) Close() error {
	return p.producer.Close()
}

// NoopEventPublisher is used when Kafka is disabled.
type NoopEventPublisher struct{}

func (NoopEventPublisher) PublishPricesUpdated(context.Context, models.PricesUpdatedEvent) error {
	return nil
}

func (NoopEventPublisher) PublishForecastCompleted(context.Context, models.ForecastCompletedEvent) error {
	return nil
}

func (NoopEventPublisher) Close() error { return nil }
