package repository

import (
	"context"

	"ModelHub/internal/domain/models"
	"ModelHub/internal/domain/repository"
	pkgkafka "ModelHub/pkg/kafka"
)

// KafkaEventPublisher writes run events keyed by run ID so one run's
// transitions land on one partition in order.
type KafkaEventPublisher struct {
	producer *pkgkafka.Producer
	topic    string
}

var _ repository.EventPublisher = (*KafkaEventPublisher)(nil)

func NewKafkaEventPublisher(producer *pkgkafka.Producer, topic string) *KafkaEventPublisher {
	return &KafkaEventPublisher{producer: producer, topic: topic}
}

func (p *KafkaEventPublisher) PublishRunEvent(ctx context.Context, ev models.RunEvent) error {
	return p.producer.Publish(ctx, p.topic, []byte(ev.RunID), ev)
}

func (p *KafkaEventPublisher) Close() error {
	if p.producer != nil {
		return p.producer.Close()
	}
	return nil
}

// NopEventPublisher drops events when Kafka is disabled.
type NopEventPublisher struct{}

var _ repository.EventPublisher = NopEventPublisher{}

func (NopEventPublisher) PublishRunEvent(context.Context, models.RunEvent) error { return nil }
func (NopEventPublisher) Close() error                                           { return nil }
