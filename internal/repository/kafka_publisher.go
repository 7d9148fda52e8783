package repository

import (
	"context"

	"SignalHub/internal/domain/models"
	domrepo "SignalHub/internal/domain/repository"
	pkgkafka "SignalHub/pkg/kafka"
)

// KafkaEventPublisher mirrors hub events to a Kafka topic keyed by ticker.
type KafkaEventPublisher struct {
	producer *pkgkafka.Producer
	topic    string
}

// NewKafkaEventPublisher creates Kafka publisher.
func NewKafkaEventPublisher(producer *pkgkafka.Producer, topic string) *KafkaEventPublisher {
	return &KafkaEventPublisher{producer: producer, topic: topic}
}

var _ domrepo.EventPublisher = (*KafkaEventPublisher)(nil)

func (p *KafkaEventPublisher) PublishEvent(ctx context.Context, ev models.Event) error {
	return p.producer.Publish(ctx, p.topic, []byte(ev.Ticker), ev, pkgkafka.Header{Key: "event_type", Value: ev.Type})
}

func (p *KafkaEventPublisher) Close() error {
	if p.producer != nil {
		return p.producer.Close()
	}
	return nil
}
