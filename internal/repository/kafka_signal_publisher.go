package repository

import (
	"context"

	"NeuralTrade/internal/domain/models"
	pkgkafka "NeuralTrade/pkg/kafka"
)

// KafkaSignalPublisher writes predictions to a topic keyed by market, so one market stays on one partition.
type KafkaSignalPublisher struct {
	producer *pkgkafka.Producer
	topic    string
}

func NewKafkaSignalPublisher(producer *pkgkafka.Producer, topic string) *KafkaSignalPublisher {
	return &KafkaSignalPublisher{producer: producer, topic: topic}
}

func (p *KafkaSignalPublisher) Name() string { return "kafka" }

func (p *KafkaSignalPublisher) Publish(ctx context.Context, s *models.SignalPrediction) error {
	return p.producer.Publish(ctx, p.topic, []byte(s.Key()), s)
}

func (p *KafkaSignalPublisher) Close() error {
	if p.producer != nil {
		return p.producer.Close()
	}
	return nil
}
