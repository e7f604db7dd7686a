package kafka

import (
	"context"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"task-orchestration-service/internal/logger"
)

// NewEventProducer returns an async writer for execution events. Delivery
// failures are logged from the completion callback.
func NewEventProducer(brokers []string, topic string, log *zap.SugaredLogger) *kafka.Writer {
	log = logger.Component(log, "kafka")
	producer := &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireOne,
		Async:                  true,
		BatchTimeout:           50 * time.Millisecond,
		AllowAutoTopicCreation: true,
		Completion: func(messages []kafka.Message, err error) {
			if err != nil {
				log.Errorw("Failed to deliver events", logger.FieldCount, len(messages), logger.FieldError, err)
			}
		},
	}
	log.Infow("Kafka event producer configured", "topic", topic, "brokers", brokers)
	return producer
}

// Close flushes pending messages, giving up when ctx expires.
func Close(ctx context.Context, w *kafka.Writer) error {
	done := make(chan error, 1)
	go func() { done <- w.Close() }()
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}
