// Package kafka provides Kafka producer and consumer clients backed by
// segmentio/kafka-go. The producer serialises payloads as JSON, while the
// consumer decodes them via a pluggable MessageHandler callback.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/fundergrid/research-service/pkg/config"
	"github.com/segmentio/kafka-go"
)

// Producer publishes JSON-encoded payloads to a single Kafka topic,
// partitioned by key hash so events for the same key stay ordered.
type Producer struct {
	writer *kafka.Writer
	logger *slog.Logger
}

// NewProducer creates a synchronous Producer for the given topic.
func NewProducer(cfg config.KafkaConfig, topic string) *Producer {
	return &Producer{
		writer: &kafka.Writer{
			Addr:                   kafka.TCP(cfg.Brokers...),
			Topic:                  topic,
			Balancer:               &kafka.Hash{},
			BatchTimeout:           20 * time.Millisecond,
			WriteTimeout:           5 * time.Second,
			MaxAttempts:            3,
			RequiredAcks:           kafka.RequireOne,
			Compression:            kafka.Snappy,
			AllowAutoTopicCreation: true,
		},
		logger: slog.Default().With("component", "kafka-producer", "topic", topic),
	}
}

// Publish marshals payload to JSON and writes it under the given key. The
// write blocks until the broker acknowledges or ctx expires.
func (p *Producer) Publish(ctx context.Context, key string, payload any) error {
	value, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encoding payload for key %q: %w", key, err)
	}
	err = p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(key),
		Value: value,
	})
	if err != nil {
		return fmt.Errorf("writing message for key %q: %w", key, err)
	}
	p.logger.Debug("message published", "key", key, "bytes", len(value))
	return nil
}

// Close flushes pending writes and closes the writer.
func (p *Producer) Close() error {
	return p.writer.Close()
}
