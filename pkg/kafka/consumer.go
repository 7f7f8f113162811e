package kafka

import (
	"context"
	"log/slog"
	"time"

	"github.com/fundergrid/research-service/pkg/config"
	"github.com/segmentio/kafka-go"
)

// MessageHandler processes one message. A handler error skips the message
// (it is neither committed nor retried here); the consumer keeps going.
type MessageHandler func(ctx context.Context, key []byte, value []byte) error

// Consumer tails a topic and feeds each message to its handler, committing
// offsets only after the handler accepts the message.
type Consumer struct {
	reader       *kafka.Reader
	handler      MessageHandler
	fetchBackoff time.Duration
	logger       *slog.Logger
}

// NewConsumer creates a Consumer in the configured consumer group. New
// deployments start at the latest offset; historical events are not
// replayed into the aggregator.
func NewConsumer(cfg config.KafkaConfig, topic string, handler MessageHandler) *Consumer {
	return &Consumer{
		reader: kafka.NewReader(kafka.ReaderConfig{
			Brokers:     cfg.Brokers,
			Topic:       topic,
			GroupID:     cfg.ConsumerGroup,
			MinBytes:    1e3,
			MaxBytes:    10e6,
			MaxWait:     500 * time.Millisecond,
			StartOffset: kafka.LastOffset,
		}),
		handler:      handler,
		fetchBackoff: time.Second,
		logger:       slog.Default().With("component", "kafka-consumer", "topic", topic),
	}
}

// Start runs the consume loop until ctx is cancelled, then closes the reader.
func (c *Consumer) Start(ctx context.Context) error {
	c.logger.Info("consumer started")
	defer c.reader.Close()
	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				c.logger.Info("consumer stopping", "reason", ctx.Err())
				return nil
			}
			c.logger.Error("fetch failed, backing off", "error", err)
			select {
			case <-time.After(c.fetchBackoff):
				continue
			case <-ctx.Done():
				return nil
			}
		}
		c.consume(ctx, msg)
	}
}

func (c *Consumer) consume(ctx context.Context, msg kafka.Message) {
	if err := c.handler(ctx, msg.Key, msg.Value); err != nil {
		c.logger.Error("handler rejected message",
			"partition", msg.Partition,
			"offset", msg.Offset,
			"error", err,
		)
		return
	}
	if err := c.reader.CommitMessages(ctx, msg); err != nil {
		c.logger.Error("offset commit failed",
			"partition", msg.Partition,
			"offset", msg.Offset,
			"error", err,
		)
	}
}

// Close closes the underlying reader; safe to call when Start already
// returned.
func (c *Consumer) Close() error {
	return c.reader.Close()
}
