package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/vlikcc/yargisalzeka.V2/pkg/config"
	"github.com/vlikcc/yargisalzeka.V2/pkg/resilience"
)

// MessageHandler processes one message. A returned error makes the consumer
// call it again for the same message with backoff.
type MessageHandler func(ctx context.Context, key, value []byte) error

// Consumer reads a topic as a member of the configured consumer group.
type Consumer struct {
	reader  *kafka.Reader
	logger  *slog.Logger
	handler MessageHandler
	retry   resilience.RetryConfig
}

// NewConsumer creates a Consumer that starts from the newest offset when
// the group has no committed position yet.
func NewConsumer(cfg config.KafkaConfig, topic string, handler MessageHandler) *Consumer {
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     cfg.Brokers,
		Topic:       topic,
		GroupID:     cfg.ConsumerGroup,
		MinBytes:    1,
		MaxBytes:    1e6,
		StartOffset: kafka.LastOffset,
	})
	return &Consumer{
		reader:  r,
		logger:  slog.Default().With("component", "kafka-consumer", "topic", topic),
		handler: handler,
		retry:   resilience.RetryConfig{MaxAttempts: 5, InitialDelay: 5 * time.Second, MaxDelay: time.Minute},
	}
}

// Run handles messages one at a time until ctx is cancelled. A message is
// handled with retries before the next one is fetched; once the retries are
// exhausted it is logged and committed so the group does not stall on it.
func (c *Consumer) Run(ctx context.Context) error {
	c.logger.Info("consumer started")
	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				c.logger.Info("consumer stopping")
				return nil
			}
			if errors.Is(err, io.EOF) {
				return nil
			}
			c.logger.Error("fetch failed", "error", err)
			continue
		}
		log := c.logger.With("partition", msg.Partition, "offset", msg.Offset, "key", string(msg.Key))
		if err := c.handle(ctx, msg.Key, msg.Value); err != nil {
			if ctx.Err() != nil {
				c.logger.Info("consumer stopping, message left uncommitted", "offset", msg.Offset)
				return nil
			}
			log.Error("message dropped after retries", "error", err)
		}
		if err := c.reader.CommitMessages(ctx, msg); err != nil && ctx.Err() == nil {
			log.Warn("commit failed", "error", err)
		}
	}
}

func (c *Consumer) handle(ctx context.Context, key, value []byte) error {
	return resilience.Retry(ctx, "handle "+string(key), c.retry, func() error {
		return c.handler(ctx, key, value)
	})
}

// Close leaves the consumer group.
func (c *Consumer) Close() error {
	return c.reader.Close()
}

// DecodeJSON unmarshals a message value into T.
func DecodeJSON[T any](value []byte) (T, error) {
	var out T
	if err := json.Unmarshal(value, &out); err != nil {
		return out, fmt.Errorf("decoding kafka message: %w", err)
	}
	return out, nil
}
