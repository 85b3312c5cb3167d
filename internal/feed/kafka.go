package feed

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"
)

const sourceKafka = "kafka"

// messageReader is the subset of *kafka.Reader used by the consumer.
type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaConsumer reads execution messages from a topic. Offsets are committed
// only after a message is applied, so a failed message is redelivered after
// restart.
type KafkaConsumer struct {
	reader  messageReader
	handler *Handler
	log     zerolog.Logger
}

// NewKafkaConsumer creates a consumer-group reader for topic.
func NewKafkaConsumer(brokers []string, topic, groupID string, handler *Handler, log zerolog.Logger) *KafkaConsumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers,
		Topic:    topic,
		GroupID:  groupID,
		MinBytes: 1,
		MaxBytes: 10e6,
	})
	return newKafkaConsumer(reader, handler, log)
}

func newKafkaConsumer(reader messageReader, handler *Handler, log zerolog.Logger) *KafkaConsumer {
	return &KafkaConsumer{
		reader:  reader,
		handler: handler,
		log:     log.With().Str("component", "kafka_consumer").Logger(),
	}
}

// Run consumes until ctx is cancelled (returns nil) or a message cannot be
// applied (returns the error, offset uncommitted).
func (c *KafkaConsumer) Run(ctx context.Context) error {
	c.log.Info().Msg("kafka consumer started")
	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, context.Canceled) {
				c.log.Info().Msg("kafka consumer stopped")
				return nil
			}
			return fmt.Errorf("fetch message: %w", err)
		}

		if err := c.handler.Handle(ctx, sourceKafka, msg.Value); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("handle message partition=%d offset=%d: %w", msg.Partition, msg.Offset, err)
		}

		if err := c.reader.CommitMessages(ctx, msg); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("commit offset %d: %w", msg.Offset, err)
		}
	}
}

// Close closes the underlying reader.
func (c *KafkaConsumer) Close() error {
	return c.reader.Close()
}
