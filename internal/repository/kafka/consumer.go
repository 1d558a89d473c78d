package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"
)

// DecodeError means a message was fetched but its value is not a valid
// event. The message can still be committed.
type DecodeError struct {
	Offset int64
	Err    error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode message at offset %d: %v", e.Offset, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// Consumer reads JSON events from one topic as a member of a consumer group.
// Offsets are committed explicitly with CommitMessage.
type Consumer struct {
	reader *kafka.Reader
	log    *slog.Logger
}

func NewConsumer(brokers []string, topic, groupID string, log *slog.Logger) *Consumer {
	if log == nil {
		log = slog.Default()
	}

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers: brokers,
		Topic:   topic,
		GroupID: groupID,
		// Requests issued while the agent was down are stale.
		StartOffset: kafka.LastOffset,
		MaxWait:     time.Second,
	})

	return &Consumer{
		reader: reader,
		log:    log.With("topic", topic, "group", groupID),
	}
}

// Ping dials the first broker and makes sure the topic has partitions.
func (c *Consumer) Ping(ctx context.Context) error {
	cfg := c.reader.Config()
	if len(cfg.Brokers) == 0 {
		return errors.New("kafka: no brokers configured")
	}

	conn, err := kafka.DialContext(ctx, "tcp", cfg.Brokers[0])
	if err != nil {
		return fmt.Errorf("kafka: dial %s: %w", cfg.Brokers[0], err)
	}
	defer conn.Close()

	partitions, err := conn.ReadPartitions(cfg.Topic)
	if err != nil {
		return fmt.Errorf("kafka: read partitions of %s: %w", cfg.Topic, err)
	}
	if len(partitions) == 0 {
		return fmt.Errorf("kafka: topic %s has no partitions", cfg.Topic)
	}

	c.log.Debug("kafka topic reachable", "partitions", len(partitions))
	return nil
}

// ReadEvent fetches the next message and decodes its JSON value into v.
// A decode failure is a *DecodeError and still returns the message.
func (c *Consumer) ReadEvent(ctx context.Context, v any) (kafka.Message, error) {
	msg, err := c.reader.FetchMessage(ctx)
	if err != nil {
		return msg, err
	}

	c.log.Debug("received message",
		"key", string(msg.Key),
		"partition", msg.Partition,
		"offset", msg.Offset,
	)

	if err := json.Unmarshal(msg.Value, v); err != nil {
		return msg, &DecodeError{Offset: msg.Offset, Err: err}
	}
	return msg, nil
}

func (c *Consumer) CommitMessage(ctx context.Context, msg kafka.Message) error {
	return c.reader.CommitMessages(ctx, msg)
}

func (c *Consumer) Topic() string {
	return c.reader.Config().Topic
}

func (c *Consumer) Close() error {
	return c.reader.Close()
}
