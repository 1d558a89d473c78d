package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
)

const contentTypeJSON = "application/json"

// Producer publishes JSON events to a single topic.
type Producer struct {
	writer *kafka.Writer
	source string
}

// NewProducer creates a producer whose messages carry source in the
// "source" header.
func NewProducer(brokers []string, topic, source string) *Producer {
	return &Producer{
		writer: &kafka.Writer{
			Addr:                   kafka.TCP(brokers...),
			Topic:                  topic,
			Balancer:               &kafka.Hash{},
			RequiredAcks:           kafka.RequireOne,
			WriteTimeout:           5 * time.Second,
			AllowAutoTopicCreation: true,
		},
		source: source,
	}
}

// PublishEvent writes event as JSON. Events with the same key land on the
// same partition.
func (p *Producer) PublishEvent(ctx context.Context, key string, event any) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event for %s: %w", p.writer.Topic, err)
	}

	return p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(key),
		Value: payload,
		Headers: []kafka.Header{
			{Key: "content-type", Value: []byte(contentTypeJSON)},
			{Key: "source", Value: []byte(p.source)},
		},
	})
}

func (p *Producer) Topic() string {
	return p.writer.Topic
}

func (p *Producer) Close() error {
	return p.writer.Close()
}
