package repository

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	kafkago "github.com/segmentio/kafka-go"

	"ozzus/agent-selftest/internal/domain"
	"ozzus/agent-selftest/internal/repository/kafka"
)

// RequestRepository delivers self-test requests from an external queue.
type RequestRepository interface {
	FetchRequest(ctx context.Context) (domain.SelfTestRequest, error)
	AckRequest(ctx context.Context, requestID string) error
}

type EventReader interface {
	ReadEvent(ctx context.Context, v interface{}) (kafkago.Message, error)
	CommitMessage(ctx context.Context, msg kafkago.Message) error
}

type KafkaRequestRepository struct {
	consumer EventReader

	mu       sync.Mutex
	messages map[string]kafkago.Message
}

func NewKafkaRequestRepository(consumer EventReader) *KafkaRequestRepository {
	return &KafkaRequestRepository{
		consumer: consumer,
		messages: make(map[string]kafkago.Message),
	}
}

// FetchRequest blocks until the next request arrives. Requests without an
// id get a fresh one. Undecodable messages are committed and skipped.
func (r *KafkaRequestRepository) FetchRequest(ctx context.Context) (domain.SelfTestRequest, error) {
	for {
		var req domain.SelfTestRequest
		msg, err := r.consumer.ReadEvent(ctx, &req)
		if err != nil {
			if ctx.Err() != nil {
				return domain.SelfTestRequest{}, ctx.Err()
			}
			var decodeErr *kafka.DecodeError
			if !errors.As(err, &decodeErr) {
				return domain.SelfTestRequest{}, fmt.Errorf("failed to read event: %w", err)
			}
			if commitErr := r.consumer.CommitMessage(ctx, msg); commitErr != nil {
				return domain.SelfTestRequest{}, fmt.Errorf("failed to skip bad event: %w", errors.Join(err, commitErr))
			}
			continue
		}

		if req.RequestID == "" {
			req.RequestID = uuid.NewString()
		}

		r.mu.Lock()
		r.messages[req.RequestID] = msg
		r.mu.Unlock()

		return req, nil
	}
}

func (r *KafkaRequestRepository) AckRequest(ctx context.Context, requestID string) error {
	r.mu.Lock()
	msg, ok := r.messages[requestID]
	r.mu.Unlock()

	if !ok {
		return nil
	}

	const maxRetries = 3

	var lastErr error

	for attempt := 0; attempt < maxRetries; attempt++ {
		commitCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		err := r.consumer.CommitMessage(commitCtx, msg)
		cancel()

		if err == nil {
			r.mu.Lock()
			delete(r.messages, requestID)
			r.mu.Unlock()
			return nil
		}

		lastErr = err
		if ctx.Err() != nil {
			break
		}

		time.Sleep(time.Duration(attempt+1) * 200 * time.Millisecond)
	}

	return fmt.Errorf("failed to commit message: %w", lastErr)
}
