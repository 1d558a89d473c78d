package repository

import (
	"context"
	"fmt"
	"log/slog"

	"ozzus/agent-selftest/internal/domain"
)

// ResultRepository publishes self-test outcomes and run logs.
type ResultRepository interface {
	SendResult(ctx context.Context, result domain.SelfTestResponse) error
	SendLog(ctx context.Context, logEntry domain.LogEntry) error
}

type EventPublisher interface {
	PublishEvent(ctx context.Context, key string, event interface{}) error
	Topic() string
}

type KafkaResultRepository struct {
	resultsProducer EventPublisher
	logsProducer    EventPublisher
	log             *slog.Logger
}

func NewKafkaResultRepository(resultsProducer, logsProducer EventPublisher, log *slog.Logger) *KafkaResultRepository {
	if log == nil {
		log = slog.Default()
	}
	return &KafkaResultRepository{
		resultsProducer: resultsProducer,
		logsProducer:    logsProducer,
		log:             log,
	}
}

func (r *KafkaResultRepository) SendResult(ctx context.Context, result domain.SelfTestResponse) error {
	if err := r.resultsProducer.PublishEvent(ctx, result.RequestID, result); err != nil {
		return fmt.Errorf("failed to publish result: %w", err)
	}

	r.log.Debug("sent self test result",
		"request_id", result.RequestID,
		"topic", r.resultsProducer.Topic(),
		"passed", result.Result.Passed,
	)
	return nil
}

func (r *KafkaResultRepository) SendLog(ctx context.Context, logEntry domain.LogEntry) error {
	key := fmt.Sprintf("%s-%d", logEntry.RequestID, logEntry.Timestamp.UnixNano())
	if err := r.logsProducer.PublishEvent(ctx, key, logEntry); err != nil {
		return fmt.Errorf("failed to publish log: %w", err)
	}
	return nil
}
