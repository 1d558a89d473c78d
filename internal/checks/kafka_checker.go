package checks

import (
	"context"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"ozzus/agent-selftest/internal/domain"
)

type KafkaChecker struct {
	brokers []string
	topic   string
	timeout time.Duration
}

func NewKafkaChecker(brokers []string, topic string, timeout time.Duration) *KafkaChecker {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &KafkaChecker{brokers: brokers, topic: topic, timeout: timeout}
}

func (k *KafkaChecker) Check(ctx context.Context, status *domain.StatusRecord) error {
	ctx, cancel := context.WithTimeout(ctx, k.timeout)
	defer cancel()

	var lastErr error
	for _, broker := range k.brokers {
		conn, err := kafka.DialContext(ctx, "tcp", broker)
		if err != nil {
			lastErr = err
			continue
		}
		defer conn.Close()

		status.Add("broker", broker)

		if k.topic == "" {
			brokers, err := conn.Brokers()
			if err != nil {
				status.Summaryf(domain.LevelError, "read brokers: %v", err)
				return nil
			}
			status.Summaryf(domain.LevelOK, "connected, %d broker(s) in cluster", len(brokers))
			return nil
		}

		partitions, err := conn.ReadPartitions(k.topic)
		if err != nil {
			status.Summaryf(domain.LevelError, "read partitions of %s: %v", k.topic, err)
			return nil
		}
		status.Add("partitions", fmt.Sprintf("%d", len(partitions)))
		status.Summaryf(domain.LevelOK, "topic %s reachable", k.topic)
		return nil
	}

	status.Summaryf(domain.LevelError, "failed to connect to kafka: %v", lastErr)
	return nil
}
