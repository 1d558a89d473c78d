package checks

import (
	"context"
	"time"

	"ozzus/agent-selftest/internal/domain"
)

type BackendChecker struct {
	backend Heartbeater
	timeout time.Duration
}

func NewBackendChecker(backend Heartbeater, timeout time.Duration) *BackendChecker {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &BackendChecker{backend: backend, timeout: timeout}
}

func (b *BackendChecker) Check(ctx context.Context, status *domain.StatusRecord) error {
	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	start := time.Now()
	err := b.backend.Heartbeat(ctx)
	status.Add("time", formatMilliseconds(time.Since(start)))

	if err != nil {
		status.Summaryf(domain.LevelError, "heartbeat failed: %v", err)
		return nil
	}
	status.Summary(domain.LevelOK, "backend reachable")
	return nil
}
