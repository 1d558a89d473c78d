package checks

import (
	"context"
	"net"
	"time"

	"ozzus/agent-selftest/internal/domain"
)

type TCPChecker struct {
	address string
	timeout time.Duration
}

func NewTCPChecker(address string, timeout time.Duration) *TCPChecker {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &TCPChecker{address: address, timeout: timeout}
}

func (t *TCPChecker) Check(ctx context.Context, status *domain.StatusRecord) error {
	status.Add("address", t.address)

	dialer := net.Dialer{Timeout: t.timeout}

	start := time.Now()
	conn, err := dialer.DialContext(ctx, "tcp", t.address)
	duration := time.Since(start)
	status.Add("connect_time", formatMilliseconds(duration))

	if err != nil {
		status.Summaryf(domain.LevelError, "connect failed: %v", err)
		return nil
	}
	defer conn.Close()

	status.Add("remote", conn.RemoteAddr().String())
	status.Summary(domain.LevelOK, "Connected")
	return nil
}
