package checks

import (
	"context"
	"fmt"
	"time"

	"github.com/go-ping/ping"

	"ozzus/agent-selftest/internal/domain"
)

type PingChecker struct {
	target     string
	count      int
	timeout    time.Duration
	privileged bool
}

func NewPingChecker(target string, count int, timeout time.Duration) *PingChecker {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	if count <= 0 {
		count = 3
	}

	return &PingChecker{
		target:  target,
		count:   count,
		timeout: timeout,
	}
}

// WithPrivileged switches to raw ICMP sockets instead of unprivileged UDP pings.
func (p *PingChecker) WithPrivileged(privileged bool) *PingChecker {
	p.privileged = privileged
	return p
}

func (p *PingChecker) Check(ctx context.Context, status *domain.StatusRecord) error {
	host, err := normalizeHostname(p.target)
	if err != nil {
		status.Summary(domain.LevelError, err.Error())
		return nil
	}

	pinger, err := ping.NewPinger(host)
	if err != nil {
		status.Summaryf(domain.LevelError, "resolve %s: %v", host, err)
		return nil
	}
	pinger.Count = p.count
	pinger.Timeout = p.timeout
	pinger.SetPrivileged(p.privileged)

	done := make(chan error, 1)
	go func() { done <- pinger.Run() }()

	select {
	case err = <-done:
	case <-ctx.Done():
		pinger.Stop()
		err = <-done
		if err == nil {
			err = ctx.Err()
		}
	}

	stats := pinger.Statistics()
	status.Add("ip", stats.IPAddr.String())
	status.Add("transmitted", fmt.Sprintf("%d", stats.PacketsSent))
	status.Add("received", fmt.Sprintf("%d", stats.PacketsRecv))
	status.Add("loss", fmt.Sprintf("%.0f%%", stats.PacketLoss))
	status.Add("rtt_avg", formatMilliseconds(stats.AvgRtt))

	switch {
	case err != nil:
		status.Summaryf(domain.LevelError, "ping failed: %v", err)
	case stats.PacketsRecv == 0:
		status.Summary(domain.LevelError, "no packets received")
	case stats.PacketsRecv < stats.PacketsSent:
		status.Summaryf(domain.LevelWarn, "%.0f%% packet loss", stats.PacketLoss)
	default:
		status.Summary(domain.LevelOK, "OK")
	}
	return nil
}
