package checks

import (
	"context"
	"net"
	"strings"
	"time"

	"ozzus/agent-selftest/internal/domain"
)

type DNSChecker struct {
	host     string
	timeout  time.Duration
	resolver *net.Resolver
}

func NewDNSChecker(host string, timeout time.Duration) *DNSChecker {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &DNSChecker{host: host, timeout: timeout, resolver: net.DefaultResolver}
}

func (d *DNSChecker) Check(ctx context.Context, status *domain.StatusRecord) error {
	host, err := normalizeHostname(d.host)
	if err != nil {
		status.Summary(domain.LevelError, err.Error())
		return nil
	}
	status.Add("host", host)

	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	start := time.Now()
	addrs, err := d.resolver.LookupHost(ctx, host)
	status.Add("lookup_time", formatMilliseconds(time.Since(start)))

	if err != nil {
		status.Summaryf(domain.LevelError, "lookup failed: %v", err)
		return nil
	}
	if len(addrs) == 0 {
		status.Summary(domain.LevelError, "no records")
		return nil
	}

	status.Add("records", strings.Join(addrs, ","))
	status.Summaryf(domain.LevelOK, "resolved %d address(es)", len(addrs))
	return nil
}
