package checks

import (
	"fmt"
	"net"
	"strings"
	"time"
)

func formatMilliseconds(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	return fmt.Sprintf("%.1f ms", float64(d.Microseconds())/1000.0)
}

func normalizeHostname(target string) (string, error) {
	host := strings.TrimSpace(target)
	if host == "" {
		return "", fmt.Errorf("target is empty")
	}

	if i := strings.Index(host, "://"); i >= 0 {
		host = host[i+3:]
	}
	if i := strings.IndexAny(host, "/?#"); i >= 0 {
		host = host[:i]
	}
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	host = strings.Trim(host, "[]")

	if host == "" {
		return "", fmt.Errorf("invalid target %q", target)
	}
	return host, nil
}
