package checks

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"ozzus/agent-selftest/internal/domain"
)

type HTTPChecker struct {
	target  string
	timeout time.Duration
	client  *http.Client
}

func NewHTTPChecker(target string, timeout time.Duration) *HTTPChecker {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &HTTPChecker{
		target:  target,
		timeout: timeout,
		client: &http.Client{
			Timeout: timeout,
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
	}
}

func (h *HTTPChecker) Check(ctx context.Context, status *domain.StatusRecord) error {
	resolvedURL, err := prepareURL(h.target)
	if err != nil {
		status.Summaryf(domain.LevelError, "invalid url: %v", err)
		return nil
	}
	status.Add("url", resolvedURL)

	ctx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, resolvedURL, nil)
	if err != nil {
		status.Summaryf(domain.LevelError, "build request: %v", err)
		return nil
	}

	start := time.Now()
	resp, err := h.client.Do(req)
	duration := time.Since(start)
	status.Add("time", formatMilliseconds(duration))

	if err != nil {
		status.Summaryf(domain.LevelError, "request failed: %v", err)
		return nil
	}
	defer resp.Body.Close()

	_, _ = io.Copy(io.Discard, resp.Body)

	status.Add("status_code", fmt.Sprintf("%d", resp.StatusCode))

	switch {
	case resp.StatusCode >= http.StatusBadRequest:
		status.Summaryf(domain.LevelError, "unexpected status %s", resp.Status)
	case resp.StatusCode >= http.StatusMultipleChoices:
		status.Summaryf(domain.LevelWarn, "redirected: %s", resp.Status)
	default:
		status.Summary(domain.LevelOK, "OK")
	}
	return nil
}

func prepareURL(target string) (string, error) {
	if target == "" {
		return "", fmt.Errorf("empty target")
	}

	if !strings.Contains(target, "://") {
		target = "http://" + target
	}

	parsed, err := url.Parse(target)
	if err != nil {
		return "", err
	}
	if parsed.Host == "" {
		return "", fmt.Errorf("missing host in %q", target)
	}

	return parsed.String(), nil
}
