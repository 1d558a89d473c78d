package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"ozzus/agent-selftest/internal/domain"
)

const defaultRequestTimeout = 10 * time.Second

// StatusError is returned when the backend answers with a non-2xx code.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("unexpected status %d", e.Code)
	}
	return fmt.Sprintf("unexpected status %d: %s", e.Code, e.Body)
}

// Client talks to the control backend on behalf of one agent, using the
// agent name and token as Basic Auth credentials.
type Client struct {
	baseURL    string
	agentName  string
	agentToken string
	httpClient *http.Client
}

type Option func(*Client)

// WithHTTPClient replaces the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

func NewClient(baseURL, agentName, agentToken string, opts ...Option) (*Client, error) {
	base, err := parseBaseURL(baseURL)
	if err != nil {
		return nil, err
	}
	if agentName == "" {
		return nil, errors.New("agent name is required")
	}
	if agentToken == "" {
		return nil, errors.New("agent token is required")
	}

	c := &Client{
		baseURL:    base,
		agentName:  agentName,
		agentToken: agentToken,
		httpClient: &http.Client{Timeout: defaultRequestTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Heartbeat tells the backend the agent loop is alive.
func (c *Client) Heartbeat(ctx context.Context) error {
	if err := c.post(ctx, "/api/agents/heartbeat", nil); err != nil {
		return fmt.Errorf("heartbeat: %w", err)
	}
	return nil
}

// SendSelfTestReport uploads the outcome of a self test run.
func (c *Client) SendSelfTestReport(ctx context.Context, report domain.SelfTestResponse) error {
	path := "/api/agents/" + url.PathEscape(c.agentName) + "/selftest"
	if err := c.post(ctx, path, report); err != nil {
		return fmt.Errorf("send self test report: %w", err)
	}
	return nil
}

func (c *Client) post(ctx context.Context, path string, payload any) error {
	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("marshal payload: %w", err)
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.SetBasicAuth(c.agentName, c.agentToken)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		var urlErr *url.Error
		if errors.As(err, &urlErr) {
			return fmt.Errorf("%s %s: %w", req.Method, req.URL.Host, urlErr.Err)
		}
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &StatusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(raw))}
	}

	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

// parseBaseURL accepts "host:port" as well as full URLs and strips any
// trailing slash, query or fragment.
func parseBaseURL(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", errors.New("backend base URL is required")
	}
	if !strings.Contains(raw, "://") {
		raw = "http://" + raw
	}

	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("invalid backend base URL: %w", err)
	}
	if u.Host == "" {
		return "", fmt.Errorf("invalid backend base URL %q: missing host", raw)
	}

	u.RawQuery, u.Fragment = "", ""
	u.Path = strings.TrimRight(u.Path, "/")
	return u.String(), nil
}
