package service

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ozzus/agent-selftest/internal/domain"
	"ozzus/agent-selftest/internal/selftest"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type countingBackend struct {
	calls atomic.Int64
}

func (b *countingBackend) Heartbeat(context.Context) error {
	b.calls.Add(1)
	return nil
}

func TestAgentService_RunsSelfTestBetweenIterations(t *testing.T) {
	registry := selftest.NewRegistry()
	dispatcher := selftest.NewDispatcher(registry, selftest.Config{ReadyTimeout: time.Second}, nil, testLogger())
	backend := &countingBackend{}

	agent := NewAgentService(dispatcher, backend, Config{
		AgentID:           "a-1",
		LoopInterval:      5 * time.Millisecond,
		HeartbeatInterval: time.Millisecond,
	}, testLogger())

	var during, after int64
	require.NoError(t, registry.Add("quiet", func(_ context.Context, s *domain.StatusRecord) error {
		during = backend.calls.Load()
		time.Sleep(30 * time.Millisecond)
		after = backend.calls.Load()
		s.Summary(domain.LevelOK, "ok")
		return nil
	}))

	assert.Error(t, agent.HealthCheck(context.Background()))

	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		assert.NoError(t, agent.Start(ctx))
	}()
	defer func() {
		cancel()
		<-stopped
	}()

	require.Eventually(t, func() bool { return agent.HealthCheck(ctx) == nil }, time.Second, time.Millisecond)

	res, err := dispatcher.Run(context.Background())
	require.NoError(t, err)
	assert.True(t, res.Passed)
	assert.Equal(t, during, after, "heartbeat ran during self test")

	require.Eventually(t, func() bool { return backend.calls.Load() > after }, time.Second, time.Millisecond)

	status := agent.GetStatus()
	assert.Equal(t, "a-1", status.AgentID)
	assert.True(t, status.IsRunning)
	assert.NotZero(t, status.Iterations)
}

type fakeRunner struct {
	result domain.RunResult
	err    error
}

func (f fakeRunner) Run(context.Context) (domain.RunResult, error) {
	return f.result, f.err
}

type recordingResults struct {
	mu      sync.Mutex
	results []domain.SelfTestResponse
	logs    []domain.LogEntry
}

func (r *recordingResults) SendResult(_ context.Context, result domain.SelfTestResponse) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.results = append(r.results, result)
	return nil
}

func (r *recordingResults) SendLog(_ context.Context, entry domain.LogEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.logs = append(r.logs, entry)
	return nil
}

type recordingReporter struct {
	reports []domain.SelfTestResponse
}

func (r *recordingReporter) SendSelfTestReport(_ context.Context, report domain.SelfTestResponse) error {
	r.reports = append(r.reports, report)
	return nil
}

func TestSelfTestService_Execute(t *testing.T) {
	result := domain.RunResult{ID: "SN1", Passed: false, Status: []domain.StatusRecord{
		{Name: "fan", Level: domain.LevelError, Message: "stalled"},
	}}
	results := &recordingResults{}
	reporter := &recordingReporter{}
	svc := NewSelfTestService(fakeRunner{result: result}, results, reporter, "a-1", testLogger())

	resp, err := svc.Execute(context.Background(), domain.SelfTestRequest{})
	require.NoError(t, err)

	assert.NotEmpty(t, resp.RequestID)
	assert.Equal(t, "a-1", resp.AgentID)
	assert.Equal(t, result, resp.Result)
	assert.Empty(t, resp.Error)
	assert.False(t, resp.FinishedAt.Before(resp.StartedAt))

	require.Len(t, results.results, 1)
	assert.Equal(t, resp, results.results[0])
	require.Len(t, reporter.reports, 1)
	require.Len(t, results.logs, 2)
	assert.Equal(t, domain.LogLevelWarn, results.logs[1].Level)
}

func TestSelfTestService_ExecuteBusy(t *testing.T) {
	results := &recordingResults{}
	reporter := &recordingReporter{}
	svc := NewSelfTestService(fakeRunner{err: selftest.ErrBusy}, results, reporter, "a-1", testLogger())

	resp, err := svc.Execute(context.Background(), domain.SelfTestRequest{RequestID: "r-9"})
	assert.ErrorIs(t, err, selftest.ErrBusy)
	assert.Equal(t, "r-9", resp.RequestID)
	assert.Equal(t, selftest.ErrBusy.Error(), resp.Error)

	raw, err := json.Marshal(resp)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"status":[]`)

	require.Len(t, results.results, 1, "queue callers still get a response")
	assert.Empty(t, reporter.reports, "nothing ran, nothing to report")
}

type fakeRequests struct {
	mu     sync.Mutex
	queue  []domain.SelfTestRequest
	acked  []string
	failed bool
}

func (f *fakeRequests) FetchRequest(ctx context.Context) (domain.SelfTestRequest, error) {
	f.mu.Lock()
	if !f.failed {
		f.failed = true
		f.mu.Unlock()
		return domain.SelfTestRequest{}, errors.New("broker hiccup")
	}
	if len(f.queue) > 0 {
		req := f.queue[0]
		f.queue = f.queue[1:]
		f.mu.Unlock()
		return req, nil
	}
	f.mu.Unlock()

	<-ctx.Done()
	return domain.SelfTestRequest{}, ctx.Err()
}

func (f *fakeRequests) AckRequest(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.acked = append(f.acked, id)
	return nil
}

func (f *fakeRequests) ackedIDs() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.acked...)
}

func TestSelfTestService_Serve(t *testing.T) {
	requests := &fakeRequests{queue: []domain.SelfTestRequest{{RequestID: "a"}, {RequestID: "b"}}}
	results := &recordingResults{}
	svc := NewSelfTestService(fakeRunner{result: domain.RunResult{Passed: true}}, results, nil, "a-1", testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- svc.Serve(ctx, requests) }()

	require.Eventually(t, func() bool { return len(requests.ackedIDs()) == 2 }, 3*time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{"a", "b"}, requests.ackedIDs())

	cancel()
	assert.NoError(t, <-done)
}
