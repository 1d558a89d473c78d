package selftest

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ozzus/agent-selftest/internal/domain"
)

// startHost runs a host loop polling the dispatcher until the test ends and
// returns its iteration counter.
func startHost(t *testing.T, d *Dispatcher) *atomic.Int64 {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	var iterations atomic.Int64
	stopped := make(chan struct{})

	go func() {
		defer close(stopped)
		for ctx.Err() == nil {
			_ = d.CheckTest(ctx)
			iterations.Add(1)
			time.Sleep(time.Millisecond)
		}
	}()

	t.Cleanup(func() {
		cancel()
		<-stopped
	})
	return &iterations
}

func newTestDispatcher(r *Registry, cfg Config) *Dispatcher {
	return NewDispatcher(r, cfg, nil, testLogger())
}

func TestDispatcher_ScenarioWithFailingTask(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Add("A", levelCheck(domain.LevelOK, "a")))
	require.NoError(t, r.Add("B", func(context.Context, *domain.StatusRecord) error {
		return errors.New("boom")
	}))
	require.NoError(t, r.Add("C", levelCheck(domain.LevelOK, "c")))

	d := newTestDispatcher(r, Config{})
	startHost(t, d)

	res, err := d.Run(context.Background())
	require.NoError(t, err)

	assert.False(t, res.Passed)
	require.Len(t, res.Status, 3)
	assert.Equal(t, domain.StatusRecord{Name: "A", Level: domain.LevelOK, Message: "a"}, res.Status[0])
	assert.Equal(t, domain.StatusRecord{Name: "B", Level: domain.LevelError, Message: "Uncaught exception: boom"}, res.Status[1])
	assert.Equal(t, domain.StatusRecord{Name: "C", Level: domain.LevelOK, Message: "c"}, res.Status[2])
}

func TestDispatcher_EmptyRegistry(t *testing.T) {
	d := newTestDispatcher(NewRegistry(), Config{})
	startHost(t, d)

	res, err := d.Run(context.Background())
	require.NoError(t, err)
	assert.True(t, res.Passed)
	assert.Empty(t, res.Status)
}

func TestDispatcher_TimesOutWithoutHost(t *testing.T) {
	r := NewRegistry()
	ran := false
	require.NoError(t, r.Add("never", func(context.Context, *domain.StatusRecord) error {
		ran = true
		return nil
	}))

	d := newTestDispatcher(r, Config{ReadyTimeout: 50 * time.Millisecond})

	res, err := d.Run(context.Background())
	require.NoError(t, err)

	assert.False(t, res.Passed)
	assert.Equal(t, []domain.StatusRecord{{
		Name:    "Wait for Node Ready",
		Level:   domain.LevelError,
		Message: "Timed out waiting to run self test.",
	}}, res.Status)
	assert.False(t, ran)
	assert.False(t, d.Pending())

	// A late host poll finds nothing and does not block.
	require.NoError(t, d.CheckTest(context.Background()))

	// The next request starts a fresh cycle.
	startHost(t, d)
	res, err = d.Run(context.Background())
	require.NoError(t, err)
	require.Len(t, res.Status, 1)
	assert.Equal(t, "never", res.Status[0].Name)
	assert.True(t, ran)
}

func TestDispatcher_CheckTestWithoutRequestReturnsImmediately(t *testing.T) {
	d := newTestDispatcher(NewRegistry(), Config{HostWaitTimeout: -1})

	done := make(chan error, 1)
	go func() { done <- d.CheckTest(context.Background()) }()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("CheckTest blocked with no pending request")
	}
}

func TestDispatcher_HostSuspendedDuringRun(t *testing.T) {
	r := NewRegistry()
	d := newTestDispatcher(r, Config{})
	iterations := startHost(t, d)

	var before, after int64
	require.NoError(t, r.Add("exclusive", func(_ context.Context, s *domain.StatusRecord) error {
		before = iterations.Load()
		time.Sleep(50 * time.Millisecond)
		after = iterations.Load()
		s.Summary(domain.LevelOK, "ok")
		return nil
	}))

	res, err := d.Run(context.Background())
	require.NoError(t, err)
	assert.True(t, res.Passed)
	assert.Equal(t, before, after, "host loop advanced while self test was running")

	// The host resumes afterwards.
	resumed := iterations.Load()
	assert.Eventually(t, func() bool { return iterations.Load() > resumed }, time.Second, time.Millisecond)
}

func TestDispatcher_SetIDDuringRun(t *testing.T) {
	r := NewRegistry()
	d := newTestDispatcher(r, Config{})
	startHost(t, d)

	setID := true
	require.NoError(t, r.Add("serial", func(_ context.Context, s *domain.StatusRecord) error {
		if setID {
			d.SetID("X")
		}
		s.Summary(domain.LevelOK, "ok")
		return nil
	}))

	res, err := d.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "X", res.ID)

	setID = false
	res, err = d.Run(context.Background())
	require.NoError(t, err)
	assert.Empty(t, res.ID)
}

func TestDispatcher_RejectsConcurrentRequestWhilePending(t *testing.T) {
	d := newTestDispatcher(NewRegistry(), Config{ReadyTimeout: 200 * time.Millisecond})

	first := make(chan domain.RunResult, 1)
	go func() {
		res, _ := d.Run(context.Background())
		first <- res
	}()

	require.Eventually(t, d.Pending, time.Second, time.Millisecond)

	_, err := d.Run(context.Background())
	assert.ErrorIs(t, err, ErrBusy)

	select {
	case res := <-first:
		require.Len(t, res.Status, 1)
		assert.Equal(t, WaitForNodeReadyName, res.Status[0].Name)
	case <-time.After(2 * time.Second):
		t.Fatal("first request never returned")
	}
	assert.False(t, d.Pending())
}

func TestDispatcher_RejectsConcurrentRequestWhileRunning(t *testing.T) {
	r := NewRegistry()
	started := make(chan struct{})
	release := make(chan struct{})
	require.NoError(t, r.Add("slow", func(_ context.Context, s *domain.StatusRecord) error {
		close(started)
		<-release
		s.Summary(domain.LevelOK, "ok")
		return nil
	}))

	d := newTestDispatcher(r, Config{})
	startHost(t, d)

	type outcome struct {
		res domain.RunResult
		err error
	}
	first := make(chan outcome, 1)
	go func() {
		res, err := d.Run(context.Background())
		first <- outcome{res, err}
	}()

	<-started

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := d.Run(context.Background())
			assert.ErrorIs(t, err, ErrBusy)
		}()
	}
	wg.Wait()

	close(release)
	got := <-first
	require.NoError(t, got.err)
	assert.True(t, got.res.Passed)
	require.Len(t, got.res.Status, 1)

	// Shared state is back to idle and a new request succeeds.
	assert.False(t, d.Pending())
	r2, err := d.Run(context.Background())
	require.NoError(t, err)
	assert.Len(t, r2.Status, 1)
}

func TestDispatcher_HookFailureReleasesHost(t *testing.T) {
	r := NewRegistry()
	r.SetPretest(func(context.Context) error { return errors.New("no power") })

	d := newTestDispatcher(r, Config{HostWaitTimeout: -1})
	iterations := startHost(t, d)

	_, err := d.Run(context.Background())
	var hookErr *HookError
	require.ErrorAs(t, err, &hookErr)
	assert.Equal(t, StagePretest, hookErr.Stage)

	after := iterations.Load()
	assert.Eventually(t, func() bool { return iterations.Load() > after }, time.Second, time.Millisecond)
	assert.False(t, d.Pending())
}

func TestDispatcher_HostWaitIsBounded(t *testing.T) {
	r := NewRegistry()
	release := make(chan struct{})
	require.NoError(t, r.Add("hung", func(_ context.Context, s *domain.StatusRecord) error {
		<-release
		s.Summary(domain.LevelOK, "late")
		return nil
	}))

	d := newTestDispatcher(r, Config{HostWaitTimeout: 30 * time.Millisecond})

	result := make(chan domain.RunResult, 1)
	go func() {
		res, _ := d.Run(context.Background())
		result <- res
	}()
	require.Eventually(t, d.Pending, time.Second, time.Millisecond)

	err := d.CheckTest(context.Background())
	assert.ErrorIs(t, err, ErrHostWaitTimeout)

	close(release)
	res := <-result
	assert.True(t, res.Passed)
}

func TestDispatcher_CanceledBeforeGrant(t *testing.T) {
	d := newTestDispatcher(NewRegistry(), Config{})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := d.Run(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.False(t, d.Pending())
	require.NoError(t, d.CheckTest(context.Background()))
}

func TestDispatcher_Close(t *testing.T) {
	d := newTestDispatcher(NewRegistry(), Config{})
	d.Close()

	_, err := d.Run(context.Background())
	assert.ErrorIs(t, err, ErrShuttingDown)
}

func TestDispatcher_LastResult(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Add("a", levelCheck(domain.LevelWarn, "meh")))

	d := newTestDispatcher(r, Config{})
	startHost(t, d)

	_, _, ok := d.Last()
	assert.False(t, ok)

	_, err := d.Run(context.Background())
	require.NoError(t, err)

	last, at, ok := d.Last()
	require.True(t, ok)
	assert.True(t, last.Passed)
	assert.False(t, at.IsZero())
}

func TestDispatcher_Metrics(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Add("bad", levelCheck(domain.LevelError, "broken")))

	metrics := NewMetrics(prometheus.NewRegistry())
	d := NewDispatcher(r, Config{ReadyTimeout: 30 * time.Millisecond}, metrics, testLogger())

	res, err := d.Run(context.Background())
	require.NoError(t, err)
	assert.False(t, res.Passed)
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.runsTotal.WithLabelValues(outcomeTimeout)))

	startHost(t, d)
	_, err = d.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.runsTotal.WithLabelValues(outcomeFailed)))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.taskFailures.WithLabelValues("bad")))
}
