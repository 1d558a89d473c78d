package selftest

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"ozzus/agent-selftest/internal/domain"
)

const (
	DefaultReadyTimeout    = 10 * time.Second
	DefaultHostWaitTimeout = 60 * time.Second

	WaitForNodeReadyName    = "Wait for Node Ready"
	WaitForNodeReadyMessage = "Timed out waiting to run self test."
)

var errReadyTimeout = errors.New("selftest: ready timeout")

type Config struct {
	// ReadyTimeout bounds how long a request waits for the host loop.
	ReadyTimeout time.Duration
	// HostWaitTimeout bounds how long the host loop stays suspended while a
	// self test runs. Negative disables the bound.
	HostWaitTimeout time.Duration
}

// granted is closed by the host loop, done by the requester.
type rendezvous struct {
	granted chan struct{}
	done    chan struct{}
}

// Dispatcher coordinates self-test requests with the host loop so that the
// tests never run interleaved with normal operation.
//
// Requesters call Run; the host loop must call CheckTest on every iteration.
// At most one request is outstanding; others are rejected with ErrBusy.
type Dispatcher struct {
	runner  *Runner
	metrics *Metrics
	log     *slog.Logger

	readyTimeout    time.Duration
	hostWaitTimeout time.Duration

	mu      sync.Mutex
	pending *rendezvous
	busy    bool
	closed  bool
	last    domain.RunResult
	lastAt  time.Time
	hasLast bool
}

func NewDispatcher(registry *Registry, cfg Config, metrics *Metrics, log *slog.Logger) *Dispatcher {
	if log == nil {
		log = slog.Default()
	}
	if cfg.ReadyTimeout <= 0 {
		cfg.ReadyTimeout = DefaultReadyTimeout
	}
	if cfg.HostWaitTimeout == 0 {
		cfg.HostWaitTimeout = DefaultHostWaitTimeout
	}

	log = log.With("component", "selftest")

	return &Dispatcher{
		runner:          NewRunner(registry, log),
		metrics:         metrics,
		log:             log,
		readyTimeout:    cfg.ReadyTimeout,
		hostWaitTimeout: cfg.HostWaitTimeout,
	}
}

func (d *Dispatcher) SetID(id string) {
	d.runner.SetID(id)
}

// Run requests a self test and blocks until it has run or the host loop
// failed to pick it up within the ready timeout. A timeout is reported as a
// failed result, not as an error.
func (d *Dispatcher) Run(ctx context.Context) (domain.RunResult, error) {
	rv, err := d.submit()
	if err != nil {
		return domain.RunResult{}, err
	}

	if err := d.awaitGrant(ctx, rv); err != nil {
		if errors.Is(err, errReadyTimeout) {
			d.log.Error("timed out waiting to run self test", "timeout", d.readyTimeout)
			d.metrics.recordOutcome(outcomeTimeout)
			return timedOutResult(), nil
		}
		d.metrics.recordOutcome(outcomeCanceled)
		return domain.RunResult{}, err
	}

	defer d.finish(rv)

	if d.isClosed() {
		d.metrics.recordOutcome(outcomeShutdown)
		return domain.RunResult{}, ErrShuttingDown
	}

	d.log.Info("beginning self test")

	start := time.Now()
	result, err := d.runner.Run(ctx)
	d.metrics.recordDuration(time.Since(start))
	if err != nil {
		d.log.Error("self test aborted", "error", err)
		d.metrics.recordOutcome(outcomeHookError)
		return domain.RunResult{}, err
	}

	for _, status := range result.Status {
		if status.Failed() {
			d.metrics.recordTaskFailure(status.Name)
		}
	}
	if result.Passed {
		d.metrics.recordOutcome(outcomePassed)
	} else {
		d.metrics.recordOutcome(outcomeFailed)
	}

	d.mu.Lock()
	d.last, d.lastAt, d.hasLast = result, time.Now(), true
	d.mu.Unlock()

	return result, nil
}

// CheckTest is the host loop side of the handshake. It returns immediately
// when no request is pending; otherwise it grants the request and blocks
// until the self test has finished.
func (d *Dispatcher) CheckTest(ctx context.Context) error {
	d.mu.Lock()
	rv := d.pending
	d.pending = nil
	if rv != nil {
		close(rv.granted)
	}
	d.mu.Unlock()

	if rv == nil {
		return nil
	}

	d.log.Debug("self test granted, suspending host loop")

	var expired <-chan time.Time
	if d.hostWaitTimeout > 0 {
		timer := time.NewTimer(d.hostWaitTimeout)
		defer timer.Stop()
		expired = timer.C
	}

	select {
	case <-rv.done:
		return nil
	case <-expired:
		d.log.Error("self test still running, resuming host loop", "waited", d.hostWaitTimeout)
		d.metrics.recordHostStuck()
		return ErrHostWaitTimeout
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (d *Dispatcher) Pending() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.busy
}

func (d *Dispatcher) Last() (domain.RunResult, time.Time, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.last, d.lastAt, d.hasLast
}

// Close rejects further requests. A request that is granted after Close
// returns ErrShuttingDown without running any task.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()
}

func (d *Dispatcher) submit() (*rendezvous, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		d.metrics.recordOutcome(outcomeShutdown)
		return nil, ErrShuttingDown
	}
	if d.busy {
		d.metrics.recordOutcome(outcomeBusy)
		return nil, ErrBusy
	}

	rv := &rendezvous{
		granted: make(chan struct{}),
		done:    make(chan struct{}),
	}
	d.busy = true
	d.pending = rv
	return rv, nil
}

func (d *Dispatcher) awaitGrant(ctx context.Context, rv *rendezvous) error {
	timer := time.NewTimer(d.readyTimeout)
	defer timer.Stop()

	var cause error
	select {
	case <-rv.granted:
		return nil
	case <-timer.C:
		cause = errReadyTimeout
	case <-ctx.Done():
		cause = ctx.Err()
	}

	if d.withdraw(rv) {
		return cause
	}

	// The host took the request while we were giving up; granted is
	// already closed and the host now waits for done.
	<-rv.granted
	return nil
}

func (d *Dispatcher) withdraw(rv *rendezvous) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.pending != rv {
		return false
	}
	d.pending = nil
	d.busy = false
	return true
}

func (d *Dispatcher) finish(rv *rendezvous) {
	d.mu.Lock()
	d.busy = false
	d.mu.Unlock()

	close(rv.done)
}

func (d *Dispatcher) isClosed() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.closed
}

func timedOutResult() domain.RunResult {
	return domain.RunResult{
		Passed: false,
		Status: []domain.StatusRecord{{
			Name:    WaitForNodeReadyName,
			Level:   domain.LevelError,
			Message: WaitForNodeReadyMessage,
		}},
	}
}
