package selftest

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const MetricsNamespace = "selftest"

const (
	outcomePassed    = "passed"
	outcomeFailed    = "failed"
	outcomeTimeout   = "timeout"
	outcomeBusy      = "busy"
	outcomeHookError = "hook_error"
	outcomeCanceled  = "canceled"
	outcomeShutdown  = "shutdown"
)

// Metrics are the Prometheus collectors of a Dispatcher. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	runsTotal      *prometheus.CounterVec
	taskFailures   *prometheus.CounterVec
	runDuration    prometheus.Histogram
	hostStuckTotal prometheus.Counter
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		runsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: MetricsNamespace,
			Name:      "runs_total",
			Help:      "Count of self test invocations by outcome",
		}, []string{
			"outcome",
		}),
		taskFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: MetricsNamespace,
			Name:      "task_failures_total",
			Help:      "Count of self test records at ERROR level per task",
		}, []string{
			"task",
		}),
		runDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: MetricsNamespace,
			Name:      "run_duration_seconds",
			Help:      "Time spent executing granted self tests",
			Buckets:   prometheus.ExponentialBuckets(0.01, 4, 8),
		}),
		hostStuckTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: MetricsNamespace,
			Name:      "host_wait_timeouts_total",
			Help:      "Count of host loop resumptions while a self test was still running",
		}),
	}
}

func (m *Metrics) recordOutcome(outcome string) {
	if m == nil {
		return
	}
	m.runsTotal.WithLabelValues(outcome).Inc()
}

func (m *Metrics) recordTaskFailure(task string) {
	if m == nil {
		return
	}
	m.taskFailures.WithLabelValues(task).Inc()
}

func (m *Metrics) recordDuration(d time.Duration) {
	if m == nil {
		return
	}
	m.runDuration.Observe(d.Seconds())
}

func (m *Metrics) recordHostStuck() {
	if m == nil {
		return
	}
	m.hostStuckTotal.Inc()
}
