// Package legacy keeps services written against the old SelfTest interface
// working. It converts between the old status shape and domain.StatusRecord
// at the boundary; the core only ever sees StatusRecord.
//
// Deprecated: register tasks on selftest.Registry and run them through
// selftest.Dispatcher instead.
package legacy

import (
	"context"

	"ozzus/agent-selftest/internal/domain"
	"ozzus/agent-selftest/internal/selftest"
)

// Status is the pre-Dispatcher per-test status shape.
type Status struct {
	Level      byte
	Name       string
	Message    string
	HardwareID string
	Values     []domain.KeyValue
}

// ToRecord converts an old status into a record. Levels above ERROR
// (e.g. the old STALE level) are reported as ERROR.
func ToRecord(s Status) domain.StatusRecord {
	level := domain.Level(s.Level)
	if level > domain.LevelError {
		level = domain.LevelError
	}

	return domain.StatusRecord{
		Name:       s.Name,
		Level:      level,
		Message:    s.Message,
		HardwareID: s.HardwareID,
		Values:     append([]domain.KeyValue(nil), s.Values...),
	}
}

func FromRecord(r domain.StatusRecord) Status {
	return Status{
		Level:      byte(r.Level),
		Name:       r.Name,
		Message:    r.Message,
		HardwareID: r.HardwareID,
		Values:     append([]domain.KeyValue(nil), r.Values...),
	}
}

// SelfTest is the deprecated facade. Tests added through it are unnamed.
type SelfTest struct {
	registry   *selftest.Registry
	dispatcher *selftest.Dispatcher
}

func New(registry *selftest.Registry, dispatcher *selftest.Dispatcher) *SelfTest {
	return &SelfTest{registry: registry, dispatcher: dispatcher}
}

// AddTest registers an unnamed test that fills a StatusRecord.
func (s *SelfTest) AddTest(check selftest.Check) error {
	return s.registry.Add("", check)
}

// AddStatusTest registers an unnamed test written against the old Status.
func (s *SelfTest) AddStatusTest(fn func(status *Status)) error {
	if fn == nil {
		return selftest.ErrNilCheck
	}

	return s.registry.Add("", func(_ context.Context, record *domain.StatusRecord) error {
		old := FromRecord(*record)
		fn(&old)
		*record = ToRecord(old)
		return nil
	})
}

func (s *SelfTest) SetPretest(fn func()) {
	s.registry.SetPretest(wrapHook(fn))
}

func (s *SelfTest) SetPosttest(fn func()) {
	s.registry.SetPosttest(wrapHook(fn))
}

func (s *SelfTest) SetID(id string) {
	s.dispatcher.SetID(id)
}

// CheckTest must be called from the owner's loop, as before.
func (s *SelfTest) CheckTest() {
	_ = s.dispatcher.CheckTest(context.Background())
}

func wrapHook(fn func()) selftest.Hook {
	if fn == nil {
		return nil
	}
	return func(context.Context) error {
		fn()
		return nil
	}
}
