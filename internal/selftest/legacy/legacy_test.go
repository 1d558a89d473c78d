package legacy

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ozzus/agent-selftest/internal/domain"
	"ozzus/agent-selftest/internal/selftest"
)

func newLegacy(t *testing.T) (*SelfTest, *selftest.Dispatcher) {
	t.Helper()

	registry := selftest.NewRegistry()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	dispatcher := selftest.NewDispatcher(registry, selftest.Config{}, nil, log)
	return New(registry, dispatcher), dispatcher
}

func runWithHost(t *testing.T, st *SelfTest, d *selftest.Dispatcher) domain.RunResult {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		for ctx.Err() == nil {
			st.CheckTest()
			time.Sleep(time.Millisecond)
		}
	}()
	defer func() {
		cancel()
		<-stopped
	}()

	res, err := d.Run(context.Background())
	require.NoError(t, err)
	return res
}

func TestSelfTest_UnnamedTestsGetDefaultName(t *testing.T) {
	st, d := newLegacy(t)

	require.NoError(t, st.AddTest(func(_ context.Context, s *domain.StatusRecord) error {
		s.Summary(domain.LevelOK, "fine")
		return nil
	}))

	res := runWithHost(t, st, d)
	require.Len(t, res.Status, 1)
	assert.Equal(t, domain.DefaultStatusName, res.Status[0].Name)
	assert.True(t, res.Passed)
}

func TestSelfTest_StatusTestIsConverted(t *testing.T) {
	st, d := newLegacy(t)
	var order []string

	st.SetPretest(func() { order = append(order, "pre") })
	st.SetPosttest(func() { order = append(order, "post") })
	require.NoError(t, st.AddStatusTest(func(s *Status) {
		order = append(order, "test")
		st.SetID("board-7")
		s.Name = "voltage"
		s.Level = 1
		s.Message = "low"
		s.Values = append(s.Values, domain.KeyValue{Key: "volts", Value: "11.2"})
	}))

	res := runWithHost(t, st, d)

	assert.Equal(t, []string{"pre", "test", "post"}, order)
	assert.Equal(t, "board-7", res.ID)
	assert.True(t, res.Passed)
	assert.Equal(t, domain.StatusRecord{
		Name:    "voltage",
		Level:   domain.LevelWarn,
		Message: "low",
		Values:  []domain.KeyValue{{Key: "volts", Value: "11.2"}},
	}, res.Status[0])
}

func TestToRecord_ClampsUnknownLevels(t *testing.T) {
	rec := ToRecord(Status{Level: 3, Name: "stale"})
	assert.Equal(t, domain.LevelError, rec.Level)
	assert.True(t, rec.Failed())
}

func TestAddStatusTest_RejectsNil(t *testing.T) {
	st, _ := newLegacy(t)
	assert.ErrorIs(t, st.AddStatusTest(nil), selftest.ErrNilCheck)
}
