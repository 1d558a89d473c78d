package domain

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewStatusRecord(t *testing.T) {
	s := NewStatusRecord("fan")
	assert.Equal(t, StatusRecord{Name: "fan", Level: LevelError, Message: "No message was set"}, s)
	assert.True(t, s.Failed())

	assert.Equal(t, "None", NewStatusRecord("").Name)
}

func TestStatusRecord_Helpers(t *testing.T) {
	s := NewStatusRecord("motor")
	s.Summaryf(LevelWarn, "temp %dC", 71)
	s.Add("rpm", "1200")
	s.Addf("temp", "%d", 71)

	assert.Equal(t, LevelWarn, s.Level)
	assert.Equal(t, "temp 71C", s.Message)
	assert.Equal(t, []KeyValue{{"rpm", "1200"}, {"temp", "71"}}, s.Values)
	assert.False(t, s.Failed())
}

func TestLevel_String(t *testing.T) {
	assert.Equal(t, "OK", LevelOK.String())
	assert.Equal(t, "WARN", LevelWarn.String())
	assert.Equal(t, "ERROR", LevelError.String())
	assert.Equal(t, "Level(7)", Level(7).String())
}

func TestRunResult_JSON(t *testing.T) {
	res := RunResult{ID: "X", Passed: false, Status: []StatusRecord{{Name: "B", Level: LevelError, Message: "m"}}}

	b, err := json.Marshal(res)
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":"X","passed":false,"status":[{"name":"B","level":2,"message":"m"}]}`, string(b))
}
