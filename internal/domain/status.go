package domain

import "fmt"

// Level is the severity of a single self-test record.
type Level uint8

const (
	LevelOK Level = iota
	LevelWarn
	LevelError
)

func (l Level) String() string {
	switch l {
	case LevelOK:
		return "OK"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	default:
		return fmt.Sprintf("Level(%d)", uint8(l))
	}
}

const (
	DefaultStatusName    = "None"
	DefaultStatusMessage = "No message was set"
)

type KeyValue struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// StatusRecord is the outcome of one self-test task.
type StatusRecord struct {
	Name       string     `json:"name"`
	Level      Level      `json:"level"`
	Message    string     `json:"message"`
	HardwareID string     `json:"hardware_id,omitempty"`
	Values     []KeyValue `json:"values,omitempty"`
}

// NewStatusRecord returns the record a task starts from: unless the task
// fills it in, it reports an error.
func NewStatusRecord(name string) StatusRecord {
	if name == "" {
		name = DefaultStatusName
	}
	return StatusRecord{
		Name:    name,
		Level:   LevelError,
		Message: DefaultStatusMessage,
	}
}

func (s *StatusRecord) Summary(level Level, message string) {
	s.Level = level
	s.Message = message
}

func (s *StatusRecord) Summaryf(level Level, format string, args ...interface{}) {
	s.Summary(level, fmt.Sprintf(format, args...))
}

func (s *StatusRecord) Add(key, value string) {
	s.Values = append(s.Values, KeyValue{Key: key, Value: value})
}

func (s *StatusRecord) Addf(key, format string, args ...interface{}) {
	s.Add(key, fmt.Sprintf(format, args...))
}

func (s StatusRecord) Failed() bool {
	return s.Level >= LevelError
}
