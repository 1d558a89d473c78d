package domain

import "time"

// CheckType selects which built-in probe backs a configured self-test.
type CheckType string

const (
	CheckTypeHTTP    CheckType = "http"
	CheckTypePing    CheckType = "ping"
	CheckTypeTCP     CheckType = "tcp"
	CheckTypeDNS     CheckType = "dns"
	CheckTypeKafka   CheckType = "kafka"
	CheckTypeBackend CheckType = "backend"
)

// CheckSpec describes one configured self-test, in registration order.
type CheckSpec struct {
	Name    string        `mapstructure:"name"`
	Type    CheckType     `mapstructure:"type"`
	Target  string        `mapstructure:"target"`
	Timeout time.Duration `mapstructure:"timeout"`
	// Warn downgrades a failing probe from ERROR to WARN.
	Warn bool `mapstructure:"warn"`
}
