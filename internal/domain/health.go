package domain

import "time"

type HealthStatus string

const (
	HealthStatusHealthy   HealthStatus = "healthy"
	HealthStatusUnhealthy HealthStatus = "unhealthy"
)

type HealthResponse struct {
	Status    HealthStatus `json:"status"`
	Timestamp time.Time    `json:"timestamp"`
	AgentID   string       `json:"agent_id"`
	Message   string       `json:"message,omitempty"`
}

// AgentStatus is a snapshot of the host loop and the self-test dispatcher.
type AgentStatus struct {
	AgentID          string    `json:"agent_id"`
	IsRunning        bool      `json:"is_running"`
	LoopInterval     string    `json:"loop_interval"`
	Iterations       uint64    `json:"iterations"`
	RegisteredTests  int       `json:"registered_tests"`
	SelfTestPending  bool      `json:"self_test_pending"`
	LastSelfTestAt   time.Time `json:"last_self_test_at,omitempty"`
	LastSelfTestPass bool      `json:"last_self_test_passed"`
}
