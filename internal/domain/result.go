package domain

import "time"

// RunResult is the aggregate outcome of one self-test invocation.
type RunResult struct {
	ID     string         `json:"id"`
	Passed bool           `json:"passed"`
	Status []StatusRecord `json:"status"`
}

// SelfTestRequest asks the agent to run its self test now.
type SelfTestRequest struct {
	RequestID string `json:"request_id"`
}

type SelfTestResponse struct {
	RequestID  string    `json:"request_id"`
	AgentID    string    `json:"agent_id"`
	Result     RunResult `json:"result"`
	Error      string    `json:"error,omitempty"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
}
