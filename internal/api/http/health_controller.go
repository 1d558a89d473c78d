package http

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"ozzus/agent-selftest/internal/domain"
)

type AgentStatusProvider interface {
	HealthCheck(ctx context.Context) error
	GetStatus() domain.AgentStatus
}

// SelfTestInspector exposes the dispatcher state shown on /status.
type SelfTestInspector interface {
	Pending() bool
	Last() (domain.RunResult, time.Time, bool)
}

type TaskCounter interface {
	Len() int
}

type HealthController struct {
	agent    AgentStatusProvider
	selfTest SelfTestInspector
	tasks    TaskCounter
	agentID  string
	version  string
}

func NewHealthController(agent AgentStatusProvider, selfTest SelfTestInspector, tasks TaskCounter, agentID, version string) *HealthController {
	return &HealthController{
		agent:    agent,
		selfTest: selfTest,
		tasks:    tasks,
		agentID:  agentID,
		version:  version,
	}
}

// Health reports whether the agent loop is running.
func (h *HealthController) Health(c *gin.Context) {
	if err := h.agent.HealthCheck(c.Request.Context()); err != nil {
		c.JSON(http.StatusServiceUnavailable, domain.HealthResponse{
			Status:    domain.HealthStatusUnhealthy,
			Timestamp: time.Now(),
			AgentID:   h.agentID,
			Message:   err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, domain.HealthResponse{
		Status:    domain.HealthStatusHealthy,
		Timestamp: time.Now(),
		AgentID:   h.agentID,
		Message:   "Agent is running",
	})
}

func (h *HealthController) Status(c *gin.Context) {
	c.JSON(http.StatusOK, h.status())
}

// Ready is true only when the loop runs and no self test holds it.
func (h *HealthController) Ready(c *gin.Context) {
	if err := h.agent.HealthCheck(c.Request.Context()); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status":    "not_ready",
			"agent":     h.agentID,
			"message":   err.Error(),
			"timestamp": time.Now(),
		})
		return
	}

	if h.selfTest.Pending() {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status":    "not_ready",
			"agent":     h.agentID,
			"message":   "self test in progress",
			"timestamp": time.Now(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":    "ready",
		"agent":     h.agentID,
		"message":   "Agent is ready",
		"timestamp": time.Now(),
	})
}

func (h *HealthController) Info(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"agent_id":  h.agentID,
		"status":    h.status(),
		"version":   h.version,
		"timestamp": time.Now(),
		"components": []string{
			"agent_loop",
			"selftest_dispatcher",
			"http_gateway",
		},
	})
}

func (h *HealthController) status() domain.AgentStatus {
	status := h.agent.GetStatus()
	status.RegisteredTests = h.tasks.Len()
	status.SelfTestPending = h.selfTest.Pending()
	if last, at, ok := h.selfTest.Last(); ok {
		status.LastSelfTestAt = at
		status.LastSelfTestPass = last.Passed
	}
	return status
}
