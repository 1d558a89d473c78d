package http

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"ozzus/agent-selftest/internal/domain"
	"ozzus/agent-selftest/internal/selftest"
)

type SelfTestExecutor interface {
	Execute(ctx context.Context, req domain.SelfTestRequest) (domain.SelfTestResponse, error)
}

type SelfTestController struct {
	executor  SelfTestExecutor
	inspector SelfTestInspector
}

func NewSelfTestController(executor SelfTestExecutor, inspector SelfTestInspector) *SelfTestController {
	return &SelfTestController{executor: executor, inspector: inspector}
}

// Run handles POST /self_test. A completed run answers 200 whether or not
// it passed; the body carries the verdict.
func (h *SelfTestController) Run(c *gin.Context) {
	var req domain.SelfTestRequest
	// ContentLength is -1 for chunked bodies.
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}

	resp, err := h.executor.Execute(c.Request.Context(), req)
	if err != nil {
		c.JSON(statusFor(err), resp)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// Last handles GET /self_test/last.
func (h *SelfTestController) Last(c *gin.Context) {
	last, at, ok := h.inspector.Last()
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "no self test has completed yet"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"finished_at": at,
		"result":      last,
	})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, selftest.ErrBusy):
		return http.StatusConflict
	case errors.Is(err, selftest.ErrShuttingDown):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}
