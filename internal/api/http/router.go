package http

import (
	"log/slog"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"ozzus/agent-selftest/internal/api/http/middleware"
)

func NewRouter(health *HealthController, selfTest *SelfTestController, gatherer prometheus.Gatherer, log *slog.Logger) *gin.Engine {
	router := gin.New()
	router.Use(middleware.Logger(log), gin.Recovery())

	router.GET("/health", health.Health)
	router.GET("/status", health.Status)
	router.GET("/ready", health.Ready)
	router.GET("/info", health.Info)

	router.POST("/self_test", selfTest.Run)
	router.GET("/self_test/last", selfTest.Last)

	if gatherer != nil {
		router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
	}

	return router
}
