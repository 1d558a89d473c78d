package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"ozzus/agent-selftest/internal/domain"
)

// SelfTestPoller is the host side of the self-test handshake.
type SelfTestPoller interface {
	CheckTest(ctx context.Context) error
}

type Heartbeater interface {
	Heartbeat(ctx context.Context) error
}

// AgentService is the agent's own execution loop. Every iteration it first
// gives a pending self test the chance to run, then does its regular work.
type AgentService struct {
	poller  SelfTestPoller
	backend Heartbeater
	log     *slog.Logger

	agentID           string
	loopInterval      time.Duration
	heartbeatInterval time.Duration

	isRunning     atomic.Bool
	iterations    atomic.Uint64
	lastHeartbeat time.Time
}

type Config struct {
	AgentID           string
	LoopInterval      time.Duration
	HeartbeatInterval time.Duration
}

func NewAgentService(poller SelfTestPoller, backend Heartbeater, config Config, log *slog.Logger) *AgentService {
	if config.LoopInterval <= 0 {
		config.LoopInterval = 100 * time.Millisecond
	}
	if config.HeartbeatInterval <= 0 {
		config.HeartbeatInterval = 30 * time.Second
	}
	if log == nil {
		log = slog.Default()
	}

	return &AgentService{
		poller:            poller,
		backend:           backend,
		log:               log.With("component", "agent"),
		agentID:           config.AgentID,
		loopInterval:      config.LoopInterval,
		heartbeatInterval: config.HeartbeatInterval,
	}
}

func (s *AgentService) Start(ctx context.Context) error {
	s.isRunning.Store(true)
	defer s.isRunning.Store(false)

	s.log.Info("agent service started",
		"agent_id", s.agentID,
		"loop_interval", s.loopInterval,
	)

	ticker := time.NewTicker(s.loopInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.iterate(ctx)
		case <-ctx.Done():
			s.log.Info("agent service stopped")
			return nil
		}
	}
}

func (s *AgentService) iterate(ctx context.Context) {
	if err := s.poller.CheckTest(ctx); err != nil && ctx.Err() == nil {
		s.log.Warn("self test poll returned early", "error", err)
	}

	if err := s.work(ctx); err != nil {
		s.log.Error("agent iteration failed", "error", err)
	}

	s.iterations.Add(1)
}

// work is the agent's normal operation; it never overlaps a self test.
func (s *AgentService) work(ctx context.Context) error {
	if s.backend == nil || time.Since(s.lastHeartbeat) < s.heartbeatInterval {
		return nil
	}
	s.lastHeartbeat = time.Now()

	hbCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := s.backend.Heartbeat(hbCtx); err != nil {
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return fmt.Errorf("heartbeat failed: %w", err)
	}

	s.log.Debug("heartbeat sent")
	return nil
}

func (s *AgentService) HealthCheck(ctx context.Context) error {
	if !s.isRunning.Load() {
		return fmt.Errorf("service is not running")
	}

	return nil
}

func (s *AgentService) GetStatus() domain.AgentStatus {
	return domain.AgentStatus{
		AgentID:      s.agentID,
		IsRunning:    s.isRunning.Load(),
		LoopInterval: s.loopInterval.String(),
		Iterations:   s.iterations.Load(),
	}
}
