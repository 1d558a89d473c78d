package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"ozzus/agent-selftest/internal/domain"
	"ozzus/agent-selftest/internal/repository"
)

// SelfTestRunner is the requester side of the self-test handshake.
type SelfTestRunner interface {
	Run(ctx context.Context) (domain.RunResult, error)
}

type Reporter interface {
	SendSelfTestReport(ctx context.Context, report domain.SelfTestResponse) error
}

// SelfTestService relays external "run self test" requests to the
// dispatcher and publishes what came back.
type SelfTestService struct {
	runner   SelfTestRunner
	results  repository.ResultRepository
	reporter Reporter
	agentID  string
	log      *slog.Logger
}

// NewSelfTestService wires the service. results and reporter may be nil.
func NewSelfTestService(runner SelfTestRunner, results repository.ResultRepository, reporter Reporter, agentID string, log *slog.Logger) *SelfTestService {
	if log == nil {
		log = slog.Default()
	}

	return &SelfTestService{
		runner:   runner,
		results:  results,
		reporter: reporter,
		agentID:  agentID,
		log:      log.With("component", "selftest_service"),
	}
}

// Execute runs one self test. The response is always filled in; err is
// non-nil when no result was produced.
func (s *SelfTestService) Execute(ctx context.Context, req domain.SelfTestRequest) (domain.SelfTestResponse, error) {
	if req.RequestID == "" {
		req.RequestID = uuid.NewString()
	}

	resp := domain.SelfTestResponse{
		RequestID: req.RequestID,
		AgentID:   s.agentID,
		StartedAt: time.Now(),
	}

	s.sendLog(ctx, req.RequestID, domain.LogLevelInfo, "self test requested")

	result, err := s.runner.Run(ctx)
	resp.FinishedAt = time.Now()
	resp.Result = result
	if resp.Result.Status == nil {
		resp.Result.Status = []domain.StatusRecord{}
	}

	if err != nil {
		resp.Error = err.Error()
		s.sendLog(ctx, req.RequestID, domain.LogLevelError, fmt.Sprintf("self test not run: %v", err))
	} else {
		level := domain.LogLevelInfo
		if !result.Passed {
			level = domain.LogLevelWarn
		}
		s.sendLog(ctx, req.RequestID, level, fmt.Sprintf("self test finished: passed=%t tests=%d", result.Passed, len(result.Status)))
	}

	s.publish(ctx, resp, err == nil)

	return resp, err
}

// Serve consumes requests until ctx is done.
func (s *SelfTestService) Serve(ctx context.Context, requests repository.RequestRepository) error {
	s.log.Info("serving self test requests from queue")

	for {
		req, err := requests.FetchRequest(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			s.log.Error("failed to fetch self test request", "error", err)

			select {
			case <-time.After(time.Second):
				continue
			case <-ctx.Done():
				return nil
			}
		}

		if _, err := s.Execute(ctx, req); err != nil {
			s.log.Warn("queued self test failed", "request_id", req.RequestID, "error", err)
		}

		if err := requests.AckRequest(ctx, req.RequestID); err != nil {
			s.log.Error("failed to ack self test request", "request_id", req.RequestID, "error", err)
		}
	}
}

func (s *SelfTestService) publish(ctx context.Context, resp domain.SelfTestResponse, ran bool) {
	if s.results != nil {
		if err := s.results.SendResult(ctx, resp); err != nil {
			s.log.Error("failed to publish self test result", "request_id", resp.RequestID, "error", err)
		}
	}

	if s.reporter != nil && ran {
		if err := s.reporter.SendSelfTestReport(ctx, resp); err != nil && !errors.Is(err, context.Canceled) {
			s.log.Error("failed to report self test to backend", "request_id", resp.RequestID, "error", err)
		}
	}
}

func (s *SelfTestService) sendLog(ctx context.Context, requestID string, level domain.LogLevel, message string) {
	if s.results == nil {
		return
	}

	entry := domain.LogEntry{
		RequestID: requestID,
		AgentID:   s.agentID,
		Level:     level,
		Message:   message,
		Timestamp: time.Now(),
	}
	if err := s.results.SendLog(ctx, entry); err != nil {
		s.log.Debug("failed to send log", "error", err)
	}
}
