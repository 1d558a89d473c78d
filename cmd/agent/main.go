package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	nethttp "net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/sourcegraph/conc"

	apihttp "ozzus/agent-selftest/internal/api/http"
	"ozzus/agent-selftest/internal/backend"
	"ozzus/agent-selftest/internal/checks"
	"ozzus/agent-selftest/internal/config"
	"ozzus/agent-selftest/internal/domain"
	"ozzus/agent-selftest/internal/lib/logger/slogpretty"
	"ozzus/agent-selftest/internal/repository"
	"ozzus/agent-selftest/internal/repository/kafka"
	"ozzus/agent-selftest/internal/selftest"
	"ozzus/agent-selftest/internal/selftest/legacy"
	"ozzus/agent-selftest/internal/service"
)

const (
	envLocal = "local"
	envDev   = "dev"
	envProd  = "prod"

	version = "1.0.0"
)

func main() {
	if err := godotenv.Load(".env"); err != nil {
		log.Printf("Warning: .env file not found: %v", err)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	log := setupLogger(cfg.Env)

	log.Info("starting application",
		"env", cfg.Env,
		"agent", cfg.Agent.Name,
	)

	metricsRegistry := prometheus.NewRegistry()
	metricsRegistry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	var backendClient *backend.Client
	if cfg.Backend.URL != "" {
		backendClient, err = backend.NewClient(cfg.Backend.URL, cfg.Agent.Name, cfg.Agent.Token)
		if err != nil {
			log.Error("failed to initialize backend client", "error", err)
			os.Exit(1)
		}
	}

	registry := selftest.NewRegistry()
	dispatcher := selftest.NewDispatcher(registry, selftest.Config{
		ReadyTimeout:    cfg.SelfTest.ReadyTimeout,
		HostWaitTimeout: cfg.SelfTest.HostWaitTimeout,
	}, selftest.NewMetrics(metricsRegistry), log)

	if err := registry.Add("Agent identity", identityCheck(dispatcher, cfg.Agent.Name)); err != nil {
		log.Error("failed to register identity check", "error", err)
		os.Exit(1)
	}

	startedAt := time.Now()
	if err := legacy.New(registry, dispatcher).AddStatusTest(uptimeStatus(startedAt)); err != nil {
		log.Error("failed to register uptime check", "error", err)
		os.Exit(1)
	}

	deps := checks.Deps{KafkaBrokers: cfg.Kafka.Brokers}
	if backendClient != nil {
		deps.Backend = backendClient
	}
	if err := checks.Register(registry, cfg.Checks, deps); err != nil {
		log.Error("failed to register checks", "error", err)
		os.Exit(1)
	}

	registry.SetPretest(func(context.Context) error {
		log.Info("suspending agent work for self test")
		return nil
	})
	registry.SetPosttest(func(context.Context) error {
		log.Info("resuming agent work after self test")
		return nil
	})

	log.Debug("self test registered", "tests", registry.Len())

	var (
		results  repository.ResultRepository
		requests repository.RequestRepository
		reporter service.Reporter
	)

	if cfg.Kafka.Enabled {
		log.Info("initializing Kafka components", "brokers", cfg.Kafka.Brokers)

		requestConsumer := kafka.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.Topics.Requests, cfg.Agent.Name, log)
		defer requestConsumer.Close()

		pingCtx, pingCancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := requestConsumer.Ping(pingCtx); err != nil {
			log.Warn("kafka is not reachable yet, requests will be consumed once it is", "error", err)
		}
		pingCancel()

		resultsProducer := kafka.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.Topics.Results, cfg.Agent.Name)
		defer resultsProducer.Close()

		logsProducer := kafka.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.Topics.Logs, cfg.Agent.Name)
		defer logsProducer.Close()

		requests = repository.NewKafkaRequestRepository(requestConsumer)
		results = repository.NewKafkaResultRepository(resultsProducer, logsProducer, log)
	}
	if backendClient != nil {
		reporter = backendClient
	}

	selfTestService := service.NewSelfTestService(dispatcher, results, reporter, cfg.Agent.Name, log)

	var heartbeater service.Heartbeater
	if backendClient != nil {
		heartbeater = backendClient
	}
	agentService := service.NewAgentService(dispatcher, heartbeater, service.Config{
		AgentID:           cfg.Agent.Name,
		LoopInterval:      cfg.SelfTest.LoopInterval,
		HeartbeatInterval: cfg.Backend.HeartbeatInterval,
	}, log)

	router := apihttp.NewRouter(
		apihttp.NewHealthController(agentService, dispatcher, registry, cfg.Agent.Name, version),
		apihttp.NewSelfTestController(selfTestService, dispatcher),
		metricsRegistry,
		log,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var wg conc.WaitGroup

	wg.Go(func() {
		if err := agentService.Start(ctx); err != nil {
			log.Error("agent service failed", "error", err)
			cancel()
		}
	})

	if requests != nil {
		wg.Go(func() {
			if err := selfTestService.Serve(ctx, requests); err != nil {
				log.Error("self test queue consumer failed", "error", err)
			}
		})
	}

	httpServer := &nethttp.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	wg.Go(func() {
		log.Info("starting http server", "port", cfg.Server.Port)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, nethttp.ErrServerClosed) {
			log.Error("HTTP server failed", "error", err)
			cancel()
		}
	})

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	log.Info("application started and ready",
		"port", cfg.Server.Port,
		"agent_id", cfg.Agent.Name,
		"tests", registry.Len(),
	)

	select {
	case <-quit:
	case <-ctx.Done():
	}

	log.Info("shutting down agent...")
	dispatcher.Close()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error("HTTP server shutdown failed", "error", err)
	}
	cancel()

	wg.Wait()
	log.Info("agent stopped gracefully")
}

// identityCheck reports which agent ran the self test and stamps the run id.
func identityCheck(dispatcher *selftest.Dispatcher, agentName string) selftest.Check {
	return func(_ context.Context, status *domain.StatusRecord) error {
		hostname, err := os.Hostname()
		if err != nil {
			return err
		}

		dispatcher.SetID(agentName)
		status.HardwareID = hostname
		status.Add("agent", agentName)
		status.Add("hostname", hostname)
		status.Summary(domain.LevelOK, "OK")
		return nil
	}
}

// uptimeStatus is still written against the old status shape.
func uptimeStatus(startedAt time.Time) func(*legacy.Status) {
	return func(s *legacy.Status) {
		s.Name = "Agent uptime"
		s.Level = 0
		s.Message = "OK"
		s.Values = append(s.Values, domain.KeyValue{
			Key:   "uptime",
			Value: time.Since(startedAt).Round(time.Second).String(),
		})
	}
}

func setupLogger(env string) *slog.Logger {
	var log *slog.Logger

	switch env {
	case envLocal:
		log = setupPrettySlog()
	case envDev:
		log = slog.New(
			slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}),
		)
	case envProd:
		log = slog.New(
			slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}),
		)
	default:
		log = setupPrettySlog()
	}

	return log
}

func setupPrettySlog() *slog.Logger {
	opts := slogpretty.PrettyHandlerOptions{
		SlogOpts: &slog.HandlerOptions{
			Level: slog.LevelDebug,
		},
	}

	handler := opts.NewPrettyHandler(os.Stdout)

	return slog.New(handler)
}
