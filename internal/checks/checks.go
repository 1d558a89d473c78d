package checks

import (
	"context"
	"fmt"
	"time"

	"ozzus/agent-selftest/internal/domain"
	"ozzus/agent-selftest/internal/selftest"
)

const defaultTimeout = 5 * time.Second

// Heartbeater is the part of the backend client the backend check uses.
type Heartbeater interface {
	Heartbeat(ctx context.Context) error
}

// Deps carries the shared clients some checks probe.
type Deps struct {
	KafkaBrokers []string
	Backend      Heartbeater
}

// New builds the self-test check described by def.
func New(def domain.CheckSpec, deps Deps) (selftest.Check, error) {
	timeout := def.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	var check selftest.Check
	switch def.Type {
	case domain.CheckTypeHTTP:
		check = NewHTTPChecker(def.Target, timeout).Check
	case domain.CheckTypeTCP:
		check = NewTCPChecker(def.Target, timeout).Check
	case domain.CheckTypeDNS:
		check = NewDNSChecker(def.Target, timeout).Check
	case domain.CheckTypePing:
		check = NewPingChecker(def.Target, 3, timeout).Check
	case domain.CheckTypeKafka:
		if len(deps.KafkaBrokers) == 0 {
			return nil, fmt.Errorf("check %q: no kafka brokers configured", def.Name)
		}
		check = NewKafkaChecker(deps.KafkaBrokers, def.Target, timeout).Check
	case domain.CheckTypeBackend:
		if deps.Backend == nil {
			return nil, fmt.Errorf("check %q: no backend configured", def.Name)
		}
		check = NewBackendChecker(deps.Backend, timeout).Check
	default:
		return nil, fmt.Errorf("check %q: unsupported type %q", def.Name, def.Type)
	}

	if def.Warn {
		check = downgrade(check)
	}
	return check, nil
}

// Register builds every check definition and adds it to the registry in order.
func Register(registry *selftest.Registry, defs []domain.CheckSpec, deps Deps) error {
	for _, def := range defs {
		check, err := New(def, deps)
		if err != nil {
			return err
		}
		if err := registry.Add(def.Name, check); err != nil {
			return fmt.Errorf("register check %q: %w", def.Name, err)
		}
	}
	return nil
}

// downgrade reports a failing probe as a warning so it does not fail the run.
func downgrade(check selftest.Check) selftest.Check {
	return func(ctx context.Context, status *domain.StatusRecord) error {
		err := check(ctx, status)
		if err == nil && status.Level == domain.LevelError {
			status.Level = domain.LevelWarn
		}
		return err
	}
}
