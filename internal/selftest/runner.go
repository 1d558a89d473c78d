package selftest

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"ozzus/agent-selftest/internal/domain"
)

const uncaughtPrefix = "Uncaught exception: "

// Runner executes the registered hooks and tasks of one self test.
type Runner struct {
	registry *Registry
	log      *slog.Logger

	mu sync.Mutex
	id string
}

func NewRunner(registry *Registry, log *slog.Logger) *Runner {
	if log == nil {
		log = slog.Default()
	}
	return &Runner{registry: registry, log: log}
}

// SetID records the identifier of the part under test. It is meant to be
// called by one of the tasks; the last call of a run wins.
func (r *Runner) SetID(id string) {
	r.mu.Lock()
	r.id = id
	r.mu.Unlock()
}

func (r *Runner) currentID() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.id
}

// Run executes one full self test. Task failures are isolated into their
// records; a failing hook aborts the run with a *HookError.
func (r *Runner) Run(ctx context.Context) (domain.RunResult, error) {
	r.SetID("")

	pretest, posttest := r.registry.hooks()

	r.log.Info("entering self test, other operation should be suspended")

	if err := runHook(ctx, StagePretest, pretest); err != nil {
		return domain.RunResult{}, err
	}

	tasks := r.registry.Tasks()
	records := make([]domain.StatusRecord, 0, len(tasks))
	for _, task := range tasks {
		records = append(records, runTask(ctx, task))
	}

	if err := runHook(ctx, StagePosttest, posttest); err != nil {
		return domain.RunResult{}, err
	}

	result := domain.RunResult{
		ID:     r.currentID(),
		Passed: true,
		Status: records,
	}

	for _, status := range records {
		if status.Failed() {
			result.Passed = false
			r.log.Warn("non-zero self test status",
				"name", status.Name,
				"level", status.Level.String(),
				"message", status.Message,
			)
		}
	}

	r.log.Info("self test completed", "id", result.ID, "passed", result.Passed, "tests", len(records))

	return result, nil
}

func runTask(ctx context.Context, task Task) (status domain.StatusRecord) {
	status = domain.NewStatusRecord(task.Name)

	defer func() {
		if rec := recover(); rec != nil {
			status.Summary(domain.LevelError, uncaughtPrefix+fmt.Sprint(rec))
		}
	}()

	if err := task.Check(ctx, &status); err != nil {
		status.Summary(domain.LevelError, uncaughtPrefix+err.Error())
	}

	return status
}

func runHook(ctx context.Context, stage HookStage, hook Hook) (err error) {
	if hook == nil {
		return nil
	}

	defer func() {
		if rec := recover(); rec != nil {
			err = &HookError{Stage: stage, Err: fmt.Errorf("panic: %v", rec)}
		}
	}()

	if hookErr := hook(ctx); hookErr != nil {
		return &HookError{Stage: stage, Err: hookErr}
	}
	return nil
}
