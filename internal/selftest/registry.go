package selftest

import (
	"context"
	"sync"

	"ozzus/agent-selftest/internal/domain"
)

// Check fills in the status record of one self-test task. A returned error
// marks the task as failed; remaining tasks still run.
type Check func(ctx context.Context, status *domain.StatusRecord) error

// Hook runs once before or after the tasks of a self test.
type Hook func(ctx context.Context) error

type Task struct {
	Name  string
	Check Check
}

// Registry holds the ordered self-test tasks and the optional hooks.
// Insertion order is run order; duplicate names are kept.
type Registry struct {
	mu       sync.RWMutex
	tasks    []Task
	pretest  Hook
	posttest Hook
}

func NewRegistry() *Registry {
	return &Registry{}
}

func (r *Registry) Add(name string, check Check) error {
	if check == nil {
		return ErrNilCheck
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.tasks = append(r.tasks, Task{Name: name, Check: check})
	return nil
}

// Tasks returns a snapshot of the registered tasks.
func (r *Registry) Tasks() []Task {
	r.mu.RLock()
	defer r.mu.RUnlock()

	tasks := make([]Task, len(r.tasks))
	copy(tasks, r.tasks)
	return tasks
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tasks)
}

// SetPretest replaces the pretest hook. nil clears it.
func (r *Registry) SetPretest(hook Hook) {
	r.mu.Lock()
	r.pretest = hook
	r.mu.Unlock()
}

// SetPosttest replaces the posttest hook. nil clears it.
func (r *Registry) SetPosttest(hook Hook) {
	r.mu.Lock()
	r.posttest = hook
	r.mu.Unlock()
}

func (r *Registry) hooks() (pre, post Hook) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.pretest, r.posttest
}
