// Package scheduler runs the repeating broadcast and spam loops of attached accounts
package scheduler

import (
	"context"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Runner tracks one goroutine per key. A key never has two live tasks.
type Runner struct {
	mu     sync.Mutex
	tasks  map[string]*Task
	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc
	logger zerolog.Logger
}

// Task is the handle a running loop uses to sleep and to decide whether to go on
type Task struct {
	key    string
	ctx    context.Context
	wake   chan struct{}
	cancel context.CancelFunc
	runner *Runner
}

// NewRunner creates a task runner
func NewRunner(logger zerolog.Logger) *Runner {
	ctx, cancel := context.WithCancel(context.Background())
	return &Runner{
		tasks:  make(map[string]*Task),
		ctx:    ctx,
		cancel: cancel,
		logger: logger.With().Str("component", "task_runner").Logger(),
	}
}

// Ensure starts fn under key unless a task with that key is alive, in which
// case the live task is woken instead. A cancelled task that has not exited
// yet is replaced. Returns true if a new task was started.
func (r *Runner) Ensure(key string, fn func(ctx context.Context, t *Task)) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.ctx.Err() != nil {
		return false
	}

	if t, ok := r.tasks[key]; ok && t.ctx.Err() == nil {
		t.signal()
		return false
	}

	ctx, cancel := context.WithCancel(r.ctx)
	t := &Task{
		key:    key,
		ctx:    ctx,
		wake:   make(chan struct{}, 1),
		cancel: cancel,
		runner: r,
	}
	r.tasks[key] = t
	r.wg.Add(1)

	go func() {
		defer r.wg.Done()
		defer cancel()
		defer r.release(t)
		defer func() {
			if rec := recover(); rec != nil {
				r.logger.Error().
					Str("task", key).
					Interface("panic", rec).
					Str("stack", string(debug.Stack())).
					Msg("Task panic recovered")
			}
		}()

		fn(ctx, t)
	}()

	return true
}

// Wake interrupts the sleep of the task under key, if any
func (r *Runner) Wake(key string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if t, ok := r.tasks[key]; ok {
		t.signal()
	}
}

// Running reports whether a task is registered under key
func (r *Runner) Running(key string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.tasks[key]
	return ok
}

// CancelPrefix cancels every task whose key starts with prefix, without
// touching any persisted flag. Used when an account disconnects.
func (r *Runner) CancelPrefix(prefix string) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := 0
	for key, t := range r.tasks {
		if strings.HasPrefix(key, prefix) {
			t.cancel()
			n++
		}
	}
	return n
}

// Count returns the number of live tasks
func (r *Runner) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.tasks)
}

// Shutdown cancels all tasks and waits for them until ctx expires
func (r *Runner) Shutdown(ctx context.Context) error {
	r.mu.Lock()
	r.cancel()
	r.mu.Unlock()

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		r.logger.Warn().Int("tasks", r.Count()).Msg("Timeout waiting for tasks to stop")
		return ctx.Err()
	}
}

func (r *Runner) release(t *Task) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.tasks[t.key] == t {
		delete(r.tasks, t.key)
	}
}

func (t *Task) signal() {
	select {
	case t.wake <- struct{}{}:
	default:
	}
}

// Continue evaluates cond under the runner lock. When cond is false the task
// is deregistered before the lock is released, so a concurrent Ensure for the
// same key starts a fresh task instead of waking one that is about to exit.
func (t *Task) Continue(cond func() bool) bool {
	t.runner.mu.Lock()
	defer t.runner.mu.Unlock()

	if cond() {
		return true
	}
	if t.runner.tasks[t.key] == t {
		delete(t.runner.tasks, t.key)
	}
	return false
}

// Sleep blocks for d or until the task is woken. It returns false if ctx ended.
func (t *Task) Sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return true
	case <-t.wake:
		return true
	case <-ctx.Done():
		return false
	}
}
