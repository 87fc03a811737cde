// Package scheduler runs delayed, best-effort promotion attempts. Pending
// tasks live only in memory; a process exit drops them without side effects.
package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/swargawasal/Final-output-03/pkg/guard"
)

var (
	// ErrCancelled is returned by Task.Wait when the task's context ended
	// before the delay elapsed.
	ErrCancelled = errors.New("scheduler: task cancelled")
	// ErrSchedulerClosed is returned for tasks dropped by Close or scheduled
	// after it.
	ErrSchedulerClosed = errors.New("scheduler: closed")
)

// CandidateFactory builds the candidate when the delay elapses.
type CandidateFactory func() guard.Candidate

// RunFunc performs one attempt, typically Gate.Attempt bound to a platform.
type RunFunc func(ctx context.Context, c guard.Candidate) guard.Outcome

// Task is a handle to one scheduled attempt.
type Task struct {
	ID    uint64
	RunAt time.Time

	done    chan struct{}
	outcome guard.Outcome
	err     error
}

// Done is closed once the task has run or been dropped.
func (t *Task) Done() <-chan struct{} { return t.done }

// Wait blocks until the task finishes or ctx ends.
func (t *Task) Wait(ctx context.Context) (guard.Outcome, error) {
	select {
	case <-t.done:
		return t.outcome, t.err
	case <-ctx.Done():
		return guard.Outcome{}, ctx.Err()
	}
}

func (t *Task) finish(out guard.Outcome, err error) {
	t.outcome, t.err = out, err
	close(t.done)
}

// Scheduler owns a set of goroutine-backed delayed tasks.
type Scheduler struct {
	mu     sync.Mutex
	closed bool
	nextID uint64
	quit   chan struct{}
	wg     sync.WaitGroup
	logger *slog.Logger
}

// New returns a running Scheduler.
func New() *Scheduler {
	return &Scheduler{
		quit:   make(chan struct{}),
		logger: slog.Default().With("component", "scheduler"),
	}
}

// SetLogger replaces the component logger.
func (s *Scheduler) SetLogger(l *slog.Logger) {
	s.logger = l.With("component", "scheduler")
}

// Schedule runs factory and run after delay without blocking the caller. The
// attempt is dropped if ctx ends or Close is called first.
func (s *Scheduler) Schedule(ctx context.Context, delay time.Duration, factory CandidateFactory, run RunFunc) *Task {
	s.mu.Lock()
	s.nextID++
	task := &Task{ID: s.nextID, RunAt: time.Now().Add(delay), done: make(chan struct{})}
	if s.closed {
		s.mu.Unlock()
		task.finish(guard.Outcome{}, ErrSchedulerClosed)
		return task
	}
	s.wg.Add(1)
	s.mu.Unlock()

	s.logger.InfoContext(ctx, "promotion scheduled", "task_id", task.ID, "delay", delay.String())

	go func() {
		defer s.wg.Done()

		timer := time.NewTimer(delay)
		defer timer.Stop()

		select {
		case <-timer.C:
		case <-ctx.Done():
			s.logger.InfoContext(ctx, "scheduled promotion dropped", "task_id", task.ID, "cause", "context")
			task.finish(guard.Outcome{}, ErrCancelled)
			return
		case <-s.quit:
			s.logger.Info("scheduled promotion dropped", "task_id", task.ID, "cause", "shutdown")
			task.finish(guard.Outcome{}, ErrSchedulerClosed)
			return
		}

		// The attempt itself is not interrupted by Close.
		c := factory()
		task.finish(run(context.WithoutCancel(ctx), c), nil)
	}()
	return task
}

// Close drops pending tasks and waits for in-flight attempts to return.
func (s *Scheduler) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	close(s.quit)
	s.mu.Unlock()
	s.wg.Wait()
}
