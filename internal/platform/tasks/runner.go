// Package tasks runs best-effort background work, such as receipt extraction
// and categorization, after the triggering request has committed. Work
// submitted here must never share a transaction with the caller: the runner
// exists precisely so enrichment failures cannot roll back authoritative
// state.
package tasks

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

const defaultTaskTimeout = 2 * time.Minute

type task struct {
	name string
	run  func(ctx context.Context)
}

// Runner executes submitted tasks on a bounded worker pool.
type Runner struct {
	logger  *slog.Logger
	queue   chan task
	timeout time.Duration

	wg     sync.WaitGroup
	mu     sync.RWMutex
	closed bool
}

// NewRunner starts a pool of workers consuming a buffered task queue.
func NewRunner(workers, queueSize int, logger *slog.Logger) *Runner {
	if workers <= 0 {
		workers = 4
	}
	if queueSize <= 0 {
		queueSize = 64
	}
	if logger == nil {
		logger = slog.Default()
	}

	r := &Runner{
		logger:  logger,
		queue:   make(chan task, queueSize),
		timeout: defaultTaskTimeout,
	}

	r.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer r.wg.Done()
			for t := range r.queue {
				r.runTask(t)
			}
		}()
	}

	return r
}

// Submit enqueues a task without blocking the caller. When the queue is full
// the task runs on its own goroutine instead of being dropped, so a burst of
// submissions degrades to unpooled execution rather than silently losing
// work. Returns false once the runner is closed.
func (r *Runner) Submit(name string, fn func(ctx context.Context)) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		r.logger.Warn("task submitted after runner close, dropping", slog.String("task", name))
		return false
	}

	t := task{name: name, run: fn}
	select {
	case r.queue <- t:
	default:
		r.logger.Warn("task queue full, running task unpooled", slog.String("task", name))
		r.wg.Add(1)
		go func() {
			defer r.wg.Done()
			r.runTask(t)
		}()
	}
	return true
}

// Close stops accepting tasks and waits for in-flight work to drain, bounded
// by ctx.
func (r *Runner) Close(ctx context.Context) error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	close(r.queue)
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
		return ctx.Err()
	}
}

// runTask executes one task with a bounded context and panic isolation. A
// panicking task must not take its worker down with it.
func (r *Runner) runTask(t task) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("background task panicked",
				slog.String("task", t.name),
				slog.Any("panic", rec))
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()

	t.run(ctx)
}
