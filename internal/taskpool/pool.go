// Package taskpool runs blocking filesystem work (directory scans,
// subtree search, archive extraction) off the request path on a bounded
// set of workers.
package taskpool

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"

	"github.com/zyhibook/filelist/internal/logging"
	"github.com/zyhibook/filelist/internal/metrics"
)

// ErrStopped is returned for work submitted after the pool shut down.
var ErrStopped = errors.New("task pool stopped")

// Task is one unit of offloaded work. The context it receives is
// cancelled only by the shutdown drain path, never mid-request; tasks
// are not cooperatively cancellable in normal operation.
type Task func(ctx context.Context) error

type job struct {
	task Task
	done chan error
}

// Pool is a fixed-size worker pool.
type Pool struct {
	queue   chan job
	workers int
	wg      sync.WaitGroup

	mu      sync.RWMutex
	cancel  context.CancelFunc
	stopped bool
}

// New creates a pool with the given number of workers.
func New(workers int) *Pool {
	if workers <= 0 {
		workers = 2
	}
	return &Pool{
		queue:   make(chan job, 64),
		workers: workers,
	}
}

// Start launches the worker goroutines. The pool runs until Stop.
func (p *Pool) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	p.mu.Lock()
	p.cancel = cancel
	p.mu.Unlock()

	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.worker(ctx)
	}
	logging.Info("task pool started", zap.Int("workers", p.workers))
}

func (p *Pool) worker(ctx context.Context) {
	defer p.wg.Done()
	for j := range p.queue {
		if err := ctx.Err(); err != nil {
			// Drain path: pending work is force-cancelled, not run.
			metrics.RecordPoolTask("cancelled")
			j.done <- err
			continue
		}

		err := j.task(ctx)
		switch {
		case errors.Is(err, context.Canceled):
			metrics.RecordPoolTask("cancelled")
		case err != nil:
			metrics.RecordPoolTask("error")
		default:
			metrics.RecordPoolTask("ok")
		}
		j.done <- err
	}
}

// Submit enqueues task and waits for it to finish, returning its error.
// The caller's ctx only bounds the wait; a task already running is not
// interrupted by it.
func (p *Pool) Submit(ctx context.Context, task Task) error {
	j := job{task: task, done: make(chan error, 1)}
	metrics.SetPoolQueueDepth(len(p.queue))

	// The read lock spans the stopped check and the send, so Stop
	// cannot close the queue between them.
	p.mu.RLock()
	if p.stopped {
		p.mu.RUnlock()
		return ErrStopped
	}
	select {
	case p.queue <- j:
		p.mu.RUnlock()
	case <-ctx.Done():
		p.mu.RUnlock()
		return ctx.Err()
	}

	select {
	case err := <-j.done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// CancelPending force-cancels the pool context: running tasks observe a
// cancelled context, queued tasks are failed without running. Used by the
// shutdown drain after the grace interval.
func (p *Pool) CancelPending() {
	p.mu.Lock()
	cancel := p.cancel
	p.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// Stop closes the queue and waits for the workers to exit. Submit calls
// after Stop return ErrStopped.
func (p *Pool) Stop() {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return
	}
	p.stopped = true
	close(p.queue)
	p.mu.Unlock()

	p.wg.Wait()
	logging.Info("task pool stopped")
}
