// Package bootstrap owns the serving lifecycle: bind the listening
// socket once, run N workers over it, and drain in-flight work on a
// termination signal.
//
// Each worker gets its own handler graph (and with it its own directory
// cache) and its own accept loop over the shared listener, so workers
// stay independent: a filesystem write seen by one worker invalidates
// only that worker's cache, and the others self-heal on their next read.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/zyhibook/filelist/internal/logging"
	"github.com/zyhibook/filelist/internal/metrics"
)

// State is one phase of a worker's one-shot lifecycle.
type State int32

const (
	Starting State = iota
	Listening
	Draining
	Stopped
)

func (s State) String() string {
	switch s {
	case Starting:
		return "starting"
	case Listening:
		return "listening"
	case Draining:
		return "draining"
	case Stopped:
		return "stopped"
	}
	return "unknown"
}

// Hook runs during drain, before pending tasks are force-cancelled.
// Hooks run sequentially in registration order.
type Hook func(ctx context.Context) error

type worker struct {
	id    int
	srv   *http.Server
	state atomic.Int32
}

func (w *worker) setState(s State) {
	w.state.Store(int32(s))
}

// Bootstrap binds a socket once and serves it with N workers.
type Bootstrap struct {
	addr       string
	count      int
	grace      time.Duration
	newHandler func(worker int) http.Handler

	hooks       []Hook
	cancelTasks func()

	mu      sync.Mutex
	ln      net.Listener
	workers []*worker
}

// New creates a bootstrap that serves addr with count workers, each
// handling requests through its own handler built by newHandler. grace
// is how long draining waits for in-flight requests before pending tasks
// are force-cancelled.
func New(addr string, count int, grace time.Duration, newHandler func(worker int) http.Handler) *Bootstrap {
	if count < 1 {
		count = 1
	}
	return &Bootstrap{
		addr:       addr,
		count:      count,
		grace:      grace,
		newHandler: newHandler,
	}
}

// OnStop registers a pre-stop hook.
func (b *Bootstrap) OnStop(h Hook) {
	b.hooks = append(b.hooks, h)
}

// CancelPendingWith registers the function invoked after the grace
// interval to force-cancel still-pending offloaded tasks.
func (b *Bootstrap) CancelPendingWith(fn func()) {
	b.cancelTasks = fn
}

// Addr returns the bound address once Run has bound the socket, or "".
func (b *Bootstrap) Addr() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.ln == nil {
		return ""
	}
	return b.ln.Addr().String()
}

// WorkerStates reports each worker's current state.
func (b *Bootstrap) WorkerStates() []State {
	b.mu.Lock()
	defer b.mu.Unlock()
	states := make([]State, len(b.workers))
	for i, w := range b.workers {
		states[i] = State(w.state.Load())
	}
	return states
}

// Run binds the socket, starts the workers and blocks until a
// termination signal (or ctx cancellation) has been fully drained. The
// lifecycle is one-shot: a returned Bootstrap is not restartable.
func (b *Bootstrap) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", b.addr)
	if err != nil {
		return fmt.Errorf("bind %s: %w", b.addr, err)
	}

	workers := make([]*worker, b.count)
	for i := range workers {
		w := &worker{id: i}
		w.setState(Starting)
		w.srv = &http.Server{Handler: b.newHandler(i)}
		workers[i] = w
	}

	b.mu.Lock()
	b.ln = ln
	b.workers = workers
	b.mu.Unlock()

	// All workers share the one bound socket; their accept loops
	// compete for connections, which spreads load without a proxy.
	var serveWG sync.WaitGroup
	for _, w := range workers {
		w.setState(Listening)
		serveWG.Add(1)
		go func(w *worker) {
			defer serveWG.Done()
			if err := w.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) && !errors.Is(err, net.ErrClosed) {
				logging.Error("worker serve failed", zap.Int("worker", w.id), zap.Error(err))
			}
		}(w)
	}
	logging.Info("serving", zap.String("addr", ln.Addr().String()), zap.Int("workers", b.count))

	sigCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	<-sigCtx.Done()
	stop()

	b.drain(workers)
	serveWG.Wait()
	return nil
}

// drain stops accepting new connections, runs the pre-stop hooks
// sequentially, waits out the grace interval for in-flight requests,
// then force-cancels whatever is still pending.
func (b *Bootstrap) drain(workers []*worker) {
	start := time.Now()
	logging.Info("draining", zap.Duration("grace", b.grace))

	for _, w := range workers {
		w.setState(Draining)
	}

	hookCtx, cancel := context.WithTimeout(context.Background(), b.grace)
	defer cancel()
	for i, h := range b.hooks {
		if err := h(hookCtx); err != nil {
			logging.Warn("pre-stop hook failed", zap.Int("hook", i), zap.Error(err))
		}
	}

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), b.grace)
	defer cancelShutdown()
	var wg sync.WaitGroup
	for _, w := range workers {
		wg.Add(1)
		go func(w *worker) {
			defer wg.Done()
			if err := w.srv.Shutdown(shutdownCtx); err != nil {
				logging.Warn("worker shutdown incomplete", zap.Int("worker", w.id), zap.Error(err))
			}
		}(w)
	}
	wg.Wait()

	if b.cancelTasks != nil {
		b.cancelTasks()
	}

	for _, w := range workers {
		w.setState(Stopped)
	}
	metrics.ObserveDrain(time.Since(start))
	logging.Info("drained", zap.Duration("took", time.Since(start)))
}
