package taskpool

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestSubmitRunsTask(t *testing.T) {
	p := New(2)
	p.Start(context.Background())
	defer p.Stop()

	var ran atomic.Bool
	err := p.Submit(context.Background(), func(ctx context.Context) error {
		ran.Store(true)
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if !ran.Load() {
		t.Error("task did not run")
	}
}

func TestSubmitPropagatesTaskError(t *testing.T) {
	p := New(1)
	p.Start(context.Background())
	defer p.Stop()

	want := errors.New("scan failed")
	err := p.Submit(context.Background(), func(ctx context.Context) error {
		return want
	})
	if !errors.Is(err, want) {
		t.Errorf("got %v, want %v", err, want)
	}
}

func TestSubmitBoundedConcurrency(t *testing.T) {
	p := New(2)
	p.Start(context.Background())
	defer p.Stop()

	var running, peak atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			p.Submit(context.Background(), func(ctx context.Context) error {
				n := running.Add(1)
				for {
					old := peak.Load()
					if n <= old || peak.CompareAndSwap(old, n) {
						break
					}
				}
				time.Sleep(20 * time.Millisecond)
				running.Add(-1)
				return nil
			})
		}()
	}
	wg.Wait()

	if got := peak.Load(); got > 2 {
		t.Errorf("observed %d concurrent tasks, want <= 2", got)
	}
}

func TestCancelPendingFailsQueuedTasks(t *testing.T) {
	p := New(1)
	p.Start(context.Background())
	defer p.Stop()

	started := make(chan struct{})
	release := make(chan struct{})
	var wg sync.WaitGroup

	// Occupy the only worker.
	wg.Add(1)
	go func() {
		defer wg.Done()
		p.Submit(context.Background(), func(ctx context.Context) error {
			close(started)
			<-release
			return ctx.Err()
		})
	}()
	<-started

	// Queue a second task behind it, then cancel.
	errCh := make(chan error, 1)
	wg.Add(1)
	go func() {
		defer wg.Done()
		errCh <- p.Submit(context.Background(), func(ctx context.Context) error {
			return nil
		})
	}()

	time.Sleep(50 * time.Millisecond)
	p.CancelPending()
	close(release)
	wg.Wait()

	if err := <-errCh; !errors.Is(err, context.Canceled) {
		t.Errorf("queued task error = %v, want context.Canceled", err)
	}
}

func TestSubmitDuringStop(t *testing.T) {
	p := New(2)
	p.Start(context.Background())

	// Hammer Submit from many goroutines while Stop closes the queue.
	// Every call must return nil or ErrStopped, never panic on a send
	// to the closed channel.
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				err := p.Submit(context.Background(), func(ctx context.Context) error { return nil })
				if err != nil && !errors.Is(err, ErrStopped) {
					t.Errorf("got %v, want nil or ErrStopped", err)
					return
				}
				if errors.Is(err, ErrStopped) {
					return
				}
			}
		}()
	}
	time.Sleep(time.Millisecond)
	p.Stop()
	wg.Wait()

	if err := p.Submit(context.Background(), func(ctx context.Context) error { return nil }); !errors.Is(err, ErrStopped) {
		t.Errorf("after stop: got %v, want ErrStopped", err)
	}
}

func TestSubmitAfterStop(t *testing.T) {
	p := New(1)
	p.Start(context.Background())
	p.Stop()

	err := p.Submit(context.Background(), func(ctx context.Context) error { return nil })
	if !errors.Is(err, ErrStopped) {
		t.Errorf("got %v, want ErrStopped", err)
	}
}
