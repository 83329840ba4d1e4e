package bootstrap

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"sync/atomic"
	"testing"
	"time"
)

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition not reached in time")
}

func TestRunServesAndDrains(t *testing.T) {
	var hookOrder []int
	var cancelled atomic.Bool

	b := New("127.0.0.1:0", 3, time.Second, func(worker int) http.Handler {
		mux := http.NewServeMux()
		mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprintf(w, "worker %d ok", worker)
		})
		return mux
	})
	b.OnStop(func(ctx context.Context) error { hookOrder = append(hookOrder, 1); return nil })
	b.OnStop(func(ctx context.Context) error { hookOrder = append(hookOrder, 2); return nil })
	b.CancelPendingWith(func() { cancelled.Store(true) })

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- b.Run(ctx) }()

	waitFor(t, func() bool { return b.Addr() != "" })
	addr := b.Addr()

	for _, s := range b.WorkerStates() {
		if s != Listening {
			t.Errorf("worker state = %v, want Listening", s)
		}
	}

	resp, err := http.Get("http://" + addr + "/health")
	if err != nil {
		t.Fatal(err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK || len(body) == 0 {
		t.Errorf("health check: %d %q", resp.StatusCode, body)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run returned %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancellation")
	}

	for _, s := range b.WorkerStates() {
		if s != Stopped {
			t.Errorf("worker state after drain = %v, want Stopped", s)
		}
	}
	if len(hookOrder) != 2 || hookOrder[0] != 1 || hookOrder[1] != 2 {
		t.Errorf("hooks ran as %v, want [1 2]", hookOrder)
	}
	if !cancelled.Load() {
		t.Error("pending-task cancellation not invoked")
	}
}

func TestBindFailure(t *testing.T) {
	taken, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer taken.Close()

	b := New(taken.Addr().String(), 1, time.Second, func(int) http.Handler {
		return http.NewServeMux()
	})
	if err := b.Run(context.Background()); err == nil {
		t.Error("expected bind error on an already-bound address")
	}
}

func TestStateString(t *testing.T) {
	tests := []struct {
		s    State
		want string
	}{
		{Starting, "starting"},
		{Listening, "listening"},
		{Draining, "draining"},
		{Stopped, "stopped"},
	}
	for _, tt := range tests {
		if got := tt.s.String(); got != tt.want {
			t.Errorf("%d.String() = %q, want %q", tt.s, got, tt.want)
		}
	}
}
