//go:build linux || darwin

package mux_test

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/2217936322/llfio/mux"
)

// countingMux counts the Run calls made against the wrapped multiplexer.
type countingMux struct {
	mux.IoMultiplexer
	runs int32
}

func (c *countingMux) Run(ctx context.Context) error {
	atomic.AddInt32(&c.runs, 1)
	return c.IoMultiplexer.Run(ctx)
}

func TestRunPoolSingleThreadDelegatesToRun(t *testing.T) {
	cfg := mux.NewConfig()
	m, err := mux.BestAvailable(cfg)
	if err != nil {
		t.Fatalf("BestAvailable() error: %v", err)
	}
	defer m.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	if err := mux.RunPool(ctx, m, cfg, -1); err != nil {
		t.Fatalf("RunPool() error: %v", err)
	}
}

func TestRunPoolSpawnsConfiguredWorkerCount(t *testing.T) {
	cfg := mux.NewConfig(mux.WithThreads(3))
	m, err := mux.BestAvailable(cfg)
	if err != nil {
		t.Fatalf("BestAvailable() error: %v", err)
	}
	defer m.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	cm := &countingMux{IoMultiplexer: m}
	done := make(chan error, 1)
	go func() { done <- mux.RunPool(ctx, cm, cfg, -1) }()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("RunPool() error: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("RunPool() did not return after ctx expired")
	}
	if got := atomic.LoadInt32(&cm.runs); got != 3 {
		t.Fatalf("Run calls = %d, want 3 (one per configured worker)", got)
	}
}
