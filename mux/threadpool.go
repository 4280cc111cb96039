// File: mux/threadpool.go
// Author: momentics <momentics@gmail.com>
//
// RunPool drives a multiplexer from Config.Threads goroutines instead of
// one. When given a NUMA node >= 0, each goroutine is pinned to that node and
// its own CPU ID via the pack's internal/concurrency pinning primitives;
// otherwise none is pinned. All goroutines call Run against
// the same backend; the backend's own locking (posted queue, pending set,
// deadline index) makes this safe.

package mux

import (
	"context"
	"sync"

	"github.com/2217936322/llfio/internal/concurrency"
)

// RunPool blocks until every worker goroutine's Run call returns, which
// happens once ctx is done or m is closed. cfg.Threads must be the same
// Config used to construct m; a value <= 1 runs m.Run directly on the
// calling goroutine. A numaNode >= 0 pins worker i to that NUMA node and CPU
// ID i (0..Threads-1); -1 leaves every worker unpinned.
func RunPool(ctx context.Context, m IoMultiplexer, cfg Config, numaNode int) error {
	if cfg.Threads <= 1 {
		return m.Run(ctx)
	}

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		firstErr error
	)
	wg.Add(cfg.Threads)
	for i := 0; i < cfg.Threads; i++ {
		cpuID := i
		go func() {
			defer wg.Done()
			if numaNode >= 0 {
				concurrency.PinCurrentThread(numaNode, cpuID)
			}
			if err := m.Run(ctx); err != nil {
				mu.Lock()
				if firstErr == nil {
					firstErr = err
				}
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	return firstErr
}
