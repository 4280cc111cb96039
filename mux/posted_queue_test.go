package mux_test

import (
	"sync"
	"testing"

	"github.com/2217936322/llfio/mux"
)

func TestPostedWorkQueueFIFOOrder(t *testing.T) {
	q := mux.NewPostedWorkQueue()
	var order []int
	for i := 0; i < 5; i++ {
		i := i
		q.Push(func() { order = append(order, i) })
	}

	items := q.DrainInto()
	if len(items) != 5 {
		t.Fatalf("DrainInto() returned %d items, want 5", len(items))
	}
	for _, fn := range items {
		fn()
	}
	for i, v := range order {
		if v != i {
			t.Fatalf("order = %v, want FIFO 0..4", order)
		}
	}
}

func TestPostedWorkQueueDrainIntoEmptiesQueue(t *testing.T) {
	q := mux.NewPostedWorkQueue()
	q.Push(func() {})
	q.Push(func() {})

	if q.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", q.Len())
	}
	q.DrainInto()
	if q.Len() != 0 {
		t.Fatalf("Len() = %d after DrainInto(), want 0", q.Len())
	}
}

func TestPostedWorkQueueConcurrentPush(t *testing.T) {
	q := mux.NewPostedWorkQueue()
	var wg sync.WaitGroup
	const n = 100
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			q.Push(func() {})
		}()
	}
	wg.Wait()
	if q.Len() != n {
		t.Fatalf("Len() = %d, want %d after concurrent pushes", q.Len(), n)
	}
}

func TestPostedWorkQueueWorkPushedDuringDrainIsNotLost(t *testing.T) {
	q := mux.NewPostedWorkQueue()
	q.Push(func() { q.Push(func() {}) })

	first := q.DrainInto()
	if len(first) != 1 {
		t.Fatalf("first DrainInto() returned %d items, want 1", len(first))
	}
	for _, fn := range first {
		fn()
	}
	if q.Len() != 1 {
		t.Fatalf("Len() = %d, want 1 (work queued during drain waits for the next pass)", q.Len())
	}
}
