// File: mux/posted_queue.go
// Author: momentics <momentics@gmail.com>
//
// PostedWorkQueue is the FIFO of callables a multiplexer drains once per
// Run iteration, after completions and expired deadlines, before blocking
// again.
// Backed by eapache/queue's ring buffer rather than a hand-rolled slice or
// the single-producer/single-consumer ring used elsewhere in this module,
// because posted work has many producers (any goroutine may Post) and one
// consumer (the backend's own loop).

package mux

import (
	"sync"

	"github.com/eapache/queue"
)

// PostedWork is a unit of deferred work submitted via Post.
type PostedWork func()

// PostedWorkQueue is safe for concurrent use: Push, Len and DrainInto all
// take the queue's mutex, so many goroutines may Push while one or more Run
// goroutines call DrainInto.
type PostedWorkQueue struct {
	mu sync.Mutex
	q  *queue.Queue
}

// NewPostedWorkQueue returns an empty queue.
func NewPostedWorkQueue() *PostedWorkQueue {
	return &PostedWorkQueue{q: queue.New()}
}

// Push enqueues work for later invocation.
func (p *PostedWorkQueue) Push(work PostedWork) {
	p.mu.Lock()
	p.q.Add(work)
	p.mu.Unlock()
}

// Len reports how much posted work is currently queued.
func (p *PostedWorkQueue) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.q.Length()
}

// DrainInto removes and returns every currently queued item, in submission
// order; it does not invoke them. Items pushed after it returns, including
// any posted while the caller runs the returned items, stay queued for the
// next call, so one slow producer cannot starve the completion loop.
func (p *PostedWorkQueue) DrainInto() []PostedWork {
	p.mu.Lock()
	n := p.q.Length()
	items := make([]PostedWork, 0, n)
	for i := 0; i < n; i++ {
		items = append(items, p.q.Remove().(PostedWork))
	}
	p.mu.Unlock()
	return items
}
