// File: deadline/index.go
// Author: momentics <momentics@gmail.com>
//
// DeadlineIndex keeps two time-ordered multimaps of pending operations: one
// keyed by steady (monotonic) expiry, one keyed by absolute (wall-clock)
// expiry. Both are backed by a binary heap, the same structure the scheduler
// used for its timer queue, generalized here to support O(log n) removal via
// a stable Locator so a completed operation can cancel its own deadline
// entry without a linear scan.

package deadline

import (
	"container/heap"
	"time"
)

// Locator is an opaque handle to an entry previously inserted into a
// DeadlineIndex. It becomes invalid once the entry is removed or fires.
type Locator struct {
	heap *timerHeap
	item *timerItem
}

// Valid reports whether the locator still refers to a live entry.
func (l Locator) Valid() bool {
	return l.heap != nil && l.item != nil && l.item.index >= 0
}

type timerItem struct {
	at      time.Time
	payload any
	index   int
}

type timerHeap []*timerItem

func (h timerHeap) Len() int            { return len(h) }
func (h timerHeap) Less(i, j int) bool  { return h[i].at.Before(h[j].at) }
func (h timerHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}
func (h *timerHeap) Push(x any) {
	it := x.(*timerItem)
	it.index = len(*h)
	*h = append(*h, it)
}
func (h *timerHeap) Pop() any {
	old := *h
	n := len(old)
	it := old[n-1]
	old[n-1] = nil
	it.index = -1
	*h = old[:n-1]
	return it
}

// DeadlineIndex orders pending operations by steady and absolute deadline
// independently; an operation with a steady deadline lives in the steady
// heap, an operation with an absolute deadline lives in the absolute heap,
// and an operation with no deadline lives in neither.
type DeadlineIndex struct {
	steady   timerHeap
	absolute timerHeap
}

// NewIndex returns an empty DeadlineIndex.
func NewIndex() *DeadlineIndex {
	return &DeadlineIndex{}
}

// Insert records payload as expiring at 'at', in the steady or absolute
// heap per steady, and returns a Locator usable to Remove it early.
func (idx *DeadlineIndex) Insert(steady bool, at time.Time, payload any) Locator {
	h := &idx.steady
	if !steady {
		h = &idx.absolute
	}
	it := &timerItem{at: at, payload: payload}
	heap.Push(h, it)
	return Locator{heap: h, item: it}
}

// Remove deletes the entry referred to by loc, if still present. Safe to
// call more than once or with a zero Locator.
func (idx *DeadlineIndex) Remove(loc Locator) {
	if !loc.Valid() {
		return
	}
	heap.Remove(loc.heap, loc.item.index)
	loc.item.index = -1
}

// NextDeadline returns the earliest pending expiry across both heaps, and
// whether any deadline is pending at all.
func (idx *DeadlineIndex) NextDeadline() (time.Time, bool) {
	var best time.Time
	found := false
	if len(idx.steady) > 0 {
		best = idx.steady[0].at
		found = true
	}
	if len(idx.absolute) > 0 {
		if !found || idx.absolute[0].at.Before(best) {
			best = idx.absolute[0].at
			found = true
		}
	}
	return best, found
}

// Expired pops and returns every payload whose deadline is at or before
// now: all expired steady entries first, earliest first, then all expired
// absolute entries, earliest first. The two groups are not merged by time.
func (idx *DeadlineIndex) Expired(now time.Time) []any {
	var out []any
	for len(idx.steady) > 0 && !idx.steady[0].at.After(now) {
		out = append(out, heap.Pop(&idx.steady).(*timerItem).payload)
	}
	for len(idx.absolute) > 0 && !idx.absolute[0].at.After(now) {
		out = append(out, heap.Pop(&idx.absolute).(*timerItem).payload)
	}
	return out
}

// Len returns the total number of pending entries across both heaps.
func (idx *DeadlineIndex) Len() int {
	return len(idx.steady) + len(idx.absolute)
}
