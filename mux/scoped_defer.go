// File: mux/scoped_defer.go
// Author: momentics <momentics@gmail.com>
//
// scopedCompletionDefer guards the region of a CompletionPortBackend that
// iterates its pending list and invokes receivers. A receiver can, in
// principle, call back into the same backend (post more work, cancel a
// sibling operation, or even trigger another completion pass) from inside
// its own invocation; running that nested pass inline would recurse into
// code that is still mutating the pending list it is iterating. Instead the
// nested request is queued here and drained once the outermost pass
// unwinds. The depth counter and pending queue carry their own mutex rather
// than reusing the backend's pendingMu: a receiver invoked from run or from
// a drained closure can legitimately call back into StartRead/StartWrite/
// Cancel on the same goroutine, and those need pendingMu themselves, so
// holding it across the receiver call would deadlock. mu is only ever held
// around the depth counter and the pending slice, never across fn itself.
package mux

import "sync"

type scopedCompletionDefer struct {
	mu      sync.Mutex
	depth   int
	pending []func()
}

// enter marks the start of a (possibly nested) completion-processing pass
// and returns a function to call when that pass ends.
func (s *scopedCompletionDefer) enter() func() {
	s.mu.Lock()
	s.depth++
	s.mu.Unlock()
	return func() {
		s.mu.Lock()
		// The outermost frame keeps depth at one while it drains, so work
		// queued by a drained fn waits for the next round instead of running
		// inline.
		for s.depth == 1 && len(s.pending) > 0 {
			work := s.pending
			s.pending = nil
			s.mu.Unlock()
			for _, fn := range work {
				fn()
			}
			s.mu.Lock()
		}
		s.depth--
		s.mu.Unlock()
	}
}

// run executes fn immediately if this is the outermost frame, or queues it
// to run once the outermost frame finishes, if called reentrantly.
func (s *scopedCompletionDefer) run(fn func()) {
	s.mu.Lock()
	if s.depth == 0 {
		s.mu.Unlock()
		fn()
		return
	}
	s.pending = append(s.pending, fn)
	s.mu.Unlock()
}
