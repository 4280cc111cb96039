// File: mux/multiplexer.go
// Author: momentics <momentics@gmail.com>
//
// IoMultiplexer is the abstract contract every concrete backend satisfies.
// register_handle's "void or error" contract becomes a plain error return:
// attachment either succeeds or it doesn't, there is nothing else to
// report.

package mux

import (
	"context"
	"time"

	"github.com/2217936322/llfio/deadline"
	"github.com/2217936322/llfio/iobuf"
	"github.com/2217936322/llfio/iohandle"
)

// IoMultiplexer is implemented by every concrete backend (CompletionPortBackend
// and, through it, each platform's ioEngine).
type IoMultiplexer interface {
	// RegisterHandle attaches h so future Start* calls against it are
	// served asynchronously. h must not already be registered with another
	// multiplexer.
	RegisterHandle(h *iohandle.Handle) error

	// DeregisterHandle detaches h. Fails if h has any operation still
	// pending; callers must Cancel and wait for completion first.
	DeregisterHandle(h *iohandle.Handle) error

	StartRead(h *iohandle.Handle, req iobuf.IoRequest[iobuf.Buffer], dl deadline.Deadline, recv iohandle.ReadReceiver) error
	StartWrite(h *iohandle.Handle, req iobuf.IoRequest[iobuf.ConstBuffer], dl deadline.Deadline, recv iohandle.WriteReceiver) error
	StartBarrier(h *iohandle.Handle, req iobuf.IoRequest[iobuf.ConstBuffer], kind iohandle.BarrierKind, dl deadline.Deadline, recv iohandle.WriteReceiver) error

	// Cancel requests cancellation of conn. The receiver is still invoked,
	// exactly once, with OperationCanceled (or a result that raced ahead of
	// the cancellation).
	Cancel(conn *OperationConnection) error

	// Run drives the multiplexer until ctx is done or Close is called,
	// servicing readiness/completion events, expired deadlines, and posted
	// work each iteration.
	Run(ctx context.Context) error

	// Post enqueues fn to run on the multiplexer's own goroutine during its
	// next iteration, safe to call from any goroutine.
	Post(fn PostedWork)

	// PendingCount reports the number of in-flight operations, for the
	// pending-I/O-on-destruction invariant check in Close.
	PendingCount() int

	Close() error
}

// BestAvailable constructs the most capable IoMultiplexer this platform
// supports, trying its engines in preference order and keeping the first
// that opens: io_uring before epoll on Linux and alertable I/O before IOCP
// on Windows, the first of each pair only when Config.Threads <= 1; kqueue
// on darwin.
func BestAvailable(cfg Config) (IoMultiplexer, error) {
	eng, err := newBestEngine(cfg)
	if err != nil {
		return nil, err
	}
	return NewCompletionPortBackend(eng, cfg)
}

// Config carries the constructible options of a multiplexer.
type Config struct {
	// Threads, when > 1, requests thread-pool mode: that many goroutines
	// call Run concurrently, sharing one backend. Zero or one means
	// single-threaded cooperative mode: the caller's own goroutine drives
	// Run.
	Threads int

	// PollTimeout bounds how long a single wait() call blocks when no
	// deadline is nearer; it exists only to keep Run responsive to ctx
	// cancellation on backends whose wait primitive has no native wake
	// mechanism.
	PollTimeout time.Duration

	// RegisteredBufferArena is stored but not read by BestAvailable or any
	// backend; AllocateRegisteredBuffer keeps the granularity of the pool
	// its handle was built with.
	RegisteredBufferArena int

	// Backend optionally forces a specific engine name ("epoll", "kqueue",
	// "iocp", "alertable", "io_uring"), bypassing BestAvailable's own preference order.
	// Empty means "choose automatically".
	Backend string
}
