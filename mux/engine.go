// File: mux/engine.go
// Author: momentics <momentics@gmail.com>
//
// ioEngine is the narrow seam between CompletionPortBackend's shared
// pending-list/deadline/posted-work machinery and a platform's actual
// completion mechanism. Two shapes of engine exist: readiness engines
// (epoll, kqueue) report only that a fd became readable/writable, and the
// backend performs the transfer itself via the handle's synchronous
// fallback; completion engines (IOCP, io_uring) perform the transfer
// themselves and report the outcome directly.

package mux

import (
	"time"

	"github.com/2217936322/llfio/handle"
)

type engineCompletion struct {
	conn        *OperationConnection // nil for a readiness-only event
	fd          handle.FD
	readable    bool
	writable    bool
	transferred int64
	err         error
}

type ioEngine interface {
	open() error
	close() error

	registerFD(fd handle.FD) error
	deregisterFD(fd handle.FD) error

	// isReadinessBased reports which completion shape this engine uses.
	isReadinessBased() bool

	// submit begins conn's operation: completion engines issue the real
	// syscall now and deliver the result later through poll. The backend
	// calls it only for completion engines; readiness engines watch each fd
	// from registerFD on, and their submit arms nothing.
	submit(conn *OperationConnection) error

	// cancel asks the kernel to abandon conn's in-flight completion-based
	// operation. Readiness engines have no outstanding syscall to cancel
	// and return nil unconditionally; conn stays tracked until the real
	// completion (success, error, or genuine kernel cancellation) surfaces
	// through a later poll call.
	cancel(conn *OperationConnection) error

	// poll blocks up to timeout (negative means forever) waiting for
	// events, appending to out and returning the new length used.
	poll(timeout time.Duration, out []engineCompletion) (int, error)

	// wake unblocks a concurrent poll call, used when Post or Cancel needs
	// the run loop to notice new work sooner than its current timeout.
	wake() error

	name() string
}
