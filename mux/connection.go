// File: mux/connection.go
// Author: momentics <momentics@gmail.com>
//
// OperationConnection is the per-in-flight-I/O state kept by a backend
// between start_* and its completion. It is heap-allocated and referenced
// by pointer everywhere (the pending list, the deadline index, the
// platform engine's own bookkeeping) so its address is stable for the
// lifetime of the operation, the closest Go equivalent of the original's
// intrusive, address-stable list node.

package mux

import (
	"sync/atomic"
	"time"

	"github.com/2217936322/llfio/deadline"
	"github.com/2217936322/llfio/handle"
	"github.com/2217936322/llfio/iobuf"
	"github.com/2217936322/llfio/iohandle"
)

// OpKind names what an OperationConnection is doing.
type OpKind uint8

const (
	OpRead OpKind = iota
	OpWrite
	OpBarrier
)

func (k OpKind) String() string {
	switch k {
	case OpRead:
		return "read"
	case OpWrite:
		return "write"
	case OpBarrier:
		return "barrier"
	default:
		return "unknown"
	}
}

// OperationConnection tracks one submitted, not-yet-completed I/O request.
type OperationConnection struct {
	handle *iohandle.Handle
	fd     handle.FD
	kind   OpKind

	readReq  iobuf.IoRequest[iobuf.Buffer]
	writeReq iobuf.IoRequest[iobuf.ConstBuffer]
	barrier  iohandle.BarrierKind

	onRead  iohandle.ReadReceiver
	onWrite iohandle.WriteReceiver

	anchor     time.Time // moment start_* was called, anchors a steady deadline
	dl         deadline.Deadline
	dlLocator  deadline.Locator

	canceled   atomic.Bool
	registered bool // true while linked into the backend's pending set

	// engineState is opaque storage an ioEngine implementation may use to
	// hold its own per-operation bookkeeping (e.g. a *windows.Overlapped).
	engineState any
}

// Kind reports what operation this connection represents.
func (c *OperationConnection) Kind() OpKind { return c.kind }

// Handle returns the IoHandle this operation was submitted against.
func (c *OperationConnection) Handle() *iohandle.Handle { return c.handle }

// Canceled reports whether Cancel has been requested for this operation.
// A backend must still deliver OperationCanceled through the receiver
// exactly once; Canceled alone never completes an operation.
func (c *OperationConnection) Canceled() bool { return c.canceled.Load() }

// requestCancel marks the operation canceled; returns false if it was
// already marked, so callers can tell first-cancel from a race.
func (c *OperationConnection) requestCancel() bool {
	return c.canceled.CompareAndSwap(false, true)
}

// reset clears every field so a recycled connection from the backend's free
// list carries nothing from its previous operation forward.
func (c *OperationConnection) reset() {
	*c = OperationConnection{}
}
