// File: iohandle/handle.go
// Author: momentics <momentics@gmail.com>
//
// Handle is the concrete IoHandle: a NativeHandle plus scatter/gather
// read/write/barrier methods that either forward to an attached
// multiplexer or fall back to a synchronous platform call. Attaching a
// multiplexer is the handle's only coupling to the async machinery; the
// multiplexer interface below is kept minimal so this package never
// imports the multiplexer package.

package iohandle

import (
	"context"
	"sync/atomic"
	"time"
	"unsafe"

	"github.com/2217936322/llfio/deadline"
	"github.com/2217936322/llfio/handle"
	"github.com/2217936322/llfio/iobuf"
	"github.com/2217936322/llfio/ioerr"
)

// BarrierKind is wire-stable: do not renumber.
type BarrierKind uint8

const (
	// BarrierNoWaitDataOnly schedules a barrier for previously written data,
	// without waiting for completion and without ordering metadata.
	BarrierNoWaitDataOnly BarrierKind = 0
	// BarrierWaitDataOnly waits for previously written data to reach
	// storage, without ordering metadata.
	BarrierWaitDataOnly BarrierKind = 1
	// BarrierNoWaitAll schedules a barrier for data and metadata without
	// waiting for completion.
	BarrierNoWaitAll BarrierKind = 2
	// BarrierWaitAll waits for both data and metadata to reach storage.
	BarrierWaitAll BarrierKind = 3
)

// ReadReceiver is invoked with the outcome of an asynchronous read.
type ReadReceiver func(iobuf.IoResult[iobuf.Buffer], error)

// WriteReceiver is invoked with the outcome of an asynchronous write or
// barrier.
type WriteReceiver func(iobuf.IoResult[iobuf.ConstBuffer], error)

// Multiplexer is the minimal contract a Handle needs from an attached
// IoMultiplexer to submit work asynchronously instead of falling back to a
// blocking syscall per call.
type Multiplexer interface {
	StartRead(h *Handle, req iobuf.IoRequest[iobuf.Buffer], dl deadline.Deadline, recv ReadReceiver) error
	StartWrite(h *Handle, req iobuf.IoRequest[iobuf.ConstBuffer], dl deadline.Deadline, recv WriteReceiver) error
	StartBarrier(h *Handle, req iobuf.IoRequest[iobuf.ConstBuffer], kind BarrierKind, dl deadline.Deadline, recv WriteReceiver) error
}

// Handle implements the module's IoHandle contract.
type Handle struct {
	native     handle.NativeHandle
	maxBuffers int
	bufPool    *iobuf.RegisteredBufferPool
	mux        atomic.Pointer[Multiplexer]
	sync       syncOps // platform-specific synchronous fallback
}

// New wraps a NativeHandle as an IoHandle. maxBuffers bounds scatter/gather
// requests (spec: exceeding it is InvalidArgument, never silent
// truncation). pool, if non-nil, backs AllocateRegisteredBuffer.
func New(nh handle.NativeHandle, maxBuffers int, pool *iobuf.RegisteredBufferPool) *Handle {
	if maxBuffers <= 0 {
		maxBuffers = 64
	}
	return &Handle{native: nh, maxBuffers: maxBuffers, bufPool: pool, sync: syncOpsFor(nh)}
}

func (h *Handle) NativeHandle() *handle.NativeHandle { return &h.native }

func (h *Handle) MaxBuffers() int { return h.maxBuffers }

// AllocateRegisteredBuffer returns a page-rounded, pool-owned buffer sized
// at least n bytes. Returns NotSupported if no pool is attached.
func (h *Handle) AllocateRegisteredBuffer(n int) (*iobuf.RegisteredBuffer, error) {
	if h.bufPool == nil {
		return nil, ioerr.New(ioerr.NotSupported, "no registered buffer pool attached")
	}
	return h.bufPool.Allocate(n, -1)
}

// SetMultiplexer attaches m so future Read/Write/Barrier calls submit
// asynchronously instead of falling back to a blocking syscall. Passing
// nil detaches, reverting to the synchronous fallback. This is the Go
// shape of the void-plus-error register_handle contract: attachment itself
// cannot fail, only submission can.
func (h *Handle) SetMultiplexer(m Multiplexer) {
	if m == nil {
		h.mux.Store(nil)
		return
	}
	h.mux.Store(&m)
}

func (h *Handle) multiplexer() Multiplexer {
	p := h.mux.Load()
	if p == nil {
		return nil
	}
	return *p
}

func (h *Handle) checkBufferCount(n int) error {
	if n > h.maxBuffers {
		return ioerr.New(ioerr.InvalidArgument, "scatter/gather request exceeds handle-reported maximum")
	}
	return nil
}

// checkAligned validates offset and each buffer's address and length
// against the handle's required alignment, if any. A handle without
// DispositionAlignedIO has an alignment of 0 and this is always a no-op.
func checkAligned[T ~[]byte](align uint32, offset int64, bufs []T) error {
	if align == 0 {
		return nil
	}
	a := int64(align)
	if offset%a != 0 {
		return ioerr.New(ioerr.InvalidArgument, "offset is not aligned to the handle's required boundary")
	}
	for _, b := range bufs {
		if len(b) == 0 {
			continue
		}
		if int64(len(b))%a != 0 {
			return ioerr.New(ioerr.InvalidArgument, "buffer length is not aligned to the handle's required boundary")
		}
		if uintptr(unsafe.Pointer(&b[0]))%uintptr(align) != 0 {
			return ioerr.New(ioerr.InvalidArgument, "buffer address is not aligned to the handle's required boundary")
		}
	}
	return nil
}

// Read performs a scatter read. If a multiplexer is attached, the request
// and dl are submitted to it and Read blocks until the multiplexer's
// receiver fires, or returns OperationCanceled if ctx is done first.
// Otherwise the synchronous fallback runs the read directly; that path does
// not consult dl, so a poll only avoids blocking on a non-blocking fd.
func (h *Handle) Read(ctx context.Context, req iobuf.IoRequest[iobuf.Buffer], dl deadline.Deadline) (iobuf.IoResult[iobuf.Buffer], error) {
	if err := h.checkBufferCount(len(req.Buffers)); err != nil {
		return iobuf.IoResult[iobuf.Buffer]{}, err
	}
	if !h.native.Disposition().Has(handle.DispositionReadable) {
		return iobuf.IoResult[iobuf.Buffer]{}, ioerr.New(ioerr.NotPermitted, "handle lacks the readable disposition")
	}
	if err := checkAligned(h.native.AlignmentBytes(), req.Offset, req.Buffers); err != nil {
		return iobuf.IoResult[iobuf.Buffer]{}, err
	}
	if m := h.multiplexer(); m != nil {
		type outcome struct {
			res iobuf.IoResult[iobuf.Buffer]
			err error
		}
		ch := make(chan outcome, 1)
		if err := m.StartRead(h, req, dl, func(r iobuf.IoResult[iobuf.Buffer], e error) {
			ch <- outcome{r, e}
		}); err != nil {
			return iobuf.IoResult[iobuf.Buffer]{}, err
		}
		select {
		case o := <-ch:
			return o.res, o.err
		case <-ctx.Done():
			return iobuf.IoResult[iobuf.Buffer]{}, ioerr.Wrap(ioerr.OperationCanceled, "context canceled", ctx.Err())
		}
	}
	return h.sync.read(req)
}

// Write performs a scatter/gather write, same submission rules as Read.
func (h *Handle) Write(ctx context.Context, req iobuf.IoRequest[iobuf.ConstBuffer], dl deadline.Deadline) (iobuf.IoResult[iobuf.ConstBuffer], error) {
	if err := h.checkBufferCount(len(req.Buffers)); err != nil {
		return iobuf.IoResult[iobuf.ConstBuffer]{}, err
	}
	if !h.native.Disposition().Has(handle.DispositionWritable) {
		return iobuf.IoResult[iobuf.ConstBuffer]{}, ioerr.New(ioerr.NotPermitted, "handle lacks the writable disposition")
	}
	if err := checkAligned(h.native.AlignmentBytes(), req.Offset, req.Buffers); err != nil {
		return iobuf.IoResult[iobuf.ConstBuffer]{}, err
	}
	if m := h.multiplexer(); m != nil {
		type outcome struct {
			res iobuf.IoResult[iobuf.ConstBuffer]
			err error
		}
		ch := make(chan outcome, 1)
		if err := m.StartWrite(h, req, dl, func(r iobuf.IoResult[iobuf.ConstBuffer], e error) {
			ch <- outcome{r, e}
		}); err != nil {
			return iobuf.IoResult[iobuf.ConstBuffer]{}, err
		}
		select {
		case o := <-ch:
			return o.res, o.err
		case <-ctx.Done():
			return iobuf.IoResult[iobuf.ConstBuffer]{}, ioerr.Wrap(ioerr.OperationCanceled, "context canceled", ctx.Err())
		}
	}
	return h.sync.write(req)
}

// Barrier orders previously written data (and, per kind, metadata) onto
// storage. req's buffers are advisory range hints: backends that can only
// barrier the whole file still report them back, with the result's
// Transferred set to the total length of the hinted ranges.
func (h *Handle) Barrier(ctx context.Context, req iobuf.IoRequest[iobuf.ConstBuffer], kind BarrierKind, dl deadline.Deadline) (iobuf.IoResult[iobuf.ConstBuffer], error) {
	if m := h.multiplexer(); m != nil {
		type outcome struct {
			res iobuf.IoResult[iobuf.ConstBuffer]
			err error
		}
		ch := make(chan outcome, 1)
		if err := m.StartBarrier(h, req, kind, dl, func(r iobuf.IoResult[iobuf.ConstBuffer], e error) {
			ch <- outcome{r, e}
		}); err != nil {
			return iobuf.IoResult[iobuf.ConstBuffer]{}, err
		}
		select {
		case o := <-ch:
			return o.res, o.err
		case <-ctx.Done():
			return iobuf.IoResult[iobuf.ConstBuffer]{}, ioerr.Wrap(ioerr.OperationCanceled, "context canceled", ctx.Err())
		}
	}
	return h.sync.barrier(req, kind)
}

// EngineRead performs the synchronous transfer directly, bypassing any
// attached multiplexer. A readiness-based multiplexer engine calls this
// once the kernel reports the handle's fd is readable, since readiness
// alone carries no byte count or error.
func (h *Handle) EngineRead(req iobuf.IoRequest[iobuf.Buffer]) (iobuf.IoResult[iobuf.Buffer], error) {
	return h.sync.read(req)
}

// EngineWrite is the write-side counterpart of EngineRead.
func (h *Handle) EngineWrite(req iobuf.IoRequest[iobuf.ConstBuffer]) (iobuf.IoResult[iobuf.ConstBuffer], error) {
	return h.sync.write(req)
}

// EngineBarrier is the barrier-side counterpart of EngineRead.
func (h *Handle) EngineBarrier(req iobuf.IoRequest[iobuf.ConstBuffer], kind BarrierKind) (iobuf.IoResult[iobuf.ConstBuffer], error) {
	return h.sync.barrier(req, kind)
}

// ReadAt is convenience sugar over Read for callers that only need the
// transferred count, not the full IoResult.
func (h *Handle) ReadAt(ctx context.Context, offset int64, bufs []iobuf.Buffer, dl deadline.Deadline) (int64, error) {
	res, err := h.Read(ctx, iobuf.IoRequest[iobuf.Buffer]{Buffers: bufs, Offset: offset}, dl)
	return res.Transferred, err
}

// WriteAt is the write-side equivalent of ReadAt.
func (h *Handle) WriteAt(ctx context.Context, offset int64, bufs []iobuf.ConstBuffer, dl deadline.Deadline) (int64, error) {
	res, err := h.Write(ctx, iobuf.IoRequest[iobuf.ConstBuffer]{Buffers: bufs, Offset: offset}, dl)
	return res.Transferred, err
}

// TryRead is Read with a non-blocking (zero-wait steady) deadline.
func (h *Handle) TryRead(ctx context.Context, req iobuf.IoRequest[iobuf.Buffer]) (iobuf.IoResult[iobuf.Buffer], error) {
	return h.Read(ctx, req, deadline.Poll)
}

// ReadFor is Read with a relative timeout.
func (h *Handle) ReadFor(ctx context.Context, req iobuf.IoRequest[iobuf.Buffer], d time.Duration) (iobuf.IoResult[iobuf.Buffer], error) {
	return h.Read(ctx, req, deadline.After(d))
}

// ReadUntil is Read with an absolute wall-clock deadline.
func (h *Handle) ReadUntil(ctx context.Context, req iobuf.IoRequest[iobuf.Buffer], t time.Time) (iobuf.IoResult[iobuf.Buffer], error) {
	return h.Read(ctx, req, deadline.At(t))
}

// TryWrite is Write with a non-blocking deadline.
func (h *Handle) TryWrite(ctx context.Context, req iobuf.IoRequest[iobuf.ConstBuffer]) (iobuf.IoResult[iobuf.ConstBuffer], error) {
	return h.Write(ctx, req, deadline.Poll)
}

// WriteFor is Write with a relative timeout.
func (h *Handle) WriteFor(ctx context.Context, req iobuf.IoRequest[iobuf.ConstBuffer], d time.Duration) (iobuf.IoResult[iobuf.ConstBuffer], error) {
	return h.Write(ctx, req, deadline.After(d))
}

// WriteUntil is Write with an absolute wall-clock deadline.
func (h *Handle) WriteUntil(ctx context.Context, req iobuf.IoRequest[iobuf.ConstBuffer], t time.Time) (iobuf.IoResult[iobuf.ConstBuffer], error) {
	return h.Write(ctx, req, deadline.At(t))
}
