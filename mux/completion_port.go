// File: mux/completion_port.go
// Author: momentics <momentics@gmail.com>
//
// CompletionPortBackend is the concrete IoMultiplexer: it owns the pending
// operation set, the two-ordered deadline index, the posted-work queue,
// and the reentrancy guard, and drives them all from whatever ioEngine a
// platform file wired up. Registration, submission, the completion loop,
// deregistration, and destruction follow the same shape regardless of
// whether the underlying engine is readiness-based or completion-based;
// only the engine's own poll/submit implementation differs.

package mux

import (
	"context"
	"sync"
	"time"

	"github.com/2217936322/llfio/deadline"
	"github.com/2217936322/llfio/handle"
	"github.com/2217936322/llfio/iobuf"
	"github.com/2217936322/llfio/ioerr"
	"github.com/2217936322/llfio/iohandle"
	"github.com/2217936322/llfio/mlog"
	"github.com/2217936322/llfio/pool"
)

// connFreeListCapacity bounds the lock-free free list of recycled
// OperationConnections; it must be a power of two. A backend with more
// than this many simultaneously in-flight operations simply falls back to
// allocating a fresh connection, same as a cold start.
const connFreeListCapacity = 1024

// CompletionPortBackend implements IoMultiplexer.
type CompletionPortBackend struct {
	engine ioEngine
	cfg    Config

	pendingMu   sync.Mutex
	pendingByFD map[handle.FD][]*OperationConnection
	allPending  map[*OperationConnection]struct{}
	registered  map[handle.FD]*iohandle.Handle
	deadlines   *deadline.DeadlineIndex
	defer_      scopedCompletionDefer

	posted *PostedWorkQueue

	// connFreeList recycles *OperationConnection allocations across
	// operations instead of letting every Start* call allocate a fresh one;
	// the lock-free ring is the pack's own data structure for exactly this
	// cross-goroutine free-list shape.
	connFreeList *pool.RingBuffer[*OperationConnection]

	closed chan struct{}
	once   sync.Once
}

// NewCompletionPortBackend wraps eng with the shared multiplexer machinery.
func NewCompletionPortBackend(eng ioEngine, cfg Config) (*CompletionPortBackend, error) {
	if err := eng.open(); err != nil {
		return nil, err
	}
	return &CompletionPortBackend{
		engine:      eng,
		cfg:         cfg,
		pendingByFD: make(map[handle.FD][]*OperationConnection),
		allPending:  make(map[*OperationConnection]struct{}),
		registered:  make(map[handle.FD]*iohandle.Handle),
		deadlines:    deadline.NewIndex(),
		posted:       NewPostedWorkQueue(),
		connFreeList: pool.NewRingBuffer[*OperationConnection](connFreeListCapacity),
		closed:       make(chan struct{}),
	}, nil
}

func (b *CompletionPortBackend) RegisterHandle(h *iohandle.Handle) error {
	fd := h.NativeHandle().FD()
	b.pendingMu.Lock()
	defer b.pendingMu.Unlock()
	if _, exists := b.registered[fd]; exists {
		return ioerr.New(ioerr.InvalidArgument, "handle already registered with this multiplexer")
	}
	if err := b.engine.registerFD(fd); err != nil {
		return ioerr.Wrap(ioerr.PlatformError, "register fd", err)
	}
	b.registered[fd] = h
	h.SetMultiplexer(b)
	mlog.Default().Debug("registered handle", "fd", fd)
	return nil
}

func (b *CompletionPortBackend) DeregisterHandle(h *iohandle.Handle) error {
	fd := h.NativeHandle().FD()
	b.pendingMu.Lock()
	defer b.pendingMu.Unlock()
	if len(b.pendingByFD[fd]) > 0 {
		return ioerr.New(ioerr.InvalidArgument, "handle has pending operations")
	}
	if _, exists := b.registered[fd]; !exists {
		return ioerr.New(ioerr.InvalidArgument, "handle not registered with this multiplexer")
	}
	if err := b.engine.deregisterFD(fd); err != nil {
		return ioerr.Wrap(ioerr.PlatformError, "deregister fd", err)
	}
	delete(b.registered, fd)
	delete(b.pendingByFD, fd)
	h.SetMultiplexer(nil)
	mlog.Default().Debug("deregistered handle", "fd", fd)
	return nil
}

func (b *CompletionPortBackend) newConnection(h *iohandle.Handle, kind OpKind, dl deadline.Deadline) *OperationConnection {
	conn, ok := b.connFreeList.Dequeue()
	if !ok {
		conn = &OperationConnection{}
	}
	conn.handle = h
	conn.fd = h.NativeHandle().FD()
	conn.kind = kind
	conn.anchor = time.Now()
	conn.dl = dl
	return conn
}

// recycleConn returns conn to the free list once its receiver has fired and
// nothing else can observe it again.
func (b *CompletionPortBackend) recycleConn(conn *OperationConnection) {
	conn.reset()
	b.connFreeList.Enqueue(conn)
}

func (b *CompletionPortBackend) track(conn *OperationConnection) {
	b.allPending[conn] = struct{}{}
	b.pendingByFD[conn.fd] = append(b.pendingByFD[conn.fd], conn)
	if !conn.dl.IsNone() && !conn.dl.IsPoll() {
		at := conn.dl.Absolute(conn.anchor)
		conn.dlLocator = b.deadlines.Insert(conn.dl.Steady, at, conn)
	}
	conn.registered = true
}

func (b *CompletionPortBackend) untrack(conn *OperationConnection) {
	if !conn.registered {
		return
	}
	conn.registered = false
	delete(b.allPending, conn)
	list := b.pendingByFD[conn.fd]
	for i, c := range list {
		if c == conn {
			b.pendingByFD[conn.fd] = append(list[:i], list[i+1:]...)
			break
		}
	}
	b.deadlines.Remove(conn.dlLocator)
}

func (b *CompletionPortBackend) StartRead(h *iohandle.Handle, req iobuf.IoRequest[iobuf.Buffer], dl deadline.Deadline, recv iohandle.ReadReceiver) error {
	if dl.IsPoll() && b.engine.isReadinessBased() {
		// A zero-wait deadline means "try once now, don't wait for
		// readiness": there is nothing to track.
		res, err := h.EngineRead(req)
		if recv != nil {
			recv(res, err)
		}
		return nil
	}

	conn := b.newConnection(h, OpRead, dl)
	conn.readReq = req
	conn.onRead = recv

	b.pendingMu.Lock()
	b.track(conn)
	b.pendingMu.Unlock()

	if !b.engine.isReadinessBased() {
		if err := b.engine.submit(conn); err != nil {
			b.pendingMu.Lock()
			b.untrack(conn)
			b.pendingMu.Unlock()
			return err
		}
	}
	return nil
}

func (b *CompletionPortBackend) StartWrite(h *iohandle.Handle, req iobuf.IoRequest[iobuf.ConstBuffer], dl deadline.Deadline, recv iohandle.WriteReceiver) error {
	if dl.IsPoll() && b.engine.isReadinessBased() {
		res, err := h.EngineWrite(req)
		if recv != nil {
			recv(res, err)
		}
		return nil
	}

	conn := b.newConnection(h, OpWrite, dl)
	conn.writeReq = req
	conn.onWrite = recv

	b.pendingMu.Lock()
	b.track(conn)
	b.pendingMu.Unlock()

	if !b.engine.isReadinessBased() {
		if err := b.engine.submit(conn); err != nil {
			b.pendingMu.Lock()
			b.untrack(conn)
			b.pendingMu.Unlock()
			return err
		}
	}
	return nil
}

func (b *CompletionPortBackend) StartBarrier(h *iohandle.Handle, req iobuf.IoRequest[iobuf.ConstBuffer], kind iohandle.BarrierKind, dl deadline.Deadline, recv iohandle.WriteReceiver) error {
	conn := b.newConnection(h, OpBarrier, dl)
	conn.writeReq = req
	conn.barrier = kind
	conn.onWrite = recv

	b.pendingMu.Lock()
	b.track(conn)
	b.pendingMu.Unlock()

	// A barrier has no readiness signal of its own; perform it inline for
	// readiness engines (it is synchronous on every OS anyway), or submit
	// it to a completion engine exactly like a write.
	if b.engine.isReadinessBased() {
		res, err := h.EngineBarrier(req, kind)
		b.pendingMu.Lock()
		b.untrack(conn)
		b.pendingMu.Unlock()
		b.finishWrite(conn, res, err)
		return nil
	}
	if err := b.engine.submit(conn); err != nil {
		b.pendingMu.Lock()
		b.untrack(conn)
		b.pendingMu.Unlock()
		return err
	}
	return nil
}

// Cancel requests that conn's operation stop. Readiness engines never
// issue a real syscall until the fd is actually ready, so there is nothing
// outstanding to abandon: Cancel untracks conn itself and synthesizes the
// OperationCanceled delivery immediately. Completion engines already have
// a real ReadFile/WriteFile/io_uring op in flight; untracking and
// recycling conn here would let a later Start* call reuse it while the
// original kernel completion is still outstanding, so Cancel instead asks
// the engine to cancel the kernel operation and leaves conn tracked for
// the normal poll/handleCompletion/deliver path to resolve, whether that
// resolves as a genuine cancellation or a result that raced ahead of it.
func (b *CompletionPortBackend) Cancel(conn *OperationConnection) error {
	if !conn.requestCancel() {
		return nil
	}
	if !b.engine.isReadinessBased() {
		return b.engine.cancel(conn)
	}
	b.Post(func() {
		b.pendingMu.Lock()
		_, stillPending := b.allPending[conn]
		if stillPending {
			b.untrack(conn)
		}
		b.pendingMu.Unlock()
		if stillPending {
			b.deliver(conn, iobuf.IoResult[iobuf.Buffer]{}, iobuf.IoResult[iobuf.ConstBuffer]{}, ioerr.ErrOperationCanceled)
		}
	})
	return nil
}

func (b *CompletionPortBackend) Post(fn PostedWork) {
	b.posted.Push(fn)
	_ = b.engine.wake()
}

func (b *CompletionPortBackend) PendingCount() int {
	b.pendingMu.Lock()
	defer b.pendingMu.Unlock()
	return len(b.allPending)
}

func (b *CompletionPortBackend) Close() error {
	var err error
	b.once.Do(func() {
		b.pendingMu.Lock()
		n := len(b.allPending)
		b.pendingMu.Unlock()
		if n > 0 {
			// Destroying a multiplexer with pending I/O is a programming
			// error: the caller must Cancel and drain every operation
			// first. There is no safe recovery, so this is fatal.
			mlog.Default().Error("multiplexer closed with pending operations", "count", n)
			panic("mux: CompletionPortBackend closed with pending I/O outstanding")
		}
		close(b.closed)
		err = b.engine.close()
	})
	return err
}

// Run drives the completion loop. Multiple goroutines may call Run
// concurrently on the same backend for thread-pool mode; each independently
// blocks in engine.poll and shares the same pending/deadline state under
// pendingMu.
func (b *CompletionPortBackend) Run(ctx context.Context) error {
	compBuf := make([]engineCompletion, 64)
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-b.closed:
			return nil
		default:
		}

		timeout := b.nextTimeout()
		n, err := b.engine.poll(timeout, compBuf)
		if err != nil {
			mlog.Default().Warn("engine poll error", "engine", b.engine.name(), "err", err)
			continue
		}

		exit := b.defer_.enter()
		for i := 0; i < n; i++ {
			b.handleCompletion(compBuf[i])
		}
		b.processExpired(time.Now())
		b.drainPosted()
		exit()

		select {
		case <-ctx.Done():
			return nil
		default:
		}
	}
}

func (b *CompletionPortBackend) nextTimeout() time.Duration {
	b.pendingMu.Lock()
	at, ok := b.deadlines.NextDeadline()
	b.pendingMu.Unlock()
	if !ok {
		if b.cfg.PollTimeout > 0 {
			return b.cfg.PollTimeout
		}
		return -1
	}
	d := time.Until(at)
	if d < 0 {
		d = 0
	}
	if b.cfg.PollTimeout > 0 && d > b.cfg.PollTimeout {
		return b.cfg.PollTimeout
	}
	return d
}

func (b *CompletionPortBackend) handleCompletion(ev engineCompletion) {
	if b.engine.isReadinessBased() {
		b.pendingMu.Lock()
		ops := append([]*OperationConnection(nil), b.pendingByFD[ev.fd]...)
		b.pendingMu.Unlock()
		for _, conn := range ops {
			if conn.Canceled() {
				continue
			}
			ready := (conn.kind == OpRead && ev.readable) || (conn.kind != OpRead && ev.writable)
			if !ready {
				continue
			}
			b.completeReadinessOp(conn)
		}
		return
	}

	if ev.conn == nil {
		return
	}
	b.pendingMu.Lock()
	_, stillPending := b.allPending[ev.conn]
	if stillPending {
		b.untrack(ev.conn)
	}
	b.pendingMu.Unlock()
	if !stillPending {
		return
	}
	var readRes iobuf.IoResult[iobuf.Buffer]
	var writeRes iobuf.IoResult[iobuf.ConstBuffer]
	if ev.conn.kind == OpRead {
		readRes = iobuf.IoResult[iobuf.Buffer]{
			Buffers:     iobuf.Truncate(ev.conn.readReq.Buffers, ev.transferred),
			Transferred: ev.transferred,
		}
	} else {
		writeRes = iobuf.IoResult[iobuf.ConstBuffer]{
			Buffers:     iobuf.Truncate(ev.conn.writeReq.Buffers, ev.transferred),
			Transferred: ev.transferred,
		}
	}
	b.deliver(ev.conn, readRes, writeRes, ev.err)
}

func (b *CompletionPortBackend) completeReadinessOp(conn *OperationConnection) {
	b.pendingMu.Lock()
	_, stillPending := b.allPending[conn]
	if stillPending {
		b.untrack(conn)
	}
	b.pendingMu.Unlock()
	if !stillPending {
		return
	}

	switch conn.kind {
	case OpRead:
		res, err := conn.handle.EngineRead(conn.readReq)
		b.finishRead(conn, res, err)
	default:
		res, err := conn.handle.EngineWrite(conn.writeReq)
		b.finishWrite(conn, res, err)
	}
}

func (b *CompletionPortBackend) finishRead(conn *OperationConnection, res iobuf.IoResult[iobuf.Buffer], err error) {
	b.deliver(conn, res, iobuf.IoResult[iobuf.ConstBuffer]{}, err)
}

func (b *CompletionPortBackend) finishWrite(conn *OperationConnection, res iobuf.IoResult[iobuf.ConstBuffer], err error) {
	b.deliver(conn, iobuf.IoResult[iobuf.Buffer]{}, res, err)
}

// deliver invokes conn's receiver exactly once, through the reentrancy
// guard: a receiver invoked during a nested completion pass is queued and
// runs once the outermost Run frame unwinds, so it never observes the
// pending list mid-iteration. Receiver panics are caught, logged, and do
// not abort the caller's loop.
func (b *CompletionPortBackend) deliver(conn *OperationConnection, readRes iobuf.IoResult[iobuf.Buffer], writeRes iobuf.IoResult[iobuf.ConstBuffer], err error) {
	b.defer_.run(func() {
		defer b.recycleConn(conn)
		func() {
			defer func() {
				if r := recover(); r != nil {
					mlog.Default().Warn("receiver panicked", "fd", conn.fd, "kind", conn.kind.String(), "panic", r)
				}
			}()
			if conn.kind == OpRead {
				if conn.onRead != nil {
					conn.onRead(readRes, err)
				}
				return
			}
			if conn.onWrite != nil {
				conn.onWrite(writeRes, err)
			}
		}()
	})
}

func (b *CompletionPortBackend) processExpired(now time.Time) {
	b.pendingMu.Lock()
	expired := b.deadlines.Expired(now)
	var conns []*OperationConnection
	for _, e := range expired {
		conn := e.(*OperationConnection)
		delete(b.allPending, conn)
		conn.registered = false
		list := b.pendingByFD[conn.fd]
		for i, c := range list {
			if c == conn {
				b.pendingByFD[conn.fd] = append(list[:i], list[i+1:]...)
				break
			}
		}
		conns = append(conns, conn)
	}
	b.pendingMu.Unlock()
	for _, conn := range conns {
		b.deliver(conn, iobuf.IoResult[iobuf.Buffer]{}, iobuf.IoResult[iobuf.ConstBuffer]{}, ioerr.ErrTimedOut)
	}
}

func (b *CompletionPortBackend) drainPosted() {
	for _, fn := range b.posted.DrainInto() {
		func() {
			defer func() {
				if r := recover(); r != nil {
					mlog.Default().Warn("posted work panicked", "panic", r)
				}
			}()
			fn()
		}()
	}
}
