//go:build linux

// File: mux/engine_iouring_linux.go
// Author: momentics <momentics@gmail.com>
//
// Completion-based engine over Linux io_uring. io_uring_setup and
// io_uring_enter have no golang.org/x/sys/unix wrapper, so this issues them
// directly via syscall.Syscall, mmaps the submission and completion rings,
// and manages the ring indices by hand. best_available prefers this engine
// over epoll in single-thread mode (Config.Threads <= 1) when the running
// kernel supports it; newIOUringEngine returns
// a PlatformError (falling through to epoll) on kernels too old for
// io_uring_setup.

package mux

import (
	"sync"
	"syscall"
	"time"
	"unsafe"

	"github.com/2217936322/llfio/handle"
	"github.com/2217936322/llfio/ioerr"
)

const (
	sysIOUringSetup  = 425
	sysIOUringEnter  = 426
	sysIOUringRegister = 427

	ioUringOpRead         = 22 // IORING_OP_READ
	ioUringOpWrite        = 23 // IORING_OP_WRITE
	ioUringOpFsync        = 3  // IORING_OP_FSYNC
	ioUringOpTimeout      = 11 // IORING_OP_TIMEOUT
	ioUringOpAsyncCancel  = 14 // IORING_OP_ASYNC_CANCEL
	ioUringOpNop          = 0  // IORING_OP_NOP

	ioSQRingOff = 0
	ioCQRingOff = 0x8000000
	ioSQEsOff   = 0x10000000

	// wakeUserData tags SQEs (timeout, nop, cancel) whose own completion
	// carries no OperationConnection and exists only to unblock poll's
	// io_uring_enter wait; handleCompletion already drops nil-conn events.
	wakeUserData = 0

	// kernelTimespec (below) mirrors struct __kernel_timespec, the ABI
	// io_uring's IORING_OP_TIMEOUT expects, which is always 64-bit fields
	// regardless of platform word size.
)

type kernelTimespec struct {
	sec  int64
	nsec int64
}

type sqOffsets struct {
	head, tail, ringMask, ringEntries, flags, dropped, array, resv1 uint32
	userAddr                                                        uint64
}

type cqOffsets struct {
	head, tail, ringMask, ringEntries, overflow, cqes, flags, resv1 uint32
	userAddr                                                        uint64
}

type ioUringParams struct {
	sqEntries, cqEntries, flags, sqThreadCPU, sqThreadIdle, features uint32
	wqFD                                                             uint32
	resv                                                              [3]uint32
	sqOff                                                             sqOffsets
	cqOff                                                             cqOffsets
}

type ioUringSQE struct {
	opcode      uint8
	flags       uint8
	ioprio      uint16
	fd          int32
	off         uint64
	addr        uint64
	length      uint32
	rwFlags     uint32
	userData    uint64
	_pad        [3]uint64
}

type ioUringCQE struct {
	userData uint64
	res      int32
	flags    uint32
}

func newIOUringEngine(cfg Config) (ioEngine, error) {
	var params ioUringParams
	fd, _, errno := syscall.Syscall(sysIOUringSetup, 256, uintptr(unsafe.Pointer(&params)), 0)
	if errno != 0 {
		return nil, ioerr.Wrap(ioerr.PlatformError, "io_uring_setup", errno)
	}
	e := &ioUringEngine{ringFD: int(fd), entries: 256}
	if err := e.mapRings(&params); err != nil {
		syscall.Close(e.ringFD)
		return nil, err
	}
	return e, nil
}

type ioUringEngine struct {
	mu      sync.Mutex
	ringFD  int
	entries uint32

	sqRing, cqRing, sqes []byte
	sqOff                sqOffsets
	cqOff                cqOffsets

	inFlight map[uint64]*OperationConnection
	nextID   uint64
}

func (e *ioUringEngine) mapRings(p *ioUringParams) error {
	sqRingSize := int(p.sqOff.array) + int(p.sqEntries)*4
	sqRing, err := syscall.Mmap(e.ringFD, ioSQRingOff, sqRingSize, syscall.PROT_READ|syscall.PROT_WRITE, syscall.MAP_SHARED|syscall.MAP_POPULATE)
	if err != nil {
		return ioerr.Wrap(ioerr.PlatformError, "mmap(sq ring)", err)
	}
	cqRingSize := int(p.cqOff.cqes) + int(p.cqEntries)*int(unsafe.Sizeof(ioUringCQE{}))
	cqRing, err := syscall.Mmap(e.ringFD, ioCQRingOff, cqRingSize, syscall.PROT_READ|syscall.PROT_WRITE, syscall.MAP_SHARED|syscall.MAP_POPULATE)
	if err != nil {
		syscall.Munmap(sqRing)
		return ioerr.Wrap(ioerr.PlatformError, "mmap(cq ring)", err)
	}
	sqes, err := syscall.Mmap(e.ringFD, ioSQEsOff, int(p.sqEntries)*int(unsafe.Sizeof(ioUringSQE{})), syscall.PROT_READ|syscall.PROT_WRITE, syscall.MAP_SHARED|syscall.MAP_POPULATE)
	if err != nil {
		syscall.Munmap(sqRing)
		syscall.Munmap(cqRing)
		return ioerr.Wrap(ioerr.PlatformError, "mmap(sqes)", err)
	}
	e.sqRing, e.cqRing, e.sqes = sqRing, cqRing, sqes
	e.sqOff, e.cqOff = p.sqOff, p.cqOff
	e.inFlight = make(map[uint64]*OperationConnection)
	// id 0 is reserved for wakeUserData; real submissions start at 1 so a
	// discarded wake/timeout/cancel completion can never be mistaken for the
	// first real operation's completion.
	e.nextID = 1
	return nil
}

func (e *ioUringEngine) open() error  { return nil }
func (e *ioUringEngine) name() string { return "io_uring" }
func (e *ioUringEngine) isReadinessBased() bool { return false }

func (e *ioUringEngine) close() error {
	syscall.Munmap(e.sqes)
	syscall.Munmap(e.cqRing)
	syscall.Munmap(e.sqRing)
	return syscall.Close(e.ringFD)
}

func (e *ioUringEngine) registerFD(fd handle.FD) error   { return nil }
func (e *ioUringEngine) deregisterFD(fd handle.FD) error { return nil }

func (e *ioUringEngine) submit(conn *OperationConnection) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	id := e.nextID
	e.nextID++
	e.inFlight[id] = conn
	conn.engineState = id

	sqe := e.nextSQE()
	sqe.fd = int32(conn.Handle().NativeHandle().FD())
	sqe.userData = id

	switch conn.kind {
	case OpRead:
		buf := conn.readReq.Buffers[0]
		sqe.opcode = ioUringOpRead
		sqe.addr = uint64(uintptr(unsafe.Pointer(&buf[0])))
		sqe.length = uint32(len(buf))
		sqe.off = uint64(conn.readReq.Offset)
	case OpWrite:
		buf := conn.writeReq.Buffers[0]
		sqe.opcode = ioUringOpWrite
		sqe.addr = uint64(uintptr(unsafe.Pointer(&buf[0])))
		sqe.length = uint32(len(buf))
		sqe.off = uint64(conn.writeReq.Offset)
	case OpBarrier:
		sqe.opcode = ioUringOpFsync
	}

	e.advanceSQTail()
	_, _, errno := syscall.Syscall6(sysIOUringEnter, uintptr(e.ringFD), 1, 0, 0, 0, 0)
	if errno != 0 {
		delete(e.inFlight, id)
		return ioerr.Wrap(ioerr.PlatformError, "io_uring_enter", errno)
	}
	return nil
}

func (e *ioUringEngine) nextSQE() *ioUringSQE {
	idx := *e.u32At(e.sqRing, e.sqOff.tail) & *e.u32At(e.sqRing, e.sqOff.ringMask)
	return (*ioUringSQE)(unsafe.Pointer(&e.sqes[idx*uint32(unsafe.Sizeof(ioUringSQE{}))]))
}

func (e *ioUringEngine) advanceSQTail() {
	tail := e.u32At(e.sqRing, e.sqOff.tail)
	array := e.u32At(e.sqRing, e.sqOff.array)
	mask := *e.u32At(e.sqRing, e.sqOff.ringMask)
	*(*uint32)(unsafe.Pointer(uintptr(unsafe.Pointer(array)) + uintptr(*tail&mask)*4)) = *tail & mask
	*tail++
}

func (e *ioUringEngine) u32At(ring []byte, off uint32) *uint32 {
	return (*uint32)(unsafe.Pointer(&ring[off]))
}

// cancel submits an IORING_OP_ASYNC_CANCEL SQE targeting conn's original
// submission by its userData id. The cancel op's own completion carries
// wakeUserData and is discarded by poll like any other wake completion; the
// targeted operation's real completion (success or ECANCELED) still arrives
// separately through the normal inFlight path.
func (e *ioUringEngine) cancel(conn *OperationConnection) error {
	id, ok := conn.engineState.(uint64)
	if !ok {
		return nil
	}
	e.mu.Lock()
	sqe := e.nextSQE()
	*sqe = ioUringSQE{}
	sqe.opcode = ioUringOpAsyncCancel
	sqe.fd = -1
	sqe.addr = id
	sqe.userData = wakeUserData
	e.advanceSQTail()
	e.mu.Unlock()

	_, _, errno := syscall.Syscall6(sysIOUringEnter, uintptr(e.ringFD), 1, 0, 0, 0, 0)
	if errno != 0 {
		return ioerr.Wrap(ioerr.PlatformError, "io_uring_enter(cancel)", errno)
	}
	return nil
}

// wake submits a no-op SQE so a concurrent poll blocked inside
// io_uring_enter's min_complete=1 wait observes a completion and returns;
// its own completion carries wakeUserData and is otherwise ignored.
func (e *ioUringEngine) wake() error {
	e.mu.Lock()
	sqe := e.nextSQE()
	*sqe = ioUringSQE{}
	sqe.opcode = ioUringOpNop
	sqe.fd = -1
	sqe.userData = wakeUserData
	e.advanceSQTail()
	e.mu.Unlock()

	_, _, errno := syscall.Syscall6(sysIOUringEnter, uintptr(e.ringFD), 1, 0, 0, 0, 0)
	if errno != 0 {
		return ioerr.Wrap(ioerr.PlatformError, "io_uring_enter(wake)", errno)
	}
	return nil
}

// poll bounds its wait by timeout using an IORING_OP_TIMEOUT SQE:
// io_uring has no direct "enter with deadline" argument, so a timeout SQE
// is submitted alongside the wait and its own completion (ETIME, ignored)
// unblocks io_uring_enter exactly like a real operation completing would.
// A negative timeout submits no timeout SQE and waits indefinitely, matching
// every other engine's poll contract.
func (e *ioUringEngine) poll(timeout time.Duration, out []engineCompletion) (int, error) {
	toSubmit := uintptr(0)
	if timeout >= 0 {
		ts := &kernelTimespec{sec: int64(timeout / time.Second), nsec: int64(timeout % time.Second)}
		e.mu.Lock()
		sqe := e.nextSQE()
		*sqe = ioUringSQE{}
		sqe.opcode = ioUringOpTimeout
		sqe.fd = -1
		sqe.addr = uint64(uintptr(unsafe.Pointer(ts)))
		sqe.length = 1
		sqe.userData = wakeUserData
		e.advanceSQTail()
		e.mu.Unlock()
		toSubmit = 1
	}

	_, _, errno := syscall.Syscall6(sysIOUringEnter, uintptr(e.ringFD), toSubmit, 1, 1 /*IORING_ENTER_GETEVENTS*/, 0, 0)
	if errno != 0 && errno != syscall.EINTR && errno != syscall.EAGAIN {
		return 0, ioerr.Wrap(ioerr.PlatformError, "io_uring_enter(wait)", errno)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	head := e.u32At(e.cqRing, e.cqOff.head)
	tail := e.u32At(e.cqRing, e.cqOff.tail)
	mask := *e.u32At(e.cqRing, e.cqOff.ringMask)
	count := 0
	for *head != *tail {
		idx := *head & mask
		cqe := (*ioUringCQE)(unsafe.Pointer(&e.cqRing[e.cqOff.cqes+idx*uint32(unsafe.Sizeof(ioUringCQE{}))]))
		conn := e.inFlight[cqe.userData]
		delete(e.inFlight, cqe.userData)
		comp := engineCompletion{conn: conn, transferred: int64(cqe.res)}
		if cqe.res < 0 {
			errno := syscall.Errno(-cqe.res)
			code := ioerr.PlatformError
			if errno == syscall.ECANCELED {
				code = ioerr.OperationCanceled
			}
			comp.err = ioerr.Wrap(code, "io_uring completion", errno)
			comp.transferred = 0
		}
		if count < len(out) {
			out[count] = comp
		} else {
			out = append(out, comp)
		}
		count++
		*head++
	}
	return count, nil
}
