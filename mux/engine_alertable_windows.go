//go:build windows

// File: mux/engine_alertable_windows.go
// Author: momentics <momentics@gmail.com>
//
// Alertable-wait engine over ReadFileEx/WriteFileEx completion routines,
// used instead of iocpEngine when Config.Threads requests single-thread
// mode. APCs only fire on the thread that issued the alertable wait, so
// every submit and poll call against one alertableEngine must come from
// the same OS thread; the backend's single-thread Run() caller already
// satisfies that by construction. Multi-thread mode has no such guarantee
// and falls back to iocpEngine instead.

package mux

import (
	"sync"
	"syscall"
	"time"
	"unsafe"

	"golang.org/x/sys/windows"

	"github.com/2217936322/llfio/handle"
	"github.com/2217936322/llfio/ioerr"
)

var (
	modKernel32       = syscall.NewLazyDLL("kernel32.dll")
	procReadFileEx    = modKernel32.NewProc("ReadFileEx")
	procWriteFileEx   = modKernel32.NewProc("WriteFileEx")
	procQueueUserAPC  = modKernel32.NewProc("QueueUserAPC")

	fileIOCompletionRoutine = windows.NewCallback(func(errCode, transferred, overlapped uintptr) uintptr {
		eng := activeAlertableEngine.Load()
		if eng != nil {
			eng.onCompletion(uint32(errCode), uint32(transferred), (*windows.Overlapped)(unsafe.Pointer(overlapped)))
		}
		return 0
	})

	noopAPCRoutine = windows.NewCallback(func(param uintptr) uintptr { return 0 })
)

// activeAlertableEngine lets the single process-wide completion-routine
// trampoline above find its owning engine; alertable mode is single-thread
// by construction, so there is at most one of these driving I/O at a time.
var activeAlertableEngine atomicEnginePtr

type atomicEnginePtr struct {
	mu sync.Mutex
	p  *alertableEngine
}

func (a *atomicEnginePtr) Load() *alertableEngine {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.p
}

func (a *atomicEnginePtr) Store(e *alertableEngine) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.p = e
}

type alertableEngine struct {
	mu           sync.Mutex
	pending      map[*windows.Overlapped]*OperationConnection
	results      []engineCompletion
	threadHandle windows.Handle
}

func newAlertableEngine(cfg Config) (ioEngine, error) {
	return &alertableEngine{pending: make(map[*windows.Overlapped]*OperationConnection)}, nil
}

func (e *alertableEngine) open() error {
	activeAlertableEngine.Store(e)
	var dup windows.Handle
	err := windows.DuplicateHandle(windows.CurrentProcess(), windows.CurrentThread(), windows.CurrentProcess(), &dup, 0, false, windows.DUPLICATE_SAME_ACCESS)
	if err != nil {
		return ioerr.Wrap(ioerr.PlatformError, "DuplicateHandle(current thread)", err)
	}
	e.threadHandle = dup
	return nil
}

func (e *alertableEngine) close() error {
	activeAlertableEngine.Store(nil)
	if e.threadHandle != 0 {
		return windows.CloseHandle(e.threadHandle)
	}
	return nil
}

func (e *alertableEngine) name() string          { return "alertable" }
func (e *alertableEngine) isReadinessBased() bool { return false }

func (e *alertableEngine) registerFD(fd handle.FD) error   { return nil }
func (e *alertableEngine) deregisterFD(fd handle.FD) error { return nil }

func (e *alertableEngine) submit(conn *OperationConnection) error {
	st := &overlappedState{conn: conn}
	conn.engineState = st
	h := windows.Handle(conn.Handle().NativeHandle().FD())

	e.mu.Lock()
	e.pending[&st.ov] = conn
	e.mu.Unlock()

	var ok uintptr
	switch conn.kind {
	case OpRead:
		if len(conn.readReq.Buffers) == 0 {
			e.drop(&st.ov)
			return ioerr.New(ioerr.InvalidArgument, "empty read request")
		}
		buf := conn.readReq.Buffers[0]
		st.ov.Offset = uint32(conn.readReq.Offset)
		st.ov.OffsetHigh = uint32(conn.readReq.Offset >> 32)
		ok, _, _ = procReadFileEx.Call(uintptr(h), uintptr(unsafe.Pointer(&buf[0])), uintptr(len(buf)), uintptr(unsafe.Pointer(&st.ov)), fileIOCompletionRoutine)
	case OpWrite, OpBarrier:
		if conn.kind == OpBarrier {
			if err := windows.FlushFileBuffers(h); err != nil {
				e.drop(&st.ov)
				return ioerr.Wrap(ioerr.PlatformError, "FlushFileBuffers", err)
			}
			e.drop(&st.ov)
			return nil
		}
		if len(conn.writeReq.Buffers) == 0 {
			e.drop(&st.ov)
			return ioerr.New(ioerr.InvalidArgument, "empty write request")
		}
		buf := conn.writeReq.Buffers[0]
		st.ov.Offset = uint32(conn.writeReq.Offset)
		st.ov.OffsetHigh = uint32(conn.writeReq.Offset >> 32)
		ok, _, _ = procWriteFileEx.Call(uintptr(h), uintptr(unsafe.Pointer(&buf[0])), uintptr(len(buf)), uintptr(unsafe.Pointer(&st.ov)), fileIOCompletionRoutine)
	default:
		e.drop(&st.ov)
		return ioerr.New(ioerr.InvalidArgument, "unknown operation kind")
	}
	if ok == 0 {
		e.drop(&st.ov)
		return ioerr.Wrap(ioerr.PlatformError, "ReadFileEx/WriteFileEx", syscall.GetLastError())
	}
	return nil
}

func (e *alertableEngine) drop(ov *windows.Overlapped) {
	e.mu.Lock()
	delete(e.pending, ov)
	e.mu.Unlock()
}

// cancel asks the kernel to abandon conn's outstanding ReadFileEx/WriteFileEx
// call. The completion routine still fires, with ERROR_OPERATION_ABORTED,
// so conn is recycled through the normal completion path, not here.
func (e *alertableEngine) cancel(conn *OperationConnection) error {
	st, ok := conn.engineState.(*overlappedState)
	if !ok {
		return nil
	}
	h := windows.Handle(conn.Handle().NativeHandle().FD())
	err := windows.CancelIoEx(h, &st.ov)
	if err != nil && err != windows.ERROR_NOT_FOUND {
		return ioerr.Wrap(ioerr.PlatformError, "CancelIoEx", err)
	}
	return nil
}

// onCompletion runs synchronously on the polling thread's stack, invoked by
// the kernel while that thread is inside SleepEx.
func (e *alertableEngine) onCompletion(errCode, transferred uint32, ov *windows.Overlapped) {
	e.mu.Lock()
	conn, ok := e.pending[ov]
	if ok {
		delete(e.pending, ov)
	}
	e.mu.Unlock()
	if !ok {
		return
	}
	comp := engineCompletion{conn: conn, transferred: int64(transferred)}
	if errCode != 0 {
		code := ioerr.PlatformError
		if errCode == uint32(windows.ERROR_OPERATION_ABORTED) {
			code = ioerr.OperationCanceled
		}
		comp.err = ioerr.Wrap(code, "ReadFileEx/WriteFileEx completion", syscall.Errno(errCode))
	}
	e.mu.Lock()
	e.results = append(e.results, comp)
	e.mu.Unlock()
}

func (e *alertableEngine) wake() error {
	if e.threadHandle == 0 {
		return nil
	}
	r, _, err := procQueueUserAPC.Call(noopAPCRoutine, uintptr(e.threadHandle), 0)
	if r == 0 {
		return ioerr.Wrap(ioerr.PlatformError, "QueueUserAPC", err)
	}
	return nil
}

func (e *alertableEngine) poll(timeout time.Duration, out []engineCompletion) (int, error) {
	ms := uint32(windows.INFINITE)
	if timeout >= 0 {
		ms = uint32(timeout / time.Millisecond)
	}
	windows.SleepEx(ms, true)

	e.mu.Lock()
	results := e.results
	e.results = nil
	e.mu.Unlock()

	n := copy(out, results)
	return n, nil
}
